package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	c, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if c.MaxFileSizeMB != 50 {
		t.Errorf("Expected 50MB default size limit, got %d", c.MaxFileSizeMB)
	}
	if c.MaxFileSizeBytes() != 50*1024*1024 {
		t.Errorf("Expected 52428800 bytes, got %d", c.MaxFileSizeBytes())
	}
	if c.RateLimit != 5 {
		t.Errorf("Expected 5 downloads per window, got %d", c.RateLimit)
	}
	if c.RateLimitWindow != time.Hour {
		t.Errorf("Expected 1h window, got %s", c.RateLimitWindow)
	}
	if c.MaxConcurrent != 5 {
		t.Errorf("Expected 5 concurrent downloads, got %d", c.MaxConcurrent)
	}
	if c.TempTTL != 10*time.Minute {
		t.Errorf("Expected 10m temp TTL, got %s", c.TempTTL)
	}
}

func TestLoad_ReadsEnvironment(t *testing.T) {
	t.Setenv("VIDFETCH_MAX_FILE_SIZE_MB", "25")
	t.Setenv("VIDFETCH_MAX_CONCURRENT", "3")
	t.Setenv("VIDFETCH_RATE_LIMIT_WINDOW", "30m")
	t.Setenv("VIDFETCH_REDIS_URL", "redis://cache:6379/1")

	c, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if c.MaxFileSizeMB != 25 {
		t.Errorf("Expected 25MB, got %d", c.MaxFileSizeMB)
	}
	if c.MaxConcurrent != 3 {
		t.Errorf("Expected 3 concurrent, got %d", c.MaxConcurrent)
	}
	if c.RateLimitWindow != 30*time.Minute {
		t.Errorf("Expected 30m window, got %s", c.RateLimitWindow)
	}
	if c.RedisURL != "redis://cache:6379/1" {
		t.Errorf("Unexpected redis URL %q", c.RedisURL)
	}
}

func TestLoad_ClampsOutOfRangeValues(t *testing.T) {
	t.Setenv("VIDFETCH_MAX_CONCURRENT", "50")
	t.Setenv("VIDFETCH_RATE_LIMIT", "0")
	t.Setenv("VIDFETCH_QUEUE_CAPACITY", "1")

	c, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if c.MaxConcurrent != MaxParallel {
		t.Errorf("Expected concurrency clamped to %d, got %d", MaxParallel, c.MaxConcurrent)
	}
	if c.RateLimit != MinRatePerWindow {
		t.Errorf("Expected rate limit clamped to %d, got %d", MinRatePerWindow, c.RateLimit)
	}
	if c.QueueCapacity < c.MaxConcurrent {
		t.Errorf("Expected queue capacity >= concurrency, got %d", c.QueueCapacity)
	}
}

func TestLoad_TempTTLCoversLongestStage(t *testing.T) {
	t.Setenv("VIDFETCH_EXTRACT_TIMEOUT", "30m")
	t.Setenv("VIDFETCH_TEMP_TTL", "10m")

	c, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	// A stage can run for its full timeout between handle touches, so a
	// TTL shorter than that would sweep live artifacts.
	if c.TempTTL < 2*c.ExtractTimeout {
		t.Errorf("Expected TempTTL >= %s, got %s", 2*c.ExtractTimeout, c.TempTTL)
	}
}

func TestLoad_RejectsMalformedDuration(t *testing.T) {
	t.Setenv("VIDFETCH_EXTRACT_TIMEOUT", "not-a-duration")

	if _, err := Load(); err == nil {
		t.Error("Expected an error for a malformed duration")
	}
}
