// Package config loads runtime configuration from the environment and
// clamps it to safe operating ranges.
package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const envVarPrefix = "VIDFETCH"

// Operating bounds. Values outside these ranges are clamped, not rejected,
// so a fat-fingered deploy degrades instead of crash-looping.
const (
	MinParallel = 1
	MaxParallel = 10

	MinRatePerWindow = 1
	MaxRatePerWindow = 100
)

// Config is the full runtime configuration. Every field has a working
// default; only BotToken is required for the chat transport to go live.
type Config struct {
	BotToken string `envconfig:"BOT_TOKEN"`

	RedisURL string `envconfig:"REDIS_URL" default:"redis://localhost:6379/0"`

	HTTPAddr    string `envconfig:"HTTP_ADDR" default:":8080"`
	DownloadDir string `envconfig:"DOWNLOAD_DIR" default:"/tmp/vidfetch"`

	MaxFileSizeMB    int64         `envconfig:"MAX_FILE_SIZE_MB" default:"50"`
	RateLimit        int           `envconfig:"RATE_LIMIT" default:"5"`
	RateLimitWindow  time.Duration `envconfig:"RATE_LIMIT_WINDOW" default:"1h"`
	MaxConcurrent    int           `envconfig:"MAX_CONCURRENT" default:"5"`
	QueueCapacity    int           `envconfig:"QUEUE_CAPACITY" default:"100"`
	MaxAttempts      int           `envconfig:"MAX_ATTEMPTS" default:"3"`
	ExtractTimeout   time.Duration `envconfig:"EXTRACT_TIMEOUT" default:"5m"`
	CompressTimeout  time.Duration `envconfig:"COMPRESS_TIMEOUT" default:"5m"`
	DeliverTimeout   time.Duration `envconfig:"DELIVER_TIMEOUT" default:"2m"`
	TempTTL          time.Duration `envconfig:"TEMP_TTL" default:"10m"`
	SweepInterval    time.Duration `envconfig:"SWEEP_INTERVAL" default:"1m"`
	JobRetention     time.Duration `envconfig:"JOB_RETENTION" default:"10m"`
	SelectionTTL     time.Duration `envconfig:"SELECTION_TTL" default:"5m"`
	HTTPRateRPS      float64       `envconfig:"HTTP_RATE_RPS" default:"10"`
	HTTPRateBurst    int           `envconfig:"HTTP_RATE_BURST" default:"20"`
	ShutdownTimeout  time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"15s"`
	LogLevel         string        `envconfig:"LOG_LEVEL" default:"info"`
}

// Load reads configuration from VIDFETCH_-prefixed environment variables and
// normalizes it.
func Load() (*Config, error) {
	var c Config
	if err := envconfig.Process(envVarPrefix, &c); err != nil {
		return nil, fmt.Errorf("parsing environment variables: %w", err)
	}
	c.clamp()
	return &c, nil
}

// MaxFileSizeBytes returns the delivery ceiling in bytes.
func (c *Config) MaxFileSizeBytes() int64 {
	return c.MaxFileSizeMB * 1024 * 1024
}

func (c *Config) clamp() {
	if c.MaxConcurrent < MinParallel {
		c.MaxConcurrent = MinParallel
	}
	if c.MaxConcurrent > MaxParallel {
		c.MaxConcurrent = MaxParallel
	}

	if c.RateLimit < MinRatePerWindow {
		c.RateLimit = MinRatePerWindow
	}
	if c.RateLimit > MaxRatePerWindow {
		c.RateLimit = MaxRatePerWindow
	}
	if c.RateLimitWindow <= 0 {
		c.RateLimitWindow = time.Hour
	}

	if c.MaxFileSizeMB < 1 {
		c.MaxFileSizeMB = 50
	}
	if c.QueueCapacity < c.MaxConcurrent {
		c.QueueCapacity = 100
	}
	if c.MaxAttempts < 1 {
		c.MaxAttempts = 3
	}

	if c.ExtractTimeout <= 0 {
		c.ExtractTimeout = 5 * time.Minute
	}
	if c.CompressTimeout <= 0 {
		c.CompressTimeout = 5 * time.Minute
	}
	if c.DeliverTimeout <= 0 {
		c.DeliverTimeout = 2 * time.Minute
	}
	if c.TempTTL <= 0 {
		c.TempTTL = 10 * time.Minute
	}
	// Workers touch their artifact dir at stage boundaries, so the largest
	// possible gap between touches is one stage timeout. Keep the TTL at
	// twice that so a slow stage can never expire its own handle.
	longest := c.ExtractTimeout
	if c.CompressTimeout > longest {
		longest = c.CompressTimeout
	}
	if c.DeliverTimeout > longest {
		longest = c.DeliverTimeout
	}
	if c.TempTTL < 2*longest {
		c.TempTTL = 2 * longest
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = time.Minute
	}
	if c.JobRetention <= 0 {
		c.JobRetention = 10 * time.Minute
	}
	if c.SelectionTTL <= 0 {
		c.SelectionTTL = 5 * time.Minute
	}

	if c.HTTPRateRPS <= 0 {
		c.HTTPRateRPS = 10
	}
	if c.HTTPRateBurst < 1 {
		c.HTTPRateBurst = 20
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 15 * time.Second
	}
	if c.DownloadDir == "" {
		c.DownloadDir = "/tmp/vidfetch"
	}
}
