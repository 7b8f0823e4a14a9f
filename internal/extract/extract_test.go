package extract

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/lrstanley/go-ytdlp"

	"github.com/vidfetch/vidfetch-bot/internal/model"
)

func TestClassifyError(t *testing.T) {
	tests := []struct {
		message  string
		expected error
	}{
		{"ERROR: This tweet is from a private account", model.ErrPrivate},
		{"ERROR: Sign in to confirm your age", model.ErrPrivate},
		{"HTTP Error 404: Not Found", model.ErrNotFound},
		{"Unsupported URL: https://example.com", model.ErrNotFound},
		{"unable to extract video info", model.ErrNotFound},
		{"read tcp: connection reset by peer", model.ErrNetwork},
		{"Temporary failure in name resolution", model.ErrNetwork},
		{"request timed out", model.ErrTimeout},
	}

	for _, test := range tests {
		got := classifyError(errors.New(test.message))
		if !errors.Is(got, test.expected) {
			t.Errorf("classifyError(%q) = %v, expected %v", test.message, got, test.expected)
		}
	}
}

func TestClassifyError_DeadlineBecomesTimeout(t *testing.T) {
	got := classifyError(context.DeadlineExceeded)
	if !errors.Is(got, model.ErrTimeout) {
		t.Errorf("Expected ErrTimeout for deadline exceeded, got %v", got)
	}
}

func TestClassifyError_UnknownPassesThrough(t *testing.T) {
	orig := errors.New("something completely different")
	got := classifyError(orig)
	if !errors.Is(got, orig) {
		t.Errorf("Expected unknown error to pass through, got %v", got)
	}
	if model.IsTransient(got) {
		t.Error("Unknown errors must not be treated as transient")
	}
}

func TestFillFromInfo(t *testing.T) {
	path := "/tmp/clip.mp4"
	title := "Test Clip"
	duration := 42.5
	thumb := "https://example.com/thumb.jpg"

	var out Result
	fillFromInfo(&out, &ytdlp.ExtractedInfo{
		Filename:  &path,
		Title:     &title,
		Duration:  &duration,
		Thumbnail: &thumb,
	})

	if out.Path != path {
		t.Errorf("Expected path %q, got %q", path, out.Path)
	}
	if out.Title != title {
		t.Errorf("Expected title %q, got %q", title, out.Title)
	}
	if out.Duration != duration {
		t.Errorf("Expected duration %f, got %f", duration, out.Duration)
	}
	if out.Thumbnail != thumb {
		t.Errorf("Expected thumbnail %q, got %q", thumb, out.Thumbnail)
	}
}

func TestFillFromInfo_NilFields(t *testing.T) {
	var out Result
	fillFromInfo(&out, &ytdlp.ExtractedInfo{})
	fillFromInfo(&out, nil)

	if out != (Result{}) {
		t.Errorf("Expected zero result for empty info, got %+v", out)
	}
}

func TestParseProbeOutput(t *testing.T) {
	dump := []byte(`{
		"title": "Test Clip",
		"duration": 42.5,
		"formats": [
			{"height": 1080, "filesize": 80000000, "vcodec": "h264", "acodec": "aac"},
			{"height": 720, "filesize_approx": 40000000, "vcodec": "h264", "acodec": "aac"},
			{"height": 0, "filesize": 4000000, "vcodec": "none", "acodec": "mp4a"}
		]
	}`)

	info, err := parseProbeOutput(dump)
	if err != nil {
		t.Fatalf("parseProbeOutput failed: %v", err)
	}

	if info.Title != "Test Clip" {
		t.Errorf("Expected title 'Test Clip', got '%s'", info.Title)
	}
	if info.Duration != 42.5 {
		t.Errorf("Expected duration 42.5, got %f", info.Duration)
	}
	if info.BySize[model.TierHD] != 80000000 {
		t.Errorf("Expected HD size 80000000, got %d", info.BySize[model.TierHD])
	}
	if info.BySize[model.Tier720p] != 40000000 {
		t.Errorf("Expected 720p size 40000000, got %d", info.BySize[model.Tier720p])
	}
	if info.BySize[model.TierAudio] != 4000000 {
		t.Errorf("Expected audio size 4000000, got %d", info.BySize[model.TierAudio])
	}

	// 480p had no probed format and must be estimated off the best size.
	if info.BySize[model.Tier480p] <= 0 {
		t.Error("Expected a derived estimate for 480p")
	}
	if info.BySize[model.Tier480p] >= info.BySize[model.TierHD] {
		t.Error("Expected 480p estimate below the HD size")
	}
}

func TestParseProbeOutput_Garbage(t *testing.T) {
	_, err := parseProbeOutput([]byte("not json"))
	if !errors.Is(err, model.ErrNotFound) {
		t.Errorf("Expected ErrNotFound for unparseable probe, got %v", err)
	}
}

func TestParseProbeOutput_PicksLargestPerTier(t *testing.T) {
	dump := []byte(fmt.Sprintf(`{"title":"x","formats":[
		{"height": 1080, "filesize": %d},
		{"height": 1080, "filesize": %d}
	]}`, 50_000_000, 70_000_000))

	info, err := parseProbeOutput(dump)
	if err != nil {
		t.Fatalf("parseProbeOutput failed: %v", err)
	}
	if info.BySize[model.TierHD] != 70_000_000 {
		t.Errorf("Expected largest HD format (70MB), got %d", info.BySize[model.TierHD])
	}
}
