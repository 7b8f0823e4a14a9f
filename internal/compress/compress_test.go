package compress

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/vidfetch/vidfetch-bot/internal/model"
)

func TestOutputPath(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"/tmp/video.mp4", "/tmp/video-compressed.mp4"},
		{"/tmp/video.webm", "/tmp/video-compressed.mp4"},
		{"/tmp/no-extension", "/tmp/no-extension-compressed.mp4"},
	}

	for _, test := range tests {
		if got := OutputPath(test.input); got != test.expected {
			t.Errorf("OutputPath(%s) = %s, expected %s", test.input, got, test.expected)
		}
	}
}

func TestBuildArgs(t *testing.T) {
	args := BuildArgs("/tmp/in.mp4", "/tmp/out.mp4")

	joined := strings.Join(args, " ")
	for _, want := range []string{"-c:v " + VideoCodec, "-crf " + VideoCRF, "-b:a " + AudioBitrate, "/tmp/in.mp4", "/tmp/out.mp4"} {
		if !strings.Contains(joined, want) {
			t.Errorf("Expected args to contain %q, got: %s", want, joined)
		}
	}

	if args[0] != "-y" {
		t.Errorf("Expected overwrite flag first, got %s", args[0])
	}
	if args[len(args)-1] != "/tmp/out.mp4" {
		t.Errorf("Expected output path last, got %s", args[len(args)-1])
	}
}

func TestCompress_MissingInput(t *testing.T) {
	s := NewService()

	_, _, err := s.Compress(context.Background(), "/nonexistent/input.mp4")
	if !errors.Is(err, model.ErrCompressionFailed) {
		t.Errorf("Expected ErrCompressionFailed for missing input, got %v", err)
	}
}
