// Package compress shrinks an oversized artifact with a single ffmpeg pass.
// It is applied at most once per tier attempt and makes no promise of
// meeting the limit; the caller re-checks the output size and downgrades the
// tier if the pass was not enough.
package compress

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/vidfetch/vidfetch-bot/internal/model"
)

// FFmpeg settings for the reduction pass. CRF 28 with a downscale is the
// fixed reduction factor: roughly half the bitrate of a typical source.
const (
	FFmpegCommand = "ffmpeg"

	VideoCodec  = "libx264"
	VideoPreset = "fast"
	VideoCRF    = "28"
	ScaleFilter = "scale=trunc(iw/2)*2:trunc(ih/2)*2,scale='min(1280,iw)':-2"

	AudioCodec   = "aac"
	AudioBitrate = "96k"

	FastStartFlag = "+faststart"

	CompressedSuffix   = "-compressed"
	OutputExtensionMP4 = ".mp4"
)

// Service runs the compression fallback.
type Service struct{}

// NewService creates a compression service.
func NewService() *Service {
	return &Service{}
}

// Compress re-encodes inputPath next to the original and returns the new
// path and size. Any tool failure surfaces as model.ErrCompressionFailed; a
// partial output file never survives the call. The caller bounds the pass
// with a deadline on ctx.
func (s *Service) Compress(ctx context.Context, inputPath string) (string, int64, error) {
	if _, err := os.Stat(inputPath); err != nil {
		return "", 0, fmt.Errorf("%w: input missing: %v", model.ErrCompressionFailed, err)
	}

	outputPath := OutputPath(inputPath)
	args := BuildArgs(inputPath, outputPath)

	cmd := exec.CommandContext(ctx, FFmpegCommand, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		os.Remove(outputPath)
		if ctx.Err() == context.DeadlineExceeded {
			return "", 0, fmt.Errorf("%w: compression pass", model.ErrTimeout)
		}
		slog.Warn("ffmpeg pass failed", "input", inputPath, "error", err, "tail", outputTail(output))
		return "", 0, fmt.Errorf("%w: %v", model.ErrCompressionFailed, err)
	}

	stat, err := os.Stat(outputPath)
	if err != nil {
		return "", 0, fmt.Errorf("%w: output missing after pass: %v", model.ErrCompressionFailed, err)
	}

	slog.Info("compression pass complete", "input", inputPath, "output", outputPath, "size", stat.Size())
	return outputPath, stat.Size(), nil
}

// BuildArgs builds the ffmpeg command arguments for the reduction pass.
func BuildArgs(inputPath, outputPath string) []string {
	return []string{
		"-y",
		"-i", inputPath,
		"-c:v", VideoCodec,
		"-preset", VideoPreset,
		"-crf", VideoCRF,
		"-vf", ScaleFilter,
		"-c:a", AudioCodec,
		"-b:a", AudioBitrate,
		"-movflags", FastStartFlag,
		"-nostats",
		"-loglevel", "error",
		outputPath,
	}
}

// OutputPath generates the output path for the compressed file.
func OutputPath(inputPath string) string {
	ext := filepath.Ext(inputPath)
	baseName := strings.TrimSuffix(inputPath, ext)
	return baseName + CompressedSuffix + OutputExtensionMP4
}

// outputTail keeps error logs readable when ffmpeg dumps pages of output.
func outputTail(output []byte) string {
	const max = 400
	s := strings.TrimSpace(string(output))
	if len(s) > max {
		s = s[len(s)-max:]
	}
	return s
}
