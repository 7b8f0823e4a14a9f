// Package extract wraps the media extraction backend. The backend is a black
// box: it takes a URL and an extraction spec and produces a single file, or a
// classified error. Retries are the scheduler's responsibility, never ours.
package extract

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/vidfetch/vidfetch-bot/internal/model"
	"github.com/vidfetch/vidfetch-bot/internal/quality"
)

// Request describes one extraction attempt.
type Request struct {
	URL       string
	Spec      quality.ExtractionSpec
	OutputDir string
}

// Result is the produced artifact plus its metadata.
type Result struct {
	Path      string
	Size      int64
	Duration  float64 // seconds, 0 if unknown
	Title     string
	Thumbnail string
}

// Progress is a trimmed view of backend download progress, forwarded to the
// chat boundary as throttled status updates.
type Progress struct {
	Percent int
	Speed   string
	ETASec  int
}

// ProbeInfo is the result of a metadata-only probe, used to annotate tier
// options with size estimates before the user picks one.
type ProbeInfo struct {
	Title    string
	Duration float64
	// BySize holds a probed or derived size estimate per tier, in bytes.
	// Missing tiers had no usable format data.
	BySize map[model.Tier]int64
}

// Extractor is the extraction backend boundary.
type Extractor interface {
	// Extract downloads the media described by req into req.OutputDir.
	Extract(ctx context.Context, req Request, onProgress func(Progress)) (*Result, error)

	// Probe fetches metadata without downloading.
	Probe(ctx context.Context, url string) (*ProbeInfo, error)
}

// classifyError maps backend failures onto the error taxonomy. yt-dlp
// reports everything as process output, so this is substring matching over
// the message text.
func classifyError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return model.ErrTimeout
	}
	if errors.Is(err, context.Canceled) {
		return err
	}

	msg := strings.ToLower(err.Error())
	switch {
	case containsAny(msg, "private", "login required", "sign in", "not authorized", "account"):
		return model.ErrPrivate
	case containsAny(msg, "404", "not found", "no video", "unsupported url", "unable to extract", "deleted"):
		return model.ErrNotFound
	case containsAny(msg, "timed out", "timeout"):
		return model.ErrTimeout
	case containsAny(msg, "network", "connection", "temporary failure", "resolve", "reset by peer", "eof", "tls"):
		return model.ErrNetwork
	}
	return err
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// etaSeconds converts a backend ETA to whole seconds, -1 when unknown.
func etaSeconds(eta time.Duration) int {
	if eta <= 0 {
		return -1
	}
	return int(eta.Seconds())
}
