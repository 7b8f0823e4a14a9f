package extract

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/lrstanley/go-ytdlp"

	"github.com/vidfetch/vidfetch-bot/internal/model"
)

const (
	progressInterval = 500 * time.Millisecond
	outputTemplate   = "%(id)s.%(ext)s"
	audioFormat      = "mp3"
)

// YTDLP drives the yt-dlp binary through its Go wrapper. One instance is
// shared by all workers; each call builds its own command.
type YTDLP struct{}

// NewYTDLP returns the yt-dlp backed extractor.
func NewYTDLP() *YTDLP {
	return &YTDLP{}
}

// Extract runs a single download attempt. The caller bounds it with a
// deadline on ctx; exceeding it surfaces as model.ErrTimeout.
func (y *YTDLP) Extract(ctx context.Context, req Request, onProgress func(Progress)) (*Result, error) {
	dl := ytdlp.New().
		ForceOverwrites().
		RestrictFilenames().
		Format(req.Spec.Format).
		Output(filepath.Join(req.OutputDir, outputTemplate))

	if req.Spec.AudioOnly {
		dl = dl.ExtractAudio().AudioFormat(audioFormat)
	}

	if onProgress != nil {
		dl.ProgressFunc(progressInterval, func(update ytdlp.ProgressUpdate) {
			onProgress(progressFromUpdate(update))
		})
	}

	result, err := dl.Run(ctx, req.URL)
	if err != nil {
		if ctx.Err() != nil {
			return nil, classifyError(ctx.Err())
		}
		return nil, classifyError(err)
	}

	out := &Result{}
	info, err := result.GetExtractedInfo()
	if err == nil && len(info) > 0 {
		fillFromInfo(out, info[0])
	}

	if out.Path == "" {
		// The wrapper could not tell us the filename; fall back to the one
		// file in the scoped output dir.
		path, ferr := singleFileIn(req.OutputDir)
		if ferr != nil {
			return nil, fmt.Errorf("%w: download finished but artifact missing: %v", model.ErrNotFound, ferr)
		}
		out.Path = path
	}

	stat, err := os.Stat(out.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: stat artifact: %v", model.ErrNotFound, err)
	}
	out.Size = stat.Size()

	slog.Debug("extraction complete", "path", out.Path, "size", out.Size, "tier", req.Spec.Tier)
	return out, nil
}

// fillFromInfo copies the metadata the wrapper parsed out of yt-dlp's info
// JSON. Every field is optional on the wire, so each one is nil-guarded.
func fillFromInfo(out *Result, info *ytdlp.ExtractedInfo) {
	if info == nil {
		return
	}
	if info.Filename != nil {
		out.Path = *info.Filename
	}
	if info.Title != nil {
		out.Title = *info.Title
	}
	if info.Duration != nil {
		out.Duration = *info.Duration
	}
	if info.Thumbnail != nil {
		out.Thumbnail = *info.Thumbnail
	}
}

func progressFromUpdate(update ytdlp.ProgressUpdate) Progress {
	p := Progress{ETASec: etaSeconds(update.ETA())}

	if update.TotalBytes > 0 {
		p.Percent = int(float64(update.DownloadedBytes) / float64(update.TotalBytes) * 100)
	}

	if !update.Started.IsZero() {
		elapsed := time.Since(update.Started)
		if elapsed.Seconds() > 0 {
			bytesPerSecond := float64(update.DownloadedBytes) / elapsed.Seconds()
			p.Speed = fmt.Sprintf("%.1fMB/s", bytesPerSecond/1024/1024)
		}
	}

	return p
}

// singleFileIn returns the path of the only regular file in dir, skipping
// yt-dlp's partial-download leftovers.
func singleFileIn(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", err
	}

	var found string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := filepath.Ext(e.Name())
		if ext == ".part" || ext == ".ytdl" {
			continue
		}
		if found != "" {
			return "", fmt.Errorf("multiple files in %s", dir)
		}
		found = filepath.Join(dir, e.Name())
	}

	if found == "" {
		return "", fmt.Errorf("no file in %s", dir)
	}
	return found, nil
}
