package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"

	"github.com/vidfetch/vidfetch-bot/internal/model"
	"github.com/vidfetch/vidfetch-bot/internal/quality"
)

const ytdlpCommand = "yt-dlp"

// probeOutput mirrors the subset of yt-dlp's -J dump we care about.
type probeOutput struct {
	Title    string        `json:"title"`
	Duration float64       `json:"duration"`
	Formats  []probeFormat `json:"formats"`
}

type probeFormat struct {
	Height         int    `json:"height"`
	Filesize       int64  `json:"filesize"`
	FilesizeApprox int64  `json:"filesize_approx"`
	ACodec         string `json:"acodec"`
	VCodec         string `json:"vcodec"`
}

// Probe fetches metadata for url without downloading, by asking the binary
// for its JSON dump.
func (y *YTDLP) Probe(ctx context.Context, url string) (*ProbeInfo, error) {
	cmd := exec.CommandContext(ctx, ytdlpCommand, "-J", "--no-warnings", url)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	if err != nil {
		if ctx.Err() != nil {
			return nil, classifyError(ctx.Err())
		}
		if stderr.Len() > 0 {
			return nil, classifyError(fmt.Errorf("yt-dlp probe: %s", stderr.String()))
		}
		return nil, classifyError(fmt.Errorf("yt-dlp probe: %w", err))
	}

	return parseProbeOutput(out)
}

// parseProbeOutput maps the JSON dump into per-tier size estimates. Video
// tiers take the largest matching format; tiers with no probed format fall
// back to a scaled estimate off the best size seen.
func parseProbeOutput(data []byte) (*ProbeInfo, error) {
	var dump probeOutput
	if err := json.Unmarshal(data, &dump); err != nil {
		return nil, fmt.Errorf("%w: parse probe output: %v", model.ErrNotFound, err)
	}

	info := &ProbeInfo{
		Title:    dump.Title,
		Duration: dump.Duration,
		BySize:   make(map[model.Tier]int64),
	}

	var best int64
	for _, f := range dump.Formats {
		size := f.Filesize
		if size == 0 {
			size = f.FilesizeApprox
		}
		if size == 0 {
			continue
		}
		if size > best {
			best = size
		}

		switch {
		case f.Height >= 1080:
			setIfLarger(info.BySize, model.TierHD, size)
		case f.Height >= 720:
			setIfLarger(info.BySize, model.Tier720p, size)
		case f.Height >= 480:
			setIfLarger(info.BySize, model.Tier480p, size)
		case f.Height == 0 && f.ACodec != "" && f.ACodec != "none":
			setIfLarger(info.BySize, model.TierAudio, size)
		}
	}

	// Fill gaps from the best probed size so every tier shows an estimate.
	for _, tier := range model.Tiers() {
		if _, ok := info.BySize[tier]; !ok {
			if est := quality.Estimate(tier, best); est > 0 {
				info.BySize[tier] = est
			}
		}
	}

	return info, nil
}

func setIfLarger(m map[model.Tier]int64, tier model.Tier, size int64) {
	if size > m[tier] {
		m[tier] = size
	}
}
