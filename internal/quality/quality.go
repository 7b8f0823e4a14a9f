// Package quality maps quality tiers to concrete extraction specs and plans
// the downgrade sequence used when an artifact exceeds the size limit.
package quality

import (
	"fmt"

	"github.com/vidfetch/vidfetch-bot/internal/model"
)

// ExtractionSpec is the concrete instruction handed to the extraction
// backend for one tier attempt.
type ExtractionSpec struct {
	Tier      model.Tier
	Format    string // yt-dlp format selector
	AudioOnly bool
}

// Profile describes one quality tier. Profiles are immutable and defined at
// process start; there is exactly one per tier.
type Profile struct {
	Tier      model.Tier
	MaxHeight int // 0 for audio
	Format    string
	// EstimateFactor scales the source's best-format size into a rough
	// expected artifact size for this tier.
	EstimateFactor float64
}

// profiles is ordered high to low, matching model.Tiers().
var profiles = []Profile{
	{
		Tier:           model.TierHD,
		MaxHeight:      1080,
		Format:         "best[height<=1080][ext=mp4]/best[height<=1080]/best[ext=mp4]/best",
		EstimateFactor: 1.0,
	},
	{
		Tier:           model.Tier720p,
		MaxHeight:      720,
		Format:         "best[height<=720][ext=mp4]/best[height<=720]/best[ext=mp4]/best",
		EstimateFactor: 0.6,
	},
	{
		Tier:           model.Tier480p,
		MaxHeight:      480,
		Format:         "best[height<=480][ext=mp4]/best[height<=480]/best[ext=mp4]/best",
		EstimateFactor: 0.35,
	},
	{
		Tier:           model.TierAudio,
		MaxHeight:      0,
		Format:         "bestaudio[ext=m4a]/bestaudio/best",
		EstimateFactor: 0.08,
	},
}

// Profiles returns all profiles ordered from highest to lowest quality.
func Profiles() []Profile {
	out := make([]Profile, len(profiles))
	copy(out, profiles)
	return out
}

// ProfileFor returns the profile for a tier.
func ProfileFor(tier model.Tier) (Profile, error) {
	for _, p := range profiles {
		if p.Tier == tier {
			return p, nil
		}
	}
	return Profile{}, fmt.Errorf("no profile for tier %s", tier)
}

// SpecFor builds the extraction spec for a tier.
func SpecFor(tier model.Tier) (ExtractionSpec, error) {
	p, err := ProfileFor(tier)
	if err != nil {
		return ExtractionSpec{}, err
	}
	return ExtractionSpec{
		Tier:      p.Tier,
		Format:    p.Format,
		AudioOnly: p.Tier == model.TierAudio,
	}, nil
}

// Plan returns the tier sequence for a request: the requested tier first,
// then every lower tier down to audio. The negotiation loop walks this plan
// at most once per tier, which bounds it by the tier count.
func Plan(requested model.Tier) []model.Tier {
	if !requested.IsValid() {
		requested = model.Tier720p
	}

	plan := []model.Tier{requested}
	for t, ok := requested.Lower(); ok; t, ok = t.Lower() {
		plan = append(plan, t)
	}
	return plan
}

// Estimate scales a probed best-format size into an expected size for tier.
// Returns 0 when no probe size is known.
func Estimate(tier model.Tier, probedBest int64) int64 {
	if probedBest <= 0 {
		return 0
	}
	p, err := ProfileFor(tier)
	if err != nil {
		return 0
	}
	return int64(float64(probedBest) * p.EstimateFactor)
}
