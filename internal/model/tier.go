package model

import "fmt"

// Tier is a discrete output-quality level, totally ordered from largest to
// smallest expected artifact size.
type Tier int

const (
	// TierHD targets 1080p video
	TierHD Tier = iota

	// Tier720p targets 720p video
	Tier720p

	// Tier480p targets 480p video
	Tier480p

	// TierAudio extracts the audio track only; it is the last fallback
	TierAudio
)

// Tiers returns all tiers ordered from highest to lowest quality.
func Tiers() []Tier {
	return []Tier{TierHD, Tier720p, Tier480p, TierAudio}
}

// String returns the storage/display name of the tier.
func (t Tier) String() string {
	switch t {
	case TierHD:
		return "hd"
	case Tier720p:
		return "720p"
	case Tier480p:
		return "480p"
	case TierAudio:
		return "audio"
	}
	return fmt.Sprintf("tier(%d)", int(t))
}

// Label returns the user-facing name of the tier.
func (t Tier) Label() string {
	switch t {
	case TierHD:
		return "HD (1080p)"
	case Tier720p:
		return "SD (720p)"
	case Tier480p:
		return "SD (480p)"
	case TierAudio:
		return "Audio Only"
	}
	return t.String()
}

// IsValid reports whether t is a member of the closed tier set.
func (t Tier) IsValid() bool {
	return t >= TierHD && t <= TierAudio
}

// Lower returns the next smaller tier. The second return value is false when
// t is already the smallest tier.
func (t Tier) Lower() (Tier, bool) {
	if !t.IsValid() || t == TierAudio {
		return t, false
	}
	return t + 1, true
}

// ParseTier maps a stored tier name back to its Tier value.
func ParseTier(s string) (Tier, error) {
	for _, t := range Tiers() {
		if t.String() == s {
			return t, nil
		}
	}
	return 0, fmt.Errorf("unknown quality tier: %q", s)
}
