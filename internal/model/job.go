package model

import "time"

// DownloadJob represents one end-to-end request to produce and deliver a
// single artifact for one URL. It is owned exclusively by the scheduler for
// its lifetime; all field access goes through the scheduler's lock.
type DownloadJob struct {
	ID            string
	UserID        int64
	ChatID        int64
	URL           string
	RequestedTier Tier
	FinalTier     Tier // tier actually delivered; meaningful once Succeeded
	State         JobState
	Attempts      int // extraction attempts at the current tier
	Cause         FailureCause
	LastError     string // last error message if any
	Title         string
	BytesOut      int64 // delivered artifact size in bytes
	CreatedAt     time.Time
	StartedAt     time.Time
	FinishedAt    time.Time

	// CancelRequested is the cooperative cancellation flag. Workers observe
	// it at stage boundaries, never mid-extraction.
	CancelRequested bool
}

// Downgraded reports whether the delivered tier is lower than requested.
// FinalTier is only ever set at delivery, so the comparison is meaningless
// before that and false by construction.
func (j *DownloadJob) Downgraded() bool {
	return j.FinalTier > j.RequestedTier
}
