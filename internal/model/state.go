package model

// JobState represents the lifecycle state of a download job
type JobState string

const (
	// JobQueued means the job is waiting for a worker slot
	JobQueued JobState = "Queued"

	// JobRunning means a worker is driving the job through its stages
	JobRunning JobState = "Running"

	// JobSucceeded means the artifact was delivered
	JobSucceeded JobState = "Succeeded"

	// JobFailed means the job ended with an unrecoverable error
	JobFailed JobState = "Failed"

	// JobCancelled means the user cancelled before completion
	JobCancelled JobState = "Cancelled"
)

// String returns the string representation of JobState
func (s JobState) String() string {
	return string(s)
}

// IsTerminal returns true if the job can no longer change state
func (s JobState) IsTerminal() bool {
	return s == JobSucceeded || s == JobFailed || s == JobCancelled
}

// CanTransitionTo reports whether the state machine allows moving to next.
// The progression is strict: Queued -> Running -> {Succeeded, Failed,
// Cancelled}, plus Queued -> Cancelled for jobs cancelled before a slot
// was acquired.
func (s JobState) CanTransitionTo(next JobState) bool {
	switch s {
	case JobQueued:
		return next == JobRunning || next == JobCancelled
	case JobRunning:
		return next.IsTerminal()
	default:
		return false
	}
}
