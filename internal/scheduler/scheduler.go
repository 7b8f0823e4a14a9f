// Package scheduler owns download jobs from admission to delivery. A
// buffered FIFO queue feeds a fixed pool of workers, so queue order and the
// global concurrency cap fall out of the same structure: no job can be
// overtaken by a later arrival, and Running jobs never exceed the worker
// count.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/vidfetch/vidfetch-bot/internal/extract"
	"github.com/vidfetch/vidfetch-bot/internal/model"
	"github.com/vidfetch/vidfetch-bot/internal/quality"
	"github.com/vidfetch/vidfetch-bot/internal/tempfile"
)

// Compressor is the compression fallback boundary.
type Compressor interface {
	Compress(ctx context.Context, inputPath string) (string, int64, error)
}

// Recorder receives exactly one Record call per job, on the Succeeded
// transition.
type Recorder interface {
	Record(ctx context.Context, userID int64, tier model.Tier, bytes int64) error
}

// Deliverer hands the finished artifact to the delivery boundary (the chat
// transport).
type Deliverer interface {
	Deliver(ctx context.Context, job model.DownloadJob, artifactPath string) error
}

// Config holds the scheduler's tunables.
type Config struct {
	Workers         int
	QueueCapacity   int
	SizeLimit       int64 // delivery ceiling in bytes
	MaxAttempts     int   // extraction attempts per tier for transient causes
	BackoffBase     time.Duration
	ExtractTimeout  time.Duration
	CompressTimeout time.Duration
	DeliverTimeout  time.Duration
	Retention       time.Duration // how long terminal jobs stay queryable
}

// SubmitRequest describes a job to enqueue.
type SubmitRequest struct {
	UserID int64
	ChatID int64
	URL    string
	Tier   model.Tier
}

// Scheduler drives each job through negotiation, extraction, size checks,
// compression fallback and delivery.
type Scheduler struct {
	cfg        Config
	extractor  extract.Extractor
	compressor Compressor
	files      *tempfile.Manager
	recorder   Recorder
	deliverer  Deliverer

	mu    sync.Mutex
	jobs  map[string]*model.DownloadJob
	queue chan string

	active int64

	onUpdate   func(model.DownloadJob)
	onProgress func(model.DownloadJob, extract.Progress)

	wg   sync.WaitGroup
	done chan struct{}
}

// New creates a scheduler. Zero config fields get working defaults.
func New(cfg Config, ex extract.Extractor, comp Compressor, files *tempfile.Manager, rec Recorder, del Deliverer) *Scheduler {
	if cfg.Workers < 1 {
		cfg.Workers = 5
	}
	if cfg.QueueCapacity < cfg.Workers {
		cfg.QueueCapacity = 100
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 3
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = 2 * time.Second
	}
	if cfg.ExtractTimeout <= 0 {
		cfg.ExtractTimeout = 5 * time.Minute
	}
	if cfg.CompressTimeout <= 0 {
		cfg.CompressTimeout = 5 * time.Minute
	}
	if cfg.DeliverTimeout <= 0 {
		cfg.DeliverTimeout = 2 * time.Minute
	}
	if cfg.Retention <= 0 {
		cfg.Retention = 10 * time.Minute
	}

	return &Scheduler{
		cfg:        cfg,
		extractor:  ex,
		compressor: comp,
		files:      files,
		recorder:   rec,
		deliverer:  del,
		jobs:       make(map[string]*model.DownloadJob),
		queue:      make(chan string, cfg.QueueCapacity),
		done:       make(chan struct{}),
	}
}

// SetDeliverer installs the delivery boundary. The bot is constructed after
// the scheduler (it submits into it), so delivery is wired here rather than
// in New. Must be called before Run.
func (s *Scheduler) SetDeliverer(d Deliverer) {
	s.deliverer = d
}

// SetUpdateCallback registers a callback invoked with a job snapshot on
// every state change.
func (s *Scheduler) SetUpdateCallback(fn func(model.DownloadJob)) {
	s.onUpdate = fn
}

// SetProgressCallback registers a callback for download progress pushes.
func (s *Scheduler) SetProgressCallback(fn func(model.DownloadJob, extract.Progress)) {
	s.onProgress = fn
}

// Run starts the worker pool and the terminal-job eviction sweep, and blocks
// until ctx is cancelled and all workers have drained.
func (s *Scheduler) Run(ctx context.Context) {
	slog.Info("scheduler started", "workers", s.cfg.Workers, "queue_capacity", s.cfg.QueueCapacity)

	for i := 0; i < s.cfg.Workers; i++ {
		s.wg.Add(1)
		go s.worker(ctx, i)
	}

	s.wg.Add(1)
	go s.evictLoop(ctx)

	s.wg.Wait()
	close(s.done)
	slog.Info("scheduler stopped")
}

// Wait blocks until Run has returned.
func (s *Scheduler) Wait() {
	<-s.done
}

// Submit enqueues a new job. It never blocks: a full queue is rejected with
// model.ErrQueueFull.
func (s *Scheduler) Submit(req SubmitRequest) (model.DownloadJob, error) {
	job := &model.DownloadJob{
		ID:            newJobID(),
		UserID:        req.UserID,
		ChatID:        req.ChatID,
		URL:           req.URL,
		RequestedTier: req.Tier,
		State:         model.JobQueued,
		CreatedAt:     time.Now(),
	}

	s.mu.Lock()
	s.jobs[job.ID] = job
	s.mu.Unlock()

	select {
	case s.queue <- job.ID:
	default:
		s.mu.Lock()
		delete(s.jobs, job.ID)
		s.mu.Unlock()
		return model.DownloadJob{}, model.ErrQueueFull
	}

	slog.Info("job queued", "job_id", job.ID, "user_id", req.UserID, "tier", req.Tier.String())
	return *job, nil
}

// Job returns a snapshot of a job while it is active or within the
// retention window.
func (s *Scheduler) Job(id string) (model.DownloadJob, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return model.DownloadJob{}, false
	}
	return *job, true
}

// Cancel requests cooperative cancellation. Queued jobs transition
// immediately; Running jobs observe the flag at the next stage boundary.
func (s *Scheduler) Cancel(id string, userID int64) error {
	s.mu.Lock()
	job, ok := s.jobs[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("job not found: %s", id)
	}
	if job.UserID != userID {
		s.mu.Unlock()
		return fmt.Errorf("job %s does not belong to user %d", id, userID)
	}
	if job.State.IsTerminal() {
		s.mu.Unlock()
		return fmt.Errorf("job already %s", job.State)
	}

	job.CancelRequested = true
	var snapshot model.DownloadJob
	notified := false
	if job.State == model.JobQueued {
		s.transitionLocked(job, model.JobCancelled)
		job.Cause = model.CauseCancelled
		job.FinishedAt = time.Now()
		snapshot = *job
		notified = true
	}
	s.mu.Unlock()

	if notified {
		s.notify(snapshot)
	}
	slog.Info("cancellation requested", "job_id", id, "user_id", userID)
	return nil
}

// ActiveCount returns the number of Running jobs.
func (s *Scheduler) ActiveCount() int {
	return int(atomic.LoadInt64(&s.active))
}

// QueuedCount returns the number of jobs waiting for a worker slot.
func (s *Scheduler) QueuedCount() int {
	return len(s.queue)
}

func (s *Scheduler) worker(ctx context.Context, id int) {
	defer s.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case jobID := <-s.queue:
			s.runJob(ctx, jobID)
		}
	}
}

// runJob drives one job through its stages. Stage boundaries are the only
// points where cancellation is observed and are each bounded by their own
// timeout; the worker holds no lock while blocked on I/O.
func (s *Scheduler) runJob(ctx context.Context, jobID string) {
	s.mu.Lock()
	job, ok := s.jobs[jobID]
	if !ok || job.State != model.JobQueued {
		// Cancelled while queued, or already evicted.
		s.mu.Unlock()
		return
	}
	s.transitionLocked(job, model.JobRunning)
	job.StartedAt = time.Now()
	requested := job.RequestedTier
	snapshot := *job
	s.mu.Unlock()

	atomic.AddInt64(&s.active, 1)
	defer atomic.AddInt64(&s.active, -1)

	s.notify(snapshot)

	handle, err := s.files.Acquire(jobID)
	if err != nil {
		s.fail(jobID, model.CauseUnknown, fmt.Errorf("acquire artifact slot: %w", err))
		return
	}
	defer s.files.Release(handle)

	for _, tier := range quality.Plan(requested) {
		if s.cancelRequested(jobID) {
			s.finishCancelled(jobID)
			return
		}

		spec, err := quality.SpecFor(tier)
		if err != nil {
			s.fail(jobID, model.CauseUnknown, err)
			return
		}

		result, err := s.extractWithRetry(ctx, jobID, spec, handle)
		if err != nil {
			if s.cancelRequested(jobID) {
				s.finishCancelled(jobID)
				return
			}
			s.fail(jobID, model.CauseOf(err), err)
			return
		}

		s.files.Touch(handle)
		s.setTitle(jobID, result.Title)

		if result.Size <= s.cfg.SizeLimit {
			s.deliver(ctx, jobID, tier, result.Path, result.Size)
			return
		}

		slog.Info("artifact over size limit", "job_id", jobID, "tier", tier.String(),
			"size", result.Size, "limit", s.cfg.SizeLimit)

		if s.cancelRequested(jobID) {
			s.finishCancelled(jobID)
			return
		}

		// One compression pass at this tier, then re-check.
		cctx, cancel := context.WithTimeout(ctx, s.cfg.CompressTimeout)
		path, size, cerr := s.compressor.Compress(cctx, result.Path)
		cancel()
		s.files.Touch(handle)

		if cerr == nil && size <= s.cfg.SizeLimit {
			s.deliver(ctx, jobID, tier, path, size)
			return
		}
		if cerr != nil {
			slog.Warn("compression fallback failed, downgrading tier", "job_id", jobID,
				"tier", tier.String(), "error", cerr)
		} else {
			slog.Info("still over limit after compression, downgrading tier", "job_id", jobID,
				"tier", tier.String(), "size", size)
		}
	}

	// Every tier including audio was tried; audio has no further fallback.
	s.fail(jobID, model.CauseSizeExceeded, model.ErrSizeExceeded)
}

// extractWithRetry runs extraction attempts at one tier, retrying transient
// causes with exponential backoff up to the attempt bound. The handle is
// touched before every attempt so the TTL sweep never collects the artifact
// dir while a job is still legitimately working in it.
func (s *Scheduler) extractWithRetry(ctx context.Context, jobID string, spec quality.ExtractionSpec, handle *tempfile.Handle) (*extract.Result, error) {
	var lastErr error

	for attempt := 1; attempt <= s.cfg.MaxAttempts; attempt++ {
		if s.cancelRequested(jobID) {
			return nil, context.Canceled
		}

		if attempt > 1 {
			backoff := s.cfg.BackoffBase << (attempt - 2)
			slog.Info("retrying extraction", "job_id", jobID, "attempt", attempt, "backoff", backoff)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		s.mu.Lock()
		if job, ok := s.jobs[jobID]; ok {
			job.Attempts = attempt
		}
		s.mu.Unlock()

		s.files.Touch(handle)

		attemptCtx, cancel := context.WithTimeout(ctx, s.cfg.ExtractTimeout)
		result, err := s.extractor.Extract(attemptCtx, extract.Request{
			URL:       s.jobURL(jobID),
			Spec:      spec,
			OutputDir: handle.Dir,
		}, func(p extract.Progress) {
			s.progress(jobID, p)
		})
		cancel()

		if err == nil {
			return result, nil
		}

		lastErr = err
		if !model.IsTransient(err) {
			return nil, err
		}
		slog.Warn("transient extraction failure", "job_id", jobID, "attempt", attempt, "error", err)
	}

	return nil, lastErr
}

// deliver hands the artifact to the delivery boundary and settles the job.
func (s *Scheduler) deliver(ctx context.Context, jobID string, tier model.Tier, path string, size int64) {
	if s.cancelRequested(jobID) {
		s.finishCancelled(jobID)
		return
	}

	s.mu.Lock()
	job, ok := s.jobs[jobID]
	if !ok {
		s.mu.Unlock()
		return
	}
	job.FinalTier = tier
	job.BytesOut = size
	snapshot := *job
	s.mu.Unlock()

	dctx, cancel := context.WithTimeout(ctx, s.cfg.DeliverTimeout)
	err := s.deliverer.Deliver(dctx, snapshot, path)
	cancel()

	if err != nil {
		s.fail(jobID, model.CauseOf(err), fmt.Errorf("deliver artifact: %w", err))
		return
	}

	s.mu.Lock()
	s.transitionLocked(job, model.JobSucceeded)
	job.FinishedAt = time.Now()
	snapshot = *job
	s.mu.Unlock()

	// The Succeeded transition happens exactly once per job, so stats see
	// each download exactly once. A stats outage must not fail a job whose
	// artifact is already with the user.
	if err := s.recorder.Record(ctx, snapshot.UserID, tier, size); err != nil {
		slog.Error("failed to record completed download", "job_id", jobID, "error", err)
	}

	slog.Info("job succeeded", "job_id", jobID, "tier", tier.String(), "bytes", size,
		"downgraded", snapshot.Downgraded())
	s.notify(snapshot)
}

func (s *Scheduler) fail(jobID string, cause model.FailureCause, err error) {
	s.mu.Lock()
	job, ok := s.jobs[jobID]
	if !ok || job.State.IsTerminal() {
		s.mu.Unlock()
		return
	}
	s.transitionLocked(job, model.JobFailed)
	job.Cause = cause
	if err != nil {
		job.LastError = err.Error()
	}
	job.FinishedAt = time.Now()
	snapshot := *job
	s.mu.Unlock()

	slog.Warn("job failed", "job_id", jobID, "cause", string(cause), "error", snapshot.LastError)
	s.notify(snapshot)
}

func (s *Scheduler) finishCancelled(jobID string) {
	s.mu.Lock()
	job, ok := s.jobs[jobID]
	if !ok || job.State.IsTerminal() {
		s.mu.Unlock()
		return
	}
	s.transitionLocked(job, model.JobCancelled)
	job.Cause = model.CauseCancelled
	job.FinishedAt = time.Now()
	snapshot := *job
	s.mu.Unlock()

	slog.Info("job cancelled", "job_id", jobID)
	s.notify(snapshot)
}

// transitionLocked applies a state change, enforcing the strict progression.
// Caller holds the lock.
func (s *Scheduler) transitionLocked(job *model.DownloadJob, next model.JobState) {
	if !job.State.CanTransitionTo(next) {
		slog.Error("illegal job state transition", "job_id", job.ID,
			"from", job.State.String(), "to", next.String())
		return
	}
	job.State = next
}

func (s *Scheduler) cancelRequested(jobID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	return ok && job.CancelRequested
}

func (s *Scheduler) jobURL(jobID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if job, ok := s.jobs[jobID]; ok {
		return job.URL
	}
	return ""
}

func (s *Scheduler) setTitle(jobID, title string) {
	if title == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if job, ok := s.jobs[jobID]; ok && job.Title == "" {
		job.Title = title
	}
}

func (s *Scheduler) progress(jobID string, p extract.Progress) {
	if s.onProgress == nil {
		return
	}
	s.mu.Lock()
	job, ok := s.jobs[jobID]
	if !ok {
		s.mu.Unlock()
		return
	}
	snapshot := *job
	s.mu.Unlock()
	s.onProgress(snapshot, p)
}

func (s *Scheduler) notify(job model.DownloadJob) {
	if s.onUpdate != nil {
		s.onUpdate(job)
	}
}

// evictLoop drops terminal jobs once their retention window passes, keeping
// the active set bounded while status queries stay answerable for a while.
func (s *Scheduler) evictLoop(ctx context.Context) {
	defer s.wg.Done()

	interval := s.cfg.Retention / 2
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-s.cfg.Retention)
			s.mu.Lock()
			for id, job := range s.jobs {
				if job.State.IsTerminal() && job.FinishedAt.Before(cutoff) {
					delete(s.jobs, id)
				}
			}
			s.mu.Unlock()
		}
	}
}

func newJobID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return fmt.Sprintf("job-%d", time.Now().UnixNano())
	}
	return "job-" + id.String()
}
