// Package tempfile owns the lifecycle of on-disk artifacts. Every job gets a
// scoped directory through Acquire; Release deletes it immediately and is
// idempotent. A background sweep deletes any handle idle for longer than the
// TTL even if Release was never called, which is the safety net against
// leaked files from crashed jobs. Workers keep long-running jobs alive with
// Touch at stage boundaries, so the sweep never deletes under an in-flight
// job.
package tempfile

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Handle is an exclusively owned slot for one job's output. Release (or the
// sweep) must be the last operation on a handle.
type Handle struct {
	ID        string
	JobID     string
	Dir       string
	CreatedAt time.Time

	// lastActive drives the TTL sweep; guarded by the manager's lock.
	lastActive time.Time
}

// Manager tracks live handles and runs the TTL sweep.
type Manager struct {
	baseDir string
	ttl     time.Duration

	mu      sync.Mutex
	handles map[string]*Handle

	done chan struct{}
}

// NewManager creates a manager rooted at baseDir with the given handle TTL.
func NewManager(baseDir string, ttl time.Duration) (*Manager, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create work dir: %w", err)
	}
	return &Manager{
		baseDir: baseDir,
		ttl:     ttl,
		handles: make(map[string]*Handle),
		done:    make(chan struct{}),
	}, nil
}

// Acquire creates a scoped directory for a job's output.
func (m *Manager) Acquire(jobID string) (*Handle, error) {
	id := newHandleID()
	dir := filepath.Join(m.baseDir, id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create artifact dir: %w", err)
	}

	now := time.Now()
	h := &Handle{
		ID:         id,
		JobID:      jobID,
		Dir:        dir,
		CreatedAt:  now,
		lastActive: now,
	}

	m.mu.Lock()
	m.handles[id] = h
	m.mu.Unlock()

	return h, nil
}

// Touch marks the handle as still in use, restarting its TTL. Workers call
// it at stage boundaries so a job legitimately running longer than the TTL
// never has its directory swept out from under it.
func (m *Manager) Touch(h *Handle) {
	if h == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if tracked, ok := m.handles[h.ID]; ok {
		tracked.lastActive = time.Now()
	}
}

// Release deletes the handle's backing data. Double release is a no-op, as
// is releasing a handle the sweep already collected.
func (m *Manager) Release(h *Handle) {
	if h == nil {
		return
	}

	m.mu.Lock()
	_, live := m.handles[h.ID]
	delete(m.handles, h.ID)
	m.mu.Unlock()

	if !live {
		return
	}

	if err := os.RemoveAll(h.Dir); err != nil {
		slog.Error("failed to delete artifact dir", "handle", h.ID, "dir", h.Dir, "error", err)
		return
	}
	slog.Debug("released artifact", "handle", h.ID, "job_id", h.JobID)
}

// Live returns the number of currently tracked handles.
func (m *Manager) Live() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.handles)
}

// StartSweep runs the TTL sweep every interval until ctx is cancelled.
func (m *Manager) StartSweep(ctx context.Context, interval time.Duration) {
	slog.Info("artifact sweep started", "interval", interval, "ttl", m.ttl)

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				m.sweep()
			case <-ctx.Done():
				slog.Info("artifact sweep stopping")
				close(m.done)
				return
			}
		}
	}()
}

// Wait blocks until the sweep has fully stopped.
func (m *Manager) Wait() {
	<-m.done
}

// sweep removes tracked handles idle past the TTL, then any orphan
// directories under the base dir older than the TTL (left behind by a
// previous process).
func (m *Manager) sweep() {
	cutoff := time.Now().Add(-m.ttl)

	m.mu.Lock()
	var expired []*Handle
	for _, h := range m.handles {
		if h.lastActive.Before(cutoff) {
			expired = append(expired, h)
			delete(m.handles, h.ID)
		}
	}
	tracked := make(map[string]bool, len(m.handles))
	for id := range m.handles {
		tracked[id] = true
	}
	m.mu.Unlock()

	for _, h := range expired {
		if err := os.RemoveAll(h.Dir); err != nil {
			slog.Error("sweep failed to delete artifact dir", "dir", h.Dir, "error", err)
			continue
		}
		slog.Info("swept expired artifact", "handle", h.ID, "job_id", h.JobID, "idle", time.Since(h.lastActive).Round(time.Second))
	}

	entries, err := os.ReadDir(m.baseDir)
	if err != nil {
		slog.Error("sweep failed to scan work dir", "dir", m.baseDir, "error", err)
		return
	}

	for _, e := range entries {
		if !e.IsDir() || tracked[e.Name()] {
			continue
		}
		info, err := e.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		orphan := filepath.Join(m.baseDir, e.Name())
		if err := os.RemoveAll(orphan); err != nil {
			slog.Error("sweep failed to delete orphan dir", "dir", orphan, "error", err)
			continue
		}
		slog.Info("swept orphan artifact dir", "dir", orphan)
	}
}

func newHandleID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return fmt.Sprintf("artifact-%d", time.Now().UnixNano())
	}
	return id.String()
}
