// Package api exposes the operational HTTP surface: a health endpoint for
// probes and a read-only stats endpoint backing the dashboard.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/vidfetch/vidfetch-bot/internal/stats"
)

// SchedulerInfo reports the live queue state.
type SchedulerInfo interface {
	ActiveCount() int
	QueuedCount() int
}

// StatsSource answers the dashboard's aggregate queries.
type StatsSource interface {
	Global(ctx context.Context) (*stats.GlobalStats, error)
	Daily(ctx context.Context, days int) ([]stats.DailyStat, error)
	TopUsers(ctx context.Context, k int) ([]stats.TopUser, error)
	TodayDownloads(ctx context.Context) (int64, error)
}

// Pinger checks backing-store connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler contains the HTTP handlers.
type Handler struct {
	sched   SchedulerInfo
	stats   StatsSource
	store   Pinger
	started time.Time
}

// NewHandler creates a handler over the given dependencies.
func NewHandler(sched SchedulerInfo, st StatsSource, store Pinger) *Handler {
	return &Handler{sched: sched, stats: st, store: store, started: time.Now()}
}

// HandleHealth handles GET /health.
// Reports overall status, uptime, live queue counts and store connectivity.
func (h *Handler) HandleHealth(c echo.Context) error {
	ctx := c.Request().Context()

	status := "ok"
	storeStatus := "connected"
	if err := h.store.Ping(ctx); err != nil {
		status = "degraded"
		storeStatus = fmt.Sprintf("error: %v", err)
	}

	today, err := h.stats.TodayDownloads(ctx)
	if err != nil {
		status = "degraded"
	}

	return c.JSON(http.StatusOK, echo.Map{
		"status":          status,
		"store":           storeStatus,
		"uptime_seconds":  int64(time.Since(h.started).Seconds()),
		"active_jobs":     h.sched.ActiveCount(),
		"queued_jobs":     h.sched.QueuedCount(),
		"downloads_today": today,
		"last_checked":    time.Now().UTC().Format(time.RFC3339),
	})
}

// HandleDashboardStats handles GET /dashboard/stats.
// Returns global totals, the per-tier distribution, a trailing 7-day series
// and the top-10 leaderboard.
func (h *Handler) HandleDashboardStats(c echo.Context) error {
	ctx := c.Request().Context()

	global, err := h.stats.Global(ctx)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to retrieve stats"})
	}

	daily, err := h.stats.Daily(ctx, 7)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to retrieve stats"})
	}

	top, err := h.stats.TopUsers(ctx, 10)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to retrieve stats"})
	}

	return c.JSON(http.StatusOK, echo.Map{
		"totals":    global,
		"daily":     daily,
		"top_users": top,
	})
}
