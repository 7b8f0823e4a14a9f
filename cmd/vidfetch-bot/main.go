package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/vidfetch/vidfetch-bot/internal/api"
	"github.com/vidfetch/vidfetch-bot/internal/bot"
	"github.com/vidfetch/vidfetch-bot/internal/compress"
	"github.com/vidfetch/vidfetch-bot/internal/config"
	"github.com/vidfetch/vidfetch-bot/internal/extract"
	"github.com/vidfetch/vidfetch-bot/internal/ratelimit"
	"github.com/vidfetch/vidfetch-bot/internal/scheduler"
	"github.com/vidfetch/vidfetch-bot/internal/stats"
	"github.com/vidfetch/vidfetch-bot/internal/store"
	"github.com/vidfetch/vidfetch-bot/internal/tempfile"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Structured logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel(cfg.LogLevel),
	}))
	slog.SetDefault(logger)

	slog.Info("configuration loaded",
		"http_addr", cfg.HTTPAddr,
		"download_dir", cfg.DownloadDir,
		"max_file_size_mb", cfg.MaxFileSizeMB,
		"max_concurrent", cfg.MaxConcurrent,
		"rate_limit", cfg.RateLimit,
		"rate_limit_window", cfg.RateLimitWindow,
	)

	ctx := context.Background()

	// Connect to the store; fall back to in-process memory when Redis is not
	// reachable, which keeps local runs working at the cost of durability.
	var kv store.Store
	redisStore, err := store.NewRedisStore(ctx, cfg.RedisURL)
	if err != nil {
		slog.Warn("redis unreachable, using in-memory store", "url", cfg.RedisURL, "error", err)
		kv = store.NewMemoryStore()
	} else {
		slog.Info("connected to redis")
		kv = redisStore
	}
	defer kv.Close()

	// Temp artifact manager with its TTL sweep.
	files, err := tempfile.NewManager(cfg.DownloadDir, cfg.TempTTL)
	if err != nil {
		slog.Error("failed to initialize artifact storage", "dir", cfg.DownloadDir, "error", err)
		os.Exit(1)
	}

	sweepCtx, sweepCancel := context.WithCancel(context.Background())
	files.StartSweep(sweepCtx, cfg.SweepInterval)

	// Core services.
	extractor := extract.NewYTDLP()
	compressor := compress.NewService()
	aggregator := stats.NewAggregator(kv)
	limiter := ratelimit.New(kv, int64(cfg.RateLimit), cfg.RateLimitWindow)

	// No chat transport ships yet; outgoing messages always go to the log.
	if cfg.BotToken != "" {
		slog.Warn("bot token is set but no chat transport is wired, ignoring it")
	}
	var messenger bot.Messenger = bot.NewLogMessenger()

	sched := scheduler.New(scheduler.Config{
		Workers:         cfg.MaxConcurrent,
		QueueCapacity:   cfg.QueueCapacity,
		SizeLimit:       cfg.MaxFileSizeBytes(),
		MaxAttempts:     cfg.MaxAttempts,
		ExtractTimeout:  cfg.ExtractTimeout,
		CompressTimeout: cfg.CompressTimeout,
		DeliverTimeout:  cfg.DeliverTimeout,
		Retention:       cfg.JobRetention,
	}, extractor, compressor, files, aggregator, nil)

	b := bot.New(bot.Config{
		SizeLimit: cfg.MaxFileSizeBytes(),
	}, messenger, limiter, sched, extractor,
		bot.NewPreferences(kv), bot.NewSelections(kv, cfg.SelectionTTL), aggregator)

	sched.SetDeliverer(b)
	sched.SetUpdateCallback(b.OnJobUpdate)
	sched.SetProgressCallback(b.OnProgress)

	schedCtx, schedCancel := context.WithCancel(context.Background())
	go sched.Run(schedCtx)

	// HTTP surface. The router's background cleanup stops with the server.
	apiCtx, apiCancel := context.WithCancel(context.Background())
	defer apiCancel()
	handler := api.NewHandler(sched, aggregator, kv)
	e := api.SetupRouter(apiCtx, handler, cfg.HTTPRateRPS, cfg.HTTPRateBurst)

	go func() {
		slog.Info("starting server", "addr", cfg.HTTPAddr)
		if err := e.Start(cfg.HTTPAddr); err != nil {
			slog.Info("server stopped", "reason", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	slog.Info("shutting down", "signal", sig)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	// Stop intake and drain the workers, then stop the sweep.
	schedCancel()
	sched.Wait()
	sweepCancel()
	files.Wait()

	slog.Info("exited cleanly")
}

func logLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}
