package api

import (
	"context"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// SetupRouter creates and configures the echo router with all routes and
// middleware. ctx bounds the rate limiter's background cleanup.
func SetupRouter(ctx context.Context, handler *Handler, rps float64, burst int) *echo.Echo {
	e := echo.New()
	e.HideBanner = true

	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "OPTIONS"},
		AllowHeaders: []string{"Content-Type"},
	}))
	e.Use(RequestLogger())

	limiter := NewRateLimiter(ctx, rps, burst)

	e.GET("/health", handler.HandleHealth)
	e.GET("/dashboard/stats", handler.HandleDashboardStats, limiter.Middleware())

	return e
}
