package app

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"

	"github.com/Merilairon/colruyt-scraper/config"
	"github.com/Merilairon/colruyt-scraper/metrics"
)

// NewEcho assembles the read API server: logging, recovery, per-client
// rate limiting, request metrics and all read routes.
func NewEcho(cfg config.APIConfig, handler *Handler) *echo.Echo {
	e := echo.New()
	e.HideBanner = true

	limit := cfg.RateLimit
	if limit <= 0 {
		limit = 20
	}
	limiter := middleware.RateLimiterConfig{
		Skipper: middleware.DefaultSkipper,
		Store: middleware.NewRateLimiterMemoryStoreWithConfig(
			middleware.RateLimiterMemoryStoreConfig{
				Rate:      rate.Limit(limit),
				Burst:     limit * 2,
				ExpiresIn: 3 * time.Minute,
			}),
		IdentifierExtractor: func(c echo.Context) (string, error) {
			return c.RealIP(), nil
		},
		ErrorHandler: func(c echo.Context, err error) error {
			return c.JSON(http.StatusTooManyRequests, map[string]string{"error": "rate limit exceeded"})
		},
		DenyHandler: func(c echo.Context, identifier string, err error) error {
			return c.JSON(http.StatusTooManyRequests, map[string]string{"error": "rate limit exceeded"})
		},
	}

	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.RateLimiterWithConfig(limiter))
	e.Use(requestMetrics)

	handler.Register(e)
	e.GET("/metrics", echo.WrapHandler(metrics.MetricsHandler()))
	return e
}

// requestMetrics records one counter and duration sample per request.
func requestMetrics(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		err := next(c)
		if err != nil {
			c.Error(err)
		}
		metrics.RecordRequest(c.Request().Method, c.Path(), c.Response().Status, time.Since(start))
		return nil
	}
}
