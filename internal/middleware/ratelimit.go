package middleware

import (
	"time"

	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"
)

// RateLimit limits each client IP to limit requests per second with the
// given burst. Idle clients are forgotten after expiresIn.
func RateLimit(limit rate.Limit, burst int, expiresIn time.Duration) echo.MiddlewareFunc {
	store := echomiddleware.NewRateLimiterMemoryStoreWithConfig(echomiddleware.RateLimiterMemoryStoreConfig{
		Rate:      limit,
		Burst:     burst,
		ExpiresIn: expiresIn,
	})
	return echomiddleware.RateLimiterWithConfig(echomiddleware.RateLimiterConfig{
		Store: store,
		IdentifierExtractor: func(c echo.Context) (string, error) {
			return c.RealIP(), nil
		},
	})
}

// LoginRateLimit allows ten attempts per client IP every fifteen minutes.
func LoginRateLimit() echo.MiddlewareFunc {
	return RateLimit(rate.Every(15*time.Minute/10), 10, 15*time.Minute)
}
