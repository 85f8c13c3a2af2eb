package httpserver

import (
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	apperrors "github.com/pscheid92/serverlist/internal/platform/errors"
	"golang.org/x/time/rate"
)

const rateLimiterExpiry = 5 * time.Minute

const (
	limiterAuth = "auth"
	limiterVote = "vote"
)

// rateLimitKey picks the bucket a request is charged to.
type rateLimitKey func(c echo.Context) string

func byClientIP(c echo.Context) string {
	return "ip:" + c.RealIP()
}

// bySession charges requests to the session resolved by sessionMiddleware, so
// voters behind one NAT do not share a bucket.
func bySession(c echo.Context) string {
	if sid := sessionID(c); sid != "" {
		return "sid:" + sid
	}
	return byClientIP(c)
}

// newRateLimiter returns a token-bucket limiter named for metrics and logs.
func (s *Server) newRateLimiter(name string, ratePerSecond float64, burst int, key rateLimitKey) echo.MiddlewareFunc {
	retryAfter := strconv.Itoa(int(math.Ceil(1 / ratePerSecond)))

	store := middleware.NewRateLimiterMemoryStoreWithConfig(
		middleware.RateLimiterMemoryStoreConfig{
			Rate:      rate.Limit(ratePerSecond),
			Burst:     burst,
			ExpiresIn: rateLimiterExpiry,
		},
	)
	return middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		IdentifierExtractor: func(c echo.Context) (string, error) {
			return key(c), nil
		},
		Store: store,
		DenyHandler: func(c echo.Context, _ string, _ error) error {
			slog.DebugContext(c.Request().Context(), "Rate limit exceeded", "limiter", name, "path", c.Path())
			if s.httpMetrics != nil {
				s.httpMetrics.RateLimited.WithLabelValues(name).Inc()
			}

			c.Response().Header().Set("Retry-After", retryAfter)
			resp := apperrors.RateLimitedError("rate limit exceeded").WithContext("limiter", name).ToResponse()
			if err := c.JSON(http.StatusTooManyRequests, resp); err != nil {
				return fmt.Errorf("failed to write rate limit response: %w", err)
			}
			return nil
		},
	})
}
