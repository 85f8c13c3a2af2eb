package httpserver

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pscheid92/serverlist/internal/adapter/metrics"
	apperrors "github.com/pscheid92/serverlist/internal/platform/errors"
)

func (s *Server) registerRoutes() {
	s.echo.Use(correlationMiddleware)
	s.echo.Use(s.setupRequestLoggerMiddleware())
	s.echo.Use(middleware.Recover())
	if s.httpMetrics != nil {
		s.echo.Use(s.httpMetrics.Middleware())
	}
	s.echo.Use(apperrors.Middleware(s.errorMetrics, translateError))
	s.echo.Use(middleware.SecureWithConfig(middleware.SecureConfig{
		XSSProtection:      "",
		ContentTypeNosniff: "nosniff",
		XFrameOptions:      "DENY",
		HSTSMaxAge:         63072000, // 2 years; only sent over HTTPS
		HSTSPreloadEnabled: true,
		ContentSecurityPolicy: "default-src 'self'; " +
			"img-src 'self' data:; " +
			"frame-ancestors 'none'",
		ReferrerPolicy: "strict-origin-when-cross-origin",
	}))

	csrfMiddleware := s.setupCSRFMiddleware()
	authRateLimiter := s.newRateLimiter(limiterAuth, s.config.AuthRateLimit, s.config.AuthRateBurst, byClientIP)
	voteRateLimiter := s.newRateLimiter(limiterVote, s.config.VoteRateLimit, s.config.VoteRateBurst, bySession)

	s.registerHealthRoutes()
	if s.registry != nil {
		s.echo.GET("/metrics", echo.WrapHandler(metrics.Handler(s.registry)))
	}

	s.registerAuthRoutes(csrfMiddleware, authRateLimiter)
	s.registerDashboardRoutes(csrfMiddleware)
	s.registerListingRoutes(csrfMiddleware, voteRateLimiter)
	s.registerStreamRoutes()
}

func (s *Server) setupRequestLoggerMiddleware() echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:  true,
		LogURI:     true,
		LogMethod:  true,
		LogLatency: true,
		LogError:   true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			attrs := []any{
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency", v.Latency,
			}
			if v.Error != nil {
				attrs = append(attrs, "error", v.Error)
			}
			slog.InfoContext(c.Request().Context(), "Request", attrs...)
			return nil
		},
	})
}

func (s *Server) setupCSRFMiddleware() echo.MiddlewareFunc {
	return middleware.CSRFWithConfig(middleware.CSRFConfig{
		TokenLookup:    "header:" + csrfHeaderName + ",form:" + csrfFormFieldName,
		ContextKey:     contextKeyCSRF,
		CookieName:     csrfCookieName,
		CookiePath:     "/",
		CookieMaxAge:   int(s.config.SessionMaxAge.Seconds()),
		CookieHTTPOnly: true,
		CookieSecure:   s.config.IsProduction(),
		CookieSameSite: http.SameSiteStrictMode,
	})
}
