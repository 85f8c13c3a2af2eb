package httpserver

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pscheid92/serverlist/internal/platform/version"
	"golang.org/x/sync/errgroup"
)

const (
	startupProbeTimeout   = 2 * time.Second
	readinessProbeTimeout = 5 * time.Second
)

const (
	healthReady     = "ready"
	healthDegraded  = "degraded"
	healthUnhealthy = "unhealthy"
)

// HealthCheck is a named probe. An Optional check that fails marks the
// instance degraded but keeps it in rotation.
type HealthCheck struct {
	Name     string
	Check    func(ctx context.Context) error
	Optional bool
}

type healthReport struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

func (s *Server) registerHealthRoutes() {
	s.echo.GET("/health/startup", s.handleStartup)
	s.echo.GET("/health/live", s.handleLiveness)
	s.echo.GET("/health/ready", s.handleReadiness)
	s.echo.GET("/version", s.handleVersion)
}

func (s *Server) handleStartup(c echo.Context) error {
	return s.runHealthChecks(c, startupProbeTimeout)
}

func (s *Server) handleLiveness(c echo.Context) error {
	response := map[string]any{
		"status":  "ok",
		"uptime":  s.clock.Since(s.startTime).Seconds(),
		"version": version.Version,
	}
	if err := c.JSON(http.StatusOK, response); err != nil {
		return fmt.Errorf("failed to write liveness response: %w", err)
	}
	return nil
}

func (s *Server) handleReadiness(c echo.Context) error {
	return s.runHealthChecks(c, readinessProbeTimeout)
}

// runHealthChecks probes every dependency concurrently and reports each result.
func (s *Server) runHealthChecks(c echo.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), timeout)
	defer cancel()

	results := make([]error, len(s.healthChecks))
	var g errgroup.Group
	for i, hc := range s.healthChecks {
		g.Go(func() error {
			results[i] = hc.Check(ctx)
			return nil
		})
	}
	_ = g.Wait()

	report := healthReport{Status: healthReady, Checks: make(map[string]string, len(results))}
	for i, hc := range s.healthChecks {
		err := results[i]
		if err == nil {
			report.Checks[hc.Name] = "ok"
			continue
		}
		report.Checks[hc.Name] = err.Error()
		switch {
		case !hc.Optional:
			report.Status = healthUnhealthy
		case report.Status == healthReady:
			report.Status = healthDegraded
		}
	}

	code := http.StatusOK
	if report.Status == healthUnhealthy {
		code = http.StatusServiceUnavailable
	}
	if err := c.JSON(code, report); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func (s *Server) handleVersion(c echo.Context) error {
	if err := c.JSON(http.StatusOK, version.Get()); err != nil {
		return fmt.Errorf("failed to write version response: %w", err)
	}
	return nil
}
