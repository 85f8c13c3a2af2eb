package httpserver

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pscheid92/serverlist/internal/app"
)

func (s *Server) registerDashboardRoutes(csrfMiddleware echo.MiddlewareFunc) {
	s.echo.GET(dashboardPath, s.handleDashboard, s.sessionMiddleware, csrfMiddleware)
}

// handleDashboard lists the caller's own servers. Without a session the gate
// redirects to the login entry point.
func (s *Server) handleDashboard(c echo.Context) error {
	state := authState(c)
	if d := s.gate.Decide(state); !d.Allow {
		if err := c.Redirect(http.StatusFound, d.Redirect); err != nil {
			return fmt.Errorf("failed to redirect: %w", err)
		}
		return nil
	}

	ctx := c.Request().Context()
	own, err := s.listings.List(ctx, state.Identity.UID)
	if err != nil {
		return err
	}
	app.SortListings(own, app.SortNewest, s.config.Locale())

	resp := dashboardResponse{
		Header:  app.PresentSession(state),
		Servers: toListingResponses(own, state.Identity),
		IsAdmin: s.listings.IsAdmin(ctx, state.Identity.UID),
	}
	if err := c.JSON(http.StatusOK, resp); err != nil {
		return fmt.Errorf("failed to write dashboard response: %w", err)
	}
	return nil
}
