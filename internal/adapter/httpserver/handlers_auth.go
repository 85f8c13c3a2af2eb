package httpserver

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pscheid92/serverlist/internal/app"
	"github.com/pscheid92/serverlist/internal/domain"
	apperrors "github.com/pscheid92/serverlist/internal/platform/errors"
)

const dashboardPath = "/dashboard"

func (s *Server) registerAuthRoutes(csrfMiddleware, rateLimiter echo.MiddlewareFunc) {
	auth := s.echo.Group("/auth", s.sessionMiddleware, csrfMiddleware)

	auth.GET("/login", s.handleLoginPage)
	auth.POST("/login", s.handleLogin, rateLimiter)
	auth.POST("/register", s.handleRegister, rateLimiter)
	auth.POST("/logout", s.handleLogout)
}

// handleLoginPage is the login entry point. Signed-in visitors go straight to the dashboard.
func (s *Server) handleLoginPage(c echo.Context) error {
	if identity(c) != nil {
		if err := c.Redirect(http.StatusFound, dashboardPath); err != nil {
			return fmt.Errorf("failed to redirect: %w", err)
		}
		return nil
	}

	resp := sessionResponse{
		Header:    app.PresentSession(authState(c)),
		CSRFToken: csrfToken(c),
	}
	if err := c.JSON(http.StatusOK, resp); err != nil {
		return fmt.Errorf("failed to write login response: %w", err)
	}
	return nil
}

func (s *Server) handleLogin(c echo.Context) error {
	var req credentialsRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.ValidationError("invalid request body").WithCause(err)
	}

	newSID, ident, err := s.identity.SignIn(c.Request().Context(), sessionID(c), req.Email, req.Password)
	if err != nil {
		return err
	}
	return s.completeSignIn(c, http.StatusOK, newSID, ident)
}

func (s *Server) handleRegister(c echo.Context) error {
	var req credentialsRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.ValidationError("invalid request body").WithCause(err)
	}

	newSID, ident, err := s.identity.Register(c.Request().Context(), sessionID(c), req.Email, req.Password)
	if err != nil {
		return err
	}
	return s.completeSignIn(c, http.StatusCreated, newSID, ident)
}

// completeSignIn points the cookie at the rotated session ID.
func (s *Server) completeSignIn(c echo.Context, status int, newSID string, ident domain.Identity) error {
	if err := s.writeSessionID(c, newSID); err != nil {
		return apperrors.InternalError("failed to save session", err)
	}
	slog.InfoContext(c.Request().Context(), "User signed in", "user_id", ident.UID)

	resp := authResponse{
		Header:   app.PresentSession(domain.AuthState{SessionID: newSID, Identity: &ident}),
		Redirect: dashboardPath,
	}
	if err := c.JSON(status, resp); err != nil {
		return fmt.Errorf("failed to write sign-in response: %w", err)
	}
	return nil
}

// handleLogout returns before sign-out completes. Open pages learn about it
// through the session stream.
func (s *Server) handleLogout(c echo.Context) error {
	s.presenter.Logout(c.Request().Context(), sessionID(c))
	return c.NoContent(http.StatusAccepted)
}
