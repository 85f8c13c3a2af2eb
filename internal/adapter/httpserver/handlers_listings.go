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

func (s *Server) registerListingRoutes(csrfMiddleware, voteRateLimiter echo.MiddlewareFunc) {
	api := s.echo.Group("/api", s.sessionMiddleware, csrfMiddleware)

	api.GET("/session", s.handleSession)
	api.GET("/servers", s.handleListServers)
	api.POST("/servers", s.handleCreateServer)
	api.GET("/servers/:id", s.handleGetServer)
	api.PATCH("/servers/:id", s.handleUpdateServer)
	api.DELETE("/servers/:id", s.handleDeleteServer)
	api.GET("/servers/:id/status", s.handleServerStatus)
	api.POST("/servers/:id/vote", s.handleVote, voteRateLimiter)
	api.POST("/servers/:id/verify", s.handleVerify)
}

func (s *Server) handleSession(c echo.Context) error {
	resp := sessionResponse{
		Header:    app.PresentSession(authState(c)),
		CSRFToken: csrfToken(c),
	}
	if err := c.JSON(http.StatusOK, resp); err != nil {
		return fmt.Errorf("failed to write session response: %w", err)
	}
	return nil
}

func (s *Server) handleListServers(c echo.Context) error {
	key := app.ParseSortKey(c.QueryParam("sort"))
	state, listings, err := s.view.Snapshot(c.Request().Context(), key, c.QueryParam("q"))
	if err != nil {
		return err
	}

	resp := listResponse{State: state, Servers: toListingResponses(listings, identity(c))}
	if err := c.JSON(http.StatusOK, resp); err != nil {
		return fmt.Errorf("failed to write list response: %w", err)
	}
	return nil
}

func (s *Server) handleGetServer(c echo.Context) error {
	listing, err := s.listings.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	if err := c.JSON(http.StatusOK, toListingResponse(*listing, identity(c))); err != nil {
		return fmt.Errorf("failed to write listing response: %w", err)
	}
	return nil
}

func (s *Server) handleCreateServer(c echo.Context) error {
	var req listingRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.ValidationError("invalid request body").WithCause(err)
	}
	input, err := req.toInput()
	if err != nil {
		return err
	}

	id, err := s.listings.Create(c.Request().Context(), identity(c), input)
	s.observeMutation("create", err)
	if err != nil {
		return err
	}

	if err := c.JSON(http.StatusCreated, map[string]string{"id": id}); err != nil {
		return fmt.Errorf("failed to write create response: %w", err)
	}
	return nil
}

// handleUpdateServer applies a partial edit. The optional owner query parameter is
// the client's belief about the owner and must agree with the stored record.
func (s *Server) handleUpdateServer(c echo.Context) error {
	// Body only: binding path params would smuggle "id" into the patch.
	var body map[string]any
	if err := (&echo.DefaultBinder{}).BindBody(c, &body); err != nil {
		return apperrors.ValidationError("invalid request body").WithCause(err)
	}
	fields, err := patchFields(body)
	if err != nil {
		return err
	}
	patch, err := domain.ParseListingPatch(fields)
	if err != nil {
		return err
	}

	err = s.listings.Update(c.Request().Context(), identity(c), c.Param("id"), patch, c.QueryParam("owner"))
	s.observeMutation("update", err)
	if err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleDeleteServer(c echo.Context) error {
	err := s.listings.Delete(c.Request().Context(), identity(c), c.Param("id"), c.QueryParam("owner"))
	s.observeMutation("delete", err)
	if err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// handleServerStatus checks one listing's live status. Check failures are not
// errors; they report the server as offline.
func (s *Server) handleServerStatus(c echo.Context) error {
	ctx := c.Request().Context()
	listing, err := s.listings.Get(ctx, c.Param("id"))
	if err != nil {
		return err
	}

	status := s.status.Check(ctx, listing.IP, listing.EffectivePort(), s.config.StatusBedrock)
	if err := c.JSON(http.StatusOK, status); err != nil {
		return fmt.Errorf("failed to write status response: %w", err)
	}
	return nil
}

func (s *Server) handleVote(c echo.Context) error {
	ident := identity(c)
	id := c.Param("id")

	var req voteRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.ValidationError("invalid request body").WithCause(err)
	}

	var snapshot *domain.Listing
	if req.Voted != nil && ident != nil {
		snapshot = &domain.Listing{ID: id, Voters: []string{}}
		if *req.Voted {
			snapshot.Voters = []string{ident.UID}
		}
	}

	voted, err := s.listings.Vote(c.Request().Context(), ident, id, snapshot)
	if err != nil {
		s.observeVoteFailure(err)
		return err
	}
	s.observeVote(voted)

	if err := c.JSON(http.StatusOK, voteResponse{Voted: voted}); err != nil {
		return fmt.Errorf("failed to write vote response: %w", err)
	}
	return nil
}

func (s *Server) handleVerify(c echo.Context) error {
	var req verifyRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.ValidationError("invalid request body").WithCause(err)
	}

	err := s.listings.SetVerified(c.Request().Context(), identity(c), c.Param("id"), req.Verified)
	s.observeMutation("verify", err)
	if err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) observeMutation(operation string, err error) {
	if s.listingMetrics != nil {
		s.listingMetrics.Mutations.WithLabelValues(operation, errorKind(err)).Inc()
	}
}

func (s *Server) observeVote(voted bool) {
	if s.voteMetrics == nil {
		return
	}
	direction := "retract"
	if voted {
		direction = "cast"
	}
	s.voteMetrics.VotesApplied.WithLabelValues(direction).Inc()
}

func (s *Server) observeVoteFailure(err error) {
	if s.voteMetrics != nil {
		s.voteMetrics.VoteFailures.WithLabelValues(errorKind(err)).Inc()
	}
	slog.Debug("Vote rejected", "error", err)
}
