package httpserver

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/sessions"
	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/pscheid92/serverlist/internal/adapter/metrics"
	"github.com/pscheid92/serverlist/internal/app"
	"github.com/pscheid92/serverlist/internal/domain"
	"github.com/pscheid92/serverlist/internal/platform/config"
	apperrors "github.com/pscheid92/serverlist/internal/platform/errors"
)

type listingService interface {
	Create(ctx context.Context, ident *domain.Identity, input domain.ListingInput) (string, error)
	List(ctx context.Context, ownerID string) ([]domain.Listing, error)
	Get(ctx context.Context, id string) (*domain.Listing, error)
	Update(ctx context.Context, ident *domain.Identity, id string, patch domain.ListingPatch, expectedOwnerID string) error
	Delete(ctx context.Context, ident *domain.Identity, id string, expectedOwnerID string) error
	Vote(ctx context.Context, ident *domain.Identity, id string, snapshot *domain.Listing) (bool, error)
	IsAdmin(ctx context.Context, uid string) bool
	SetVerified(ctx context.Context, ident *domain.Identity, id string, verified bool) error
}

type listView interface {
	Snapshot(ctx context.Context, key app.SortKey, term string) (app.ViewState, []domain.Listing, error)
	Stream(ctx context.Context, key app.SortKey, term string, emit func(app.ViewEvent) error) error
}

type identityProvider interface {
	NewSessionID() string
	Register(ctx context.Context, sessionID, email, password string) (string, domain.Identity, error)
	SignIn(ctx context.Context, sessionID, email, password string) (string, domain.Identity, error)
	Current(ctx context.Context, sessionID string) (*domain.Identity, error)
}

type sessionPresenter interface {
	Attach(ctx context.Context, sessionID string, render func(app.HeaderView)) (func(), error)
	Logout(ctx context.Context, sessionID string)
}

type sessionGate interface {
	Decide(state domain.AuthState) app.Decision
	Guard(ctx context.Context, sessionID string, redirect func(path string)) (func(), error)
}

// Deps are the collaborators the server routes requests to. Metrics fields may be nil.
type Deps struct {
	Listings  listingService
	View      listView
	Status    domain.StatusChecker
	Identity  identityProvider
	Presenter sessionPresenter
	Gate      sessionGate
	Clock     clockwork.Clock

	Registry       *prometheus.Registry
	HTTPMetrics    *metrics.HTTPMetrics
	WSMetrics      *metrics.WebSocketMetrics
	VoteMetrics    *metrics.VoteMetrics
	ListingMetrics *metrics.ListingMetrics
	ErrorMetrics   *apperrors.Metrics

	HealthChecks []HealthCheck
}

type Server struct {
	echo   *echo.Echo
	config *config.Config
	clock  clockwork.Clock

	listings  listingService
	view      listView
	status    domain.StatusChecker
	identity  identityProvider
	presenter sessionPresenter
	gate      sessionGate

	registry       *prometheus.Registry
	httpMetrics    *metrics.HTTPMetrics
	wsMetrics      *metrics.WebSocketMetrics
	voteMetrics    *metrics.VoteMetrics
	listingMetrics *metrics.ListingMetrics
	errorMetrics   *apperrors.Metrics

	sessionStore  *sessions.CookieStore
	healthChecks  []HealthCheck
	startTime     time.Time
	wsConnections atomic.Int64
}

func NewServer(cfg *config.Config, deps Deps) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	clock := deps.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	srv := &Server{
		echo:           e,
		config:         cfg,
		clock:          clock,
		listings:       deps.Listings,
		view:           deps.View,
		status:         deps.Status,
		identity:       deps.Identity,
		presenter:      deps.Presenter,
		gate:           deps.Gate,
		registry:       deps.Registry,
		httpMetrics:    deps.HTTPMetrics,
		wsMetrics:      deps.WSMetrics,
		voteMetrics:    deps.VoteMetrics,
		listingMetrics: deps.ListingMetrics,
		errorMetrics:   deps.ErrorMetrics,
		sessionStore:   setupSessionStore(cfg),
		healthChecks:   deps.HealthChecks,
		startTime:      clock.Now(),
	}

	srv.registerRoutes()

	return srv
}

func (s *Server) Start() error {
	slog.Info("Starting server", "port", s.config.Port)
	if err := s.echo.Start(":" + s.config.Port); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	return nil
}

func setupSessionStore(cfg *config.Config) *sessions.CookieStore {
	store := sessions.NewCookieStore([]byte(cfg.SessionSecret))
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   int(cfg.SessionMaxAge.Seconds()),
		HttpOnly: true,
		Secure:   cfg.IsProduction(),
		SameSite: http.SameSiteLaxMode,
	}
	return store
}
