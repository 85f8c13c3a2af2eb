package httpserver

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/pscheid92/serverlist/internal/app"
	"github.com/pscheid92/serverlist/internal/domain"
	"github.com/pscheid92/serverlist/internal/platform/config"
	"github.com/stretchr/testify/require"
)

// --- Mock implementations ---

type mockListingService struct {
	createFn      func(ctx context.Context, ident *domain.Identity, input domain.ListingInput) (string, error)
	listFn        func(ctx context.Context, ownerID string) ([]domain.Listing, error)
	getFn         func(ctx context.Context, id string) (*domain.Listing, error)
	updateFn      func(ctx context.Context, ident *domain.Identity, id string, patch domain.ListingPatch, expectedOwnerID string) error
	deleteFn      func(ctx context.Context, ident *domain.Identity, id string, expectedOwnerID string) error
	voteFn        func(ctx context.Context, ident *domain.Identity, id string, snapshot *domain.Listing) (bool, error)
	isAdminFn     func(ctx context.Context, uid string) bool
	setVerifiedFn func(ctx context.Context, ident *domain.Identity, id string, verified bool) error
}

func (m *mockListingService) Create(ctx context.Context, ident *domain.Identity, input domain.ListingInput) (string, error) {
	if m.createFn != nil {
		return m.createFn(ctx, ident, input)
	}
	return "", domain.ErrUnauthenticated
}

func (m *mockListingService) List(ctx context.Context, ownerID string) ([]domain.Listing, error) {
	if m.listFn != nil {
		return m.listFn(ctx, ownerID)
	}
	return nil, nil
}

func (m *mockListingService) Get(ctx context.Context, id string) (*domain.Listing, error) {
	if m.getFn != nil {
		return m.getFn(ctx, id)
	}
	return nil, domain.ErrListingNotFound
}

func (m *mockListingService) Update(ctx context.Context, ident *domain.Identity, id string, patch domain.ListingPatch, expectedOwnerID string) error {
	if m.updateFn != nil {
		return m.updateFn(ctx, ident, id, patch, expectedOwnerID)
	}
	return nil
}

func (m *mockListingService) Delete(ctx context.Context, ident *domain.Identity, id string, expectedOwnerID string) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, ident, id, expectedOwnerID)
	}
	return nil
}

func (m *mockListingService) Vote(ctx context.Context, ident *domain.Identity, id string, snapshot *domain.Listing) (bool, error) {
	if m.voteFn != nil {
		return m.voteFn(ctx, ident, id, snapshot)
	}
	return false, domain.ErrUnauthenticated
}

func (m *mockListingService) IsAdmin(ctx context.Context, uid string) bool {
	if m.isAdminFn != nil {
		return m.isAdminFn(ctx, uid)
	}
	return false
}

func (m *mockListingService) SetVerified(ctx context.Context, ident *domain.Identity, id string, verified bool) error {
	if m.setVerifiedFn != nil {
		return m.setVerifiedFn(ctx, ident, id, verified)
	}
	return domain.ErrForbidden
}

// mockIdentityProvider resolves sessions from a fixed table unless currentFn is set.
type mockIdentityProvider struct {
	sessions   map[string]domain.Identity
	registerFn func(ctx context.Context, sessionID, email, password string) (string, domain.Identity, error)
	signInFn   func(ctx context.Context, sessionID, email, password string) (string, domain.Identity, error)
	currentFn  func(ctx context.Context, sessionID string) (*domain.Identity, error)
}

func (m *mockIdentityProvider) NewSessionID() string {
	return "sid-fresh"
}

func (m *mockIdentityProvider) Register(ctx context.Context, sessionID, email, password string) (string, domain.Identity, error) {
	if m.registerFn != nil {
		return m.registerFn(ctx, sessionID, email, password)
	}
	return "", domain.Identity{}, domain.ErrEmailTaken
}

func (m *mockIdentityProvider) SignIn(ctx context.Context, sessionID, email, password string) (string, domain.Identity, error) {
	if m.signInFn != nil {
		return m.signInFn(ctx, sessionID, email, password)
	}
	return "", domain.Identity{}, domain.ErrInvalidCredentials
}

func (m *mockIdentityProvider) Current(ctx context.Context, sessionID string) (*domain.Identity, error) {
	if m.currentFn != nil {
		return m.currentFn(ctx, sessionID)
	}
	if ident, ok := m.sessions[sessionID]; ok {
		return &ident, nil
	}
	return nil, nil
}

type mockStatusChecker struct {
	checkFn func(ctx context.Context, host string, port int, bedrock bool) domain.StatusResult
}

func (m *mockStatusChecker) Check(ctx context.Context, host string, port int, bedrock bool) domain.StatusResult {
	if m.checkFn != nil {
		return m.checkFn(ctx, host, port, bedrock)
	}
	return domain.OfflineStatus()
}

// fakeAuthSource replays the current state to new subscribers and fans out pushes.
type fakeAuthSource struct {
	mu     sync.Mutex
	states map[string]domain.AuthState
	subs   map[string][]func(domain.AuthState)
}

func newFakeAuthSource() *fakeAuthSource {
	return &fakeAuthSource{
		states: make(map[string]domain.AuthState),
		subs:   make(map[string][]func(domain.AuthState)),
	}
}

func (f *fakeAuthSource) OnStateChange(_ context.Context, sessionID string, fn func(domain.AuthState)) (func(), error) {
	f.mu.Lock()
	state, ok := f.states[sessionID]
	if !ok {
		state = domain.AuthState{SessionID: sessionID}
	}
	f.subs[sessionID] = append(f.subs[sessionID], fn)
	f.mu.Unlock()

	fn(state)
	return func() {}, nil
}

func (f *fakeAuthSource) push(state domain.AuthState) {
	f.mu.Lock()
	f.states[state.SessionID] = state
	subs := append([]func(domain.AuthState){}, f.subs[state.SessionID]...)
	f.mu.Unlock()

	for _, fn := range subs {
		fn(state)
	}
}

func (f *fakeAuthSource) subscriberCount(sessionID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs[sessionID])
}

type mockSignOuter struct {
	signOutFn func(ctx context.Context, sessionID string) error
}

func (m *mockSignOuter) SignOut(ctx context.Context, sessionID string) error {
	if m.signOutFn != nil {
		return m.signOutFn(ctx, sessionID)
	}
	return nil
}

// --- Test helpers ---

const (
	testSessionID = "sid-alice"
	testCSRFToken = "test-csrf-token"
)

var alice = domain.Identity{UID: "uid-alice", Email: "alice@example.com"}

func testConfig() *config.Config {
	return &config.Config{
		AppEnv:                  "test",
		Port:                    "0",
		SessionSecret:           "test-secret-key-32-bytes-long!!!",
		SessionMaxAge:           time.Hour,
		StatusBedrock:           true,
		SortLocale:              "en",
		AuthRateLimit:           100,
		AuthRateBurst:           100,
		VoteRateLimit:           100,
		VoteRateBurst:           100,
		MaxWebSocketConnections: 10,
	}
}

// newTestServer builds a server with permissive defaults for any collaborator
// left unset. Alice is signed in under testSessionID.
func newTestServer(t *testing.T, deps Deps, opts ...func(*config.Config)) *Server {
	t.Helper()

	cfg := testConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	if deps.Listings == nil {
		deps.Listings = &mockListingService{}
	}
	if deps.Status == nil {
		deps.Status = &mockStatusChecker{}
	}
	if deps.View == nil {
		deps.View = app.NewListView(deps.Listings, deps.Status, cfg.Locale(), cfg.StatusBedrock)
	}
	if deps.Identity == nil {
		deps.Identity = &mockIdentityProvider{sessions: map[string]domain.Identity{testSessionID: alice}}
	}
	source := newFakeAuthSource()
	if deps.Presenter == nil {
		deps.Presenter = app.NewSessionPresenter(source, &mockSignOuter{})
	}
	if deps.Gate == nil {
		deps.Gate = app.NewGate(source)
	}

	return NewServer(cfg, deps)
}

// setSessionID attaches a session cookie naming sid to req.
func setSessionID(t *testing.T, srv *Server, req *http.Request, sid string) {
	t.Helper()
	rec := httptest.NewRecorder()
	session, err := srv.sessionStore.Get(req, sessionName)
	require.NoError(t, err)
	session.Values[sessionKeyID] = sid
	require.NoError(t, session.Save(req, rec))
	for _, c := range rec.Result().Cookies() {
		req.AddCookie(c)
	}
}

// setCSRF satisfies the double-submit check.
func setCSRF(req *http.Request) {
	req.AddCookie(&http.Cookie{Name: csrfCookieName, Value: testCSRFToken})
	req.Header.Set(csrfHeaderName, testCSRFToken)
}

// serve runs req through the full middleware stack.
func serve(srv *Server, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, req)
	return rec
}

func responseCookie(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}
