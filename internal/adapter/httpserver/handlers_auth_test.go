package httpserver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pscheid92/serverlist/internal/app"
	"github.com/pscheid92/serverlist/internal/domain"
	"github.com/pscheid92/serverlist/internal/platform/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sessionIDFromCookie decodes the session cookie set on rec.
func sessionIDFromCookie(t *testing.T, srv *Server, rec *httptest.ResponseRecorder) string {
	t.Helper()
	cookie := responseCookie(rec, sessionName)
	require.NotNil(t, cookie, "session cookie should be set")

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookie)
	return srv.readSessionID(srv.echo.NewContext(req, httptest.NewRecorder()))
}

func TestHandleLogin_RotatesSession(t *testing.T) {
	var gotSID string
	provider := &mockIdentityProvider{
		signInFn: func(_ context.Context, sessionID, email, password string) (string, domain.Identity, error) {
			gotSID = sessionID
			assert.Equal(t, "alice@example.com", email)
			assert.Equal(t, "correct horse", password)
			return "sid-rotated", alice, nil
		},
	}
	srv := newTestServer(t, Deps{Identity: provider})

	req := jsonRequest(http.MethodPost, "/auth/login", `{"email":"alice@example.com","password":"correct horse"}`)
	setSessionID(t, srv, req, "sid-anonymous")
	setCSRF(req)
	rec := serve(srv, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "sid-anonymous", gotSID)
	assert.Equal(t, "sid-rotated", sessionIDFromCookie(t, srv, rec))

	var resp authResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, dashboardPath, resp.Redirect)
	assert.True(t, resp.Header.SignedIn)
	assert.Equal(t, alice.Email, resp.Header.Email)
}

func TestHandleLogin_AcceptsForm(t *testing.T) {
	provider := &mockIdentityProvider{
		signInFn: func(_ context.Context, _, email, password string) (string, domain.Identity, error) {
			assert.Equal(t, "alice@example.com", email)
			assert.Equal(t, "pw", password)
			return "sid-rotated", alice, nil
		},
	}
	srv := newTestServer(t, Deps{Identity: provider})

	form := url.Values{"email": {"alice@example.com"}, "password": {"pw"}}
	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	setCSRF(req)
	rec := serve(srv, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleLogin_InvalidCredentials(t *testing.T) {
	srv := newTestServer(t, Deps{})

	req := jsonRequest(http.MethodPost, "/auth/login", `{"email":"alice@example.com","password":"wrong"}`)
	setSessionID(t, srv, req, "sid-anonymous")
	setCSRF(req)
	rec := serve(srv, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid email or password")
	assert.Nil(t, responseCookie(rec, sessionName), "failed sign-in keeps the existing session")
}

func TestHandleRegister(t *testing.T) {
	provider := &mockIdentityProvider{
		registerFn: func(_ context.Context, _, email, _ string) (string, domain.Identity, error) {
			return "sid-registered", domain.Identity{UID: "uid-new", Email: email}, nil
		},
	}
	srv := newTestServer(t, Deps{Identity: provider})

	req := jsonRequest(http.MethodPost, "/auth/register", `{"email":"new@example.com","password":"pw"}`)
	setSessionID(t, srv, req, "sid-anonymous")
	setCSRF(req)
	rec := serve(srv, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "sid-registered", sessionIDFromCookie(t, srv, rec))
}

func TestHandleRegister_Conflicts(t *testing.T) {
	srv := newTestServer(t, Deps{})

	req := jsonRequest(http.MethodPost, "/auth/register", `{"email":"alice@example.com","password":"pw"}`)
	setCSRF(req)
	rec := serve(srv, req)

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestHandleLoginPage(t *testing.T) {
	srv := newTestServer(t, Deps{})

	t.Run("signed in goes to dashboard", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/auth/login", nil)
		setSessionID(t, srv, req, testSessionID)
		rec := serve(srv, req)

		assert.Equal(t, http.StatusFound, rec.Code)
		assert.Equal(t, dashboardPath, rec.Header().Get("Location"))
	})

	t.Run("anonymous gets header and csrf token", func(t *testing.T) {
		rec := serve(srv, httptest.NewRequest(http.MethodGet, "/auth/login", nil))

		require.Equal(t, http.StatusOK, rec.Code)
		var resp sessionResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.False(t, resp.Header.SignedIn)
		assert.Equal(t, []app.Affordance{app.AffordLogin, app.AffordRegister}, resp.Header.Affordances)
		assert.NotEmpty(t, resp.CSRFToken)
		assert.NotNil(t, responseCookie(rec, sessionName), "anonymous visitors are issued a session")
	})
}

func TestHandleLogout_ReturnsBeforeSignOutCompletes(t *testing.T) {
	release := make(chan struct{})
	var signedOut atomic.Value
	signOuter := &mockSignOuter{
		signOutFn: func(_ context.Context, sessionID string) error {
			<-release
			signedOut.Store(sessionID)
			return nil
		},
	}
	presenter := app.NewSessionPresenter(newFakeAuthSource(), signOuter)
	srv := newTestServer(t, Deps{Presenter: presenter})

	req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	setSessionID(t, srv, req, testSessionID)
	setCSRF(req)
	rec := serve(srv, req)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Nil(t, signedOut.Load())

	close(release)
	assert.Eventually(t, func() bool { return signedOut.Load() == testSessionID }, time.Second, 5*time.Millisecond)
}

func TestAuthRateLimit(t *testing.T) {
	srv := newTestServer(t, Deps{}, func(cfg *config.Config) {
		cfg.AuthRateLimit = 0.001
		cfg.AuthRateBurst = 2
	})

	var codes []int
	for range 3 {
		req := jsonRequest(http.MethodPost, "/auth/login", `{"email":"a@example.com","password":"x"}`)
		setCSRF(req)
		codes = append(codes, serve(srv, req).Code)
	}

	assert.Equal(t, []int{http.StatusUnauthorized, http.StatusUnauthorized, http.StatusTooManyRequests}, codes)
}
