package app

import (
	"context"
	"log/slog"
	"slices"
	"sync"

	"github.com/pscheid92/serverlist/internal/domain"
)

// LoginPath is where gated pages send anonymous visitors.
const LoginPath = "/auth/login"

type Affordance string

const (
	AffordLogin     Affordance = "login"
	AffordRegister  Affordance = "register"
	AffordLogout    Affordance = "logout"
	AffordDashboard Affordance = "dashboard"
)

// HeaderView is what the page header shows for the current auth state.
type HeaderView struct {
	SignedIn    bool         `json:"signed_in"`
	Email       string       `json:"email,omitempty"`
	Affordances []Affordance `json:"affordances"`
}

func (h HeaderView) Equal(other HeaderView) bool {
	return h.SignedIn == other.SignedIn && h.Email == other.Email && slices.Equal(h.Affordances, other.Affordances)
}

// PresentSession maps an auth state to header affordances. A signed-in session gets
// its email plus logout and dashboard; an anonymous one gets login and register only.
func PresentSession(state domain.AuthState) HeaderView {
	if !state.Present() {
		return HeaderView{Affordances: []Affordance{AffordLogin, AffordRegister}}
	}
	return HeaderView{
		SignedIn:    true,
		Email:       state.Identity.Email,
		Affordances: []Affordance{AffordLogout, AffordDashboard},
	}
}

type signOuter interface {
	SignOut(ctx context.Context, sessionID string) error
}

// SessionPresenter keeps a header in sync with the auth-state channel.
type SessionPresenter struct {
	source domain.AuthStateSource
	auth   signOuter
}

func NewSessionPresenter(source domain.AuthStateSource, auth signOuter) *SessionPresenter {
	return &SessionPresenter{source: source, auth: auth}
}

// Attach calls render with the initial view and again whenever the view changes.
// Pushes that produce an identical view are suppressed.
func (p *SessionPresenter) Attach(ctx context.Context, sessionID string, render func(HeaderView)) (func(), error) {
	var (
		mu   sync.Mutex
		last *HeaderView
	)
	return p.source.OnStateChange(ctx, sessionID, func(state domain.AuthState) {
		view := PresentSession(state)

		mu.Lock()
		if last != nil && last.Equal(view) {
			mu.Unlock()
			return
		}
		last = &view
		mu.Unlock()

		render(view)
	})
}

// Logout requests sign-out without waiting. The header updates through the
// channel once the provider publishes the anonymous state.
func (p *SessionPresenter) Logout(ctx context.Context, sessionID string) {
	ctx = context.WithoutCancel(ctx)
	go func() {
		if err := p.auth.SignOut(ctx, sessionID); err != nil {
			slog.WarnContext(ctx, "Sign-out failed", "error", err)
		}
	}()
}

// Decision is the gate's verdict for a protected page.
type Decision struct {
	Allow    bool
	Redirect string
}

// Gate protects pages that require a session. It subscribes to the auth-state
// channel on its own, independent of any presenter.
type Gate struct {
	source domain.AuthStateSource
}

func NewGate(source domain.AuthStateSource) *Gate {
	return &Gate{source: source}
}

func (g *Gate) Decide(state domain.AuthState) Decision {
	if !state.Present() {
		return Decision{Redirect: LoginPath}
	}
	return Decision{Allow: true}
}

// Guard calls redirect every time the session transitions into the anonymous
// state, including an anonymous initial state. Consecutive anonymous pushes
// redirect only once.
func (g *Gate) Guard(ctx context.Context, sessionID string, redirect func(path string)) (func(), error) {
	var (
		mu         sync.Mutex
		redirected bool
	)
	return g.source.OnStateChange(ctx, sessionID, func(state domain.AuthState) {
		d := g.Decide(state)

		mu.Lock()
		if d.Allow {
			redirected = false
			mu.Unlock()
			return
		}
		if redirected {
			mu.Unlock()
			return
		}
		redirected = true
		mu.Unlock()

		redirect(d.Redirect)
	})
}
