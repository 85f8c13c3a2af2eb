package httpserver

import (
	"log/slog"

	"github.com/labstack/echo/v4"
	"github.com/pscheid92/serverlist/internal/domain"
	"github.com/pscheid92/serverlist/internal/platform/correlation"
)

// The cookie carries only the session ID; the identity lives server-side.
const (
	sessionName       = "serverlist-session"
	sessionKeyID      = "sid"
	ctxKeySessionID   = "sessionID"
	ctxKeyIdentity    = "identity"
	ctxKeyUserID      = "uid"
	contextKeyCSRF    = "csrf"
	csrfCookieName    = "csrf_token"
	csrfHeaderName    = "X-CSRF-Token"
	csrfFormFieldName = "csrf_token"
)

// sessionMiddleware resolves the cookie's session ID to an identity. A request
// without a session is issued a fresh anonymous ID. Lookup failures are logged
// and the request proceeds anonymously.
func (s *Server) sessionMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()

		sid := s.readSessionID(c)
		if sid == "" {
			sid = s.identity.NewSessionID()
			if err := s.writeSessionID(c, sid); err != nil {
				slog.WarnContext(ctx, "Failed to issue session cookie", "error", err)
			}
		}

		ctx = correlation.WithSession(ctx, sid)
		c.SetRequest(c.Request().WithContext(ctx))

		ident, err := s.identity.Current(ctx, sid)
		if err != nil {
			slog.WarnContext(ctx, "Session lookup failed, continuing anonymously", "error", err)
			ident = nil
		}

		c.Set(ctxKeySessionID, sid)
		c.Set(ctxKeyIdentity, ident)
		if ident != nil {
			c.Set(ctxKeyUserID, ident.UID)
		}
		return next(c)
	}
}

func (s *Server) readSessionID(c echo.Context) string {
	session, err := s.sessionStore.Get(c.Request(), sessionName)
	if err != nil {
		return ""
	}
	sid, _ := session.Values[sessionKeyID].(string)
	return sid
}

func (s *Server) writeSessionID(c echo.Context, sid string) error {
	// Get returns a fresh session when the cookie is missing or fails to decode.
	session, _ := s.sessionStore.Get(c.Request(), sessionName)
	session.Values[sessionKeyID] = sid
	return session.Save(c.Request(), c.Response().Writer)
}

func sessionID(c echo.Context) string {
	sid, _ := c.Get(ctxKeySessionID).(string)
	return sid
}

// identity returns the signed-in identity, or nil.
func identity(c echo.Context) *domain.Identity {
	ident, _ := c.Get(ctxKeyIdentity).(*domain.Identity)
	return ident
}

func authState(c echo.Context) domain.AuthState {
	return domain.AuthState{SessionID: sessionID(c), Identity: identity(c)}
}

func csrfToken(c echo.Context) string {
	token, _ := c.Get(contextKeyCSRF).(string)
	return token
}
