package httpserver

import (
	"log/slog"
	"net/http"
	"net/url"
)

// newCheckOrigin allows empty origins (non-browser clients) and origins matching
// the request host. In development localhost origins are allowed as well.
func newCheckOrigin(isDevelopment bool) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}

		u, err := url.Parse(origin)
		if err == nil && u.Host != "" {
			if u.Host == r.Host {
				return true
			}
			if isDevelopment && isLocalhost(u.Hostname()) {
				return true
			}
		}

		slog.Warn("WebSocket origin rejected", "origin", origin, "remote_addr", r.RemoteAddr)
		return false
	}
}

func isLocalhost(host string) bool {
	return host == "localhost" || host == "127.0.0.1" || host == "::1"
}
