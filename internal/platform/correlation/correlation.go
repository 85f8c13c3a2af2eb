// Package correlation tags request-scoped log lines with a request ID and an
// opaque session tag.
package correlation

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
)

const maxInboundIDLength = 64

type requestKey struct{}
type sessionKey struct{}

// NewID returns a random request ID.
func NewID() string {
	return uuid.NewString()
}

// FromHeader reuses an inbound request ID when it is short and made of
// URL-safe characters, and mints a new one otherwise.
func FromHeader(v string) string {
	if v == "" || len(v) > maxInboundIDLength {
		return NewID()
	}
	for _, r := range v {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
		default:
			return NewID()
		}
	}
	return v
}

func WithID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestKey{}, id)
}

// ID extracts the request ID from ctx, returning ("", false) if not present.
func ID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(requestKey{}).(string)
	return id, ok && id != ""
}

// SessionTag derives a short stable tag from a session ID. Session IDs are
// bearer credentials and must not be written to logs verbatim.
func SessionTag(sid string) string {
	if sid == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(sid))
	return hex.EncodeToString(sum[:4])
}

// WithSession stores the tag of sid on ctx.
func WithSession(ctx context.Context, sid string) context.Context {
	return context.WithValue(ctx, sessionKey{}, SessionTag(sid))
}

func Session(ctx context.Context) (string, bool) {
	tag, ok := ctx.Value(sessionKey{}).(string)
	return tag, ok && tag != ""
}

// Handler wraps a slog.Handler and adds "request_id" and "session" attributes
// when the context carries them.
type Handler struct {
	inner slog.Handler
}

func NewHandler(inner slog.Handler) *Handler {
	return &Handler{inner: inner}
}

func (h *Handler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *Handler) Handle(ctx context.Context, r slog.Record) error {
	if id, ok := ID(ctx); ok {
		r.AddAttrs(slog.String("request_id", id))
	}
	if tag, ok := Session(ctx); ok {
		r.AddAttrs(slog.String("session", tag))
	}
	if err := h.inner.Handle(ctx, r); err != nil {
		return fmt.Errorf("correlation handler: %w", err)
	}
	return nil
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &Handler{inner: h.inner.WithAttrs(attrs)}
}

func (h *Handler) WithGroup(name string) slog.Handler {
	return &Handler{inner: h.inner.WithGroup(name)}
}
