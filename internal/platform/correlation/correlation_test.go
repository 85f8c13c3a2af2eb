package correlation

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewID_IsUUID(t *testing.T) {
	_, err := uuid.Parse(NewID())
	require.NoError(t, err)
	assert.NotEqual(t, NewID(), NewID())
}

func TestFromHeader(t *testing.T) {
	tests := []struct {
		name   string
		header string
		reused bool
	}{
		{"empty", "", false},
		{"plain", "req-42_a.b", true},
		{"uuid", "0f8fad5b-d9cb-469f-a165-70867728950e", true},
		{"whitespace", "req 42", false},
		{"newline injection", "abc\nlevel=ERROR", false},
		{"too long", strings.Repeat("a", maxInboundIDLength+1), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FromHeader(tt.header)
			if tt.reused {
				assert.Equal(t, tt.header, got)
				return
			}
			assert.NotEqual(t, tt.header, got)
			_, err := uuid.Parse(got)
			assert.NoError(t, err)
		})
	}
}

func TestID(t *testing.T) {
	id, ok := ID(WithID(context.Background(), "abc12345"))
	assert.True(t, ok)
	assert.Equal(t, "abc12345", id)

	_, ok = ID(context.Background())
	assert.False(t, ok)

	_, ok = ID(WithID(context.Background(), ""))
	assert.False(t, ok)
}

func TestSessionTag(t *testing.T) {
	tag := SessionTag("sid-alice")

	assert.Len(t, tag, 8)
	assert.Equal(t, tag, SessionTag("sid-alice"))
	assert.NotEqual(t, tag, SessionTag("sid-bob"))
	assert.NotContains(t, tag, "alice")
	assert.Empty(t, SessionTag(""))

	got, ok := Session(WithSession(context.Background(), "sid-alice"))
	assert.True(t, ok)
	assert.Equal(t, tag, got)

	_, ok = Session(WithSession(context.Background(), ""))
	assert.False(t, ok)
}

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	inner := slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	return slog.New(NewHandler(inner))
}

func TestHandler_AddsRequestAndSession(t *testing.T) {
	var buf bytes.Buffer
	logger := newTestLogger(&buf).With("component", "test")

	ctx := WithSession(WithID(context.Background(), "req-1"), "sid-alice")
	logger.InfoContext(ctx, "vote cast", "server", "abc")

	out := buf.String()
	assert.Contains(t, out, "request_id=req-1")
	assert.Contains(t, out, "session="+SessionTag("sid-alice"))
	assert.Contains(t, out, "component=test")
	assert.Contains(t, out, "server=abc")
	assert.NotContains(t, out, "sid-alice")
}

func TestHandler_NoAttrsWhenMissing(t *testing.T) {
	var buf bytes.Buffer
	newTestLogger(&buf).InfoContext(context.Background(), "startup")

	out := buf.String()
	assert.NotContains(t, out, "request_id")
	assert.NotContains(t, out, "session=")
}
