package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPStatusAllTypes(t *testing.T) {
	tests := []struct {
		err  *Error
		want int
	}{
		{ValidationError("bad"), http.StatusBadRequest},
		{UnauthenticatedError("who"), http.StatusUnauthorized},
		{ForbiddenError("no"), http.StatusForbidden},
		{NotFoundError("gone"), http.StatusNotFound},
		{ConflictError("dup"), http.StatusConflict},
		{RateLimitedError("slow down"), http.StatusTooManyRequests},
		{InternalError("boom", nil), http.StatusInternalServerError},
		{ExternalError("upstream", nil), http.StatusBadGateway},
		{&Error{Type: "mystery"}, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(string(tt.err.Type), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.HTTPStatus())
		})
	}
}

func TestErrorString(t *testing.T) {
	assert.Equal(t, "validation: bad input", ValidationError("bad input").Error())
	assert.Equal(t, "internal: boom: disk full", InternalError("boom", errors.New("disk full")).Error())
}

func TestWithContextChaining(t *testing.T) {
	err := ValidationError("bad").WithContext("field", "name").WithContext("limit", 64)

	assert.Equal(t, "name", err.Context["field"])
	assert.Equal(t, 64, err.Context["limit"])

	bare := &Error{Type: TypeValidation}
	bare.WithContext("k", "v")
	assert.Equal(t, "v", bare.Context["k"])
}

func TestWithCauseUnwraps(t *testing.T) {
	cause := errors.New("root")
	err := ForbiddenError("no").WithCause(cause)

	assert.ErrorIs(t, err, cause)
}

func TestToResponse(t *testing.T) {
	resp := NotFoundError("listing not found").WithContext("id", "abc").ToResponse()

	assert.Equal(t, "listing not found", resp.Error)
	assert.Equal(t, TypeNotFound, resp.Type)
	assert.Equal(t, map[string]any{"id": "abc"}, resp.Context)
}

func TestAsStructuredError(t *testing.T) {
	assert.Nil(t, AsStructuredError(nil))

	original := ConflictError("dup")
	assert.Same(t, original, AsStructuredError(original))
	assert.Same(t, original, AsStructuredError(fmt.Errorf("wrapped: %w", original)))

	plain := errors.New("plain")
	got := AsStructuredError(plain)
	require.NotNil(t, got)
	assert.Equal(t, TypeInternal, got.Type)
	assert.ErrorIs(t, got, plain)
}
