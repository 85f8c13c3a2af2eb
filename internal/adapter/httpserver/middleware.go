package httpserver

import (
	"errors"

	"github.com/labstack/echo/v4"
	"github.com/pscheid92/serverlist/internal/domain"
	"github.com/pscheid92/serverlist/internal/platform/correlation"
	apperrors "github.com/pscheid92/serverlist/internal/platform/errors"
)

func correlationMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		id := correlation.FromHeader(c.Request().Header.Get(echo.HeaderXRequestID))
		c.Response().Header().Set(echo.HeaderXRequestID, id)
		ctx := correlation.WithID(c.Request().Context(), id)
		c.SetRequest(c.Request().WithContext(ctx))
		return next(c)
	}
}

// translateError maps domain errors onto structured HTTP errors. Anything it
// does not recognise is left for the error middleware to report as internal.
func translateError(err error) error {
	var verr *domain.ValidationError
	switch {
	case errors.As(err, &verr):
		return apperrors.ValidationError(verr.Error()).WithContext("field", verr.Field).WithCause(err)
	case errors.Is(err, domain.ErrProtectedField), errors.Is(err, domain.ErrUnknownField):
		return apperrors.ValidationError(err.Error()).WithCause(err)
	case errors.Is(err, domain.ErrUnauthenticated):
		return apperrors.UnauthenticatedError("authentication required").WithCause(err)
	case errors.Is(err, domain.ErrInvalidCredentials):
		return apperrors.UnauthenticatedError("invalid email or password").WithCause(err)
	case errors.Is(err, domain.ErrForbidden):
		return apperrors.ForbiddenError("not allowed").WithCause(err)
	case errors.Is(err, domain.ErrListingNotFound):
		return apperrors.NotFoundError("server not found").WithCause(err)
	case errors.Is(err, domain.ErrAccountNotFound):
		return apperrors.NotFoundError("account not found").WithCause(err)
	case errors.Is(err, domain.ErrEmailTaken):
		return apperrors.ConflictError("email already registered").WithCause(err)
	case errors.Is(err, domain.ErrTransport):
		return apperrors.ExternalError("upstream service unavailable", err)
	}
	return err
}

// errorKind labels an error for metrics.
func errorKind(err error) string {
	if err == nil {
		return "ok"
	}
	return string(apperrors.AsStructuredError(translateError(err)).Type)
}
