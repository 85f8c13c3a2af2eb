package errors

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts rendered errors by type.
type Metrics struct {
	ErrorsTotal *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "serverlist",
			Subsystem: "http",
			Name:      "errors_total",
			Help:      "Total HTTP errors by error type.",
		}, []string{"type"}),
	}
	reg.MustRegister(m.ErrorsTotal)
	return m
}

func (m *Metrics) observe(t ErrorType) {
	if m != nil {
		m.ErrorsTotal.WithLabelValues(string(t)).Inc()
	}
}

// Middleware renders errors returned by handlers as JSON. translate, if non-nil,
// maps application errors to structured ones first. Echo's own HTTPErrors pass
// through unchanged so its error handler keeps their status codes.
func Middleware(m *Metrics, translate func(error) error) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			err := next(c)
			if err == nil {
				return nil
			}

			var httpErr *echo.HTTPError
			if errors.As(err, &httpErr) {
				m.observe(WrapHTTPError(httpErr).Type)
				return err
			}

			if translate != nil {
				err = translate(err)
			}
			structuredErr := AsStructuredError(err)
			m.observe(structuredErr.Type)
			logError(c, structuredErr)

			if c.Response().Committed {
				return nil
			}
			if err := c.JSON(structuredErr.HTTPStatus(), structuredErr.ToResponse()); err != nil {
				return fmt.Errorf("failed to write error response: %w", err)
			}
			return nil
		}
	}
}

func logError(c echo.Context, err *Error) {
	ctx := c.Request().Context()
	attrs := []any{
		"error_type", err.Type,
		"message", err.Message,
		"path", c.Request().URL.Path,
		"method", c.Request().Method,
		"status", err.HTTPStatus(),
	}
	for k, v := range err.Context {
		attrs = append(attrs, k, v)
	}
	if uid := c.Get("uid"); uid != nil {
		attrs = append(attrs, "user_id", uid)
	}

	switch err.Type {
	case TypeValidation, TypeNotFound, TypeUnauthenticated:
		slog.InfoContext(ctx, "Request rejected", attrs...)
	case TypeForbidden, TypeConflict, TypeRateLimited:
		slog.WarnContext(ctx, "Request refused", attrs...)
	default:
		if err.Cause != nil {
			attrs = append(attrs, "cause", err.Cause)
		}
		slog.ErrorContext(ctx, "Request failed", attrs...)
	}
}

// WrapHTTPError converts Echo's HTTPError to a structured error.
func WrapHTTPError(httpErr *echo.HTTPError) *Error {
	message := http.StatusText(httpErr.Code)
	if msg, ok := httpErr.Message.(string); ok {
		message = msg
	}
	if message == "" {
		message = "internal server error"
	}

	var errType ErrorType
	switch httpErr.Code {
	case http.StatusBadRequest:
		errType = TypeValidation
	case http.StatusUnauthorized:
		errType = TypeUnauthenticated
	case http.StatusForbidden:
		errType = TypeForbidden
	case http.StatusNotFound:
		errType = TypeNotFound
	case http.StatusConflict:
		errType = TypeConflict
	case http.StatusTooManyRequests:
		errType = TypeRateLimited
	case http.StatusBadGateway, http.StatusServiceUnavailable:
		errType = TypeExternal
	default:
		errType = TypeInternal
	}

	return newError(errType, message, httpErr.Internal)
}
