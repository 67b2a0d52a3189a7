package api

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"library-circulation/library"
)

// statusFor maps a library error kind to its HTTP status and error code.
func statusFor(kind library.Kind) (int, string) {
	switch kind {
	case library.KindValidation:
		return http.StatusBadRequest, "VALIDATION_ERROR"
	case library.KindNotFound:
		return http.StatusNotFound, "NOT_FOUND"
	case library.KindConflict:
		return http.StatusConflict, "CONFLICT"
	case library.KindUnavailable:
		return http.StatusConflict, "UNAVAILABLE"
	case library.KindInvariant:
		return http.StatusInternalServerError, "INVARIANT_VIOLATION"
	default:
		return http.StatusInternalServerError, "INTERNAL_ERROR"
	}
}

type errorHandler struct {
	logger *slog.Logger
}

// handle is echo's HTTPErrorHandler. Handlers return library errors as they are
// and this turns them into the response envelope.
func (h errorHandler) handle(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var libErr *library.Error
	if errors.As(err, &libErr) {
		status, code := statusFor(libErr.Kind)
		if status >= http.StatusInternalServerError {
			h.logger.Error("invariant violation",
				slog.String("error", err.Error()),
				slog.String("path", c.Request().URL.Path),
				slog.String("method", c.Request().Method),
			)
		}
		_ = Error(c, status, code, libErr.Message, libErr.Field)
		return
	}

	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) {
		msg := fmt.Sprint(httpErr.Message)
		_ = Error(c, httpErr.Code, httpCode(httpErr.Code), msg, msg)
		return
	}

	h.logger.Error("unhandled error",
		slog.String("error", fmt.Sprintf("%+v", err)),
		slog.String("path", c.Request().URL.Path),
		slog.String("method", c.Request().Method),
	)
	_ = Error(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error", "")
}

func httpCode(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "BAD_REQUEST"
	case http.StatusUnauthorized:
		return "UNAUTHORIZED"
	case http.StatusForbidden:
		return "FORBIDDEN"
	case http.StatusNotFound:
		return "NOT_FOUND"
	case http.StatusMethodNotAllowed:
		return "METHOD_NOT_ALLOWED"
	default:
		return "HTTP_ERROR"
	}
}
