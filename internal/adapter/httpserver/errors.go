package httpserver

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
)

// errorType is the category reported to clients and used as metric label.
type errorType string

const (
	typeValidation       errorType = "validation"
	typeNotFound         errorType = "not_found"
	typeMethodNotAllowed errorType = "method_not_allowed"
	typeRateLimited      errorType = "rate_limited"
	typeUnavailable      errorType = "unavailable"
	typeInternal         errorType = "internal"
)

// apiError is an error rendered as a JSON body.
type apiError struct {
	Type    errorType
	Status  int
	Message string
	Cause   error
}

func (e *apiError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *apiError) Unwrap() error {
	return e.Cause
}

type errorResponse struct {
	Error string    `json:"error"`
	Type  errorType `json:"type"`
}

// asAPIError maps echo HTTP errors by status code; anything else is internal.
func asAPIError(err error) *apiError {
	var apiErr *apiError
	if errors.As(err, &apiErr) {
		return apiErr
	}

	var httpErr *echo.HTTPError
	if !errors.As(err, &httpErr) {
		return &apiError{Type: typeInternal, Status: http.StatusInternalServerError, Message: "internal server error", Cause: err}
	}

	message := http.StatusText(httpErr.Code)
	if msg, ok := httpErr.Message.(string); ok && msg != "" {
		message = msg
	}

	return &apiError{
		Type:    errorTypeForStatus(httpErr.Code),
		Status:  httpErr.Code,
		Message: message,
		Cause:   httpErr.Internal,
	}
}

func errorTypeForStatus(status int) errorType {
	switch status {
	case http.StatusBadRequest:
		return typeValidation
	case http.StatusNotFound:
		return typeNotFound
	case http.StatusMethodNotAllowed:
		return typeMethodNotAllowed
	case http.StatusTooManyRequests:
		return typeRateLimited
	case http.StatusServiceUnavailable:
		return typeUnavailable
	default:
		return typeInternal
	}
}

// handleError is the echo HTTPErrorHandler.
func (s *Server) handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	apiErr := asAPIError(err)
	s.httpMetrics.Errors.WithLabelValues(string(apiErr.Type)).Inc()
	logAPIError(c, apiErr)

	var writeErr error
	if c.Request().Method == http.MethodHead {
		writeErr = c.NoContent(apiErr.Status)
	} else {
		writeErr = c.JSON(apiErr.Status, errorResponse{Error: apiErr.Message, Type: apiErr.Type})
	}
	if writeErr != nil {
		slog.ErrorContext(c.Request().Context(), "Failed to write error response", "error", writeErr)
	}
}

func logAPIError(c echo.Context, err *apiError) {
	ctx := c.Request().Context()
	attrs := []any{
		"error_type", err.Type,
		"message", err.Message,
		"path", c.Request().URL.Path,
		"method", c.Request().Method,
		"status", err.Status,
	}

	if err.Type != typeInternal {
		slog.DebugContext(ctx, "Request rejected", attrs...)
		return
	}

	if err.Cause != nil {
		attrs = append(attrs, "cause", err.Cause)
	}
	slog.ErrorContext(ctx, "Internal error", attrs...)
}
