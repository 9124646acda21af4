package apperrors

import (
	"errors"
	"log/slog"

	"github.com/labstack/echo/v4"
)

// Middleware converts errors returned by handlers into JSON responses with
// the status code their type maps to. Echo's own HTTPErrors (from built-in
// middleware) pass through untouched.
func Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			err := next(c)
			if err == nil {
				return nil
			}

			var httpErr *echo.HTTPError
			if errors.As(err, &httpErr) {
				return err
			}

			structured := AsError(err)
			logError(c, structured)
			return c.JSON(structured.HTTPStatus(), map[string]any{
				"error": structured.Message,
				"type":  string(structured.Type),
			})
		}
	}
}

func logError(c echo.Context, err *Error) {
	attrs := []any{
		"error_type", err.Type,
		"message", err.Message,
		"path", c.Request().URL.Path,
		"method", c.Request().Method,
		"status", err.HTTPStatus(),
	}
	if err.Cause != nil {
		attrs = append(attrs, "cause", err.Cause)
	}
	for k, v := range err.Context {
		attrs = append(attrs, k, v)
	}

	if err.Type == TypeInternal {
		slog.Error("Request failed", attrs...)
	} else {
		slog.Warn("Request rejected", attrs...)
	}
}
