package apperr

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/carewire/hms/internal/platform/db"
)

// ErrorHandler returns an echo HTTPErrorHandler that maps *Error values to
// their HTTP status and JSON shape. Transaction conflicts from the db layer
// are translated to Concurrency so handlers never leak SQLSTATE details.
func ErrorHandler(logger zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		if errors.Is(err, db.ErrTxConflict) {
			err = Concurrency("operation conflicted with concurrent requests, please retry")
		}

		var appErr *Error
		if errors.As(err, &appErr) {
			if appErr.HTTPStatus >= http.StatusInternalServerError {
				rid, _ := c.Get("request_id").(string)
				logger.Error().Err(appErr.Err).
					Str("request_id", rid).
					Str("code", appErr.Code).
					Msg("request failed")
			}
			_ = c.JSON(appErr.HTTPStatus, appErr)
			return
		}

		var httpErr *echo.HTTPError
		if errors.As(err, &httpErr) {
			_ = c.JSON(httpErr.Code, map[string]interface{}{
				"message": httpErr.Message,
				"code":    http.StatusText(httpErr.Code),
			})
			return
		}

		rid, _ := c.Get("request_id").(string)
		logger.Error().Err(err).Str("request_id", rid).Msg("unhandled error")
		_ = c.JSON(http.StatusInternalServerError, Internal(err))
	}
}
