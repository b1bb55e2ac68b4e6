package server

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
)

type requestError struct {
	Status  int
	Message string
	Details string
}

func (e requestError) Error() string {
	return e.Message
}

type errorBody struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func writeError(c echo.Context, status int, message, details string) error {
	if c.Request().Method == http.MethodHead {
		return c.NoContent(status)
	}
	return c.JSON(status, errorBody{Error: message, Details: details})
}

func jsonErrorHandler(logger *slog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		var reqErr requestError
		if errors.As(err, &reqErr) {
			if reqErr.Status >= http.StatusInternalServerError {
				logger.Error("request failed", "status", reqErr.Status, "error", reqErr.Message, "details", reqErr.Details)
			}
			_ = writeError(c, reqErr.Status, reqErr.Message, reqErr.Details)
			return
		}

		var he *echo.HTTPError
		if errors.As(err, &he) {
			switch he.Code {
			case http.StatusMethodNotAllowed:
				_ = writeError(c, he.Code, "Method not allowed", "")
			case http.StatusNotFound:
				_ = writeError(c, he.Code, "Not found", "")
			default:
				_ = writeError(c, he.Code, http.StatusText(he.Code), "")
			}
			return
		}

		logger.Error("unhandled error", "error", err)
		_ = writeError(c, http.StatusInternalServerError, "Internal server error", "")
	}
}
