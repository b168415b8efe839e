package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"obligation-service/internal/apperr"
	"obligation-service/pkg/logger"
)

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Error     ErrorDetail `json:"error"`
	RequestID string      `json:"request_id,omitempty"`
}

// ErrorDetail carries the machine-readable code and a safe message.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorHandler renders errors returned by handlers and middleware. Storage
// failures and scope violations are logged with their cause and reach the
// client as a generic message only.
func ErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status, detail := describe(err)
	log := logger.FromEcho(c)
	if status >= http.StatusInternalServerError {
		log.Error("Request failed", zap.String("code", detail.Code), zap.Error(err))
	} else {
		log.Debug("Request rejected", zap.String("code", detail.Code), zap.Error(err))
	}

	body := ErrorBody{
		Error:     detail,
		RequestID: c.Response().Header().Get(echo.HeaderXRequestID),
	}

	var writeErr error
	if c.Request().Method == http.MethodHead {
		writeErr = c.NoContent(status)
	} else {
		writeErr = c.JSON(status, body)
	}
	if writeErr != nil {
		log.Warn("Failed to write error response", zap.Error(writeErr))
	}
}

func describe(err error) (int, ErrorDetail) {
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		msg := appErr.Message
		if appErr.Code.Internal() {
			msg = "internal error"
		}
		return appErr.Code.HTTPStatus(), ErrorDetail{Code: string(appErr.Code), Message: msg}
	}

	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) {
		status := httpErr.Code
		msg := http.StatusText(status)
		if m, ok := httpErr.Message.(string); ok && status < http.StatusInternalServerError {
			msg = m
		}
		return status, ErrorDetail{Code: statusCode(status), Message: msg}
	}

	return http.StatusInternalServerError, ErrorDetail{Code: string(apperr.CodeStorageFailure), Message: "internal error"}
}

// statusCode names the statuses echo itself produces.
func statusCode(status int) string {
	switch status {
	case http.StatusBadRequest, http.StatusRequestEntityTooLarge, http.StatusUnsupportedMediaType:
		return string(apperr.CodeValidation)
	case http.StatusUnauthorized:
		return string(apperr.CodeUnauthorized)
	case http.StatusForbidden:
		return string(apperr.CodeForbidden)
	case http.StatusNotFound:
		return string(apperr.CodeNotFound)
	}
	if status >= http.StatusInternalServerError {
		return string(apperr.CodeStorageFailure)
	}
	return strings.ToUpper(strings.ReplaceAll(http.StatusText(status), " ", "_"))
}

func bind(c echo.Context, v interface{}) error {
	if err := c.Bind(v); err != nil {
		return apperr.Wrap(apperr.CodeValidation, "invalid request body", err)
	}
	return nil
}
