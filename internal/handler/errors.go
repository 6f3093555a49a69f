package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"tuition/internal/catalog"
	"tuition/internal/enrollment"
	"tuition/internal/identity"
	"tuition/internal/media"
	"tuition/internal/profile"
	"tuition/internal/retry"
)

// statusFor maps service errors to HTTP status codes.
func statusFor(err error) int {
	var ve *enrollment.ValidationError
	var se *enrollment.StepError
	var re *retry.Error
	switch {
	case errors.As(err, &ve),
		errors.Is(err, identity.ErrInvalid),
		errors.Is(err, catalog.ErrInvalid),
		errors.Is(err, enrollment.ErrInvalidStatus):
		return http.StatusBadRequest
	case errors.Is(err, identity.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, catalog.ErrForbidden), errors.Is(err, enrollment.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, catalog.ErrNotFound),
		errors.Is(err, enrollment.ErrNotFound),
		errors.Is(err, enrollment.ErrClassNotFound),
		errors.Is(err, identity.ErrNotFound),
		errors.Is(err, profile.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, identity.ErrEmailTaken), errors.Is(err, enrollment.ErrAlreadyDecided):
		return http.StatusConflict
	case errors.Is(err, media.ErrNoHost):
		return http.StatusServiceUnavailable
	case errors.As(err, &se), errors.As(err, &re):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// writeError renders err with the status from statusFor. Internal errors are
// logged and hidden from the client.
func (h *Handler) writeError(c *gin.Context, err error) {
	status := statusFor(err)
	body := gin.H{"error": err.Error()}

	var ve *enrollment.ValidationError
	var se *enrollment.StepError
	switch {
	case errors.As(err, &ve):
		body["error"] = ve.Message
		if len(ve.Fields) > 0 {
			body["fields"] = ve.Fields
		}
	case errors.As(err, &se):
		body["error"] = "could not complete " + se.Step + " step, please try again"
		body["step"] = se.Step
		body["partial"] = se.Partial
	case status == http.StatusBadGateway:
		body["error"] = "upstream service unavailable, please try again"
	case status == http.StatusInternalServerError:
		body["error"] = "internal error"
	}
	if status >= http.StatusInternalServerError {
		h.log.Error("request failed", zap.String("path", c.FullPath()), zap.Int("status", status), zap.Error(err))
	}
	c.AbortWithStatusJSON(status, body)
}
