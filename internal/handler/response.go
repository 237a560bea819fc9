// Package handler contains the HTTP controllers for the admin console.
package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"assac-admin-go/internal/apperr"
)

// Envelope is the response shape the admin frontend consumes.
type Envelope struct {
	Status   string `json:"status"`
	Message  string `json:"message"`
	Icon     string `json:"icon"`
	Redirect string `json:"redirect,omitempty"`
}

func respondSuccess(c *gin.Context, code int, message, redirect string) {
	c.JSON(code, Envelope{Status: "success", Message: message, Icon: "success", Redirect: redirect})
}

func respondWarning(c *gin.Context, code int, message string) {
	c.JSON(code, Envelope{Status: "warning", Message: message, Icon: "warning"})
}

func respondError(c *gin.Context, code int, message string) {
	c.JSON(code, Envelope{Status: "error", Message: message, Icon: "error"})
}

// errStatus maps the apperr sentinels onto HTTP statuses. Anything not in
// the taxonomy is a 500; the detail belongs in the logs, not the response.
func errStatus(err error) int {
	switch {
	case errors.Is(err, apperr.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, apperr.ErrDuplicate),
		errors.Is(err, apperr.ErrOffsetMismatch),
		errors.Is(err, apperr.ErrAlreadyPublished):
		return http.StatusConflict
	case errors.Is(err, apperr.ErrNotFound),
		errors.Is(err, apperr.ErrWorkspaceNotFound),
		errors.Is(err, apperr.ErrStoreNotFound),
		errors.Is(err, apperr.ErrSourceFileMissing):
		return http.StatusNotFound
	case errors.Is(err, apperr.ErrGone):
		return http.StatusGone
	case errors.Is(err, apperr.ErrDownstream):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
