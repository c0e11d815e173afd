package groups

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mikepea/fieldgroup/pkg/fieldgroup/models"
	"github.com/mikepea/fieldgroup/pkg/fieldgroup/storage"
)

// Error codes returned in the "code" field of error bodies.
const (
	CodeInvalidParam = "E_INVALID_PARAM"
	CodeNotFound     = "E_NOT_FOUND"
	CodeDuplicate    = "E_DUPLICATE"
	CodeCycle        = "E_CYCLE"
	CodeInternal     = "E_INTERNAL"
)

// StatusFor maps a service error to its HTTP status and code.
func StatusFor(err error) (int, string) {
	switch {
	case errors.Is(err, models.ErrValidation):
		return http.StatusBadRequest, CodeInvalidParam
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound, CodeNotFound
	case errors.Is(err, models.ErrDuplicate):
		return http.StatusConflict, CodeDuplicate
	case errors.Is(err, models.ErrCycle):
		return http.StatusUnprocessableEntity, CodeCycle
	default:
		return http.StatusInternalServerError, CodeInternal
	}
}

// WriteError writes err as a JSON error body. Internal errors are not echoed.
func WriteError(c *gin.Context, err error) {
	status, code := StatusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		_ = c.Error(err)
		msg = "Internal server error"
	}
	c.JSON(status, gin.H{"error": msg, "code": code})
}

// BadRequest writes a request binding failure.
func BadRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": CodeInvalidParam})
}
