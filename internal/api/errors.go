package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/garagehq/vhc/internal/repair"
)

// statusFor maps a repair error kind to its HTTP status.
func statusFor(kind repair.ErrorKind) int {
	switch kind {
	case repair.KindValidation:
		return http.StatusUnprocessableEntity
	case repair.KindNotFound:
		return http.StatusNotFound
	case repair.KindTokenExpired:
		return http.StatusGone
	case repair.KindConflict:
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// respondError writes err. Closure refusals carry the blocking items;
// anything the engine did not classify is a 500 and is logged.
func respondError(c *gin.Context, err error) {
	var closure *repair.ClosureError
	if errors.As(err, &closure) {
		c.JSON(http.StatusConflict, closure)
		return
	}
	var rerr *repair.Error
	if errors.As(err, &rerr) {
		c.JSON(statusFor(rerr.Kind), gin.H{"error": rerr})
		return
	}
	c.Error(err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": gin.H{
		"kind":    "internal",
		"code":    "INTERNAL",
		"message": "internal error",
	}})
}

// badRequest reports a body that failed to bind.
func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusUnprocessableEntity, gin.H{"error": gin.H{
		"kind":    repair.KindValidation,
		"code":    "INVALID_REQUEST",
		"message": err.Error(),
	}})
}
