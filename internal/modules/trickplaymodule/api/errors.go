package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/hashicorp/go-hclog"

	tperrors "github.com/mantonx/trickplay/internal/modules/trickplaymodule/errors"
)

// statusFor maps an error category to an HTTP status
func statusFor(err error) int {
	switch tperrors.GetType(err) {
	case tperrors.ErrorTypeInvalidConfig, tperrors.ErrorTypeSchedule:
		return http.StatusBadRequest
	case tperrors.ErrorTypeJobNotFound, tperrors.ErrorTypeInputNotFound:
		return http.StatusNotFound
	case tperrors.ErrorTypeInvalidTransition:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// respondWithError sends a structured error response
func respondWithError(c *gin.Context, logger hclog.Logger, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", "path", c.Request.URL.Path, "error", err)
	} else {
		logger.Debug("request rejected", "path", c.Request.URL.Path, "status", status, "error", err)
	}

	errType := string(tperrors.GetType(err))
	if errType == "" {
		errType = "internal"
	}
	c.JSON(status, gin.H{
		"error":      err.Error(),
		"error_type": errType,
	})
}
