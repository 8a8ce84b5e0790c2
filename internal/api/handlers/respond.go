package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/stitts-dev/match-predictor/internal/models"
	"github.com/stitts-dev/match-predictor/pkg/utils"
)

// respondError maps the service error taxonomy onto the wire envelope.
// Callers handle "no data" before reaching here; only real failures arrive.
func respondError(c *gin.Context, err error) {
	switch {
	case models.IsValidation(err):
		utils.SendValidationError(c, "Invalid request", err.Error())
	case models.IsDataNotFound(err):
		utils.SendNotFound(c, err.Error())
	case models.IsTimeout(err):
		utils.SendTimeout(c, err.Error())
	case models.IsAborted(err):
		utils.SendServiceUnavailable(c, "request aborted")
	case models.IsService(err), models.IsNetwork(err):
		utils.SendServiceUnavailable(c, err.Error())
	case models.IsComputation(err):
		utils.SendInternalError(c, "prediction computation failed")
	default:
		utils.SendInternalError(c, "internal error")
	}
}
