package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/sachinfortude/RAMP-UP/internal/apperrors"
)

// writeError maps err onto a status. Anything that is not a caller error is
// logged and reported as a generic 500.
func (h *handler) writeError(c *gin.Context, err error) {
	var ce *apperrors.CustomError
	switch {
	case errors.Is(err, apperrors.ErrValidationFailed):
		body := gin.H{"error": err.Error()}
		if errors.As(err, &ce) && len(ce.Details) > 0 {
			body["details"] = ce.Details
		}
		c.JSON(http.StatusBadRequest, body)
	case errors.Is(err, apperrors.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	default:
		_ = c.Error(err)
		h.Log.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}
