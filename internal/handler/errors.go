package handler

import (
	"errors"
	"net/http"

	"fleetops/internal/service"
	"fleetops/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"fleetops/internal/middleware"
)

// respondError maps service errors onto HTTP statuses. Unknown errors are
// logged and reported with a generic message.
func respondError(c *gin.Context, err error) {
	var verr *service.ValidationError
	var cerr *service.ConflictError

	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, response.ErrorWithDetails(http.StatusBadRequest, "Validation failed", verr.Issues))
	case errors.As(err, &cerr):
		if len(cerr.Fields) > 0 {
			c.JSON(http.StatusConflict, response.ErrorWithDetails(http.StatusConflict, cerr.Message, gin.H{"fields": cerr.Fields}))
			return
		}
		c.JSON(http.StatusConflict, response.Error(http.StatusConflict, cerr.Message))
	case errors.Is(err, service.ErrValidation):
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, err.Error()))
	case errors.Is(err, service.ErrConflict):
		c.JSON(http.StatusConflict, response.Error(http.StatusConflict, err.Error()))
	case errors.Is(err, service.ErrNotFound):
		c.JSON(http.StatusNotFound, response.Error(http.StatusNotFound, err.Error()))
	case errors.Is(err, service.ErrForbidden):
		c.JSON(http.StatusForbidden, response.Error(http.StatusForbidden, err.Error()))
	case errors.Is(err, service.ErrUnauthorized):
		c.JSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, err.Error()))
	default:
		log.Error().Err(err).Str("method", c.Request.Method).Str("path", c.FullPath()).Msg("request failed")
		c.JSON(http.StatusInternalServerError, response.Error(http.StatusInternalServerError, "Internal server error"))
	}
}

// badRequest reports a payload gin could not bind.
func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
}

// requireActor returns the caller's id or aborts with 401 when the route ran without authentication.
func requireActor(c *gin.Context) (uuid.UUID, bool) {
	id, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "Authentication required"))
	}
	return id, ok
}
