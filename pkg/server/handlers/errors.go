// Package handlers implements the HTTP endpoint handlers.
package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/atlasgraph/atlas/pkg/server/dto"
	"github.com/atlasgraph/atlas/pkg/types"
)

// writeError maps engine errors onto HTTP status codes and writes the
// error envelope.
func writeError(c *gin.Context, err error) {
	var verr *types.ValidationError

	status := http.StatusInternalServerError
	label := "internal_error"

	switch {
	case errors.As(err, &verr):
		status = http.StatusBadRequest
		label = "invalid_request"
	case errors.Is(err, types.ErrNotFound):
		status = http.StatusNotFound
		label = "not_found"
	case errors.Is(err, types.ErrServiceUnavailable):
		status = http.StatusServiceUnavailable
		label = "service_unavailable"
	case errors.Is(err, types.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
		label = "timeout"
	}

	c.JSON(status, dto.ErrorResponse{
		Error:   label,
		Message: err.Error(),
		Code:    status,
	})
}

// writeBadRequest writes a 400 for request-shape failures found before
// the engine is involved.
func writeBadRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, dto.ErrorResponse{
		Error:   "invalid_request",
		Message: err.Error(),
		Code:    http.StatusBadRequest,
	})
}
