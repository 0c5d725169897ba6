package handlers

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"printq/internal/core"
)

// writeError maps the core error taxonomy onto HTTP. Policy rejections carry
// their machine-readable reason alongside the message.
func writeError(c *gin.Context, err error) {
	var policy *core.PolicyError
	var unauthorized *core.UnauthorizedError
	var external *core.ExternalServiceError

	switch {
	case errors.Is(err, core.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.As(err, &policy):
		c.JSON(http.StatusBadRequest, gin.H{"error": policy.Message, "reason": policy.Reason})
	case errors.As(err, &unauthorized):
		c.JSON(http.StatusForbidden, gin.H{"error": unauthorized.Message})
	case errors.As(err, &external):
		c.JSON(http.StatusBadGateway, gin.H{"error": external.Error()})
	default:
		log.Printf("[api] internal error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}
