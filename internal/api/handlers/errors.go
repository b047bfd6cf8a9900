package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/your-org/safety/internal/enrollment"
	"github.com/your-org/safety/internal/recognition"
)

// respondError maps the enrollment/recognition error taxonomy onto HTTP.
func respondError(c *gin.Context, err error) {
	var (
		ve *enrollment.ValidationError
		nf *enrollment.NotFoundError
		ee *recognition.ExtractionError
		ce *recognition.CommunicationError
	)
	switch {
	case errors.As(err, &ve):
		c.JSON(http.StatusBadRequest, gin.H{"error": ve.Message})
	case errors.As(err, &nf):
		c.JSON(http.StatusNotFound, gin.H{"error": nf.Error()})
	case errors.As(err, &ee):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": ee.Error()})
	case errors.As(err, &ce):
		slog.Error("recognition backend failure", "error", err, "path", c.FullPath())
		c.JSON(http.StatusBadGateway, gin.H{"error": "recognition backend unavailable"})
	default:
		slog.Error("request failed", "error", err, "path", c.FullPath())
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
