package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/your-org/safety/internal/models"
	"github.com/your-org/safety/pkg/dto"
)

// RecognitionPublisher is the report channel: the NATS producer, or the
// broadcast bus directly when no queue is configured.
type RecognitionPublisher interface {
	PublishRecognition(ctx context.Context, result models.RecognitionResult) error
}

type RecognitionHandler struct {
	publisher RecognitionPublisher
}

func NewRecognitionHandler(publisher RecognitionPublisher) *RecognitionHandler {
	return &RecognitionHandler{publisher: publisher}
}

// Report accepts a recognition report from an external detector.
func (h *RecognitionHandler) Report(c *gin.Context) {
	var report dto.RecognitionReport
	if err := c.ShouldBindJSON(&report); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	result, err := report.ToResult()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.publisher.PublishRecognition(c.Request.Context(), result); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"broadcast": result.Broadcastable()})
}
