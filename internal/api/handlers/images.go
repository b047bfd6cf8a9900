package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/your-org/safety/internal/storage"
)

type ImageHandler struct {
	images storage.ImageStore
}

func NewImageHandler(images storage.ImageStore) *ImageHandler {
	return &ImageHandler{images: images}
}

// Serve streams a stored reference image.
func (h *ImageHandler) Serve(c *gin.Context) {
	name := c.Param("name")
	if !storage.ValidRef(name) {
		c.JSON(http.StatusNotFound, gin.H{"error": "image not found"})
		return
	}

	data, err := h.images.Read(c.Request.Context(), name)
	if err != nil {
		if errors.Is(err, storage.ErrImageNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "image not found"})
			return
		}
		respondError(c, err)
		return
	}
	c.Header("Cache-Control", "private, max-age=3600")
	c.Data(http.StatusOK, storage.ContentTypeFor(name), data)
}
