package handlers

import (
	"context"
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/your-org/safety/internal/models"
	"github.com/your-org/safety/pkg/dto"
)

// ConfigStore is implemented by storage.PostgresStore.
type ConfigStore interface {
	GetSystemConfig(ctx context.Context, defaults models.SystemConfig) (*models.SystemConfig, error)
	UpdateSystemConfig(ctx context.Context, cfg models.SystemConfig) (*models.SystemConfig, error)
}

type ConfigHandler struct {
	store    ConfigStore
	defaults models.SystemConfig
}

func NewConfigHandler(store ConfigStore, defaults models.SystemConfig) *ConfigHandler {
	return &ConfigHandler{store: store, defaults: defaults}
}

func configResponse(cfg *models.SystemConfig) dto.SystemConfigResponse {
	equipment := cfg.RequiredEquipment
	if equipment == nil {
		equipment = []string{}
	}
	return dto.SystemConfigResponse{
		AdminPassword:       cfg.AdminPassword,
		WarningDelaySeconds: cfg.WarningDelaySeconds,
		RequiredEquipment:   equipment,
		UpdatedAt:           cfg.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

// Get returns the settings row, creating it from defaults on first access.
func (h *ConfigHandler) Get(c *gin.Context) {
	cfg, err := h.store.GetSystemConfig(c.Request.Context(), h.defaults)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, configResponse(cfg))
}

func (h *ConfigHandler) Update(c *gin.Context) {
	var req dto.UpdateSystemConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	cfg, err := h.store.UpdateSystemConfig(c.Request.Context(), models.SystemConfig{
		AdminPassword:       req.AdminPassword,
		WarningDelaySeconds: *req.WarningDelaySeconds,
		RequiredEquipment:   dedupe(req.RequiredEquipment),
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, configResponse(cfg))
}

// VerifyAdmin answers 200 when the password matches and 401 otherwise.
func (h *ConfigHandler) VerifyAdmin(c *gin.Context) {
	var req dto.VerifyAdminRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	cfg, err := h.store.GetSystemConfig(c.Request.Context(), h.defaults)
	if err != nil {
		respondError(c, err)
		return
	}
	if subtle.ConstantTimeCompare([]byte(req.Password), []byte(cfg.AdminPassword)) != 1 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "password mismatch"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *ConfigHandler) Equipment(c *gin.Context) {
	cfg, err := h.store.GetSystemConfig(c.Request.Context(), h.defaults)
	if err != nil {
		respondError(c, err)
		return
	}
	equipment := cfg.RequiredEquipment
	if equipment == nil {
		equipment = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"equipment": equipment})
}

// dedupe keeps the first occurrence of each non-empty name, in order.
func dedupe(items []string) []string {
	out := make([]string, 0, len(items))
	seen := make(map[string]struct{}, len(items))
	for _, it := range items {
		if it == "" {
			continue
		}
		if _, ok := seen[it]; ok {
			continue
		}
		seen[it] = struct{}{}
		out = append(out, it)
	}
	return out
}
