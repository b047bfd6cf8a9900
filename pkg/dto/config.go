package dto

type SystemConfigResponse struct {
	AdminPassword       string   `json:"adminPassword"`
	WarningDelaySeconds int      `json:"warningDelaySeconds"`
	RequiredEquipment   []string `json:"requiredEquipment"`
	UpdatedAt           string   `json:"updatedAt"`
}

type UpdateSystemConfigRequest struct {
	AdminPassword       string   `json:"adminPassword" binding:"required"`
	WarningDelaySeconds *int     `json:"warningDelaySeconds" binding:"required,min=0"`
	RequiredEquipment   []string `json:"requiredEquipment"`
}

type VerifyAdminRequest struct {
	Password string `json:"password"`
}
