package models

import "time"

// SystemConfig is the singleton settings row.
type SystemConfig struct {
	AdminPassword       string    `json:"admin_password" db:"admin_password"`
	WarningDelaySeconds int       `json:"warning_delay_seconds" db:"warning_delay_seconds"`
	RequiredEquipment   []string  `json:"required_equipment" db:"required_equipment"`
	UpdatedAt           time.Time `json:"updated_at" db:"updated_at"`
}
