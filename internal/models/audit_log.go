package models

import "time"

// AuditLog is one journal entry written after a successful store mutation.
type AuditLog struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"createdAt"`

	Entity   Kind   `gorm:"size:50;not null;index" json:"entity"`
	EntityID string `gorm:"size:36;index" json:"entityId"`
	Action   string `gorm:"size:50;not null" json:"action"` // "create", "replace", "patch", "delete"
	Details  string `gorm:"type:text" json:"details"`
}
