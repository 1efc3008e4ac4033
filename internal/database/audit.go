package database

import (
	"context"

	"pragrisk/internal/models"

	"gorm.io/gorm"
)

// CreateAuditLog journals one mutation. The journal is best effort: a failed
// insert never fails the mutation it describes.
func CreateAuditLog(ctx context.Context, db *gorm.DB, entity models.Kind, entityID, action, details string) {
	if db == nil {
		return
	}
	record := models.AuditLog{
		Entity:   entity,
		EntityID: entityID,
		Action:   action,
		Details:  details,
	}
	_ = db.WithContext(ctx).Create(&record).Error
}

// AuditFilter narrows ListAuditLogs; empty fields match everything.
type AuditFilter struct {
	Entity   models.Kind
	EntityID string
	Limit    int
}

// ListAuditLogs returns the newest entries first.
func ListAuditLogs(ctx context.Context, db *gorm.DB, f AuditFilter) ([]models.AuditLog, error) {
	if f.Limit <= 0 || f.Limit > 500 {
		f.Limit = 100
	}
	q := db.WithContext(ctx).Order("created_at desc, id desc").Limit(f.Limit)
	if f.Entity != "" {
		q = q.Where("entity = ?", f.Entity)
	}
	if f.EntityID != "" {
		q = q.Where("entity_id = ?", f.EntityID)
	}
	var logs []models.AuditLog
	if err := q.Find(&logs).Error; err != nil {
		return nil, err
	}
	return logs, nil
}
