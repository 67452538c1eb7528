package models

import (
	"context"
	"time"

	"github.com/mmdatafocus/compliance_backend/tenant"
	"gorm.io/gorm"
)

// LogEntry is the append-only audit trail. One row per mutating operation.
type LogEntry struct {
	ID         int       `gorm:"primaryKey;autoIncrement:false" json:"id"`
	LogDate    time.Time `gorm:"not null" json:"date"`
	ActorId    int       `gorm:"not null" json:"actor_id"`
	ActorName  string    `gorm:"size:100;not null" json:"actor"`
	Action     string    `gorm:"size:30;not null" json:"action"`
	ModuleName string    `gorm:"size:50;not null" json:"module_name"`
	ModuleId   int       `gorm:"not null" json:"module_id"`
}

func createLog(tx *gorm.DB, s *session, moduleName string, moduleId int, action string) error {
	id, err := nextIds(tx, s.ns, tenant.LogMaster, 1)
	if err != nil {
		return err
	}
	entry := LogEntry{
		ID:         id,
		LogDate:    time.Now().UTC(),
		ActorId:    s.actorId,
		ActorName:  s.actorName,
		Action:     action,
		ModuleName: moduleName,
		ModuleId:   moduleId,
	}
	if err := tx.Table(s.ns.Table(tenant.LogMaster)).Create(&entry).Error; err != nil {
		return err
	}
	s.logs = append(s.logs, entry)
	return nil
}

type LogFilter struct {
	ModuleName *string
	ModuleId   *int
	Limit      int
}

// GetLogEntries returns newest first.
func GetLogEntries(ctx context.Context, filter LogFilter) ([]*LogEntry, error) {
	db, ns, err := tenantDB(ctx)
	if err != nil {
		return nil, err
	}
	dbCtx := db.Table(ns.Table(tenant.LogMaster))
	if filter.ModuleName != nil {
		dbCtx = dbCtx.Where("module_name = ?", *filter.ModuleName)
	}
	if filter.ModuleId != nil {
		dbCtx = dbCtx.Where("module_id = ?", *filter.ModuleId)
	}
	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	var entries []*LogEntry
	if err := dbCtx.Order("id DESC").Limit(limit).Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}
