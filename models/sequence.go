package models

import (
	"errors"

	"github.com/mmdatafocus/compliance_backend/tenant"
	"github.com/mmdatafocus/compliance_backend/utils"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Sequence holds the last id handed out for one tenant collection.
type Sequence struct {
	Collection string `gorm:"primaryKey;size:64" json:"collection"`
	LastId     int    `gorm:"not null" json:"last_id"`
}

// nextIds reserves n consecutive ids for collection and returns the first.
// The sequence row stays locked until the caller's transaction ends, so two
// concurrent creators never see the same value.
func nextIds(tx *gorm.DB, ns tenant.Namespace, collection string, n int) (int, error) {
	if n <= 0 {
		return 0, nil
	}
	table := ns.Table(tenant.Sequences)

	seq, err := lockSequence(tx, table, collection)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		// first use on a legacy table: continue after the highest existing id
		var maxId int
		if err := tx.Table(ns.Table(collection)).Select("COALESCE(MAX(id), 0)").Scan(&maxId).Error; err != nil {
			return 0, err
		}
		seq = &Sequence{Collection: collection, LastId: maxId}
		err = tx.Table(table).Create(seq).Error
		if utils.IsDuplicateKeyError(err) {
			// another transaction seeded it first
			seq, err = lockSequence(tx, table, collection)
		}
	}
	if err != nil {
		return 0, err
	}

	if err := tx.Table(table).
		Where("collection = ?", collection).
		Update("last_id", seq.LastId+n).Error; err != nil {
		return 0, err
	}
	return seq.LastId + 1, nil
}

func lockSequence(tx *gorm.DB, table, collection string) (*Sequence, error) {
	var seq Sequence
	err := tx.Table(table).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("collection = ?", collection).
		Take(&seq).Error
	if err != nil {
		return nil, err
	}
	return &seq, nil
}

// sequencedCollections are the tenant tables whose ids come from nextIds.
var sequencedCollections = []string{
	tenant.AuditPlan, tenant.AuditPlanAuditor, tenant.AuditPlanStandard, tenant.AuditPlanDetail,
	tenant.ExternalAuditPlan, tenant.ExternalAuditPlanAuditor, tenant.ExternalAuditPlanStandard, tenant.ExternalAuditPlanDetail,
	tenant.InternalAuditMaster, tenant.InternalAuditDetail, tenant.ExternalAuditMaster, tenant.ExternalAuditDetail,
	tenant.InternalNonconformities, tenant.ExternalNonconformities,
	tenant.GapAssessmentHeader, tenant.GapAssessmentDetail,
	tenant.LogMaster, tenant.Attachments,
}
