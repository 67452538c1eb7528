package models

import (
	"fmt"

	"github.com/mmdatafocus/compliance_backend/tenant"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// tenantTableModels maps every per-tenant logical table to its row type.
var tenantTableModels = map[string]interface{}{
	tenant.AuditPlan:                 &AuditPlan{},
	tenant.AuditPlanAuditor:          &AuditPlanAuditor{},
	tenant.AuditPlanStandard:         &AuditPlanStandard{},
	tenant.AuditPlanDetail:           &AuditPlanDetail{},
	tenant.ExternalAuditPlan:         &AuditPlan{},
	tenant.ExternalAuditPlanAuditor:  &AuditPlanAuditor{},
	tenant.ExternalAuditPlanStandard: &AuditPlanStandard{},
	tenant.ExternalAuditPlanDetail:   &AuditPlanDetail{},
	tenant.InternalAuditMaster:       &Audit{},
	tenant.InternalAuditDetail:       &AuditFinding{},
	tenant.ExternalAuditMaster:       &Audit{},
	tenant.ExternalAuditDetail:       &AuditFinding{},
	tenant.InternalNonconformities:   &Nonconformity{},
	tenant.ExternalNonconformities:   &Nonconformity{},
	tenant.GapAssessmentHeader:       &GapAssessmentHeader{},
	tenant.GapAssessmentDetail:       &GapAssessmentDetail{},
	tenant.LogMaster:                 &LogEntry{},
	tenant.Sequences:                 &Sequence{},
	tenant.Attachments:               &Attachment{},
}

// MigrateShared creates the catalogue tables every tenant reads.
func MigrateShared(db *gorm.DB) error {
	return db.AutoMigrate(&Standard{}, &StandardClause{}, &CertificationBody{})
}

// MigrateTenant provisions (or upgrades) all tables of one tenant and makes
// sure each sequenced collection has a counter row.
func MigrateTenant(db *gorm.DB, ns tenant.Namespace) error {
	for _, logical := range tenant.Logical() {
		model, ok := tenantTableModels[logical]
		if !ok {
			return fmt.Errorf("no model registered for %s", logical)
		}
		if err := db.Table(ns.Table(logical)).AutoMigrate(model); err != nil {
			return fmt.Errorf("migrate %s: %w", ns.Table(logical), err)
		}
	}
	for _, logical := range []string{tenant.AuditPlanDetail, tenant.ExternalAuditPlanDetail} {
		if err := ensureScheduleIndex(db, ns.Table(logical)); err != nil {
			return err
		}
	}

	return db.Transaction(func(tx *gorm.DB) error {
		for _, collection := range sequencedCollections {
			var maxId int
			if err := tx.Table(ns.Table(collection)).Select("COALESCE(MAX(id), 0)").Scan(&maxId).Error; err != nil {
				return err
			}
			seq := Sequence{Collection: collection, LastId: maxId}
			if err := tx.Table(ns.Table(tenant.Sequences)).
				Clauses(clause.OnConflict{DoNothing: true}).
				Create(&seq).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// ensureScheduleIndex makes (detail_date, auditor_name) unique per detail
// table, so one auditor cannot be booked twice on a day. The name carries the
// table because sqlite index names are database wide.
func ensureScheduleIndex(db *gorm.DB, table string) error {
	name := "uq_" + table
	if db.Migrator().HasIndex(table, name) {
		return nil
	}
	if err := db.Exec(fmt.Sprintf("CREATE UNIQUE INDEX `%s` ON `%s` (`detail_date`, `auditor_name`)", name, table)).Error; err != nil {
		return fmt.Errorf("index %s: %w", name, err)
	}
	return nil
}
