package models

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mmdatafocus/compliance_backend/utils"
	"gorm.io/gorm"
)

type AuditFinding struct {
	ID              int           `gorm:"primaryKey;autoIncrement:false" json:"id"`
	AuditId         int           `gorm:"not null" json:"audit_id"`
	ClauseNo        string        `gorm:"size:20;not null" json:"clause_no"`
	ClauseSeq       int           `gorm:"not null" json:"clause_seq"`
	NcNo            string        `gorm:"size:120;not null" json:"nc_no"`
	DescriptionType FindingType   `gorm:"size:10;not null" json:"description_type"`
	Evidence        string        `gorm:"type:text" json:"evidence"`
	Comment         string        `gorm:"type:text" json:"comment"`
	Status          FindingStatus `gorm:"size:10;not null" json:"status"`
	CreatedById     int           `gorm:"not null" json:"created_by_id"`
	CreatedAt       time.Time     `json:"created_at"`
}

type NewFinding struct {
	ClauseNo        string      `json:"clause_no" validate:"required,max=20"`
	DescriptionType FindingType `json:"description_type" validate:"required"`
	Evidence        string      `json:"evidence"`
	Comment         string      `json:"comment"`
}

// RecordedFinding is the finding plus the nonconformity opened for it, if any.
type RecordedFinding struct {
	Finding       *AuditFinding  `json:"finding"`
	Nonconformity *Nonconformity `json:"nonconformity,omitempty"`
}

// ncNumber is TENANT-auditNo-clauseNo-seq.
func ncNumber(tenantCode, auditNo, clauseNo string, seq int) string {
	return fmt.Sprintf("%s-%s-%s-%d", tenantCode, auditNo, clauseNo, seq)
}

// RecordFinding adds a finding to an open audit. Major and minor
// nonconformities get an NC number and a Draft nonconformity to correct;
// observations and improvement opportunities are Done straight away.
func RecordFinding(ctx context.Context, kind AuditKind, auditId int, input *NewFinding) (*RecordedFinding, error) {
	ts, err := kind.tables()
	if err != nil {
		return nil, err
	}
	if err := utils.ValidateInput(input); err != nil {
		return nil, err
	}
	if !input.DescriptionType.IsValid() {
		return nil, utils.InvalidField("description_type", "oneof")
	}
	clauseNo := strings.TrimSpace(input.ClauseNo)

	var result RecordedFinding
	err = runTenantTx(ctx, "RecordFinding", func(tx *gorm.DB, s *session) error {
		// the audit lock serializes sequence numbering per audit
		audit, err := findAudit(tx, s.ns, ts, auditId, true)
		if err != nil {
			return err
		}
		if audit.Status != AuditStatusInProcess {
			return fmt.Errorf("%w: audit %d is %s, findings can only be added while In Process", utils.ErrIllegalState, auditId, audit.Status)
		}

		// count of prior findings on the clause, kept gap-free against deletions
		var lastSeq int
		if err := tx.Table(s.ns.Table(ts.Finding)).
			Select("COALESCE(MAX(clause_seq), 0)").
			Where("audit_id = ? AND clause_no = ?", auditId, clauseNo).
			Scan(&lastSeq).Error; err != nil {
			return err
		}
		seq := lastSeq + 1

		findingId, err := nextIds(tx, s.ns, ts.Finding, 1)
		if err != nil {
			return err
		}
		finding := AuditFinding{
			ID:              findingId,
			AuditId:         auditId,
			ClauseNo:        clauseNo,
			ClauseSeq:       seq,
			DescriptionType: input.DescriptionType,
			Evidence:        input.Evidence,
			Comment:         input.Comment,
			Status:          FindingStatusDone,
			CreatedById:     s.actorId,
		}
		if input.DescriptionType.IsNonconformity() {
			finding.NcNo = ncNumber(s.ns.Code(), audit.AuditNo, clauseNo, seq)
			finding.Status = FindingStatusDraft
		}
		if err := tx.Table(s.ns.Table(ts.Finding)).Create(&finding).Error; err != nil {
			return err
		}
		result.Finding = &finding

		if finding.NcNo != "" {
			ncId, err := nextIds(tx, s.ns, ts.Nonconformity, 1)
			if err != nil {
				return err
			}
			nc := Nonconformity{
				ID:              ncId,
				AuditId:         auditId,
				FindingId:       finding.ID,
				NcNo:            finding.NcNo,
				ClauseNo:        clauseNo,
				DescriptionType: finding.DescriptionType,
				Status:          NonconformityStatusDraft,
			}
			if err := tx.Table(s.ns.Table(ts.Nonconformity)).Create(&nc).Error; err != nil {
				return err
			}
			result.Nonconformity = &nc
		}
		return createLog(tx, s, ts.FindingModule, finding.ID, LogActionAdd)
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}
