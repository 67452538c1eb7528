package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mmdatafocus/compliance_backend/tenant"
	"github.com/mmdatafocus/compliance_backend/utils"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Nonconformity tracks correction of an NC finding. Its status always matches
// the finding that carries the same NC number.
type Nonconformity struct {
	ID                   int                 `gorm:"primaryKey;autoIncrement:false" json:"id"`
	AuditId              int                 `gorm:"not null" json:"audit_id"`
	FindingId            int                 `gorm:"not null" json:"finding_id"`
	NcNo                 string              `gorm:"size:120;not null" json:"nc_no"`
	ClauseNo             string              `gorm:"size:20;not null" json:"clause_no"`
	DescriptionType      FindingType         `gorm:"size:10;not null" json:"description_type"`
	Status               NonconformityStatus `gorm:"size:10;not null" json:"status"`
	CorrectionBy         string              `gorm:"size:100" json:"correction_by"`
	CorrectionDate       string              `gorm:"size:10" json:"correction_date"`
	Correction           string              `gorm:"type:text" json:"correction"`
	RootCause            string              `gorm:"type:text" json:"root_cause"`
	CorrectiveActionBy   string              `gorm:"size:100" json:"corrective_action_by"`
	CorrectiveActionDate string              `gorm:"size:10" json:"corrective_action_date"`
	CorrectiveAction     string              `gorm:"type:text" json:"corrective_action"`
	ApprovedById         int                 `gorm:"not null" json:"approved_by_id"`
	ApprovedBy           string              `gorm:"size:100;not null" json:"approved_by"`
	ApprovedDate         string              `gorm:"size:10;not null" json:"approved_date"`
	CreatedAt            time.Time           `json:"created_at"`
	UpdatedAt            time.Time           `json:"updated_at"`
}

// NewNonconformityCorrection carries the auditee's response. The NC number is not writable.
type NewNonconformityCorrection struct {
	CorrectionBy         string `json:"correction_by" validate:"max=100"`
	CorrectionDate       string `json:"correction_date" validate:"omitempty,datetime=2006-01-02"`
	Correction           string `json:"correction"`
	RootCause            string `json:"root_cause"`
	CorrectiveActionBy   string `json:"corrective_action_by" validate:"max=100"`
	CorrectiveActionDate string `json:"corrective_action_date" validate:"omitempty,datetime=2006-01-02"`
	CorrectiveAction     string `json:"corrective_action"`
}

func findNonconformity(db *gorm.DB, ns tenant.Namespace, ts tableSet, id int, forUpdate bool) (*Nonconformity, error) {
	dbCtx := db.Table(ns.Table(ts.Nonconformity))
	if forUpdate {
		dbCtx = dbCtx.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var nc Nonconformity
	err := dbCtx.Where("id = ?", id).Take(&nc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: nonconformity %d", utils.ErrorRecordNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &nc, nil
}

// setMatchingFindingStatus updates the finding with the same audit and NC number.
// A missing finding means the pair has drifted apart, and the caller rolls back.
func setMatchingFindingStatus(tx *gorm.DB, ns tenant.Namespace, ts tableSet, nc *Nonconformity, status FindingStatus) error {
	res := tx.Table(ns.Table(ts.Finding)).
		Where("audit_id = ? AND nc_no = ?", nc.AuditId, nc.NcNo).
		Update("status", status)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: no finding carries nonconformity %s", utils.ErrIllegalState, nc.NcNo)
	}
	return nil
}

type nonconformityTransition struct {
	op      string
	from    NonconformityStatus
	to      NonconformityStatus
	finding FindingStatus
	action  string
}

var (
	approveNonconformityTransition = nonconformityTransition{
		op:      "ApproveNonconformity",
		from:    NonconformityStatusDraft,
		to:      NonconformityStatusDone,
		finding: FindingStatusDone,
		action:  LogActionDone,
	}
	revertNonconformityTransition = nonconformityTransition{
		op:      "RevertNonconformity",
		from:    NonconformityStatusDone,
		to:      NonconformityStatusDraft,
		finding: FindingStatusDraft,
		action:  LogActionRevertStatus,
	}
)

func ApproveNonconformity(ctx context.Context, kind AuditKind, id int) (*Nonconformity, error) {
	return transitionNonconformity(ctx, kind, id, approveNonconformityTransition)
}

func RevertNonconformity(ctx context.Context, kind AuditKind, id int) (*Nonconformity, error) {
	return transitionNonconformity(ctx, kind, id, revertNonconformityTransition)
}

func transitionNonconformity(ctx context.Context, kind AuditKind, id int, t nonconformityTransition) (*Nonconformity, error) {
	ts, err := kind.tables()
	if err != nil {
		return nil, err
	}

	var nc *Nonconformity
	err = runTenantTx(ctx, t.op, func(tx *gorm.DB, s *session) error {
		current, err := findNonconformity(tx, s.ns, ts, id, true)
		if err != nil {
			return err
		}
		if current.Status != t.from {
			return fmt.Errorf("%w: nonconformity %d is %s, expected %s", utils.ErrIllegalTransition, id, current.Status, t.from)
		}

		updates := map[string]interface{}{"status": t.to, "updated_at": time.Now()}
		if t.to == NonconformityStatusDone {
			updates["approved_by_id"] = s.actorId
			updates["approved_by"] = s.actorName
			updates["approved_date"] = utils.Today()
		} else {
			updates["approved_by_id"] = 0
			updates["approved_by"] = ""
			updates["approved_date"] = ""
		}
		if err := tx.Table(s.ns.Table(ts.Nonconformity)).Where("id = ?", id).Updates(updates).Error; err != nil {
			return err
		}
		if err := setMatchingFindingStatus(tx, s.ns, ts, current, t.finding); err != nil {
			return err
		}
		if err := createLog(tx, s, ts.NonconformityModule, id, t.action); err != nil {
			return err
		}
		nc, err = findNonconformity(tx, s.ns, ts, id, false)
		return err
	})
	if err != nil {
		return nil, err
	}
	return nc, nil
}

// UpdateNonconformity records correction details while the NC is still Draft.
func UpdateNonconformity(ctx context.Context, kind AuditKind, id int, input *NewNonconformityCorrection) (*Nonconformity, error) {
	ts, err := kind.tables()
	if err != nil {
		return nil, err
	}
	if err := utils.ValidateInput(input); err != nil {
		return nil, err
	}

	var nc *Nonconformity
	err = runTenantTx(ctx, "UpdateNonconformity", func(tx *gorm.DB, s *session) error {
		current, err := findNonconformity(tx, s.ns, ts, id, true)
		if err != nil {
			return err
		}
		if current.Status != NonconformityStatusDraft {
			return fmt.Errorf("%w: nonconformity %d is %s and can no longer be edited", utils.ErrIllegalState, id, current.Status)
		}
		if err := tx.Table(s.ns.Table(ts.Nonconformity)).Where("id = ?", id).Updates(map[string]interface{}{
			"correction_by":          input.CorrectionBy,
			"correction_date":        input.CorrectionDate,
			"correction":             input.Correction,
			"root_cause":             input.RootCause,
			"corrective_action_by":   input.CorrectiveActionBy,
			"corrective_action_date": input.CorrectiveActionDate,
			"corrective_action":      input.CorrectiveAction,
			"updated_at":             time.Now(),
		}).Error; err != nil {
			return err
		}
		if err := createLog(tx, s, ts.NonconformityModule, id, LogActionEdit); err != nil {
			return err
		}
		nc, err = findNonconformity(tx, s.ns, ts, id, false)
		return err
	})
	if err != nil {
		return nil, err
	}
	return nc, nil
}

// DeleteNonconformity withdraws a Draft NC together with the finding that raised it.
func DeleteNonconformity(ctx context.Context, kind AuditKind, id int) (*Nonconformity, error) {
	ts, err := kind.tables()
	if err != nil {
		return nil, err
	}

	var nc *Nonconformity
	err = runTenantTx(ctx, "DeleteNonconformity", func(tx *gorm.DB, s *session) error {
		current, err := findNonconformity(tx, s.ns, ts, id, true)
		if err != nil {
			return err
		}
		if current.Status != NonconformityStatusDraft {
			return fmt.Errorf("%w: nonconformity %d is %s, only Draft can be deleted", utils.ErrIllegalState, id, current.Status)
		}
		res := tx.Table(s.ns.Table(ts.Nonconformity)).Where("id = ?", id).Delete(&Nonconformity{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: nonconformity %d", utils.ErrorRecordNotFound, id)
		}
		if err := tx.Table(s.ns.Table(ts.Finding)).
			Where("audit_id = ? AND nc_no = ?", current.AuditId, current.NcNo).
			Delete(&AuditFinding{}).Error; err != nil {
			return err
		}
		nc = current
		return createLog(tx, s, ts.NonconformityModule, id, LogActionDelete)
	})
	if err != nil {
		return nil, err
	}
	return nc, nil
}

func GetNonconformity(ctx context.Context, kind AuditKind, id int) (*Nonconformity, error) {
	ts, err := kind.tables()
	if err != nil {
		return nil, err
	}
	db, ns, err := tenantDB(ctx)
	if err != nil {
		return nil, err
	}
	return findNonconformity(db, ns, ts, id, false)
}

type NonconformityFilter struct {
	AuditId *int
	Status  *NonconformityStatus
}

func GetNonconformities(ctx context.Context, kind AuditKind, filter NonconformityFilter, page Page) (*PageResult[Nonconformity], error) {
	ts, err := kind.tables()
	if err != nil {
		return nil, err
	}
	db, ns, err := tenantDB(ctx)
	if err != nil {
		return nil, err
	}
	dbCtx := db.Table(ns.Table(ts.Nonconformity))
	if filter.AuditId != nil {
		dbCtx = dbCtx.Where("audit_id = ?", *filter.AuditId)
	}
	if filter.Status != nil {
		dbCtx = dbCtx.Where("status = ?", *filter.Status)
	}
	return paginate[Nonconformity](dbCtx, page)
}

// GetAuditNonconformities returns every NC of an audit for export.
func GetAuditNonconformities(ctx context.Context, kind AuditKind, auditId int) ([]*Nonconformity, error) {
	ts, err := kind.tables()
	if err != nil {
		return nil, err
	}
	db, ns, err := tenantDB(ctx)
	if err != nil {
		return nil, err
	}
	var ncs []*Nonconformity
	if err := db.Table(ns.Table(ts.Nonconformity)).Where("audit_id = ?", auditId).Order("id").Find(&ncs).Error; err != nil {
		return nil, err
	}
	return ncs, nil
}
