package models

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mmdatafocus/compliance_backend/tenant"
	"github.com/mmdatafocus/compliance_backend/utils"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Audit is one standard audited under a plan. Internal and external audits
// share this shape and live in separate tables.
type Audit struct {
	ID                  int         `gorm:"primaryKey;autoIncrement:false" json:"id"`
	PlanId              int         `gorm:"not null" json:"plan_id"`
	AuditNo             string      `gorm:"size:50;not null" json:"audit_no"`
	StandardId          int         `gorm:"not null" json:"standard_id"`
	StandardName        string      `gorm:"size:150;not null" json:"standard_name"`
	AuditDate           string      `gorm:"size:10;not null" json:"audit_date"`
	Status              AuditStatus `gorm:"size:20;not null" json:"status"`
	Scope               string      `gorm:"type:text" json:"scope"`
	CertificationBodyId int         `gorm:"not null" json:"certification_body_id"`
	CreatedById         int         `gorm:"not null" json:"created_by_id"`
	CreatedAt           time.Time   `json:"created_at"`
	UpdatedAt           time.Time   `json:"updated_at"`

	Findings []AuditFinding `gorm:"-" json:"findings,omitempty"`
}

type NewAudit struct {
	PlanId              int    `json:"plan_id" validate:"required,gt=0"`
	StandardName        string `json:"standard_name" validate:"required,max=150"`
	AuditNo             string `json:"audit_no" validate:"required,max=50"`
	AuditDate           string `json:"audit_date" validate:"required,datetime=2006-01-02"`
	Scope               string `json:"scope"`
	CertificationBodyId int    `json:"certification_body_id" validate:"gte=0"`
}

func findAudit(db *gorm.DB, ns tenant.Namespace, ts tableSet, id int, forUpdate bool) (*Audit, error) {
	dbCtx := db.Table(ns.Table(ts.Audit))
	if forUpdate {
		dbCtx = dbCtx.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var audit Audit
	err := dbCtx.Where("id = ?", id).Take(&audit).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: audit %d", utils.ErrorRecordNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &audit, nil
}

// lockAuditWithPlan takes the plan lock before the audit lock. Every path
// that touches both does the same, so they cannot deadlock.
func lockAuditWithPlan(tx *gorm.DB, ns tenant.Namespace, ts tableSet, id int) (*Audit, *AuditPlan, error) {
	audit, err := findAudit(tx, ns, ts, id, false)
	if err != nil {
		return nil, nil, err
	}
	plan, err := lockPlan(tx, ns, ts, audit.PlanId)
	if err != nil {
		return nil, nil, err
	}
	audit, err = findAudit(tx, ns, ts, id, true)
	if err != nil {
		return nil, nil, err
	}
	return audit, plan, nil
}

func CreateAudit(ctx context.Context, kind AuditKind, input *NewAudit) (*Audit, error) {
	ts, err := kind.tables()
	if err != nil {
		return nil, err
	}
	if err := utils.ValidateInput(input); err != nil {
		return nil, err
	}

	var audit Audit
	err = runTenantTx(ctx, "CreateAudit", func(tx *gorm.DB, s *session) error {
		standard, err := findStandardByName(tx, input.StandardName)
		if err != nil {
			return err
		}
		plan, err := lockPlan(tx, s.ns, ts, input.PlanId)
		if err != nil {
			return err
		}

		var assigned int64
		if err := tx.Table(s.ns.Table(ts.PlanStandard)).
			Where("plan_id = ? AND standard_id = ?", plan.ID, standard.ID).
			Count(&assigned).Error; err != nil {
			return err
		}
		if assigned == 0 {
			return fmt.Errorf("%w: standard %q is not part of audit plan %d", utils.ErrorRecordNotFound, standard.Name, plan.ID)
		}

		// one audit per standard of a plan; the assignment row tracks exactly that audit
		auditNo := strings.TrimSpace(input.AuditNo)
		var existing []string
		if err := tx.Table(s.ns.Table(ts.Audit)).
			Where("standard_id = ? AND plan_id = ?", standard.ID, plan.ID).
			Pluck("audit_no", &existing).Error; err != nil {
			return err
		}
		if len(existing) > 0 {
			return fmt.Errorf("%w: %s already has audit %s under plan %d", utils.ErrDuplicateAudit, standard.Name, existing[0], plan.ID)
		}

		certificationBodyId := input.CertificationBodyId
		if kind == AuditKindExternal {
			if certificationBodyId == 0 {
				certificationBodyId = plan.CertificationBodyId
			}
			if err := certificationBodyExists(tx, certificationBodyId); err != nil {
				return err
			}
		}

		id, err := nextIds(tx, s.ns, ts.Audit, 1)
		if err != nil {
			return err
		}
		audit = Audit{
			ID:                  id,
			PlanId:              plan.ID,
			AuditNo:             auditNo,
			StandardId:          standard.ID,
			StandardName:        standard.Name,
			AuditDate:           input.AuditDate,
			Status:              AuditStatusInProcess,
			Scope:               input.Scope,
			CertificationBodyId: certificationBodyId,
			CreatedById:         s.actorId,
		}
		if err := tx.Table(s.ns.Table(ts.Audit)).Create(&audit).Error; err != nil {
			return err
		}
		if err := setAssignmentStatus(tx, s.ns, ts, plan.ID, standard.ID, AssignmentStatusInProcess); err != nil {
			return err
		}
		if _, err := refreshPlanStatus(tx, s.ns, ts, plan); err != nil {
			return err
		}
		return createLog(tx, s, ts.AuditModule, audit.ID, LogActionAdd)
	})
	if err != nil {
		return nil, err
	}
	return &audit, nil
}

// auditTransition moves an audit between statuses. The standard stays
// started either way, so the plan status is left alone.
type auditTransition struct {
	op     string
	from   AuditStatus
	to     AuditStatus
	action string
}

var (
	approveAuditTransition = auditTransition{
		op:     "ApproveAudit",
		from:   AuditStatusInProcess,
		to:     AuditStatusComplete,
		action: LogActionApprove,
	}
	revertAuditTransition = auditTransition{
		op:     "RevertAudit",
		from:   AuditStatusComplete,
		to:     AuditStatusInProcess,
		action: LogActionRevertStatus,
	}
)

func ApproveAudit(ctx context.Context, kind AuditKind, id int) (*Audit, error) {
	return transitionAudit(ctx, kind, id, approveAuditTransition)
}

// RevertAudit reopens a Complete audit.
func RevertAudit(ctx context.Context, kind AuditKind, id int) (*Audit, error) {
	return transitionAudit(ctx, kind, id, revertAuditTransition)
}

func transitionAudit(ctx context.Context, kind AuditKind, id int, t auditTransition) (*Audit, error) {
	ts, err := kind.tables()
	if err != nil {
		return nil, err
	}

	var audit *Audit
	err = runTenantTx(ctx, t.op, func(tx *gorm.DB, s *session) error {
		current, err := findAudit(tx, s.ns, ts, id, true)
		if err != nil {
			return err
		}
		if current.Status != t.from {
			return fmt.Errorf("%w: audit %d is %s, expected %s", utils.ErrIllegalTransition, id, current.Status, t.from)
		}

		res := tx.Table(s.ns.Table(ts.Audit)).Where("id = ?", id).Updates(map[string]interface{}{
			"status":     t.to,
			"updated_at": time.Now(),
		})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: audit %d", utils.ErrorRecordNotFound, id)
		}
		if err := createLog(tx, s, ts.AuditModule, id, t.action); err != nil {
			return err
		}
		audit, err = findAudit(tx, s.ns, ts, id, false)
		return err
	})
	if err != nil {
		return nil, err
	}
	return audit, nil
}

// DeleteAudit removes an open audit with its findings and nonconformities and
// hands the standard back to the plan as not started.
func DeleteAudit(ctx context.Context, kind AuditKind, id int) (*Audit, error) {
	ts, err := kind.tables()
	if err != nil {
		return nil, err
	}

	var audit *Audit
	err = runTenantTx(ctx, "DeleteAudit", func(tx *gorm.DB, s *session) error {
		current, plan, err := lockAuditWithPlan(tx, s.ns, ts, id)
		if err != nil {
			return err
		}
		if current.Status == AuditStatusComplete {
			return fmt.Errorf("%w: audit %d is Complete, revert it before deleting", utils.ErrIllegalState, id)
		}

		if err := tx.Table(s.ns.Table(ts.Nonconformity)).Where("audit_id = ?", id).Delete(&Nonconformity{}).Error; err != nil {
			return err
		}
		if err := tx.Table(s.ns.Table(ts.Finding)).Where("audit_id = ?", id).Delete(&AuditFinding{}).Error; err != nil {
			return err
		}
		res := tx.Table(s.ns.Table(ts.Audit)).Where("id = ?", id).Delete(&Audit{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: audit %d", utils.ErrorRecordNotFound, id)
		}

		if err := setAssignmentStatus(tx, s.ns, ts, plan.ID, current.StandardId, AssignmentStatusNotStarted); err != nil {
			return err
		}
		if _, err := refreshPlanStatus(tx, s.ns, ts, plan); err != nil {
			return err
		}
		audit = current
		return createLog(tx, s, ts.AuditModule, id, LogActionDelete)
	})
	if err != nil {
		return nil, err
	}
	return audit, nil
}

// GetAudit returns the audit with its findings in recording order.
func GetAudit(ctx context.Context, kind AuditKind, id int) (*Audit, error) {
	ts, err := kind.tables()
	if err != nil {
		return nil, err
	}
	db, ns, err := tenantDB(ctx)
	if err != nil {
		return nil, err
	}
	audit, err := findAudit(db, ns, ts, id, false)
	if err != nil {
		return nil, err
	}
	if err := db.Table(ns.Table(ts.Finding)).Where("audit_id = ?", id).Order("id").Find(&audit.Findings).Error; err != nil {
		return nil, err
	}
	return audit, nil
}

type AuditFilter struct {
	PlanId *int
	Status *AuditStatus
}

func GetAudits(ctx context.Context, kind AuditKind, filter AuditFilter, page Page) (*PageResult[Audit], error) {
	ts, err := kind.tables()
	if err != nil {
		return nil, err
	}
	db, ns, err := tenantDB(ctx)
	if err != nil {
		return nil, err
	}
	dbCtx := db.Table(ns.Table(ts.Audit))
	if filter.PlanId != nil {
		dbCtx = dbCtx.Where("plan_id = ?", *filter.PlanId)
	}
	if filter.Status != nil {
		dbCtx = dbCtx.Where("status = ?", *filter.Status)
	}
	return paginate[Audit](dbCtx, page)
}
