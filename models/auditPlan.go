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

type AuditPlan struct {
	ID                  int             `gorm:"primaryKey;autoIncrement:false" json:"id"`
	PlanNo              string          `gorm:"size:50;not null" json:"plan_no"`
	ScheduledDate       string          `gorm:"size:10" json:"scheduled_date"`
	StartDate           string          `gorm:"size:10" json:"start_date"`
	EndDate             string          `gorm:"size:10" json:"end_date"`
	ReportSubmitDate    string          `gorm:"size:10" json:"report_submit_date"`
	CertificationBodyId int             `gorm:"not null" json:"certification_body_id"`
	Status              AuditPlanStatus `gorm:"size:20;not null" json:"status"`
	ApprovedById        int             `gorm:"not null" json:"approved_by_id"`
	ApprovedBy          string          `gorm:"size:100;not null" json:"approved_by"`
	ApprovedDate        string          `gorm:"size:10;not null" json:"approved_date"`
	CreatedById         int             `gorm:"not null" json:"created_by_id"`
	CreatedAt           time.Time       `json:"created_at"`
	UpdatedAt           time.Time       `json:"updated_at"`

	Auditors  []AuditPlanAuditor  `gorm:"-" json:"auditors"`
	Standards []AuditPlanStandard `gorm:"-" json:"standards"`
	Details   []AuditPlanDetail   `gorm:"-" json:"details"`
}

type AuditPlanAuditor struct {
	ID          int    `gorm:"primaryKey;autoIncrement:false" json:"id"`
	PlanId      int    `gorm:"not null" json:"plan_id"`
	Name        string `gorm:"size:100;not null" json:"name"`
	Designation string `gorm:"size:100" json:"designation"`
}

// AuditPlanStandard is a StandardAssignment: one standard audited under the plan.
type AuditPlanStandard struct {
	ID           int              `gorm:"primaryKey;autoIncrement:false" json:"id"`
	PlanId       int              `gorm:"not null" json:"plan_id"`
	StandardId   int              `gorm:"not null" json:"standard_id"`
	StandardName string           `gorm:"size:150;not null" json:"standard_name"`
	Status       AssignmentStatus `gorm:"size:20;not null" json:"status"`
}

// AuditPlanDetail is one schedule slot of an auditor on a given day.
type AuditPlanDetail struct {
	ID          int    `gorm:"primaryKey;autoIncrement:false" json:"id"`
	PlanId      int    `gorm:"not null" json:"plan_id"`
	Department  string `gorm:"size:100" json:"department"`
	DetailDate  string `gorm:"size:10;not null" json:"detail_date"`
	StartTime   string `gorm:"size:5" json:"start_time"`
	EndTime     string `gorm:"size:5" json:"end_time"`
	AuditorName string `gorm:"size:100;not null" json:"auditor_name"`
	Criteria    string `gorm:"type:text" json:"criteria"`
}

type NewAuditPlan struct {
	PlanNo              string                 `json:"plan_no" validate:"required,max=50"`
	ScheduledDate       string                 `json:"scheduled_date" validate:"omitempty,datetime=2006-01-02"`
	StartDate           string                 `json:"start_date" validate:"omitempty,datetime=2006-01-02"`
	EndDate             string                 `json:"end_date" validate:"omitempty,datetime=2006-01-02"`
	ReportSubmitDate    string                 `json:"report_submit_date" validate:"omitempty,datetime=2006-01-02"`
	CertificationBodyId int                    `json:"certification_body_id" validate:"gte=0"`
	Auditors            []NewAuditPlanAuditor  `json:"auditors" validate:"dive"`
	Standards           []NewAuditPlanStandard `json:"standards" validate:"required,min=1,dive"`
	Details             []NewAuditPlanDetail   `json:"details" validate:"dive"`
}

type NewAuditPlanAuditor struct {
	Name        string `json:"name" validate:"required,max=100"`
	Designation string `json:"designation" validate:"max=100"`
}

type NewAuditPlanStandard struct {
	StandardName string `json:"standard_name" validate:"required,max=150"`
}

type NewAuditPlanDetail struct {
	Department  string `json:"department" validate:"max=100"`
	DetailDate  string `json:"detail_date" validate:"required,datetime=2006-01-02"`
	StartTime   string `json:"start_time" validate:"omitempty,datetime=15:04"`
	EndTime     string `json:"end_time" validate:"omitempty,datetime=15:04"`
	AuditorName string `json:"auditor_name" validate:"required,max=100"`
	Criteria    string `json:"criteria"`
}

func (input *NewAuditPlan) validate(kind AuditKind) error {
	if err := utils.ValidateInput(input); err != nil {
		return err
	}
	if input.StartDate != "" && input.EndDate != "" && input.EndDate < input.StartDate {
		return utils.InvalidField("end_date", "gtefield")
	}
	if kind == AuditKindExternal && input.CertificationBodyId == 0 {
		return utils.InvalidField("certification_body_id", "required")
	}

	names := make([]string, 0, len(input.Standards))
	for _, s := range input.Standards {
		names = append(names, strings.TrimSpace(s.StandardName))
	}
	if len(utils.UniqueSlice(names)) != len(names) {
		return utils.InvalidField("standards", "unique")
	}
	return checkScheduleDuplicates(input.Details)
}

type scheduleKey struct {
	date    string
	auditor string
}

func newScheduleKey(date, auditor string) scheduleKey {
	return scheduleKey{date: strings.TrimSpace(date), auditor: strings.TrimSpace(auditor)}
}

// checkScheduleDuplicates rejects two incoming slots booking the same auditor on the same day.
func checkScheduleDuplicates(details []NewAuditPlanDetail) error {
	seen := make(map[scheduleKey]bool, len(details))
	for _, d := range details {
		key := newScheduleKey(d.DetailDate, d.AuditorName)
		if seen[key] {
			return fmt.Errorf("%w: %s is scheduled twice on %s", utils.ErrDuplicateSchedule, key.auditor, key.date)
		}
		seen[key] = true
	}
	return nil
}

// checkScheduleConflicts rejects slots that collide with another plan of the tenant.
func checkScheduleConflicts(tx *gorm.DB, ns tenant.Namespace, ts tableSet, details []NewAuditPlanDetail, exceptPlanId int) error {
	for _, d := range details {
		key := newScheduleKey(d.DetailDate, d.AuditorName)
		var count int64
		err := tx.Table(ns.Table(ts.PlanDetail)).
			Where("detail_date = ? AND auditor_name = ? AND plan_id <> ?", key.date, key.auditor, exceptPlanId).
			Count(&count).Error
		if err != nil {
			return err
		}
		if count > 0 {
			return fmt.Errorf("%w: %s is already scheduled on %s", utils.ErrDuplicateSchedule, key.auditor, key.date)
		}
	}
	return nil
}

func findPlan(db *gorm.DB, ns tenant.Namespace, ts tableSet, id int, forUpdate bool) (*AuditPlan, error) {
	dbCtx := db.Table(ns.Table(ts.Plan))
	if forUpdate {
		dbCtx = dbCtx.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var plan AuditPlan
	err := dbCtx.Where("id = ?", id).Take(&plan).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: audit plan %d", utils.ErrorRecordNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &plan, nil
}

// lockPlan serializes every read-recompute-write on the plan and its children.
func lockPlan(tx *gorm.DB, ns tenant.Namespace, ts tableSet, id int) (*AuditPlan, error) {
	return findPlan(tx, ns, ts, id, true)
}

func resolvePlanStandards(tx *gorm.DB, input []NewAuditPlanStandard) ([]*Standard, error) {
	standards := make([]*Standard, 0, len(input))
	for _, s := range input {
		standard, err := findStandardByName(tx, s.StandardName)
		if err != nil {
			return nil, err
		}
		standards = append(standards, standard)
	}
	return standards, nil
}

// insertPlanChildren allocates ids once per child collection and inserts in payload order.
func insertPlanChildren(tx *gorm.DB, ns tenant.Namespace, ts tableSet, plan *AuditPlan, input *NewAuditPlan, standards []*Standard) error {
	plan.Auditors = make([]AuditPlanAuditor, 0, len(input.Auditors))
	if len(input.Auditors) > 0 {
		first, err := nextIds(tx, ns, ts.PlanAuditor, len(input.Auditors))
		if err != nil {
			return err
		}
		for i, a := range input.Auditors {
			plan.Auditors = append(plan.Auditors, AuditPlanAuditor{
				ID:          first + i,
				PlanId:      plan.ID,
				Name:        strings.TrimSpace(a.Name),
				Designation: a.Designation,
			})
		}
		if err := tx.Table(ns.Table(ts.PlanAuditor)).Create(&plan.Auditors).Error; err != nil {
			return err
		}
	}

	plan.Standards = make([]AuditPlanStandard, 0, len(standards))
	first, err := nextIds(tx, ns, ts.PlanStandard, len(standards))
	if err != nil {
		return err
	}
	for i, s := range standards {
		plan.Standards = append(plan.Standards, AuditPlanStandard{
			ID:           first + i,
			PlanId:       plan.ID,
			StandardId:   s.ID,
			StandardName: s.Name,
			Status:       AssignmentStatusNotStarted,
		})
	}
	if err := tx.Table(ns.Table(ts.PlanStandard)).Create(&plan.Standards).Error; err != nil {
		return err
	}

	plan.Details = make([]AuditPlanDetail, 0, len(input.Details))
	if len(input.Details) > 0 {
		first, err := nextIds(tx, ns, ts.PlanDetail, len(input.Details))
		if err != nil {
			return err
		}
		for i, d := range input.Details {
			key := newScheduleKey(d.DetailDate, d.AuditorName)
			plan.Details = append(plan.Details, AuditPlanDetail{
				ID:          first + i,
				PlanId:      plan.ID,
				Department:  d.Department,
				DetailDate:  key.date,
				StartTime:   d.StartTime,
				EndTime:     d.EndTime,
				AuditorName: key.auditor,
				Criteria:    d.Criteria,
			})
		}
		if err := tx.Table(ns.Table(ts.PlanDetail)).Create(&plan.Details).Error; err != nil {
			// a concurrent plan booked the same slot after our conflict check
			if utils.IsDuplicateKeyError(err) {
				return fmt.Errorf("%w: an auditor of plan %d is already scheduled that day", utils.ErrDuplicateSchedule, plan.ID)
			}
			return err
		}
	}
	return nil
}

func deletePlanChildren(tx *gorm.DB, ns tenant.Namespace, ts tableSet, planId int) error {
	if err := tx.Table(ns.Table(ts.PlanDetail)).Where("plan_id = ?", planId).Delete(&AuditPlanDetail{}).Error; err != nil {
		return err
	}
	if err := tx.Table(ns.Table(ts.PlanStandard)).Where("plan_id = ?", planId).Delete(&AuditPlanStandard{}).Error; err != nil {
		return err
	}
	return tx.Table(ns.Table(ts.PlanAuditor)).Where("plan_id = ?", planId).Delete(&AuditPlanAuditor{}).Error
}

func CreateAuditPlan(ctx context.Context, kind AuditKind, input *NewAuditPlan) (*AuditPlan, error) {
	ts, err := kind.tables()
	if err != nil {
		return nil, err
	}
	if err := input.validate(kind); err != nil {
		return nil, err
	}

	var plan AuditPlan
	err = runTenantTx(ctx, "CreateAuditPlan", func(tx *gorm.DB, s *session) error {
		if kind == AuditKindExternal {
			if err := certificationBodyExists(tx, input.CertificationBodyId); err != nil {
				return err
			}
		}
		standards, err := resolvePlanStandards(tx, input.Standards)
		if err != nil {
			return err
		}
		if err := checkScheduleConflicts(tx, s.ns, ts, input.Details, 0); err != nil {
			return err
		}

		id, err := nextIds(tx, s.ns, ts.Plan, 1)
		if err != nil {
			return err
		}
		plan = AuditPlan{
			ID:                  id,
			PlanNo:              strings.TrimSpace(input.PlanNo),
			ScheduledDate:       input.ScheduledDate,
			StartDate:           input.StartDate,
			EndDate:             input.EndDate,
			ReportSubmitDate:    input.ReportSubmitDate,
			CertificationBodyId: input.CertificationBodyId,
			Status:              AuditPlanStatusDraft,
			CreatedById:         s.actorId,
		}
		if err := tx.Table(s.ns.Table(ts.Plan)).Create(&plan).Error; err != nil {
			return err
		}
		if err := insertPlanChildren(tx, s.ns, ts, &plan, input, standards); err != nil {
			return err
		}
		return createLog(tx, s, ts.PlanModule, plan.ID, LogActionAdd)
	})
	if err != nil {
		return nil, err
	}
	return &plan, nil
}

// UpdateAuditPlan replaces scalars and all children of a Draft plan.
func UpdateAuditPlan(ctx context.Context, kind AuditKind, id int, input *NewAuditPlan) (*AuditPlan, error) {
	ts, err := kind.tables()
	if err != nil {
		return nil, err
	}
	if err := input.validate(kind); err != nil {
		return nil, err
	}

	var plan *AuditPlan
	err = runTenantTx(ctx, "UpdateAuditPlan", func(tx *gorm.DB, s *session) error {
		current, err := lockPlan(tx, s.ns, ts, id)
		if err != nil {
			return err
		}
		if current.Status != AuditPlanStatusDraft {
			return fmt.Errorf("%w: audit plan %d is %s, only Draft plans can be edited", utils.ErrIllegalState, id, current.Status)
		}
		if kind == AuditKindExternal {
			if err := certificationBodyExists(tx, input.CertificationBodyId); err != nil {
				return err
			}
		}
		standards, err := resolvePlanStandards(tx, input.Standards)
		if err != nil {
			return err
		}
		if err := checkScheduleConflicts(tx, s.ns, ts, input.Details, id); err != nil {
			return err
		}

		res := tx.Table(s.ns.Table(ts.Plan)).Where("id = ?", id).Updates(map[string]interface{}{
			"plan_no":               strings.TrimSpace(input.PlanNo),
			"scheduled_date":        input.ScheduledDate,
			"start_date":            input.StartDate,
			"end_date":              input.EndDate,
			"report_submit_date":    input.ReportSubmitDate,
			"certification_body_id": input.CertificationBodyId,
			"updated_at":            time.Now(),
		})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: audit plan %d", utils.ErrorRecordNotFound, id)
		}

		if err := deletePlanChildren(tx, s.ns, ts, id); err != nil {
			return err
		}
		if plan, err = findPlan(tx, s.ns, ts, id, false); err != nil {
			return err
		}
		if err := insertPlanChildren(tx, s.ns, ts, plan, input, standards); err != nil {
			return err
		}
		return createLog(tx, s, ts.PlanModule, id, LogActionEdit)
	})
	if err != nil {
		return nil, err
	}
	return plan, nil
}

func DeleteAuditPlan(ctx context.Context, kind AuditKind, id int) (*AuditPlan, error) {
	ts, err := kind.tables()
	if err != nil {
		return nil, err
	}

	var plan *AuditPlan
	err = runTenantTx(ctx, "DeleteAuditPlan", func(tx *gorm.DB, s *session) error {
		if plan, err = lockPlan(tx, s.ns, ts, id); err != nil {
			return err
		}
		if plan.Status != AuditPlanStatusDraft {
			return fmt.Errorf("%w: audit plan %d is %s, only Draft plans can be deleted", utils.ErrIllegalState, id, plan.Status)
		}
		if err := deletePlanChildren(tx, s.ns, ts, id); err != nil {
			return err
		}
		res := tx.Table(s.ns.Table(ts.Plan)).Where("id = ?", id).Delete(&AuditPlan{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: audit plan %d", utils.ErrorRecordNotFound, id)
		}
		return createLog(tx, s, ts.PlanModule, id, LogActionDelete)
	})
	if err != nil {
		return nil, err
	}
	return plan, nil
}

// UpdateStatusAuditPlan moves a plan between Draft and Approve.
// Later statuses are derived from its audits and cannot be set directly.
func UpdateStatusAuditPlan(ctx context.Context, kind AuditKind, id int, target AuditPlanStatus) (*AuditPlan, error) {
	ts, err := kind.tables()
	if err != nil {
		return nil, err
	}
	if target != AuditPlanStatusApprove && target != AuditPlanStatusDraft {
		return nil, fmt.Errorf("%w: audit plan status cannot be set to %q", utils.ErrIllegalTransition, target)
	}

	var plan *AuditPlan
	err = runTenantTx(ctx, "UpdateStatusAuditPlan", func(tx *gorm.DB, s *session) error {
		current, err := lockPlan(tx, s.ns, ts, id)
		if err != nil {
			return err
		}

		updates := map[string]interface{}{"status": target, "updated_at": time.Now()}
		switch target {
		case AuditPlanStatusApprove:
			if current.Status != AuditPlanStatusDraft {
				return fmt.Errorf("%w: cannot approve audit plan %d in status %s", utils.ErrIllegalTransition, id, current.Status)
			}
			updates["approved_by_id"] = s.actorId
			updates["approved_by"] = s.actorName
			updates["approved_date"] = utils.Today()
		case AuditPlanStatusDraft:
			if current.Status != AuditPlanStatusApprove {
				return fmt.Errorf("%w: cannot revert audit plan %d in status %s to Draft", utils.ErrIllegalTransition, id, current.Status)
			}
			updates["approved_by_id"] = 0
			updates["approved_by"] = ""
			updates["approved_date"] = ""
		}

		if err := tx.Table(s.ns.Table(ts.Plan)).Where("id = ?", id).Updates(updates).Error; err != nil {
			return err
		}
		if err := createLog(tx, s, ts.PlanModule, id, string(target)); err != nil {
			return err
		}
		plan, err = findPlan(tx, s.ns, ts, id, false)
		return err
	})
	if err != nil {
		return nil, err
	}
	return plan, nil
}

func loadPlanChildren(db *gorm.DB, ns tenant.Namespace, ts tableSet, plan *AuditPlan) error {
	if err := db.Table(ns.Table(ts.PlanAuditor)).Where("plan_id = ?", plan.ID).Order("id").Find(&plan.Auditors).Error; err != nil {
		return err
	}
	if err := db.Table(ns.Table(ts.PlanStandard)).Where("plan_id = ?", plan.ID).Order("id").Find(&plan.Standards).Error; err != nil {
		return err
	}
	return db.Table(ns.Table(ts.PlanDetail)).Where("plan_id = ?", plan.ID).Order("id").Find(&plan.Details).Error
}

func GetAuditPlan(ctx context.Context, kind AuditKind, id int) (*AuditPlan, error) {
	ts, err := kind.tables()
	if err != nil {
		return nil, err
	}
	db, ns, err := tenantDB(ctx)
	if err != nil {
		return nil, err
	}
	plan, err := findPlan(db, ns, ts, id, false)
	if err != nil {
		return nil, err
	}
	if err := loadPlanChildren(db, ns, ts, plan); err != nil {
		return nil, err
	}
	return plan, nil
}

type AuditPlanFilter struct {
	Status *AuditPlanStatus
	PlanNo *string
}

// PaginateAuditPlans lists plans newest first without children.
func PaginateAuditPlans(ctx context.Context, kind AuditKind, filter AuditPlanFilter, page Page) (*PageResult[AuditPlan], error) {
	ts, err := kind.tables()
	if err != nil {
		return nil, err
	}
	db, ns, err := tenantDB(ctx)
	if err != nil {
		return nil, err
	}
	dbCtx := db.Table(ns.Table(ts.Plan))
	if filter.Status != nil {
		dbCtx = dbCtx.Where("status = ?", *filter.Status)
	}
	if filter.PlanNo != nil {
		dbCtx = dbCtx.Where("plan_no LIKE ?", "%"+*filter.PlanNo+"%")
	}
	return paginate[AuditPlan](dbCtx, page)
}
