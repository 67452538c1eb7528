package models

import (
	"context"

	"github.com/mmdatafocus/compliance_backend/tenant"
	"gorm.io/gorm"
)

// aggregateRule derives a parent status from its children's statuses.
type aggregateRule struct {
	isNotStarted func(status string) bool

	none    AuditPlanStatus // no child started
	partial AuditPlanStatus // some children not started
	started AuditPlanStatus // every child started
}

// planAggregateRule rolls StandardAssignment statuses up into the plan status.
// Internal and external plans share it.
var planAggregateRule = aggregateRule{
	isNotStarted: func(status string) bool { return AssignmentStatus(status) == AssignmentStatusNotStarted },
	none:         AuditPlanStatusApprove,
	partial:      AuditPlanStatusPartialProcess,
	started:      AuditPlanStatusInProcess,
}

func aggregateStatus(rule aggregateRule, statuses []string) AuditPlanStatus {
	notStarted := 0
	for _, status := range statuses {
		if rule.isNotStarted(status) {
			notStarted++
		}
	}
	switch {
	case notStarted == len(statuses):
		return rule.none
	case notStarted > 0:
		return rule.partial
	default:
		return rule.started
	}
}

// planStatusFor applies the plan rule. A plan that was never approved falls
// back to Draft rather than Approve once no standard is started.
func planStatusFor(plan *AuditPlan, statuses []string) AuditPlanStatus {
	status := aggregateStatus(planAggregateRule, statuses)
	if status == AuditPlanStatusApprove && plan.ApprovedById == 0 {
		return AuditPlanStatusDraft
	}
	return status
}

func assignmentStatuses(tx *gorm.DB, ns tenant.Namespace, ts tableSet, planId int) ([]string, error) {
	var statuses []string
	err := tx.Table(ns.Table(ts.PlanStandard)).
		Where("plan_id = ?", planId).
		Order("id").
		Pluck("status", &statuses).Error
	return statuses, err
}

// refreshPlanStatus recomputes and writes the plan status. The caller must
// already hold the plan row lock.
func refreshPlanStatus(tx *gorm.DB, ns tenant.Namespace, ts tableSet, plan *AuditPlan) (AuditPlanStatus, error) {
	statuses, err := assignmentStatuses(tx, ns, ts, plan.ID)
	if err != nil {
		return "", err
	}
	status := planStatusFor(plan, statuses)
	err = tx.Table(ns.Table(ts.Plan)).
		Where("id = ?", plan.ID).
		Update("status", status).Error
	return status, err
}

func setAssignmentStatus(tx *gorm.DB, ns tenant.Namespace, ts tableSet, planId, standardId int, status AssignmentStatus) error {
	return tx.Table(ns.Table(ts.PlanStandard)).
		Where("plan_id = ? AND standard_id = ?", planId, standardId).
		Update("status", status).Error
}

// DeriveAggregateStatus computes, without writing, the status the plan's
// standard assignments imply.
func DeriveAggregateStatus(ctx context.Context, kind AuditKind, planId int) (AuditPlanStatus, error) {
	ts, err := kind.tables()
	if err != nil {
		return "", err
	}
	db, ns, err := tenantDB(ctx)
	if err != nil {
		return "", err
	}
	plan, err := findPlan(db, ns, ts, planId, false)
	if err != nil {
		return "", err
	}
	statuses, err := assignmentStatuses(db, ns, ts, planId)
	if err != nil {
		return "", err
	}
	return planStatusFor(plan, statuses), nil
}
