package models

import (
	"fmt"

	"github.com/mmdatafocus/compliance_backend/tenant"
	"github.com/mmdatafocus/compliance_backend/utils"
)

// AuditKind selects the internal or certification-body family of tables.
// Both kinds share every lifecycle rule.
type AuditKind string

const (
	AuditKindInternal AuditKind = "internal"
	AuditKindExternal AuditKind = "external"
)

type tableSet struct {
	Plan          string
	PlanAuditor   string
	PlanStandard  string
	PlanDetail    string
	Audit         string
	Finding       string
	Nonconformity string

	PlanModule          string
	AuditModule         string
	FindingModule       string
	NonconformityModule string
}

var tableSets = map[AuditKind]tableSet{
	AuditKindInternal: {
		Plan:                tenant.AuditPlan,
		PlanAuditor:         tenant.AuditPlanAuditor,
		PlanStandard:        tenant.AuditPlanStandard,
		PlanDetail:          tenant.AuditPlanDetail,
		Audit:               tenant.InternalAuditMaster,
		Finding:             tenant.InternalAuditDetail,
		Nonconformity:       tenant.InternalNonconformities,
		PlanModule:          "Audit Plan",
		AuditModule:         "Internal Audit",
		FindingModule:       "Internal Audit Finding",
		NonconformityModule: "Internal Nonconformity",
	},
	AuditKindExternal: {
		Plan:                tenant.ExternalAuditPlan,
		PlanAuditor:         tenant.ExternalAuditPlanAuditor,
		PlanStandard:        tenant.ExternalAuditPlanStandard,
		PlanDetail:          tenant.ExternalAuditPlanDetail,
		Audit:               tenant.ExternalAuditMaster,
		Finding:             tenant.ExternalAuditDetail,
		Nonconformity:       tenant.ExternalNonconformities,
		PlanModule:          "External Audit Plan",
		AuditModule:         "External Audit",
		FindingModule:       "External Audit Finding",
		NonconformityModule: "External Nonconformity",
	},
}

func ParseAuditKind(s string) (AuditKind, error) {
	kind := AuditKind(s)
	if _, ok := tableSets[kind]; !ok {
		return "", fmt.Errorf("%w: unknown audit kind %q", utils.ErrInvalidInput, s)
	}
	return kind, nil
}

func (k AuditKind) tables() (tableSet, error) {
	ts, ok := tableSets[k]
	if !ok {
		return tableSet{}, fmt.Errorf("%w: unknown audit kind %q", utils.ErrInvalidInput, k)
	}
	return ts, nil
}

// ModuleNames are the names used for log entries and capability checks.
type ModuleNames struct {
	Plan          string
	Audit         string
	Finding       string
	Nonconformity string
}

func (k AuditKind) ModuleNames() ModuleNames {
	ts := tableSets[k]
	return ModuleNames{
		Plan:          ts.PlanModule,
		Audit:         ts.AuditModule,
		Finding:       ts.FindingModule,
		Nonconformity: ts.NonconformityModule,
	}
}

// Kinds lists every audit kind.
func Kinds() []AuditKind {
	return []AuditKind{AuditKindInternal, AuditKindExternal}
}
