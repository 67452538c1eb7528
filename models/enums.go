package models

type AuditPlanStatus string

const (
	AuditPlanStatusDraft          AuditPlanStatus = "Draft"
	AuditPlanStatusApprove        AuditPlanStatus = "Approve"
	AuditPlanStatusPartialProcess AuditPlanStatus = "Partial Process"
	AuditPlanStatusInProcess      AuditPlanStatus = "In Process"
	AuditPlanStatusComplete       AuditPlanStatus = "Complete"
)

// AssignmentStatus tracks one standard within a plan. Empty means no audit yet.
type AssignmentStatus string

const (
	AssignmentStatusNotStarted AssignmentStatus = ""
	AssignmentStatusInProcess  AssignmentStatus = "In Process"
)

type AuditStatus string

const (
	AuditStatusInProcess AuditStatus = "In Process"
	AuditStatusComplete  AuditStatus = "Complete"
	AuditStatusClosed    AuditStatus = "Closed"
)

type FindingStatus string

const (
	FindingStatusDraft FindingStatus = "Draft"
	FindingStatusDone  FindingStatus = "Done"
)

type NonconformityStatus string

const (
	NonconformityStatusDraft NonconformityStatus = "Draft"
	NonconformityStatusDone  NonconformityStatus = "Done"
)

type FindingType string

const (
	FindingTypeMajorNC     FindingType = "MJ NC"
	FindingTypeMinorNC     FindingType = "MN NC"
	FindingTypeObservation FindingType = "OBS"
	FindingTypeOpportunity FindingType = "OFI"
)

func (t FindingType) IsValid() bool {
	switch t {
	case FindingTypeMajorNC, FindingTypeMinorNC, FindingTypeObservation, FindingTypeOpportunity:
		return true
	}
	return false
}

// IsNonconformity reports whether the finding needs a correction workflow.
func (t FindingType) IsNonconformity() bool {
	return t == FindingTypeMajorNC || t == FindingTypeMinorNC
}

type MaturityStatus string

const (
	MaturityNonexistent   MaturityStatus = "Nonexistent"
	MaturityInitial       MaturityStatus = "Initial"
	MaturityLimited       MaturityStatus = "Limited"
	MaturityDefined       MaturityStatus = "Defined"
	MaturityManaged       MaturityStatus = "Managed"
	MaturityOptimized     MaturityStatus = "Optimized"
	MaturityNotApplicable MaturityStatus = "Not Applicable"
)

var maturityScores = map[MaturityStatus]int64{
	MaturityNonexistent: 0,
	MaturityInitial:     1,
	MaturityLimited:     2,
	MaturityDefined:     3,
	MaturityManaged:     4,
	MaturityOptimized:   5,
}

func (m MaturityStatus) IsValid() bool {
	_, ok := maturityScores[m]
	return ok || m == MaturityNotApplicable
}

// log actions
const (
	LogActionAdd          = "Add"
	LogActionEdit         = "Edit"
	LogActionDelete       = "Delete"
	LogActionApprove      = "Approve"
	LogActionDone         = "Done"
	LogActionRevertStatus = "Revert Status"
)
