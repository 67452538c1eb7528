// Package tenant maps a company code onto its storage namespace.
//
// Per-tenant tables are named "<CODE>_<logical>". Table names cannot be bound
// as query parameters, so the code is validated before any name is built and
// only whitelisted logical names are accepted.
package tenant

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var ErrInvalidTenant = errors.New("invalid tenant")

// MaxCodeLength keeps "<CODE>_<longest logical name>" under MySQL's 64 char identifier limit.
const MaxCodeLength = 32

var codePattern = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// logical table names stored once per tenant
const (
	AuditPlan                 = "audit_plan"
	AuditPlanAuditor          = "audit_plan_auditor"
	AuditPlanStandard         = "audit_plan_standard"
	AuditPlanDetail           = "audit_plan_detail"
	ExternalAuditPlan         = "external_audit_plan"
	ExternalAuditPlanAuditor  = "external_audit_plan_auditor"
	ExternalAuditPlanStandard = "external_audit_plan_standard"
	ExternalAuditPlanDetail   = "external_audit_plan_detail"
	InternalAuditMaster       = "internal_audit_master"
	InternalAuditDetail       = "internal_audit_detail"
	ExternalAuditMaster       = "external_audit_master"
	ExternalAuditDetail       = "external_audit_detail"
	InternalNonconformities   = "internal_nonconformities"
	ExternalNonconformities   = "external_nonconformities"
	GapAssessmentHeader       = "gap_assessment_header"
	GapAssessmentDetail       = "gap_assessment_detail"
	LogMaster                 = "log_master"
	Sequences                 = "sequences"
	Attachments               = "attachments"
)

// shared reference tables, never prefixed
const (
	StandardMaster    = "standard_master"
	ClauseMaster      = "clause_master"
	CertificationBody = "certification_body"
)

var tenantTables = map[string]struct{}{
	AuditPlan: {}, AuditPlanAuditor: {}, AuditPlanStandard: {}, AuditPlanDetail: {},
	ExternalAuditPlan: {}, ExternalAuditPlanAuditor: {}, ExternalAuditPlanStandard: {}, ExternalAuditPlanDetail: {},
	InternalAuditMaster: {}, InternalAuditDetail: {}, ExternalAuditMaster: {}, ExternalAuditDetail: {},
	InternalNonconformities: {}, ExternalNonconformities: {},
	GapAssessmentHeader: {}, GapAssessmentDetail: {},
	LogMaster: {}, Sequences: {}, Attachments: {},
}

// ambiguousSuffixes are code endings that would make "<CODE>_<logical>" equal
// to another tenant's table. "external_audit_plan" ends in "_audit_plan", so
// tenant "X_external" would own "X_external_audit_plan", which is X's table.
var ambiguousSuffixes = func() []string {
	var suffixes []string
	for outer := range tenantTables {
		for inner := range tenantTables {
			if head, ok := strings.CutSuffix(outer, "_"+inner); ok {
				suffixes = append(suffixes, "_"+head)
			}
		}
	}
	return suffixes
}()

var sharedTables = map[string]struct{}{
	StandardMaster:    {},
	ClauseMaster:      {},
	CertificationBody: {},
}

// Namespace is a validated tenant code. The zero value is not usable; obtain one via Resolve.
type Namespace struct {
	code string
}

func Resolve(code string) (Namespace, error) {
	if code == "" {
		return Namespace{}, fmt.Errorf("%w: empty tenant code", ErrInvalidTenant)
	}
	if len(code) > MaxCodeLength {
		return Namespace{}, fmt.Errorf("%w: tenant code longer than %d characters", ErrInvalidTenant, MaxCodeLength)
	}
	if !codePattern.MatchString(code) {
		return Namespace{}, fmt.Errorf("%w: %q", ErrInvalidTenant, code)
	}
	lower := strings.ToLower(code)
	for _, suffix := range ambiguousSuffixes {
		if strings.HasSuffix(lower, suffix) {
			return Namespace{}, fmt.Errorf("%w: %q ends in %q, which clashes with another tenant's tables", ErrInvalidTenant, code, suffix)
		}
	}
	return Namespace{code: code}, nil
}

func (ns Namespace) Code() string { return ns.code }

func (ns Namespace) IsZero() bool { return ns.code == "" }

// Table returns the physical name of a logical table.
// Unknown logical names are programming errors and panic.
func (ns Namespace) Table(logical string) string {
	if _, ok := sharedTables[logical]; ok {
		return logical
	}
	if _, ok := tenantTables[logical]; !ok {
		panic(fmt.Sprintf("tenant: unknown logical table %q", logical))
	}
	if ns.code == "" {
		panic("tenant: table requested on unresolved namespace")
	}
	return ns.code + "_" + logical
}

// Owns reports whether a physical table name belongs to this tenant.
func (ns Namespace) Owns(table string) bool {
	if ns.code == "" {
		return false
	}
	logical, ok := strings.CutPrefix(table, ns.code+"_")
	if !ok {
		return false
	}
	_, ok = tenantTables[logical]
	return ok
}

func IsShared(table string) bool {
	_, ok := sharedTables[table]
	return ok
}

// Logical lists every per-tenant logical table name.
func Logical() []string {
	names := make([]string, 0, len(tenantTables))
	for name := range tenantTables {
		names = append(names, name)
	}
	return names
}
