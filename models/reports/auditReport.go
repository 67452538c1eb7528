package reports

import (
	"context"
	"io"
	"time"

	"github.com/mmdatafocus/compliance_backend/models"
)

type findingRow struct {
	*models.AuditFinding
}

func (r findingRow) GetCellValues() []interface{} {
	return []interface{}{
		r.ClauseNo,
		string(r.DescriptionType),
		r.NcNo,
		r.Evidence,
		r.Comment,
		string(r.Status),
	}
}

type nonconformityRow struct {
	*models.Nonconformity
}

func (r nonconformityRow) GetCellValues() []interface{} {
	return []interface{}{
		r.NcNo,
		r.ClauseNo,
		string(r.DescriptionType),
		r.Correction,
		r.CorrectionBy,
		r.CorrectionDate,
		r.RootCause,
		r.CorrectiveAction,
		r.CorrectiveActionBy,
		r.CorrectiveActionDate,
		string(r.Status),
		r.ApprovedBy,
		r.ApprovedDate,
	}
}

var (
	findingHeadings = []string{"Clause", "Type", "NC No", "Evidence", "Comment", "Status"}
	ncHeadings      = []string{
		"NC No", "Clause", "Type", "Correction", "Correction By", "Correction Date",
		"Root Cause", "Corrective Action", "Corrective Action By", "Corrective Action Date",
		"Status", "Approved By", "Approved Date",
	}
)

// ExportAuditFindings writes the audit's findings and its nonconformities as
// two worksheets of one workbook.
func ExportAuditFindings(ctx context.Context, kind models.AuditKind, auditId int, w io.Writer) error {
	started := time.Now()
	defer logSlowReport(ctx, "audit_findings", started, map[string]any{"kind": kind, "audit_id": auditId})

	audit, err := models.GetAudit(ctx, kind, auditId)
	if err != nil {
		return err
	}
	ncs, err := models.GetAuditNonconformities(ctx, kind, auditId)
	if err != nil {
		return err
	}

	findings := make([]ExcelExporter, 0, len(audit.Findings))
	for i := range audit.Findings {
		findings = append(findings, findingRow{&audit.Findings[i]})
	}
	nonconformities := make([]ExcelExporter, 0, len(ncs))
	for _, nc := range ncs {
		nonconformities = append(nonconformities, nonconformityRow{nc})
	}

	return writeWorkbook(w,
		sheet{name: "Findings", headings: findingHeadings, rows: findings},
		sheet{name: "Nonconformities", headings: ncHeadings, rows: nonconformities},
	)
}
