package reports

import (
	"context"
	"io"
	"time"

	"github.com/mmdatafocus/compliance_backend/models"
)

type gapDetailRow struct {
	*models.GapAssessmentDetail
}

func (r gapDetailRow) GetCellValues() []interface{} {
	barrier := "No"
	if r.PossibleBarrier {
		barrier = "Yes"
	}
	return []interface{}{
		r.ClauseNo,
		r.Description,
		r.AreaRequiringImprovement,
		string(r.MaturityStatus),
		barrier,
		r.Remarks,
	}
}

type summaryRow struct {
	label string
	value interface{}
}

func (r summaryRow) GetCellValues() []interface{} {
	return []interface{}{r.label, r.value}
}

var gapDetailHeadings = []string{"Clause", "Description", "Area Requiring Improvement", "Maturity Status", "Possible Barrier", "Remarks"}

func ExportGapAssessment(ctx context.Context, id int, w io.Writer) error {
	started := time.Now()
	defer logSlowReport(ctx, "gap_assessment", started, map[string]any{"id": id})

	header, err := models.GetGapAssessment(ctx, id)
	if err != nil {
		return err
	}
	summary, err := models.GetGapAssessmentSummary(ctx, id)
	if err != nil {
		return err
	}

	details := make([]ExcelExporter, 0, len(header.Details))
	for i := range header.Details {
		details = append(details, gapDetailRow{&header.Details[i]})
	}
	overview := []ExcelExporter{
		summaryRow{"Standard", header.StandardName},
		summaryRow{"Department", header.Department},
		summaryRow{"Meeting Date", header.MeetingDate},
		summaryRow{"Contact Person", header.ContactPerson},
		summaryRow{"Contact Phone", header.ContactPhone},
		summaryRow{"Assessed Clauses", summary.AssessedClauses},
		summaryRow{"Not Applicable", summary.NotApplicable},
		summaryRow{"Possible Barriers", summary.PossibleBarriers},
		summaryRow{"Maturity Score", summary.MaturityScore.StringFixed(2)},
	}

	return writeWorkbook(w,
		sheet{name: "Summary", headings: []string{"Item", "Value"}, rows: overview},
		sheet{name: "Clauses", headings: gapDetailHeadings, rows: details},
	)
}
