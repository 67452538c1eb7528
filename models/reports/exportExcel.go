package reports

import (
	"context"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/mmdatafocus/compliance_backend/config"
	"github.com/mmdatafocus/compliance_backend/utils"
	"github.com/sirupsen/logrus"
	"github.com/xuri/excelize/v2"
)

const ContentTypeXlsx = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// ExcelExporter is one sheet row.
type ExcelExporter interface {
	GetCellValues() []interface{}
}

// sheet is a titled block of rows written to its own worksheet.
type sheet struct {
	name     string
	headings []string
	rows     []ExcelExporter
}

func writeWorkbook(w io.Writer, sheets ...sheet) error {
	f := excelize.NewFile()
	defer f.Close()

	for i, s := range sheets {
		if i == 0 {
			if err := f.SetSheetName("Sheet1", s.name); err != nil {
				return err
			}
		} else if _, err := f.NewSheet(s.name); err != nil {
			return err
		}

		for col, h := range s.headings {
			cell, err := excelize.CoordinatesToCellName(col+1, 1)
			if err != nil {
				return err
			}
			if err := f.SetCellValue(s.name, cell, h); err != nil {
				return err
			}
		}
		rowNo := 2
		for _, row := range s.rows {
			for col, value := range row.GetCellValues() {
				cell, err := excelize.CoordinatesToCellName(col+1, rowNo)
				if err != nil {
					return err
				}
				if err := f.SetCellValue(s.name, cell, value); err != nil {
					return err
				}
			}
			rowNo++
		}
	}
	return f.Write(w)
}

func reportSlowMs() int64 {
	// Env: REPORT_SLOW_MS (default 500ms)
	ms := int64(500)
	if v := strings.TrimSpace(os.Getenv("REPORT_SLOW_MS")); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			ms = n
		}
	}
	return ms
}

func logSlowReport(ctx context.Context, name string, started time.Time, extra map[string]any) {
	d := time.Since(started)
	if d.Milliseconds() < reportSlowMs() {
		return
	}
	tenantCode, _ := utils.GetTenantCodeFromContext(ctx)
	cid, _ := utils.GetCorrelationIdFromContext(ctx)
	config.GetLogger().WithFields(logrus.Fields{
		"report":         name,
		"ms":             d.Milliseconds(),
		"tenant":         tenantCode,
		"correlation_id": cid,
		"extra":          extra,
	}).Warn("slow_report")
}
