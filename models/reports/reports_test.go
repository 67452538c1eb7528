package reports_test

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/mmdatafocus/compliance_backend/config"
	"github.com/mmdatafocus/compliance_backend/models"
	"github.com/mmdatafocus/compliance_backend/models/reports"
	"github.com/mmdatafocus/compliance_backend/tenant"
	"github.com/mmdatafocus/compliance_backend/utils"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupReportDB(t *testing.T) context.Context {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "reports.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	config.InstallPlugins(conn)

	previous := config.GetDB()
	config.SetDB(conn)
	t.Cleanup(func() {
		config.SetDB(previous)
		_ = sqlDB.Close()
	})

	ns, err := tenant.Resolve("ACME")
	require.NoError(t, err)
	require.NoError(t, models.MigrateShared(conn))
	require.NoError(t, models.MigrateTenant(conn, ns))
	require.NoError(t, models.SeedCatalogue(context.Background(), conn, []models.NewStandard{{Name: "ISO 9001"}}, nil))

	ctx := utils.SetTenantCodeInContext(context.Background(), "ACME")
	ctx = utils.SetUserIdInContext(ctx, 1)
	return utils.SetUserNameInContext(ctx, "Reporter")
}

func openWorkbook(t *testing.T, buf *bytes.Buffer) *excelize.File {
	t.Helper()
	f, err := excelize.OpenReader(buf)
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.Close() })
	return f
}

func TestExportAuditFindings(t *testing.T) {
	ctx := setupReportDB(t)

	plan, err := models.CreateAuditPlan(ctx, models.AuditKindInternal, &models.NewAuditPlan{
		PlanNo:    "AP-001",
		Standards: []models.NewAuditPlanStandard{{StandardName: "ISO 9001"}},
	})
	require.NoError(t, err)
	audit, err := models.CreateAudit(ctx, models.AuditKindInternal, &models.NewAudit{
		PlanId: plan.ID, StandardName: "ISO 9001", AuditNo: "IA-001", AuditDate: "2024-06-10",
	})
	require.NoError(t, err)
	for _, finding := range []models.NewFinding{
		{ClauseNo: "4.1", DescriptionType: models.FindingTypeMajorNC, Evidence: "no context review"},
		{ClauseNo: "7.5", DescriptionType: models.FindingTypeObservation},
	} {
		_, err := models.RecordFinding(ctx, models.AuditKindInternal, audit.ID, &finding)
		require.NoError(t, err)
	}

	var buf bytes.Buffer
	require.NoError(t, reports.ExportAuditFindings(ctx, models.AuditKindInternal, audit.ID, &buf))
	require.NotZero(t, buf.Len())

	f := openWorkbook(t, &buf)
	require.Equal(t, []string{"Findings", "Nonconformities"}, f.GetSheetList())

	findings, err := f.GetRows("Findings")
	require.NoError(t, err)
	require.Len(t, findings, 3)
	require.Equal(t, "Clause", findings[0][0])
	require.Equal(t, "ACME-IA-001-4.1-1", findings[1][2])

	ncs, err := f.GetRows("Nonconformities")
	require.NoError(t, err)
	require.Len(t, ncs, 2)
	require.Equal(t, "ACME-IA-001-4.1-1", ncs[1][0])

	err = reports.ExportAuditFindings(ctx, models.AuditKindInternal, 99, &bytes.Buffer{})
	require.True(t, errors.Is(err, utils.ErrorRecordNotFound), "got %v", err)
}

func TestExportGapAssessment(t *testing.T) {
	ctx := setupReportDB(t)

	header, err := models.CreateGapAssessment(ctx, &models.NewGapAssessment{
		StandardName: "ISO 9001",
		Department:   "Warehouse",
		Details: []models.NewGapAssessmentDetail{
			{ClauseNo: "4.1", MaturityStatus: models.MaturityManaged},
			{ClauseNo: "4.2", MaturityStatus: models.MaturityLimited, PossibleBarrier: true},
		},
	})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, reports.ExportGapAssessment(ctx, header.ID, &buf))

	f := openWorkbook(t, &buf)
	require.Equal(t, []string{"Summary", "Clauses"}, f.GetSheetList())
	clauses, err := f.GetRows("Clauses")
	require.NoError(t, err)
	require.Len(t, clauses, 3)
	require.Equal(t, "4.2", clauses[2][0])
}
