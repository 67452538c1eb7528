package models_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/mmdatafocus/compliance_backend/config"
	"github.com/mmdatafocus/compliance_backend/models"
	"github.com/mmdatafocus/compliance_backend/tenant"
	"github.com/mmdatafocus/compliance_backend/utils"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const testTenant = "ACME"

// setupTestDB provisions a throwaway SQLite database with the shared catalogue
// and one tenant, and returns a context carrying that tenant and an actor.
func setupTestDB(t *testing.T) context.Context {
	t.Helper()

	conn, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "compliance.db")), &gorm.Config{
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

	ns, err := tenant.Resolve(testTenant)
	require.NoError(t, err)
	require.NoError(t, models.MigrateShared(conn))
	require.NoError(t, models.MigrateTenant(conn, ns))

	require.NoError(t, models.SeedCatalogue(context.Background(), conn, []models.NewStandard{
		{Name: "ISO 9001", Clauses: []models.NewStandardClause{
			{ClauseNo: "4.1", Title: "Understanding the organization and its context"},
			{ClauseNo: "7.5", Title: "Documented information"},
		}},
		{Name: "ISO 14001"},
		{Name: "ISO 45001"},
	}, []models.NewCertificationBody{{Name: "BSI", Country: "United Kingdom"}}))

	return actorContext(testTenant, 1, "Auditor One")
}

func actorContext(tenantCode string, userId int, userName string) context.Context {
	ctx := utils.SetTenantCodeInContext(context.Background(), tenantCode)
	ctx = utils.SetUserIdInContext(ctx, userId)
	return utils.SetUserNameInContext(ctx, userName)
}

func newPlanInput(planNo string, standards []string, details ...models.NewAuditPlanDetail) *models.NewAuditPlan {
	input := &models.NewAuditPlan{PlanNo: planNo, Details: details}
	for _, name := range standards {
		input.Standards = append(input.Standards, models.NewAuditPlanStandard{StandardName: name})
	}
	return input
}

func createPlan(t *testing.T, ctx context.Context, planNo string, standards ...string) *models.AuditPlan {
	t.Helper()
	plan, err := models.CreateAuditPlan(ctx, models.AuditKindInternal, newPlanInput(planNo, standards))
	require.NoError(t, err)
	return plan
}

func createAudit(t *testing.T, ctx context.Context, planId int, standard, auditNo string) *models.Audit {
	t.Helper()
	audit, err := models.CreateAudit(ctx, models.AuditKindInternal, &models.NewAudit{
		PlanId:       planId,
		StandardName: standard,
		AuditNo:      auditNo,
		AuditDate:    "2024-06-10",
	})
	require.NoError(t, err)
	return audit
}

func planStatus(t *testing.T, ctx context.Context, id int) models.AuditPlanStatus {
	t.Helper()
	plan, err := models.GetAuditPlan(ctx, models.AuditKindInternal, id)
	require.NoError(t, err)
	return plan.Status
}

func logActions(t *testing.T, ctx context.Context, module string, id int) []string {
	t.Helper()
	entries, err := models.GetLogEntries(ctx, models.LogFilter{ModuleName: &module, ModuleId: &id})
	require.NoError(t, err)
	actions := make([]string, 0, len(entries))
	// oldest first
	for i := len(entries) - 1; i >= 0; i-- {
		actions = append(actions, entries[i].Action)
	}
	return actions
}
