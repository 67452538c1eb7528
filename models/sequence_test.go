package models_test

import (
	"testing"

	"github.com/mmdatafocus/compliance_backend/config"
	"github.com/mmdatafocus/compliance_backend/models"
	"github.com/mmdatafocus/compliance_backend/tenant"
	"github.com/stretchr/testify/require"
)

func TestIdsNeverRepeatAfterDelete(t *testing.T) {
	ctx := setupTestDB(t)
	createPlan(t, ctx, "AP-001", "ISO 9001")
	second := createPlan(t, ctx, "AP-002", "ISO 9001")

	_, err := models.DeleteAuditPlan(ctx, models.AuditKindInternal, second.ID)
	require.NoError(t, err)

	third := createPlan(t, ctx, "AP-003", "ISO 9001")
	require.Equal(t, 3, third.ID)
	// standards were allocated 1, 2, 3 across the three plans
	require.Equal(t, 3, third.Standards[0].ID)
}

func TestMigrateTenantSeedsCountersFromExistingRows(t *testing.T) {
	setupTestDB(t)
	db := config.GetDB()

	legacy, err := tenant.Resolve("LEGACY")
	require.NoError(t, err)
	require.NoError(t, db.Table(legacy.Table(tenant.AuditPlan)).AutoMigrate(&models.AuditPlan{}))
	require.NoError(t, db.Table(legacy.Table(tenant.AuditPlan)).Create(&models.AuditPlan{
		ID: 41, PlanNo: "OLD-41", Status: models.AuditPlanStatusComplete,
	}).Error)

	require.NoError(t, models.MigrateTenant(db, legacy))
	// rerunning leaves counters alone
	require.NoError(t, models.MigrateTenant(db, legacy))

	var seq models.Sequence
	require.NoError(t, db.Table(legacy.Table(tenant.Sequences)).Where("collection = ?", tenant.AuditPlan).Take(&seq).Error)
	require.Equal(t, 41, seq.LastId)

	ctx := actorContext("LEGACY", 7, "Migrator")
	plan, err := models.CreateAuditPlan(ctx, models.AuditKindInternal, newPlanInput("AP-042", []string{"ISO 9001"}))
	require.NoError(t, err)
	require.Equal(t, 42, plan.ID)
}

func TestTenantsAreIsolated(t *testing.T) {
	ctx := setupTestDB(t)
	createPlan(t, ctx, "AP-001", "ISO 9001")

	other, err := tenant.Resolve("GLOBEX")
	require.NoError(t, err)
	require.NoError(t, models.MigrateTenant(config.GetDB(), other))

	globex := actorContext("GLOBEX", 2, "Globex Auditor")
	plan := createPlan(t, globex, "AP-001", "ISO 9001")
	require.Equal(t, 1, plan.ID, "each tenant numbers from 1")

	page, err := models.PaginateAuditPlans(globex, models.AuditKindInternal, models.AuditPlanFilter{}, models.Page{})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)

	// the same schedule slot in another tenant is not a conflict
	slot := models.NewAuditPlanDetail{DetailDate: "2024-05-01", AuditorName: "A. Singh"}
	_, err = models.CreateAuditPlan(ctx, models.AuditKindInternal, newPlanInput("AP-002", []string{"ISO 9001"}, slot))
	require.NoError(t, err)
	_, err = models.CreateAuditPlan(globex, models.AuditKindInternal, newPlanInput("AP-002", []string{"ISO 9001"}, slot))
	require.NoError(t, err)
}
