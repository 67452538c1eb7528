package models_test

import (
	"context"
	"errors"
	"testing"

	"github.com/mmdatafocus/compliance_backend/config"
	"github.com/mmdatafocus/compliance_backend/models"
	"github.com/mmdatafocus/compliance_backend/tenant"
	"github.com/mmdatafocus/compliance_backend/utils"
	"github.com/stretchr/testify/require"
)

func TestCreateAuditPlanStartsAsDraft(t *testing.T) {
	ctx := setupTestDB(t)

	plan, err := models.CreateAuditPlan(ctx, models.AuditKindInternal, newPlanInput("AP-001", []string{"ISO 9001", "ISO 14001"},
		models.NewAuditPlanDetail{DetailDate: "2024-06-01", AuditorName: "J. Doe", Department: "QA"},
	))
	require.NoError(t, err)
	require.Equal(t, 1, plan.ID)
	require.Equal(t, models.AuditPlanStatusDraft, plan.Status)
	require.Len(t, plan.Standards, 2)
	require.Len(t, plan.Details, 1)
	// child ids come from one allocation, in payload order
	require.Equal(t, 1, plan.Standards[0].ID)
	require.Equal(t, 2, plan.Standards[1].ID)
	for _, s := range plan.Standards {
		require.Equal(t, models.AssignmentStatusNotStarted, s.Status)
	}

	stored, err := models.GetAuditPlan(ctx, models.AuditKindInternal, plan.ID)
	require.NoError(t, err)
	require.Equal(t, "AP-001", stored.PlanNo)
	require.Len(t, stored.Standards, 2)
	require.Equal(t, "J. Doe", stored.Details[0].AuditorName)

	require.Equal(t, []string{models.LogActionAdd}, logActions(t, ctx, "Audit Plan", plan.ID))
}

func TestCreateAuditPlanValidation(t *testing.T) {
	ctx := setupTestDB(t)

	_, err := models.CreateAuditPlan(ctx, models.AuditKindInternal, &models.NewAuditPlan{PlanNo: "AP-001"})
	require.True(t, errors.Is(err, utils.ErrInvalidInput), "got %v", err)
	var verr *utils.ValidationError
	require.True(t, errors.As(err, &verr))
	require.Contains(t, verr.Fields, "standards")

	_, err = models.CreateAuditPlan(ctx, models.AuditKindInternal, newPlanInput("AP-001", []string{"ISO 27001"}))
	require.True(t, errors.Is(err, utils.ErrorRecordNotFound), "got %v", err)

	_, err = models.CreateAuditPlan(ctx, models.AuditKindExternal, newPlanInput("EP-001", []string{"ISO 9001"}))
	require.True(t, errors.Is(err, utils.ErrInvalidInput), "got %v", err)

	_, err = models.CreateAuditPlan(ctx, models.AuditKind("supplier"), newPlanInput("AP-001", []string{"ISO 9001"}))
	require.True(t, errors.Is(err, utils.ErrInvalidInput), "got %v", err)
}

func TestCreateAuditPlanRejectsDoubleBooking(t *testing.T) {
	ctx := setupTestDB(t)

	slot := models.NewAuditPlanDetail{DetailDate: "2024-05-01", AuditorName: "A. Singh"}
	_, err := models.CreateAuditPlan(ctx, models.AuditKindInternal, newPlanInput("AP-001", []string{"ISO 9001"}, slot))
	require.NoError(t, err)

	_, err = models.CreateAuditPlan(ctx, models.AuditKindInternal, newPlanInput("AP-002", []string{"ISO 14001"}, slot))
	require.True(t, errors.Is(err, utils.ErrDuplicateSchedule), "got %v", err)

	// same auditor twice in one payload
	_, err = models.CreateAuditPlan(ctx, models.AuditKindInternal, newPlanInput("AP-003", []string{"ISO 14001"},
		models.NewAuditPlanDetail{DetailDate: "2024-05-02", AuditorName: "B. Lee"},
		models.NewAuditPlanDetail{DetailDate: "2024-05-02", AuditorName: " B. Lee "},
	))
	require.True(t, errors.Is(err, utils.ErrDuplicateSchedule), "got %v", err)

	page, err := models.PaginateAuditPlans(ctx, models.AuditKindInternal, models.AuditPlanFilter{}, models.Page{})
	require.NoError(t, err)
	require.Len(t, page.Items, 1, "rejected plans must not leave rows behind")

	// a different day is fine
	slot.DetailDate = "2024-05-03"
	_, err = models.CreateAuditPlan(ctx, models.AuditKindInternal, newPlanInput("AP-004", []string{"ISO 14001"}, slot))
	require.NoError(t, err)
}

func TestScheduleIndexBlocksDoubleBookingBelowTheCheck(t *testing.T) {
	ctx := setupTestDB(t)
	plan, err := models.CreateAuditPlan(ctx, models.AuditKindInternal, newPlanInput("AP-001", []string{"ISO 9001"},
		models.NewAuditPlanDetail{DetailDate: "2024-05-01", AuditorName: "A. Singh"},
	))
	require.NoError(t, err)

	// rerunning the migration keeps the index in place
	ns, err := tenant.Resolve(testTenant)
	require.NoError(t, err)
	require.NoError(t, models.MigrateTenant(config.GetDB(), ns))

	// a row written by a racing transaction that passed the conflict check
	err = config.GetDB().Table(ns.Table(tenant.AuditPlanDetail)).Create(&models.AuditPlanDetail{
		ID: 99, PlanId: plan.ID + 1, DetailDate: "2024-05-01", AuditorName: "A. Singh",
	}).Error
	require.Error(t, err)

	// the external detail table has its own index
	require.NoError(t, config.GetDB().Table(ns.Table(tenant.ExternalAuditPlanDetail)).Create(&models.AuditPlanDetail{
		ID: 1, PlanId: 1, DetailDate: "2024-05-01", AuditorName: "A. Singh",
	}).Error)
}

func TestUpdateAuditPlanReplacesChildren(t *testing.T) {
	ctx := setupTestDB(t)

	slot := models.NewAuditPlanDetail{DetailDate: "2024-05-01", AuditorName: "A. Singh"}
	plan, err := models.CreateAuditPlan(ctx, models.AuditKindInternal, newPlanInput("AP-001", []string{"ISO 9001", "ISO 14001"}, slot))
	require.NoError(t, err)

	// keeping its own slot is not a conflict
	updated, err := models.UpdateAuditPlan(ctx, models.AuditKindInternal, plan.ID, newPlanInput("AP-001-R1", []string{"ISO 45001"}, slot,
		models.NewAuditPlanDetail{DetailDate: "2024-05-02", AuditorName: "A. Singh"},
	))
	require.NoError(t, err)
	require.Equal(t, "AP-001-R1", updated.PlanNo)

	stored, err := models.GetAuditPlan(ctx, models.AuditKindInternal, plan.ID)
	require.NoError(t, err)
	require.Len(t, stored.Standards, 1)
	require.Equal(t, "ISO 45001", stored.Standards[0].StandardName)
	require.Len(t, stored.Details, 2)
	require.Equal(t, []string{models.LogActionAdd, models.LogActionEdit}, logActions(t, ctx, "Audit Plan", plan.ID))

	_, err = models.UpdateAuditPlan(ctx, models.AuditKindInternal, 99, newPlanInput("AP-099", []string{"ISO 9001"}))
	require.True(t, errors.Is(err, utils.ErrorRecordNotFound), "got %v", err)

	_, err = models.UpdateStatusAuditPlan(ctx, models.AuditKindInternal, plan.ID, models.AuditPlanStatusApprove)
	require.NoError(t, err)
	_, err = models.UpdateAuditPlan(ctx, models.AuditKindInternal, plan.ID, newPlanInput("AP-001-R2", []string{"ISO 9001"}))
	require.True(t, errors.Is(err, utils.ErrIllegalState), "got %v", err)
}

func TestAuditPlanApproveRevertRoundTrip(t *testing.T) {
	ctx := setupTestDB(t)
	plan := createPlan(t, ctx, "AP-001", "ISO 9001")

	approved, err := models.UpdateStatusAuditPlan(ctx, models.AuditKindInternal, plan.ID, models.AuditPlanStatusApprove)
	require.NoError(t, err)
	require.Equal(t, models.AuditPlanStatusApprove, approved.Status)
	require.Equal(t, "Auditor One", approved.ApprovedBy)
	require.Equal(t, 1, approved.ApprovedById)
	require.Equal(t, utils.Today(), approved.ApprovedDate)

	_, err = models.UpdateStatusAuditPlan(ctx, models.AuditKindInternal, plan.ID, models.AuditPlanStatusApprove)
	require.True(t, errors.Is(err, utils.ErrIllegalTransition), "got %v", err)

	reverted, err := models.UpdateStatusAuditPlan(ctx, models.AuditKindInternal, plan.ID, models.AuditPlanStatusDraft)
	require.NoError(t, err)
	require.Equal(t, models.AuditPlanStatusDraft, reverted.Status)
	require.Empty(t, reverted.ApprovedBy)
	require.Empty(t, reverted.ApprovedDate)

	_, err = models.UpdateStatusAuditPlan(ctx, models.AuditKindInternal, plan.ID, models.AuditPlanStatusDraft)
	require.True(t, errors.Is(err, utils.ErrIllegalTransition), "got %v", err)

	_, err = models.UpdateStatusAuditPlan(ctx, models.AuditKindInternal, plan.ID, models.AuditPlanStatusApprove)
	require.NoError(t, err)

	// derived statuses are never set by hand
	_, err = models.UpdateStatusAuditPlan(ctx, models.AuditKindInternal, plan.ID, models.AuditPlanStatusComplete)
	require.True(t, errors.Is(err, utils.ErrIllegalTransition), "got %v", err)

	_, err = models.UpdateStatusAuditPlan(ctx, models.AuditKindInternal, 42, models.AuditPlanStatusApprove)
	require.True(t, errors.Is(err, utils.ErrorRecordNotFound), "got %v", err)

	require.Equal(t, []string{"Add", "Approve", "Draft", "Approve"}, logActions(t, ctx, "Audit Plan", plan.ID))
}

func TestDeleteAuditPlanOnlyWhileDraft(t *testing.T) {
	ctx := setupTestDB(t)
	plan := createPlan(t, ctx, "AP-001", "ISO 9001")

	_, err := models.UpdateStatusAuditPlan(ctx, models.AuditKindInternal, plan.ID, models.AuditPlanStatusApprove)
	require.NoError(t, err)
	_, err = models.DeleteAuditPlan(ctx, models.AuditKindInternal, plan.ID)
	require.True(t, errors.Is(err, utils.ErrIllegalState), "got %v", err)

	_, err = models.UpdateStatusAuditPlan(ctx, models.AuditKindInternal, plan.ID, models.AuditPlanStatusDraft)
	require.NoError(t, err)
	deleted, err := models.DeleteAuditPlan(ctx, models.AuditKindInternal, plan.ID)
	require.NoError(t, err)
	require.Equal(t, plan.ID, deleted.ID)

	_, err = models.GetAuditPlan(ctx, models.AuditKindInternal, plan.ID)
	require.True(t, errors.Is(err, utils.ErrorRecordNotFound), "got %v", err)
	_, err = models.DeleteAuditPlan(ctx, models.AuditKindInternal, plan.ID)
	require.True(t, errors.Is(err, utils.ErrorRecordNotFound), "got %v", err)

	require.Equal(t, "Delete", logActions(t, ctx, "Audit Plan", plan.ID)[3])
}

func TestPaginateAuditPlans(t *testing.T) {
	ctx := setupTestDB(t)
	for _, no := range []string{"AP-001", "AP-002", "AP-003"} {
		createPlan(t, ctx, no, "ISO 9001")
	}

	first, err := models.PaginateAuditPlans(ctx, models.AuditKindInternal, models.AuditPlanFilter{}, models.Page{Limit: 2})
	require.NoError(t, err)
	require.Len(t, first.Items, 2)
	require.Equal(t, 3, first.Items[0].ID)
	require.True(t, first.PageInfo.HasNextPage)

	second, err := models.PaginateAuditPlans(ctx, models.AuditKindInternal, models.AuditPlanFilter{}, models.Page{Limit: 2, After: &first.PageInfo.EndCursor})
	require.NoError(t, err)
	require.Len(t, second.Items, 1)
	require.Equal(t, 1, second.Items[0].ID)
	require.False(t, second.PageInfo.HasNextPage)

	planNo := "002"
	filtered, err := models.PaginateAuditPlans(ctx, models.AuditKindInternal, models.AuditPlanFilter{PlanNo: &planNo}, models.Page{})
	require.NoError(t, err)
	require.Len(t, filtered.Items, 1)

	bad := "not-a-cursor!"
	_, err = models.PaginateAuditPlans(ctx, models.AuditKindInternal, models.AuditPlanFilter{}, models.Page{After: &bad})
	require.True(t, errors.Is(err, utils.ErrInvalidInput), "got %v", err)

	// the external family is a separate table set
	external, err := models.PaginateAuditPlans(ctx, models.AuditKindExternal, models.AuditPlanFilter{}, models.Page{})
	require.NoError(t, err)
	require.Empty(t, external.Items)
}

func TestMutationsRequireTenantAndActor(t *testing.T) {
	setupTestDB(t)
	input := newPlanInput("AP-001", []string{"ISO 9001"})

	anonymous := utils.SetTenantCodeInContext(context.Background(), testTenant)
	_, err := models.CreateAuditPlan(anonymous, models.AuditKindInternal, input)
	require.True(t, errors.Is(err, utils.ErrMissingIdentity), "got %v", err)

	_, err = models.CreateAuditPlan(actorContext("ACME;DROP", 1, "Auditor One"), models.AuditKindInternal, input)
	require.True(t, errors.Is(err, utils.ErrInvalidTenant), "got %v", err)
}
