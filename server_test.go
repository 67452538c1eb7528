package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/mmdatafocus/compliance_backend/config"
	"github.com/mmdatafocus/compliance_backend/middlewares"
	"github.com/mmdatafocus/compliance_backend/models"
	"github.com/mmdatafocus/compliance_backend/tenant"
	"github.com/mmdatafocus/compliance_backend/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var allActions = []string{
	middlewares.ActionView, middlewares.ActionAdd, middlewares.ActionEdit,
	middlewares.ActionDelete, middlewares.ActionApprove,
}

func setupRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	t.Setenv("API_SECRET", "router-test-secret")

	conn, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "api.db")), &gorm.Config{
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
	require.NoError(t, models.SeedCatalogue(context.Background(), conn, []models.NewStandard{
		{Name: "ISO 9001", Clauses: []models.NewStandardClause{{ClauseNo: "4.1"}}},
	}, nil))

	return newRouter(config.GetLogger())
}

func mintToken(t *testing.T, tenantCode string, permissions map[string][]string) string {
	t.Helper()
	token, err := utils.JwtGenerate(utils.JwtCustomClaim{
		ID:          1,
		Name:        "Lead Auditor",
		TenantCode:  tenantCode,
		Permissions: permissions,
	}, time.Hour)
	require.NoError(t, err)
	return token
}

func fullAccess(kind models.AuditKind) map[string][]string {
	names := kind.ModuleNames()
	granted := make(map[string][]string)
	for _, module := range []string{names.Plan, names.Audit, names.Finding, names.Nonconformity, logModule} {
		granted[module] = allActions
	}
	return granted
}

func doRequest(t *testing.T, r http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var payload bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&payload).Encode(body))
	}
	req := httptest.NewRequest(method, path, &payload)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestHealthzSkipsAuth(t *testing.T) {
	r := setupRouter(t)
	w := doRequest(t, r, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestSessionMiddleware(t *testing.T) {
	r := setupRouter(t)

	w := doRequest(t, r, http.MethodGet, "/api/v1/internal/plans", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.NotEmpty(t, w.Header().Get(middlewares.CorrelationHeader))

	w = doRequest(t, r, http.MethodGet, "/api/v1/internal/plans", "not-a-jwt", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doRequest(t, r, http.MethodGet, "/api/v1/internal/plans", mintToken(t, "AC-ME", fullAccess(models.AuditKindInternal)), nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// would resolve onto ACME's external tables
	w = doRequest(t, r, http.MethodGet, "/api/v1/internal/plans", mintToken(t, "ACME_external", fullAccess(models.AuditKindInternal)), nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// no capability for the module
	w = doRequest(t, r, http.MethodGet, "/api/v1/internal/plans", mintToken(t, "ACME", map[string][]string{"Audit Plan": {"add"}}), nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	// internal rights do not open external routes
	w = doRequest(t, r, http.MethodGet, "/api/v1/external/plans", mintToken(t, "ACME", fullAccess(models.AuditKindInternal)), nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/internal/plans", nil)
	req.Header.Set("token", mintToken(t, "ACME", fullAccess(models.AuditKindInternal)))
	req.Header.Set(middlewares.CorrelationHeader, "corr-123")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "corr-123", rec.Header().Get(middlewares.CorrelationHeader))
}

func TestAuditWorkflowOverHTTP(t *testing.T) {
	r := setupRouter(t)
	token := mintToken(t, "ACME", fullAccess(models.AuditKindInternal))

	w := doRequest(t, r, http.MethodPost, "/api/v1/internal/plans", token, models.NewAuditPlan{
		PlanNo:    "AP-001",
		Standards: []models.NewAuditPlanStandard{{StandardName: "ISO 9001"}},
		Details:   []models.NewAuditPlanDetail{{DetailDate: "2024-06-01", AuditorName: "J. Doe"}},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	plan := decode[models.AuditPlan](t, w)
	require.Equal(t, models.AuditPlanStatusDraft, plan.Status)

	w = doRequest(t, r, http.MethodPut, "/api/v1/internal/plans/1/status", token, gin.H{"status": "Draft"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = doRequest(t, r, http.MethodPost, "/api/v1/internal/audits", token, models.NewAudit{
		PlanId: plan.ID, StandardName: "ISO 9001", AuditNo: "IA-001", AuditDate: "2024-06-10",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	audit := decode[models.Audit](t, w)

	w = doRequest(t, r, http.MethodGet, "/api/v1/internal/plans/1/aggregate-status", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "In Process", decode[map[string]any](t, w)["status"])

	w = doRequest(t, r, http.MethodPost, "/api/v1/internal/audits", token, models.NewAudit{
		PlanId: plan.ID, StandardName: "ISO 9001", AuditNo: "IA-001", AuditDate: "2024-06-10",
	})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = doRequest(t, r, http.MethodPost, "/api/v1/internal/audits/1/findings", token, models.NewFinding{
		ClauseNo: "4.1", DescriptionType: models.FindingTypeMajorNC,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	recorded := decode[models.RecordedFinding](t, w)
	require.Equal(t, "ACME-IA-001-4.1-1", recorded.Finding.NcNo)

	w = doRequest(t, r, http.MethodPost, "/api/v1/internal/nonconformities/1/approve", token, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, models.NonconformityStatusDone, decode[models.Nonconformity](t, w).Status)

	w = doRequest(t, r, http.MethodGet, "/api/v1/internal/audits/1", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	stored := decode[models.Audit](t, w)
	require.Equal(t, audit.ID, stored.ID)
	assert.Equal(t, models.FindingStatusDone, stored.Findings[0].Status)

	w = doRequest(t, r, http.MethodGet, "/api/v1/logs?module_name=Internal+Nonconformity", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]models.LogEntry](t, w), 1)
}

func TestErrorResponses(t *testing.T) {
	r := setupRouter(t)
	token := mintToken(t, "ACME", fullAccess(models.AuditKindInternal))

	w := doRequest(t, r, http.MethodGet, "/api/v1/internal/plans/9", token, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doRequest(t, r, http.MethodGet, "/api/v1/internal/plans/abc", token, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doRequest(t, r, http.MethodPost, "/api/v1/internal/plans", token, models.NewAuditPlan{PlanNo: "AP-001"})
	require.Equal(t, http.StatusBadRequest, w.Code)
	body := decode[map[string]any](t, w)
	assert.Contains(t, body["fields"], "standards")

	w = doRequest(t, r, http.MethodGet, "/api/v1/internal/plans?after=%25%25", token, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doRequest(t, r, http.MethodGet, "/api/v1/nowhere", token, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestErrorStatusMapping(t *testing.T) {
	cases := map[error]int{
		utils.ErrInvalidTenant:                                 http.StatusBadRequest,
		utils.InvalidField("plan_no", "required"):              http.StatusBadRequest,
		utils.ErrMissingIdentity:                               http.StatusUnauthorized,
		utils.ErrorRecordNotFound:                              http.StatusNotFound,
		utils.ErrDuplicateAudit:                                http.StatusConflict,
		utils.ErrDuplicateSchedule:                             http.StatusConflict,
		utils.ErrIllegalTransition:                             http.StatusConflict,
		utils.ErrIllegalState:                                  http.StatusConflict,
		utils.ErrLockNotObtained:                               http.StatusServiceUnavailable,
		utils.AsStorageFailure("op", context.DeadlineExceeded): http.StatusInternalServerError,
	}
	for err, want := range cases {
		assert.Equal(t, want, errorStatus(err), err.Error())
	}
}
