package models_test

import (
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	sqldriver "github.com/go-sql-driver/mysql"
	"github.com/mmdatafocus/compliance_backend/config"
	"github.com/mmdatafocus/compliance_backend/models"
	"github.com/mmdatafocus/compliance_backend/utils"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func mockDB(t *testing.T) sqlmock.Sqlmock {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)

	conn, err := gorm.Open(mysql.New(mysql.Config{Conn: sqlDB, SkipInitializeWithVersion: true}), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	previous := config.GetDB()
	config.SetDB(conn)
	t.Cleanup(func() {
		config.SetDB(previous)
		_ = sqlDB.Close()
	})
	return mock
}

func TestStorageFaultRollsBack(t *testing.T) {
	mock := mockDB(t)
	ctx := actorContext(testTenant, 1, "Auditor One")

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT \\* FROM `standard_master`").WillReturnError(errors.New("connection reset by peer"))
	mock.ExpectRollback()

	_, err := models.CreateAuditPlan(ctx, models.AuditKindInternal, newPlanInput("AP-001", []string{"ISO 9001"}))
	require.True(t, errors.Is(err, utils.ErrStorageFailure), "got %v", err)
	var storageErr *utils.StorageError
	require.True(t, errors.As(err, &storageErr))
	require.Equal(t, "CreateAuditPlan", storageErr.Op)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDomainErrorRollsBackUnwrapped(t *testing.T) {
	mock := mockDB(t)
	ctx := actorContext(testTenant, 1, "Auditor One")

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT \\* FROM `ACME_internal_nonconformities`").
		WillReturnRows(sqlmock.NewRows([]string{"id", "audit_id", "nc_no", "status"}).AddRow(5, 1, "ACME-IA-001-4.1-1", "Done"))
	mock.ExpectRollback()

	_, err := models.ApproveNonconformity(ctx, models.AuditKindInternal, 5)
	require.True(t, errors.Is(err, utils.ErrIllegalTransition), "got %v", err)
	require.False(t, errors.Is(err, utils.ErrStorageFailure))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCommitFailureIsStorageFailure(t *testing.T) {
	mock := mockDB(t)
	ctx := actorContext(testTenant, 1, "Auditor One")

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT \\* FROM `ACME_attachments`").
		WillReturnRows(sqlmock.NewRows([]string{"id", "object_key"}).AddRow(3, "ACME/internal_audit_master/x.pdf"))
	mock.ExpectExec("DELETE FROM `ACME_attachments`").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT \\* FROM `ACME_sequences`").
		WillReturnRows(sqlmock.NewRows([]string{"collection", "last_id"}).AddRow("log_master", 10))
	mock.ExpectExec("UPDATE `ACME_sequences`").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO `ACME_log_master`").WillReturnResult(sqlmock.NewResult(11, 1))
	mock.ExpectCommit().WillReturnError(errors.New("deadlock found when trying to get lock"))

	_, err := models.DeleteAttachment(ctx, 3)
	require.True(t, errors.Is(err, utils.ErrStorageFailure), "got %v", err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func expectNextId(mock sqlmock.Sqlmock, collection string, last int) {
	mock.ExpectQuery("SELECT \\* FROM `ACME_sequences`").
		WillReturnRows(sqlmock.NewRows([]string{"collection", "last_id"}).AddRow(collection, last))
	mock.ExpectExec("UPDATE `ACME_sequences`").WillReturnResult(sqlmock.NewResult(0, 1))
}

func TestConcurrentDoubleBookingIsDuplicateSchedule(t *testing.T) {
	mock := mockDB(t)
	ctx := actorContext(testTenant, 1, "Auditor One")

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT \\* FROM `standard_master`").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(1, "ISO 9001"))
	mock.ExpectQuery("SELECT count\\(\\*\\) FROM `ACME_audit_plan_detail`").
		WillReturnRows(sqlmock.NewRows([]string{"count(*)"}).AddRow(0))
	expectNextId(mock, "audit_plan", 0)
	mock.ExpectExec("INSERT INTO `ACME_audit_plan`").WillReturnResult(sqlmock.NewResult(1, 1))
	expectNextId(mock, "audit_plan_standard", 0)
	mock.ExpectExec("INSERT INTO `ACME_audit_plan_standard`").WillReturnResult(sqlmock.NewResult(1, 1))
	expectNextId(mock, "audit_plan_detail", 0)
	// the other transaction committed the same slot after our conflict check
	mock.ExpectExec("INSERT INTO `ACME_audit_plan_detail`").
		WillReturnError(&sqldriver.MySQLError{Number: 1062, Message: "Duplicate entry '2024-05-01-A. Singh'"})
	mock.ExpectRollback()

	_, err := models.CreateAuditPlan(ctx, models.AuditKindInternal, newPlanInput("AP-002", []string{"ISO 9001"},
		models.NewAuditPlanDetail{DetailDate: "2024-05-01", AuditorName: "A. Singh"},
	))
	require.True(t, errors.Is(err, utils.ErrDuplicateSchedule), "got %v", err)
	require.False(t, errors.Is(err, utils.ErrStorageFailure))
	require.NoError(t, mock.ExpectationsWereMet())
}
