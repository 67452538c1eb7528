package config

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/mmdatafocus/compliance_backend/appctx"
	"github.com/mmdatafocus/compliance_backend/tenant"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type guardRow struct {
	ID   int `gorm:"primaryKey"`
	Name string
}

func openGuardedDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "guard.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, conn.Use(NewTenantGuardPlugin()))

	for _, table := range []string{"ACME_log_master", "BETA_log_master", tenant.StandardMaster} {
		require.NoError(t, conn.Table(table).AutoMigrate(&guardRow{}))
	}
	return conn
}

func TestTenantGuardAllowsOwnAndSharedTables(t *testing.T) {
	conn := openGuardedDB(t)
	ctx := appctx.Set(context.Background(), appctx.ContextKeyTenantCode, "ACME")

	require.NoError(t, conn.WithContext(ctx).Table("ACME_log_master").Create(&guardRow{ID: 1, Name: "a"}).Error)

	var rows []guardRow
	require.NoError(t, conn.WithContext(ctx).Table("ACME_log_master").Find(&rows).Error)
	require.Len(t, rows, 1)
	require.NoError(t, conn.WithContext(ctx).Table(tenant.StandardMaster).Find(&rows).Error)
}

func TestTenantGuardRejectsForeignTenantTables(t *testing.T) {
	conn := openGuardedDB(t)
	require.NoError(t, conn.Table("BETA_log_master").Create(&guardRow{ID: 7, Name: "beta"}).Error)

	ctx := appctx.Set(context.Background(), appctx.ContextKeyTenantCode, "ACME")

	var rows []guardRow
	err := conn.WithContext(ctx).Table("BETA_log_master").Find(&rows).Error
	require.True(t, errors.Is(err, tenant.ErrInvalidTenant), "got %v", err)

	err = conn.WithContext(ctx).Table("BETA_log_master").Create(&guardRow{ID: 8}).Error
	require.True(t, errors.Is(err, tenant.ErrInvalidTenant), "got %v", err)

	err = conn.WithContext(ctx).Table("BETA_log_master").Where("id = ?", 7).Update("name", "x").Error
	require.True(t, errors.Is(err, tenant.ErrInvalidTenant), "got %v", err)

	err = conn.WithContext(ctx).Table("BETA_log_master").Where("id = ?", 7).Delete(&guardRow{}).Error
	require.True(t, errors.Is(err, tenant.ErrInvalidTenant), "got %v", err)

	var count int64
	require.NoError(t, conn.Table("BETA_log_master").Count(&count).Error)
	require.EqualValues(t, 1, count)

	var name string
	require.NoError(t, conn.Table("BETA_log_master").Select("name").Where("id = ?", 7).Scan(&name).Error)
	require.Equal(t, "beta", name)
}

func TestTenantGuardBypass(t *testing.T) {
	conn := openGuardedDB(t)
	ctx := appctx.Set(context.Background(), appctx.ContextKeyTenantCode, "ACME")
	ctx = appctx.Set(ctx, appctx.ContextKeySkipTenantScope, true)

	var rows []guardRow
	require.NoError(t, conn.WithContext(ctx).Table("BETA_log_master").Find(&rows).Error)
}
