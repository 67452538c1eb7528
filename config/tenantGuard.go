package config

import (
	"context"
	"fmt"

	"github.com/mmdatafocus/compliance_backend/appctx"
	"github.com/mmdatafocus/compliance_backend/tenant"
	"gorm.io/gorm"
)

// TenantGuardPlugin enforces multi-tenant isolation: when the request context
// carries a tenant code, every statement must target either a shared reference
// table or a table prefixed with that tenant's code.
//
// NOTE:
// - Raw SQL has no table on the statement and is not checked.
// - Internal bypass is explicit via context flags.
type TenantGuardPlugin struct{}

func NewTenantGuardPlugin() *TenantGuardPlugin { return &TenantGuardPlugin{} }

func (p *TenantGuardPlugin) Name() string { return "tenant_guard" }

func (p *TenantGuardPlugin) Initialize(db *gorm.DB) error {
	if err := db.Callback().Create().Before("gorm:create").Register("tenant_guard:create", tenantGuardCallback); err != nil {
		return err
	}
	if err := db.Callback().Query().Before("gorm:query").Register("tenant_guard:query", tenantGuardCallback); err != nil {
		return err
	}
	// Row (Scan/Pluck through Rows)
	if err := db.Callback().Row().Before("gorm:row").Register("tenant_guard:row", tenantGuardCallback); err != nil {
		return err
	}
	if err := db.Callback().Update().Before("gorm:update").Register("tenant_guard:update", tenantGuardCallback); err != nil {
		return err
	}
	if err := db.Callback().Delete().Before("gorm:delete").Register("tenant_guard:delete", tenantGuardCallback); err != nil {
		return err
	}
	return nil
}

func tenantGuardCallback(db *gorm.DB) {
	if db == nil || db.Statement == nil {
		return
	}
	ctx := db.Statement.Context
	if ctx == nil || shouldBypassTenantScope(ctx) {
		return
	}
	code := tenantCodeFromContext(ctx)
	if code == "" {
		return
	}
	table := db.Statement.Table
	if table == "" || tenant.IsShared(table) {
		return
	}

	ns, err := tenant.Resolve(code)
	if err != nil {
		db.AddError(err)
		return
	}
	if !ns.Owns(table) {
		db.AddError(fmt.Errorf("%w: table %s is outside tenant %s", tenant.ErrInvalidTenant, table, code))
	}
}

func tenantCodeFromContext(ctx context.Context) string {
	if v, ok := appctx.GetString(ctx, appctx.ContextKeyTenantCode); ok {
		return v
	}
	return ""
}

func shouldBypassTenantScope(ctx context.Context) bool {
	v, ok := appctx.GetBool(ctx, appctx.ContextKeySkipTenantScope)
	return ok && v
}
