package utils

import (
	"context"
	"strings"

	"github.com/mmdatafocus/compliance_backend/appctx"
	"github.com/mmdatafocus/compliance_backend/tenant"
)

var (
	ContextKeyToken           = appctx.ContextKeyToken
	ContextKeyTenantCode      = appctx.ContextKeyTenantCode
	ContextKeyUserId          = appctx.ContextKeyUserId
	ContextKeyUserName        = appctx.ContextKeyUserName
	ContextKeyCorrelationId   = appctx.ContextKeyCorrelationId
	ContextKeyCapabilities    = appctx.ContextKeyCapabilities
	ContextKeySkipTenantScope = appctx.ContextKeySkipTenantScope
)

func GetTokenFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyToken)
}

func GetTenantCodeFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyTenantCode)
}

func GetUserIdFromContext(ctx context.Context) (int, bool) {
	return appctx.GetInt(ctx, ContextKeyUserId)
}

func GetUserNameFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyUserName)
}

func GetCorrelationIdFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyCorrelationId)
}

func GetCapabilitiesFromContext(ctx context.Context) (map[string][]string, bool) {
	return appctx.GetStringSliceMap(ctx, ContextKeyCapabilities)
}

func SetTokenInContext(ctx context.Context, token string) context.Context {
	return appctx.Set(ctx, ContextKeyToken, token)
}

func SetTenantCodeInContext(ctx context.Context, code string) context.Context {
	return appctx.Set(ctx, ContextKeyTenantCode, code)
}

func SetUserIdInContext(ctx context.Context, userId int) context.Context {
	return appctx.Set(ctx, ContextKeyUserId, userId)
}

func SetUserNameInContext(ctx context.Context, userName string) context.Context {
	return appctx.Set(ctx, ContextKeyUserName, userName)
}

func SetCorrelationIdInContext(ctx context.Context, correlationId string) context.Context {
	return appctx.Set(ctx, ContextKeyCorrelationId, correlationId)
}

func SetCapabilitiesInContext(ctx context.Context, capabilities map[string][]string) context.Context {
	return appctx.Set(ctx, ContextKeyCapabilities, capabilities)
}

func GetSkipTenantScopeFromContext(ctx context.Context) (bool, bool) {
	return appctx.GetBool(ctx, ContextKeySkipTenantScope)
}

func SetSkipTenantScopeInContext(ctx context.Context, skip bool) context.Context {
	return appctx.Set(ctx, ContextKeySkipTenantScope, skip)
}

// GetNamespaceFromContext resolves the tenant bound to the request.
func GetNamespaceFromContext(ctx context.Context) (tenant.Namespace, error) {
	code, _ := GetTenantCodeFromContext(ctx)
	return tenant.Resolve(code)
}

// HasCapability checks the caller's per-module action list.
func HasCapability(ctx context.Context, module, action string) bool {
	capabilities, ok := GetCapabilitiesFromContext(ctx)
	if !ok {
		return false
	}
	for _, allowed := range capabilities[module] {
		if strings.EqualFold(allowed, action) {
			return true
		}
	}
	return false
}
