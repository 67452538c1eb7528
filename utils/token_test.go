package utils

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJwtRoundTrip(t *testing.T) {
	t.Setenv("API_SECRET", "test-secret")

	token, err := JwtGenerate(JwtCustomClaim{
		ID:          7,
		Name:        "Lead Auditor",
		TenantCode:  "ACME",
		Permissions: map[string][]string{"Audit Plan": {"view", "approve"}},
	}, time.Hour)
	require.NoError(t, err)

	claim, err := JwtValidate(token)
	require.NoError(t, err)
	assert.Equal(t, 7, claim.ID)
	assert.Equal(t, "ACME", claim.TenantCode)
	assert.Equal(t, []string{"view", "approve"}, claim.Permissions["Audit Plan"])

	t.Setenv("API_SECRET", "rotated")
	_, err = JwtValidate(token)
	assert.Error(t, err)
}

func TestJwtValidateRejectsExpired(t *testing.T) {
	t.Setenv("API_SECRET", "test-secret")
	token, err := JwtGenerate(JwtCustomClaim{ID: 1, TenantCode: "ACME"}, -time.Minute)
	require.NoError(t, err)
	_, err = JwtValidate(token)
	assert.Error(t, err)
}

func TestHasCapability(t *testing.T) {
	ctx := SetCapabilitiesInContext(context.Background(), map[string][]string{
		"Internal Audit": {"view", "Approve"},
	})
	assert.True(t, HasCapability(ctx, "Internal Audit", "view"))
	assert.True(t, HasCapability(ctx, "Internal Audit", "approve"))
	assert.False(t, HasCapability(ctx, "Internal Audit", "delete"))
	assert.False(t, HasCapability(ctx, "Audit Plan", "view"))
	assert.False(t, HasCapability(context.Background(), "Internal Audit", "view"))
}
