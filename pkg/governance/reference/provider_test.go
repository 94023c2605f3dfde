package reference_test

import (
	"context"
	"testing"

	"github.com/default-user/mathison/pkg/governance"
	"github.com/default-user/mathison/pkg/governance/reference"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestProvider(t *testing.T) *reference.Provider {
	t.Helper()
	schemas := reference.NewSchemaSet()
	action, err := reference.NewActionPolicy(reference.DefaultActionExpression)
	require.NoError(t, err)
	return reference.New(schemas, action)
}

func TestProvider_ValidateIngress_PassesWithoutSchema(t *testing.T) {
	p := newTestProvider(t)
	result, err := p.ValidateIngress(context.Background(), governance.RequestMeta{Intent: "test.ok"}, map[string]any{"x": 1})
	require.NoError(t, err)
	assert.True(t, result.Valid)
}

func TestProvider_ValidateIngress_EnforcesRegisteredSchema(t *testing.T) {
	schemas := reference.NewSchemaSet()
	require.NoError(t, schemas.RegisterPayloadSchema("test.typed", `{
		"type": "object",
		"properties": {"path": {"type": "string"}},
		"required": ["path"]
	}`))
	action, err := reference.NewActionPolicy(reference.DefaultActionExpression)
	require.NoError(t, err)
	p := reference.New(schemas, action)

	result, err := p.ValidateIngress(context.Background(), governance.RequestMeta{Intent: "test.typed"}, map[string]any{})
	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.NotEmpty(t, result.Errors)

	result, err = p.ValidateIngress(context.Background(), governance.RequestMeta{Intent: "test.typed"}, map[string]any{"path": "/tmp/x"})
	require.NoError(t, err)
	assert.True(t, result.Valid)
}

func TestProvider_CheckAction_DefaultPolicyDeniesHighRiskWithoutCapabilities(t *testing.T) {
	p := newTestProvider(t)
	result, err := p.CheckAction(context.Background(), governance.RequestMeta{}, "delete_all", governance.RiskHigh, nil)
	require.NoError(t, err)
	assert.False(t, result.Allowed)
}

func TestProvider_CheckAction_AllowsHighRiskWithCapabilities(t *testing.T) {
	p := newTestProvider(t)
	result, err := p.CheckAction(context.Background(), governance.RequestMeta{}, "delete_all", governance.RiskHigh, []string{"admin"})
	require.NoError(t, err)
	assert.True(t, result.Allowed)
	assert.Len(t, result.CapabilityTokens, 1)
}

func TestProvider_CheckAction_DegradationLadderDeniesUnderMissingCapsule(t *testing.T) {
	p := newTestProvider(t)
	p.SetCapsuleState(governance.CapsuleMissing)

	result, err := p.CheckAction(context.Background(), governance.RequestMeta{}, "read_file", governance.RiskLow, nil)
	require.NoError(t, err)
	assert.False(t, result.Allowed)
	assert.Equal(t, governance.DegradationFull, result.DegradationLevel)
}

func TestProvider_CapsuleStatus_ReflectsState(t *testing.T) {
	p := newTestProvider(t)
	p.SetCapsuleState(governance.CapsuleStale)

	status, err := p.CapsuleStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, governance.CapsuleStale, status.State)
	assert.Equal(t, governance.DegradationPartial, status.DegradationLevel)
}

func TestProvider_ValidateEgress_PassesWithoutSchema(t *testing.T) {
	p := newTestProvider(t)
	result, err := p.ValidateEgress(context.Background(), governance.RequestMeta{Intent: "test.ok"}, map[string]any{"ok": true})
	require.NoError(t, err)
	assert.True(t, result.Valid)
}
