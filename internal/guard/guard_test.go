package guard

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantrix-platform/quantrix-rbm/internal/config"
	"github.com/quantrix-platform/quantrix-rbm/internal/model"
)

func TestPlanLimit(t *testing.T) {
	// 无订阅计划 (平台自营) 取系统硬顶
	campaign := &model.Campaign{ID: "camp-1"}
	assert.Equal(t, model.RBMSystemMax, PlanLimit(campaign, nil))

	// 计划记录缺失时保守取 1.0
	campaign.PlanID = "plan-pro"
	assert.Equal(t, model.RBMSystemMin, PlanLimit(campaign, nil))

	// 正常计划取计划上限
	plan := &model.SubscriptionPlan{ID: "plan-pro", Tier: model.PlanTierPro, RBMLimit: 3.0}
	assert.Equal(t, 3.0, PlanLimit(campaign, plan))

	// 越界计划同样保守取 1.0
	bad := &model.SubscriptionPlan{ID: "plan-x", Tier: model.PlanTierPro, RBMLimit: 9.0}
	assert.Equal(t, model.RBMSystemMin, PlanLimit(campaign, bad))
}

func TestPlanLimit_DefaultsMonotonic(t *testing.T) {
	limits := config.Default().RBM.PlanLimits

	require.Less(t, limits["starter"], limits["pro"])
	require.Less(t, limits["pro"], limits["enterprise"])
	require.Less(t, limits["enterprise"], limits["master"])
	for tier, limit := range limits {
		assert.LessOrEqual(t, limit, model.RBMSystemMax, "tier %s", tier)
		assert.GreaterOrEqual(t, limit, model.RBMSystemMin, "tier %s", tier)
	}
}

func TestPermissionsForRole(t *testing.T) {
	owner := PermissionsForRole(RoleFranchiseOwner)
	assert.True(t, owner.CanActivateRBM)
	assert.True(t, owner.CanViewRBM)
	assert.False(t, owner.CanSetRBMLimits)

	operator := PermissionsForRole(RoleFranchiseOperator)
	assert.True(t, operator.CanActivateRBM)

	platform := PermissionsForRole(RolePlatformOperator)
	assert.False(t, platform.CanActivateRBM)
	assert.True(t, platform.CanViewRBM)
	assert.True(t, platform.CanSetRBMLimits)

	analyst := PermissionsForRole(RoleAnalyst)
	assert.False(t, analyst.CanActivateRBM)
	assert.True(t, analyst.CanViewRBM)
	assert.False(t, analyst.CanSetRBMLimits)

	// 未知角色得到空能力集
	unknown := PermissionsForRole(Role("intern"))
	assert.False(t, unknown.CanActivateRBM)
	assert.False(t, unknown.CanViewRBM)
	assert.False(t, unknown.CanSetRBMLimits)
}

func TestResolver_LookupError(t *testing.T) {
	resolver := NewResolver(func(ctx context.Context, actorID string) (Role, error) {
		return "", errors.New("identity service down")
	})

	perms, err := resolver.PermissionsFor(context.Background(), "actor-1")

	// 出错时返回空能力集 (fail conservative)
	assert.Error(t, err)
	require.NotNil(t, perms)
	assert.False(t, perms.CanActivateRBM)
}

func TestResolver_ResolvesRole(t *testing.T) {
	resolver := NewResolver(func(ctx context.Context, actorID string) (Role, error) {
		return RoleFranchiseOwner, nil
	})

	perms, err := resolver.PermissionsFor(context.Background(), "actor-1")
	require.NoError(t, err)
	assert.True(t, perms.CanActivateRBM)
}
