// Package guard 提供计划限额解析和 RBM 权限判定
// 纯函数，无持久副作用
package guard

import (
	"context"

	"github.com/quantrix-platform/quantrix-rbm/internal/collab"
	"github.com/quantrix-platform/quantrix-rbm/internal/model"
)

// Role 加盟体系中的角色
type Role string

const (
	RoleFranchiseOwner    Role = "franchise_owner"    // 加盟单元所有者
	RoleFranchiseOperator Role = "franchise_operator" // 加盟单元运营者
	RolePlatformOperator  Role = "platform_operator"  // 平台运营
	RoleAnalyst           Role = "analyst"            // 只读分析
	RoleFinance           Role = "finance"            // 只读财务
)

// PlanLimit 解析 campaign 的有效倍数上限
// 无订阅计划 (平台自营) 时取系统硬顶；计划记录缺失或越界时取 1.0，
// 宁可保守也不放开
func PlanLimit(campaign *model.Campaign, plan *model.SubscriptionPlan) float64 {
	if campaign.PlanID == "" {
		return model.RBMSystemMax
	}
	if plan == nil || !plan.IsValid() {
		return model.RBMSystemMin
	}
	if plan.RBMLimit > model.RBMSystemMax {
		return model.RBMSystemMax
	}
	return plan.RBMLimit
}

// PermissionsForRole 按角色派生 RBM 能力
// 只有加盟单元的所有/运营角色可以激活；平台运营和只读角色可查看但不可激活；
// 仅平台运营可配置层级限额
func PermissionsForRole(role Role) *collab.Permissions {
	switch role {
	case RoleFranchiseOwner, RoleFranchiseOperator:
		return &collab.Permissions{
			CanActivateRBM: true,
			CanViewRBM:     true,
		}
	case RolePlatformOperator:
		return &collab.Permissions{
			CanViewRBM:      true,
			CanSetRBMLimits: true,
		}
	case RoleAnalyst, RoleFinance:
		return &collab.Permissions{
			CanViewRBM: true,
		}
	default:
		return &collab.Permissions{}
	}
}

// RoleLookup 角色查询函数
type RoleLookup func(ctx context.Context, actorID string) (Role, error)

// Resolver 基于角色查询实现 collab.PermissionResolver
type Resolver struct {
	lookup RoleLookup
}

// NewResolver 创建权限解析器
func NewResolver(lookup RoleLookup) *Resolver {
	return &Resolver{lookup: lookup}
}

// PermissionsFor 解析操作者的 RBM 能力
// 查询失败时返回空能力集 (fail conservative)
func (r *Resolver) PermissionsFor(ctx context.Context, actorID string) (*collab.Permissions, error) {
	role, err := r.lookup(ctx, actorID)
	if err != nil {
		return &collab.Permissions{}, err
	}
	return PermissionsForRole(role), nil
}
