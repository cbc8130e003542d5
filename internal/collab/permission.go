package collab

import "context"

// Permissions RBM 相关能力集合
// 对外只暴露这三个派生布尔值，绝不透出原始角色标识
type Permissions struct {
	CanActivateRBM  bool `json:"can_activate_rbm"`
	CanViewRBM      bool `json:"can_view_rbm"`
	CanSetRBMLimits bool `json:"can_set_rbm_limits"`
}

// PermissionResolver 权限/角色服务
type PermissionResolver interface {
	PermissionsFor(ctx context.Context, actorID string) (*Permissions, error)
}
