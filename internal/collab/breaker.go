package collab

import "context"

// BreakerDecision 熔断器单次查询结果
type BreakerDecision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

// BreakerStatus 熔断器子系统状态
// 熔断器层自身独立地对交易 fail-closed，本服务查询失败时按放行处理
type BreakerStatus interface {
	CheckGlobal(ctx context.Context, portfolioID string) (*BreakerDecision, error)
	CheckStaleness(ctx context.Context, portfolioID string) (*BreakerDecision, error)
	GlobalTripped(ctx context.Context) (bool, error)
	StalenessTripped(ctx context.Context) (bool, error)
}
