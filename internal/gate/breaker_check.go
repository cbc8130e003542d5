package gate

import (
	"context"
	"fmt"

	"github.com/quantrix-platform/quantrix-rbm/internal/collab"
)

// BreakerChecker 熔断器检查
// 全局熔断和组合陈旧熔断都必须放行。
// 熔断子系统查询出错时按通过处理 (fail-open)：独立的熔断层
// 本身已经对交易 fail-closed，这里重复拦截只会放大故障面
type BreakerChecker struct {
	breakers collab.BreakerStatus
}

// NewBreakerChecker 创建熔断器检查
func NewBreakerChecker(breakers collab.BreakerStatus) *BreakerChecker {
	return &BreakerChecker{breakers: breakers}
}

// Name 返回检查名称
func (c *BreakerChecker) Name() string {
	return "circuit_breaker"
}

// Check 执行熔断器检查
func (c *BreakerChecker) Check(ctx context.Context, in *Input) *CheckResult {
	result := newResult(c.Name())
	portfolioID := in.Campaign.PortfolioID

	global, err := c.breakers.CheckGlobal(ctx, portfolioID)
	if err != nil {
		result.Evidence["global_error"] = err.Error()
	} else {
		result.Evidence["global_allowed"] = global.Allowed
		if !global.Allowed {
			result.fail(fmt.Sprintf("global circuit breaker tripped: %s", global.Reason))
		}
	}

	staleness, err := c.breakers.CheckStaleness(ctx, portfolioID)
	if err != nil {
		result.Evidence["staleness_error"] = err.Error()
	} else {
		result.Evidence["staleness_allowed"] = staleness.Allowed
		if !staleness.Allowed {
			result.fail(fmt.Sprintf("staleness circuit breaker tripped: %s", staleness.Reason))
		}
	}

	return result
}
