package gate

import (
	"context"
	"fmt"

	"github.com/quantrix-platform/quantrix-rbm/internal/config"
)

// DrawdownChecker 回撤检查
// 当前回撤不得超过配置上限的 30%。
// 未配置回撤上限时跳过：没有分母也没有可评估的信号
type DrawdownChecker struct {
	cfg *config.GateConfig
}

// NewDrawdownChecker 创建回撤检查
func NewDrawdownChecker(cfg *config.GateConfig) *DrawdownChecker {
	return &DrawdownChecker{cfg: cfg}
}

// Name 返回检查名称
func (c *DrawdownChecker) Name() string {
	return "drawdown"
}

// Check 执行回撤检查
func (c *DrawdownChecker) Check(ctx context.Context, in *Input) *CheckResult {
	result := newResult(c.Name())
	campaign := in.Campaign

	ratio, ok := campaign.DrawdownRatio()
	if !ok {
		result.Evidence["skipped"] = true
		result.Evidence["reason"] = "max drawdown not configured"
		return result
	}

	result.Evidence["current_drawdown_pct"] = campaign.CurrentDrawdownPct
	result.Evidence["max_drawdown_pct"] = campaign.MaxDrawdownPct
	result.Evidence["ratio"] = ratio

	if ratio > c.cfg.MaxDrawdownRatio {
		result.fail(fmt.Sprintf("drawdown %.2f%% is %.0f%% of the %.2f%% limit (max allowed %.0f%%)",
			campaign.CurrentDrawdownPct, ratio*100, campaign.MaxDrawdownPct, c.cfg.MaxDrawdownRatio*100))
	}

	return result
}
