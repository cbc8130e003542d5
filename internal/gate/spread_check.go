package gate

import (
	"context"

	"github.com/quantrix-platform/quantrix-rbm/internal/collab"
	"github.com/quantrix-platform/quantrix-rbm/internal/config"
)

// SpreadChecker 点差/滑点检查
//
// 当前仅在聚合状态为 HIGH/EXTREME 时把适用的基点上限写入证据，
// 作为咨询性记录，不会单独阻止审批：实时点差/滑点尚未接入本检查。
// EXTREME 下的上限严格宽于 HIGH
type SpreadChecker struct {
	cfg *config.GateConfig
}

// NewSpreadChecker 创建点差检查
func NewSpreadChecker(cfg *config.GateConfig) *SpreadChecker {
	return &SpreadChecker{cfg: cfg}
}

// Name 返回检查名称
func (c *SpreadChecker) Name() string {
	return "spread_slippage"
}

// Check 记录适用的点差/滑点上限
func (c *SpreadChecker) Check(ctx context.Context, in *Input) *CheckResult {
	result := newResult(c.Name())
	result.Evidence["advisory_only"] = true

	if in.Regime == nil || !in.Regime.Regime.IsElevationFriendly() {
		result.Evidence["evaluated"] = false
		return result
	}

	result.Evidence["evaluated"] = true
	result.Evidence["regime"] = string(in.Regime.Regime)

	if in.Regime.Regime == collab.RegimeExtreme {
		result.Evidence["spread_ceiling_bps"] = c.cfg.SpreadCeilingExtremeBps
		result.Evidence["slippage_ceiling_bps"] = c.cfg.SlippageCeilingExtremeBps
	} else {
		result.Evidence["spread_ceiling_bps"] = c.cfg.SpreadCeilingHighBps
		result.Evidence["slippage_ceiling_bps"] = c.cfg.SlippageCeilingHighBps
	}

	return result
}
