package gate

import (
	"context"
	"fmt"
	"sort"

	"github.com/quantrix-platform/quantrix-rbm/internal/collab"
	"github.com/quantrix-platform/quantrix-rbm/internal/config"
)

// RegimeChecker 市场状态检查
// 聚合状态必须是 HIGH/EXTREME 且置信度达标，每个监控标的都要求
// 状态稳定、无冷却、成交量比达到对应状态的下限。
// 分类器任何错误都 fail-closed：缺状态数据时绝不授予提升
type RegimeChecker struct {
	classifier collab.RegimeClassifier
	cfg        *config.GateConfig
}

// NewRegimeChecker 创建状态检查
func NewRegimeChecker(classifier collab.RegimeClassifier, cfg *config.GateConfig) *RegimeChecker {
	return &RegimeChecker{classifier: classifier, cfg: cfg}
}

// Name 返回检查名称
func (c *RegimeChecker) Name() string {
	return "regime"
}

// Check 执行状态检查
func (c *RegimeChecker) Check(ctx context.Context, in *Input) *CheckResult {
	result := newResult(c.Name())

	instruments := c.cfg.BaselineInstruments()
	sort.Strings(instruments)

	agg, err := c.classifier.AggregateRegime(ctx, instruments)
	if err != nil {
		result.Evidence["error"] = err.Error()
		result.fail(fmt.Sprintf("regime classification unavailable: %v", err))
		return result
	}

	in.Regime = agg
	result.Evidence["regime"] = string(agg.Regime)
	result.Evidence["confidence"] = agg.Confidence

	if !agg.Regime.IsElevationFriendly() {
		result.fail(fmt.Sprintf("market regime %s does not support elevation (requires HIGH or EXTREME)", agg.Regime))
	}
	if agg.Confidence < c.cfg.MinConfidence {
		result.fail(fmt.Sprintf("regime confidence %.2f below required %.2f", agg.Confidence, c.cfg.MinConfidence))
	}

	perInstrument := make([]map[string]interface{}, 0, len(agg.PerInstrument))
	for _, ir := range agg.PerInstrument {
		perInstrument = append(perInstrument, map[string]interface{}{
			"instrument":         ir.Instrument,
			"regime":             string(ir.Regime),
			"confidence":         ir.Confidence,
			"cycles_in_regime":   ir.CyclesInRegime,
			"cooldown_remaining": ir.CooldownRemaining,
			"volume_ratio":       ir.VolumeRatio,
		})

		if ir.CyclesInRegime < c.cfg.MinStableCycles {
			result.fail(fmt.Sprintf("%s regime stable for only %d cycles (requires %d)",
				ir.Instrument, ir.CyclesInRegime, c.cfg.MinStableCycles))
		}
		if ir.CooldownRemaining > 0 {
			result.fail(fmt.Sprintf("%s still in regime cooldown (%d cycles remaining)",
				ir.Instrument, ir.CooldownRemaining))
		}

		floor := c.volumeRatioFloor(ir.Regime)
		if ir.VolumeRatio < floor {
			result.fail(fmt.Sprintf("%s volume ratio %.2f below %s floor %.2f",
				ir.Instrument, ir.VolumeRatio, ir.Regime, floor))
		}
	}
	result.Evidence["per_instrument"] = perInstrument

	return result
}

// volumeRatioFloor 按状态取成交量比下限
func (c *RegimeChecker) volumeRatioFloor(regime collab.Regime) float64 {
	if regime == collab.RegimeExtreme {
		return c.cfg.VolumeRatioExtreme
	}
	return c.cfg.VolumeRatioHigh
}
