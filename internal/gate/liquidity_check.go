package gate

import (
	"context"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/quantrix-platform/quantrix-rbm/internal/config"
)

// LiquidityChecker 流动性深度检查
//
// 每个基线标的需同时满足:
//  1. 24h 名义成交额在全市场排名分位 >= 配置下限
//  2. 24h 名义成交额 >= 该标的的绝对下限
//
// 任一标的缺少成交量数据按不通过处理
type LiquidityChecker struct {
	volumes VolumeSource
	cfg     *config.GateConfig
}

// NewLiquidityChecker 创建流动性检查
func NewLiquidityChecker(volumes VolumeSource, cfg *config.GateConfig) *LiquidityChecker {
	return &LiquidityChecker{volumes: volumes, cfg: cfg}
}

// Name 返回检查名称
func (c *LiquidityChecker) Name() string {
	return "liquidity"
}

// Check 执行流动性检查
func (c *LiquidityChecker) Check(ctx context.Context, in *Input) *CheckResult {
	result := newResult(c.Name())

	allVolumes, err := c.volumes.GetAllVolumes(ctx)
	if err != nil {
		result.fail(fmt.Sprintf("liquidity data unavailable: %v", err))
		return result
	}
	if len(allVolumes) == 0 {
		result.fail("liquidity data unavailable: no market volumes recorded")
		return result
	}

	universe := make([]decimal.Decimal, 0, len(allVolumes))
	for _, v := range allVolumes {
		universe = append(universe, v)
	}

	instruments := c.cfg.BaselineInstruments()
	sort.Strings(instruments)

	perInstrument := make(map[string]interface{}, len(instruments))
	for _, instrument := range instruments {
		volume, ok, err := c.volumes.GetVolume24h(ctx, instrument)
		if err != nil {
			result.fail(fmt.Sprintf("liquidity data unavailable for %s: %v", instrument, err))
			continue
		}
		if !ok {
			result.fail(fmt.Sprintf("no 24h volume recorded for %s", instrument))
			continue
		}

		percentile := rankPercentile(universe, volume)
		floor := c.cfg.GetLiquidityFloor(instrument)

		perInstrument[instrument] = map[string]interface{}{
			"volume_24h":     volume.String(),
			"percentile":     percentile,
			"min_percentile": c.cfg.LiquidityMinPercentile,
			"floor":          floor.String(),
		}

		if percentile < c.cfg.LiquidityMinPercentile {
			result.fail(fmt.Sprintf("%s 24h volume percentile %.2f below required %.2f",
				instrument, percentile, c.cfg.LiquidityMinPercentile))
		}
		if volume.LessThan(floor) {
			result.fail(fmt.Sprintf("%s 24h volume %s below floor %s",
				instrument, volume.String(), floor.String()))
		}
	}

	result.Evidence["per_instrument"] = perInstrument
	result.Evidence["universe_size"] = len(universe)
	return result
}

// rankPercentile 计算 value 在 universe 中的排名分位: count(<= value) / total
func rankPercentile(universe []decimal.Decimal, value decimal.Decimal) float64 {
	if len(universe) == 0 {
		return 0
	}
	var atOrBelow int
	for _, v := range universe {
		if v.LessThanOrEqual(value) {
			atOrBelow++
		}
	}
	return float64(atOrBelow) / float64(len(universe))
}
