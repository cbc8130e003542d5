package cache

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/quantrix-platform/quantrix-rbm/internal/collab"
)

const (
	regimeAggregateKey      = "rbm:regime:aggregate"
	regimeInstrumentPrefix  = "rbm:regime:instrument:"
	regimeTTL               = 2 * time.Minute
)

// RegimeCache 波动率状态缓存
// 分类器子系统把分类结果写入 redis，本服务通过它实现 collab.RegimeClassifier。
// 数据缺失按错误返回，调用方据此 fail-closed，绝不把缺数据当成 LOW
type RegimeCache struct {
	client redis.UniversalClient
}

// NewRegimeCache 创建状态缓存
func NewRegimeCache(client redis.UniversalClient) *RegimeCache {
	return &RegimeCache{client: client}
}

// AggregateRegime 读取聚合分类结果和每个标的的明细
func (c *RegimeCache) AggregateRegime(ctx context.Context, instruments []string) (*collab.AggregateRegime, error) {
	raw, err := c.client.HGetAll(ctx, regimeAggregateKey).Result()
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("no aggregate regime classification available")
	}

	confidence, err := strconv.ParseFloat(raw["confidence"], 64)
	if err != nil {
		return nil, fmt.Errorf("malformed aggregate confidence: %w", err)
	}

	agg := &collab.AggregateRegime{
		Regime:     collab.Regime(raw["regime"]),
		Confidence: confidence,
	}

	for _, instrument := range instruments {
		detail, err := c.client.HGetAll(ctx, regimeInstrumentPrefix+instrument).Result()
		if err != nil {
			return nil, err
		}
		if len(detail) == 0 {
			return nil, fmt.Errorf("no regime classification for instrument %s", instrument)
		}

		ir, err := parseInstrumentRegime(instrument, detail)
		if err != nil {
			return nil, err
		}
		agg.PerInstrument = append(agg.PerInstrument, *ir)
	}

	return agg, nil
}

// SetAggregate 写入聚合分类结果 (消费者/测试使用)
func (c *RegimeCache) SetAggregate(ctx context.Context, regime collab.Regime, confidence float64) error {
	pipe := c.client.Pipeline()
	pipe.HSet(ctx, regimeAggregateKey, map[string]string{
		"regime":     string(regime),
		"confidence": strconv.FormatFloat(confidence, 'f', -1, 64),
	})
	pipe.Expire(ctx, regimeAggregateKey, regimeTTL)
	_, err := pipe.Exec(ctx)
	return err
}

// SetInstrument 写入单标的分类结果 (消费者/测试使用)
func (c *RegimeCache) SetInstrument(ctx context.Context, ir *collab.InstrumentRegime) error {
	key := regimeInstrumentPrefix + ir.Instrument
	pipe := c.client.Pipeline()
	pipe.HSet(ctx, key, map[string]string{
		"regime":             string(ir.Regime),
		"confidence":         strconv.FormatFloat(ir.Confidence, 'f', -1, 64),
		"cycles_in_regime":   strconv.Itoa(ir.CyclesInRegime),
		"cooldown_remaining": strconv.Itoa(ir.CooldownRemaining),
		"volume_ratio":       strconv.FormatFloat(ir.VolumeRatio, 'f', -1, 64),
	})
	pipe.Expire(ctx, key, regimeTTL)
	_, err := pipe.Exec(ctx)
	return err
}

// parseInstrumentRegime 解析单标的分类明细
func parseInstrumentRegime(instrument string, detail map[string]string) (*collab.InstrumentRegime, error) {
	confidence, err := strconv.ParseFloat(detail["confidence"], 64)
	if err != nil {
		return nil, fmt.Errorf("malformed confidence for %s: %w", instrument, err)
	}
	cycles, err := strconv.Atoi(detail["cycles_in_regime"])
	if err != nil {
		return nil, fmt.Errorf("malformed cycles_in_regime for %s: %w", instrument, err)
	}
	cooldown, err := strconv.Atoi(detail["cooldown_remaining"])
	if err != nil {
		return nil, fmt.Errorf("malformed cooldown_remaining for %s: %w", instrument, err)
	}
	volumeRatio, err := strconv.ParseFloat(detail["volume_ratio"], 64)
	if err != nil {
		return nil, fmt.Errorf("malformed volume_ratio for %s: %w", instrument, err)
	}

	return &collab.InstrumentRegime{
		Instrument:        instrument,
		Regime:            collab.Regime(detail["regime"]),
		Confidence:        confidence,
		CyclesInRegime:    cycles,
		CooldownRemaining: cooldown,
		VolumeRatio:       volumeRatio,
	}, nil
}
