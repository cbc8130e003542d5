// Package cache 提供 redis 缓存层
// 市场数据、状态分类结果和熔断器状态都由上游子系统写入 redis，
// 本服务只读消费；Set 方法供消费者和测试使用
package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

const (
	marketTickerKeyPrefix = "rbm:market:ticker:"
	marketVolumeIndexKey  = "rbm:market:volumes"
	marketTTL             = 5 * time.Minute
)

// MarketCache 市场数据缓存
type MarketCache struct {
	client redis.UniversalClient
}

// NewMarketCache 创建市场数据缓存
func NewMarketCache(client redis.UniversalClient) *MarketCache {
	return &MarketCache{client: client}
}

// SetTicker 写入行情数据并更新成交量索引
func (c *MarketCache) SetTicker(ctx context.Context, instrument string, ticker map[string]string) error {
	key := marketTickerKeyPrefix + instrument

	pipe := c.client.Pipeline()
	pipe.HSet(ctx, key, ticker)
	pipe.Expire(ctx, key, marketTTL)
	if volume, ok := ticker["volume_24h"]; ok {
		pipe.HSet(ctx, marketVolumeIndexKey, instrument, volume)
		pipe.Expire(ctx, marketVolumeIndexKey, marketTTL)
	}

	_, err := pipe.Exec(ctx)
	return err
}

// GetTicker 获取行情数据
func (c *MarketCache) GetTicker(ctx context.Context, instrument string) (map[string]string, error) {
	key := marketTickerKeyPrefix + instrument
	return c.client.HGetAll(ctx, key).Result()
}

// GetVolume24h 获取 24 小时名义成交额
// 无数据时返回 zero 和 false
func (c *MarketCache) GetVolume24h(ctx context.Context, instrument string) (decimal.Decimal, bool, error) {
	ticker, err := c.GetTicker(ctx, instrument)
	if err != nil {
		return decimal.Zero, false, err
	}

	volumeStr, ok := ticker["volume_24h"]
	if !ok {
		return decimal.Zero, false, nil
	}

	volume, err := decimal.NewFromString(volumeStr)
	if err != nil {
		return decimal.Zero, false, err
	}
	return volume, true, nil
}

// GetSpreadBps 获取指示性点差 (基点)
func (c *MarketCache) GetSpreadBps(ctx context.Context, instrument string) (decimal.Decimal, bool, error) {
	ticker, err := c.GetTicker(ctx, instrument)
	if err != nil {
		return decimal.Zero, false, err
	}

	spreadStr, ok := ticker["spread_bps"]
	if !ok {
		return decimal.Zero, false, nil
	}

	spread, err := decimal.NewFromString(spreadStr)
	if err != nil {
		return decimal.Zero, false, err
	}
	return spread, true, nil
}

// GetAllVolumes 获取全部已缓存标的的 24h 名义成交额
// 百分位计算需要完整的样本集合
func (c *MarketCache) GetAllVolumes(ctx context.Context) (map[string]decimal.Decimal, error) {
	raw, err := c.client.HGetAll(ctx, marketVolumeIndexKey).Result()
	if err != nil {
		return nil, err
	}

	volumes := make(map[string]decimal.Decimal, len(raw))
	for instrument, s := range raw {
		volume, err := decimal.NewFromString(s)
		if err != nil {
			continue
		}
		volumes[instrument] = volume
	}
	return volumes, nil
}

// IsInstrumentActive 检查标的是否有行情数据
func (c *MarketCache) IsInstrumentActive(ctx context.Context, instrument string) (bool, error) {
	key := marketTickerKeyPrefix + instrument
	exists, err := c.client.Exists(ctx, key).Result()
	if err != nil {
		return false, err
	}
	return exists > 0, nil
}
