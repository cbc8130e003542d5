package cache

import (
	"context"

	"github.com/redis/go-redis/v9"

	"github.com/quantrix-platform/quantrix-rbm/internal/collab"
)

const (
	breakerGlobalKey       = "rbm:breaker:global"
	breakerStalenessPrefix = "rbm:breaker:staleness:"
	breakerStalenessAllKey = "rbm:breaker:staleness"
)

// BreakerCache 熔断器状态缓存
// 熔断器子系统把自身状态发布到 redis，本服务通过它实现 collab.BreakerStatus。
// 没有状态键时视为未熔断：熔断层自身已经独立对交易 fail-closed
type BreakerCache struct {
	client redis.UniversalClient
}

// NewBreakerCache 创建熔断器状态缓存
func NewBreakerCache(client redis.UniversalClient) *BreakerCache {
	return &BreakerCache{client: client}
}

// CheckGlobal 查询全局熔断器
func (c *BreakerCache) CheckGlobal(ctx context.Context, portfolioID string) (*collab.BreakerDecision, error) {
	return c.readDecision(ctx, breakerGlobalKey)
}

// CheckStaleness 查询组合的数据陈旧熔断器
func (c *BreakerCache) CheckStaleness(ctx context.Context, portfolioID string) (*collab.BreakerDecision, error) {
	decision, err := c.readDecision(ctx, breakerStalenessPrefix+portfolioID)
	if err != nil {
		return nil, err
	}
	if !decision.Allowed {
		return decision, nil
	}
	// 组合级未熔断时还要看全局陈旧状态
	return c.readDecision(ctx, breakerStalenessAllKey)
}

// GlobalTripped 全局熔断器是否已触发
func (c *BreakerCache) GlobalTripped(ctx context.Context) (bool, error) {
	decision, err := c.readDecision(ctx, breakerGlobalKey)
	if err != nil {
		return false, err
	}
	return !decision.Allowed, nil
}

// StalenessTripped 全局陈旧熔断器是否已触发
func (c *BreakerCache) StalenessTripped(ctx context.Context) (bool, error) {
	decision, err := c.readDecision(ctx, breakerStalenessAllKey)
	if err != nil {
		return false, err
	}
	return !decision.Allowed, nil
}

// SetGlobal 写入全局熔断器状态 (测试/管理通道使用)
func (c *BreakerCache) SetGlobal(ctx context.Context, tripped bool, reason string) error {
	return c.writeState(ctx, breakerGlobalKey, tripped, reason)
}

// SetStaleness 写入组合陈旧熔断器状态
func (c *BreakerCache) SetStaleness(ctx context.Context, portfolioID string, tripped bool, reason string) error {
	key := breakerStalenessAllKey
	if portfolioID != "" {
		key = breakerStalenessPrefix + portfolioID
	}
	return c.writeState(ctx, key, tripped, reason)
}

func (c *BreakerCache) readDecision(ctx context.Context, key string) (*collab.BreakerDecision, error) {
	state, err := c.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, err
	}
	if len(state) == 0 || state["tripped"] != "1" {
		return &collab.BreakerDecision{Allowed: true}, nil
	}
	return &collab.BreakerDecision{
		Allowed: false,
		Reason:  state["reason"],
	}, nil
}

func (c *BreakerCache) writeState(ctx context.Context, key string, tripped bool, reason string) error {
	trippedVal := "0"
	if tripped {
		trippedVal = "1"
	}
	return c.client.HSet(ctx, key, map[string]string{
		"tripped": trippedVal,
		"reason":  reason,
	}).Err()
}
