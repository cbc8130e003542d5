package cache

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantrix-platform/quantrix-rbm/internal/collab"
	"github.com/quantrix-platform/quantrix-rbm/internal/guard"
)

func newTestRedis(t *testing.T) redis.UniversalClient {
	mr := miniredis.RunT(t)
	return redis.NewClient(&redis.Options{Addr: mr.Addr()})
}

func TestMarketCache_SetTicker_GetVolume24h(t *testing.T) {
	cache := NewMarketCache(newTestRedis(t))
	ctx := context.Background()

	err := cache.SetTicker(ctx, "BTC-USDT", map[string]string{
		"last_price": "64250.5",
		"volume_24h": "80000000",
		"spread_bps": "2.5",
	})
	require.NoError(t, err)

	volume, ok, err := cache.GetVolume24h(ctx, "BTC-USDT")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "80000000", volume.String())

	spread, ok, err := cache.GetSpreadBps(ctx, "BTC-USDT")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "2.5", spread.String())

	active, err := cache.IsInstrumentActive(ctx, "BTC-USDT")
	require.NoError(t, err)
	assert.True(t, active)
}

func TestMarketCache_GetVolume24h_Missing(t *testing.T) {
	cache := NewMarketCache(newTestRedis(t))

	volume, ok, err := cache.GetVolume24h(context.Background(), "DOGE-USDT")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.True(t, volume.IsZero())
}

func TestMarketCache_GetAllVolumes(t *testing.T) {
	cache := NewMarketCache(newTestRedis(t))
	ctx := context.Background()

	require.NoError(t, cache.SetTicker(ctx, "BTC-USDT", map[string]string{"volume_24h": "80000000"}))
	require.NoError(t, cache.SetTicker(ctx, "ETH-USDT", map[string]string{"volume_24h": "60000000"}))
	// 没有 volume_24h 的行情不进成交量索引
	require.NoError(t, cache.SetTicker(ctx, "SOL-USDT", map[string]string{"last_price": "150"}))

	volumes, err := cache.GetAllVolumes(ctx)
	require.NoError(t, err)
	assert.Len(t, volumes, 2)
	assert.Equal(t, "80000000", volumes["BTC-USDT"].String())
	assert.Equal(t, "60000000", volumes["ETH-USDT"].String())
}

func TestRegimeCache_RoundTrip(t *testing.T) {
	cache := NewRegimeCache(newTestRedis(t))
	ctx := context.Background()

	require.NoError(t, cache.SetAggregate(ctx, collab.RegimeHigh, 0.82))
	require.NoError(t, cache.SetInstrument(ctx, &collab.InstrumentRegime{
		Instrument:        "BTC-USDT",
		Regime:            collab.RegimeHigh,
		Confidence:        0.85,
		CyclesInRegime:    5,
		CooldownRemaining: 0,
		VolumeRatio:       1.6,
	}))

	agg, err := cache.AggregateRegime(ctx, []string{"BTC-USDT"})
	require.NoError(t, err)
	assert.Equal(t, collab.RegimeHigh, agg.Regime)
	assert.Equal(t, 0.82, agg.Confidence)
	require.Len(t, agg.PerInstrument, 1)
	assert.Equal(t, 5, agg.PerInstrument[0].CyclesInRegime)
	assert.Equal(t, 1.6, agg.PerInstrument[0].VolumeRatio)
}

func TestRegimeCache_MissingAggregateIsError(t *testing.T) {
	// 数据缺失按错误返回，调用方据此 fail-closed
	cache := NewRegimeCache(newTestRedis(t))

	_, err := cache.AggregateRegime(context.Background(), nil)
	assert.Error(t, err)
}

func TestRegimeCache_MissingInstrumentIsError(t *testing.T) {
	cache := NewRegimeCache(newTestRedis(t))
	ctx := context.Background()

	require.NoError(t, cache.SetAggregate(ctx, collab.RegimeHigh, 0.82))

	_, err := cache.AggregateRegime(ctx, []string{"BTC-USDT"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "BTC-USDT")
}

func TestBreakerCache_DefaultAllowed(t *testing.T) {
	// 没有状态键时视为未熔断
	cache := NewBreakerCache(newTestRedis(t))
	ctx := context.Background()

	tripped, err := cache.GlobalTripped(ctx)
	require.NoError(t, err)
	assert.False(t, tripped)

	decision, err := cache.CheckStaleness(ctx, "port-1")
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
}

func TestBreakerCache_GlobalTripped(t *testing.T) {
	cache := NewBreakerCache(newTestRedis(t))
	ctx := context.Background()

	require.NoError(t, cache.SetGlobal(ctx, true, "daily loss limit breached"))

	tripped, err := cache.GlobalTripped(ctx)
	require.NoError(t, err)
	assert.True(t, tripped)

	decision, err := cache.CheckGlobal(ctx, "port-1")
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.Equal(t, "daily loss limit breached", decision.Reason)
}

func TestBreakerCache_StalenessPerPortfolio(t *testing.T) {
	cache := NewBreakerCache(newTestRedis(t))
	ctx := context.Background()

	require.NoError(t, cache.SetStaleness(ctx, "port-1", true, "stale market data"))

	decision, err := cache.CheckStaleness(ctx, "port-1")
	require.NoError(t, err)
	assert.False(t, decision.Allowed)

	// 其他组合不受影响
	decision, err = cache.CheckStaleness(ctx, "port-2")
	require.NoError(t, err)
	assert.True(t, decision.Allowed)

	// 全局陈旧熔断对所有组合生效
	require.NoError(t, cache.SetStaleness(ctx, "", true, "feed down"))
	decision, err = cache.CheckStaleness(ctx, "port-2")
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
}

func TestRoleCache_RoundTrip(t *testing.T) {
	cache := NewRoleCache(newTestRedis(t))
	ctx := context.Background()

	require.NoError(t, cache.SetRole(ctx, "user-1", guard.RoleFranchiseOwner))

	role, err := cache.GetRole(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, guard.RoleFranchiseOwner, role)
}

func TestRoleCache_UnknownActorEmptyRole(t *testing.T) {
	// 未知操作者返回空角色而不是错误，guard 解析为空能力集
	cache := NewRoleCache(newTestRedis(t))

	role, err := cache.GetRole(context.Background(), "ghost")
	require.NoError(t, err)
	assert.Equal(t, guard.Role(""), role)
}
