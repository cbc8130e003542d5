package kafka

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantrix-platform/quantrix-rbm/internal/cache"
)

func newTestConsumer(t *testing.T) (*Consumer, *cache.MarketCache) {
	mr := miniredis.RunT(t)
	marketCache := cache.NewMarketCache(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	return &Consumer{marketCache: marketCache}, marketCache
}

func TestConsumer_HandleMarketTicker(t *testing.T) {
	consumer, marketCache := newTestConsumer(t)
	ctx := context.Background()

	payload := []byte(`{"instrument":"BTC-USDT","last_price":"64250.5","volume_24h":"80000000","spread_bps":"2.5","timestamp":1756684800000}`)
	require.NoError(t, consumer.handleMarketTicker(ctx, payload))

	volume, ok, err := marketCache.GetVolume24h(ctx, "BTC-USDT")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "80000000", volume.String())

	spread, ok, err := marketCache.GetSpreadBps(ctx, "BTC-USDT")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "2.5", spread.String())
}

func TestConsumer_HandleMarketTicker_MissingInstrumentDropped(t *testing.T) {
	consumer, marketCache := newTestConsumer(t)
	ctx := context.Background()

	// instrument 缺失的消息丢弃而不报错，避免毒丸消息卡死分区
	require.NoError(t, consumer.handleMarketTicker(ctx, []byte(`{"last_price":"1.0"}`)))

	volumes, err := marketCache.GetAllVolumes(ctx)
	require.NoError(t, err)
	assert.Empty(t, volumes)
}

func TestConsumer_HandleMarketTicker_MalformedPayload(t *testing.T) {
	consumer, _ := newTestConsumer(t)

	err := consumer.handleMarketTicker(context.Background(), []byte(`{not json`))
	assert.Error(t, err)
}
