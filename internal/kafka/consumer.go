package kafka

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/IBM/sarama"

	"github.com/quantrix-platform/quantrix-rbm/internal/cache"
	"github.com/quantrix-platform/quantrix-rbm/internal/metrics"
	"github.com/quantrix-platform/quantrix-rbm/pkg/logger"
)

// Consumer Kafka 消费者
// 消费行情流，保持 redis 市场缓存新鲜 (流动性检查依赖它)
type Consumer struct {
	client      sarama.ConsumerGroup
	marketCache *cache.MarketCache

	ready chan bool
	ctx   context.Context
	wg    sync.WaitGroup
}

// ConsumerConfig 消费者配置
type ConsumerConfig struct {
	Brokers []string
	GroupID string
}

// NewConsumer 创建 Kafka 消费者
func NewConsumer(cfg *ConsumerConfig, marketCache *cache.MarketCache) (*Consumer, error) {
	config := sarama.NewConfig()
	config.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	config.Consumer.Offsets.Initial = sarama.OffsetNewest

	client, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.GroupID, config)
	if err != nil {
		return nil, err
	}

	return &Consumer{
		client:      client,
		marketCache: marketCache,
		ready:       make(chan bool),
	}, nil
}

// Start 启动消费者
func (c *Consumer) Start(ctx context.Context) error {
	c.ctx = ctx
	topics := []string{TopicMarketTickers}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for {
			if err := c.client.Consume(ctx, topics, c); err != nil {
				logger.Error("consumer error", "error", err)
			}
			if ctx.Err() != nil {
				return
			}
			c.ready = make(chan bool)
		}
	}()

	<-c.ready
	logger.Info("kafka consumer started", "topics", topics)
	return nil
}

// Stop 停止消费者
func (c *Consumer) Stop() error {
	c.wg.Wait()
	return c.client.Close()
}

// Setup 初始化
func (c *Consumer) Setup(sarama.ConsumerGroupSession) error {
	close(c.ready)
	return nil
}

// Cleanup 清理
func (c *Consumer) Cleanup(sarama.ConsumerGroupSession) error {
	return nil
}

// ConsumeClaim 消费消息
func (c *Consumer) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case message, ok := <-claim.Messages():
			if !ok {
				return nil
			}

			if err := c.handleMessage(c.ctx, message); err != nil {
				logger.Error("failed to handle message",
					"topic", message.Topic,
					"error", err)
			}

			session.MarkMessage(message, "")

		case <-c.ctx.Done():
			return nil
		}
	}
}

// handleMessage 处理消息
func (c *Consumer) handleMessage(ctx context.Context, msg *sarama.ConsumerMessage) error {
	switch msg.Topic {
	case TopicMarketTickers:
		metrics.RecordKafkaMessage(msg.Topic, false)
		return c.handleMarketTicker(ctx, msg.Value)
	default:
		logger.Warn("unknown topic", "topic", msg.Topic)
	}
	return nil
}

// MarketTickerMessage 行情消息
type MarketTickerMessage struct {
	Instrument string `json:"instrument"`
	LastPrice  string `json:"last_price"`
	Volume24h  string `json:"volume_24h"` // 名义成交额
	SpreadBps  string `json:"spread_bps"` // 指示性点差 (基点)
	Timestamp  int64  `json:"timestamp"`
}

// handleMarketTicker 处理行情消息
func (c *Consumer) handleMarketTicker(ctx context.Context, data []byte) error {
	var msg MarketTickerMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return err
	}
	if msg.Instrument == "" {
		logger.Warn("ticker message without instrument, dropped")
		return nil
	}

	ticker := map[string]string{
		"last_price": msg.LastPrice,
		"volume_24h": msg.Volume24h,
		"spread_bps": msg.SpreadBps,
	}
	if err := c.marketCache.SetTicker(ctx, msg.Instrument, ticker); err != nil {
		logger.Error("failed to update market cache",
			"instrument", msg.Instrument,
			"error", err)
		return err
	}

	logger.Debug("market ticker processed", "instrument", msg.Instrument)
	return nil
}
