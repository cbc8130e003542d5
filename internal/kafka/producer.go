// Package kafka 提供 RBM 服务的 Kafka 消息处理
package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/IBM/sarama"

	"github.com/quantrix-platform/quantrix-rbm/internal/metrics"
	"github.com/quantrix-platform/quantrix-rbm/internal/service"
	"github.com/quantrix-platform/quantrix-rbm/pkg/logger"
)

const (
	TopicRBMAlerts     = "rbm-alerts"
	TopicMarketTickers = "market-tickers"
)

// AlertProducer RBM 告警生产者
type AlertProducer struct {
	producer sarama.SyncProducer
	enabled  bool
}

// NewAlertProducer 创建告警生产者
func NewAlertProducer(brokers []string, clientID string) (*AlertProducer, error) {
	config := sarama.NewConfig()
	config.Producer.Return.Successes = true
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 3
	config.Producer.Compression = sarama.CompressionSnappy
	config.ClientID = clientID

	producer, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		return nil, err
	}

	return &AlertProducer{producer: producer, enabled: true}, nil
}

// Close 关闭生产者
func (p *AlertProducer) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}

// SetEnabled 启用/禁用生产者
func (p *AlertProducer) SetEnabled(enabled bool) {
	p.enabled = enabled
}

// SendAlert 发送 RBM 告警
func (p *AlertProducer) SendAlert(ctx context.Context, alert *service.RBMAlertMessage) error {
	if !p.enabled {
		return nil
	}

	data, err := json.Marshal(alert)
	if err != nil {
		return err
	}

	msg := &sarama.ProducerMessage{
		Topic:     TopicRBMAlerts,
		Key:       sarama.StringEncoder(alert.CampaignID),
		Value:     sarama.ByteEncoder(data),
		Timestamp: time.Now(),
		Headers: []sarama.RecordHeader{
			{Key: []byte("alert_type"), Value: []byte(alert.AlertType)},
			{Key: []byte("severity"), Value: []byte(alert.Severity)},
		},
	}

	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		logger.Error("failed to send rbm alert",
			"alert_id", alert.AlertID,
			"error", err)
		return err
	}
	metrics.RecordKafkaMessage(TopicRBMAlerts, true)

	logger.Debug("rbm alert sent",
		"alert_id", alert.AlertID,
		"partition", partition,
		"offset", offset)

	return nil
}

// AlertCallback 创建告警回调函数，注入到业务服务
func (p *AlertProducer) AlertCallback() func(ctx context.Context, alert *service.RBMAlertMessage) error {
	return func(ctx context.Context, alert *service.RBMAlertMessage) error {
		return p.SendAlert(ctx, alert)
	}
}
