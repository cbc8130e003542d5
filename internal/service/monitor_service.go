package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/quantrix-platform/quantrix-rbm/internal/collab"
	"github.com/quantrix-platform/quantrix-rbm/internal/config"
	"github.com/quantrix-platform/quantrix-rbm/internal/metrics"
	"github.com/quantrix-platform/quantrix-rbm/internal/model"
	"github.com/quantrix-platform/quantrix-rbm/internal/repository"
	"github.com/quantrix-platform/quantrix-rbm/pkg/logger"
)

// RollbackMonitor 自动回退监控器
//
// 按固定节奏扫描所有持有提升倍数的 campaign，逐个按优先级评估回退触发器
// (第一个命中的触发器生效)。监控器只会降低倍数，绝不抬高；加倍数的唯一
// 入口是请求管线。触发器集比审批质量门更窄也更保守。
type RollbackMonitor struct {
	campaignRepo *repository.CampaignRepository
	classifier   collab.RegimeClassifier
	breakers     collab.BreakerStatus

	gateCfg    *config.GateConfig
	monitorCfg *config.MonitorConfig

	// Kafka 告警回调
	onAlert func(ctx context.Context, alert *RBMAlertMessage) error
}

// NewRollbackMonitor 创建回退监控器
func NewRollbackMonitor(
	campaignRepo *repository.CampaignRepository,
	classifier collab.RegimeClassifier,
	breakers collab.BreakerStatus,
	gateCfg *config.GateConfig,
	monitorCfg *config.MonitorConfig,
) *RollbackMonitor {
	return &RollbackMonitor{
		campaignRepo: campaignRepo,
		classifier:   classifier,
		breakers:     breakers,
		gateCfg:      gateCfg,
		monitorCfg:   monitorCfg,
	}
}

// SetOnAlert 设置告警回调
func (m *RollbackMonitor) SetOnAlert(fn func(ctx context.Context, alert *RBMAlertMessage) error) {
	m.onAlert = fn
}

// trigger 命中的回退触发器
type trigger struct {
	cause  string  // campaign_state, regime, confidence, breaker, drawdown, staleness
	reason string  // 人类可读原因，落入审计事件
	factor float64 // 缩减系数，0 表示完全回退
}

// full 是否为完全回退
func (t *trigger) full() bool {
	return t.factor == 0
}

// Sweep 执行一轮巡检
// campaign 之间相互独立，单个 campaign 评估超时或失败只跳过它自己，
// 下一轮重试
func (m *RollbackMonitor) Sweep(ctx context.Context) error {
	startTime := time.Now()
	metrics.MonitorSweepsTotal.Inc()

	campaigns, err := m.campaignRepo.ListElevated(ctx)
	if err != nil {
		return fmt.Errorf("list elevated campaigns: %w", err)
	}
	metrics.ElevatedCampaignsGauge.Set(float64(len(campaigns)))

	timeout := time.Duration(m.monitorCfg.CampaignTimeoutSec) * time.Second
	for _, campaign := range campaigns {
		campaignCtx, cancel := context.WithTimeout(ctx, timeout)
		if err := m.sweepOne(campaignCtx, campaign); err != nil {
			logger.Warn("monitor skipped campaign",
				"campaign_id", campaign.ID,
				"error", err)
		}
		cancel()
	}

	metrics.MonitorSweepDuration.Observe(time.Since(startTime).Seconds())
	return nil
}

// sweepOne 评估单个 campaign 并在触发时落库
func (m *RollbackMonitor) sweepOne(ctx context.Context, campaign *model.Campaign) error {
	t := m.evaluateTriggers(ctx, campaign)
	if t == nil {
		return nil
	}
	return m.applyTrigger(ctx, campaign.ID, t)
}

// evaluateTriggers 按优先级评估回退触发器，返回第一个命中的
func (m *RollbackMonitor) evaluateTriggers(ctx context.Context, campaign *model.Campaign) *trigger {
	// 1. campaign 已暂停
	if campaign.Status == model.CampaignStatusPaused {
		return &trigger{cause: "campaign_state", reason: "campaign paused", factor: 0}
	}

	// 2. campaign 已终止
	if campaign.Status == model.CampaignStatusStopped || campaign.Status == model.CampaignStatusCompleted {
		return &trigger{cause: "campaign_state", reason: "campaign stopped", factor: 0}
	}

	// 3/4. 市场状态: 分类器错误或状态退出 HIGH/EXTREME 按完全回退处理；
	// 置信度低于实时阈值 (比审批门槛宽松，避免抖动) 按部分回退处理
	regime, err := m.classifier.AggregateRegime(ctx, m.gateCfg.BaselineInstruments())
	if err != nil {
		return &trigger{
			cause:  "regime",
			reason: fmt.Sprintf("regime classification unavailable: %v", err),
			factor: 0,
		}
	}
	if !regime.Regime.IsElevationFriendly() {
		return &trigger{
			cause:  "regime",
			reason: fmt.Sprintf("market regime %s no longer supports elevation", regime.Regime),
			factor: 0,
		}
	}
	if regime.Confidence < m.monitorCfg.LiveMinConfidence {
		return &trigger{
			cause: "confidence",
			reason: fmt.Sprintf("regime confidence %.2f below live threshold %.2f",
				regime.Confidence, m.monitorCfg.LiveMinConfidence),
			factor: m.monitorCfg.PartialReductionFactor,
		}
	}

	// 5. 全局熔断
	if tripped, err := m.breakers.GlobalTripped(ctx); err == nil && tripped {
		return &trigger{cause: "breaker", reason: "global circuit breaker tripped", factor: 0}
	}

	// 6. 回撤分层缩减
	if ratio, ok := campaign.DrawdownRatio(); ok && ratio >= m.monitorCfg.DrawdownTriggerRatio {
		factor := ReductionFactor(ratio)
		return &trigger{
			cause:  "drawdown",
			reason: fmt.Sprintf("drawdown at %.0f%% of configured max", ratio*100),
			factor: factor,
		}
	}

	// 7. 数据陈旧熔断
	if tripped, err := m.breakers.StalenessTripped(ctx); err == nil && tripped {
		return &trigger{
			cause:  "staleness",
			reason: "staleness circuit breaker tripped",
			factor: m.monitorCfg.PartialReductionFactor,
		}
	}

	return nil
}

// ReductionFactor 回撤严重度到缩减系数的分段映射
// 纯函数，与采集 I/O 解耦: <0.6 轻度缩减，<0.8 减半，>=0.8 完全回退
func ReductionFactor(severity float64) float64 {
	switch {
	case severity < 0.6:
		return 0.75
	case severity < 0.8:
		return 0.5
	default:
		return 0
	}
}

// applyTrigger 原子落库触发结果
// 部分缩减写 REDUCE 事件并置 REDUCED；完全回退写 ROLLBACK 事件并置
// ROLLED_BACK。缩减下限为 1.0；若缩减后不超过 1.0 则升级为完全回退。
func (m *RollbackMonitor) applyTrigger(ctx context.Context, campaignID string, t *trigger) error {
	var prevValue, newValue float64
	var eventType model.RBMEventType

	err := m.campaignRepo.Transition(ctx, campaignID, func(tx *gorm.DB, c *model.Campaign) ([]*model.RBMEvent, error) {
		// 事务内重读后再验证，避免覆盖并发提交的新状态
		if !c.IsElevated() {
			return nil, nil
		}

		prevValue = c.RBMApproved
		newValue = model.RBMSystemMin
		if !t.full() {
			reduced := c.RBMApproved * t.factor
			if reduced > model.RBMSystemMin {
				newValue = reduced
			}
		}

		now := time.Now().UnixMilli()
		c.RBMApproved = newValue
		c.RBMReducedAt = now
		c.RBMReducedReason = t.reason

		eventType = model.RBMEventTypeRollback
		if newValue > model.RBMSystemMin {
			eventType = model.RBMEventTypeReduce
			c.RBMStatus = model.RBMStatusReduced
		} else {
			c.RBMStatus = model.RBMStatusRolledBack
		}

		return []*model.RBMEvent{
			{
				Type:      eventType,
				PrevValue: prevValue,
				NewValue:  newValue,
				Reason:    t.reason,
				ActorType: model.RBMActorSystem,
			},
		}, nil
	})
	if err != nil {
		return fmt.Errorf("apply rollback trigger: %w", err)
	}
	if eventType == "" {
		// 事务内发现已不再持有提升倍数
		return nil
	}

	action := "rollback"
	alertType := "RBM_ROLLED_BACK"
	severity := "critical"
	if eventType == model.RBMEventTypeReduce {
		action = "reduce"
		alertType = "RBM_REDUCED"
		severity = "warning"
	}
	metrics.RecordMonitorTrigger(t.cause, action)

	m.sendAlert(ctx, &RBMAlertMessage{
		AlertID:     uuid.New().String(),
		CampaignID:  campaignID,
		AlertType:   alertType,
		Severity:    severity,
		Description: t.reason,
		Context: map[string]string{
			"cause":           t.cause,
			"prev_multiplier": formatMultiplier(prevValue),
			"new_multiplier":  formatMultiplier(newValue),
		},
		CreatedAt: time.Now().UnixMilli(),
	})

	logger.Info("rollback trigger applied",
		"campaign_id", campaignID,
		"cause", t.cause,
		"reason", t.reason,
		"prev", prevValue,
		"new", newValue)

	return nil
}

// sendAlert 发送监控告警
func (m *RollbackMonitor) sendAlert(ctx context.Context, alert *RBMAlertMessage) {
	if m.onAlert != nil {
		if err := m.onAlert(ctx, alert); err != nil {
			logger.Error("failed to send monitor alert",
				"alert_id", alert.AlertID,
				"error", err)
		}
	}
}
