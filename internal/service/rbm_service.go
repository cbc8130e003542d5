// Package service 提供 RBM 服务的业务逻辑
//
// ========================================
// RBMService 倍数提升服务对接说明
// ========================================
//
// ## 功能概述
// RBMService 负责 RBM 提升请求的完整管线: 权限校验 -> 边界校验 ->
// 资格校验 -> 层级限额 -> 质量门评估 -> 原子落库 (REQUEST + APPROVE/DENY)。
// 拒绝是正常响应而不是错误；只有基础设施故障才以 error 返回。
//
// ## 消息输出 (Kafka Producer)
// - Topic: rbm-alerts
// - 消息类型: RBMAlertMessage
// - 触发条件: DENY / REDUCE / ROLLBACK / DEACTIVATE
//
// ## 失败语义
// 任何内部错误 (协作方不可达、存储失败) 都按"未批准"处理，
// 绝不静默放行 (fail closed)。
//
// ========================================
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/quantrix-platform/quantrix-rbm/internal/collab"
	"github.com/quantrix-platform/quantrix-rbm/internal/config"
	"github.com/quantrix-platform/quantrix-rbm/internal/gate"
	"github.com/quantrix-platform/quantrix-rbm/internal/guard"
	"github.com/quantrix-platform/quantrix-rbm/internal/metrics"
	"github.com/quantrix-platform/quantrix-rbm/internal/model"
	"github.com/quantrix-platform/quantrix-rbm/internal/repository"
	"github.com/quantrix-platform/quantrix-rbm/pkg/logger"
)

// 拒绝码
const (
	RejectCodePermissionDenied    = "PERMISSION_DENIED"
	RejectCodeInvalidMultiplier   = "INVALID_MULTIPLIER"
	RejectCodeCampaignNotFound    = "CAMPAIGN_NOT_FOUND"
	RejectCodeCampaignNotEligible = "CAMPAIGN_NOT_ELIGIBLE"
	RejectCodePlanLimitExceeded   = "PLAN_LIMIT_EXCEEDED"
	RejectCodeQualityGateFailed   = "QUALITY_GATE_FAILED"
)

// ErrNotElevated campaign 当前未持有提升倍数
var ErrNotElevated = errors.New("campaign holds no elevated multiplier")

// RBMService RBM 提升服务
type RBMService struct {
	campaignRepo *repository.CampaignRepository
	eventRepo    *repository.RBMEventRepository
	planRepo     *repository.PlanRepository

	evaluator   *gate.Evaluator
	permissions collab.PermissionResolver

	config *config.Config

	// Kafka 生产者 (通过回调设置)
	onAlert func(ctx context.Context, alert *RBMAlertMessage) error
}

// RBMAlertMessage RBM 告警消息
type RBMAlertMessage struct {
	AlertID     string            `json:"alert_id"`
	CampaignID  string            `json:"campaign_id"`
	AlertType   string            `json:"alert_type"` // RBM_DENIED, RBM_REDUCED, RBM_ROLLED_BACK, RBM_DEACTIVATED
	Severity    string            `json:"severity"`   // info, warning, critical
	Description string            `json:"description"`
	Context     map[string]string `json:"context"`
	CreatedAt   int64             `json:"created_at"`
}

// NewRBMService 创建 RBM 服务
func NewRBMService(
	campaignRepo *repository.CampaignRepository,
	eventRepo *repository.RBMEventRepository,
	planRepo *repository.PlanRepository,
	evaluator *gate.Evaluator,
	permissions collab.PermissionResolver,
	cfg *config.Config,
) *RBMService {
	return &RBMService{
		campaignRepo: campaignRepo,
		eventRepo:    eventRepo,
		planRepo:     planRepo,
		evaluator:    evaluator,
		permissions:  permissions,
		config:       cfg,
	}
}

// SetOnAlert 设置告警回调
func (s *RBMService) SetOnAlert(fn func(ctx context.Context, alert *RBMAlertMessage) error) {
	s.onAlert = fn
}

// ElevationRequest 提升请求
type ElevationRequest struct {
	CampaignID string
	Multiplier float64
	ActorID    string // 为空表示系统内部调用
}

// ElevationResponse 提升响应
// Success=true 表示请求被正常处理 (包括被拒绝)；只有基础设施故障才返回 error
type ElevationResponse struct {
	Success             bool                   `json:"success"`
	Approved            bool                   `json:"approved"`
	ApprovedMultiplier  float64                `json:"approved_multiplier"`
	Reason              string                 `json:"reason,omitempty"`
	RejectCode          string                 `json:"reject_code,omitempty"`
	QualityGateSnapshot map[string]interface{} `json:"quality_gate_snapshot,omitempty"`
}

// RequestElevation 处理一次 RBM 提升请求
//
// 六步硬前置条件，任一失败即短路拒绝；步骤 1-3 失败不产生任何落库记录，
// 步骤 4-5 失败和最终批准都通过同一个原子提交写入 REQUEST + APPROVE/DENY
// 双事件。所有外部读取都发生在事务之前，其结果嵌入证据快照，
// 使得任何一次决定都可以仅凭审计日志复现。
func (s *RBMService) RequestElevation(ctx context.Context, req *ElevationRequest) (*ElevationResponse, error) {
	startTime := time.Now()

	// 1. 权限校验 (解析失败按拒绝处理)
	actorType := model.RBMActorSystem
	if req.ActorID != "" {
		actorType = model.RBMActorUser
		perms, err := s.permissions.PermissionsFor(ctx, req.ActorID)
		if err != nil {
			logger.Warn("permission lookup failed, denying elevation",
				"campaign_id", req.CampaignID,
				"actor_id", req.ActorID,
				"error", err)
			return s.reject(RejectCodePermissionDenied, "permission lookup failed"), nil
		}
		if !perms.CanActivateRBM {
			return s.reject(RejectCodePermissionDenied, "actor is not permitted to activate RBM"), nil
		}
	}

	// 2. 边界校验
	if req.Multiplier < model.RBMSystemMin || req.Multiplier > model.RBMSystemMax {
		return s.reject(RejectCodeInvalidMultiplier,
			fmt.Sprintf("requested multiplier %sx outside allowed range [%sx, %sx]",
				formatMultiplier(req.Multiplier),
				formatMultiplier(model.RBMSystemMin),
				formatMultiplier(model.RBMSystemMax))), nil
	}

	// 3. 存在性和资格校验
	campaign, err := s.campaignRepo.GetByID(ctx, req.CampaignID)
	if err != nil {
		if errors.Is(err, repository.ErrCampaignNotFound) {
			return s.reject(RejectCodeCampaignNotFound,
				fmt.Sprintf("campaign %s not found", req.CampaignID)), nil
		}
		return nil, fmt.Errorf("load campaign: %w", err)
	}
	if !campaign.IsEligibleForElevation() {
		return s.reject(RejectCodeCampaignNotEligible,
			fmt.Sprintf("campaign status %s is not eligible for elevation", campaign.Status)), nil
	}

	// 4. 层级限额解析
	plan, err := s.resolvePlan(ctx, campaign)
	if err != nil {
		return nil, fmt.Errorf("resolve plan: %w", err)
	}
	limit := guard.PlanLimit(campaign, plan)
	if req.Multiplier > limit {
		return s.commitDecision(ctx, req, actorType, false,
			planLimitReason(req.Multiplier, limit), RejectCodePlanLimitExceeded, nil, startTime)
	}

	// 5. 质量门评估 (只读)
	eval := s.evaluator.Evaluate(ctx, campaign)
	if !eval.OK {
		reason := strings.Join(eval.Reasons, "; ")
		return s.commitDecision(ctx, req, actorType, false, reason, RejectCodeQualityGateFailed, eval.Evidence, startTime)
	}

	// 6. 原子提交
	return s.commitDecision(ctx, req, actorType, true, "quality gate passed", "", eval.Evidence, startTime)
}

// decision 审批结论
// 事务内重校验可能把批准降级为拒绝，闭包通过指针回传最终结论
type decision struct {
	approved   bool
	reason     string
	rejectCode string
}

// applyDecision 在行锁定的 campaign 上落实审批决定
//
// 加载和提交之间 campaign 可能已被并发终止或回退，因此先在锁定行上
// 重新校验资格，不满足时降级为拒绝。每次调用恰好产生 REQUEST 加
// APPROVE/DENY 双事件；拒绝把倍数复位到 1.0。
func applyDecision(c *model.Campaign, req *ElevationRequest, actorType model.RBMActorType, d *decision, evidenceJSON string, now int64) []*model.RBMEvent {
	if d.approved && !c.IsEligibleForElevation() {
		d.approved = false
		d.reason = fmt.Sprintf("campaign status %s is no longer eligible for elevation", c.Status)
		d.rejectCode = RejectCodeCampaignNotEligible
	}

	prev := c.RBMApproved
	c.RBMRequested = req.Multiplier
	if d.approved {
		c.RBMApproved = req.Multiplier
		c.RBMStatus = model.RBMStatusActive
		c.RBMApprovedAt = now
		c.RBMReducedAt = 0
		c.RBMReducedReason = ""
	} else {
		c.RBMApproved = model.RBMSystemMin
		c.RBMStatus = model.RBMStatusInactive
	}

	decisionEvent := &model.RBMEvent{
		Type:      model.RBMEventTypeDeny,
		PrevValue: prev,
		NewValue:  model.RBMSystemMin,
		Reason:    d.reason,
		ActorType: actorType,
		ActorID:   req.ActorID,
		Evidence:  evidenceJSON,
	}
	if d.approved {
		decisionEvent.Type = model.RBMEventTypeApprove
		decisionEvent.NewValue = req.Multiplier
	}

	return []*model.RBMEvent{
		{
			Type:      model.RBMEventTypeRequest,
			PrevValue: prev,
			NewValue:  req.Multiplier,
			Reason:    "elevation requested",
			ActorType: actorType,
			ActorID:   req.ActorID,
		},
		decisionEvent,
	}
}

// commitDecision 原子写入决定: campaign RBM 切片 + REQUEST/决定双事件
func (s *RBMService) commitDecision(
	ctx context.Context,
	req *ElevationRequest,
	actorType model.RBMActorType,
	approved bool,
	reason string,
	rejectCode string,
	evidence map[string]interface{},
	startTime time.Time,
) (*ElevationResponse, error) {
	evidenceJSON := marshalEvidence(evidence)
	d := &decision{approved: approved, reason: reason, rejectCode: rejectCode}

	err := s.campaignRepo.Transition(ctx, req.CampaignID, func(tx *gorm.DB, c *model.Campaign) ([]*model.RBMEvent, error) {
		return applyDecision(c, req, actorType, d, evidenceJSON, time.Now().UnixMilli()), nil
	})
	if err != nil {
		return nil, fmt.Errorf("commit elevation decision: %w", err)
	}

	result := "approved"
	grantedMultiplier := req.Multiplier
	if !d.approved {
		result = "denied"
		grantedMultiplier = model.RBMSystemMin

		s.sendAlert(ctx, &RBMAlertMessage{
			AlertID:     uuid.New().String(),
			CampaignID:  req.CampaignID,
			AlertType:   "RBM_DENIED",
			Severity:    "warning",
			Description: d.reason,
			Context: map[string]string{
				"requested_multiplier": formatMultiplier(req.Multiplier),
				"reject_code":          d.rejectCode,
			},
			CreatedAt: time.Now().UnixMilli(),
		})
	}
	metrics.RecordElevationRequest(result, time.Since(startTime).Seconds())

	logger.Info("elevation request processed",
		"campaign_id", req.CampaignID,
		"requested", req.Multiplier,
		"approved", d.approved,
		"reason", d.reason)

	return &ElevationResponse{
		Success:             true,
		Approved:            d.approved,
		ApprovedMultiplier:  grantedMultiplier,
		Reason:              d.reason,
		RejectCode:          d.rejectCode,
		QualityGateSnapshot: evidence,
	}, nil
}

// reject 构造不落库的前置条件拒绝响应
func (s *RBMService) reject(code, reason string) *ElevationResponse {
	metrics.ElevationRequestsTotal.WithLabelValues("rejected").Inc()
	return &ElevationResponse{
		Success:            true,
		Approved:           false,
		ApprovedMultiplier: model.RBMSystemMin,
		Reason:             reason,
		RejectCode:         code,
	}
}

// resolvePlan 加载 campaign 的订阅计划
// 无计划或计划记录缺失都返回 nil，由 guard 做保守兜底
func (s *RBMService) resolvePlan(ctx context.Context, campaign *model.Campaign) (*model.SubscriptionPlan, error) {
	if campaign.PlanID == "" {
		return nil, nil
	}
	plan, err := s.planRepo.GetByID(ctx, campaign.PlanID)
	if err != nil {
		if errors.Is(err, repository.ErrPlanNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return plan, nil
}

// StatusResponse campaign 的 RBM 状态视图
type StatusResponse struct {
	CampaignID    string            `json:"campaign_id"`
	Requested     float64           `json:"requested"`
	Approved      float64           `json:"approved"`
	Status        model.RBMStatus   `json:"status"`
	ApprovedAt    int64             `json:"approved_at,omitempty"`
	ReducedAt     int64             `json:"reduced_at,omitempty"`
	ReducedReason string            `json:"reduced_reason,omitempty"`
	PlanLimit     float64           `json:"plan_limit"`
	RecentEvents  []*model.RBMEvent `json:"recent_events"`
}

// Status 查询 campaign 的 RBM 状态
// 只读，无中间写入时重复调用结果一致
func (s *RBMService) Status(ctx context.Context, campaignID string) (*StatusResponse, error) {
	campaign, err := s.campaignRepo.GetByID(ctx, campaignID)
	if err != nil {
		return nil, err
	}

	plan, err := s.resolvePlan(ctx, campaign)
	if err != nil {
		return nil, fmt.Errorf("resolve plan: %w", err)
	}

	events, err := s.eventRepo.ListRecent(ctx, campaignID, 10)
	if err != nil {
		return nil, fmt.Errorf("list recent events: %w", err)
	}

	return &StatusResponse{
		CampaignID:    campaign.ID,
		Requested:     campaign.RBMRequested,
		Approved:      campaign.RBMApproved,
		Status:        campaign.RBMStatus,
		ApprovedAt:    campaign.RBMApprovedAt,
		ReducedAt:     campaign.RBMReducedAt,
		ReducedReason: campaign.RBMReducedReason,
		PlanLimit:     guard.PlanLimit(campaign, plan),
		RecentEvents:  events,
	}, nil
}

// Permissions 解析操作者的 RBM 能力
// 只返回三个派生布尔值，绝不透出原始角色标识
func (s *RBMService) Permissions(ctx context.Context, actorID string) (*collab.Permissions, error) {
	return s.permissions.PermissionsFor(ctx, actorID)
}

// SystemConfig RBM 系统级配置视图
type SystemConfig struct {
	SystemMax  float64            `json:"system_max"`
	SystemMin  float64            `json:"system_min"`
	Default    float64            `json:"default"`
	PlanLimits map[string]float64 `json:"plan_limits"`
}

// Config 返回系统级 RBM 配置
func (s *RBMService) Config() *SystemConfig {
	limits := make(map[string]float64, len(s.config.RBM.PlanLimits))
	for tier, limit := range s.config.RBM.PlanLimits {
		limits[tier] = limit
	}
	return &SystemConfig{
		SystemMax:  model.RBMSystemMax,
		SystemMin:  model.RBMSystemMin,
		Default:    model.RBMSystemDefault,
		PlanLimits: limits,
	}
}

// DeactivateResponse 停用响应
type DeactivateResponse struct {
	Success bool   `json:"success"`
	Reason  string `json:"reason,omitempty"`
}

// Deactivate 手动停用 RBM，等价于完全回退到 1.0
func (s *RBMService) Deactivate(ctx context.Context, campaignID, actorID string) (*DeactivateResponse, error) {
	if actorID != "" {
		perms, err := s.permissions.PermissionsFor(ctx, actorID)
		if err != nil {
			return &DeactivateResponse{Success: false, Reason: "permission lookup failed"}, nil
		}
		if !perms.CanActivateRBM {
			return &DeactivateResponse{Success: false, Reason: "actor is not permitted to deactivate RBM"}, nil
		}
	}

	var prevValue float64
	err := s.campaignRepo.Transition(ctx, campaignID, func(tx *gorm.DB, c *model.Campaign) ([]*model.RBMEvent, error) {
		if !c.IsElevated() {
			return nil, ErrNotElevated
		}

		prevValue = c.RBMApproved
		now := time.Now().UnixMilli()

		c.RBMApproved = model.RBMSystemMin
		c.RBMStatus = model.RBMStatusRolledBack
		c.RBMReducedAt = now
		c.RBMReducedReason = "manually deactivated"

		return []*model.RBMEvent{
			{
				Type:      model.RBMEventTypeDeactivate,
				PrevValue: prevValue,
				NewValue:  model.RBMSystemMin,
				Reason:    "manually deactivated",
				ActorType: model.RBMActorUser,
				ActorID:   actorID,
			},
		}, nil
	})
	if err != nil {
		if errors.Is(err, ErrNotElevated) {
			return &DeactivateResponse{Success: false, Reason: ErrNotElevated.Error()}, nil
		}
		if errors.Is(err, repository.ErrCampaignNotFound) {
			return &DeactivateResponse{Success: false, Reason: "campaign not found"}, nil
		}
		return nil, fmt.Errorf("deactivate: %w", err)
	}

	s.sendAlert(ctx, &RBMAlertMessage{
		AlertID:     uuid.New().String(),
		CampaignID:  campaignID,
		AlertType:   "RBM_DEACTIVATED",
		Severity:    "info",
		Description: "RBM manually deactivated",
		Context: map[string]string{
			"prev_multiplier": formatMultiplier(prevValue),
			"actor_id":        actorID,
		},
		CreatedAt: time.Now().UnixMilli(),
	})

	logger.Info("rbm deactivated",
		"campaign_id", campaignID,
		"actor_id", actorID,
		"prev_multiplier", prevValue)

	return &DeactivateResponse{Success: true}, nil
}

// ListEvents 分页查询 campaign 的审计事件
func (s *RBMService) ListEvents(ctx context.Context, campaignID string, pagination *repository.Pagination) ([]*model.RBMEvent, int64, error) {
	return s.eventRepo.ListByCampaign(ctx, campaignID, pagination)
}

// sendAlert 发送 RBM 告警
func (s *RBMService) sendAlert(ctx context.Context, alert *RBMAlertMessage) {
	if s.onAlert != nil {
		if err := s.onAlert(ctx, alert); err != nil {
			logger.Error("failed to send rbm alert",
				"alert_id", alert.AlertID,
				"error", err)
		}
	}
}

// marshalEvidence 序列化证据快照
func marshalEvidence(evidence map[string]interface{}) string {
	if len(evidence) == 0 {
		return ""
	}
	data, err := json.Marshal(evidence)
	if err != nil {
		logger.Error("failed to marshal gate evidence", "error", err)
		return ""
	}
	return string(data)
}

// formatMultiplier 格式化倍数，去掉无意义的尾零 (3.0 -> "3", 1.5 -> "1.5")
func formatMultiplier(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// planLimitReason 超出层级限额的拒绝理由
func planLimitReason(requested, limit float64) string {
	return fmt.Sprintf("requested multiplier %sx exceeds plan limit of %sx",
		formatMultiplier(requested), formatMultiplier(limit))
}
