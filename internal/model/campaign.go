// Package model 定义 RBM 服务的数据模型
package model

import (
	"github.com/shopspring/decimal"
)

// 系统级 RBM 边界
const (
	RBMSystemMin     = 1.0 // 系统最小倍数 (即未提升)
	RBMSystemMax     = 5.0 // 系统硬顶
	RBMSystemDefault = 1.0
)

// CampaignStatus 策略实例生命周期状态
type CampaignStatus string

const (
	CampaignStatusActive    CampaignStatus = "active"
	CampaignStatusPaused    CampaignStatus = "paused"
	CampaignStatusStopped   CampaignStatus = "stopped"
	CampaignStatusCompleted CampaignStatus = "completed"
)

// RBMStatus RBM 当前状态
type RBMStatus string

const (
	RBMStatusInactive   RBMStatus = "INACTIVE"    // 从未提升或已完全回退
	RBMStatusActive     RBMStatus = "ACTIVE"      // 按请求倍数全额生效
	RBMStatusReduced    RBMStatus = "REDUCED"     // 被监控器部分回退，仍 > 1.0
	RBMStatusRolledBack RBMStatus = "ROLLED_BACK" // 提升后被完全回退到 1.0
)

// Campaign 交易策略实例
// 本服务只读写其中的 RBM 切片；其余字段归 campaign 子系统所有
type Campaign struct {
	ID          string         `gorm:"type:varchar(64);primaryKey" json:"id"`
	Name        string         `gorm:"type:varchar(128)" json:"name"`
	PortfolioID string         `gorm:"type:varchar(64);index;not null" json:"portfolio_id"`
	PlanID      string         `gorm:"type:varchar(64);index" json:"plan_id"` // 订阅计划，平台自营时为空
	Status      CampaignStatus `gorm:"type:varchar(20);index;not null" json:"status"`

	InitialCapital decimal.Decimal `gorm:"type:decimal(36,18)" json:"initial_capital"`
	CurrentEquity  decimal.Decimal `gorm:"type:decimal(36,18)" json:"current_equity"`

	MaxDrawdownPct     float64 `gorm:"type:decimal(8,4)" json:"max_drawdown_pct"`
	CurrentDrawdownPct float64 `gorm:"type:decimal(8,4)" json:"current_drawdown_pct"`

	// RBM 切片
	// 不变量: 1.0 <= RBMApproved <= min(plan_limit, 5.0)
	RBMRequested     float64   `gorm:"column:rbm_requested;type:decimal(6,3);not null;default:1.0" json:"rbm_requested"`
	RBMApproved      float64   `gorm:"column:rbm_approved;type:decimal(6,3);not null;default:1.0" json:"rbm_approved"`
	RBMStatus        RBMStatus `gorm:"column:rbm_status;type:varchar(20);not null;default:INACTIVE" json:"rbm_status"`
	RBMApprovedAt    int64     `gorm:"column:rbm_approved_at;type:bigint" json:"rbm_approved_at"`
	RBMReducedAt     int64     `gorm:"column:rbm_reduced_at;type:bigint" json:"rbm_reduced_at"`
	RBMReducedReason string    `gorm:"column:rbm_reduced_reason;type:varchar(500)" json:"rbm_reduced_reason"`

	CreatedAt int64 `gorm:"type:bigint;not null;autoCreateTime:milli" json:"created_at"`
	UpdatedAt int64 `gorm:"type:bigint;not null;autoUpdateTime:milli" json:"updated_at"`
}

// TableName 返回表名
func (Campaign) TableName() string {
	return "campaigns"
}

// IsEligibleForElevation 是否允许发起 RBM 提升请求
// 仅 active/paused 状态的实例可以请求
func (c *Campaign) IsEligibleForElevation() bool {
	return c.Status == CampaignStatusActive || c.Status == CampaignStatusPaused
}

// IsElevated 当前是否持有提升倍数
func (c *Campaign) IsElevated() bool {
	return c.RBMApproved > RBMSystemMin &&
		(c.RBMStatus == RBMStatusActive || c.RBMStatus == RBMStatusReduced)
}

// DrawdownRatio 当前回撤占配置上限的比例
// 未配置回撤上限时返回 0 和 false
func (c *Campaign) DrawdownRatio() (float64, bool) {
	if c.MaxDrawdownPct <= 0 {
		return 0, false
	}
	return c.CurrentDrawdownPct / c.MaxDrawdownPct, true
}

// EffectiveRiskPerTrade 仓位计算消费的单笔风险上限
func (c *Campaign) EffectiveRiskPerTrade(baseRiskPct float64) float64 {
	return baseRiskPct * c.RBMApproved
}

// EffectiveRiskBudget 同时持仓风险预算
func (c *Campaign) EffectiveRiskBudget(baseBudgetPct float64) float64 {
	return baseBudgetPct * c.RBMApproved
}

// EffectiveAllocation 放大后的资金分配
func (c *Campaign) EffectiveAllocation(base decimal.Decimal) decimal.Decimal {
	return base.Mul(decimal.NewFromFloat(c.RBMApproved))
}
