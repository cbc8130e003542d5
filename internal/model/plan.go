package model

// PlanTier 订阅层级
type PlanTier string

const (
	PlanTierStarter    PlanTier = "starter"
	PlanTierPro        PlanTier = "pro"
	PlanTierEnterprise PlanTier = "enterprise"
	PlanTierMaster     PlanTier = "master"
)

// SubscriptionPlan 订阅计划
// RBMLimit 是该层级允许请求的最大倍数，始终落在 [1.0, 5.0] 内
type SubscriptionPlan struct {
	ID        string   `gorm:"type:varchar(64);primaryKey" json:"id"`
	Tier      PlanTier `gorm:"type:varchar(20);uniqueIndex;not null" json:"tier"`
	RBMLimit  float64  `gorm:"column:rbm_limit;type:decimal(6,3);not null" json:"rbm_limit"`
	CreatedAt int64    `gorm:"type:bigint;not null;autoCreateTime:milli" json:"created_at"`
	UpdatedAt int64    `gorm:"type:bigint;not null;autoUpdateTime:milli" json:"updated_at"`
}

// TableName 返回表名
func (SubscriptionPlan) TableName() string {
	return "subscription_plans"
}

// IsValid 限额是否落在系统边界内
func (p *SubscriptionPlan) IsValid() bool {
	return p.RBMLimit >= RBMSystemMin && p.RBMLimit <= RBMSystemMax
}
