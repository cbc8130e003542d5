package model

// RBMEventType RBM 审计事件类型
type RBMEventType string

const (
	RBMEventTypeRequest    RBMEventType = "REQUEST"    // 提升请求 (每次请求必记)
	RBMEventTypeApprove    RBMEventType = "APPROVE"    // 请求通过
	RBMEventTypeDeny       RBMEventType = "DENY"       // 请求拒绝
	RBMEventTypeReduce     RBMEventType = "REDUCE"     // 监控器部分回退
	RBMEventTypeRollback   RBMEventType = "ROLLBACK"   // 监控器完全回退
	RBMEventTypeDeactivate RBMEventType = "DEACTIVATE" // 手动停用 (等价于完全回退)
)

// RBMActorType 事件触发者类型
type RBMActorType string

const (
	RBMActorUser   RBMActorType = "user"
	RBMActorSystem RBMActorType = "system"
)

// RBMEvent RBM 审计事件
// 只增不改不删，是每次倍数变更及其依据的唯一权威历史
type RBMEvent struct {
	ID         int64        `gorm:"primaryKey;autoIncrement" json:"id"`
	EventID    string       `gorm:"type:varchar(64);uniqueIndex;not null" json:"event_id"`
	CampaignID string       `gorm:"type:varchar(64);index:idx_rbm_events_campaign_type;not null" json:"campaign_id"`
	Type       RBMEventType `gorm:"type:varchar(20);index:idx_rbm_events_campaign_type;not null" json:"type"`
	PrevValue  float64      `gorm:"type:decimal(6,3);not null" json:"prev_value"`
	NewValue   float64      `gorm:"type:decimal(6,3);not null" json:"new_value"`
	Reason     string       `gorm:"type:varchar(500)" json:"reason"`
	ActorType  RBMActorType `gorm:"type:varchar(10);not null" json:"actor_type"`
	ActorID    string       `gorm:"type:varchar(64)" json:"actor_id"`
	Evidence   string       `gorm:"type:jsonb" json:"evidence,omitempty"` // 质量门快照或触发详情 (JSON)
	CreatedAt  int64        `gorm:"type:bigint;not null;index" json:"created_at"`
}

// TableName 返回表名
func (RBMEvent) TableName() string {
	return "rbm_events"
}

// IsDecision 是否为审批决定事件
func (e *RBMEvent) IsDecision() bool {
	return e.Type == RBMEventTypeApprove || e.Type == RBMEventTypeDeny
}

// IsUnwind 是否为回退类事件
func (e *RBMEvent) IsUnwind() bool {
	return e.Type == RBMEventTypeReduce ||
		e.Type == RBMEventTypeRollback ||
		e.Type == RBMEventTypeDeactivate
}
