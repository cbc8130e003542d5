package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/quantrix-platform/quantrix-rbm/internal/model"
)

// RBMEventRepository RBM 审计事件仓储
// 事件只增不改不删
type RBMEventRepository struct {
	db *gorm.DB
}

// NewRBMEventRepository 创建审计事件仓储
func NewRBMEventRepository(db *gorm.DB) *RBMEventRepository {
	return &RBMEventRepository{db: db}
}

// Create 追加审计事件
func (r *RBMEventRepository) Create(ctx context.Context, event *model.RBMEvent) error {
	if event.EventID == "" {
		event.EventID = uuid.New().String()
	}
	if event.CreatedAt == 0 {
		event.CreatedAt = time.Now().UnixMilli()
	}

	return r.db.WithContext(ctx).Create(event).Error
}

// ListByCampaign 按 campaign 查询事件，时间倒序
func (r *RBMEventRepository) ListByCampaign(ctx context.Context, campaignID string, pagination *Pagination) ([]*model.RBMEvent, int64, error) {
	var events []*model.RBMEvent
	var total int64

	query := r.db.WithContext(ctx).
		Model(&model.RBMEvent{}).
		Where("campaign_id = ?", campaignID)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := query.
		Offset(pagination.Offset()).
		Limit(pagination.Limit()).
		Order("created_at DESC").
		Find(&events).Error

	if err != nil {
		return nil, 0, err
	}
	return events, total, nil
}

// ListRecent 取 campaign 最近 N 条事件，时间倒序
func (r *RBMEventRepository) ListRecent(ctx context.Context, campaignID string, limit int) ([]*model.RBMEvent, error) {
	if limit <= 0 {
		limit = 10
	}

	var events []*model.RBMEvent
	err := r.db.WithContext(ctx).
		Where("campaign_id = ?", campaignID).
		Order("created_at DESC").
		Limit(limit).
		Find(&events).Error

	if err != nil {
		return nil, err
	}
	return events, nil
}

// CountByTypeSince 统计时间窗口内某类事件的数量 (防滥用检查使用)
func (r *RBMEventRepository) CountByTypeSince(ctx context.Context, campaignID string, eventType model.RBMEventType, since int64) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.RBMEvent{}).
		Where("campaign_id = ?", campaignID).
		Where("type = ?", eventType).
		Where("created_at >= ?", since).
		Count(&count).Error

	if err != nil {
		return 0, err
	}
	return count, nil
}
