package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/quantrix-platform/quantrix-rbm/internal/model"
)

var (
	ErrCampaignNotFound = errors.New("campaign not found")
	ErrCampaignExists   = errors.New("campaign already exists")
)

// TransitionFunc 在事务内对锁定的 campaign 执行状态变更，
// 返回需要随本次变更一起落库的审计事件
type TransitionFunc func(tx *gorm.DB, c *model.Campaign) ([]*model.RBMEvent, error)

// CampaignRepository campaign 仓储
// RBM 切片的所有写入都必须经过 Transition，保证字段变更和审计事件
// 要么同时可见要么都不可见
type CampaignRepository struct {
	db *gorm.DB
}

// NewCampaignRepository 创建 campaign 仓储
func NewCampaignRepository(db *gorm.DB) *CampaignRepository {
	return &CampaignRepository{db: db}
}

// GetByID 根据ID获取 campaign
func (r *CampaignRepository) GetByID(ctx context.Context, id string) (*model.Campaign, error) {
	var campaign model.Campaign
	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&campaign).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCampaignNotFound
		}
		return nil, err
	}
	return &campaign, nil
}

// ListElevated 列出所有持有提升倍数的 campaign
// 即 rbm_status ∈ {ACTIVE, REDUCED} 且 rbm_approved > 1.0
func (r *CampaignRepository) ListElevated(ctx context.Context) ([]*model.Campaign, error) {
	var campaigns []*model.Campaign
	err := r.db.WithContext(ctx).
		Where("rbm_status IN ?", []model.RBMStatus{model.RBMStatusActive, model.RBMStatusReduced}).
		Where("rbm_approved > ?", model.RBMSystemMin).
		Find(&campaigns).Error

	if err != nil {
		return nil, err
	}
	return campaigns, nil
}

// Transition 原子状态变更原语
// 单个事务内: 行锁读取 -> 执行 fn 修改 RBM 切片 -> 写回 campaign
// 并追加 fn 返回的全部审计事件。任何一步失败则整体回滚。
//
// 行锁保证请求管线和回退监控器并发写同一 campaign 时由存储层串行化，
// 后提交者基于前者已提交的状态做决定，不会互相覆盖。
func (r *CampaignRepository) Transition(ctx context.Context, campaignID string, fn TransitionFunc) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var campaign model.Campaign
		err := tx.
			Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", campaignID).
			First(&campaign).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrCampaignNotFound
			}
			return err
		}

		events, err := fn(tx, &campaign)
		if err != nil {
			return err
		}

		if err := tx.Save(&campaign).Error; err != nil {
			return err
		}

		now := time.Now().UnixMilli()
		for _, event := range events {
			if event.EventID == "" {
				event.EventID = uuid.New().String()
			}
			if event.CampaignID == "" {
				event.CampaignID = campaign.ID
			}
			if event.CreatedAt == 0 {
				event.CreatedAt = now
			}
		}
		if len(events) > 0 {
			if err := tx.Create(events).Error; err != nil {
				return err
			}
		}

		return nil
	})
}

// Create 创建 campaign (测试和种子数据使用)
func (r *CampaignRepository) Create(ctx context.Context, campaign *model.Campaign) error {
	if campaign.RBMApproved == 0 {
		campaign.RBMApproved = model.RBMSystemDefault
	}
	if campaign.RBMRequested == 0 {
		campaign.RBMRequested = model.RBMSystemDefault
	}
	if campaign.RBMStatus == "" {
		campaign.RBMStatus = model.RBMStatusInactive
	}

	err := r.db.WithContext(ctx).Create(campaign).Error
	if isDuplicateKeyError(err) {
		return ErrCampaignExists
	}
	return err
}
