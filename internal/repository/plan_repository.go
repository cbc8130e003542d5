package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/quantrix-platform/quantrix-rbm/internal/model"
)

var (
	ErrPlanNotFound = errors.New("subscription plan not found")
)

// PlanRepository 订阅计划仓储
type PlanRepository struct {
	db *gorm.DB
}

// NewPlanRepository 创建订阅计划仓储
func NewPlanRepository(db *gorm.DB) *PlanRepository {
	return &PlanRepository{db: db}
}

// GetByID 根据ID获取计划
func (r *PlanRepository) GetByID(ctx context.Context, id string) (*model.SubscriptionPlan, error) {
	var plan model.SubscriptionPlan
	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&plan).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPlanNotFound
		}
		return nil, err
	}
	return &plan, nil
}

// Upsert 插入或更新计划 (限额配置下发)
func (r *PlanRepository) Upsert(ctx context.Context, plan *model.SubscriptionPlan) error {
	err := r.db.WithContext(ctx).Save(plan).Error
	if isDuplicateKeyError(err) {
		return r.db.WithContext(ctx).
			Model(&model.SubscriptionPlan{}).
			Where("tier = ?", plan.Tier).
			Update("rbm_limit", plan.RBMLimit).Error
	}
	return err
}
