package app

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/quantrix-platform/quantrix-rbm/internal/model"
	"github.com/quantrix-platform/quantrix-rbm/internal/repository"
	"github.com/quantrix-platform/quantrix-rbm/pkg/logger"
)

// AutoMigrate 自动执行数据库迁移
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&model.Campaign{},
		&model.RBMEvent{},
		&model.SubscriptionPlan{},
	)
}

// seedPlans 按配置写入各层级的倍数上限
// 重复执行幂等 (upsert)
func seedPlans(db *gorm.DB, planLimits map[string]float64) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	planRepo := repository.NewPlanRepository(db)
	for tier, limit := range planLimits {
		plan := &model.SubscriptionPlan{
			ID:       "plan-" + tier,
			Tier:     model.PlanTier(tier),
			RBMLimit: limit,
		}
		if err := planRepo.Upsert(ctx, plan); err != nil {
			logger.Error("failed to seed plan",
				"tier", tier,
				"error", err)
		}
	}
}
