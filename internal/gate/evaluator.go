package gate

import (
	"context"

	"github.com/quantrix-platform/quantrix-rbm/internal/collab"
	"github.com/quantrix-platform/quantrix-rbm/internal/config"
	"github.com/quantrix-platform/quantrix-rbm/internal/metrics"
	"github.com/quantrix-platform/quantrix-rbm/internal/model"
	"github.com/quantrix-platform/quantrix-rbm/pkg/logger"
)

// Evaluator 质量门评估器
// 所有外部协作方都通过显式句柄注入，测试可以替换为确定性桩
type Evaluator struct {
	checkers []Checker
}

// NewEvaluator 创建评估器并按固定顺序装配六项检查
func NewEvaluator(
	classifier collab.RegimeClassifier,
	breakers collab.BreakerStatus,
	counter RequestCounter,
	volumes VolumeSource,
	cfg *config.GateConfig,
) *Evaluator {
	return &Evaluator{
		checkers: []Checker{
			NewRegimeChecker(classifier, cfg),
			NewBreakerChecker(breakers),
			NewDrawdownChecker(cfg),
			NewAntiFraudChecker(counter, cfg),
			NewSpreadChecker(cfg),
			NewLiquidityChecker(volumes, cfg),
		},
	}
}

// Evaluate 对 campaign 运行全部检查
// 只读，不产生任何持久副作用
func (e *Evaluator) Evaluate(ctx context.Context, campaign *model.Campaign) *Evaluation {
	in := &Input{Campaign: campaign}

	eval := &Evaluation{
		Evidence: make(map[string]interface{}, len(e.checkers)),
	}

	for _, checker := range e.checkers {
		result := checker.Check(ctx, in)

		eval.Evidence[result.Name] = result.Evidence
		if !result.Passed {
			eval.Reasons = append(eval.Reasons, result.Reasons...)
			metrics.GateCheckFailures.WithLabelValues(result.Name).Inc()
			logger.Debug("quality gate check failed",
				"campaign_id", campaign.ID,
				"check", result.Name,
				"reasons", result.Reasons)
		}
	}

	eval.OK = len(eval.Reasons) == 0
	return eval
}

// CheckerNames 返回装配的检查名 (诊断接口使用)
func (e *Evaluator) CheckerNames() []string {
	names := make([]string, len(e.checkers))
	for i, c := range e.checkers {
		names[i] = c.Name()
	}
	return names
}
