// Package gate 实现 RBM 审批前的质量门评估
//
// 六项子检查独立运行，所有失败原因都会被收集 (不短路)，
// 每项检查无论通过与否都要留下结构化证据快照，保证任何一次
// 审批决定都可以仅凭审计日志复现
package gate

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/quantrix-platform/quantrix-rbm/internal/collab"
	"github.com/quantrix-platform/quantrix-rbm/internal/model"
)

// CheckResult 单项检查结果
type CheckResult struct {
	Name     string
	Passed   bool
	Reasons  []string
	Evidence map[string]interface{}
}

// newResult 创建默认通过的结果
func newResult(name string) *CheckResult {
	return &CheckResult{
		Name:     name,
		Passed:   true,
		Evidence: make(map[string]interface{}),
	}
}

// fail 追加失败原因
func (r *CheckResult) fail(reason string) {
	r.Passed = false
	r.Reasons = append(r.Reasons, reason)
}

// Input 一次评估的输入
// Regime 由状态检查填充，供后续检查复用，避免重复调用分类器
type Input struct {
	Campaign *model.Campaign
	Regime   *collab.AggregateRegime
}

// Checker 质量门子检查
type Checker interface {
	Name() string
	Check(ctx context.Context, in *Input) *CheckResult
}

// Evaluation 聚合评估结果
// OK 为六项检查的合取；Reasons 收集全部失败信息；
// Evidence 按检查名收集全部证据快照
type Evaluation struct {
	OK       bool                   `json:"ok"`
	Reasons  []string               `json:"reasons"`
	Evidence map[string]interface{} `json:"evidence"`
}

// RequestCounter 审计事件计数 (防滥用检查消费)
type RequestCounter interface {
	CountByTypeSince(ctx context.Context, campaignID string, eventType model.RBMEventType, since int64) (int64, error)
}

// VolumeSource 市场成交量数据源 (流动性检查消费)
type VolumeSource interface {
	GetVolume24h(ctx context.Context, instrument string) (decimal.Decimal, bool, error)
	GetAllVolumes(ctx context.Context) (map[string]decimal.Decimal, error)
}
