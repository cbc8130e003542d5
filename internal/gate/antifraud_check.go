package gate

import (
	"context"
	"fmt"
	"time"

	"github.com/quantrix-platform/quantrix-rbm/internal/config"
	"github.com/quantrix-platform/quantrix-rbm/internal/model"
)

// AntiFraudChecker 防滥用检查
// 统计滚动窗口内该 campaign 的 REQUEST 事件数，算上本次请求
// 不得达到上限，限制任何操作者反复冲击质量门的频率。
// 事件历史查询失败时 fail-closed
type AntiFraudChecker struct {
	counter RequestCounter
	cfg     *config.GateConfig
}

// NewAntiFraudChecker 创建防滥用检查
func NewAntiFraudChecker(counter RequestCounter, cfg *config.GateConfig) *AntiFraudChecker {
	return &AntiFraudChecker{counter: counter, cfg: cfg}
}

// Name 返回检查名称
func (c *AntiFraudChecker) Name() string {
	return "anti_fraud"
}

// Check 执行防滥用检查
func (c *AntiFraudChecker) Check(ctx context.Context, in *Input) *CheckResult {
	result := newResult(c.Name())

	windowMs := int64(c.cfg.AntiFraudWindowMinutes) * 60 * 1000
	since := time.Now().UnixMilli() - windowMs

	prior, err := c.counter.CountByTypeSince(ctx, in.Campaign.ID, model.RBMEventTypeRequest, since)
	if err != nil {
		result.Evidence["error"] = err.Error()
		result.fail(fmt.Sprintf("request history unavailable: %v", err))
		return result
	}

	// 本次请求的 REQUEST 事件在最终提交时才落库，这里把它计入
	requests := prior + 1
	result.Evidence["requests_in_window"] = requests
	result.Evidence["window_minutes"] = c.cfg.AntiFraudWindowMinutes
	result.Evidence["max_requests"] = c.cfg.AntiFraudMaxRequests

	if requests >= int64(c.cfg.AntiFraudMaxRequests) {
		result.fail(fmt.Sprintf("anti-fraud limit reached: %d elevation requests within %d minutes (max %d)",
			requests, c.cfg.AntiFraudWindowMinutes, c.cfg.AntiFraudMaxRequests-1))
	}

	return result
}
