// Package collab 定义外部协作方的接口契约
// 分类器、熔断器、权限服务对本服务都是黑盒，只按接口消费；
// 具体实现由 cache 包 (redis 适配) 或测试桩提供
package collab

import "context"

// Regime 市场波动率状态分级
type Regime string

const (
	RegimeLow     Regime = "LOW"
	RegimeNormal  Regime = "NORMAL"
	RegimeHigh    Regime = "HIGH"
	RegimeExtreme Regime = "EXTREME"
)

// IsElevationFriendly 该状态下是否允许授予提升倍数
func (r Regime) IsElevationFriendly() bool {
	return r == RegimeHigh || r == RegimeExtreme
}

// InstrumentRegime 单个标的的分类结果
type InstrumentRegime struct {
	Instrument        string  `json:"instrument"`
	Regime            Regime  `json:"regime"`
	Confidence        float64 `json:"confidence"`
	CyclesInRegime    int     `json:"cycles_in_regime"`   // 在当前状态中已稳定的分类周期数
	CooldownRemaining int     `json:"cooldown_remaining"` // 剩余冷却周期
	VolumeRatio       float64 `json:"volume_ratio"`       // 相对基线的成交量比
}

// AggregateRegime 聚合分类结果
type AggregateRegime struct {
	Regime        Regime             `json:"regime"`
	Confidence    float64            `json:"confidence"`
	PerInstrument []InstrumentRegime `json:"per_instrument"`
}

// RegimeClassifier 波动率状态分类器
// 错误必须与合法的 LOW 结果可区分，调用方据此做 fail-closed 处理
type RegimeClassifier interface {
	AggregateRegime(ctx context.Context, instruments []string) (*AggregateRegime, error)
}
