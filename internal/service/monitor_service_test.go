package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantrix-platform/quantrix-rbm/internal/collab"
	"github.com/quantrix-platform/quantrix-rbm/internal/config"
	"github.com/quantrix-platform/quantrix-rbm/internal/model"
)

// fakeClassifier 确定性状态分类器桩
type fakeClassifier struct {
	agg *collab.AggregateRegime
	err error
}

func (f *fakeClassifier) AggregateRegime(ctx context.Context, instruments []string) (*collab.AggregateRegime, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.agg, nil
}

// fakeBreakers 熔断器桩
type fakeBreakers struct {
	globalTripped    bool
	stalenessTripped bool
	err              error
}

func (f *fakeBreakers) CheckGlobal(ctx context.Context, portfolioID string) (*collab.BreakerDecision, error) {
	return &collab.BreakerDecision{Allowed: !f.globalTripped}, f.err
}

func (f *fakeBreakers) CheckStaleness(ctx context.Context, portfolioID string) (*collab.BreakerDecision, error) {
	return &collab.BreakerDecision{Allowed: !f.stalenessTripped}, f.err
}

func (f *fakeBreakers) GlobalTripped(ctx context.Context) (bool, error) {
	return f.globalTripped, f.err
}

func (f *fakeBreakers) StalenessTripped(ctx context.Context) (bool, error) {
	return f.stalenessTripped, f.err
}

func highRegime(confidence float64) *collab.AggregateRegime {
	return &collab.AggregateRegime{Regime: collab.RegimeHigh, Confidence: confidence}
}

func elevatedCampaign() *model.Campaign {
	return &model.Campaign{
		ID:                 "camp-1",
		PortfolioID:        "port-1",
		Status:             model.CampaignStatusActive,
		MaxDrawdownPct:     10,
		CurrentDrawdownPct: 1,
		RBMRequested:       3.0,
		RBMApproved:        3.0,
		RBMStatus:          model.RBMStatusActive,
	}
}

func newTestMonitor(classifier collab.RegimeClassifier, breakers collab.BreakerStatus) *RollbackMonitor {
	cfg := config.Default()
	return NewRollbackMonitor(nil, classifier, breakers, &cfg.RBM.Gate, &cfg.RBM.Monitor)
}

func TestReductionFactor_Tiers(t *testing.T) {
	assert.Equal(t, 0.75, ReductionFactor(0.55))
	assert.Equal(t, 0.5, ReductionFactor(0.75))
	assert.Equal(t, 0.0, ReductionFactor(0.95))

	// 边界
	assert.Equal(t, 0.75, ReductionFactor(0.50))
	assert.Equal(t, 0.5, ReductionFactor(0.60))
	assert.Equal(t, 0.0, ReductionFactor(0.80))
}

func TestRollbackMonitor_NoTriggerWhenHealthy(t *testing.T) {
	m := newTestMonitor(&fakeClassifier{agg: highRegime(0.85)}, &fakeBreakers{})

	trig := m.evaluateTriggers(context.Background(), elevatedCampaign())
	assert.Nil(t, trig)
}

func TestRollbackMonitor_PausedBeatsRegime(t *testing.T) {
	// 即使市场状态仍然有利，暂停触发器优先生效
	m := newTestMonitor(&fakeClassifier{agg: highRegime(0.95)}, &fakeBreakers{})

	campaign := elevatedCampaign()
	campaign.Status = model.CampaignStatusPaused

	trig := m.evaluateTriggers(context.Background(), campaign)
	require.NotNil(t, trig)
	assert.Equal(t, "campaign_state", trig.cause)
	assert.True(t, trig.full())
	assert.Contains(t, trig.reason, "paused")
}

func TestRollbackMonitor_StoppedFullRollback(t *testing.T) {
	m := newTestMonitor(&fakeClassifier{agg: highRegime(0.95)}, &fakeBreakers{})

	for _, status := range []model.CampaignStatus{model.CampaignStatusStopped, model.CampaignStatusCompleted} {
		campaign := elevatedCampaign()
		campaign.Status = status

		trig := m.evaluateTriggers(context.Background(), campaign)
		require.NotNil(t, trig, "status %s", status)
		assert.True(t, trig.full())
	}
}

func TestRollbackMonitor_ClassifierErrorFullRollback(t *testing.T) {
	m := newTestMonitor(&fakeClassifier{err: errors.New("classifier down")}, &fakeBreakers{})

	trig := m.evaluateTriggers(context.Background(), elevatedCampaign())
	require.NotNil(t, trig)
	assert.Equal(t, "regime", trig.cause)
	assert.True(t, trig.full())
}

func TestRollbackMonitor_RegimeLostFullRollback(t *testing.T) {
	m := newTestMonitor(&fakeClassifier{agg: &collab.AggregateRegime{Regime: collab.RegimeNormal, Confidence: 0.9}}, &fakeBreakers{})

	trig := m.evaluateTriggers(context.Background(), elevatedCampaign())
	require.NotNil(t, trig)
	assert.Equal(t, "regime", trig.cause)
	assert.True(t, trig.full())
}

func TestRollbackMonitor_LowConfidencePartial(t *testing.T) {
	// 实时阈值 0.60 比审批门槛 0.70 宽松；0.55 触发减半
	m := newTestMonitor(&fakeClassifier{agg: highRegime(0.55)}, &fakeBreakers{})

	trig := m.evaluateTriggers(context.Background(), elevatedCampaign())
	require.NotNil(t, trig)
	assert.Equal(t, "confidence", trig.cause)
	assert.Equal(t, 0.5, trig.factor)
	assert.Contains(t, trig.reason, "confidence")

	// 3.0 减半后落在 1.5
	assert.Equal(t, 1.5, 3.0*trig.factor)
}

func TestRollbackMonitor_ConfidenceAboveLiveThresholdPasses(t *testing.T) {
	// 0.65 低于审批门槛但高于实时阈值，不触发 (避免抖动)
	m := newTestMonitor(&fakeClassifier{agg: highRegime(0.65)}, &fakeBreakers{})

	trig := m.evaluateTriggers(context.Background(), elevatedCampaign())
	assert.Nil(t, trig)
}

func TestRollbackMonitor_GlobalBreakerFullRollback(t *testing.T) {
	m := newTestMonitor(&fakeClassifier{agg: highRegime(0.85)}, &fakeBreakers{globalTripped: true})

	trig := m.evaluateTriggers(context.Background(), elevatedCampaign())
	require.NotNil(t, trig)
	assert.Equal(t, "breaker", trig.cause)
	assert.True(t, trig.full())
}

func TestRollbackMonitor_DrawdownTiers(t *testing.T) {
	m := newTestMonitor(&fakeClassifier{agg: highRegime(0.85)}, &fakeBreakers{})

	cases := []struct {
		drawdownPct float64
		wantFactor  float64
	}{
		{5.5, 0.75}, // ratio 0.55
		{7.5, 0.5},  // ratio 0.75
		{9.5, 0},    // ratio 0.95 -> 完全回退
	}
	for _, tc := range cases {
		campaign := elevatedCampaign()
		campaign.CurrentDrawdownPct = tc.drawdownPct

		trig := m.evaluateTriggers(context.Background(), campaign)
		require.NotNil(t, trig, "drawdown %.1f", tc.drawdownPct)
		assert.Equal(t, "drawdown", trig.cause)
		assert.Equal(t, tc.wantFactor, trig.factor, "drawdown %.1f", tc.drawdownPct)
	}
}

func TestRollbackMonitor_DrawdownBelowTriggerIgnored(t *testing.T) {
	m := newTestMonitor(&fakeClassifier{agg: highRegime(0.85)}, &fakeBreakers{})

	campaign := elevatedCampaign()
	campaign.CurrentDrawdownPct = 4.5 // ratio 0.45 < 0.50

	trig := m.evaluateTriggers(context.Background(), campaign)
	assert.Nil(t, trig)
}

func TestRollbackMonitor_StalenessPartial(t *testing.T) {
	m := newTestMonitor(&fakeClassifier{agg: highRegime(0.85)}, &fakeBreakers{stalenessTripped: true})

	trig := m.evaluateTriggers(context.Background(), elevatedCampaign())
	require.NotNil(t, trig)
	assert.Equal(t, "staleness", trig.cause)
	assert.Equal(t, 0.5, trig.factor)
}
