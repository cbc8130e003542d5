package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "quantrix-rbm", cfg.Service.Name)
	assert.Equal(t, 8086, cfg.Service.HTTPPort)

	// 层级限额单调递增且不超过系统硬顶
	limits := cfg.RBM.PlanLimits
	assert.Equal(t, 1.5, limits["starter"])
	assert.Equal(t, 3.0, limits["pro"])
	assert.Equal(t, 4.0, limits["enterprise"])
	assert.Equal(t, 5.0, limits["master"])

	gate := cfg.RBM.Gate
	assert.Equal(t, 0.70, gate.MinConfidence)
	assert.Equal(t, 3, gate.MinStableCycles)
	assert.Equal(t, 1.2, gate.VolumeRatioHigh)
	assert.Equal(t, 1.5, gate.VolumeRatioExtreme)
	assert.Equal(t, 0.30, gate.MaxDrawdownRatio)
	assert.Equal(t, 60, gate.AntiFraudWindowMinutes)
	assert.Equal(t, 5, gate.AntiFraudMaxRequests)
	assert.Equal(t, 0.80, gate.LiquidityMinPercentile)

	monitor := cfg.RBM.Monitor
	assert.Equal(t, 60, monitor.SweepIntervalSec)
	assert.Equal(t, 5, monitor.CampaignTimeoutSec)
	assert.Equal(t, 0.60, monitor.LiveMinConfidence)
	assert.Equal(t, 0.50, monitor.DrawdownTriggerRatio)
	assert.Equal(t, 0.5, monitor.PartialReductionFactor)
}

func TestLoad_EnvExpansion(t *testing.T) {
	t.Setenv("RBM_TEST_PG_HOST", "pg.internal")

	content := `
service:
  name: quantrix-rbm
  http_port: ${RBM_TEST_HTTP_PORT:9090}
postgres:
  host: ${RBM_TEST_PG_HOST:localhost}
rbm:
  plan_limits:
    starter: 2.0
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	// 未设置的变量落到默认值，已设置的取环境值
	assert.Equal(t, 9090, cfg.Service.HTTPPort)
	assert.Equal(t, "pg.internal", cfg.Postgres.Host)

	// 显式配置覆盖默认限额表
	assert.Equal(t, map[string]float64{"starter": 2.0}, cfg.RBM.PlanLimits)

	// 未配置的区段仍然拿到默认值
	assert.Equal(t, 0.70, cfg.RBM.Gate.MinConfidence)
	assert.Equal(t, 5432, cfg.Postgres.Port)
}

func TestLoad_FileMissing(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	assert.Error(t, err)
}

func TestGateConfig_GetLiquidityFloor(t *testing.T) {
	cfg := Default()

	floor := cfg.RBM.Gate.GetLiquidityFloor("BTC-USDT")
	assert.Equal(t, "50000000", floor.String())

	// 未配置的标的没有绝对下限
	assert.True(t, cfg.RBM.Gate.GetLiquidityFloor("SOL-USDT").IsZero())
}

func TestGateConfig_BaselineInstruments(t *testing.T) {
	cfg := Default()

	instruments := cfg.RBM.Gate.BaselineInstruments()
	assert.ElementsMatch(t, []string{"BTC-USDT", "ETH-USDT"}, instruments)
}
