// Package config 提供 RBM 服务配置管理
package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Config RBM 服务配置
type Config struct {
	Service  ServiceConfig  `yaml:"service" json:"service"`
	Postgres PostgresConfig `yaml:"postgres" json:"postgres"`
	Redis    RedisConfig    `yaml:"redis" json:"redis"`
	Kafka    KafkaConfig    `yaml:"kafka" json:"kafka"`
	RBM      RBMConfig      `yaml:"rbm" json:"rbm"`
	Log      LogConfig      `yaml:"log" json:"log"`
}

// ServiceConfig 服务配置
type ServiceConfig struct {
	Name     string `yaml:"name" json:"name"`
	HTTPPort int    `yaml:"http_port" json:"http_port"`
	Env      string `yaml:"env" json:"env"`
}

// PostgresConfig PostgreSQL 配置
type PostgresConfig struct {
	Host                   string `yaml:"host" json:"host"`
	Port                   int    `yaml:"port" json:"port"`
	Database               string `yaml:"database" json:"database"`
	User                   string `yaml:"user" json:"user"`
	Password               string `yaml:"password" json:"password"`
	MaxConnections         int    `yaml:"max_connections" json:"max_connections"`
	MaxIdleConns           int    `yaml:"max_idle_conns" json:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes" json:"conn_max_lifetime_minutes"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	Host     string `yaml:"host" json:"host"`
	Port     int    `yaml:"port" json:"port"`
	Password string `yaml:"password" json:"password"`
	DB       int    `yaml:"db" json:"db"`
	PoolSize int    `yaml:"pool_size" json:"pool_size"`
}

// KafkaConfig Kafka 配置
type KafkaConfig struct {
	Enabled  bool     `yaml:"enabled" json:"enabled"`
	Brokers  []string `yaml:"brokers" json:"brokers"`
	GroupID  string   `yaml:"group_id" json:"group_id"`
	ClientID string   `yaml:"client_id" json:"client_id"`
}

// RBMConfig RBM 业务配置
type RBMConfig struct {
	PlanLimits map[string]float64 `yaml:"plan_limits" json:"plan_limits"` // tier -> 最大倍数
	Gate       GateConfig         `yaml:"gate" json:"gate"`
	Monitor    MonitorConfig      `yaml:"monitor" json:"monitor"`
}

// GateConfig 质量门阈值配置
type GateConfig struct {
	MinConfidence      float64 `yaml:"min_confidence" json:"min_confidence"`             // 聚合状态最低置信度
	MinStableCycles    int     `yaml:"min_stable_cycles" json:"min_stable_cycles"`       // 单标的最少稳定周期
	VolumeRatioHigh    float64 `yaml:"volume_ratio_high" json:"volume_ratio_high"`       // HIGH 下的成交量比下限
	VolumeRatioExtreme float64 `yaml:"volume_ratio_extreme" json:"volume_ratio_extreme"` // EXTREME 下的成交量比下限

	MaxDrawdownRatio float64 `yaml:"max_drawdown_ratio" json:"max_drawdown_ratio"` // 回撤占上限比例的门槛

	AntiFraudWindowMinutes int `yaml:"anti_fraud_window_minutes" json:"anti_fraud_window_minutes"`
	AntiFraudMaxRequests   int `yaml:"anti_fraud_max_requests" json:"anti_fraud_max_requests"`

	SpreadCeilingHighBps      float64 `yaml:"spread_ceiling_high_bps" json:"spread_ceiling_high_bps"`
	SlippageCeilingHighBps    float64 `yaml:"slippage_ceiling_high_bps" json:"slippage_ceiling_high_bps"`
	SpreadCeilingExtremeBps   float64 `yaml:"spread_ceiling_extreme_bps" json:"spread_ceiling_extreme_bps"`
	SlippageCeilingExtremeBps float64 `yaml:"slippage_ceiling_extreme_bps" json:"slippage_ceiling_extreme_bps"`

	LiquidityMinPercentile float64           `yaml:"liquidity_min_percentile" json:"liquidity_min_percentile"`
	LiquidityFloors        map[string]string `yaml:"liquidity_floors" json:"liquidity_floors"` // instrument -> 24h 最低名义成交额
}

// MonitorConfig 回退监控配置
type MonitorConfig struct {
	SweepIntervalSec       int     `yaml:"sweep_interval_sec" json:"sweep_interval_sec"`
	CampaignTimeoutSec     int     `yaml:"campaign_timeout_sec" json:"campaign_timeout_sec"`
	LiveMinConfidence      float64 `yaml:"live_min_confidence" json:"live_min_confidence"`           // 低于此值部分回退，比审批门槛宽松以避免抖动
	DrawdownTriggerRatio   float64 `yaml:"drawdown_trigger_ratio" json:"drawdown_trigger_ratio"`     // 回撤触发阈值
	PartialReductionFactor float64 `yaml:"partial_reduction_factor" json:"partial_reduction_factor"` // 置信度/陈旧熔断触发的缩减系数
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
}

// Load 加载配置
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	// 环境变量替换
	content := string(data)
	content = expandEnvVars(content)

	var cfg Config
	if err := yaml.Unmarshal([]byte(content), &cfg); err != nil {
		return nil, err
	}

	// 设置默认值
	setDefaults(&cfg)

	return &cfg, nil
}

// Default 返回全默认配置 (测试使用)
func Default() *Config {
	cfg := &Config{}
	setDefaults(cfg)
	return cfg
}

// expandEnvVars 展开环境变量 ${VAR:default}
func expandEnvVars(s string) string {
	result := s
	for {
		start := strings.Index(result, "${")
		if start == -1 {
			break
		}
		end := strings.Index(result[start:], "}")
		if end == -1 {
			break
		}
		end += start

		expr := result[start+2 : end]
		parts := strings.SplitN(expr, ":", 2)
		varName := parts[0]
		defaultVal := ""
		if len(parts) > 1 {
			defaultVal = parts[1]
		}

		value := os.Getenv(varName)
		if value == "" {
			value = defaultVal
		}

		result = result[:start] + value + result[end+1:]
	}
	return result
}

// setDefaults 设置默认值
func setDefaults(cfg *Config) {
	if cfg.Service.Name == "" {
		cfg.Service.Name = "quantrix-rbm"
	}
	if cfg.Service.HTTPPort == 0 {
		cfg.Service.HTTPPort = 8086
	}
	if cfg.Service.Env == "" {
		cfg.Service.Env = "dev"
	}

	if cfg.Postgres.Port == 0 {
		cfg.Postgres.Port = 5432
	}
	if cfg.Postgres.MaxConnections == 0 {
		cfg.Postgres.MaxConnections = 30
	}
	if cfg.Postgres.MaxIdleConns == 0 {
		cfg.Postgres.MaxIdleConns = 10
	}
	if cfg.Postgres.ConnMaxLifetimeMinutes == 0 {
		cfg.Postgres.ConnMaxLifetimeMinutes = 60
	}

	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.Redis.PoolSize == 0 {
		cfg.Redis.PoolSize = 50
	}

	// 层级限额默认值: starter < pro < enterprise < master，均不超过系统硬顶
	if len(cfg.RBM.PlanLimits) == 0 {
		cfg.RBM.PlanLimits = map[string]float64{
			"starter":    1.5,
			"pro":        3.0,
			"enterprise": 4.0,
			"master":     5.0,
		}
	}

	// 质量门默认阈值
	if cfg.RBM.Gate.MinConfidence == 0 {
		cfg.RBM.Gate.MinConfidence = 0.70
	}
	if cfg.RBM.Gate.MinStableCycles == 0 {
		cfg.RBM.Gate.MinStableCycles = 3
	}
	if cfg.RBM.Gate.VolumeRatioHigh == 0 {
		cfg.RBM.Gate.VolumeRatioHigh = 1.2
	}
	if cfg.RBM.Gate.VolumeRatioExtreme == 0 {
		cfg.RBM.Gate.VolumeRatioExtreme = 1.5
	}
	if cfg.RBM.Gate.MaxDrawdownRatio == 0 {
		cfg.RBM.Gate.MaxDrawdownRatio = 0.30
	}
	if cfg.RBM.Gate.AntiFraudWindowMinutes == 0 {
		cfg.RBM.Gate.AntiFraudWindowMinutes = 60
	}
	if cfg.RBM.Gate.AntiFraudMaxRequests == 0 {
		cfg.RBM.Gate.AntiFraudMaxRequests = 5
	}
	if cfg.RBM.Gate.SpreadCeilingHighBps == 0 {
		cfg.RBM.Gate.SpreadCeilingHighBps = 8
	}
	if cfg.RBM.Gate.SlippageCeilingHighBps == 0 {
		cfg.RBM.Gate.SlippageCeilingHighBps = 12
	}
	if cfg.RBM.Gate.SpreadCeilingExtremeBps == 0 {
		cfg.RBM.Gate.SpreadCeilingExtremeBps = 15
	}
	if cfg.RBM.Gate.SlippageCeilingExtremeBps == 0 {
		cfg.RBM.Gate.SlippageCeilingExtremeBps = 25
	}
	if cfg.RBM.Gate.LiquidityMinPercentile == 0 {
		cfg.RBM.Gate.LiquidityMinPercentile = 0.80
	}
	if len(cfg.RBM.Gate.LiquidityFloors) == 0 {
		cfg.RBM.Gate.LiquidityFloors = map[string]string{
			"BTC-USDT": "50000000",
			"ETH-USDT": "20000000",
		}
	}

	// 回退监控默认值
	if cfg.RBM.Monitor.SweepIntervalSec == 0 {
		cfg.RBM.Monitor.SweepIntervalSec = 60
	}
	if cfg.RBM.Monitor.CampaignTimeoutSec == 0 {
		cfg.RBM.Monitor.CampaignTimeoutSec = 5
	}
	if cfg.RBM.Monitor.LiveMinConfidence == 0 {
		cfg.RBM.Monitor.LiveMinConfidence = 0.60
	}
	if cfg.RBM.Monitor.DrawdownTriggerRatio == 0 {
		cfg.RBM.Monitor.DrawdownTriggerRatio = 0.50
	}
	if cfg.RBM.Monitor.PartialReductionFactor == 0 {
		cfg.RBM.Monitor.PartialReductionFactor = 0.5
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
}

// BaselineInstruments 基线追踪标的列表 (流动性检查对象)
func (c *GateConfig) BaselineInstruments() []string {
	instruments := make([]string, 0, len(c.LiquidityFloors))
	for instrument := range c.LiquidityFloors {
		instruments = append(instruments, instrument)
	}
	return instruments
}

// GetLiquidityFloor 获取标的的 24h 名义成交额下限
func (c *GateConfig) GetLiquidityFloor(instrument string) decimal.Decimal {
	s, ok := c.LiquidityFloors[instrument]
	if !ok {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// GetEnvInt 获取环境变量整数值
func GetEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

// GetEnvString 获取环境变量字符串值
func GetEnvString(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
