// Package app 提供 RBM 服务的应用入口
//
// ========================================
// quantrix-rbm 服务对接总览
// ========================================
//
// ## 服务信息
// - 服务名: quantrix-rbm
// - HTTP 端口: 8086
// - 数据库: quantrix_rbm (PostgreSQL)
//
// ## 依赖服务
// - PostgreSQL: campaign RBM 切片、审计事件、订阅计划
// - Redis: 协作方状态 (市场行情、状态分类、熔断器、角色)
// - Kafka: 消息队列 (告警输出、行情输入)
//
// ## Kafka 主题
// - 消费: market-tickers
// - 生产: rbm-alerts
//
// ## 上游对接
// 1. 状态分类器把聚合/单标的分类结果写入 redis (rbm:regime:*)
// 2. 熔断器子系统把自身状态写入 redis (rbm:breaker:*)
// 3. 行情子系统发送 market-tickers 消息维持市场缓存
// 4. 身份子系统把操作者角色写入 redis (rbm:actor:role:*)
//
// ## 下游对接 (监控告警)
// 1. 消费 rbm-alerts 主题
//    - DENY/REDUCE/ROLLBACK/DEACTIVATE 均产生告警
//    - severity: info/warning/critical
//
// ========================================
package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/quantrix-platform/quantrix-rbm/internal/cache"
	"github.com/quantrix-platform/quantrix-rbm/internal/config"
	"github.com/quantrix-platform/quantrix-rbm/internal/gate"
	"github.com/quantrix-platform/quantrix-rbm/internal/guard"
	"github.com/quantrix-platform/quantrix-rbm/internal/handler"
	"github.com/quantrix-platform/quantrix-rbm/internal/kafka"
	"github.com/quantrix-platform/quantrix-rbm/internal/middleware"
	"github.com/quantrix-platform/quantrix-rbm/internal/repository"
	"github.com/quantrix-platform/quantrix-rbm/internal/service"
	"github.com/quantrix-platform/quantrix-rbm/pkg/logger"
)

// App RBM 服务应用
type App struct {
	cfg *config.Config

	// 基础设施
	db          *gorm.DB
	redisClient redis.UniversalClient
	httpServer  *http.Server

	// Kafka
	kafkaProducer *kafka.AlertProducer
	kafkaConsumer *kafka.Consumer

	// 服务层
	rbmSvc  *service.RBMService
	monitor *service.RollbackMonitor

	// 上下文
	ctx    context.Context
	cancel context.CancelFunc
}

// New 创建应用实例
func New(cfg *config.Config) *App {
	ctx, cancel := context.WithCancel(context.Background())
	return &App{
		cfg:    cfg,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Run 启动应用
func (a *App) Run() error {
	// 1. 初始化数据库
	if err := a.initDB(); err != nil {
		return fmt.Errorf("failed to init database: %w", err)
	}

	// 2. 初始化 Redis
	if err := a.initRedis(); err != nil {
		return fmt.Errorf("failed to init redis: %w", err)
	}

	// 3. 初始化 Kafka
	if err := a.initKafka(); err != nil {
		logger.Warn("failed to init kafka, running without kafka", "error", err)
	}

	// 4. 初始化服务层
	a.initServices()

	// 5. 启动回退监控循环
	a.startMonitorLoop()

	// 6. 启动 HTTP 服务
	a.startHTTPServer()

	return nil
}

// Shutdown 优雅关闭
// 关闭顺序: HTTP -> 监控循环 -> Kafka -> 数据库 -> Redis
func (a *App) Shutdown(ctx context.Context) error {
	logger.Info("shutting down rbm service...")

	if a.httpServer != nil {
		if err := a.httpServer.Shutdown(ctx); err != nil {
			logger.Error("http server shutdown error", "error", err)
		}
	}

	a.cancel()

	if a.kafkaConsumer != nil {
		a.kafkaConsumer.Stop()
	}
	if a.kafkaProducer != nil {
		a.kafkaProducer.Close()
	}

	if a.db != nil {
		sqlDB, _ := a.db.DB()
		if sqlDB != nil {
			sqlDB.Close()
		}
	}

	if a.redisClient != nil {
		a.redisClient.Close()
	}

	logger.Info("rbm service stopped")
	return nil
}

// initDB 初始化数据库
func (a *App) initDB() error {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		a.cfg.Postgres.Host,
		a.cfg.Postgres.Port,
		a.cfg.Postgres.User,
		a.cfg.Postgres.Password,
		a.cfg.Postgres.Database,
	)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	sqlDB.SetMaxOpenConns(a.cfg.Postgres.MaxConnections)
	sqlDB.SetMaxIdleConns(a.cfg.Postgres.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(time.Duration(a.cfg.Postgres.ConnMaxLifetimeMinutes) * time.Minute)

	a.db = db

	if err := AutoMigrate(a.db); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	seedPlans(a.db, a.cfg.RBM.PlanLimits)
	logger.Info("database migrated")

	return nil
}

// initRedis 初始化 Redis
func (a *App) initRedis() error {
	a.redisClient = redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    []string{fmt.Sprintf("%s:%d", a.cfg.Redis.Host, a.cfg.Redis.Port)},
		Password: a.cfg.Redis.Password,
		DB:       a.cfg.Redis.DB,
		PoolSize: a.cfg.Redis.PoolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return a.redisClient.Ping(ctx).Err()
}

// initKafka 初始化 Kafka 生产者
func (a *App) initKafka() error {
	if !a.cfg.Kafka.Enabled || len(a.cfg.Kafka.Brokers) == 0 {
		logger.Info("kafka disabled")
		return nil
	}

	producer, err := kafka.NewAlertProducer(a.cfg.Kafka.Brokers, a.cfg.Kafka.ClientID)
	if err != nil {
		return err
	}
	a.kafkaProducer = producer

	logger.Info("kafka producer initialized", "brokers", a.cfg.Kafka.Brokers)
	return nil
}

// initServices 初始化服务层
func (a *App) initServices() {
	// 仓储层
	campaignRepo := repository.NewCampaignRepository(a.db)
	eventRepo := repository.NewRBMEventRepository(a.db)
	planRepo := repository.NewPlanRepository(a.db)

	// 缓存层 (协作方适配)
	marketCache := cache.NewMarketCache(a.redisClient)
	regimeCache := cache.NewRegimeCache(a.redisClient)
	breakerCache := cache.NewBreakerCache(a.redisClient)
	roleCache := cache.NewRoleCache(a.redisClient)

	permResolver := guard.NewResolver(roleCache.GetRole)

	// 质量门
	evaluator := gate.NewEvaluator(
		regimeCache,
		breakerCache,
		eventRepo,
		marketCache,
		&a.cfg.RBM.Gate,
	)
	logger.Info("quality gate initialized", "checkers", evaluator.CheckerNames())

	// 服务层
	a.rbmSvc = service.NewRBMService(
		campaignRepo,
		eventRepo,
		planRepo,
		evaluator,
		permResolver,
		a.cfg,
	)
	a.monitor = service.NewRollbackMonitor(
		campaignRepo,
		regimeCache,
		breakerCache,
		&a.cfg.RBM.Gate,
		&a.cfg.RBM.Monitor,
	)

	// Kafka 回调
	if a.kafkaProducer != nil {
		alertCallback := a.kafkaProducer.AlertCallback()
		a.rbmSvc.SetOnAlert(alertCallback)
		a.monitor.SetOnAlert(alertCallback)
	}

	// Kafka 消费者 (行情 -> 市场缓存)
	if a.cfg.Kafka.Enabled && len(a.cfg.Kafka.Brokers) > 0 {
		consumer, err := kafka.NewConsumer(
			&kafka.ConsumerConfig{
				Brokers: a.cfg.Kafka.Brokers,
				GroupID: a.cfg.Kafka.GroupID,
			},
			marketCache,
		)
		if err != nil {
			logger.Error("failed to create kafka consumer", "error", err)
		} else {
			a.kafkaConsumer = consumer
			go func() {
				if err := consumer.Start(a.ctx); err != nil {
					logger.Error("kafka consumer error", "error", err)
				}
			}()
		}
	}

	logger.Info("services initialized")
}

// startMonitorLoop 启动回退监控循环
func (a *App) startMonitorLoop() {
	interval := time.Duration(a.cfg.RBM.Monitor.SweepIntervalSec) * time.Second

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		logger.Info("rollback monitor started", "interval", interval)
		for {
			select {
			case <-ticker.C:
				if err := a.monitor.Sweep(a.ctx); err != nil {
					logger.Error("monitor sweep failed", "error", err)
				}
			case <-a.ctx.Done():
				logger.Info("rollback monitor stopped")
				return
			}
		}
	}()
}

// startHTTPServer 启动 HTTP 服务
func (a *App) startHTTPServer() {
	if a.cfg.Service.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(middleware.Metrics())

	engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": a.cfg.Service.Name})
	})
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := engine.Group("/api/v1")
	handler.NewRBMHandler(a.rbmSvc).RegisterRoutes(api)

	a.httpServer = &http.Server{
		Addr:    fmt.Sprintf(":%d", a.cfg.Service.HTTPPort),
		Handler: engine,
	}

	go func() {
		logger.Info("starting http server", "addr", a.httpServer.Addr)
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "error", err)
		}
	}()
}

// GetConfig 获取配置
func (a *App) GetConfig() *config.Config {
	return a.cfg
}
