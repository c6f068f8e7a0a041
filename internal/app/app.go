package app

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"relgraph_backend/internal/config"
	"relgraph_backend/internal/controller"
	"relgraph_backend/internal/repository"
	"relgraph_backend/internal/service"
	"relgraph_backend/pkg/configwatcher"
	"relgraph_backend/pkg/database"
	"relgraph_backend/pkg/eventbus"
	"relgraph_backend/pkg/logger"
	"relgraph_backend/pkg/monitoring"
	"relgraph_backend/pkg/security"
	"relgraph_backend/pkg/tracing"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type App struct {
	Config          *config.Config
	Router          *gin.Engine
	DB              *gorm.DB
	Redis           *redis.Client
	services        *services
	publisher       *eventbus.NatsPublisher
	tracer          *sdktrace.TracerProvider
	stop            chan struct{}
	configCallbacks []func(*config.Config)
}

type repositories struct {
	user         *repository.UserRepository
	relationship *repository.RelationshipRepository
	report       *repository.ReportRepository
}

type services struct {
	connection *service.ConnectionService
	follow     *service.FollowService
	block      *service.BlockService
	report     *service.ReportService
}

type controllers struct {
	connection *controller.ConnectionController
	follow     *controller.FollowController
	block      *controller.BlockController
	report     *controller.ReportController
	health     *controller.HealthController
}

func (a *App) RegisterConfigCallback(callback func(*config.Config)) {
	a.configCallbacks = append(a.configCallbacks, callback)
}

func (a *App) initRepositories(db *gorm.DB, rdb *redis.Client) *repositories {
	return &repositories{
		user:         repository.NewUserRepository(db),
		relationship: repository.NewRelationshipRepository(db, rdb),
		report:       repository.NewReportRepository(db),
	}
}

func (a *App) initServices(repos *repositories, cfg *config.Config, events service.EventPublisher) *services {
	policy := service.PolicyFromConfig(cfg.Relationship)

	s := &services{
		connection: service.NewConnectionService(repos.relationship, repos.user, events, policy),
		follow:     service.NewFollowService(repos.relationship, repos.user, events, policy),
		block:      service.NewBlockService(repos.relationship, repos.user, events, policy),
		report:     service.NewReportService(repos.report, repos.user),
	}

	// 策略参数支持热更新，其余配置需要重启
	a.RegisterConfigCallback(func(newCfg *config.Config) {
		s.connection.UpdatePolicy(service.PolicyFromConfig(newCfg.Relationship))
		logger.Log.Info("Relationship policy updated",
			zap.Int("pending_quota", newCfg.Relationship.PendingQuota),
			zap.Int("cooldown_days", newCfg.Relationship.CooldownDays),
			zap.Int("expiry_days", newCfg.Relationship.ExpiryDays),
			zap.Bool("reject_expired_requests", newCfg.Relationship.RejectExpiredRequests))
	})

	return s
}

func (a *App) initControllers(s *services, db *gorm.DB, rdb *redis.Client) *controllers {
	return &controllers{
		connection: controller.NewConnectionController(s.connection),
		follow:     controller.NewFollowController(s.follow),
		block:      controller.NewBlockController(s.block),
		report:     controller.NewReportController(s.report),
		health:     controller.NewHealthController(db, rdb),
	}
}

func (a *App) setupMiddlewares(router *gin.Engine, cfg *config.Config) {
	router.Use(security.CORS(cfg.CORS.AllowedOrigins))
	router.Use(security.Secure())

	window := time.Duration(cfg.RateLimit.WindowMinutes) * time.Minute
	router.Use(security.NewLimiter(cfg.RateLimit.MaxRequests, window).Middleware(a.stop))

	// 分布式追踪中间件
	if cfg.Tracing.Enabled {
		router.Use(tracing.GinMiddleware())
	}

	router.Use(monitoring.MetricsMiddleware())
}

// initEvents NATS 未启用或连接失败时退化为 no-op，事件只是通知不影响主流程
func (a *App) initEvents(cfg *config.Config) service.EventPublisher {
	if !cfg.NATS.Enabled {
		return service.NoopPublisher{}
	}
	nc, err := eventbus.Connect(cfg.NATS.URL)
	if err != nil {
		logger.Log.Error("Failed to connect to NATS, events disabled", zap.String("url", cfg.NATS.URL), zap.Error(err))
		return service.NoopPublisher{}
	}
	a.publisher = eventbus.NewNatsPublisher(nc, cfg.NATS.SubjectPrefix)
	logger.Log.Info("NATS publisher ready", zap.String("url", nc.ConnectedUrl()))
	return a.publisher
}

func (a *App) watchConfig(ctx context.Context) {
	if a.Config.ConfigDir == "" {
		return
	}
	err := configwatcher.WatchConfig(ctx, a.Config.ConfigDir, func(newCfg *config.Config) {
		for _, cb := range a.configCallbacks {
			cb(newCfg)
		}
	})
	if err != nil {
		logger.Log.Warn("Config hot reload disabled", zap.Error(err))
	}
}

func NewApp(cfg *config.Config) *App {
	logger.InitLogger(cfg)
	logger.Log.Info("Logger initialized successfully")

	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.InitDB(&cfg.Database)
	if err != nil {
		logger.Log.Fatal("Failed to initialize database", zap.Error(err))
	}

	// release 模式只在显式 -migrate-only 时迁移
	if cfg.MigrateOnly || cfg.Server.Mode != "release" {
		if err := database.Migrate(db); err != nil {
			logger.Log.Fatal("Failed to migrate database", zap.Error(err))
		}
	}

	app := &App{
		Config: cfg,
		DB:     db,
		stop:   make(chan struct{}),
	}
	if cfg.MigrateOnly {
		return app
	}

	rdb, err := database.InitRedis(&cfg.Redis)
	if err != nil {
		logger.Log.Fatal("Failed to initialize redis", zap.Error(err))
	}
	app.Redis = rdb

	if cfg.Tracing.Enabled {
		tp, err := tracing.InitTracer("relgraph", cfg.Tracing.CollectorEndpoint)
		if err != nil {
			logger.Log.Fatal("Failed to initialize tracing", zap.Error(err))
		}
		app.tracer = tp
	}

	events := app.initEvents(cfg)
	repos := app.initRepositories(db, rdb)
	app.services = app.initServices(repos, cfg, events)
	controllers := app.initControllers(app.services, db, rdb)

	// 监控初始化
	monitoring.Init()

	router := gin.New()
	router.Use(gin.Recovery())
	if cfg.Server.Mode != "release" {
		router.Use(gin.Logger())
	}
	app.Router = router

	app.setupMiddlewares(router, cfg)
	app.registerRoutes(router, controllers, repos, cfg)

	return app
}

func (a *App) Run() {
	srv := &http.Server{
		Addr:              ":" + a.Config.Server.Port,
		Handler:           a.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	watchCtx, cancelWatch := context.WithCancel(context.Background())
	defer cancelWatch()
	a.watchConfig(watchCtx)

	// 启动服务器
	go func() {
		logger.Log.Info("Server running", zap.String("port", a.Config.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.Fatal("listen failed", zap.Error(err))
		}
	}()

	// 等待中断信号优雅地关闭服务器（设置5秒的超时时间）
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Log.Error("Server forced to shutdown", zap.Error(err))
	}

	a.Close(ctx)
	logger.Log.Info("Server exiting")
}

// Close 释放后台资源，服务器停止接收请求之后调用
func (a *App) Close(ctx context.Context) {
	close(a.stop)

	if a.publisher != nil {
		a.publisher.Close()
	}
	if a.tracer != nil {
		if err := a.tracer.Shutdown(ctx); err != nil {
			logger.Log.Error("Failed to shutdown tracer provider", zap.Error(err))
		}
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			logger.Log.Warn("Failed to close redis", zap.Error(err))
		}
	}
	if sqlDB, err := a.DB.DB(); err == nil {
		sqlDB.Close()
	}
	logger.Log.Sync()
}
