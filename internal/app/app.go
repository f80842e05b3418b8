package app

import (
	"context"
	"lms_backend/internal/config"
	"lms_backend/internal/controller"
	"lms_backend/internal/repository"
	"lms_backend/internal/service"
	"lms_backend/pkg/database"
	"lms_backend/pkg/logger"
	"lms_backend/pkg/monitoring"
	"lms_backend/pkg/security"
	"lms_backend/pkg/tracing"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

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
	tracer          *sdktrace.TracerProvider
	configCallbacks []func(*config.Config)
}

type repositories struct {
	user        *repository.UserRepository
	course      *repository.CourseRepository
	enrollment  *repository.EnrollmentRepository
	progress    *repository.ProgressRepository
	certificate *repository.CertificateRepository
}

type services struct {
	auth        *service.AuthService
	cache       *service.CacheService
	course      *service.CourseService
	certificate *service.CertificateService
	progress    *service.ProgressService
	dispatcher  *service.ProgressDispatcher
}

type controllers struct {
	auth        *controller.AuthController
	course      *controller.CourseController
	progress    *controller.ProgressController
	certificate *controller.CertificateController
	health      *controller.HealthController
}

func (a *App) RegisterConfigCallback(callback func(*config.Config)) {
	a.configCallbacks = append(a.configCallbacks, callback)
}

// ReloadConfig 应用热更新后的配置并通知所有已注册的回调
func (a *App) ReloadConfig(cfg *config.Config) {
	a.Config = cfg
	for _, callback := range a.configCallbacks {
		callback(cfg)
	}
}

func (a *App) initRepositories(db *gorm.DB) *repositories {
	return &repositories{
		user:        repository.NewUserRepository(db),
		course:      repository.NewCourseRepository(db),
		enrollment:  repository.NewEnrollmentRepository(db),
		progress:    repository.NewProgressRepository(db),
		certificate: repository.NewCertificateRepository(db),
	}
}

func (a *App) initServices(repos *repositories, cfg *config.Config, rdb *redis.Client) *services {
	s := &services{}

	s.auth = service.NewAuthService(repos.user, cfg)
	s.cache = service.NewCacheService(rdb, cfg.Cache.TTL)
	s.course = service.NewCourseService(repos.course, repos.enrollment, repos.progress, s.cache)
	s.certificate = service.NewCertificateService(repos.certificate)
	s.progress = service.NewProgressService(
		repos.course,
		repos.progress,
		repos.enrollment,
		repos.user,
		s.cache,
		s.certificate,
	)

	s.dispatcher = service.NewProgressDispatcher(cfg.Progress.QueueSize, cfg.Progress.MutationTimeout)
	go s.dispatcher.Run()

	return s
}

func (a *App) initControllers(s *services, db *gorm.DB) *controllers {
	return &controllers{
		auth:        controller.NewAuthController(s.auth),
		course:      controller.NewCourseController(s.course),
		progress:    controller.NewProgressController(s.progress, s.dispatcher),
		certificate: controller.NewCertificateController(s.certificate),
		health:      controller.NewHealthController(db),
	}
}

func (a *App) setupMiddlewares(router *gin.Engine, cfg *config.Config) {
	router.Use(security.CORS(cfg.CORS.AllowedOrigins))
	router.Use(security.Secure())
	router.Use(security.RateLimiter(cfg.RateLimit.MaxRequests, time.Duration(cfg.RateLimit.WindowMinutes)*time.Minute))

	// 分布式追踪中间件
	if cfg.Tracing.Enabled {
		router.Use(tracing.GinMiddleware())
	}

	router.Use(monitoring.MetricsMiddleware())
}

func NewApp(cfg *config.Config) *App {
	logger.InitLogger(cfg)
	defer logger.Log.Sync()

	logger.Log.Info("Logger initialized successfully")

	db, err := database.InitDB(&cfg.Database)
	if err != nil {
		logger.Log.Fatal("Failed to initialize database", zap.Error(err))
		log.Fatalf("Failed to initialize database: %v", err)
	}

	rdb, err := database.InitRedis(&cfg.Redis)
	if err != nil {
		logger.Log.Fatal("Failed to initialize redis", zap.Error(err))
		log.Fatalf("Failed to initialize redis: %v", err)
	}

	app := &App{
		Config: cfg,
		DB:     db,
		Redis:  rdb,
	}

	repos := app.initRepositories(db)
	services := app.initServices(repos, cfg, rdb)
	app.services = services
	controllers := app.initControllers(services, db)

	// 配置热更新后刷新可在线调整的设置
	app.RegisterConfigCallback(func(c *config.Config) {
		services.cache.SetTTL(c.Cache.TTL)
	})

	// 监控初始化
	monitoring.Init()

	router := gin.Default()
	app.Router = router

	app.setupMiddlewares(router, cfg)

	if cfg.Tracing.Enabled {
		tp, err := tracing.InitTracer("lms-backend", cfg.Tracing.CollectorEndpoint)
		if err != nil {
			logger.Log.Fatal("Failed to initialize tracing", zap.Error(err))
		}
		// 进程退出前在 Run 的优雅关闭流程里统一关停
		app.tracer = tp
	}

	app.registerRoutes(router, controllers, cfg)

	return app
}

func (a *App) Run() {
	srv := &http.Server{
		Addr:    ":" + a.Config.Server.Port,
		Handler: a.Router,
	}

	// 启动服务器
	go func() {
		log.Printf("Server running on port %s", a.Config.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	// 等待中断信号优雅地关闭服务器（设置5秒的超时时间）
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	// 先停调度器，把队列里的进度变更排空落库
	if a.services != nil && a.services.dispatcher != nil {
		a.services.dispatcher.Stop()
	}

	// 关闭服务
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	a.shutdownTracer(ctx)

	log.Println("Server exiting")
}

func (a *App) shutdownTracer(ctx context.Context) {
	if a.tracer == nil {
		return
	}
	if err := a.tracer.Shutdown(ctx); err != nil {
		logger.Log.Error("Failed to shutdown tracer provider", zap.Error(err))
	}
}
