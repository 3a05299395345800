package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/cors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/langchou/drivewayhub/internal/api/geocoder"
	"github.com/langchou/drivewayhub/internal/api/handlers"
	"github.com/langchou/drivewayhub/internal/api/middleware"
	"github.com/langchou/drivewayhub/internal/api/tesla"
	"github.com/langchou/drivewayhub/internal/auth"
	"github.com/langchou/drivewayhub/internal/config"
	"github.com/langchou/drivewayhub/internal/demo"
	"github.com/langchou/drivewayhub/internal/notify"
	"github.com/langchou/drivewayhub/internal/repository"
	"github.com/langchou/drivewayhub/internal/service"
	"github.com/langchou/drivewayhub/pkg/ws"
)

func main() {
	// 加载配置
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 初始化日志
	logger := initLogger(cfg.Debug)
	defer logger.Sync()

	logger.Info("Starting Driveway Hub", zap.String("port", cfg.ServerPort), zap.String("env", cfg.Environment))

	if err := run(cfg, logger); err != nil {
		logger.Fatal("Server exited with error", zap.Error(err))
	}
	logger.Info("Server exited")
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 连接数据库
	db, err := repository.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer db.Close()

	// 执行数据库迁移
	if err := db.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}
	logger.Info("Database migrated successfully")

	// Redis 保存 PKCE verifier
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}

	// 通知：配置了 AMQP_URL 时发到 RabbitMQ，否则只写日志
	var notifier notify.Notifier = notify.NewLogNotifier(logger)
	if cfg.AMQPURL != "" {
		mq, err := notify.NewRabbitMQ(ctx, cfg.AMQPURL, logger)
		if err != nil {
			return fmt.Errorf("connect rabbitmq: %w", err)
		}
		defer mq.Close()
		notifier = mq
	}

	issuer, err := auth.NewTokenIssuer(cfg.JWTSecret, cfg.JWTTTL)
	if err != nil {
		return err
	}

	// 创建 Repository
	userRepo := repository.NewUserRepository(db)
	drivewayRepo := repository.NewDrivewayRepository(db)
	vehicleRepo := repository.NewVehicleRepository(db)
	bookingRepo := repository.NewBookingRepository(db)
	taskRepo := repository.NewTaskRepository(db)

	// 创建 WebSocket Hub
	wsHub := ws.NewHub(logger)

	bookingService := service.NewBookingService(logger, bookingRepo, wsHub)
	demoRunner := demo.NewRunner(logger, wsHub, cfg.DemoTick)
	wsHub.SetSnapshotProvider(func() []ws.Message {
		if frame := demoRunner.State(); frame != nil {
			return []ws.Message{{Type: demo.MsgTypeFrame, Data: frame}}
		}
		return nil
	})

	// Tesla 集成，缺少配置时禁用
	var (
		teslaService *service.TeslaService
		navigator    service.Navigator
	)
	oauth, err := tesla.NewOAuthClient(tesla.OAuthConfig{
		AuthHost:     cfg.TeslaAuthHost,
		ClientID:     cfg.TeslaClientID,
		ClientSecret: cfg.TeslaClientSecret,
		RedirectURI:  cfg.TeslaRedirectURI,
		Scope:        cfg.TeslaScope,
		Audience:     cfg.TeslaAPIHost,
	})
	var cfgErr *tesla.ConfigError
	switch {
	case errors.As(err, &cfgErr):
		logger.Warn("Tesla integration disabled", zap.Error(err))
	case err != nil:
		return err
	default:
		teslaService = service.NewTeslaService(
			logger,
			oauth,
			tesla.NewClient(cfg.TeslaAPIHost, nil),
			repository.NewTeslaTokenRepository(db),
			repository.NewPKCEStore(rdb),
			vehicleRepo,
		)
		navigator = teslaService
	}

	// 后台任务
	dispatcher := service.NewDispatcher(logger, cfg.DispatchInterval, taskRepo, navigator, notifier, bookingRepo)
	dispatcher.Start(ctx)
	defer dispatcher.Stop()

	if teslaService != nil {
		monitor := service.NewArrivalMonitor(logger, cfg.ArrivalPollInterval, bookingService, teslaService, navigator)
		monitor.Start(ctx)
		defer monitor.Stop()
	}
	defer demoRunner.Stop()

	var geo service.Geocoder
	if cfg.GeocoderURL != "" {
		geo = geocoder.NewClient(cfg.GeocoderURL, logger)
	}

	// 创建 HTTP 处理器
	handler := handlers.NewHandler(logger, issuer, handlers.Services{
		Accounts:  service.NewAccountService(logger, userRepo, issuer, cfg.DemoMode),
		Driveways: service.NewDrivewayService(logger, drivewayRepo, userRepo, geo),
		Vehicles:  service.NewVehicleService(logger, vehicleRepo),
		Bookings:  bookingService,
		Tesla:     teslaService,
		Demo:      demoRunner,
	}, wsHub, cfg.IsDevelopment())

	// 设置 Gin 模式
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	// 创建路由
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger(logger))
	router.Use(middleware.NewRateLimiter(cfg.RateLimitRPM).Handler())

	// 注册路由
	handler.RegisterRoutes(router)

	server := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           corsHandler(cfg.CORSOrigins).Handler(router),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		wsHub.Run(ctx)
		return nil
	})

	g.Go(func() error {
		logger.Info("Server started", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		logger.Info("Shutting down server...")

		// 优雅关闭
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	})

	return g.Wait()
}

// initLogger 初始化日志
func initLogger(debug bool) *zap.Logger {
	var config zap.Config
	if debug {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		config = zap.NewProductionConfig()
	}

	logger, _ := config.Build()
	return logger
}

// corsHandler CORS 配置
func corsHandler(origins []string) *cors.Cors {
	return cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type", middleware.RequestIDHeader},
		ExposedHeaders:   []string{middleware.RequestIDHeader},
	})
}
