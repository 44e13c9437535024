package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"RescueNet/internal/dispatch"
	handlers "RescueNet/internal/handler"
	"RescueNet/internal/models"
	"RescueNet/pkg/cache"
	"RescueNet/pkg/config"
	"RescueNet/pkg/logger"
	"RescueNet/pkg/notification"
	"RescueNet/pkg/push"
	"RescueNet/pkg/scheduler"
)

func main() {
	if err := config.Load(); err != nil {
		panic(err)
	}
	cfg := config.GlobalConfig

	logger.Init(cfg.Log)
	defer logger.Sync()

	db, err := openDB(cfg)
	if err != nil {
		logger.Error("open database", zap.Error(err))
		os.Exit(1)
	}
	if err := db.AutoMigrate(
		&models.EmergencyRequest{},
		&models.Responder{},
		&models.Rejection{},
		&models.Feedback{},
	); err != nil {
		logger.Error("migrate schema", zap.Error(err))
		os.Exit(1)
	}

	var rdb *redis.Client
	var store cache.Cache
	if cfg.Cache.Type == "redis" {
		rdb = redis.NewClient(&redis.Options{
			Addr:         cfg.Cache.Redis.Addr,
			Password:     cfg.Cache.Redis.Password,
			DB:           cfg.Cache.Redis.DB,
			PoolSize:     cfg.Cache.Redis.PoolSize,
			MinIdleConns: cfg.Cache.Redis.MinIdleConns,
			DialTimeout:  cfg.Cache.Redis.DialTimeout,
			ReadTimeout:  cfg.Cache.Redis.ReadTimeout,
			WriteTimeout: cfg.Cache.Redis.WriteTimeout,
		})
		store = cache.NewRedisCacheFromClient(rdb)
	} else {
		store, err = cache.NewCache(cfg.Cache)
		if err != nil {
			logger.Error("init cache", zap.Error(err))
			os.Exit(1)
		}
	}
	defer store.Close()

	hub := push.NewHub(push.DefaultConfig())
	defer hub.Close()

	var mailer *notification.Mailer
	if cfg.Mail.Host != "" {
		mailer = notification.NewMailer(cfg.Mail, nil)
	}

	ledger := dispatch.NewLedger(db)
	matcher, err := dispatch.NewMatcher(db, ledger, dispatch.MatchConfig{
		RadiiKm:       cfg.SearchRadiiKm,
		MaxCandidates: cfg.MaxCandidates,
	})
	if err != nil {
		logger.Error("init matcher", zap.Error(err))
		os.Exit(1)
	}
	notifier := dispatch.NewNotifier(hub, mailer, store, cfg.DeadlineWindow)
	svc := dispatch.NewService(db, matcher, ledger, notifier, cfg.DeadlineWindow)

	sweeper := dispatch.NewSweeper(db, notifier)
	if rdb != nil {
		sweeper.WithRedisLock(rdb, cfg.SweepInterval-5*time.Second)
	}
	cr := scheduler.NewCron(nil)
	if _, err := cr.AddEvery(cfg.SweepInterval, sweeper); err != nil {
		logger.Error("schedule sweeper", zap.Error(err))
		os.Exit(1)
	}
	cr.Start()
	defer cr.Stop()

	if cfg.Mode != "" {
		gin.SetMode(cfg.Mode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())
	handlers.NewHandlers(db, svc, hub).Register(engine)

	srv := &http.Server{
		Addr:    cfg.Addr,
		Handler: engine,
	}
	go func() {
		logger.Info("server listening", zap.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server stopped", zap.Error(err))
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("shutdown", zap.Error(err))
	}
}

func openDB(cfg *config.Config) (*gorm.DB, error) {
	switch cfg.DBDriver {
	case "postgres":
		return gorm.Open(postgres.Open(cfg.DSN), &gorm.Config{})
	default:
		return gorm.Open(mysql.Open(cfg.DSN), &gorm.Config{})
	}
}
