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

	"github.com/ashwinyue/next-tutor/internal/config"
	"github.com/ashwinyue/next-tutor/internal/database"
	"github.com/ashwinyue/next-tutor/internal/handler"
	"github.com/ashwinyue/next-tutor/internal/logger"
	"github.com/ashwinyue/next-tutor/internal/repository"
	"github.com/ashwinyue/next-tutor/internal/router"
	"github.com/ashwinyue/next-tutor/internal/service"
	"github.com/ashwinyue/next-tutor/internal/service/ingest"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "next-tutor: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// 加载配置
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./configs/config.yaml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log, err := logger.New(cfg.Log.Mode)
	if err != nil {
		return fmt.Errorf("failed to init logger: %w", err)
	}
	defer log.Sync()

	// 设置 Gin 模式
	gin.SetMode(cfg.Server.Mode)

	// 初始化数据库
	db, err := database.New(cfg)
	if err != nil {
		return fmt.Errorf("failed to init database: %w", err)
	}
	defer db.Close()
	log.Info("database connected", "driver", cfg.Database.Driver, "store", cfg.Store.Backend)

	// 初始化 Redis（可选）
	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.GetAddr(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()

		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := redisClient.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			return fmt.Errorf("failed to connect redis: %w", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 初始化各层
	repos := repository.NewRepositories(db.DB)
	services, err := service.NewServices(ctx, cfg, repos, redisClient, log)
	if err != nil {
		return fmt.Errorf("failed to init services: %w", err)
	}
	handlers := handler.NewHandlers(services)
	r := router.SetupRouter(handlers, log, cfg.Server.CORSOrigins)

	// 收件箱目录自动入库
	watchDone := make(chan struct{})
	if cfg.Ingestion.WatchDir != "" {
		w, err := ingest.NewWatcher(services.Ingest, cfg.Ingestion.WatchDir, cfg.Ingestion.WatchOwnerID, 0, log.With("component", "watcher"))
		if err != nil {
			return fmt.Errorf("failed to watch %s: %w", cfg.Ingestion.WatchDir, err)
		}
		go func() {
			defer close(watchDone)
			if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("watcher stopped", "error", err)
			}
		}()
	} else {
		close(watchDone)
	}

	srv := &http.Server{
		Addr:         cfg.Server.GetAddr(),
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			stop()
			<-watchDone
			_ = services.Close(context.Background())
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
	}
	log.Info("shutting down server")

	// 优雅关闭：先停 HTTP，再等入库队列
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", "error", err)
	}
	<-watchDone
	if err := services.Close(shutdownCtx); err != nil {
		log.Error("failed to close services", "error", err)
	}

	log.Info("server exited")
	return nil
}
