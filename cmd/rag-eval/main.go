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

	"github.com/ashwinyue/rag-eval/internal/config"
	"github.com/ashwinyue/rag-eval/internal/database"
	"github.com/ashwinyue/rag-eval/internal/handler"
	"github.com/ashwinyue/rag-eval/internal/logger"
	"github.com/ashwinyue/rag-eval/internal/repository"
	"github.com/ashwinyue/rag-eval/internal/router"
	"github.com/ashwinyue/rag-eval/internal/service"
	"github.com/ashwinyue/rag-eval/internal/service/callback"
)

func main() {
	// 加载配置
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./configs/config.yaml"
	}
	if _, err := os.Stat(configPath); err != nil {
		// 没有配置文件时只使用默认值与环境变量
		configPath = ""
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		panic(err)
	}

	log, err := logger.New(cfg.Log.Mode)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	// 设置 Gin 模式
	gin.SetMode(cfg.Server.Mode)

	// eino 全局回调
	callback.SetupGlobalCallbacks(log, cfg.App.Debug)

	// 初始化数据库
	db, err := database.New(cfg)
	if err != nil {
		log.Fatal("Failed to init database", "error", err)
	}
	defer db.Close()

	log.Info("Database connected", "driver", cfg.Database.Driver)

	// 仅 redis 队列需要 Redis
	var redisClient *redis.Client
	if cfg.Evaluation.Queue == "redis" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.GetAddr(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()

		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := redisClient.Ping(pingCtx).Err(); err != nil {
			cancel()
			log.Fatal("Failed to connect redis", "addr", cfg.Redis.GetAddr(), "error", err)
		}
		cancel()
	}

	// 初始化各层
	repos := repository.NewRepositories(db.DB)
	services, err := service.NewServices(repos, cfg, redisClient, log)
	if err != nil {
		log.Fatal("Failed to init services", "error", err)
	}
	handlers := handler.NewHandlers(services, db.DB)

	// 收尾上次进程未结束的任务
	if _, err := services.Evaluation.RecoverInterrupted(context.Background()); err != nil {
		log.Fatal("Failed to recover interrupted runs", "error", err)
	}

	// 启动评估工作池
	workerCtx, stopWorkers := context.WithCancel(context.Background())
	worker := services.NewWorker(log)
	worker.Start(workerCtx)

	// 初始化路由
	r := router.SetupRouter(handlers, cfg, log)

	// 创建 HTTP 服务器
	srv := &http.Server{
		Addr:         cfg.Server.GetAddr(),
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	// 启动服务器
	go func() {
		log.Info("Server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Server error", "error", err)
		}
	}()

	// 等待中断信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	// 优雅关闭
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("Server forced to shutdown", "error", err)
	}

	// 停止取任务，执行中的任务因 ctx 取消记为失败
	stopWorkers()
	_ = services.Queue.Close()
	worker.Wait()

	if _, err := services.Registry.EvictAll(); err != nil {
		log.Warn("Failed to unload models", "error", err)
	}

	log.Info("Server exited")
}
