// Package main 是应用程序的入口点。
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chat-insights-go/internal/config"
	"chat-insights-go/internal/handler"
	"chat-insights-go/internal/middleware"
	"chat-insights-go/internal/repository"
	"chat-insights-go/internal/service"
	"chat-insights-go/pkg/database"
	"chat-insights-go/pkg/embedding"
	"chat-insights-go/pkg/kafka"
	"chat-insights-go/pkg/llm"
	"chat-insights-go/pkg/log"
	"chat-insights-go/pkg/storage"
	"chat-insights-go/pkg/token"

	"github.com/gin-gonic/gin"
)

func main() {
	configPath := flag.String("config", "./configs/config.yaml", "配置文件路径")
	flag.Parse()

	// 1. 初始化配置
	config.Init(*configPath)
	cfg := config.Conf

	// 2. 初始化日志记录器
	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	defer log.Sync()
	log.Info("日志记录器初始化成功")

	// 3. 初始化对象存储、Redis 和 Kafka 生产者
	minioClient := storage.InitMinIO(cfg.MinIO)
	rdb := database.InitRedis(cfg.Redis)
	publisher := kafka.NewPublisher(cfg.Kafka)

	// 4. 初始化 Repository 与 Service
	logRepo := repository.NewLogRepository(minioClient, cfg.MinIO.BucketName)
	jwtManager := token.NewJWTManager(cfg.JWT.Secret, cfg.JWT.AccessTokenExpireHours)
	embeddingClient := embedding.NewClient(cfg.Embedding)
	judge := service.NewLLMJudge(llm.NewClient(cfg.LLM))

	logService := service.NewLogService(logRepo, publisher, cfg.Insights)
	insightService := service.NewInsightService(logService, embeddingClient, judge, cfg.Insights)
	reportService := service.NewReportService(logService)

	// 5. 启动后台 Kafka 消费者，负责把日志写入 MinIO
	consumerCtx, stopConsumer := context.WithCancel(context.Background())
	consumerDone := make(chan struct{})
	go func() {
		defer close(consumerDone)
		kafka.StartConsumer(consumerCtx, cfg.Kafka, rdb, logService)
	}()

	// 6. 设置 Gin 模式并创建路由引擎
	gin.SetMode(cfg.Server.Mode)
	r := gin.New()
	r.Use(middleware.RequestLogger(), gin.Recovery())
	r.GET("/healthz", handler.Health)

	apiV1 := r.Group("/api/v1")
	{
		apiV1.POST("/auth/login", handler.NewAuthHandler(cfg.Admin, jwtManager).Login)

		// 日志上报是公开的，由前端直接调用
		apiV1.POST("/logs", handler.NewLogHandler(logService).Ingest)

		// 分析与日报接口仅限管理员
		insights := apiV1.Group("/insights")
		insights.Use(middleware.AuthMiddleware(jwtManager), middleware.AdminAuthMiddleware())
		{
			insightHandler := handler.NewInsightHandler(insightService)
			insights.POST("/clusters", insightHandler.Clusters)
			insights.GET("/pairs", insightHandler.Pairs)
		}

		reports := apiV1.Group("/reports")
		reports.Use(middleware.AuthMiddleware(jwtManager), middleware.AdminAuthMiddleware())
		{
			reports.GET("/daily", handler.NewReportHandler(reportService).Daily)
		}
	}

	// 启动 HTTP 服务器并实现优雅停机
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: r,
	}

	go func() {
		log.Infof("服务启动于 %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP 服务监听失败: %s\n", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("接收到停机信号，正在关闭服务...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Errorf("HTTP 服务器关闭失败: %v", err)
	}

	// 先停止接收新日志，再等消费者处理完当前消息
	if err := publisher.Close(); err != nil {
		log.Errorf("关闭 Kafka 生产者失败: %v", err)
	}
	stopConsumer()
	select {
	case <-consumerDone:
	case <-ctx.Done():
		log.Warnf("等待 Kafka 消费者退出超时")
	}
	if err := rdb.Close(); err != nil {
		log.Errorf("关闭 Redis 连接失败: %v", err)
	}
	log.Info("服务已优雅关闭")
}
