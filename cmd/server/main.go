package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/SzJasonHuang/PaperCuts/internal/ai"
	"github.com/SzJasonHuang/PaperCuts/internal/conf"
	"github.com/SzJasonHuang/PaperCuts/internal/data"
	"github.com/SzJasonHuang/PaperCuts/internal/handler"
	"github.com/SzJasonHuang/PaperCuts/internal/middleware"
	"github.com/SzJasonHuang/PaperCuts/internal/pdf"
	"github.com/SzJasonHuang/PaperCuts/internal/report"
	"github.com/SzJasonHuang/PaperCuts/internal/repository"
	"github.com/SzJasonHuang/PaperCuts/internal/service"
	"github.com/SzJasonHuang/PaperCuts/internal/worker"
)

func main() {
	// 1. 加载配置
	cfg := conf.LoadConfig()

	// 2. 初始化数据层 (Postgres, Redis, MinIO)
	d, cleanup, err := data.NewData(cfg)
	if err != nil {
		log.Fatalf("❌ 数据层初始化失败: %v", err)
	}
	defer cleanup()

	// 3. 初始化 Gemini 客户端 (长生命周期共享资源，并发安全)
	gemini, err := ai.NewGeminiClient(context.Background(), cfg.AI.APIKey, cfg.AI.Model)
	if err != nil {
		log.Fatalf("❌ Gemini 客户端初始化失败: %v", err)
	}

	// 4. 初始化服务层
	sessionRepo := repository.NewSessionRepository(d.DB)
	blobStore := data.NewMinioBlobStore(d)
	locker := data.NewRedisSessionLocker(d)
	renderer := pdf.NewFitzRenderer()
	advisor := ai.NewAdvisor(gemini)
	reports := report.NewGenerator(gemini)

	pdfService := service.NewPdfService(sessionRepo, blobStore, renderer, advisor, reports, locker)

	// 5. 启动过期清理任务 (后台单实例)
	sweeper := worker.NewSweeper(pdfService, cfg.Sweep.Interval)
	go sweeper.Start(context.Background())

	// 6. 初始化 Gin Web Server
	r := gin.Default()

	// CORS 跨域 (开发环境允许所有，生产环境建议指定前端域名)
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Content-Length", "Accept-Encoding", "Authorization"},
		ExposeHeaders:    []string{"Content-Length", "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	r.Use(middleware.TraceMiddleware())

	// 7. 注册路由
	pdfHandler := handler.NewPdfHandler(pdfService)
	pdfHandler.RegisterRoutes(r)

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	log.Printf("🚀 PaperCuts 后端已启动，监听端口 :%s", cfg.App.Port)
	if err := r.Run(":" + cfg.App.Port); err != nil {
		log.Fatalf("❌ Server 启动失败: %v", err)
	}
}
