package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"aistudio/api"
	docs "aistudio/api/docs"
	"aistudio/internal/config"
	"aistudio/internal/conversation"
	"aistudio/internal/credits"
	"aistudio/internal/infra"
	"aistudio/internal/logger"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// @title AI Studio API
// @version 1.0
// @description 多模态 AI 助手：对话轮次、工具调用与积分计费
// @BasePath /
// @schemes http https
// @securityDefinitions.apikey UserID
// @in header
// @name X-User-ID
func main() {
	// 0. 统一加载 .env，便于集中管理 APP_* 环境变量
	loadEnvFile()

	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "dev"
	}

	// 1. 加载配置
	cfg, err := config.Load(env, os.Getenv("APP_CONFIG"))
	if err != nil {
		fmt.Printf("加载配置失败: %v\n", err)
		os.Exit(1)
	}
	docs.SwaggerInfo.Host = fmt.Sprintf("localhost:%d", cfg.Server.Port)

	// 2. 初始化日志
	if err := logger.Init(logger.Options{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		OutputPath: cfg.Log.OutputPath,
	}); err != nil {
		fmt.Printf("初始化日志失败: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("应用启动中...",
		zap.String("env", env),
		zap.String("mode", cfg.Server.Mode),
	)

	// 3. 初始化数据库
	db, err := infra.InitDatabase(&cfg.Database, logger.Get())
	if err != nil {
		logger.Fatal("初始化数据库失败", zap.Error(err))
	}

	// 4. 数据库迁移（根据配置）
	if cfg.Database.AutoMigrate {
		if err := runMigrations(db); err != nil {
			logger.Fatal("数据库迁移失败", zap.Error(err))
		}
	} else {
		logger.Info("跳过自动迁移（配置已禁用）")
	}

	// 5. 组装依赖与路由
	gin.SetMode(cfg.Server.Mode)
	router, container, err := api.SetupRouter(context.Background(), db, cfg)
	if err != nil {
		logger.Fatal("初始化应用失败", zap.Error(err))
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Info("HTTP 服务器启动", zap.Int("port", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP 服务器启动失败", zap.Error(err))
		}
	}()

	// 启用队列时同进程运行 Worker
	if container.Worker != nil {
		if err := container.Worker.Start(); err != nil {
			logger.Fatal("Worker 服务器启动失败", zap.Error(err))
		}
	}

	gracefulShutdown(server, container, db)
}

// loadEnvFile 依次尝试加载当前目录及上级目录的 .env 文件
func loadEnvFile() {
	path := resolveEnvPath()
	if path == "" {
		fmt.Println("未找到 .env 文件，将仅使用系统环境变量和 config/* 配置")
		return
	}
	if err := godotenv.Load(path); err != nil {
		fmt.Printf("加载环境变量文件 %s 失败: %v\n", path, err)
		return
	}
	fmt.Printf("已加载环境变量文件: %s\n", path)
}

// resolveEnvPath 从工作目录与可执行文件目录向上查找 .env
func resolveEnvPath() string {
	for _, path := range collectEnvCandidates() {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

func collectEnvCandidates() []string {
	seen := make(map[string]struct{})
	var candidates []string

	traverse := func(start string) {
		dir := filepath.Clean(start)
		for i := 0; i < 8; i++ {
			if dir == "" || dir == string(filepath.Separator) || dir == "." {
				break
			}
			path := filepath.Join(dir, ".env")
			if _, ok := seen[path]; !ok {
				seen[path] = struct{}{}
				candidates = append(candidates, path)
			}
			parent := filepath.Dir(dir)
			if parent == dir {
				break
			}
			dir = parent
		}
	}

	if wd, err := os.Getwd(); err == nil {
		traverse(wd)
	}
	if exe, err := os.Executable(); err == nil {
		traverse(filepath.Dir(exe))
	}
	return candidates
}

// runMigrations 迁移积分与会话表
func runMigrations(db *gorm.DB) error {
	models := append(credits.Models(), conversation.Models()...)
	if err := infra.AutoMigrate(db, logger.Get(), models...); err != nil {
		return fmt.Errorf("迁移数据表失败: %w", err)
	}
	return nil
}

// gracefulShutdown 等待退出信号后依次关闭 HTTP、Worker 与连接
func gracefulShutdown(server *http.Server, container *api.AppContainer, db *gorm.DB) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("正在关闭服务器...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("服务器关闭异常", zap.Error(err))
	}
	if container.Worker != nil {
		container.Worker.Shutdown()
	}
	container.Close()

	if err := infra.CloseDatabase(db); err != nil {
		logger.Error("数据库关闭异常", zap.Error(err))
	}
	logger.Info("服务器已安全关闭")
}
