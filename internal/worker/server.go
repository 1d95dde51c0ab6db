package worker

import (
	"context"

	"aistudio/internal/config"
	"aistudio/internal/infra/queue"
	"aistudio/internal/worker/handlers"
	"aistudio/internal/worker/tasks"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// Server 异步对话 Worker
type Server struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	logger *zap.Logger
}

// NewServer 创建 Worker 并注册任务处理器，连接在 Start 时建立
func NewServer(
	redisCfg config.RedisConfig,
	queueCfg config.QueueConfig,
	runner handlers.TurnRunner,
	logger *zap.Logger,
) *Server {
	concurrency := queueCfg.Concurrency
	if concurrency <= 0 {
		concurrency = 10
	}
	srv := asynq.NewServer(
		queue.RedisOpt(redisCfg),
		asynq.Config{
			Concurrency: concurrency, // 并发 worker 数
			Queues: map[string]int{
				tasks.QueueChat: 6,
				"default":       1,
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				logger.Error("任务执行失败",
					zap.String("type", task.Type()),
					zap.Error(err),
				)
			}),
		},
	)

	mux := asynq.NewServeMux()

	// 注册对话处理器
	chatHandler := handlers.NewChatHandler(runner, logger)
	mux.HandleFunc(tasks.TypeRunTurn, chatHandler.HandleRunTurn)

	return &Server{
		server: srv,
		mux:    mux,
		logger: logger,
	}
}

// Start 非阻塞启动
func (s *Server) Start() error {
	s.logger.Info("Worker 服务器启动中 (后台)...")
	return s.server.Start(s.mux)
}

// Shutdown 停止 Worker 服务器
func (s *Server) Shutdown() {
	s.logger.Info("Worker 服务器停止中...")
	s.server.Shutdown()
}
