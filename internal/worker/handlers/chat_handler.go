package handlers

import (
	"context"
	"encoding/json"

	"aistudio/internal/agent"
	"aistudio/internal/agent/runtime"
	"aistudio/internal/logger"
	"aistudio/internal/worker/tasks"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// TurnRunner 对话执行抽象，由 *agent.Service 实现，便于注入 mock
type TurnRunner interface {
	RunTurn(ctx context.Context, req agent.TurnRequest) runtime.ResponseEnvelope
}

type ChatHandler struct {
	runner TurnRunner
	logger *zap.Logger
}

func NewChatHandler(runner TurnRunner, logger *zap.Logger) *ChatHandler {
	return &ChatHandler{
		runner: runner,
		logger: logger,
	}
}

// HandleRunTurn 执行异步对话。对话失败已体现在响应中，任务本身不重试，避免重复扣费
func (h *ChatHandler) HandleRunTurn(ctx context.Context, t *asynq.Task) error {
	p, err := tasks.ParseRunTurnPayload(t)
	if err != nil {
		return err
	}
	if p.TraceID != "" {
		ctx = logger.WithTraceID(ctx, p.TraceID)
	}
	log := logger.FromContext(ctx, h.logger).With(
		zap.String("user_id", p.UserID),
		zap.String("conversation_id", p.ConversationID),
	)
	log.Info("开始执行异步对话")

	env := h.runner.RunTurn(ctx, agent.TurnRequest{
		UserID:         p.UserID,
		ConversationID: p.ConversationID,
		Message:        p.Message,
		FileRef:        p.FileRef,
	})

	// 结果在保留期内可通过任务查询接口读取
	if w := t.ResultWriter(); w != nil {
		body, err := json.Marshal(env)
		if err == nil {
			_, err = w.Write(body)
		}
		if err != nil {
			log.Warn("写入任务结果失败", zap.Error(err))
		}
	}

	log.Info("异步对话完成", zap.Int64("credits_used", env.Usage.CreditsUsed))
	return nil
}
