package tasks

import (
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
)

// Task Types
const (
	TypeRunTurn = "chat:run_turn"
)

// 队列名称
const (
	QueueChat = "chat"
)

// RunTurnPayload 异步对话任务载荷
type RunTurnPayload struct {
	UserID         string `json:"user_id"`
	ConversationID string `json:"conversation_id"`
	Message        string `json:"message"`
	FileRef        string `json:"file_ref,omitempty"`
	TraceID        string `json:"trace_id,omitempty"`
}

// Validate 校验必填字段
func (p RunTurnPayload) Validate() error {
	if p.UserID == "" {
		return fmt.Errorf("user_id 不能为空")
	}
	if p.ConversationID == "" {
		return fmt.Errorf("conversation_id 不能为空")
	}
	if p.Message == "" {
		return fmt.Errorf("message 不能为空")
	}
	return nil
}

// NewRunTurnTask 构造异步对话任务
func NewRunTurnTask(p RunTurnPayload, opts ...asynq.Option) (*asynq.Task, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal payload failed: %w", err)
	}
	return asynq.NewTask(TypeRunTurn, data, opts...), nil
}

// ParseRunTurnPayload 解析任务载荷，格式错误的任务不再重试
func ParseRunTurnPayload(t *asynq.Task) (RunTurnPayload, error) {
	var p RunTurnPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return p, fmt.Errorf("json unmarshal failed: %v: %w", err, asynq.SkipRetry)
	}
	if err := p.Validate(); err != nil {
		return p, fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	return p, nil
}
