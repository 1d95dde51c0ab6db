package queue

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"aistudio/internal/config"
	"aistudio/internal/worker/tasks"

	"github.com/hibiken/asynq"
)

// ErrTaskNotFound 任务不存在或已过保留期
var ErrTaskNotFound = errors.New("任务不存在")

// TaskStatus 异步任务状态
type TaskStatus struct {
	ID             string          `json:"id"`
	UserID         string          `json:"-"`
	ConversationID string          `json:"conversationId,omitempty"`
	State          string          `json:"state"` // pending, active, completed, retry, archived
	Result         json.RawMessage `json:"result,omitempty"`
	LastError      string          `json:"lastError,omitempty"`
	CompletedAt    *time.Time      `json:"completedAt,omitempty"`
}

// TaskInspector 查询任务状态
type TaskInspector interface {
	TaskStatus(taskID string) (*TaskStatus, error)
	Close() error
}

type asynqInspector struct {
	inspector *asynq.Inspector
	queue     string
}

// NewInspector 创建任务查询器
func NewInspector(redisCfg config.RedisConfig) TaskInspector {
	return &asynqInspector{
		inspector: asynq.NewInspector(RedisOpt(redisCfg)),
		queue:     tasks.QueueChat,
	}
}

func (i *asynqInspector) TaskStatus(taskID string) (*TaskStatus, error) {
	info, err := i.inspector.GetTaskInfo(i.queue, taskID)
	if err != nil {
		if errors.Is(err, asynq.ErrTaskNotFound) || errors.Is(err, asynq.ErrQueueNotFound) {
			return nil, ErrTaskNotFound
		}
		return nil, fmt.Errorf("查询任务失败: %w", err)
	}
	return StatusFromInfo(info), nil
}

func (i *asynqInspector) Close() error {
	return i.inspector.Close()
}

// StatusFromInfo 转换 asynq 任务信息
func StatusFromInfo(info *asynq.TaskInfo) *TaskStatus {
	st := &TaskStatus{
		ID:        info.ID,
		State:     info.State.String(),
		LastError: info.LastErr,
	}
	if p, err := tasks.ParseRunTurnPayload(asynq.NewTask(info.Type, info.Payload)); err == nil {
		st.UserID = p.UserID
		st.ConversationID = p.ConversationID
	}
	if len(info.Result) > 0 && json.Valid(info.Result) {
		st.Result = json.RawMessage(info.Result)
	}
	if !info.CompletedAt.IsZero() {
		completed := info.CompletedAt
		st.CompletedAt = &completed
	}
	return st
}
