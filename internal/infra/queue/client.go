package queue

import (
	"context"
	"fmt"
	"time"

	"aistudio/internal/config"
	"aistudio/internal/worker/tasks"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

// Client 任务队列客户端接口
type Client interface {
	EnqueueRunTurn(ctx context.Context, payload tasks.RunTurnPayload) (string, error)
	Close() error
}

// TaskOptions 任务选项
type TaskOptions struct {
	Queue     string
	MaxRetry  int           // 对话任务会扣费，默认不重试
	Timeout   time.Duration // 超时时间
	Retention time.Duration // 完成后保留时间，期间可查询结果
	TaskID    string
}

// DefaultTaskOptions 默认任务选项
func DefaultTaskOptions(cfg config.QueueConfig) TaskOptions {
	timeout := cfg.TaskTimeout
	if timeout <= 0 {
		timeout = 15 * time.Minute
	}
	return TaskOptions{
		Queue:     tasks.QueueChat,
		MaxRetry:  0,
		Timeout:   timeout,
		Retention: time.Hour,
	}
}

// Build 转换为 asynq 选项
func (o TaskOptions) Build() []asynq.Option {
	opts := []asynq.Option{asynq.MaxRetry(o.MaxRetry)}
	if o.Queue != "" {
		opts = append(opts, asynq.Queue(o.Queue))
	}
	if o.Timeout > 0 {
		opts = append(opts, asynq.Timeout(o.Timeout))
	}
	if o.Retention > 0 {
		opts = append(opts, asynq.Retention(o.Retention))
	}
	if o.TaskID != "" {
		opts = append(opts, asynq.TaskID(o.TaskID))
	}
	return opts
}

type asynqClient struct {
	client *asynq.Client
	opts   TaskOptions
}

// RedisOpt 由配置生成 asynq 连接参数
func RedisOpt(cfg config.RedisConfig) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	}
}

// NewClient 创建任务队列客户端
func NewClient(redisCfg config.RedisConfig, queueCfg config.QueueConfig) Client {
	return &asynqClient{
		client: asynq.NewClient(RedisOpt(redisCfg)),
		opts:   DefaultTaskOptions(queueCfg),
	}
}

// EnqueueRunTurn 入队异步对话任务，返回任务 ID
func (c *asynqClient) EnqueueRunTurn(ctx context.Context, payload tasks.RunTurnPayload) (string, error) {
	opts := c.opts
	opts.TaskID = uuid.New().String()

	task, err := tasks.NewRunTurnTask(payload)
	if err != nil {
		return "", err
	}
	info, err := c.client.EnqueueContext(ctx, task, opts.Build()...)
	if err != nil {
		return "", fmt.Errorf("enqueue task failed: %w", err)
	}
	return info.ID, nil
}

func (c *asynqClient) Close() error {
	return c.client.Close()
}
