package ai

import (
	"context"
	"time"

	"aistudio/internal/logger"
	"aistudio/internal/metrics"

	"go.uber.org/zap"
)

// LoggingClient 带日志与指标的客户端包装器
type LoggingClient struct {
	client ModelClient
	logger *zap.Logger
}

// NewLoggingClient 创建带日志记录的客户端
func NewLoggingClient(client ModelClient, l *zap.Logger) *LoggingClient {
	return &LoggingClient{client: client, logger: logger.OrNop(l)}
}

// ChatCompletion 对话补全（记录耗时、Token 与错误）
func (c *LoggingClient) ChatCompletion(ctx context.Context, req *ChatCompletionRequest) (*ChatCompletionResponse, error) {
	start := time.Now()
	resp, err := c.client.ChatCompletion(ctx, req)
	latency := time.Since(start)

	provider := c.client.Name()
	metrics.ModelCallDuration.WithLabelValues(provider).Observe(latency.Seconds())
	log := logger.FromContext(ctx, c.logger).With(
		zap.String("provider", provider),
		zap.Int("messages", len(req.Messages)),
		zap.Int("tools", len(req.Tools)),
		zap.Duration("latency", latency),
	)

	if err != nil {
		metrics.ModelCallsTotal.WithLabelValues(provider, "error").Inc()
		log.Warn("模型调用失败", zap.Error(err))
		return nil, err
	}

	metrics.ModelCallsTotal.WithLabelValues(provider, "success").Inc()
	metrics.ModelTokensTotal.WithLabelValues("prompt").Add(float64(resp.Usage.PromptTokens))
	metrics.ModelTokensTotal.WithLabelValues("completion").Add(float64(resp.Usage.CompletionTokens))
	log.Debug("模型调用完成",
		zap.String("model", resp.Model),
		zap.Int("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int("completion_tokens", resp.Usage.CompletionTokens),
		zap.Int("tool_calls", len(resp.ToolCalls)),
	)
	return resp, nil
}

// Name 返回底层客户端名称
func (c *LoggingClient) Name() string {
	return c.client.Name()
}
