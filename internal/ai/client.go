package ai

import (
	"fmt"

	"aistudio/internal/ai/openai"
	"aistudio/pkg/aiinterface"
)

// 重新导出 aiinterface 包的类型，子包只依赖 aiinterface，避免循环引用
type (
	Message                = aiinterface.Message
	ChatCompletionRequest  = aiinterface.ChatCompletionRequest
	ChatCompletionResponse = aiinterface.ChatCompletionResponse
	Usage                  = aiinterface.Usage
	Tool                   = aiinterface.Tool
	FunctionDef            = aiinterface.FunctionDef
	ToolCall               = aiinterface.ToolCall
	ModelClient            = aiinterface.ModelClient
	ClientConfig           = aiinterface.ClientConfig
	ClientError            = aiinterface.ClientError
	ErrorType              = aiinterface.ErrorType
)

// NewClient 按提供商创建模型客户端
func NewClient(cfg *ClientConfig) (ModelClient, error) {
	switch cfg.Provider {
	case "", "openai", "custom":
		// custom 表示兼容 OpenAI 协议的网关，通过 BaseURL 指定
		return openai.NewClient(cfg)
	default:
		return nil, fmt.Errorf("不支持的模型提供商: %s", cfg.Provider)
	}
}
