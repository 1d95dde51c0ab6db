package openai

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"aistudio/pkg/aiinterface"

	openai "github.com/sashabaranov/go-openai"
)

// Client OpenAI 客户端适配器，支持 Function Calling 与 JSON 模式
type Client struct {
	client     *openai.Client
	modelID    string
	maxRetries int
	backoff    time.Duration
}

// NewClient 创建 OpenAI 客户端
func NewClient(config *aiinterface.ClientConfig) (*Client, error) {
	if config.APIKey == "" {
		return nil, &aiinterface.ClientError{
			Type:    aiinterface.ErrorTypeAuth,
			Message: "OpenAI API Key 不能为空",
		}
	}

	clientConfig := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		clientConfig.BaseURL = config.BaseURL
	}
	if config.OrgID != "" {
		clientConfig.OrgID = config.OrgID
	}
	if config.Timeout > 0 {
		clientConfig.HTTPClient = &http.Client{Timeout: time.Duration(config.Timeout) * time.Second}
	}

	maxRetries := config.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	model := config.Model
	if model == "" {
		model = openai.GPT4oMini
	}

	return &Client{
		client:     openai.NewClientWithConfig(clientConfig),
		modelID:    model,
		maxRetries: maxRetries,
		backoff:    time.Second,
	}, nil
}

// Raw 返回底层 go-openai 客户端，供视觉与转写适配器复用连接配置
func (c *Client) Raw() *openai.Client {
	return c.client
}

// ChatCompletion 对话补全（非流式）
func (c *Client) ChatCompletion(ctx context.Context, req *aiinterface.ChatCompletionRequest) (*aiinterface.ChatCompletionResponse, error) {
	openaiReq := c.buildRequest(req)

	var (
		resp openai.ChatCompletionResponse
		err  error
	)
	for i := 0; i <= c.maxRetries; i++ {
		resp, err = c.client.CreateChatCompletion(ctx, openaiReq)
		if err == nil {
			break
		}
		if !isRetryableError(err) || i == c.maxRetries {
			break
		}

		// 指数退避
		select {
		case <-ctx.Done():
			return nil, wrapError(ctx.Err())
		case <-time.After(c.backoff << uint(i)):
		}
	}
	if err != nil {
		return nil, wrapError(err)
	}

	if len(resp.Choices) == 0 {
		return nil, &aiinterface.ClientError{
			Type:    aiinterface.ErrorTypeServerError,
			Message: "API 返回空响应",
		}
	}

	msg := resp.Choices[0].Message
	return &aiinterface.ChatCompletionResponse{
		ID:        resp.ID,
		Model:     resp.Model,
		Content:   msg.Content,
		ToolCalls: fromOpenAIToolCalls(msg.ToolCalls),
		Usage: aiinterface.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}, nil
}

func (c *Client) buildRequest(req *aiinterface.ChatCompletionRequest) openai.ChatCompletionRequest {
	messages := make([]openai.ChatCompletionMessage, len(req.Messages))
	for i, msg := range req.Messages {
		messages[i] = openai.ChatCompletionMessage{
			Role:       msg.Role,
			Content:    msg.Content,
			Name:       msg.Name,
			ToolCallID: msg.ToolCallID,
			ToolCalls:  toOpenAIToolCalls(msg.ToolCalls),
		}
	}

	out := openai.ChatCompletionRequest{
		Model:       c.modelID,
		Messages:    messages,
		Temperature: float32(req.Temperature),
		MaxTokens:   req.MaxTokens,
		TopP:        float32(req.TopP),
	}

	if len(req.Tools) > 0 {
		out.Tools = make([]openai.Tool, len(req.Tools))
		for i, tool := range req.Tools {
			out.Tools[i] = openai.Tool{
				Type: openai.ToolTypeFunction,
				Function: &openai.FunctionDefinition{
					Name:        tool.Function.Name,
					Description: tool.Function.Description,
					Parameters:  tool.Function.Parameters,
				},
			}
		}
		if req.ToolChoice != "" {
			out.ToolChoice = req.ToolChoice
		}
	}
	if req.JSONMode {
		out.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}
	return out
}

func toOpenAIToolCalls(calls []aiinterface.ToolCall) []openai.ToolCall {
	if len(calls) == 0 {
		return nil
	}
	out := make([]openai.ToolCall, len(calls))
	for i, call := range calls {
		out[i] = openai.ToolCall{
			ID:   call.ID,
			Type: openai.ToolTypeFunction,
			Function: openai.FunctionCall{
				Name:      call.Function.Name,
				Arguments: call.Function.Arguments,
			},
		}
	}
	return out
}

func fromOpenAIToolCalls(calls []openai.ToolCall) []aiinterface.ToolCall {
	if len(calls) == 0 {
		return nil
	}
	out := make([]aiinterface.ToolCall, len(calls))
	for i, call := range calls {
		out[i] = aiinterface.ToolCall{
			ID:   call.ID,
			Type: string(call.Type),
			Function: aiinterface.FunctionCall{
				Name:      call.Function.Name,
				Arguments: call.Function.Arguments,
			},
		}
	}
	return out
}

// Name 返回客户端名称
func (c *Client) Name() string {
	return "openai"
}

// isRetryableError 判断错误是否可重试
func isRetryableError(err error) bool {
	return (&aiinterface.ClientError{Type: classify(err)}).IsRetryable()
}

func classify(err error) aiinterface.ErrorType {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return typeForStatus(apiErr.HTTPStatusCode)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return typeForStatus(reqErr.HTTPStatusCode)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return aiinterface.ErrorTypeNetwork
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return aiinterface.ErrorTypeNetwork
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "rate limit"):
		return aiinterface.ErrorTypeRateLimit
	case strings.Contains(msg, "timeout"), strings.Contains(msg, "connection"):
		return aiinterface.ErrorTypeNetwork
	}
	return aiinterface.ErrorTypeUnknown
}

func typeForStatus(status int) aiinterface.ErrorType {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return aiinterface.ErrorTypeAuth
	case status == http.StatusTooManyRequests:
		return aiinterface.ErrorTypeRateLimit
	case status >= 500:
		return aiinterface.ErrorTypeServerError
	case status >= 400:
		return aiinterface.ErrorTypeInvalidParams
	}
	return aiinterface.ErrorTypeUnknown
}

// wrapError 包装错误
func wrapError(err error) *aiinterface.ClientError {
	return &aiinterface.ClientError{
		Type:    classify(err),
		Message: "OpenAI API 错误",
		Err:     err,
	}
}
