package runtime

import (
	"fmt"
	"strings"
	"time"

	"aistudio/internal/agent/parser"
	"aistudio/internal/tools"
)

// EnvelopeUsage 响应中的用量汇总
type EnvelopeUsage struct {
	PromptTokens     int   `json:"promptTokens"`
	CompletionTokens int   `json:"completionTokens"`
	TotalTokens      int   `json:"totalTokens"`
	ToolCalls        int   `json:"toolCalls"`
	CreditsUsed      int64 `json:"creditsUsed"`
}

// UsageFromTurn 由轮次用量生成响应用量
func UsageFromTurn(u TurnUsage) EnvelopeUsage {
	return EnvelopeUsage{
		PromptTokens:     u.PromptTokens,
		CompletionTokens: u.CompletionTokens,
		TotalTokens:      u.TotalTokens(),
		ToolCalls:        u.ToolCalls,
		CreditsUsed:      u.CreditsUsed,
	}
}

// ResponseEnvelope 返回给调用方的统一响应，缺失字段序列化为 null
type ResponseEnvelope struct {
	Message   string        `json:"message"`
	ImageURL  *string       `json:"imageUrl"`
	VideoURL  *string       `json:"videoUrl"`
	AudioURL  *string       `json:"audioUrl"`
	ModelURL  *string       `json:"modelUrl"`
	Code      *string       `json:"code"`
	Timestamp time.Time     `json:"timestamp"`
	Usage     EnvelopeUsage `json:"usage"`
}

// 各字段接受的键名，模型偶尔会输出下划线风格
var envelopeKeys = map[string][]string{
	"imageUrl": {"imageUrl", "image_url"},
	"videoUrl": {"videoUrl", "video_url"},
	"audioUrl": {"audioUrl", "audio_url"},
	"modelUrl": {"modelUrl", "model_url"},
	"code":     {"code"},
}

// Normalize 解析模型最终输出。
// 非 JSON 输出整体作为 message；JSON 对象缺少 message 时同样保留原文。
func Normalize(content string, usage EnvelopeUsage, now time.Time) ResponseEnvelope {
	env := ResponseEnvelope{Timestamp: now, Usage: usage}

	obj, err := parser.ParseObject(content)
	if err != nil {
		env.Message = strings.TrimSpace(content)
		return env
	}

	if msg, ok := obj["message"].(string); ok {
		env.Message = msg
	} else {
		env.Message = strings.TrimSpace(content)
	}
	env.ImageURL = stringField(obj, envelopeKeys["imageUrl"])
	env.VideoURL = stringField(obj, envelopeKeys["videoUrl"])
	env.AudioURL = stringField(obj, envelopeKeys["audioUrl"])
	env.ModelURL = stringField(obj, envelopeKeys["modelUrl"])
	env.Code = stringField(obj, envelopeKeys["code"])
	return env
}

// ErrorEnvelope 失败时的响应，媒体字段全部为 null
func ErrorEnvelope(message string, usage EnvelopeUsage, now time.Time) ResponseEnvelope {
	return ResponseEnvelope{Message: message, Timestamp: now, Usage: usage}
}

// FailureMessage 轮次失败对应的用户可读说明
func FailureMessage(kind FailureKind) string {
	switch kind {
	case FailureModelCall:
		return "Sorry, the AI model is temporarily unavailable. Please try again in a moment."
	case FailureMaxRounds:
		return "Sorry, I could not finish this request within the allowed number of steps. Please simplify the request and try again."
	case FailureTurnTimeout:
		return "Sorry, this request took too long and was stopped. Please try again."
	case FailureCancelled:
		return "The request was cancelled before it finished."
	case FailureInvalidRequest:
		return "Sorry, the request could not be processed."
	}
	return "Sorry, something went wrong while processing your request."
}

// InsufficientCreditsMessage 余额不足说明
func InsufficientCreditsMessage(r ToolResult) string {
	return fmt.Sprintf("You do not have enough credits to use %s: it costs %d credits and your balance is %d. Please top up and try again.",
		r.ToolName, r.Required, r.Available)
}

// BuildEnvelope 由结束状态组装响应
func BuildEnvelope(state TurnState, now time.Time) ResponseEnvelope {
	usage := UsageFromTurn(state.Usage)

	var env ResponseEnvelope
	if state.Failure != FailureNone {
		env = ErrorEnvelope(FailureMessage(state.Failure), usage, now)
	} else {
		env = Normalize(state.Final, usage, now)
		fillFromResults(&env, state.Results())
	}

	if r, ok := state.InsufficientCredits(); ok && !mentionsCredits(env.Message) {
		env.Message = joinSentences(env.Message, InsufficientCreditsMessage(r))
	}
	if env.Message == "" {
		env.Message = FailureMessage(FailureNone)
	}
	return env
}

// fillFromResults 模型遗漏媒体地址时，用本轮最后一次成功结果补全
func fillFromResults(env *ResponseEnvelope, results []ToolResult) {
	for i := len(results) - 1; i >= 0; i-- {
		r := results[i]
		if !r.Success {
			continue
		}
		if r.Code != "" && env.Code == nil {
			code := r.Code
			env.Code = &code
		}
		if r.URL == "" {
			continue
		}
		target := mediaTarget(env, tools.ToolKind(r.ToolName))
		if target != nil && *target == nil {
			url := r.URL
			*target = &url
		}
	}
}

func mediaTarget(env *ResponseEnvelope, kind tools.ToolKind) **string {
	switch kind {
	case tools.KindImageGeneration, tools.KindImageToImage, tools.KindImageEnhancement, tools.KindProductPhotography:
		return &env.ImageURL
	case tools.KindVideoGeneration, tools.KindImageToVideo:
		return &env.VideoURL
	case tools.KindMusicGeneration, tools.KindVoiceCloning:
		return &env.AudioURL
	case tools.KindImageTo3D:
		return &env.ModelURL
	}
	return nil
}

func stringField(obj map[string]any, keys []string) *string {
	for _, key := range keys {
		if s, ok := obj[key].(string); ok && s != "" {
			return &s
		}
	}
	return nil
}

func mentionsCredits(msg string) bool {
	lower := strings.ToLower(msg)
	return strings.Contains(lower, "credit") || strings.Contains(msg, "积分")
}

func joinSentences(a, b string) string {
	a = strings.TrimSpace(a)
	if a == "" {
		return b
	}
	return a + "\n\n" + b
}
