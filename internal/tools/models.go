package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// ToolKind 工具种类，封闭枚举
type ToolKind string

const (
	KindTextCompletion     ToolKind = "text_completion"
	KindPromptEnhancement  ToolKind = "prompt_enhancement"
	KindCodeGeneration     ToolKind = "code_generation"
	KindImageGeneration    ToolKind = "image_generation"
	KindVideoGeneration    ToolKind = "video_generation"
	KindImageToImage       ToolKind = "image_to_image"
	KindImageEnhancement   ToolKind = "image_enhancement"
	KindMusicGeneration    ToolKind = "music_generation"
	KindVoiceCloning       ToolKind = "voice_cloning"
	KindImageTo3D          ToolKind = "image_to_3d"
	KindImageToText        ToolKind = "image_to_text"
	KindSpeechToText       ToolKind = "speech_to_text"
	KindImageToVideo       ToolKind = "image_to_video"
	KindProductPhotography ToolKind = "product_photography"
)

// AllKinds 全部工具种类
func AllKinds() []ToolKind {
	return []ToolKind{
		KindTextCompletion, KindPromptEnhancement, KindCodeGeneration,
		KindImageGeneration, KindVideoGeneration, KindImageToImage,
		KindImageEnhancement, KindMusicGeneration, KindVoiceCloning,
		KindImageTo3D, KindImageToText, KindSpeechToText,
		KindImageToVideo, KindProductPhotography,
	}
}

// Valid 是否为已知工具种类
func (k ToolKind) Valid() bool {
	for _, known := range AllKinds() {
		if k == known {
			return true
		}
	}
	return false
}

// ToolClass 工具类别，决定默认超时
type ToolClass string

const (
	ClassText  ToolClass = "text"
	ClassMedia ToolClass = "media"
)

// ToolDefinition 工具定义，注册后不可修改
type ToolDefinition struct {
	Kind        ToolKind       `json:"kind"`
	Name        string         `json:"name"`
	DisplayName string         `json:"displayName"`
	Description string         `json:"description"`
	Class       ToolClass      `json:"class"`
	Parameters  map[string]any `json:"parameters"`        // JSON Schema
	Timeout     time.Duration  `json:"timeout,omitempty"` // 0 表示使用类别默认值
	Executor    Executor       `json:"-"`
}

// ParamNames 参数字段名
func (d *ToolDefinition) ParamNames() []string {
	props, _ := d.Parameters["properties"].(map[string]any)
	names := make([]string, 0, len(props))
	for name := range props {
		names = append(names, name)
	}
	return names
}

// Args 工具调用参数
type Args struct {
	Raw    json.RawMessage
	Values map[string]any
}

// ParseArgs 解析 JSON 参数，空串视为空对象
func ParseArgs(raw string) (Args, error) {
	if raw == "" {
		raw = "{}"
	}
	values := map[string]any{}
	if err := json.Unmarshal([]byte(raw), &values); err != nil {
		return Args{}, fmt.Errorf("%w: %v", ErrInvalidArguments, err)
	}
	return Args{Raw: json.RawMessage(raw), Values: values}, nil
}

// Bind 将参数解码到结构体
func (a Args) Bind(v any) error {
	raw := a.Raw
	if len(raw) == 0 {
		raw = json.RawMessage("{}")
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArguments, err)
	}
	return nil
}

// Outcome 工具执行结果
type Outcome struct {
	Output     any            `json:"output,omitempty"`     // 文本或结构化输出
	URL        string         `json:"url,omitempty"`        // 媒体地址
	Code       string         `json:"code,omitempty"`       // 代码生成结果
	Failure    string         `json:"failure,omitempty"`    // 预期内的失败原因
	Quantities map[string]any `json:"quantities,omitempty"` // 计量信息，写入用量记录
}

// Failed 构造预期内的失败结果
func Failed(format string, args ...any) Outcome {
	return Outcome{Failure: fmt.Sprintf(format, args...)}
}

// Executor 工具执行器
type Executor interface {
	Execute(ctx context.Context, args Args) (Outcome, error)
}

// ExecutorFunc 函数适配为 Executor
type ExecutorFunc func(ctx context.Context, args Args) (Outcome, error)

// Execute 实现 Executor
func (f ExecutorFunc) Execute(ctx context.Context, args Args) (Outcome, error) {
	return f(ctx, args)
}

// Typed 基于强类型参数构造执行器，参数解码失败返回 ErrInvalidArguments
func Typed[A any](fn func(ctx context.Context, args A) (Outcome, error)) Executor {
	return ExecutorFunc(func(ctx context.Context, args Args) (Outcome, error) {
		var typed A
		if err := args.Bind(&typed); err != nil {
			return Outcome{}, err
		}
		return fn(ctx, typed)
	})
}
