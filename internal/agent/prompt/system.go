package prompt

import (
	"context"

	"aistudio/internal/agent/parser"
	"aistudio/internal/tools"
)

// SystemTemplateID 系统提示词模板 ID
const SystemTemplateID = "assistant.system"

const systemTemplate = `You are a creative AI assistant. You can write text and code, and you can create or transform images, video, music, voices and 3D models by calling the available tools.

Rules:
- Call a tool whenever the user asks for generated media or code. Use the tool's exact parameter names.
- Tools cost credits. If a tool result reports insufficient_credits, tell the user how many credits were required and how many they have, and do not retry that tool.
- If a tool fails, explain the problem briefly and suggest what the user can change.
- Put every URL returned by a tool into the matching field of your answer.
{{- if .Tools}}

Available tools:
{{- range .Tools}}
- {{.Name}}: {{.Description}}
{{- end}}
{{- end}}
{{- if .FileRef}}

The user attached a file: {{.FileRef}}
Pass this URL to tools that take an image_url or audio_url parameter when the request refers to it.
{{- end}}
{{- if .Extra}}

{{.Extra}}
{{- end}}

{{.FormatInstructions}}`

// responseSchema 最终回答的 JSON 结构
var responseSchema = map[string]any{
	"message":  "string, the answer shown to the user",
	"imageUrl": "string or null",
	"videoUrl": "string or null",
	"audioUrl": "string or null",
	"modelUrl": "string or null, URL of a generated 3D model",
	"code":     "string or null, generated source code",
}

// ToolSummary 提示词中的工具说明
type ToolSummary struct {
	Name        string
	Description string
}

// SystemVars 系统提示词变量
type SystemVars struct {
	Tools              []ToolSummary
	FileRef            string
	Extra              string
	FormatInstructions string
}

// SystemBuilder 渲染系统提示词
type SystemBuilder struct {
	engine *Engine
	format string
	extra  string
}

// NewSystemBuilder 创建构造器。extra 为追加到提示词末尾的运营配置
func NewSystemBuilder(extra string) *SystemBuilder {
	loader := NewInMemoryLoader(&Template{
		ID:      SystemTemplateID,
		Name:    "system",
		Content: systemTemplate,
		Version: "1",
	})
	return &SystemBuilder{
		engine: NewEngine(loader),
		format: parser.NewJSONParser(responseSchema).FormatInstructions(),
		extra:  extra,
	}
}

// Build 生成系统提示词，工具列表按名称排序
func (b *SystemBuilder) Build(ctx context.Context, defs []*tools.ToolDefinition, fileRef string) (string, error) {
	summaries := make([]ToolSummary, 0, len(defs))
	for _, def := range defs {
		summaries = append(summaries, ToolSummary{Name: def.Name, Description: def.Description})
	}
	return b.engine.Render(ctx, SystemTemplateID, SystemVars{
		Tools:              summaries,
		FileRef:            fileRef,
		Extra:              b.extra,
		FormatInstructions: b.format,
	})
}
