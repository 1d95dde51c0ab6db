package builtin

import (
	"errors"
	"fmt"

	"aistudio/internal/provider"
	"aistudio/internal/tools"
	"aistudio/pkg/aiinterface"

	"go.uber.org/zap"
)

// Deps 内置工具依赖，未配置的提供方保持 nil，对应工具返回 provider not configured
type Deps struct {
	Model  aiinterface.ModelClient
	Images provider.ImageGenerator
	Videos provider.VideoGenerator
	Audio  provider.AudioGenerator
	Meshes provider.MeshGenerator
	Vision provider.VisionAnalyzer
	Speech provider.Transcriber
	Logger *zap.Logger
}

// Definitions 返回全部内置工具定义
func Definitions(deps Deps) []tools.ToolDefinition {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	defs := make([]tools.ToolDefinition, 0, 14)
	defs = append(defs, textTools(deps)...)
	defs = append(defs, imageTools(deps)...)
	defs = append(defs, videoTools(deps)...)
	defs = append(defs, audioTools(deps)...)
	defs = append(defs, visionTools(deps)...)
	return defs
}

// RegisterAll 注册所有内置工具
func RegisterAll(registry *tools.ToolRegistry, deps Deps) error {
	for _, def := range Definitions(deps) {
		if err := registry.Register(def); err != nil {
			return fmt.Errorf("注册内置工具 %s 失败: %w", def.Name, err)
		}
	}
	return nil
}

// Unconfigured 返回缺少提供方的工具名称。这些工具只会返回失败，调用方可将其设为免计费
func Unconfigured(deps Deps) []string {
	var names []string
	add := func(missing bool, kinds ...tools.ToolKind) {
		if !missing {
			return
		}
		for _, k := range kinds {
			names = append(names, string(k))
		}
	}
	add(deps.Model == nil, tools.KindTextCompletion, tools.KindPromptEnhancement, tools.KindCodeGeneration)
	add(deps.Images == nil, tools.KindImageGeneration, tools.KindImageToImage, tools.KindImageEnhancement, tools.KindProductPhotography)
	add(deps.Videos == nil, tools.KindVideoGeneration, tools.KindImageToVideo)
	add(deps.Audio == nil, tools.KindMusicGeneration, tools.KindVoiceCloning)
	add(deps.Meshes == nil, tools.KindImageTo3D)
	add(deps.Vision == nil, tools.KindImageToText)
	add(deps.Speech == nil, tools.KindSpeechToText)
	return names
}

var errNoModel = fmt.Errorf("%w: model client", provider.ErrNotConfigured)

func notConfigured() tools.Outcome {
	return tools.Failed("%s", provider.ErrNotConfigured.Error())
}

// providerFailure 提供方错误转为工具级失败，保留提供方消息
func providerFailure(err error) tools.Outcome {
	if errors.Is(err, provider.ErrNotConfigured) {
		return notConfigured()
	}
	return tools.Failed("%v", err)
}

func mediaOutcome(res *provider.MediaResult, kind string) tools.Outcome {
	quantities := map[string]any{}
	for k, v := range res.Quantities {
		quantities[k] = v
	}
	if res.Model != "" {
		quantities["model"] = res.Model
	}
	return tools.Outcome{
		Output:     map[string]any{"type": kind, "url": res.URL},
		URL:        res.URL,
		Quantities: quantities,
	}
}
