package provider

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/replicate/replicate-go"
	"go.uber.org/zap"
)

// Replicate 任务类型
const (
	TaskImage        = "image"
	TaskImageEdit    = "image_edit"
	TaskImageEnhance = "image_enhance"
	TaskProduct      = "product"
	TaskVideo        = "video"
	TaskImageToVideo = "image_to_video"
	TaskMusic        = "music"
	TaskVoice        = "voice"
	TaskMesh         = "mesh"
)

// DefaultReplicateModels 默认模型映射，可通过配置覆盖
var DefaultReplicateModels = map[string]string{
	TaskImage:        "black-forest-labs/flux-schnell",
	TaskImageEdit:    "black-forest-labs/flux-kontext-pro",
	TaskImageEnhance: "nightmareai/real-esrgan",
	TaskProduct:      "black-forest-labs/flux-kontext-pro",
	TaskVideo:        "minimax/video-01",
	TaskImageToVideo: "minimax/video-01",
	TaskMusic:        "meta/musicgen",
	TaskVoice:        "lucataco/xtts-v2",
	TaskMesh:         "firtoz/trellis",
}

// RunFunc 执行一次预测并等待结果
type RunFunc func(ctx context.Context, model string, input map[string]any) (any, error)

// ReplicateProvider 基于 Replicate 的图片、视频、音频、3D 生成
type ReplicateProvider struct {
	run    RunFunc
	models map[string]string
	logger *zap.Logger
}

// NewReplicateProvider 使用 API Token 创建提供方
func NewReplicateProvider(token string, models map[string]string, logger *zap.Logger) (*ReplicateProvider, error) {
	if token == "" {
		return nil, ErrNotConfigured
	}
	client, err := replicate.NewClient(replicate.WithToken(token))
	if err != nil {
		return nil, fmt.Errorf("创建 Replicate 客户端失败: %w", err)
	}
	run := func(ctx context.Context, model string, input map[string]any) (any, error) {
		return client.Run(ctx, model, replicate.PredictionInput(input), nil)
	}
	return NewReplicateProviderWithRunner(run, models, logger), nil
}

// NewReplicateProviderWithRunner 使用自定义执行函数创建提供方
func NewReplicateProviderWithRunner(run RunFunc, models map[string]string, logger *zap.Logger) *ReplicateProvider {
	merged := make(map[string]string, len(DefaultReplicateModels))
	for task, model := range DefaultReplicateModels {
		merged[task] = model
	}
	for task, model := range models {
		if model != "" {
			merged[task] = model
		}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReplicateProvider{run: run, models: merged, logger: logger}
}

// GenerateImage 图片生成、编辑、增强、商品图
func (p *ReplicateProvider) GenerateImage(ctx context.Context, req ImageRequest) (*MediaResult, error) {
	input := map[string]any{}
	task := TaskImage

	switch req.Mode {
	case ImageEdit:
		task = TaskImageEdit
		input["prompt"] = req.Prompt
		input["input_image"] = req.ImageURL
	case ImageEnhance:
		task = TaskImageEnhance
		input["image"] = req.ImageURL
		scale := req.Scale
		if scale <= 0 {
			scale = 2
		}
		input["scale"] = scale
	case ImageProduct:
		task = TaskProduct
		prompt := req.Prompt
		if req.Background != "" {
			prompt = strings.TrimSpace(prompt + ", background: " + req.Background)
		}
		input["prompt"] = "professional product photography, " + prompt
		input["input_image"] = req.ImageURL
	default:
		input["prompt"] = req.Prompt
		if req.NegativePrompt != "" {
			input["negative_prompt"] = req.NegativePrompt
		}
	}
	if req.AspectRatio != "" && req.Mode != ImageEnhance {
		input["aspect_ratio"] = req.AspectRatio
	}

	return p.predict(ctx, task, input, nil)
}

// GenerateVideo 文生视频与图生视频
func (p *ReplicateProvider) GenerateVideo(ctx context.Context, req VideoRequest) (*MediaResult, error) {
	task := TaskVideo
	input := map[string]any{"prompt": req.Prompt}
	if req.ImageURL != "" {
		task = TaskImageToVideo
		input["first_frame_image"] = req.ImageURL
	}
	if req.Duration > 0 {
		input["duration"] = int(math.Ceil(req.Duration))
	}
	if req.Frames > 0 {
		input["num_frames"] = req.Frames
	}
	if req.FPS > 0 {
		input["fps"] = req.FPS
	}

	quantities := map[string]any{}
	if req.Duration > 0 {
		quantities["duration_seconds"] = req.Duration
	}
	return p.predict(ctx, task, input, quantities)
}

// GenerateMusic 音乐生成
func (p *ReplicateProvider) GenerateMusic(ctx context.Context, req MusicRequest) (*MediaResult, error) {
	input := map[string]any{"prompt": req.Prompt, "output_format": "mp3"}
	quantities := map[string]any{}
	if req.Duration > 0 {
		input["duration"] = int(math.Ceil(req.Duration))
		quantities["duration_seconds"] = req.Duration
	}
	return p.predict(ctx, TaskMusic, input, quantities)
}

// CloneVoice 声音克隆
func (p *ReplicateProvider) CloneVoice(ctx context.Context, req VoiceRequest) (*MediaResult, error) {
	language := req.Language
	if language == "" {
		language = "en"
	}
	input := map[string]any{
		"text":     req.Text,
		"speaker":  req.SpeakerURL,
		"language": language,
	}
	return p.predict(ctx, TaskVoice, input, map[string]any{"characters": len([]rune(req.Text))})
}

// GenerateMesh 图片转 3D 模型
func (p *ReplicateProvider) GenerateMesh(ctx context.Context, req MeshRequest) (*MediaResult, error) {
	input := map[string]any{"images": []string{req.ImageURL}, "generate_model": true}
	return p.predict(ctx, TaskMesh, input, nil)
}

func (p *ReplicateProvider) predict(ctx context.Context, task string, input, quantities map[string]any) (*MediaResult, error) {
	model, ok := p.models[task]
	if !ok || model == "" {
		return nil, fmt.Errorf("%w: 任务 %s 没有配置模型", ErrNotConfigured, task)
	}

	output, err := p.run(ctx, model, input)
	if err != nil {
		p.logger.Warn("Replicate 预测失败", zap.String("task", task), zap.String("model", model), zap.Error(err))
		return nil, fmt.Errorf("replicate %s: %w", task, err)
	}

	url := firstURL(output)
	if url == "" {
		return nil, fmt.Errorf("replicate %s: 输出中没有文件地址", task)
	}
	return &MediaResult{URL: url, Model: model, Quantities: quantities}, nil
}

// firstURL 从预测输出中取第一个文件地址，兼容字符串、数组与对象输出
func firstURL(output any) string {
	switch v := output.(type) {
	case string:
		if strings.HasPrefix(v, "http://") || strings.HasPrefix(v, "https://") || strings.HasPrefix(v, "data:") {
			return v
		}
	case []any:
		for _, item := range v {
			if url := firstURL(item); url != "" {
				return url
			}
		}
	case []string:
		for _, item := range v {
			if url := firstURL(item); url != "" {
				return url
			}
		}
	case map[string]any:
		for _, key := range []string{"url", "output", "model_file", "glb", "video", "audio", "image"} {
			if url := firstURL(v[key]); url != "" {
				return url
			}
		}
	}
	return ""
}
