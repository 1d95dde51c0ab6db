// Package provider 封装第三方生成服务。工具只依赖这里的接口，
// 具体的请求格式由各适配器自行处理。
package provider

import (
	"context"
	"errors"
)

// ErrNotConfigured 提供方未配置
var ErrNotConfigured = errors.New("provider not configured")

// MediaResult 生成结果
type MediaResult struct {
	URL        string         `json:"url"`
	Model      string         `json:"model,omitempty"`
	Quantities map[string]any `json:"quantities,omitempty"`
}

// ImageMode 图片任务类型
type ImageMode string

const (
	ImageGenerate ImageMode = "generate" // 文生图
	ImageEdit     ImageMode = "edit"     // 图生图
	ImageEnhance  ImageMode = "enhance"  // 画质增强
	ImageProduct  ImageMode = "product"  // 商品图
)

// ImageRequest 图片生成请求
type ImageRequest struct {
	Mode           ImageMode
	Prompt         string
	NegativePrompt string
	ImageURL       string // edit/enhance/product 的输入图
	AspectRatio    string
	Scale          int // enhance 放大倍数
	Background     string
}

// VideoRequest 视频生成请求
type VideoRequest struct {
	Prompt   string
	ImageURL string // 首帧图，image_to_video 使用
	Duration float64
	Frames   int
	FPS      int
}

// MusicRequest 音乐生成请求
type MusicRequest struct {
	Prompt   string
	Duration float64
}

// VoiceRequest 声音克隆请求
type VoiceRequest struct {
	Text       string
	SpeakerURL string
	Language   string
}

// MeshRequest 3D 模型生成请求
type MeshRequest struct {
	ImageURL string
	Format   string
}

// VisionRequest 图片理解请求
type VisionRequest struct {
	ImageURL string
	Question string
}

// TranscribeRequest 语音转写请求
type TranscribeRequest struct {
	AudioURL string
	Language string
	Prompt   string
}

// Transcript 转写结果
type Transcript struct {
	Text            string  `json:"text"`
	Language        string  `json:"language,omitempty"`
	DurationSeconds float64 `json:"durationSeconds,omitempty"`
}

// ImageGenerator 图片生成
type ImageGenerator interface {
	GenerateImage(ctx context.Context, req ImageRequest) (*MediaResult, error)
}

// VideoGenerator 视频生成
type VideoGenerator interface {
	GenerateVideo(ctx context.Context, req VideoRequest) (*MediaResult, error)
}

// AudioGenerator 音乐与声音克隆
type AudioGenerator interface {
	GenerateMusic(ctx context.Context, req MusicRequest) (*MediaResult, error)
	CloneVoice(ctx context.Context, req VoiceRequest) (*MediaResult, error)
}

// MeshGenerator 图片转 3D
type MeshGenerator interface {
	GenerateMesh(ctx context.Context, req MeshRequest) (*MediaResult, error)
}

// VisionAnalyzer 图片理解
type VisionAnalyzer interface {
	DescribeImage(ctx context.Context, req VisionRequest) (string, error)
}

// Transcriber 语音转文字
type Transcriber interface {
	Transcribe(ctx context.Context, req TranscribeRequest) (*Transcript, error)
}
