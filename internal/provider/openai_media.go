package provider

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"aistudio/pkg/httputil"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIMedia 基于 OpenAI 的图片理解与语音转写
type OpenAIMedia struct {
	client      *openai.Client
	visionModel string
	speechModel string
	fetcher     *httputil.Client
	defaultAsk  string
}

// NewOpenAIMedia 创建适配器。fetcher 用于下载待转写的音频
func NewOpenAIMedia(client *openai.Client, visionModel, speechModel string, fetcher *httputil.Client) (*OpenAIMedia, error) {
	if client == nil {
		return nil, ErrNotConfigured
	}
	if visionModel == "" {
		visionModel = openai.GPT4oMini
	}
	if speechModel == "" {
		speechModel = openai.Whisper1
	}
	if fetcher == nil {
		fetcher = httputil.NewClient()
	}
	return &OpenAIMedia{
		client:      client,
		visionModel: visionModel,
		speechModel: speechModel,
		fetcher:     fetcher,
		defaultAsk:  "Describe this image in detail.",
	}, nil
}

// DescribeImage 图片理解
func (m *OpenAIMedia) DescribeImage(ctx context.Context, req VisionRequest) (string, error) {
	if req.ImageURL == "" {
		return "", errors.New("缺少图片地址")
	}
	question := strings.TrimSpace(req.Question)
	if question == "" {
		question = m.defaultAsk
	}

	resp, err := m.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: m.visionModel,
		Messages: []openai.ChatCompletionMessage{{
			Role: openai.ChatMessageRoleUser,
			MultiContent: []openai.ChatMessagePart{
				{Type: openai.ChatMessagePartTypeText, Text: question},
				{Type: openai.ChatMessagePartTypeImageURL, ImageURL: &openai.ChatMessageImageURL{
					URL:    req.ImageURL,
					Detail: openai.ImageURLDetailAuto,
				}},
			},
		}},
	})
	if err != nil {
		return "", fmt.Errorf("图片理解失败: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("图片理解返回空响应")
	}
	return resp.Choices[0].Message.Content, nil
}

// Transcribe 下载音频并转写
func (m *OpenAIMedia) Transcribe(ctx context.Context, req TranscribeRequest) (*Transcript, error) {
	if req.AudioURL == "" {
		return nil, errors.New("缺少音频地址")
	}
	file, err := m.fetcher.Download(ctx, req.AudioURL)
	if err != nil {
		return nil, err
	}

	resp, err := m.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    m.speechModel,
		FilePath: file.Name,
		Reader:   bytes.NewReader(file.Data),
		Prompt:   req.Prompt,
		Language: req.Language,
		Format:   openai.AudioResponseFormatVerboseJSON,
	})
	if err != nil {
		return nil, fmt.Errorf("语音转写失败: %w", err)
	}
	return &Transcript{
		Text:            resp.Text,
		Language:        resp.Language,
		DurationSeconds: resp.Duration,
	}, nil
}
