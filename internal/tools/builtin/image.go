package builtin

import (
	"context"

	"aistudio/internal/provider"
	"aistudio/internal/tools"
)

type imageArgs struct {
	Prompt         string `json:"prompt"`
	NegativePrompt string `json:"negative_prompt"`
	AspectRatio    string `json:"aspect_ratio"`
}

type imageEditArgs struct {
	ImageURL    string `json:"image_url"`
	Prompt      string `json:"prompt"`
	AspectRatio string `json:"aspect_ratio"`
}

type enhanceArgs struct {
	ImageURL string `json:"image_url"`
	Scale    int    `json:"scale"`
}

type productArgs struct {
	ImageURL   string `json:"image_url"`
	Prompt     string `json:"prompt"`
	Background string `json:"background"`
}

var aspectRatio = tools.EnumProp("Output aspect ratio", "1:1", "16:9", "9:16", "4:3", "3:4")

func imageTools(deps Deps) []tools.ToolDefinition {
	generate := func(ctx context.Context, req provider.ImageRequest) (tools.Outcome, error) {
		if deps.Images == nil {
			return notConfigured(), nil
		}
		res, err := deps.Images.GenerateImage(ctx, req)
		if err != nil {
			return providerFailure(err), nil
		}
		return mediaOutcome(res, "image"), nil
	}

	return []tools.ToolDefinition{
		{
			Kind:        tools.KindImageGeneration,
			DisplayName: "图片生成",
			Description: "Create an image from a text description.",
			Class:       tools.ClassMedia,
			Parameters: tools.ObjectSchema(map[string]any{
				"prompt":          tools.StringProp("Detailed description of the image"),
				"negative_prompt": tools.StringProp("Things to avoid in the image"),
				"aspect_ratio":    aspectRatio,
			}, "prompt"),
			Executor: tools.Typed(func(ctx context.Context, a imageArgs) (tools.Outcome, error) {
				return generate(ctx, provider.ImageRequest{
					Mode:           provider.ImageGenerate,
					Prompt:         a.Prompt,
					NegativePrompt: a.NegativePrompt,
					AspectRatio:    a.AspectRatio,
				})
			}),
		},
		{
			Kind:        tools.KindImageToImage,
			DisplayName: "图生图",
			Description: "Transform an existing image according to an instruction.",
			Class:       tools.ClassMedia,
			Parameters: tools.ObjectSchema(map[string]any{
				"image_url":    tools.StringProp("URL of the source image"),
				"prompt":       tools.StringProp("How to change the image"),
				"aspect_ratio": aspectRatio,
			}, "image_url", "prompt"),
			Executor: tools.Typed(func(ctx context.Context, a imageEditArgs) (tools.Outcome, error) {
				return generate(ctx, provider.ImageRequest{
					Mode:        provider.ImageEdit,
					ImageURL:    a.ImageURL,
					Prompt:      a.Prompt,
					AspectRatio: a.AspectRatio,
				})
			}),
		},
		{
			Kind:        tools.KindImageEnhancement,
			DisplayName: "画质增强",
			Description: "Upscale and sharpen an image.",
			Class:       tools.ClassMedia,
			Parameters: tools.ObjectSchema(map[string]any{
				"image_url": tools.StringProp("URL of the image to enhance"),
				"scale":     tools.IntegerProp("Upscale factor", 1, 4),
			}, "image_url"),
			Executor: tools.Typed(func(ctx context.Context, a enhanceArgs) (tools.Outcome, error) {
				return generate(ctx, provider.ImageRequest{
					Mode:     provider.ImageEnhance,
					ImageURL: a.ImageURL,
					Scale:    a.Scale,
				})
			}),
		},
		{
			Kind:        tools.KindProductPhotography,
			DisplayName: "商品图",
			Description: "Turn a product photo into a professional studio shot.",
			Class:       tools.ClassMedia,
			Parameters: tools.ObjectSchema(map[string]any{
				"image_url":  tools.StringProp("URL of the product photo"),
				"prompt":     tools.StringProp("Scene or styling instructions"),
				"background": tools.StringProp("Desired background, e.g. white studio, marble"),
			}, "image_url"),
			Executor: tools.Typed(func(ctx context.Context, a productArgs) (tools.Outcome, error) {
				return generate(ctx, provider.ImageRequest{
					Mode:       provider.ImageProduct,
					ImageURL:   a.ImageURL,
					Prompt:     a.Prompt,
					Background: a.Background,
				})
			}),
		},
	}
}
