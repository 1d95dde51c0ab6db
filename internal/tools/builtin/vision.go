package builtin

import (
	"context"

	"aistudio/internal/provider"
	"aistudio/internal/tools"
)

type visionArgs struct {
	ImageURL string `json:"image_url"`
	Question string `json:"question"`
}

type meshArgs struct {
	ImageURL string `json:"image_url"`
	Format   string `json:"format"`
}

func visionTools(deps Deps) []tools.ToolDefinition {
	return []tools.ToolDefinition{
		{
			Kind:        tools.KindImageToText,
			DisplayName: "图片理解",
			Description: "Describe an image or answer a question about it.",
			Class:       tools.ClassMedia,
			Parameters: tools.ObjectSchema(map[string]any{
				"image_url": tools.StringProp("URL of the image"),
				"question":  tools.StringProp("What to find out about the image"),
			}, "image_url"),
			Executor: tools.Typed(func(ctx context.Context, a visionArgs) (tools.Outcome, error) {
				if deps.Vision == nil {
					return notConfigured(), nil
				}
				text, err := deps.Vision.DescribeImage(ctx, provider.VisionRequest{ImageURL: a.ImageURL, Question: a.Question})
				if err != nil {
					return providerFailure(err), nil
				}
				return tools.Outcome{Output: text}, nil
			}),
		},
		{
			Kind:        tools.KindImageTo3D,
			DisplayName: "图片转 3D",
			Description: "Build a 3D model (GLB) from a picture of an object.",
			Class:       tools.ClassMedia,
			Parameters: tools.ObjectSchema(map[string]any{
				"image_url": tools.StringProp("URL of the object picture"),
				"format":    tools.EnumProp("Model file format", "glb", "obj"),
			}, "image_url"),
			Executor: tools.Typed(func(ctx context.Context, a meshArgs) (tools.Outcome, error) {
				if deps.Meshes == nil {
					return notConfigured(), nil
				}
				res, err := deps.Meshes.GenerateMesh(ctx, provider.MeshRequest{ImageURL: a.ImageURL, Format: a.Format})
				if err != nil {
					return providerFailure(err), nil
				}
				return mediaOutcome(res, "model"), nil
			}),
		},
	}
}
