package builtin

import (
	"context"

	"aistudio/internal/provider"
	"aistudio/internal/tools"
)

type videoArgs struct {
	Prompt   string  `json:"prompt"`
	ImageURL string  `json:"image_url"`
	Duration float64 `json:"duration"`
	Frames   int     `json:"frames"`
	FPS      int     `json:"fps"`
}

func videoTools(deps Deps) []tools.ToolDefinition {
	run := func(ctx context.Context, a videoArgs) (tools.Outcome, error) {
		if deps.Videos == nil {
			return notConfigured(), nil
		}
		res, err := deps.Videos.GenerateVideo(ctx, provider.VideoRequest{
			Prompt:   a.Prompt,
			ImageURL: a.ImageURL,
			Duration: a.Duration,
			Frames:   a.Frames,
			FPS:      a.FPS,
		})
		if err != nil {
			return providerFailure(err), nil
		}
		return mediaOutcome(res, "video"), nil
	}

	timing := map[string]any{
		"duration": tools.NumberProp("Length of the video in seconds"),
		"frames":   tools.IntegerProp("Number of frames", 1, 1000),
		"fps":      tools.IntegerProp("Frames per second", 1, 60),
	}
	props := func(extra map[string]any) map[string]any {
		out := map[string]any{}
		for k, v := range timing {
			out[k] = v
		}
		for k, v := range extra {
			out[k] = v
		}
		return out
	}

	return []tools.ToolDefinition{
		{
			Kind:        tools.KindVideoGeneration,
			DisplayName: "视频生成",
			Description: "Create a short video clip from a text description.",
			Class:       tools.ClassMedia,
			Parameters: tools.ObjectSchema(props(map[string]any{
				"prompt": tools.StringProp("Description of the scene and motion"),
			}), "prompt"),
			Executor: tools.Typed(func(ctx context.Context, a videoArgs) (tools.Outcome, error) {
				a.ImageURL = ""
				return run(ctx, a)
			}),
		},
		{
			Kind:        tools.KindImageToVideo,
			DisplayName: "图生视频",
			Description: "Animate a still image into a short video clip.",
			Class:       tools.ClassMedia,
			Parameters: tools.ObjectSchema(props(map[string]any{
				"image_url": tools.StringProp("URL of the first frame"),
				"prompt":    tools.StringProp("How the scene should move"),
			}), "image_url"),
			Executor: tools.Typed(run),
		},
	}
}
