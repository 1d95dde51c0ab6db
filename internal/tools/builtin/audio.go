package builtin

import (
	"context"

	"aistudio/internal/provider"
	"aistudio/internal/tools"
)

type musicArgs struct {
	Prompt   string  `json:"prompt"`
	Duration float64 `json:"duration"`
}

type voiceArgs struct {
	Text       string `json:"text"`
	SpeakerURL string `json:"speaker_url"`
	Language   string `json:"language"`
}

type transcribeArgs struct {
	AudioURL string `json:"audio_url"`
	Language string `json:"language"`
}

func audioTools(deps Deps) []tools.ToolDefinition {
	return []tools.ToolDefinition{
		{
			Kind:        tools.KindMusicGeneration,
			DisplayName: "音乐生成",
			Description: "Compose a music track from a description of genre, mood and instruments.",
			Class:       tools.ClassMedia,
			Parameters: tools.ObjectSchema(map[string]any{
				"prompt":   tools.StringProp("Genre, mood, tempo and instruments"),
				"duration": tools.NumberProp("Length of the track in seconds"),
			}, "prompt"),
			Executor: tools.Typed(func(ctx context.Context, a musicArgs) (tools.Outcome, error) {
				if deps.Audio == nil {
					return notConfigured(), nil
				}
				res, err := deps.Audio.GenerateMusic(ctx, provider.MusicRequest{Prompt: a.Prompt, Duration: a.Duration})
				if err != nil {
					return providerFailure(err), nil
				}
				return mediaOutcome(res, "audio"), nil
			}),
		},
		{
			Kind:        tools.KindVoiceCloning,
			DisplayName: "声音克隆",
			Description: "Speak the given text in the voice of a reference recording.",
			Class:       tools.ClassMedia,
			Parameters: tools.ObjectSchema(map[string]any{
				"text":        tools.StringProp("Text to speak"),
				"speaker_url": tools.StringProp("URL of a short recording of the target voice"),
				"language":    tools.StringProp("Language code, e.g. en, zh"),
			}, "text", "speaker_url"),
			Executor: tools.Typed(func(ctx context.Context, a voiceArgs) (tools.Outcome, error) {
				if deps.Audio == nil {
					return notConfigured(), nil
				}
				res, err := deps.Audio.CloneVoice(ctx, provider.VoiceRequest{
					Text:       a.Text,
					SpeakerURL: a.SpeakerURL,
					Language:   a.Language,
				})
				if err != nil {
					return providerFailure(err), nil
				}
				return mediaOutcome(res, "audio"), nil
			}),
		},
		{
			Kind:        tools.KindSpeechToText,
			DisplayName: "语音转文字",
			Description: "Transcribe speech in an audio file to text.",
			Class:       tools.ClassMedia,
			Parameters: tools.ObjectSchema(map[string]any{
				"audio_url": tools.StringProp("URL of the audio file"),
				"language":  tools.StringProp("Spoken language code, optional"),
			}, "audio_url"),
			Executor: tools.Typed(func(ctx context.Context, a transcribeArgs) (tools.Outcome, error) {
				if deps.Speech == nil {
					return notConfigured(), nil
				}
				tr, err := deps.Speech.Transcribe(ctx, provider.TranscribeRequest{AudioURL: a.AudioURL, Language: a.Language})
				if err != nil {
					return providerFailure(err), nil
				}
				return tools.Outcome{
					Output:     tr.Text,
					Quantities: map[string]any{"duration_seconds": tr.DurationSeconds, "language": tr.Language},
				}, nil
			}),
		},
	}
}
