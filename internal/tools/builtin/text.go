package builtin

import (
	"context"
	"fmt"
	"strings"

	"aistudio/internal/agent/parser"
	"aistudio/internal/tools"
	"aistudio/pkg/aiinterface"
)

const (
	completionPrompt  = "You are a helpful writing assistant. Answer the request directly and concisely."
	enhancementPrompt = "You rewrite short creative prompts into rich, specific prompts for %s generation models. " +
		"Keep the user's intent, add subject, style, lighting, composition and mood details. Reply with the improved prompt only."
	codePrompt = "You are an expert programmer. Reply with a single fenced code block containing complete, runnable %s code and nothing else."
)

type completionArgs struct {
	Prompt    string `json:"prompt"`
	MaxTokens int    `json:"max_tokens"`
}

type enhancementArgs struct {
	Prompt string `json:"prompt"`
	Target string `json:"target"`
}

type codeArgs struct {
	Description string `json:"description"`
	Language    string `json:"language"`
}

func textTools(deps Deps) []tools.ToolDefinition {
	return []tools.ToolDefinition{
		{
			Kind:        tools.KindTextCompletion,
			DisplayName: "文本生成",
			Description: "Generate or continue text: answers, copywriting, stories, summaries.",
			Class:       tools.ClassText,
			Parameters: tools.ObjectSchema(map[string]any{
				"prompt":     tools.StringProp("What to write"),
				"max_tokens": tools.IntegerProp("Upper bound for the answer length", 16, 4096),
			}, "prompt"),
			Executor: tools.Typed(func(ctx context.Context, a completionArgs) (tools.Outcome, error) {
				text, usage, err := complete(ctx, deps.Model, completionPrompt, a.Prompt, a.MaxTokens)
				if err != nil {
					return providerFailure(err), nil
				}
				return tools.Outcome{Output: text, Quantities: usageQuantities(usage)}, nil
			}),
		},
		{
			Kind:        tools.KindPromptEnhancement,
			DisplayName: "提示词优化",
			Description: "Improve a short prompt before sending it to an image, video or music generator.",
			Class:       tools.ClassText,
			Parameters: tools.ObjectSchema(map[string]any{
				"prompt": tools.StringProp("The prompt to improve"),
				"target": tools.EnumProp("Which generator the prompt is for", "image", "video", "music"),
			}, "prompt"),
			Executor: tools.Typed(func(ctx context.Context, a enhancementArgs) (tools.Outcome, error) {
				target := a.Target
				if target == "" {
					target = "image"
				}
				system := fmt.Sprintf(enhancementPrompt, target)
				text, usage, err := complete(ctx, deps.Model, system, a.Prompt, 400)
				if err != nil {
					return providerFailure(err), nil
				}
				return tools.Outcome{Output: strings.TrimSpace(text), Quantities: usageQuantities(usage)}, nil
			}),
		},
		{
			Kind:        tools.KindCodeGeneration,
			DisplayName: "代码生成",
			Description: "Write source code for a described task. Returns the code itself.",
			Class:       tools.ClassText,
			Parameters: tools.ObjectSchema(map[string]any{
				"description": tools.StringProp("What the code should do"),
				"language":    tools.StringProp("Programming language, e.g. python, go, typescript"),
			}, "description"),
			Executor: tools.Typed(func(ctx context.Context, a codeArgs) (tools.Outcome, error) {
				language := a.Language
				if language == "" {
					language = "python"
				}
				system := fmt.Sprintf(codePrompt, language)
				text, usage, err := complete(ctx, deps.Model, system, a.Description, 2048)
				if err != nil {
					return providerFailure(err), nil
				}
				code, lang := parser.StripCodeFence(text)
				if lang == "" {
					lang = language
				}
				return tools.Outcome{
					Output:     map[string]any{"language": lang},
					Code:       code,
					Quantities: usageQuantities(usage),
				}, nil
			}),
		},
	}
}

func complete(ctx context.Context, model aiinterface.ModelClient, system, user string, maxTokens int) (string, aiinterface.Usage, error) {
	if model == nil {
		return "", aiinterface.Usage{}, errNoModel
	}
	resp, err := model.ChatCompletion(ctx, &aiinterface.ChatCompletionRequest{
		Messages: []aiinterface.Message{
			{Role: aiinterface.RoleSystem, Content: system},
			{Role: aiinterface.RoleUser, Content: user},
		},
		Temperature: 0.7,
		MaxTokens:   maxTokens,
	})
	if err != nil {
		return "", aiinterface.Usage{}, err
	}
	return resp.Content, resp.Usage, nil
}

func usageQuantities(u aiinterface.Usage) map[string]any {
	return map[string]any{
		"prompt_tokens":     u.PromptTokens,
		"completion_tokens": u.CompletionTokens,
	}
}
