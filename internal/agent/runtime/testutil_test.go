package runtime

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"aistudio/internal/credits"
	"aistudio/internal/tools"
	"aistudio/pkg/aiinterface"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type billing struct {
	ledger  *credits.Ledger
	service *credits.Service
	pricing *credits.PricingRepository
}

func newBilling(t *testing.T) *billing {
	t.Helper()
	dsn := fmt.Sprintf("file:runtime_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(credits.Models()...))

	svc := credits.NewService(db)
	repo := credits.NewPricingRepository(db, nil)
	ledger := credits.NewLedger(svc, repo, credits.LedgerOptions{ExemptTools: []string{"text_completion"}})
	return &billing{ledger: ledger, service: svc, pricing: repo}
}

func (b *billing) account(t *testing.T, userID string, balance int64) {
	t.Helper()
	ctx := context.Background()
	_, err := b.service.GetOrCreateAccount(ctx, userID)
	require.NoError(t, err)
	if balance > 0 {
		_, err = b.service.Recharge(ctx, &credits.RechargeRequest{UserID: userID, Amount: balance, OperatorID: "test"})
		require.NoError(t, err)
	}
}

func (b *billing) price(t *testing.T, service string, unit credits.UnitKind, price float64) {
	t.Helper()
	require.NoError(t, b.pricing.UpsertRule(context.Background(), &credits.PricingRule{Service: service, Unit: unit, Price: price}))
}

func (b *billing) balance(t *testing.T, userID string) int64 {
	t.Helper()
	v, err := b.service.GetBalance(context.Background(), userID)
	require.NoError(t, err)
	return v
}

func (b *billing) usage(t *testing.T, userID string) []credits.UsageRecord {
	t.Helper()
	records, err := b.service.ListUsage(context.Background(), credits.UsageQuery{UserID: userID})
	require.NoError(t, err)
	return records
}

// testTools 测试用工具集，calls 记录执行次数
type testTools struct {
	mu    sync.Mutex
	calls map[string]int
}

func (tt *testTools) hit(name string) {
	tt.mu.Lock()
	defer tt.mu.Unlock()
	tt.calls[name]++
}

func (tt *testTools) count(name string) int {
	tt.mu.Lock()
	defer tt.mu.Unlock()
	return tt.calls[name]
}

type promptArgs struct {
	Prompt string `json:"prompt"`
}

func newTestRegistry(t *testing.T) (*tools.ToolRegistry, *testTools) {
	t.Helper()
	tt := &testTools{calls: map[string]int{}}
	reg := tools.NewToolRegistry(tools.WithClassTimeouts(time.Second, time.Second))

	reg.MustRegister(tools.ToolDefinition{
		Kind:        tools.KindImageGeneration,
		Description: "Create an image",
		Class:       tools.ClassMedia,
		Parameters:  tools.ObjectSchema(map[string]any{"prompt": tools.StringProp("prompt")}, "prompt"),
		Executor: tools.Typed(func(ctx context.Context, a promptArgs) (tools.Outcome, error) {
			tt.hit("image_generation")
			return tools.Outcome{Output: map[string]any{"type": "image"}, URL: "https://cdn.test/" + a.Prompt + ".png"}, nil
		}),
	})
	reg.MustRegister(tools.ToolDefinition{
		Kind:        tools.KindVideoGeneration,
		Description: "Create a video",
		Class:       tools.ClassMedia,
		Parameters: tools.ObjectSchema(map[string]any{
			"prompt":   tools.StringProp("prompt"),
			"duration": tools.NumberProp("seconds"),
		}, "prompt"),
		Executor: tools.ExecutorFunc(func(ctx context.Context, args tools.Args) (tools.Outcome, error) {
			tt.hit("video_generation")
			return tools.Outcome{URL: "https://cdn.test/clip.mp4"}, nil
		}),
	})
	reg.MustRegister(tools.ToolDefinition{
		Kind:        tools.KindTextCompletion,
		Description: "Write text",
		Executor: tools.ExecutorFunc(func(ctx context.Context, args tools.Args) (tools.Outcome, error) {
			tt.hit("text_completion")
			return tools.Outcome{Output: "some text", Quantities: map[string]any{"prompt_tokens": 7, "completion_tokens": 3}}, nil
		}),
	})
	reg.MustRegister(tools.ToolDefinition{
		Kind:        tools.KindMusicGeneration,
		Description: "Rejects every prompt",
		Executor: tools.ExecutorFunc(func(ctx context.Context, args tools.Args) (tools.Outcome, error) {
			tt.hit("music_generation")
			return tools.Failed("provider rejected the prompt"), nil
		}),
	})
	reg.MustRegister(tools.ToolDefinition{
		Kind:        tools.KindImageTo3D,
		Description: "Panics",
		Executor: tools.ExecutorFunc(func(ctx context.Context, args tools.Args) (tools.Outcome, error) {
			tt.hit("image_to_3d")
			panic("boom")
		}),
	})
	reg.MustRegister(tools.ToolDefinition{
		Kind:        tools.KindVoiceCloning,
		Description: "Ignores its context and never returns in time",
		Timeout:     50 * time.Millisecond,
		Executor: tools.ExecutorFunc(func(ctx context.Context, args tools.Args) (tools.Outcome, error) {
			tt.hit("voice_cloning")
			time.Sleep(500 * time.Millisecond)
			return tools.Outcome{Output: "late"}, nil
		}),
	})
	reg.MustRegister(tools.ToolDefinition{
		Kind:        tools.KindSpeechToText,
		Description: "Returns a plain error",
		Executor: tools.ExecutorFunc(func(ctx context.Context, args tools.Args) (tools.Outcome, error) {
			tt.hit("speech_to_text")
			return tools.Outcome{}, errors.New("upstream unavailable")
		}),
	})
	return reg, tt
}

func toolCall(id, name, args string) aiinterface.ToolCall {
	return aiinterface.ToolCall{ID: id, Type: "function", Function: aiinterface.FunctionCall{Name: name, Arguments: args}}
}

// scriptedModel 按顺序返回预设响应
type scriptedModel struct {
	mu        sync.Mutex
	responses []*aiinterface.ChatCompletionResponse
	errs      []error
	requests  []*aiinterface.ChatCompletionRequest
	// repeat 为真时，脚本用完后重复最后一个响应
	repeat bool
	// block 为真时阻塞到 ctx 结束
	block bool
}

func (m *scriptedModel) ChatCompletion(ctx context.Context, req *aiinterface.ChatCompletionRequest) (*aiinterface.ChatCompletionResponse, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	i := len(m.requests) - 1
	m.mu.Unlock()

	if m.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if i < len(m.errs) && m.errs[i] != nil {
		return nil, m.errs[i]
	}
	if i >= len(m.responses) {
		if m.repeat && len(m.responses) > 0 {
			return m.responses[len(m.responses)-1], nil
		}
		return nil, errors.New("script exhausted")
	}
	return m.responses[i], nil
}

func (m *scriptedModel) Name() string { return "scripted" }

func (m *scriptedModel) lastRequest() *aiinterface.ChatCompletionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.requests[len(m.requests)-1]
}

func reply(content string, calls ...aiinterface.ToolCall) *aiinterface.ChatCompletionResponse {
	return &aiinterface.ChatCompletionResponse{
		Content:   content,
		ToolCalls: calls,
		Usage:     aiinterface.Usage{PromptTokens: 100, CompletionTokens: 20, TotalTokens: 120},
	}
}
