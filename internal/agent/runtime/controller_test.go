package runtime

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"aistudio/internal/credits"
	"aistudio/pkg/aiinterface"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestController(t *testing.T, model aiinterface.ModelClient, opts ControllerOptions) (*Controller, *billing, *testTools) {
	t.Helper()
	b := newBilling(t)
	reg, tt := newTestRegistry(t)
	return NewController(model, reg, NewDispatcher(reg, b.ledger, nil), opts), b, tt
}

func initialMessages(text string) []aiinterface.Message {
	return []aiinterface.Message{
		{Role: aiinterface.RoleSystem, Content: "system"},
		{Role: aiinterface.RoleUser, Content: text},
	}
}

func TestControllerToolRoundThenFinal(t *testing.T) {
	model := &scriptedModel{responses: []*aiinterface.ChatCompletionResponse{
		reply("", toolCall("c1", "image_generation", `{"prompt":"cat"}`)),
		reply(`{"message":"Here is your cat","imageUrl":"https://cdn.test/cat.png"}`),
	}}
	c, b, _ := newTestController(t, model, ControllerOptions{})
	b.account(t, "u1", 100)
	b.price(t, "image_generation", credits.UnitFlat, 30)

	state := c.Run(context.Background(), TurnInput{UserID: "u1", ConversationID: "conv", Messages: initialMessages("draw a cat")})
	require.Equal(t, FailureNone, state.Failure, "%v", state.Err)
	assert.Equal(t, 2, state.Round)
	assert.Equal(t, 1, state.Usage.ToolCalls)
	assert.Equal(t, int64(30), state.Usage.CreditsUsed)
	assert.Equal(t, 200, state.Usage.PromptTokens)
	assert.Equal(t, int64(70), b.balance(t, "u1"))

	// 第二次请求带上 assistant 工具调用与工具结果
	second := model.requests[1]
	require.Len(t, second.Messages, 4)
	assert.Equal(t, aiinterface.RoleAssistant, second.Messages[2].Role)
	assert.Len(t, second.Messages[2].ToolCalls, 1)
	assert.Equal(t, aiinterface.RoleTool, second.Messages[3].Role)
	assert.Equal(t, "c1", second.Messages[3].ToolCallID)
	assert.Contains(t, second.Messages[3].Content, `"success":true`)
	assert.Equal(t, "auto", second.ToolChoice)
	assert.NotEmpty(t, second.Tools)

	env := BuildEnvelope(state, time.Now())
	assert.Equal(t, "Here is your cat", env.Message)
	require.NotNil(t, env.ImageURL)
	assert.Equal(t, "https://cdn.test/cat.png", *env.ImageURL)
	assert.Equal(t, int64(30), env.Usage.CreditsUsed)
}

func TestControllerInsufficientCreditsScenario(t *testing.T) {
	model := &scriptedModel{responses: []*aiinterface.ChatCompletionResponse{
		reply("", toolCall("c1", "image_generation", `{"prompt":"cat"}`)),
		reply(`{"message":"I could not create the image."}`),
	}}
	c, b, tt := newTestController(t, model, ControllerOptions{})
	b.account(t, "u1", 10)
	b.price(t, "image_generation", credits.UnitFlat, 30)

	state := c.Run(context.Background(), TurnInput{UserID: "u1", ConversationID: "conv", Messages: initialMessages("draw a cat")})
	require.Equal(t, FailureNone, state.Failure)
	assert.Zero(t, tt.count("image_generation"))
	assert.Equal(t, int64(10), b.balance(t, "u1"))

	toolMsg := model.lastRequest().Messages[3]
	assert.Contains(t, toolMsg.Content, "insufficient_credits")

	env := BuildEnvelope(state, time.Now())
	assert.True(t, strings.HasPrefix(env.Message, "I could not create the image."))
	assert.Contains(t, env.Message, "30 credits")
	assert.Contains(t, env.Message, "balance is 10")
	assert.Nil(t, env.ImageURL)
}

func TestControllerUnknownToolContinues(t *testing.T) {
	model := &scriptedModel{responses: []*aiinterface.ChatCompletionResponse{
		reply("", toolCall("c1", "nonexistent_tool", `{}`)),
		reply("That tool does not exist, sorry."),
	}}
	c, _, _ := newTestController(t, model, ControllerOptions{})

	state := c.Run(context.Background(), TurnInput{UserID: "u1", Messages: initialMessages("hi")})
	require.Equal(t, FailureNone, state.Failure)
	assert.Equal(t, 2, state.Round)
	require.Len(t, state.Results(), 1)
	assert.Equal(t, ErrorKindToolUnavailable, state.Results()[0].ErrorKind)
	assert.Equal(t, "That tool does not exist, sorry.", BuildEnvelope(state, time.Now()).Message)
}

func TestControllerMaxRounds(t *testing.T) {
	model := &scriptedModel{
		responses: []*aiinterface.ChatCompletionResponse{reply("", toolCall("c", "text_completion", `{}`))},
		repeat:    true,
	}
	c, _, _ := newTestController(t, model, ControllerOptions{MaxRounds: 3})

	state := c.Run(context.Background(), TurnInput{UserID: "u1", Messages: initialMessages("loop")})
	assert.Equal(t, FailureMaxRounds, state.Failure)
	assert.ErrorIs(t, state.Err, ErrMaxRounds)
	assert.Len(t, model.requests, 3)
	assert.Equal(t, 3, state.Usage.ToolCalls)

	env := BuildEnvelope(state, time.Now())
	assert.Equal(t, FailureMessage(FailureMaxRounds), env.Message)
	assert.Nil(t, env.ImageURL)
	assert.Nil(t, env.Code)
}

func TestControllerModelError(t *testing.T) {
	model := &scriptedModel{errs: []error{errors.New("503 from provider")}}
	c, _, _ := newTestController(t, model, ControllerOptions{})

	state := c.Run(context.Background(), TurnInput{UserID: "u1", Messages: initialMessages("hi")})
	assert.Equal(t, FailureModelCall, state.Failure)
	assert.EqualError(t, state.Err, "503 from provider")
	assert.Equal(t, FailureMessage(FailureModelCall), BuildEnvelope(state, time.Now()).Message)
}

func TestControllerTurnTimeout(t *testing.T) {
	model := &scriptedModel{block: true}
	c, _, _ := newTestController(t, model, ControllerOptions{TurnTimeout: 50 * time.Millisecond})

	start := time.Now()
	state := c.Run(context.Background(), TurnInput{UserID: "u1", Messages: initialMessages("hi")})
	assert.Equal(t, FailureTurnTimeout, state.Failure)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestControllerCancelled(t *testing.T) {
	model := &scriptedModel{block: true}
	c, _, _ := newTestController(t, model, ControllerOptions{})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	state := c.Run(ctx, TurnInput{UserID: "u1", Messages: initialMessages("hi")})
	assert.Equal(t, FailureCancelled, state.Failure)
}
