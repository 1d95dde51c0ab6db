package runtime

import (
	"aistudio/pkg/aiinterface"
)

// Phase 对话轮次状态
type Phase string

const (
	PhaseAwaitingModel  Phase = "awaiting_model"
	PhaseExecutingTools Phase = "executing_tools"
	PhaseDone           Phase = "done"
)

// TurnUsage 整轮累计用量
type TurnUsage struct {
	PromptTokens     int   `json:"promptTokens"`
	CompletionTokens int   `json:"completionTokens"`
	ModelCalls       int   `json:"modelCalls"`
	ToolCalls        int   `json:"toolCalls"`
	CreditsUsed      int64 `json:"creditsUsed"`
}

// TotalTokens 模型 Token 总数
func (u TurnUsage) TotalTokens() int {
	return u.PromptTokens + u.CompletionTokens
}

// TurnState 不可变的轮次状态，状态转换返回新值，原值不受影响
type TurnState struct {
	Phase   Phase
	Round   int // 已完成的模型调用次数
	Usage   TurnUsage
	Final   string
	Failure FailureKind
	Err     error

	messages []aiinterface.Message
	pending  []aiinterface.ToolCall
	results  []ToolResult
}

// NewTurnState 以初始消息（系统提示、历史、用户消息）创建状态
func NewTurnState(messages []aiinterface.Message) TurnState {
	return TurnState{
		Phase:    PhaseAwaitingModel,
		messages: cloneMessages(messages),
	}
}

// Messages 当前消息列表的副本
func (s TurnState) Messages() []aiinterface.Message {
	return cloneMessages(s.messages)
}

// PendingCalls 待执行的工具调用
func (s TurnState) PendingCalls() []aiinterface.ToolCall {
	return append([]aiinterface.ToolCall(nil), s.pending...)
}

// Results 本轮全部工具结果，按执行顺序
func (s TurnState) Results() []ToolResult {
	return append([]ToolResult(nil), s.results...)
}

// WithModelResponse 记录一次模型响应。
// 没有工具调用时进入 Done，否则进入 ExecutingTools。
func (s TurnState) WithModelResponse(resp *aiinterface.ChatCompletionResponse) TurnState {
	next := s
	next.Round++
	next.Usage.ModelCalls++
	next.Usage.PromptTokens += resp.Usage.PromptTokens
	next.Usage.CompletionTokens += resp.Usage.CompletionTokens
	next.messages = appendMessages(s.messages, aiinterface.Message{
		Role:      aiinterface.RoleAssistant,
		Content:   resp.Content,
		ToolCalls: cloneToolCalls(resp.ToolCalls),
	})

	if len(resp.ToolCalls) == 0 {
		next.Phase = PhaseDone
		next.Final = resp.Content
		next.pending = nil
		return next
	}
	next.Phase = PhaseExecutingTools
	next.pending = cloneToolCalls(resp.ToolCalls)
	return next
}

// WithToolResults 追加工具结果消息并回到 AwaitingModel
func (s TurnState) WithToolResults(results []ToolResult) TurnState {
	next := s
	next.Phase = PhaseAwaitingModel
	next.pending = nil

	msgs := make([]aiinterface.Message, 0, len(results))
	for _, r := range results {
		msgs = append(msgs, r.Message())
		next.Usage.CreditsUsed += r.Cost
	}
	next.Usage.ToolCalls += len(results)
	next.messages = appendMessages(s.messages, msgs...)
	next.results = append(append([]ToolResult(nil), s.results...), results...)
	return next
}

// Fail 以失败结束本轮
func (s TurnState) Fail(kind FailureKind, err error) TurnState {
	next := s
	next.Phase = PhaseDone
	next.Failure = kind
	next.Err = err
	next.pending = nil
	return next
}

// Done 是否已结束
func (s TurnState) Done() bool {
	return s.Phase == PhaseDone
}

// InsufficientCredits 本轮第一次因余额不足被拒绝的调用
func (s TurnState) InsufficientCredits() (ToolResult, bool) {
	for _, r := range s.results {
		if r.ErrorKind == ErrorKindInsufficientCredits {
			return r, true
		}
	}
	return ToolResult{}, false
}

// RequestOptions 模型请求参数
type RequestOptions struct {
	Temperature float64
	MaxTokens   int
}

// BuildRequest 由状态构造下一次模型请求。
// 只依赖入参，相同的状态总是得到相同的请求。
func BuildRequest(s TurnState, modelTools []aiinterface.Tool, opts RequestOptions) *aiinterface.ChatCompletionRequest {
	req := &aiinterface.ChatCompletionRequest{
		Messages:    s.Messages(),
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
	}
	if len(modelTools) > 0 {
		req.Tools = append([]aiinterface.Tool(nil), modelTools...)
		req.ToolChoice = "auto"
	}
	return req
}

func appendMessages(base []aiinterface.Message, extra ...aiinterface.Message) []aiinterface.Message {
	out := make([]aiinterface.Message, 0, len(base)+len(extra))
	out = append(out, base...)
	return append(out, extra...)
}

func cloneMessages(msgs []aiinterface.Message) []aiinterface.Message {
	if msgs == nil {
		return nil
	}
	out := make([]aiinterface.Message, len(msgs))
	for i, m := range msgs {
		m.ToolCalls = cloneToolCalls(m.ToolCalls)
		out[i] = m
	}
	return out
}

func cloneToolCalls(calls []aiinterface.ToolCall) []aiinterface.ToolCall {
	if len(calls) == 0 {
		return nil
	}
	return append([]aiinterface.ToolCall(nil), calls...)
}
