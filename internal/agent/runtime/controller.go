package runtime

import (
	"context"
	"errors"
	"fmt"
	"time"

	"aistudio/internal/logger"
	"aistudio/internal/metrics"
	"aistudio/pkg/aiinterface"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// 默认轮次上限与整轮超时
const (
	DefaultMaxRounds   = 8
	DefaultTurnTimeout = 5 * time.Minute
)

// ToolRunner 执行一批工具调用，由 *Dispatcher 实现
type ToolRunner interface {
	DispatchAll(ctx context.Context, scope CallScope, calls []aiinterface.ToolCall) []ToolResult
}

// ToolCatalog 提供给模型的工具描述
type ToolCatalog interface {
	ToModelTools() []aiinterface.Tool
}

var _ ToolRunner = (*Dispatcher)(nil)

// ControllerOptions 控制器配置
type ControllerOptions struct {
	MaxRounds   int
	TurnTimeout time.Duration
	Request     RequestOptions
	Logger      *zap.Logger
}

// Controller 对话轮次状态机：模型调用与工具执行交替进行，直到得到最终回复
type Controller struct {
	model       aiinterface.ModelClient
	catalog     ToolCatalog
	runner      ToolRunner
	maxRounds   int
	turnTimeout time.Duration
	request     RequestOptions
	logger      *zap.Logger
	tracer      trace.Tracer
}

// NewController 创建控制器
func NewController(model aiinterface.ModelClient, catalog ToolCatalog, runner ToolRunner, opts ControllerOptions) *Controller {
	c := &Controller{
		model:       model,
		catalog:     catalog,
		runner:      runner,
		maxRounds:   opts.MaxRounds,
		turnTimeout: opts.TurnTimeout,
		request:     opts.Request,
		logger:      logger.OrNop(opts.Logger),
		tracer:      otel.Tracer("aistudio/internal/agent/runtime"),
	}
	if c.maxRounds <= 0 {
		c.maxRounds = DefaultMaxRounds
	}
	if c.turnTimeout <= 0 {
		c.turnTimeout = DefaultTurnTimeout
	}
	return c
}

// TurnInput 一轮对话的输入
type TurnInput struct {
	UserID         string
	ConversationID string
	Messages       []aiinterface.Message // 系统提示 + 历史 + 本次用户消息
}

// Run 运行状态机直到 Done，不返回错误，失败记录在 TurnState.Failure
func (c *Controller) Run(ctx context.Context, in TurnInput) TurnState {
	ctx, span := c.tracer.Start(ctx, "Controller.Run", trace.WithAttributes(
		attribute.String("conversation.id", in.ConversationID),
	))
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, c.turnTimeout)
	defer cancel()

	var modelTools []aiinterface.Tool
	if c.catalog != nil {
		modelTools = c.catalog.ToModelTools()
	}
	scope := CallScope{UserID: in.UserID, ConversationID: in.ConversationID}

	state := NewTurnState(in.Messages)
	for !state.Done() {
		if err := ctx.Err(); err != nil {
			state = state.Fail(contextFailure(err), err)
			break
		}

		switch state.Phase {
		case PhaseAwaitingModel:
			if state.Round >= c.maxRounds {
				state = state.Fail(FailureMaxRounds, fmt.Errorf("%w (%d)", ErrMaxRounds, c.maxRounds))
				continue
			}
			state = c.callModel(ctx, state, modelTools)
		case PhaseExecutingTools:
			scope.Round = state.Round
			results := c.runner.DispatchAll(ctx, scope, state.PendingCalls())
			state = state.WithToolResults(results)
		}
	}

	status := "ok"
	if state.Failure != FailureNone {
		status = string(state.Failure)
		span.SetStatus(codes.Error, status)
		if state.Err != nil {
			span.RecordError(state.Err)
		}
	}
	span.SetAttributes(
		attribute.Int("turn.rounds", state.Round),
		attribute.Int("turn.tool_calls", state.Usage.ToolCalls),
	)
	metrics.TurnsTotal.WithLabelValues(status).Inc()
	metrics.TurnRounds.Observe(float64(state.Round))
	metrics.ModelTokensTotal.WithLabelValues("prompt").Add(float64(state.Usage.PromptTokens))
	metrics.ModelTokensTotal.WithLabelValues("completion").Add(float64(state.Usage.CompletionTokens))
	return state
}

func (c *Controller) callModel(ctx context.Context, state TurnState, modelTools []aiinterface.Tool) TurnState {
	req := BuildRequest(state, modelTools, c.request)
	resp, err := c.model.ChatCompletion(ctx, req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return state.Fail(contextFailure(ctxErr), err)
		}
		logger.FromContext(ctx, c.logger).Warn("模型调用失败",
			zap.String("model", c.model.Name()),
			zap.Int("round", state.Round+1),
			zap.Error(err),
		)
		return state.Fail(FailureModelCall, err)
	}
	if resp == nil {
		return state.Fail(FailureModelCall, ErrEmptyModelReply)
	}
	return state.WithModelResponse(resp)
}

func contextFailure(err error) FailureKind {
	if errors.Is(err, context.DeadlineExceeded) {
		return FailureTurnTimeout
	}
	return FailureCancelled
}
