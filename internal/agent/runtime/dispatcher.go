package runtime

import (
	"context"
	"errors"
	"fmt"
	"time"

	"aistudio/internal/agent/parser"
	"aistudio/internal/credits"
	"aistudio/internal/logger"
	"aistudio/internal/metrics"
	"aistudio/internal/tools"
	"aistudio/pkg/aiinterface"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Ledger 调度器依赖的计费能力，由 *credits.Ledger 实现
type Ledger interface {
	Quote(ctx context.Context, req credits.QuoteRequest) (credits.Quote, error)
	AuthorizeAndDebit(ctx context.Context, req credits.DebitRequest) (credits.Authorization, error)
	RecordUsage(ctx context.Context, entry credits.UsageEntry)
}

var _ Ledger = (*credits.Ledger)(nil)

// CallScope 工具调用所属的用户、会话与轮次
type CallScope struct {
	UserID         string
	ConversationID string
	Round          int
}

// DispatchRequest 单次工具调用请求
type DispatchRequest struct {
	CallScope
	Call aiinterface.ToolCall
}

// Dispatcher 工具调度器：解析、校验、报价、扣费、执行、记录用量
type Dispatcher struct {
	tools     tools.Resolver
	validator *tools.SchemaValidator
	ledger    Ledger
	logger    *zap.Logger
	tracer    trace.Tracer
}

// NewDispatcher 创建工具调度器
func NewDispatcher(resolver tools.Resolver, ledger Ledger, log *zap.Logger) *Dispatcher {
	return &Dispatcher{
		tools:     resolver,
		validator: tools.NewSchemaValidator(),
		ledger:    ledger,
		logger:    logger.OrNop(log),
		tracer:    otel.Tracer("aistudio/internal/agent/runtime"),
	}
}

// DispatchAll 按模型给出的顺序逐个执行，单个调用失败不影响后续调用
func (d *Dispatcher) DispatchAll(ctx context.Context, scope CallScope, calls []aiinterface.ToolCall) []ToolResult {
	results := make([]ToolResult, 0, len(calls))
	for _, call := range calls {
		results = append(results, d.Dispatch(ctx, DispatchRequest{CallScope: scope, Call: call}))
	}
	return results
}

// Dispatch 执行一次工具调用，任何失败都转为 ToolResult
func (d *Dispatcher) Dispatch(ctx context.Context, req DispatchRequest) ToolResult {
	start := time.Now()
	name := req.Call.Function.Name

	ctx, span := d.tracer.Start(ctx, "Dispatcher.Dispatch", trace.WithAttributes(
		attribute.String("tool.name", name),
		attribute.String("tool.call_id", req.Call.ID),
		attribute.Int("turn.round", req.Round),
	))
	defer span.End()

	result, usage := d.dispatch(ctx, req)
	result.Duration = time.Since(start)

	// 轮次超时后仍需写入用量
	d.ledger.RecordUsage(context.WithoutCancel(ctx), usage)

	span.SetAttributes(
		attribute.Bool("tool.success", result.Success),
		attribute.Int64("credits.charged", result.Cost),
	)
	if !result.Success {
		span.SetStatus(codes.Error, string(result.ErrorKind))
	}
	d.observe(ctx, req, result)
	return result
}

func (d *Dispatcher) dispatch(ctx context.Context, req DispatchRequest) (ToolResult, credits.UsageEntry) {
	name := req.Call.Function.Name
	result := ToolResult{CallID: req.Call.ID, ToolName: name, Round: req.Round}
	usage := credits.UsageEntry{
		UserID:         req.UserID,
		ConversationID: req.ConversationID,
		ToolName:       name,
	}
	fail := func(kind ErrorKind, msg string) (ToolResult, credits.UsageEntry) {
		result.ErrorKind = kind
		result.Error = msg
		usage.Detail = string(kind) + ": " + msg
		return result, usage
	}

	// 1. 解析工具
	def, err := d.tools.Resolve(name)
	if err != nil {
		return fail(ErrorKindToolUnavailable, fmt.Sprintf("tool %q is not available", name))
	}
	result.ToolName = def.Name
	usage.ToolName = def.Name

	// 2. 修复并校验参数
	args, err := tools.ParseArgs(parser.RepairJSON(req.Call.Function.Arguments))
	if err != nil {
		return fail(ErrorKindInvalidArguments, err.Error())
	}
	if err := d.validator.Validate(def, args.Raw); err != nil {
		return fail(ErrorKindInvalidArguments, err.Error())
	}

	// 3. 报价
	quote, err := d.ledger.Quote(ctx, credits.QuoteRequest{Tool: def.Name, Params: args.Values})
	if err != nil {
		return fail(ErrorKindPricing, err.Error())
	}
	usage.Unit = quote.Unit
	usage.DurationSeconds = quote.DurationSeconds

	// 4. 授权扣费
	auth, err := d.ledger.AuthorizeAndDebit(ctx, credits.DebitRequest{
		UserID:         req.UserID,
		Amount:         quote.Cost,
		ToolName:       def.Name,
		ConversationID: req.ConversationID,
	})
	if err != nil {
		var insufficient *credits.InsufficientCreditsError
		if errors.As(err, &insufficient) {
			result.Required = insufficient.Required
			result.Available = insufficient.Available
			return fail(ErrorKindInsufficientCredits, fmt.Sprintf(
				"not enough credits: %s needs %d credits, balance is %d",
				def.Name, insufficient.Required, insufficient.Available))
		}
		return fail(ErrorKindBilling, err.Error())
	}
	result.Cost = auth.Charged
	usage.Cost = auth.Charged

	// 5. 执行
	outcome, err := d.execute(ctx, def, args)
	usage.Quantities = outcome.Quantities
	usage.PromptTokens = intQuantity(outcome.Quantities, "prompt_tokens")
	usage.CompletionTokens = intQuantity(outcome.Quantities, "completion_tokens")
	if err != nil {
		if errors.Is(err, tools.ErrInvalidArguments) {
			return fail(ErrorKindInvalidArguments, err.Error())
		}
		return fail(ErrorKindExecution, err.Error())
	}
	if outcome.Failure != "" {
		return fail(ErrorKindToolFailure, outcome.Failure)
	}

	result.Success = true
	result.Output = outcome.Output
	result.URL = outcome.URL
	result.Code = outcome.Code
	usage.Success = true
	return result, usage
}

// execute 在类别超时内运行执行器，执行器忽略 ctx 时也按时返回
func (d *Dispatcher) execute(ctx context.Context, def *tools.ToolDefinition, args tools.Args) (tools.Outcome, error) {
	timeout := d.tools.TimeoutFor(def)
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type reply struct {
		outcome tools.Outcome
		err     error
	}
	done := make(chan reply, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				d.logger.Error("工具执行 panic", zap.String("tool", def.Name), zap.Any("panic", r), zap.Stack("stack"))
				done <- reply{err: fmt.Errorf("%w: %v", ErrToolPanic, r)}
			}
		}()
		outcome, err := def.Executor.Execute(ctx, args)
		done <- reply{outcome: outcome, err: err}
	}()

	select {
	case r := <-done:
		return r.outcome, r.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return tools.Outcome{}, fmt.Errorf("%w after %s", ErrToolTimeout, timeout)
		}
		return tools.Outcome{}, ctx.Err()
	}
}

func (d *Dispatcher) observe(ctx context.Context, req DispatchRequest, r ToolResult) {
	label := r.ToolName
	if r.ErrorKind == ErrorKindToolUnavailable {
		label = "unknown"
	}
	status := "success"
	if !r.Success {
		status = string(r.ErrorKind)
	}
	metrics.ToolCallsTotal.WithLabelValues(label, status).Inc()
	metrics.ToolCallDuration.WithLabelValues(label).Observe(r.Duration.Seconds())

	fields := []zap.Field{
		zap.String("user_id", req.UserID),
		zap.String("conversation_id", req.ConversationID),
		zap.Int("round", req.Round),
		zap.String("tool", r.ToolName),
		zap.String("call_id", r.CallID),
		zap.Int64("cost", r.Cost),
		zap.Duration("duration", r.Duration),
	}
	log := logger.FromContext(ctx, d.logger)
	if r.Success {
		log.Info("工具调用完成", fields...)
		return
	}
	log.Warn("工具调用失败", append(fields,
		zap.String("error_kind", string(r.ErrorKind)),
		zap.String("error", r.Error),
	)...)
}

func intQuantity(q map[string]any, key string) int {
	switch v := q[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}
