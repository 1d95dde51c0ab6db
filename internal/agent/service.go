package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"aistudio/internal/agent/prompt"
	"aistudio/internal/agent/runtime"
	"aistudio/internal/conversation"
	"aistudio/internal/credits"
	"aistudio/internal/logger"
	"aistudio/internal/metrics"
	"aistudio/internal/tools"
	"aistudio/internal/worker/tasks"
	"aistudio/pkg/aiinterface"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ModelMeterTool 模型自身 Token 计费使用的定价名称
const ModelMeterTool = "chat_model"

// 默认历史条数与 Token 预算
const (
	DefaultHistoryLimit       = 50
	DefaultHistoryTokenBudget = 6000
)

// ErrAsyncDisabled 未配置任务队列
var ErrAsyncDisabled = errors.New("异步对话未启用")

// TurnRequest 一次用户消息
type TurnRequest struct {
	UserID         string `json:"userId"`
	ConversationID string `json:"conversationId"`
	Message        string `json:"message"`
	FileRef        string `json:"fileRef,omitempty"`
}

// Validate 校验请求
func (r TurnRequest) Validate() error {
	if strings.TrimSpace(r.UserID) == "" {
		return errors.New("缺少用户 ID")
	}
	if strings.TrimSpace(r.Message) == "" {
		return errors.New("消息内容不能为空")
	}
	return nil
}

// AsyncTicket 异步对话受理结果
type AsyncTicket struct {
	TaskID         string `json:"taskId"`
	ConversationID string `json:"conversationId"`
}

// ConversationStore 会话历史读写，由 *conversation.Store 实现
type ConversationStore interface {
	GetMessages(ctx context.Context, userID, conversationID string, limit int) ([]aiinterface.Message, error)
	AppendMessages(ctx context.Context, msgs ...*conversation.Message) error
}

// TurnRunner 运行一轮对话，由 *runtime.Controller 实现
type TurnRunner interface {
	Run(ctx context.Context, in runtime.TurnInput) runtime.TurnState
}

// ToolLister 列出可用工具，由 *tools.ToolRegistry 实现
type ToolLister interface {
	List() []*tools.ToolDefinition
}

// TaskEnqueuer 异步任务入队，由 queue.Client 实现
type TaskEnqueuer interface {
	EnqueueRunTurn(ctx context.Context, payload tasks.RunTurnPayload) (string, error)
}

var (
	_ ConversationStore = (*conversation.Store)(nil)
	_ TurnRunner        = (*runtime.Controller)(nil)
	_ ToolLister        = (*tools.ToolRegistry)(nil)
)

// ServiceOptions 服务配置
type ServiceOptions struct {
	HistoryLimit       int
	HistoryTokenBudget int
	MeterModelTokens   bool
	Counter            conversation.TokenCounter
	Queue              TaskEnqueuer // 为空时不支持 RunTurnAsync
	Logger             *zap.Logger
	Now                func() time.Time
}

// Service 对话服务：加载历史、构造提示词、运行控制器、计费并持久化
type Service struct {
	runner  TurnRunner
	tools   ToolLister
	store   ConversationStore
	ledger  runtime.Ledger
	prompts *prompt.SystemBuilder
	queue   TaskEnqueuer
	counter conversation.TokenCounter
	limit   int
	budget  int
	meter   bool
	logger  *zap.Logger
	now     func() time.Time
}

// NewService 创建对话服务。store 为空时不读写历史，ledger 为空时不计量模型 Token
func NewService(runner TurnRunner, toolList ToolLister, store ConversationStore, ledger runtime.Ledger, prompts *prompt.SystemBuilder, opts ServiceOptions) *Service {
	s := &Service{
		runner:  runner,
		tools:   toolList,
		store:   store,
		ledger:  ledger,
		prompts: prompts,
		queue:   opts.Queue,
		counter: opts.Counter,
		limit:   opts.HistoryLimit,
		budget:  opts.HistoryTokenBudget,
		meter:   opts.MeterModelTokens,
		logger:  logger.OrNop(opts.Logger),
		now:     opts.Now,
	}
	if s.prompts == nil {
		s.prompts = prompt.NewSystemBuilder("")
	}
	if s.counter == nil {
		s.counter = conversation.RuneCounter{}
	}
	if s.limit <= 0 {
		s.limit = DefaultHistoryLimit
	}
	if s.budget <= 0 {
		s.budget = DefaultHistoryTokenBudget
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// RunTurn 处理一条用户消息并返回统一响应，失败同样以响应形式返回
func (s *Service) RunTurn(ctx context.Context, req TurnRequest) runtime.ResponseEnvelope {
	start := s.now()
	ctx = logger.WithUserID(ctx, req.UserID)
	log := logger.FromContext(ctx, s.logger).With(zap.String("conversation_id", req.ConversationID))

	if err := req.Validate(); err != nil {
		log.Warn("对话请求无效", zap.Error(err))
		metrics.TurnsTotal.WithLabelValues(string(runtime.FailureInvalidRequest)).Inc()
		return runtime.ErrorEnvelope(runtime.FailureMessage(runtime.FailureInvalidRequest), runtime.EnvelopeUsage{}, s.now())
	}

	messages, err := s.buildMessages(ctx, req)
	if err != nil {
		log.Error("构造提示词失败", zap.Error(err))
		return runtime.ErrorEnvelope(runtime.FailureMessage(runtime.FailureNone), runtime.EnvelopeUsage{}, s.now())
	}

	state := s.runner.Run(ctx, runtime.TurnInput{
		UserID:         req.UserID,
		ConversationID: req.ConversationID,
		Messages:       messages,
	})

	// 用量与历史在请求取消后仍需写入
	bg := context.WithoutCancel(ctx)
	state.Usage.CreditsUsed += s.meterModel(bg, req, state.Usage)

	env := runtime.BuildEnvelope(state, s.now())
	s.persist(bg, req, state, env)

	elapsed := s.now().Sub(start)
	metrics.TurnDuration.Observe(elapsed.Seconds())
	fields := []zap.Field{
		zap.Int("rounds", state.Round),
		zap.Int("tool_calls", state.Usage.ToolCalls),
		zap.Int("total_tokens", state.Usage.TotalTokens()),
		zap.Int64("credits_used", state.Usage.CreditsUsed),
		zap.Duration("duration", elapsed),
	}
	if state.Failure != runtime.FailureNone {
		log.Warn("对话轮次失败", append(fields, zap.String("failure", string(state.Failure)), zap.Error(state.Err))...)
	} else {
		log.Info("对话轮次完成", fields...)
	}
	return env
}

// RunTurnAsync 将请求放入任务队列。未指定会话时生成新会话 ID，结果写入该会话
func (s *Service) RunTurnAsync(ctx context.Context, req TurnRequest) (AsyncTicket, error) {
	if s.queue == nil {
		return AsyncTicket{}, ErrAsyncDisabled
	}
	if err := req.Validate(); err != nil {
		return AsyncTicket{}, err
	}
	if req.ConversationID == "" {
		req.ConversationID = uuid.New().String()
	}

	taskID, err := s.queue.EnqueueRunTurn(ctx, tasks.RunTurnPayload{
		UserID:         req.UserID,
		ConversationID: req.ConversationID,
		Message:        req.Message,
		FileRef:        req.FileRef,
		TraceID:        logger.GetTraceID(ctx),
	})
	if err != nil {
		return AsyncTicket{}, fmt.Errorf("提交异步对话: %w", err)
	}

	logger.FromContext(ctx, s.logger).Info("异步对话已入队",
		zap.String("task_id", taskID),
		zap.String("conversation_id", req.ConversationID),
	)
	return AsyncTicket{TaskID: taskID, ConversationID: req.ConversationID}, nil
}

// buildMessages 系统提示 + 裁剪后的历史 + 本次用户消息
func (s *Service) buildMessages(ctx context.Context, req TurnRequest) ([]aiinterface.Message, error) {
	var defs []*tools.ToolDefinition
	if s.tools != nil {
		defs = s.tools.List()
	}
	system, err := s.prompts.Build(ctx, defs, req.FileRef)
	if err != nil {
		return nil, err
	}

	history := s.loadHistory(ctx, req)
	history = conversation.TrimByTokens(history, s.budget, s.counter)

	messages := make([]aiinterface.Message, 0, len(history)+2)
	messages = append(messages, aiinterface.Message{Role: aiinterface.RoleSystem, Content: system})
	messages = append(messages, history...)
	messages = append(messages, aiinterface.Message{Role: aiinterface.RoleUser, Content: req.Message})
	return messages, nil
}

// loadHistory 读取失败时按无历史继续
func (s *Service) loadHistory(ctx context.Context, req TurnRequest) []aiinterface.Message {
	if s.store == nil || req.ConversationID == "" {
		return nil
	}
	history, err := s.store.GetMessages(ctx, req.UserID, req.ConversationID, s.limit)
	if err != nil {
		logger.FromContext(ctx, s.logger).Warn("加载会话历史失败，按新会话处理",
			zap.String("conversation_id", req.ConversationID),
			zap.Error(err),
		)
		return nil
	}
	return history
}

// meterModel 按 chat_model 定价扣除模型 Token 费用，返回实际扣除的积分。
// 余额不足时回复照常返回，仅记录失败的用量。
func (s *Service) meterModel(ctx context.Context, req TurnRequest, usage runtime.TurnUsage) int64 {
	if !s.meter || s.ledger == nil || usage.TotalTokens() == 0 {
		return 0
	}
	log := logger.FromContext(ctx, s.logger)
	entry := credits.UsageEntry{
		UserID:           req.UserID,
		ConversationID:   req.ConversationID,
		ToolName:         ModelMeterTool,
		PromptTokens:     usage.PromptTokens,
		CompletionTokens: usage.CompletionTokens,
	}

	quote, err := s.ledger.Quote(ctx, credits.QuoteRequest{
		Tool: ModelMeterTool,
		Tokens: &credits.TokenInfo{
			PromptTokens:     usage.PromptTokens,
			CompletionTokens: usage.CompletionTokens,
		},
	})
	if err != nil {
		log.Warn("模型 Token 报价失败", zap.Error(err))
		entry.Detail = err.Error()
		s.ledger.RecordUsage(ctx, entry)
		return 0
	}
	entry.Unit = quote.Unit

	auth, err := s.ledger.AuthorizeAndDebit(ctx, credits.DebitRequest{
		UserID:         req.UserID,
		Amount:         quote.Cost,
		ToolName:       ModelMeterTool,
		ConversationID: req.ConversationID,
	})
	if err != nil {
		log.Warn("模型 Token 扣费失败", zap.Int64("cost", quote.Cost), zap.Error(err))
		entry.Detail = err.Error()
		s.ledger.RecordUsage(ctx, entry)
		return 0
	}

	entry.Cost = auth.Charged
	entry.Success = true
	s.ledger.RecordUsage(ctx, entry)
	return auth.Charged
}

// persist 追加用户消息与助手响应，失败只记录日志
func (s *Service) persist(ctx context.Context, req TurnRequest, state runtime.TurnState, env runtime.ResponseEnvelope) {
	if s.store == nil || req.ConversationID == "" {
		return
	}
	body, err := json.Marshal(env)
	if err != nil {
		s.logger.Error("序列化响应失败", zap.Error(err))
		return
	}

	now := s.now()
	user := &conversation.Message{
		ConversationID: req.ConversationID,
		UserID:         req.UserID,
		Role:           aiinterface.RoleUser,
		Content:        req.Message,
		CreatedAt:      now,
	}
	if req.FileRef != "" {
		user.Metadata = map[string]any{"fileRef": req.FileRef}
	}
	assistant := &conversation.Message{
		ConversationID: req.ConversationID,
		UserID:         req.UserID,
		Role:           aiinterface.RoleAssistant,
		Content:        string(body),
		Metadata: map[string]any{
			"rounds":      state.Round,
			"toolCalls":   state.Usage.ToolCalls,
			"creditsUsed": state.Usage.CreditsUsed,
		},
		CreatedAt: now,
	}
	if state.Failure != runtime.FailureNone {
		assistant.Metadata["failure"] = string(state.Failure)
	}

	if err := s.store.AppendMessages(ctx, user, assistant); err != nil {
		logger.FromContext(ctx, s.logger).Error("保存会话消息失败",
			zap.String("conversation_id", req.ConversationID),
			zap.Error(err),
		)
	}
}
