package credits

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"aistudio/internal/metrics"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CreditStore 账户与用量存储接口
type CreditStore interface {
	GetAccount(ctx context.Context, userID string) (*CreditAccount, error)
	Debit(ctx context.Context, req *DebitRequest) (*DebitResult, error)
	AppendUsage(ctx context.Context, rec *UsageRecord) error
}

// LedgerOptions 账本配置
type LedgerOptions struct {
	ExemptTools            []string      // 免费工具
	DefaultDurationSeconds float64       // 按秒计费缺少时长时的兜底
	RequirePricing         bool          // 缺少定价时拒绝而不是按 0 计费
	LockTimeout            time.Duration // 获取用户锁的最长等待
	Locker                 UserLocker
	Logger                 *zap.Logger
	Now                    func() time.Time
}

// Ledger 积分账本：报价、授权扣费、用量记录
type Ledger struct {
	store       CreditStore
	pricing     PricingStore
	exempt      map[string]struct{}
	fallback    float64
	require     bool
	lockTimeout time.Duration
	locker      UserLocker
	logger      *zap.Logger
	now         func() time.Time
}

// NewLedger 创建积分账本
func NewLedger(store CreditStore, pricing PricingStore, opts LedgerOptions) *Ledger {
	l := &Ledger{
		store:       store,
		pricing:     pricing,
		exempt:      make(map[string]struct{}, len(opts.ExemptTools)),
		fallback:    opts.DefaultDurationSeconds,
		require:     opts.RequirePricing,
		lockTimeout: opts.LockTimeout,
		locker:      opts.Locker,
		logger:      opts.Logger,
		now:         opts.Now,
	}
	for _, name := range opts.ExemptTools {
		l.exempt[name] = struct{}{}
	}
	if l.fallback <= 0 {
		l.fallback = 5
	}
	if l.lockTimeout <= 0 {
		l.lockTimeout = 10 * time.Second
	}
	if l.locker == nil {
		l.locker = NewLocalLocker()
	}
	if l.logger == nil {
		l.logger = zap.NewNop()
	}
	if l.now == nil {
		l.now = time.Now
	}
	return l
}

// ============ 报价 ============

// QuoteRequest 报价请求
type QuoteRequest struct {
	Tool   string
	Params map[string]any
	Tokens *TokenInfo
}

// Quote 报价结果
type Quote struct {
	Tool            string   `json:"tool"`
	Cost            int64    `json:"cost"`
	Unit            UnitKind `json:"unit,omitempty"`
	Price           float64  `json:"price"`
	DurationSeconds float64  `json:"durationSeconds,omitempty"`
	Exempt          bool     `json:"exempt,omitempty"`
	Unpriced        bool     `json:"unpriced,omitempty"` // 没有生效定价，按 0 计费
}

// Quote 计算一次工具调用的积分消耗，不修改任何状态
func (l *Ledger) Quote(ctx context.Context, req QuoteRequest) (Quote, error) {
	q := Quote{Tool: req.Tool}
	if _, ok := l.exempt[req.Tool]; ok {
		q.Exempt = true
		return q, nil
	}

	rule, err := l.pricing.GetActiveRule(ctx, req.Tool)
	if err != nil {
		if errors.Is(err, ErrPricingNotFound) && !l.require {
			l.logger.Warn("工具没有生效定价，按 0 积分计费", zap.String("tool", req.Tool))
			q.Unpriced = true
			return q, nil
		}
		return q, fmt.Errorf("查询定价 %s: %w", req.Tool, err)
	}

	q.Unit = rule.Unit
	q.Price = rule.Price
	q.Cost, q.DurationSeconds = ComputeCost(*rule, req.Params, req.Tokens, l.fallback)
	return q, nil
}

// ComputeCost 按定价规则计算积分，结果向上取整，价格为负时视为 0
func ComputeCost(rule PricingRule, params map[string]any, tokens *TokenInfo, fallbackSeconds float64) (int64, float64) {
	price := rule.Price
	if price <= 0 {
		return 0, 0
	}

	switch rule.Unit {
	case UnitPerMillionTokens:
		if tokens == nil {
			return 0, 0
		}
		return perMillion(tokens.PromptTokens, price) + perMillion(tokens.CompletionTokens, price), 0
	case UnitPerSecond:
		seconds := DurationFromParams(params, fallbackSeconds)
		return ceilCredits(price * math.Max(1, seconds)), seconds
	default:
		return ceilCredits(price), 0
	}
}

func perMillion(tokens int, price float64) int64 {
	if tokens <= 0 {
		return 0
	}
	// 整数单价走整数运算，避免浮点误差多收 1 积分
	if price == math.Trunc(price) && price < 1e9 {
		n := int64(tokens) * int64(price)
		return (n + 999_999) / 1_000_000
	}
	return ceilCredits(float64(tokens) * price / 1e6)
}

func ceilCredits(v float64) int64 {
	if v <= 0 || math.IsNaN(v) {
		return 0
	}
	return int64(math.Ceil(v))
}

// DurationFromParams 读取 duration 参数（秒），缺失或非法时使用 fallback
func DurationFromParams(params map[string]any, fallback float64) float64 {
	if v, ok := params["duration"]; ok {
		if d, ok := toFloat(v); ok && d > 0 {
			return d
		}
	}
	return fallback
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSuffix(strings.TrimSpace(n), "s"), 64)
		return f, err == nil
	}
	return 0, false
}

// ============ 授权扣费 ============

// Authorization 授权扣费结果
type Authorization struct {
	Charged   int64  `json:"charged"`
	Remaining int64  `json:"remaining"`
	Skipped   bool   `json:"skipped,omitempty"` // 0 积分或不限额账户，未扣费
	TxID      string `json:"txId,omitempty"`
}

// AuthorizeAndDebit 检查余额并原子扣费。
// 余额不足返回 *InsufficientCreditsError，余额保持不变。
func (l *Ledger) AuthorizeAndDebit(ctx context.Context, req DebitRequest) (Authorization, error) {
	if req.Amount < 0 {
		return Authorization{}, ErrInvalidAmount
	}
	if req.Amount == 0 {
		return Authorization{Skipped: true}, nil
	}

	lockCtx, cancel := context.WithTimeout(ctx, l.lockTimeout)
	unlock, err := l.locker.Lock(lockCtx, req.UserID)
	cancel()
	if err != nil {
		metrics.DebitRejectionsTotal.WithLabelValues("lock").Inc()
		return Authorization{}, err
	}
	defer unlock()

	account, err := l.store.GetAccount(ctx, req.UserID)
	if err != nil {
		metrics.DebitRejectionsTotal.WithLabelValues("account").Inc()
		return Authorization{}, fmt.Errorf("加载积分账户: %w", err)
	}

	if account.Tier == TierUnlimited {
		return Authorization{Remaining: account.Balance, Skipped: true}, nil
	}

	if account.Balance < req.Amount {
		metrics.DebitRejectionsTotal.WithLabelValues("insufficient").Inc()
		return Authorization{Remaining: account.Balance}, &InsufficientCreditsError{
			Required:  req.Amount,
			Available: account.Balance,
		}
	}

	result, err := l.store.Debit(ctx, &req)
	if err != nil {
		var insufficient *InsufficientCreditsError
		if errors.As(err, &insufficient) {
			metrics.DebitRejectionsTotal.WithLabelValues("insufficient").Inc()
			return Authorization{Remaining: insufficient.Available}, err
		}
		metrics.DebitRejectionsTotal.WithLabelValues("store").Inc()
		return Authorization{}, fmt.Errorf("扣减积分: %w", err)
	}

	metrics.CreditsDebitedTotal.WithLabelValues(req.ToolName).Add(float64(req.Amount))
	l.logger.Debug("积分已扣减",
		zap.String("user_id", req.UserID),
		zap.String("tool", req.ToolName),
		zap.Int64("amount", req.Amount),
		zap.Int64("balance_after", result.BalanceAfter),
	)

	return Authorization{
		Charged:   req.Amount,
		Remaining: result.BalanceAfter,
		TxID:      result.TransactionID,
	}, nil
}

// ============ 用量记录 ============

// UsageEntry 用量记录入参
type UsageEntry struct {
	UserID           string
	ConversationID   string
	ToolName         string
	Cost             int64
	Unit             UnitKind
	PromptTokens     int
	CompletionTokens int
	DurationSeconds  float64
	Success          bool
	Detail           string
	Quantities       map[string]any
}

// RecordUsage 追加用量记录，失败只记录日志，不回滚已完成的扣费
func (l *Ledger) RecordUsage(ctx context.Context, entry UsageEntry) {
	rec := &UsageRecord{
		ID:               uuid.New().String(),
		UserID:           entry.UserID,
		ConversationID:   entry.ConversationID,
		ToolName:         entry.ToolName,
		Cost:             entry.Cost,
		Unit:             entry.Unit,
		PromptTokens:     entry.PromptTokens,
		CompletionTokens: entry.CompletionTokens,
		DurationSeconds:  entry.DurationSeconds,
		Success:          entry.Success,
		Detail:           truncate(entry.Detail, 500),
		Quantities:       entry.Quantities,
		CreatedAt:        l.now(),
	}

	if err := l.store.AppendUsage(ctx, rec); err != nil {
		metrics.UsageRecordFailuresTotal.Inc()
		l.logger.Error("写入用量记录失败",
			zap.String("user_id", entry.UserID),
			zap.String("tool", entry.ToolName),
			zap.Int64("cost", entry.Cost),
			zap.Error(err),
		)
	}
}

func truncate(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit])
}
