package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// API 指标
var (
	// APIRequestsTotal API 请求总数
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aistudio_api_requests_total",
			Help: "API 请求总数",
		},
		[]string{"method", "path", "status"},
	)

	// APIRequestDuration API 请求延迟（秒）
	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "aistudio_api_request_duration_seconds",
			Help:    "API 请求延迟分布",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 180, 300},
		},
		[]string{"method", "path"},
	)
)

// 对话轮次指标
var (
	// TurnsTotal 对话轮次总数，status: ok, model_call_error, max_rounds_exceeded, turn_timeout, cancelled
	TurnsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aistudio_turns_total",
			Help: "对话轮次总数",
		},
		[]string{"status"},
	)

	// TurnDuration 单轮耗时（秒）
	TurnDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "aistudio_turn_duration_seconds",
			Help:    "单轮对话耗时分布",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		},
	)

	// TurnRounds 单轮内模型往返次数
	TurnRounds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "aistudio_turn_model_rounds",
			Help:    "单轮对话内模型调用次数",
			Buckets: []float64{1, 2, 3, 4, 6, 8, 12, 16},
		},
	)

	// ModelTokensTotal 模型 Token 消耗，type: prompt, completion
	ModelTokensTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aistudio_model_tokens_total",
			Help: "模型 Token 消耗总数",
		},
		[]string{"type"},
	)

	// ModelCallsTotal 模型调用次数，status: success, error
	ModelCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aistudio_model_calls_total",
			Help: "模型调用总数",
		},
		[]string{"provider", "status"},
	)

	// ModelCallDuration 模型调用延迟（秒）
	ModelCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "aistudio_model_call_duration_seconds",
			Help:    "模型调用延迟分布",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"provider"},
	)
)

// 工具调用指标
var (
	// ToolCallsTotal 工具调用总数，status: success 或错误类别
	ToolCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aistudio_tool_calls_total",
			Help: "工具调用总数",
		},
		[]string{"tool", "status"},
	)

	// ToolCallDuration 工具执行耗时（秒）
	ToolCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "aistudio_tool_call_duration_seconds",
			Help:    "工具执行耗时分布",
			Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300},
		},
		[]string{"tool"},
	)
)

// 积分指标
var (
	// CreditsDebitedTotal 扣除积分总数
	CreditsDebitedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aistudio_credits_debited_total",
			Help: "扣除积分总数",
		},
		[]string{"tool"},
	)

	// DebitRejectionsTotal 扣费被拒次数，reason: insufficient_credits, account_error, lock_timeout
	DebitRejectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aistudio_debit_rejections_total",
			Help: "扣费被拒次数",
		},
		[]string{"reason"},
	)

	// UsageRecordFailuresTotal 用量记录写入失败次数
	UsageRecordFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "aistudio_usage_record_failures_total",
			Help: "用量记录写入失败次数",
		},
	)
)
