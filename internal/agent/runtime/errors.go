package runtime

import "errors"

// ErrorKind 单次工具调用的失败类别，作为工具消息回传给模型
type ErrorKind string

const (
	ErrorKindToolUnavailable     ErrorKind = "tool_unavailable"
	ErrorKindInvalidArguments    ErrorKind = "invalid_arguments"
	ErrorKindPricing             ErrorKind = "pricing_unavailable"
	ErrorKindInsufficientCredits ErrorKind = "insufficient_credits"
	ErrorKindBilling             ErrorKind = "billing_error"
	ErrorKindExecution           ErrorKind = "execution_error"
	ErrorKindToolFailure         ErrorKind = "tool_failure"
)

// FailureKind 整轮对话的终止原因
type FailureKind string

const (
	FailureNone           FailureKind = ""
	FailureModelCall      FailureKind = "model_call_error"
	FailureMaxRounds      FailureKind = "max_rounds_exceeded"
	FailureTurnTimeout    FailureKind = "turn_timeout"
	FailureCancelled      FailureKind = "cancelled"
	FailureInvalidRequest FailureKind = "invalid_request"
)

var (
	ErrToolTimeout     = errors.New("工具执行超时")
	ErrToolPanic       = errors.New("工具执行崩溃")
	ErrMaxRounds       = errors.New("超过最大模型调用轮次")
	ErrEmptyModelReply = errors.New("模型返回空响应")
)
