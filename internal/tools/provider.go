package tools

import (
	"time"

	"aistudio/pkg/aiinterface"
)

// Resolver 抽象工具查找方，调度器只依赖该接口
type Resolver interface {
	Resolve(name string) (*ToolDefinition, error)
	TimeoutFor(def *ToolDefinition) time.Duration
	ToModelTools() []aiinterface.Tool
}

var _ Resolver = (*ToolRegistry)(nil)
