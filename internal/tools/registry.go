package tools

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"sync"
	"time"

	"aistudio/pkg/aiinterface"
)

var (
	ErrToolNotFound     = errors.New("工具不存在")
	ErrDuplicateTool    = errors.New("工具已注册")
	ErrInvalidTool      = errors.New("无效的工具定义")
	ErrInvalidArguments = errors.New("工具参数无效")
)

// 与 OpenAI function name 的约束一致
var toolNamePattern = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,64}$`)

// 类别默认超时
const (
	DefaultTextTimeout  = 30 * time.Second
	DefaultMediaTimeout = 5 * time.Minute
)

// ToolRegistry 工具注册表
type ToolRegistry struct {
	mu           sync.RWMutex
	tools        map[string]*ToolDefinition
	textTimeout  time.Duration
	mediaTimeout time.Duration
}

// RegistryOption 注册表选项
type RegistryOption func(*ToolRegistry)

// WithClassTimeouts 设置类别默认超时
func WithClassTimeouts(text, media time.Duration) RegistryOption {
	return func(r *ToolRegistry) {
		if text > 0 {
			r.textTimeout = text
		}
		if media > 0 {
			r.mediaTimeout = media
		}
	}
}

// NewToolRegistry 创建工具注册表
func NewToolRegistry(opts ...RegistryOption) *ToolRegistry {
	r := &ToolRegistry{
		tools:        make(map[string]*ToolDefinition),
		textTimeout:  DefaultTextTimeout,
		mediaTimeout: DefaultMediaTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register 注册工具，重名返回 ErrDuplicateTool
func (r *ToolRegistry) Register(def ToolDefinition) error {
	if def.Name == "" {
		def.Name = string(def.Kind)
	}
	if !toolNamePattern.MatchString(def.Name) {
		return fmt.Errorf("%w: 名称 %q 不合法", ErrInvalidTool, def.Name)
	}
	if def.Executor == nil {
		return fmt.Errorf("%w: %s 缺少执行器", ErrInvalidTool, def.Name)
	}
	if def.Class == "" {
		def.Class = ClassText
	}
	if def.Parameters == nil {
		def.Parameters = ObjectSchema(nil)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[def.Name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateTool, def.Name)
	}
	stored := def
	r.tools[def.Name] = &stored
	return nil
}

// MustRegister 注册失败直接 panic，用于启动阶段
func (r *ToolRegistry) MustRegister(def ToolDefinition) {
	if err := r.Register(def); err != nil {
		panic(err)
	}
}

// Resolve 按名称查找工具
func (r *ToolRegistry) Resolve(name string) (*ToolDefinition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.tools[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}
	copied := *def
	return &copied, nil
}

// TimeoutFor 返回工具的执行超时
func (r *ToolRegistry) TimeoutFor(def *ToolDefinition) time.Duration {
	if def.Timeout > 0 {
		return def.Timeout
	}
	if def.Class == ClassMedia {
		return r.mediaTimeout
	}
	return r.textTimeout
}

// List 按名称排序列出所有工具
func (r *ToolRegistry) List() []*ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]*ToolDefinition, 0, len(r.tools))
	for _, def := range r.tools {
		copied := *def
		defs = append(defs, &copied)
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

// ListByClass 按类别列出工具
func (r *ToolRegistry) ListByClass(class ToolClass) []*ToolDefinition {
	all := r.List()
	defs := make([]*ToolDefinition, 0, len(all))
	for _, def := range all {
		if def.Class == class {
			defs = append(defs, def)
		}
	}
	return defs
}

// ToModelTools 转换为 function calling 描述，按名称排序
func (r *ToolRegistry) ToModelTools() []aiinterface.Tool {
	defs := r.List()
	tools := make([]aiinterface.Tool, 0, len(defs))
	for _, def := range defs {
		tools = append(tools, aiinterface.Tool{
			Type: "function",
			Function: aiinterface.FunctionDef{
				Name:        def.Name,
				Description: def.Description,
				Parameters:  def.Parameters,
			},
		})
	}
	return tools
}

// Count 统计工具数量
func (r *ToolRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}
