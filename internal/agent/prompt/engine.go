package prompt

import (
	"context"
	"sync"
	"text/template"
)

// Engine Prompt 模板引擎，缓存解析后的模板
type Engine struct {
	loader Loader
	cache  map[string]*template.Template
	mu     sync.RWMutex
}

// NewEngine 创建模板引擎
func NewEngine(loader Loader) *Engine {
	return &Engine{
		loader: loader,
		cache:  make(map[string]*template.Template),
	}
}

// Render 加载并渲染模板
func (e *Engine) Render(ctx context.Context, templateID string, vars any) (string, error) {
	e.mu.RLock()
	tmpl, ok := e.cache[templateID]
	e.mu.RUnlock()

	if !ok {
		t, err := e.loader.Load(ctx, templateID)
		if err != nil {
			return "", err
		}
		tmpl, err = t.Compile()
		if err != nil {
			return "", err
		}

		e.mu.Lock()
		e.cache[templateID] = tmpl
		e.mu.Unlock()
	}

	return execute(tmpl, vars)
}

// ClearCache 清理缓存，templateID 为空时清空全部
func (e *Engine) ClearCache(templateID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if templateID == "" {
		e.cache = make(map[string]*template.Template)
	} else {
		delete(e.cache, templateID)
	}
}
