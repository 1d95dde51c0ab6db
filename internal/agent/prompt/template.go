package prompt

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"text/template"
)

// Template Prompt 模板
type Template struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Content     string `json:"content"` // Go text/template 格式
	Version     string `json:"version"`
}

// Compile 解析模板，缺失变量视为错误
func (t *Template) Compile() (*template.Template, error) {
	tmpl, err := template.New(t.Name).Option("missingkey=error").Parse(t.Content)
	if err != nil {
		return nil, fmt.Errorf("failed to parse template %s: %w", t.ID, err)
	}
	return tmpl, nil
}

// Render 渲染模板
func (t *Template) Render(vars any) (string, error) {
	tmpl, err := t.Compile()
	if err != nil {
		return "", err
	}
	return execute(tmpl, vars)
}

func execute(tmpl *template.Template, vars any) (string, error) {
	var buf strings.Builder
	if err := tmpl.Execute(&buf, vars); err != nil {
		return "", fmt.Errorf("failed to execute template: %w", err)
	}
	return buf.String(), nil
}

// Loader 模板加载器接口
type Loader interface {
	// Load 加载指定 ID 的模板
	Load(ctx context.Context, id string) (*Template, error)
}

// InMemoryLoader 内存模板加载器
type InMemoryLoader struct {
	mu        sync.RWMutex
	templates map[string]*Template
}

func NewInMemoryLoader(templates ...*Template) *InMemoryLoader {
	l := &InMemoryLoader{templates: make(map[string]*Template)}
	for _, t := range templates {
		l.Register(t)
	}
	return l
}

func (l *InMemoryLoader) Register(tmpl *Template) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.templates[tmpl.ID] = tmpl
}

func (l *InMemoryLoader) Load(ctx context.Context, id string) (*Template, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	t, ok := l.templates[id]
	if !ok {
		return nil, fmt.Errorf("template not found: %s", id)
	}
	return t, nil
}
