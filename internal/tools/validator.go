package tools

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

// ValidationError 参数校验失败
type ValidationError struct {
	Tool     string
	Problems []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("工具 %s 参数校验失败: %s", e.Tool, strings.Join(e.Problems, "; "))
}

// Unwrap 使 errors.Is(err, ErrInvalidArguments) 成立
func (e *ValidationError) Unwrap() error { return ErrInvalidArguments }

// SchemaValidator 基于 JSON Schema 校验工具参数，编译结果按工具缓存，可并发使用
type SchemaValidator struct {
	mu    sync.RWMutex
	cache map[string]*gojsonschema.Schema
}

// NewSchemaValidator 创建校验器
func NewSchemaValidator() *SchemaValidator {
	return &SchemaValidator{cache: make(map[string]*gojsonschema.Schema)}
}

// Validate 校验参数，Schema 为空时直接通过
func (v *SchemaValidator) Validate(def *ToolDefinition, args json.RawMessage) error {
	if len(def.Parameters) == 0 {
		return nil
	}
	schema, err := v.schemaFor(def)
	if err != nil {
		return fmt.Errorf("工具 %s 的参数 Schema 无效: %w", def.Name, err)
	}
	if len(args) == 0 {
		args = json.RawMessage("{}")
	}

	result, err := schema.Validate(gojsonschema.NewBytesLoader(args))
	if err != nil {
		return &ValidationError{Tool: def.Name, Problems: []string{err.Error()}}
	}
	if result.Valid() {
		return nil
	}

	problems := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		problems = append(problems, desc.String())
	}
	return &ValidationError{Tool: def.Name, Problems: problems}
}

func (v *SchemaValidator) schemaFor(def *ToolDefinition) (*gojsonschema.Schema, error) {
	raw, err := json.Marshal(def.Parameters)
	if err != nil {
		return nil, err
	}
	key := def.Name + "\x00" + string(raw)

	v.mu.RLock()
	schema, ok := v.cache[key]
	v.mu.RUnlock()
	if ok {
		return schema, nil
	}

	schema, err = gojsonschema.NewSchema(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return nil, err
	}
	v.mu.Lock()
	v.cache[key] = schema
	v.mu.Unlock()
	return schema, nil
}
