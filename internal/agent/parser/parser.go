package parser

import (
	"encoding/json"
	"fmt"
)

// Parser 输出解析器接口
type Parser interface {
	// Parse 解析字符串输出
	Parse(text string) (any, error)
	// FormatInstructions 获取格式化指令（注入到 Prompt 中）
	FormatInstructions() string
}

// JSONParser JSON 对象解析器
type JSONParser struct {
	Schema any // 预期的 JSON 结构 (用于生成说明，可选)
}

// NewJSONParser 创建 JSON 解析器
func NewJSONParser(schema any) *JSONParser {
	return &JSONParser{Schema: schema}
}

// Parse 修复后严格解析为 JSON 对象
func (p *JSONParser) Parse(text string) (any, error) {
	obj, err := ParseObject(text)
	if err != nil {
		return nil, err
	}
	return obj, nil
}

// FormatInstructions 输出格式说明
func (p *JSONParser) FormatInstructions() string {
	base := "Your final answer MUST be a single valid JSON object and nothing else."
	if p.Schema != nil {
		schemaBytes, _ := json.MarshalIndent(p.Schema, "", "  ")
		base += fmt.Sprintf("\nFollow this structure:\n```json\n%s\n```", string(schemaBytes))
	}
	return base
}

// ParseObject 修复并解析 JSON 对象，数组或标量视为失败
func ParseObject(text string) (map[string]any, error) {
	cleaned := RepairJSON(text)
	var result map[string]any
	if err := json.Unmarshal([]byte(cleaned), &result); err != nil {
		return nil, fmt.Errorf("failed to parse JSON output: %w", err)
	}
	if result == nil {
		return nil, fmt.Errorf("failed to parse JSON output: not an object")
	}
	return result, nil
}
