package runtime

import (
	"encoding/json"
	"time"

	"aistudio/pkg/aiinterface"
)

// ToolResult 一次工具调用的结果
type ToolResult struct {
	CallID    string        `json:"callId"`
	ToolName  string        `json:"toolName"`
	Round     int           `json:"round"`
	Success   bool          `json:"success"`
	Output    any           `json:"output,omitempty"`
	URL       string        `json:"url,omitempty"`
	Code      string        `json:"code,omitempty"`
	ErrorKind ErrorKind     `json:"errorKind,omitempty"`
	Error     string        `json:"error,omitempty"`
	Cost      int64         `json:"cost"`
	Required  int64         `json:"required,omitempty"`
	Available int64         `json:"available,omitempty"`
	Duration  time.Duration `json:"duration"`
}

// Content 回传给模型的 JSON 文本。
// 只包含模型需要的字段，不含耗时，同样的结果总是得到同样的文本。
func (r ToolResult) Content() string {
	payload := map[string]any{"success": r.Success}
	if r.Success {
		if r.Output != nil {
			payload["output"] = r.Output
		}
		if r.URL != "" {
			payload["url"] = r.URL
		}
		if r.Code != "" {
			payload["code"] = r.Code
		}
		payload["credits_charged"] = r.Cost
	} else {
		payload["error_kind"] = string(r.ErrorKind)
		payload["error"] = r.Error
		if r.ErrorKind == ErrorKindInsufficientCredits {
			payload["required_credits"] = r.Required
			payload["available_credits"] = r.Available
		}
		if r.Cost > 0 {
			payload["credits_charged"] = r.Cost
		}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		// Output 无法序列化时只保留状态
		data, _ = json.Marshal(map[string]any{"success": r.Success, "error": err.Error()})
	}
	return string(data)
}

// Message 转为 role=tool 的消息
func (r ToolResult) Message() aiinterface.Message {
	return aiinterface.Message{
		Role:       aiinterface.RoleTool,
		Name:       r.ToolName,
		ToolCallID: r.CallID,
		Content:    r.Content(),
	}
}
