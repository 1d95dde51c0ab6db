package parser

import (
	"strings"
)

// RepairJSON 尝试修复模型输出中常见的 JSON 格式问题
// 1. 移除 Markdown 代码块标记 (```json ... ```)，包括代码块前后夹带的说明文字
// 2. 仍不是对象时，截取第一个 '{' 到最后一个 '}' 之间的内容
// 3. 移除首尾空白字符
func RepairJSON(input string) string {
	cleaned := strings.TrimSpace(input)
	if cleaned == "" {
		return cleaned
	}

	if body, _, ok := extractFence(cleaned); ok {
		cleaned = strings.TrimSpace(body)
	}

	if !strings.HasPrefix(cleaned, "{") && !strings.HasPrefix(cleaned, "[") {
		start := strings.Index(cleaned, "{")
		end := strings.LastIndex(cleaned, "}")
		if start >= 0 && end > start {
			cleaned = cleaned[start : end+1]
		}
	}
	return strings.TrimSpace(cleaned)
}

// StripCodeFence 返回第一个代码块的内容与语言标记；没有代码块时原样返回
func StripCodeFence(input string) (code, lang string) {
	trimmed := strings.TrimSpace(input)
	if body, language, ok := extractFence(trimmed); ok {
		return strings.Trim(body, "\n"), language
	}
	return trimmed, ""
}

func extractFence(s string) (body, lang string, ok bool) {
	open := strings.Index(s, "```")
	if open < 0 {
		return "", "", false
	}
	rest := s[open+3:]
	newline := strings.Index(rest, "\n")
	if newline < 0 {
		return "", "", false
	}
	lang = strings.TrimSpace(rest[:newline])
	rest = rest[newline+1:]

	closing := strings.LastIndex(rest, "```")
	if closing < 0 {
		// 未闭合的代码块按到结尾处理
		return rest, lang, true
	}
	return rest[:closing], lang, true
}
