package conversation

import (
	"sync"
	"unicode/utf8"

	"aistudio/pkg/aiinterface"

	"github.com/pkoukk/tiktoken-go"
)

// 每条消息的角色等固定开销
const messageOverhead = 4

// TokenCounter 计算文本 Token 数
type TokenCounter interface {
	Count(text string) int
}

// RuneCounter 按字符数估算 Token，约 3 个字符 1 个 Token
type RuneCounter struct{}

// Count 实现 TokenCounter
func (RuneCounter) Count(text string) int {
	n := utf8.RuneCountInString(text)
	if n == 0 {
		return 0
	}
	return (n + 2) / 3
}

// TiktokenCounter 基于 tiktoken 的计数器，编码表加载失败时退化为 RuneCounter
type TiktokenCounter struct {
	model string
	once  sync.Once
	tkm   *tiktoken.Tiktoken
}

// NewTiktokenCounter 创建计数器，编码表在首次使用时加载
func NewTiktokenCounter(model string) *TiktokenCounter {
	if model == "" {
		model = "gpt-4o-mini"
	}
	return &TiktokenCounter{model: model}
}

// Count 实现 TokenCounter
func (c *TiktokenCounter) Count(text string) int {
	c.once.Do(func() {
		tkm, err := tiktoken.EncodingForModel(c.model)
		if err != nil {
			// 未识别的模型回退到 cl100k_base
			tkm, err = tiktoken.GetEncoding("cl100k_base")
		}
		if err == nil {
			c.tkm = tkm
		}
	})
	if c.tkm == nil {
		return RuneCounter{}.Count(text)
	}
	return len(c.tkm.Encode(text, nil, nil))
}

// CountMessages 消息列表 Token 总数
func CountMessages(msgs []aiinterface.Message, counter TokenCounter) int {
	total := 0
	for _, m := range msgs {
		total += counter.Count(m.Content) + messageOverhead
	}
	return total
}

// TrimByTokens 从最旧的消息开始丢弃，直到总量不超过 budget。
// 开头的 system 消息始终保留；budget <= 0 不截断；
// 一条都放不下时只保留最后一条。
func TrimByTokens(msgs []aiinterface.Message, budget int, counter TokenCounter) []aiinterface.Message {
	if budget <= 0 || len(msgs) == 0 {
		return msgs
	}
	if counter == nil {
		counter = RuneCounter{}
	}

	costs := make([]int, len(msgs))
	total := 0
	for i, m := range msgs {
		costs[i] = counter.Count(m.Content) + messageOverhead
		total += costs[i]
	}
	if total <= budget {
		return msgs
	}

	start := 0
	used := 0
	if msgs[0].Role == aiinterface.RoleSystem {
		start = 1
		used = costs[0]
	}

	// 从后往前累加
	first := len(msgs)
	for i := len(msgs) - 1; i >= start; i-- {
		if used+costs[i] > budget {
			break
		}
		used += costs[i]
		first = i
	}

	kept := make([]aiinterface.Message, 0, len(msgs)-first+start)
	if start == 1 {
		kept = append(kept, msgs[0])
	}
	kept = append(kept, msgs[first:]...)

	if len(kept) == start {
		return []aiinterface.Message{msgs[len(msgs)-1]}
	}
	return kept
}
