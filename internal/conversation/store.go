package conversation

import (
	"context"
	"fmt"
	"time"

	"aistudio/pkg/aiinterface"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Message 会话消息，只追加
type Message struct {
	ID             string            `gorm:"type:varchar(36);primaryKey" json:"id"`
	ConversationID string            `gorm:"type:varchar(64);not null;index:idx_conv_msg_order,priority:1" json:"conversationId"`
	UserID         string            `gorm:"type:varchar(64);not null;index" json:"userId"`
	Seq            int64             `gorm:"not null;index:idx_conv_msg_order,priority:2" json:"seq"`
	Role           string            `gorm:"type:varchar(20);not null" json:"role"`
	Content        string            `gorm:"type:text" json:"content"`
	Metadata       datatypes.JSONMap `gorm:"type:jsonb" json:"metadata,omitempty"`
	CreatedAt      time.Time         `json:"createdAt"`
}

// TableName 指定表名
func (Message) TableName() string {
	return "conversation_messages"
}

// BeforeCreate GORM 钩子：创建前设置 ID
func (m *Message) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	return nil
}

// Store 基于 gorm 的会话存储
type Store struct {
	db  *gorm.DB
	now func() time.Time
}

// NewStore 创建会话存储
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// Models 需要迁移的表
func Models() []any {
	return []any{&Message{}}
}

// GetMessages 按时间顺序返回会话最近 limit 条消息，limit <= 0 表示全部。
// 只返回属于 userID 的消息。
func (s *Store) GetMessages(ctx context.Context, userID, conversationID string, limit int) ([]aiinterface.Message, error) {
	if conversationID == "" {
		return nil, nil
	}
	var rows []Message
	q := s.db.WithContext(ctx).
		Where("conversation_id = ? AND user_id = ?", conversationID, userID).
		Order("seq DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("查询会话消息失败: %w", err)
	}

	out := make([]aiinterface.Message, len(rows))
	for i, row := range rows {
		out[len(rows)-1-i] = aiinterface.Message{Role: row.Role, Content: row.Content}
	}
	return out, nil
}

// AppendMessages 追加消息，保持传入顺序
func (s *Store) AppendMessages(ctx context.Context, msgs ...*Message) error {
	if len(msgs) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var last struct{ Max int64 }
		if err := tx.Model(&Message{}).
			Select("COALESCE(MAX(seq), 0) AS max").
			Where("conversation_id = ?", msgs[0].ConversationID).
			Scan(&last).Error; err != nil {
			return fmt.Errorf("读取消息序号失败: %w", err)
		}

		now := s.now()
		for i, m := range msgs {
			if m.ConversationID != msgs[0].ConversationID {
				return fmt.Errorf("同一批消息必须属于同一会话")
			}
			m.Seq = last.Max + int64(i) + 1
			if m.CreatedAt.IsZero() {
				m.CreatedAt = now
			}
		}
		if err := tx.Create(&msgs).Error; err != nil {
			return fmt.Errorf("写入会话消息失败: %w", err)
		}
		return nil
	})
}

// ListConversations 返回用户的会话 ID，最近活跃的在前
func (s *Store) ListConversations(ctx context.Context, userID string, limit int) ([]string, error) {
	var ids []string
	q := s.db.WithContext(ctx).Model(&Message{}).
		Select("conversation_id").
		Where("user_id = ?", userID).
		Group("conversation_id").
		Order("MAX(created_at) DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Pluck("conversation_id", &ids).Error; err != nil {
		return nil, fmt.Errorf("查询会话列表失败: %w", err)
	}
	return ids, nil
}
