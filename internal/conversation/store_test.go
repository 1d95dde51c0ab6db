package conversation

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"aistudio/pkg/aiinterface"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupConversationTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:conversation_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(Models()...))
	return db
}

func TestStoreAppendAndGet(t *testing.T) {
	ctx := context.Background()
	store := NewStore(setupConversationTestDB(t))

	require.NoError(t, store.AppendMessages(ctx,
		&Message{ConversationID: "c1", UserID: "u1", Role: aiinterface.RoleUser, Content: "draw a cat"},
		&Message{ConversationID: "c1", UserID: "u1", Role: aiinterface.RoleAssistant, Content: `{"message":"done"}`},
	))
	require.NoError(t, store.AppendMessages(ctx,
		&Message{ConversationID: "c1", UserID: "u1", Role: aiinterface.RoleUser, Content: "now a dog"},
	))

	msgs, err := store.GetMessages(ctx, "u1", "c1", 0)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, "draw a cat", msgs[0].Content)
	assert.Equal(t, aiinterface.RoleAssistant, msgs[1].Role)
	assert.Equal(t, "now a dog", msgs[2].Content)

	// limit 取最近的消息，仍按时间正序
	msgs, err = store.GetMessages(ctx, "u1", "c1", 2)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, `{"message":"done"}`, msgs[0].Content)
	assert.Equal(t, "now a dog", msgs[1].Content)
}

func TestStoreIsolatesUsers(t *testing.T) {
	ctx := context.Background()
	store := NewStore(setupConversationTestDB(t))
	require.NoError(t, store.AppendMessages(ctx,
		&Message{ConversationID: "c1", UserID: "u1", Role: aiinterface.RoleUser, Content: "secret"},
	))

	msgs, err := store.GetMessages(ctx, "u2", "c1", 0)
	require.NoError(t, err)
	assert.Empty(t, msgs)

	msgs, err = store.GetMessages(ctx, "u1", "", 0)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestStoreRejectsMixedBatch(t *testing.T) {
	store := NewStore(setupConversationTestDB(t))
	err := store.AppendMessages(context.Background(),
		&Message{ConversationID: "c1", UserID: "u1", Role: aiinterface.RoleUser, Content: "a"},
		&Message{ConversationID: "c2", UserID: "u1", Role: aiinterface.RoleUser, Content: "b"},
	)
	assert.Error(t, err)
}

func TestListConversations(t *testing.T) {
	ctx := context.Background()
	store := NewStore(setupConversationTestDB(t))
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, store.AppendMessages(ctx, &Message{ConversationID: "old", UserID: "u1", Role: "user", Content: "x", CreatedAt: base}))
	require.NoError(t, store.AppendMessages(ctx, &Message{ConversationID: "new", UserID: "u1", Role: "user", Content: "y", CreatedAt: base.Add(time.Hour)}))
	require.NoError(t, store.AppendMessages(ctx, &Message{ConversationID: "other", UserID: "u2", Role: "user", Content: "z", CreatedAt: base}))

	ids, err := store.ListConversations(ctx, "u1", 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"new", "old"}, ids)
}

func TestTrimByTokens(t *testing.T) {
	counter := RuneCounter{}
	// 每条 30 个字符 => 10 + 4 = 14
	line := strings.Repeat("a", 30)
	msgs := []aiinterface.Message{
		{Role: aiinterface.RoleSystem, Content: line},
		{Role: aiinterface.RoleUser, Content: line},
		{Role: aiinterface.RoleAssistant, Content: line},
		{Role: aiinterface.RoleUser, Content: line},
	}
	require.Equal(t, 56, CountMessages(msgs, counter))

	t.Run("within budget", func(t *testing.T) {
		assert.Equal(t, msgs, TrimByTokens(msgs, 56, counter))
		assert.Equal(t, msgs, TrimByTokens(msgs, 0, counter))
	})

	t.Run("drops oldest and keeps system", func(t *testing.T) {
		out := TrimByTokens(msgs, 42, counter)
		require.Len(t, out, 3)
		assert.Equal(t, aiinterface.RoleSystem, out[0].Role)
		assert.Equal(t, aiinterface.RoleAssistant, out[1].Role)
		assert.Equal(t, aiinterface.RoleUser, out[2].Role)
	})

	t.Run("nothing fits", func(t *testing.T) {
		out := TrimByTokens(msgs, 5, counter)
		require.Len(t, out, 1)
		assert.Equal(t, msgs[3], out[0])
	})

	t.Run("no system message", func(t *testing.T) {
		out := TrimByTokens(msgs[1:], 28, counter)
		assert.Equal(t, msgs[2:], out)
	})
}

func TestRuneCounter(t *testing.T) {
	c := RuneCounter{}
	assert.Equal(t, 0, c.Count(""))
	assert.Equal(t, 1, c.Count("ab"))
	assert.Equal(t, 2, c.Count("你好世界"))
}
