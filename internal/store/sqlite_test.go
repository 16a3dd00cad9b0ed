package store

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swiss-ai-registry/event-processor/internal/model"
	"github.com/swiss-ai-registry/event-processor/pkg/logger"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"), logger.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func seedConversation(t *testing.T, s *SQLiteStore, id string) *model.Conversation {
	t.Helper()

	now := time.Now().UTC()
	conv := &model.Conversation{
		ID:        id,
		UserID:    "u1",
		AgentID:   "a1",
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, s.CreateConversation(context.Background(), conv))
	return conv
}

func TestNewSQLiteStore_CreatesDirectory(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "dir", "registry.db")

	s, err := NewSQLiteStore(dbPath, logger.NewNop())
	require.NoError(t, err)
	defer s.Close()

	_, err = os.Stat(dbPath)
	assert.NoError(t, err)
	assert.NoError(t, s.Ping(context.Background()))
}

func TestEvent_CreateGetAndMark(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	event := &model.ConversationEvent{
		ID:             "evt-1",
		ConversationID: "conv-1",
		Type:           model.EventTypeUserMessageCreated,
		Payload:        json.RawMessage(`{"message_id":"m1","content":"hello"}`),
		CreatedAt:      time.Now(),
	}
	require.NoError(t, s.CreateEvent(ctx, event))

	got, err := s.GetEvent(ctx, "evt-1")
	require.NoError(t, err)
	assert.Equal(t, model.EventTypeUserMessageCreated, got.Type)
	assert.Equal(t, model.EventStatusPending, got.Status)
	assert.JSONEq(t, `{"message_id":"m1","content":"hello"}`, string(got.Payload))
	assert.Nil(t, got.ProcessedAt)
	assert.Nil(t, got.ErrorMessage)

	require.NoError(t, s.MarkEventProcessed(ctx, "evt-1", nil))

	got, err = s.GetEvent(ctx, "evt-1")
	require.NoError(t, err)
	assert.Equal(t, model.EventStatusProcessed, got.Status)
	assert.NotNil(t, got.ProcessedAt)
	assert.Nil(t, got.ErrorMessage)
}

func TestMarkEventProcessed_WithError(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateEvent(ctx, &model.ConversationEvent{
		ID:             "evt-2",
		ConversationID: "conv-1",
		Type:           model.EventTypeSessionExpired,
		CreatedAt:      time.Now(),
	}))

	msg := "agent unavailable"
	require.NoError(t, s.MarkEventProcessed(ctx, "evt-2", &msg))

	got, err := s.GetEvent(ctx, "evt-2")
	require.NoError(t, err)
	assert.Equal(t, model.EventStatusFailed, got.Status)
	require.NotNil(t, got.ErrorMessage)
	assert.Equal(t, "agent unavailable", *got.ErrorMessage)
}

func TestGet_NotFound(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.GetEvent(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.GetConversation(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.GetSessionByAdkID(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, s.MarkEventProcessed(ctx, "missing", nil), ErrNotFound)
	assert.ErrorIs(t, s.UpdateConversationTotals(ctx, "missing", 5), ErrNotFound)
}

func TestConversation_SessionAndTotals(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedConversation(t, s, "conv-1")

	expires := time.Now().Add(time.Hour)
	require.NoError(t, s.SetConversationSession(ctx, "conv-1", "adk_1", expires))
	require.NoError(t, s.UpdateConversationTotals(ctx, "conv-1", 50))
	require.NoError(t, s.UpdateConversationTotals(ctx, "conv-1", 25))
	require.NoError(t, s.SetConversationStatus(ctx, "conv-1", model.ConversationStatusCompleted))

	got, err := s.GetConversation(ctx, "conv-1")
	require.NoError(t, err)
	require.NotNil(t, got.AdkSessionID)
	assert.Equal(t, "adk_1", *got.AdkSessionID)
	require.NotNil(t, got.AdkSessionExpiresAt)
	assert.True(t, got.AdkSessionExpiresAt.Equal(expires.UTC()))
	assert.Equal(t, 2, got.TotalMessages)
	assert.Equal(t, 75, got.TotalTokens)
	assert.Equal(t, model.ConversationStatusCompleted, got.Status)
}

func TestRefreshSession_Conditional(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedConversation(t, s, "conv-1")

	now := time.Now().UTC()
	session := &model.AgentSession{
		ID:             "sess-1",
		ConversationID: "conv-1",
		AdkSessionID:   "adk_1",
		Status:         model.SessionStatusActive,
		ExpiresAt:      now.Add(2 * time.Minute),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	require.NoError(t, s.CreateSession(ctx, session))

	stored, err := s.GetSessionByAdkID(ctx, "adk_1")
	require.NoError(t, err)

	newExpiry := now.Add(time.Hour)
	require.NoError(t, s.RefreshSession(ctx, "sess-1", stored.ExpiresAt, newExpiry))

	// A second refresh based on the stale read loses.
	err = s.RefreshSession(ctx, "sess-1", stored.ExpiresAt, now.Add(2*time.Hour))
	assert.ErrorIs(t, err, ErrConflict)

	got, err := s.GetSessionByAdkID(ctx, "adk_1")
	require.NoError(t, err)
	assert.True(t, got.ExpiresAt.Equal(newExpiry))
	assert.Equal(t, model.SessionStatusActive, got.Status)
}

func TestExpireActiveSessions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedConversation(t, s, "conv-1")

	now := time.Now().UTC()
	for _, id := range []string{"a", "b"} {
		require.NoError(t, s.CreateSession(ctx, &model.AgentSession{
			ID:             "sess-" + id,
			ConversationID: "conv-1",
			AdkSessionID:   "adk_" + id,
			Status:         model.SessionStatusActive,
			ExpiresAt:      now.Add(time.Hour),
			CreatedAt:      now,
			UpdatedAt:      now,
		}))
	}
	require.NoError(t, s.SetSessionStatus(ctx, "sess-b", model.SessionStatusTerminated))

	n, err := s.ExpireActiveSessions(ctx, "conv-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	a, err := s.GetSessionByAdkID(ctx, "adk_a")
	require.NoError(t, err)
	assert.Equal(t, model.SessionStatusExpired, a.Status)

	b, err := s.GetSessionByAdkID(ctx, "adk_b")
	require.NoError(t, err)
	assert.Equal(t, model.SessionStatusTerminated, b.Status)
}

func TestMessages_AppendAndList(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedConversation(t, s, "conv-1")

	base := time.Now().UTC()
	for i, content := range []string{"first", "second", "third"} {
		require.NoError(t, s.CreateMessage(ctx, &model.Message{
			ID:             content,
			ConversationID: "conv-1",
			Role:           model.RoleAssistant,
			Content:        content,
			TokensUsed:     10,
			Metadata:       json.RawMessage(`{"in_reply_to":"m1"}`),
			CreatedAt:      base.Add(time.Duration(i) * time.Millisecond),
		}))
	}

	msgs, err := s.ListMessages(ctx, "conv-1")
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, "first", msgs[0].Content)
	assert.Equal(t, "third", msgs[2].Content)
	assert.JSONEq(t, `{"in_reply_to":"m1"}`, string(msgs[1].Metadata))

	empty, err := s.ListMessages(ctx, "conv-2")
	require.NoError(t, err)
	assert.Empty(t, empty)
}
