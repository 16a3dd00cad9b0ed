package processor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swiss-ai-registry/event-processor/internal/model"
	"github.com/swiss-ai-registry/event-processor/internal/store"
)

// seedSession stores a session on conv expiring at expiresAt.
func seedSession(t *testing.T, st store.Store, conv *model.Conversation, adkID string, status model.SessionStatus, expiresAt time.Time) {
	t.Helper()
	ctx := context.Background()

	now := time.Now().UTC()
	require.NoError(t, st.CreateSession(ctx, &model.AgentSession{
		ID:             "row-" + adkID,
		ConversationID: conv.ID,
		AdkSessionID:   adkID,
		Status:         status,
		ExpiresAt:      expiresAt,
		CreatedAt:      now,
		UpdatedAt:      now,
	}))
	require.NoError(t, st.SetConversationSession(ctx, conv.ID, adkID, expiresAt))

	conv.AdkSessionID = &adkID
	conv.AdkSessionExpiresAt = &expiresAt
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestEnsureActiveSession_ReusesFreshSession(t *testing.T) {
	st := newTestStore(t)
	now := time.Now().UTC()
	ag := &recordingAgent{}
	p := newTestProcessor(t, st, ag, Options{Now: fixedClock(now)})
	ctx := context.Background()

	conv := seedConversation(t, st, "conv-1")
	expiresAt := now.Add(30 * time.Minute)
	seedSession(t, st, conv, "adk_fresh", model.SessionStatusActive, expiresAt)

	session, err := p.EnsureActiveSession(ctx, conv)
	require.NoError(t, err)
	assert.Equal(t, "adk_fresh", session.AdkSessionID)
	assert.True(t, session.ExpiresAt.Equal(expiresAt))
	assert.Empty(t, ag.created)

	stored, err := st.GetSessionByAdkID(ctx, "adk_fresh")
	require.NoError(t, err)
	assert.True(t, stored.ExpiresAt.Equal(expiresAt), "reuse must not write a new expiry")
}

func TestEnsureActiveSession_RefreshesNearExpiry(t *testing.T) {
	st := newTestStore(t)
	now := time.Now().UTC()
	ag := &recordingAgent{}
	p := newTestProcessor(t, st, ag, Options{Now: fixedClock(now)})
	ctx := context.Background()

	conv := seedConversation(t, st, "conv-1")
	original := now.Add(2 * time.Minute)
	seedSession(t, st, conv, "adk_stale", model.SessionStatusActive, original)

	session, err := p.EnsureActiveSession(ctx, conv)
	require.NoError(t, err)
	assert.Equal(t, "adk_stale", session.AdkSessionID)
	assert.True(t, session.ExpiresAt.After(original))
	assert.True(t, session.ExpiresAt.Equal(now.Add(time.Hour)))
	assert.Empty(t, ag.created)

	stored, err := st.GetSessionByAdkID(ctx, "adk_stale")
	require.NoError(t, err)
	assert.True(t, stored.ExpiresAt.Equal(session.ExpiresAt))

	reloaded, err := st.GetConversation(ctx, "conv-1")
	require.NoError(t, err)
	require.NotNil(t, reloaded.AdkSessionExpiresAt)
	assert.True(t, reloaded.AdkSessionExpiresAt.Equal(session.ExpiresAt))
}

func TestEnsureActiveSession_RefreshesExpiredStatus(t *testing.T) {
	st := newTestStore(t)
	now := time.Now().UTC()
	p := newTestProcessor(t, st, &recordingAgent{}, Options{Now: fixedClock(now)})
	ctx := context.Background()

	conv := seedConversation(t, st, "conv-1")
	seedSession(t, st, conv, "adk_old", model.SessionStatusExpired, now.Add(-10*time.Minute))

	session, err := p.EnsureActiveSession(ctx, conv)
	require.NoError(t, err)
	assert.Equal(t, "adk_old", session.AdkSessionID)
	assert.Equal(t, model.SessionStatusActive, session.Status)

	stored, err := st.GetSessionByAdkID(ctx, "adk_old")
	require.NoError(t, err)
	assert.Equal(t, model.SessionStatusActive, stored.Status)
}

func TestEnsureActiveSession_CreatesWhenMissing(t *testing.T) {
	st := newTestStore(t)
	ag := &recordingAgent{}
	p := newTestProcessor(t, st, ag, Options{})
	ctx := context.Background()

	conv := seedConversation(t, st, "conv-1")

	session, err := p.EnsureActiveSession(ctx, conv)
	require.NoError(t, err)
	require.Len(t, ag.created, 1)
	assert.Equal(t, ag.created[0], session.AdkSessionID)
	require.NotNil(t, conv.AdkSessionID)
	assert.Equal(t, session.AdkSessionID, *conv.AdkSessionID)
}

func TestEnsureActiveSession_ReplacesTerminated(t *testing.T) {
	st := newTestStore(t)
	ag := &recordingAgent{}
	p := newTestProcessor(t, st, ag, Options{})
	ctx := context.Background()

	conv := seedConversation(t, st, "conv-1")
	seedSession(t, st, conv, "adk_done", model.SessionStatusTerminated, time.Now().Add(time.Hour))

	session, err := p.EnsureActiveSession(ctx, conv)
	require.NoError(t, err)
	assert.NotEqual(t, "adk_done", session.AdkSessionID)
	assert.Len(t, ag.created, 1)
}

func TestEnsureActiveSession_DanglingSessionID(t *testing.T) {
	st := newTestStore(t)
	ag := &recordingAgent{}
	p := newTestProcessor(t, st, ag, Options{})
	ctx := context.Background()

	conv := seedConversation(t, st, "conv-1")
	require.NoError(t, st.SetConversationSession(ctx, conv.ID, "adk_unknown", time.Now().Add(time.Hour)))
	dangling := "adk_unknown"
	conv.AdkSessionID = &dangling

	session, err := p.EnsureActiveSession(ctx, conv)
	require.NoError(t, err)
	assert.NotEqual(t, "adk_unknown", session.AdkSessionID)
	assert.Len(t, ag.created, 1)
}

// racingStore lets another writer refresh the session between the read and
// the conditional update.
type racingStore struct {
	*store.SQLiteStore
	winnerExpiry time.Time
}

func (s *racingStore) RefreshSession(ctx context.Context, id string, prev, next time.Time) error {
	if err := s.SQLiteStore.RefreshSession(ctx, id, prev, s.winnerExpiry); err != nil {
		return err
	}
	return s.SQLiteStore.RefreshSession(ctx, id, prev, next)
}

func TestEnsureActiveSession_ConcurrentRefreshUsesWinner(t *testing.T) {
	base := newTestStore(t)
	now := time.Now().UTC()
	winner := now.Add(90 * time.Minute)
	st := &racingStore{SQLiteStore: base, winnerExpiry: winner}
	ag := &recordingAgent{}
	p := newTestProcessor(t, st, ag, Options{Now: fixedClock(now)})
	ctx := context.Background()

	conv := seedConversation(t, st, "conv-1")
	seedSession(t, st, conv, "adk_race", model.SessionStatusActive, now.Add(time.Minute))

	session, err := p.EnsureActiveSession(ctx, conv)
	require.NoError(t, err)
	assert.Equal(t, "adk_race", session.AdkSessionID)
	assert.True(t, session.ExpiresAt.Equal(winner))
	assert.Empty(t, ag.created)
}
