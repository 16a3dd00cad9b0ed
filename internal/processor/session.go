package processor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/swiss-ai-registry/event-processor/internal/model"
	"github.com/swiss-ai-registry/event-processor/internal/store"
	"github.com/swiss-ai-registry/event-processor/pkg/metrics"
)

// EnsureActiveSession returns a session of conv that is safe to use now.
//
// An active session with more than the refresh margin left is reused as is.
// A session closer to (or past) its expiry is refreshed to a full TTL and
// keeps its adk session id. A conversation without a usable session gets a
// new one from the agent.
func (p *Processor) EnsureActiveSession(ctx context.Context, conv *model.Conversation) (*model.AgentSession, error) {
	now := p.now()

	var session *model.AgentSession
	if conv.AdkSessionID != nil {
		s, err := p.store.GetSessionByAdkID(ctx, *conv.AdkSessionID)
		switch {
		case err == nil:
			session = s
		case !errors.Is(err, store.ErrNotFound):
			return nil, fmt.Errorf("failed to load session: %w", err)
		}
	}

	if session == nil || session.Status == model.SessionStatusTerminated {
		return p.openSession(ctx, conv)
	}

	if session.Status == model.SessionStatusActive && session.Remaining(now) > p.refreshMargin {
		metrics.RecordSession("reused")
		return session, nil
	}

	return p.refreshSession(ctx, conv, session, now)
}

// refreshSession extends the lease with a conditional update on the expiry
// that was read. If another caller refreshed first, its lease is used.
func (p *Processor) refreshSession(ctx context.Context, conv *model.Conversation, session *model.AgentSession, now time.Time) (*model.AgentSession, error) {
	expiresAt := now.Add(p.sessionTTL)

	err := p.store.RefreshSession(ctx, session.ID, session.ExpiresAt, expiresAt)
	if errors.Is(err, store.ErrConflict) {
		current, err := p.store.GetSessionByAdkID(ctx, session.AdkSessionID)
		if err != nil {
			return nil, fmt.Errorf("failed to reload session: %w", err)
		}
		if current.Status != model.SessionStatusActive || current.Remaining(now) <= 0 {
			return nil, fmt.Errorf("session %s changed concurrently and is no longer active", session.AdkSessionID)
		}
		p.logger.Info("session refreshed concurrently, using current lease",
			zap.String("adk_session_id", current.AdkSessionID),
		)
		metrics.RecordSession("reused")
		return current, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to refresh session: %w", err)
	}

	if err := p.store.SetConversationSession(ctx, conv.ID, session.AdkSessionID, expiresAt); err != nil {
		return nil, fmt.Errorf("failed to store refreshed expiry: %w", err)
	}

	refreshed := *session
	refreshed.ExpiresAt = expiresAt
	refreshed.Status = model.SessionStatusActive
	refreshed.UpdatedAt = now
	conv.AdkSessionExpiresAt = &refreshed.ExpiresAt

	p.logger.Debug("session refreshed",
		zap.String("adk_session_id", refreshed.AdkSessionID),
		zap.Time("expires_at", expiresAt),
	)
	metrics.RecordSession("refreshed")
	return &refreshed, nil
}
