package processor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/swiss-ai-registry/event-processor/internal/agent"
	"github.com/swiss-ai-registry/event-processor/internal/model"
	"github.com/swiss-ai-registry/event-processor/internal/store"
	"github.com/swiss-ai-registry/event-processor/pkg/logger"
	"github.com/swiss-ai-registry/event-processor/pkg/metrics"
)

// handleUserMessage answers a user message through the agent and stores the
// reply as an assistant message.
func (p *Processor) handleUserMessage(ctx context.Context, event *model.ConversationEvent, log *logger.Logger) error {
	start := time.Now()

	var payload model.UserMessagePayload
	if err := decodePayload(event.Payload, &payload); err != nil {
		return err
	}
	if payload.Content == "" {
		return errors.New("message content is required")
	}

	conv, err := p.store.GetConversation(ctx, event.ConversationID)
	if err != nil {
		return fmt.Errorf("failed to load conversation: %w", err)
	}

	session, err := p.EnsureActiveSession(ctx, conv)
	if err != nil {
		return fmt.Errorf("failed to ensure session: %w", err)
	}

	agentCtx, cancel := context.WithTimeout(ctx, p.agentTimeout)
	reply, err := p.agent.SendMessage(agentCtx, session.AdkSessionID, payload.Content)
	cancel()
	if err != nil {
		return fmt.Errorf("agent call failed: %w", err)
	}

	metadata, err := json.Marshal(map[string]string{
		"in_reply_to": payload.MessageID,
		"event_id":    event.ID,
		"model":       reply.Model,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal message metadata: %w", err)
	}

	msg := &model.Message{
		ID:               uuid.Must(uuid.NewV7()).String(),
		ConversationID:   conv.ID,
		Role:             model.RoleAssistant,
		Content:          reply.Content,
		TokensUsed:       reply.TokensUsed,
		ProcessingTimeMs: time.Since(start).Milliseconds(),
		Metadata:         metadata,
		CreatedAt:        p.now(),
	}
	if err := p.store.CreateMessage(ctx, msg); err != nil {
		return fmt.Errorf("failed to store reply: %w", err)
	}

	if err := p.store.UpdateConversationTotals(ctx, conv.ID, reply.TokensUsed); err != nil {
		return fmt.Errorf("failed to update conversation totals: %w", err)
	}
	metrics.RecordTokens(reply.TokensUsed)

	log.Info("assistant reply stored",
		zap.String("message_id", msg.ID),
		zap.String("adk_session_id", session.AdkSessionID),
		zap.Int("tokens", reply.TokensUsed),
	)
	return nil
}

// handleConversationStarted opens a fresh agent session for the conversation.
func (p *Processor) handleConversationStarted(ctx context.Context, event *model.ConversationEvent, log *logger.Logger) error {
	var payload model.ConversationStartedPayload
	if err := decodePayload(event.Payload, &payload); err != nil {
		return err
	}

	conv, err := p.store.GetConversation(ctx, event.ConversationID)
	if errors.Is(err, store.ErrNotFound) {
		conv, err = p.createConversation(ctx, event.ConversationID, payload)
	}
	if err != nil {
		return fmt.Errorf("failed to load conversation: %w", err)
	}

	if n, err := p.store.ExpireActiveSessions(ctx, conv.ID); err != nil {
		return fmt.Errorf("failed to expire previous sessions: %w", err)
	} else if n > 0 {
		log.Info("expired previous sessions", zap.Int64("count", n))
	}

	session, err := p.openSession(ctx, conv)
	if err != nil {
		return err
	}

	log.Info("agent session started",
		zap.String("adk_session_id", session.AdkSessionID),
		zap.Time("expires_at", session.ExpiresAt),
	)
	return nil
}

func (p *Processor) createConversation(ctx context.Context, id string, payload model.ConversationStartedPayload) (*model.Conversation, error) {
	if payload.UserID == "" || payload.AgentID == "" {
		return nil, errors.New("conversation does not exist and payload lacks user_id or agent_id")
	}

	now := p.now()
	conv := &model.Conversation{
		ID:        id,
		UserID:    payload.UserID,
		AgentID:   payload.AgentID,
		Status:    model.ConversationStatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := p.store.CreateConversation(ctx, conv); err != nil {
		return nil, err
	}
	return conv, nil
}

// handleSessionExpired terminates the conversation's agent session and
// completes the conversation.
func (p *Processor) handleSessionExpired(ctx context.Context, event *model.ConversationEvent, log *logger.Logger) error {
	var payload model.SessionExpiredPayload
	if err := decodePayload(event.Payload, &payload); err != nil {
		return err
	}

	conv, err := p.store.GetConversation(ctx, event.ConversationID)
	if err != nil {
		return fmt.Errorf("failed to load conversation: %w", err)
	}

	if conv.AdkSessionID != nil {
		adkID := *conv.AdkSessionID

		agentCtx, cancel := context.WithTimeout(ctx, p.agentTimeout)
		err := p.agent.TerminateSession(agentCtx, adkID)
		cancel()
		if err != nil {
			return fmt.Errorf("failed to terminate agent session: %w", err)
		}

		session, err := p.store.GetSessionByAdkID(ctx, adkID)
		switch {
		case errors.Is(err, store.ErrNotFound):
			log.Warn("no session row for terminated session", zap.String("adk_session_id", adkID))
		case err != nil:
			return fmt.Errorf("failed to load session: %w", err)
		default:
			if err := p.store.SetSessionStatus(ctx, session.ID, model.SessionStatusTerminated); err != nil {
				return fmt.Errorf("failed to mark session terminated: %w", err)
			}
		}
		metrics.RecordSession("terminated")
	}

	if err := p.store.SetConversationStatus(ctx, conv.ID, model.ConversationStatusCompleted); err != nil {
		return fmt.Errorf("failed to complete conversation: %w", err)
	}

	log.Info("conversation completed", zap.String("reason", payload.Reason))
	return nil
}

// openSession creates an agent session and records it on the conversation
// and as a new session row.
func (p *Processor) openSession(ctx context.Context, conv *model.Conversation) (*model.AgentSession, error) {
	agentCtx, cancel := context.WithTimeout(ctx, p.agentTimeout)
	adkID, err := p.agent.CreateSession(agentCtx, agent.SessionRequest{
		ConversationID: conv.ID,
		UserID:         conv.UserID,
		AgentID:        conv.AgentID,
	})
	cancel()
	if err != nil {
		return nil, fmt.Errorf("failed to create agent session: %w", err)
	}

	now := p.now()
	session := &model.AgentSession{
		ID:             uuid.Must(uuid.NewV7()).String(),
		ConversationID: conv.ID,
		AdkSessionID:   adkID,
		Status:         model.SessionStatusActive,
		ExpiresAt:      now.Add(p.sessionTTL),
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := p.store.SetConversationSession(ctx, conv.ID, adkID, session.ExpiresAt); err != nil {
		return nil, fmt.Errorf("failed to store session on conversation: %w", err)
	}
	if err := p.store.CreateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to store session: %w", err)
	}

	conv.AdkSessionID = &adkID
	conv.AdkSessionExpiresAt = &session.ExpiresAt
	metrics.RecordSession("created")
	return session, nil
}
