// Package agent provides the external agent capability the processor talks to.
package agent

import (
	"context"
	"fmt"
)

// SessionRequest describes the conversation a new agent session is opened for.
type SessionRequest struct {
	ConversationID string
	UserID         string
	AgentID        string
}

// Reply is the agent's answer to one user message.
type Reply struct {
	Content    string
	TokensUsed int
	Model      string
	LatencyMs  int64
}

// Client is the interface for agent backends.
type Client interface {
	// CreateSession opens an execution context and returns its id.
	CreateSession(ctx context.Context, req SessionRequest) (string, error)

	// SendMessage delivers a user message within a session and returns the reply.
	SendMessage(ctx context.Context, sessionID, content string) (*Reply, error)

	// TerminateSession closes an execution context.
	TerminateSession(ctx context.Context, sessionID string) error

	// Name returns the provider name.
	Name() string
}

// Provider is the type of agent backend.
type Provider string

const (
	ProviderStub      Provider = "stub"
	ProviderAnthropic Provider = "anthropic"
	ProviderOpenAI    Provider = "openai"
)

// NewClient creates an agent client for provider.
func NewClient(provider Provider, apiKey, model string) (Client, error) {
	switch provider {
	case ProviderStub, "":
		return NewStubClient(), nil
	case ProviderAnthropic:
		return NewAnthropicClient(apiKey, model)
	case ProviderOpenAI:
		return NewOpenAIClient(apiKey, model)
	default:
		return nil, fmt.Errorf("unknown agent provider %q", provider)
	}
}
