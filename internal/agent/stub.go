package agent

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// StubTokens is the fixed token count the stub reports per reply.
const StubTokens = 50

// StubClient stands in for the external agent API. It echoes messages back.
type StubClient struct{}

// NewStubClient creates a stub agent client.
func NewStubClient() *StubClient {
	return &StubClient{}
}

// Name returns the provider name.
func (c *StubClient) Name() string {
	return string(ProviderStub)
}

// CreateSession returns a fresh session id.
func (c *StubClient) CreateSession(ctx context.Context, req SessionRequest) (string, error) {
	return newSessionID(), nil
}

// SendMessage echoes content.
func (c *StubClient) SendMessage(ctx context.Context, sessionID, content string) (*Reply, error) {
	start := time.Now()
	return &Reply{
		Content:    "Echo: " + content,
		TokensUsed: StubTokens,
		Model:      "echo",
		LatencyMs:  time.Since(start).Milliseconds(),
	}, nil
}

// TerminateSession is a no-op.
func (c *StubClient) TerminateSession(ctx context.Context, sessionID string) error {
	return nil
}

func newSessionID() string {
	return "adk_" + uuid.Must(uuid.NewV7()).String()
}
