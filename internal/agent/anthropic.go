package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const defaultAnthropicModel = "claude-3-5-sonnet-20241022"

// AnthropicClient answers agent messages with the Anthropic Messages API.
type AnthropicClient struct {
	client  *anthropic.Client
	model   string
	history *sessionHistory
}

// NewAnthropicClient creates a new Anthropic-backed agent client.
func NewAnthropicClient(apiKey, model string) (*AnthropicClient, error) {
	if apiKey == "" {
		return nil, errors.New("Anthropic API key is required")
	}
	if model == "" {
		model = defaultAnthropicModel
	}

	return &AnthropicClient{
		client:  anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:   model,
		history: newSessionHistory(),
	}, nil
}

// Name returns the provider name.
func (c *AnthropicClient) Name() string {
	return string(ProviderAnthropic)
}

// CreateSession opens a local transcript.
func (c *AnthropicClient) CreateSession(ctx context.Context, req SessionRequest) (string, error) {
	id := newSessionID()
	c.history.open(id)
	return id, nil
}

// SendMessage completes the session transcript with the new user message.
func (c *AnthropicClient) SendMessage(ctx context.Context, sessionID, content string) (*Reply, error) {
	start := time.Now()
	turns := c.history.transcript(sessionID, "user", content)

	messages := make([]anthropic.MessageParam, len(turns))
	for i, t := range turns {
		messages[i] = anthropic.MessageParam{
			Role: anthropic.F(anthropic.MessageParamRole(t.Role)),
			Content: anthropic.F([]anthropic.ContentBlockParamUnion{
				anthropic.TextBlockParam{
					Type: anthropic.F(anthropic.TextBlockParamTypeText),
					Text: anthropic.F(t.Content),
				},
			}),
		}
	}

	resp, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.F(anthropic.Model(c.model)),
		MaxTokens: anthropic.F(int64(4096)),
		Messages:  anthropic.F(messages),
	})
	if err != nil {
		return nil, fmt.Errorf("anthropic completion: %w", err)
	}

	var text string
	for _, block := range resp.Content {
		if block.Type == anthropic.ContentBlockTypeText {
			text += block.Text
		}
	}
	c.history.commit(sessionID, turns[len(turns)-1], turn{Role: "assistant", Content: text})

	return &Reply{
		Content:    text,
		TokensUsed: int(resp.Usage.InputTokens + resp.Usage.OutputTokens),
		Model:      resp.Model,
		LatencyMs:  time.Since(start).Milliseconds(),
	}, nil
}

// TerminateSession drops the transcript.
func (c *AnthropicClient) TerminateSession(ctx context.Context, sessionID string) error {
	c.history.close(sessionID)
	return nil
}
