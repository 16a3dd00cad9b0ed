package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sashabaranov/go-openai"
)

const defaultOpenAIModel = "gpt-4o"

// OpenAIClient answers agent messages with the OpenAI chat completions API.
type OpenAIClient struct {
	client  *openai.Client
	model   string
	history *sessionHistory
}

// NewOpenAIClient creates a new OpenAI-backed agent client.
func NewOpenAIClient(apiKey, model string) (*OpenAIClient, error) {
	if apiKey == "" {
		return nil, errors.New("OpenAI API key is required")
	}
	if model == "" {
		model = defaultOpenAIModel
	}

	return &OpenAIClient{
		client:  openai.NewClient(apiKey),
		model:   model,
		history: newSessionHistory(),
	}, nil
}

// Name returns the provider name.
func (c *OpenAIClient) Name() string {
	return string(ProviderOpenAI)
}

// CreateSession opens a local transcript.
func (c *OpenAIClient) CreateSession(ctx context.Context, req SessionRequest) (string, error) {
	id := newSessionID()
	c.history.open(id)
	return id, nil
}

// SendMessage completes the session transcript with the new user message.
func (c *OpenAIClient) SendMessage(ctx context.Context, sessionID, content string) (*Reply, error) {
	start := time.Now()
	turns := c.history.transcript(sessionID, openai.ChatMessageRoleUser, content)

	messages := make([]openai.ChatCompletionMessage, len(turns))
	for i, t := range turns {
		messages[i] = openai.ChatCompletionMessage{
			Role:    t.Role,
			Content: t.Content,
		}
	}

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     c.model,
		Messages:  messages,
		MaxTokens: 4096,
	})
	if err != nil {
		return nil, fmt.Errorf("openai completion: %w", err)
	}

	var text string
	if len(resp.Choices) > 0 {
		text = resp.Choices[0].Message.Content
	}
	c.history.commit(sessionID, turns[len(turns)-1], turn{Role: openai.ChatMessageRoleAssistant, Content: text})

	return &Reply{
		Content:    text,
		TokensUsed: resp.Usage.TotalTokens,
		Model:      resp.Model,
		LatencyMs:  time.Since(start).Milliseconds(),
	}, nil
}

// TerminateSession drops the transcript.
func (c *OpenAIClient) TerminateSession(ctx context.Context, sessionID string) error {
	c.history.close(sessionID)
	return nil
}
