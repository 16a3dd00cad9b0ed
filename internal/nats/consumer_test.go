package nats

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swiss-ai-registry/event-processor/internal/model"
	"github.com/swiss-ai-registry/event-processor/pkg/logger"
)

type fakeMsg struct {
	data   []byte
	acked  bool
	termed bool
}

func (m *fakeMsg) Data() []byte {
	return m.data
}

func (m *fakeMsg) Subject() string {
	return "registry.events.pending.message.user.created"
}

func (m *fakeMsg) Ack() error {
	m.acked = true
	return nil
}

func (m *fakeMsg) Term() error {
	m.termed = true
	return nil
}

type fakeProcessor struct {
	ids []string
	err error
}

func (p *fakeProcessor) ProcessEventByID(ctx context.Context, eventID string) error {
	p.ids = append(p.ids, eventID)
	return p.err
}

func newTestConsumer(p EventProcessor) *Consumer {
	return NewConsumer(nil, p, time.Second, logger.NewNop())
}

func TestConsumer_ProcessesAndAcks(t *testing.T) {
	proc := &fakeProcessor{}
	c := newTestConsumer(proc)
	msg := &fakeMsg{data: []byte(`{"event_id":"evt-1"}`)}

	c.handle(context.Background(), msg)

	assert.Equal(t, []string{"evt-1"}, proc.ids)
	assert.True(t, msg.acked)
	assert.False(t, msg.termed)
}

func TestConsumer_AcksFailedProcessing(t *testing.T) {
	proc := &fakeProcessor{err: errors.New("agent unavailable")}
	c := newTestConsumer(proc)
	msg := &fakeMsg{data: []byte(`{"event_id":"evt-1"}`)}

	c.handle(context.Background(), msg)

	assert.True(t, msg.acked, "failures are recorded on the row, not retried")
}

func TestConsumer_TerminatesMalformed(t *testing.T) {
	for name, body := range map[string]string{
		"not json": `event`,
		"no id":    `{"event_id":""}`,
	} {
		t.Run(name, func(t *testing.T) {
			proc := &fakeProcessor{}
			c := newTestConsumer(proc)
			msg := &fakeMsg{data: []byte(body)}

			c.handle(context.Background(), msg)

			assert.Empty(t, proc.ids)
			assert.True(t, msg.termed)
			assert.False(t, msg.acked)
		})
	}
}

func TestConsumer_AcksWhenShutdownCancelsProcessing(t *testing.T) {
	proc := &fakeProcessor{err: context.Canceled}
	c := newTestConsumer(proc)
	msg := &fakeMsg{data: []byte(`{"event_id":"evt-1"}`)}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c.handle(ctx, msg)

	assert.Equal(t, []string{"evt-1"}, proc.ids)
	assert.True(t, msg.acked, "a cancelled event is already marked failed and must not be redelivered")
	assert.False(t, msg.termed)
}

func TestSubjects(t *testing.T) {
	assert.Equal(t, "registry.events.outcome.session.expired", OutcomeSubject(model.EventTypeSessionExpired))
	assert.Equal(t, "registry.events.pending.>", PendingFilter())
}

func TestConnect_RejectsEmptyURL(t *testing.T) {
	_, err := Connect(Config{}, logger.NewNop())
	assert.Error(t, err)
}

func TestConnect_FailsWhenServerUnreachable(t *testing.T) {
	_, err := Connect(Config{URL: "nats://127.0.0.1:1"}, logger.NewNop())
	assert.Error(t, err)
}

func TestNewTLSConfig(t *testing.T) {
	_, err := newTLSConfig(filepath.Join(t.TempDir(), "missing.pem"), "", "")
	assert.Error(t, err)

	bad := filepath.Join(t.TempDir(), "ca.pem")
	require.NoError(t, os.WriteFile(bad, []byte("not a certificate"), 0o600))
	_, err = newTLSConfig(bad, "", "")
	assert.Error(t, err)
}
