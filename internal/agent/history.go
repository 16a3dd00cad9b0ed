package agent

import (
	"sync"
)

// maxHistoryExchanges bounds the completed user/assistant pairs replayed to
// an LLM per session.
const maxHistoryExchanges = 20

type turn struct {
	Role    string
	Content string
}

// sessionHistory keeps per-session transcripts for the LLM-backed clients.
// Only completed exchanges are stored, so a transcript always alternates
// user/assistant and starts with a user turn.
type sessionHistory struct {
	mu       sync.Mutex
	sessions map[string][]turn
}

func newSessionHistory() *sessionHistory {
	return &sessionHistory{sessions: make(map[string][]turn)}
}

func (h *sessionHistory) open(id string) {
	h.mu.Lock()
	h.sessions[id] = nil
	h.mu.Unlock()
}

// transcript returns the stored exchanges followed by the new user turn.
// Nothing is recorded until commit. Sessions opened by another process
// instance start empty.
func (h *sessionHistory) transcript(id, userRole, content string) []turn {
	h.mu.Lock()
	defer h.mu.Unlock()

	stored := h.sessions[id]
	out := make([]turn, len(stored), len(stored)+1)
	copy(out, stored)
	return append(out, turn{Role: userRole, Content: content})
}

// commit records a completed exchange, dropping the oldest pairs past the
// bound.
func (h *sessionHistory) commit(id string, user, assistant turn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	turns := append(h.sessions[id], user, assistant)
	if max := 2 * maxHistoryExchanges; len(turns) > max {
		turns = append([]turn(nil), turns[len(turns)-max:]...)
	}
	h.sessions[id] = turns
}

func (h *sessionHistory) close(id string) {
	h.mu.Lock()
	delete(h.sessions, id)
	h.mu.Unlock()
}
