package server

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/ppiankov/medrights/internal/model"
)

const (
	messageUser = "user"
	messageBot  = "bot"
)

// Message is one entry of a session's chat history
type Message struct {
	Type             string            `json:"type"`
	Content          string            `json:"content"`
	FormattedContent string            `json:"formatted_content,omitempty"`
	Timestamp        time.Time         `json:"timestamp"`
	ProofTrace       *model.ProofTrace `json:"proof_trace,omitempty"`
}

// History keeps the most recent messages of recently active sessions in
// memory. It is lost on restart.
type History struct {
	mu       sync.Mutex
	sessions *lru.Cache[string, []Message]
	limit    int
}

// NewHistory keeps up to limit messages for each of up to sessions sessions
func NewHistory(sessions, limit int) *History {
	if sessions <= 0 {
		sessions = 1024
	}
	if limit <= 0 {
		limit = 50
	}
	cache, _ := lru.New[string, []Message](sessions)
	return &History{sessions: cache, limit: limit}
}

// Append adds messages to a session and returns its message count
func (h *History) Append(session string, msgs ...Message) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	existing, _ := h.sessions.Get(session)
	combined := make([]Message, 0, len(existing)+len(msgs))
	combined = append(combined, existing...)
	combined = append(combined, msgs...)
	if len(combined) > h.limit {
		combined = combined[len(combined)-h.limit:]
	}

	h.sessions.Add(session, combined)
	return len(combined)
}

// Get returns a copy of a session's messages
func (h *History) Get(session string) []Message {
	h.mu.Lock()
	defer h.mu.Unlock()

	msgs, _ := h.sessions.Peek(session)
	out := make([]Message, len(msgs))
	copy(out, msgs)
	return out
}

// Clear forgets a session
func (h *History) Clear(session string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sessions.Remove(session)
}
