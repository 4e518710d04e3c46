package chat

import (
	"sync"

	"github.com/mixelka/docsbot/pkg/models"
)

// Session holds one conversation: the display transcript and the raw
// history pairs fed back to the pipeline as context. Both are
// append-only; ordering is the conversational order.
type Session struct {
	ID string

	mu        sync.Mutex
	exchanges []models.Exchange
	history   [][2]string
}

// NewSession creates an empty session
func NewSession(id string) *Session {
	return &Session{ID: id}
}

// Append records a completed exchange. Callers only append fully
// built exchanges, which keeps the transcript all-or-nothing per
// question.
func (s *Session) Append(ex models.Exchange) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.exchanges = append(s.exchanges, ex)
	s.history = append(s.history, [2]string{ex.Question, ex.Answer})
}

// Exchanges returns a copy of the display transcript
func (s *Session) Exchanges() []models.Exchange {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Exchange, len(s.exchanges))
	copy(out, s.exchanges)
	return out
}

// History returns a copy of the (question, answer) pairs
func (s *Session) History() [][2]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][2]string, len(s.history))
	copy(out, s.history)
	return out
}

// restore replaces the session content, used by transcript import
func (s *Session) restore(exchanges []models.Exchange, history [][2]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.exchanges = exchanges
	s.history = history
}

// Registry is the in-memory session store for the web surface. Each
// session is an explicit object owned by its id; there is no ambient
// per-request state.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

// GetOrCreate returns the session for id, creating it if absent
func (r *Registry) GetOrCreate(id string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[id]; ok {
		return s
	}
	s := NewSession(id)
	r.sessions[id] = s
	return s
}

// Get returns the session for id if it exists
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	return s, ok
}
