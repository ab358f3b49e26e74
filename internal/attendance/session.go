package attendance

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Session is one continuous recognition run, such as a camera loop or a single
// uploaded image. Under the session dedupe policy a name is recorded at most
// once per session.
type Session struct {
	ID      string    `json:"id"`
	Started time.Time `json:"started"`

	mu   sync.Mutex
	seen map[string]time.Time
}

// NewSession starts a session with a random ID.
func NewSession(started time.Time) *Session {
	return &Session{
		ID:      uuid.NewString(),
		Started: started,
		seen:    make(map[string]time.Time),
	}
}

// Seen reports whether name was recorded in this session.
func (s *Session) Seen(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.seen[name]
	return ok
}

func (s *Session) mark(name string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.seen[name]; !ok {
		s.seen[name] = at
	}
}

// Names returns the recorded names sorted alphabetically.
func (s *Session) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.seen))
	for name := range s.seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Sessions tracks the sessions started through the web surface.
type Sessions struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	now      func() time.Time
}

// NewSessions creates an empty registry.
func NewSessions() *Sessions {
	return &Sessions{sessions: make(map[string]*Session), now: time.Now}
}

// Start creates and tracks a new session.
func (r *Sessions) Start() *Session {
	s := NewSession(r.now())
	r.mu.Lock()
	r.sessions[s.ID] = s
	r.mu.Unlock()
	return s
}

// Get returns a tracked session.
func (r *Sessions) Get(id string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

// End stops tracking a session and returns it.
func (r *Sessions) End(id string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
	}
	return s, ok
}

// Len returns the number of open sessions.
func (r *Sessions) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
