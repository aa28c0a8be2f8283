package usecase

import (
	"container/list"
	"sync"

	"github.com/google/uuid"

	"github.com/kirillkom/autoreport-rag/internal/core/domain"
)

const DefaultMaxSessions = 1000

// SessionStore keeps the chat sessions of a long-running server. Sessions
// never share state; when the store is full the least recently used one is
// dropped.
type SessionStore struct {
	mu       sync.Mutex
	window   int
	max      int
	sessions map[string]*list.Element
	order    *list.List
}

func NewSessionStore(historyWindow, maxSessions int) *SessionStore {
	if maxSessions <= 0 {
		maxSessions = DefaultMaxSessions
	}
	return &SessionStore{
		window:   historyWindow,
		max:      maxSessions,
		sessions: make(map[string]*list.Element),
		order:    list.New(),
	}
}

// GetOrCreate returns the session for id, creating it when absent. An empty
// id allocates a fresh session with a random id.
func (s *SessionStore) GetOrCreate(id string) *domain.Session {
	if id == "" {
		id = uuid.NewString()
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if el, ok := s.sessions[id]; ok {
		s.order.MoveToFront(el)
		return el.Value.(*domain.Session)
	}
	session := domain.NewSession(id, s.window)
	s.sessions[id] = s.order.PushFront(session)
	for s.order.Len() > s.max {
		oldest := s.order.Back()
		s.order.Remove(oldest)
		delete(s.sessions, oldest.Value.(*domain.Session).ID())
	}
	return session
}

func (s *SessionStore) Get(id string) (*domain.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	el, ok := s.sessions[id]
	if !ok {
		return nil, false
	}
	s.order.MoveToFront(el)
	return el.Value.(*domain.Session), true
}

// Delete discards a session; it reports whether the session existed.
func (s *SessionStore) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	el, ok := s.sessions[id]
	if !ok {
		return false
	}
	s.order.Remove(el)
	delete(s.sessions, id)
	return true
}

func (s *SessionStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.order.Len()
}
