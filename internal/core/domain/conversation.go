package domain

import (
	"slices"
	"sync"
	"time"
)

type Turn struct {
	ID         string    `json:"id"`
	Question   string    `json:"question"`
	Answer     string    `json:"answer"`
	PassageIDs []string  `json:"passage_ids"`
	Plan       QueryPlan `json:"plan"`
	Timestamp  time.Time `json:"timestamp"`
}

const DefaultConversationWindow = 10

// Conversation is the bounded, append-only turn log of one chat session.
// When the window is exceeded the oldest turn is evicted. It is not safe for
// concurrent use; the owning session serializes access.
type Conversation struct {
	id     string
	window int
	turns  []Turn
}

func NewConversation(id string, window int) *Conversation {
	if window <= 0 {
		window = DefaultConversationWindow
	}
	return &Conversation{id: id, window: window}
}

func (c *Conversation) ID() string { return c.id }

func (c *Conversation) Window() int { return c.window }

func (c *Conversation) Append(turn Turn) {
	turn.PassageIDs = slices.Clone(turn.PassageIDs)
	turn.Plan.Filter = Filter{
		Companies: slices.Clone(turn.Plan.Filter.Companies),
		Years:     slices.Clone(turn.Plan.Filter.Years),
	}
	turn.Plan.Metrics = slices.Clone(turn.Plan.Metrics)
	c.turns = append(c.turns, turn)
	if over := len(c.turns) - c.window; over > 0 {
		c.turns = slices.Delete(c.turns, 0, over)
	}
}

func (c *Conversation) Len() int { return len(c.turns) }

// Turns returns the retained turns, oldest first.
func (c *Conversation) Turns() []Turn {
	return slices.Clone(c.turns)
}

// Recent returns up to n most recent turns, oldest first.
func (c *Conversation) Recent(n int) []Turn {
	if n <= 0 || len(c.turns) == 0 {
		return nil
	}
	if n > len(c.turns) {
		n = len(c.turns)
	}
	return slices.Clone(c.turns[len(c.turns)-n:])
}

func (c *Conversation) Last() (Turn, bool) {
	if len(c.turns) == 0 {
		return Turn{}, false
	}
	return c.turns[len(c.turns)-1], true
}

func (c *Conversation) Clear() {
	c.turns = nil
}

// Session owns one Conversation and serializes everything that reads or
// mutates it, so at most one query is in flight per session.
type Session struct {
	mu   sync.Mutex
	conv *Conversation
}

func NewSession(id string, window int) *Session {
	return &Session{conv: NewConversation(id, window)}
}

func (s *Session) ID() string { return s.conv.ID() }

// Exclusive runs fn with sole access to the conversation.
func (s *Session) Exclusive(fn func(conv *Conversation) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.conv)
}

func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conv.Clear()
}

func (s *Session) History() []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conv.Turns()
}
