package model

import (
	"sync"
	"time"
)

// SessionStatus tracks why a session was last touched.
type SessionStatus string

const (
	SessionOnGoing          SessionStatus = "on_going"
	SessionExplicitlyClosed SessionStatus = "explicitly_closed"
	SessionExpired          SessionStatus = "expired"
)

// Conversation is a prompt-bounded thread inside a Session. History is
// append-only: truncation happens only when the runner builds a request and
// never mutates the stored slice.
type Conversation struct {
	ID       string
	Prompt   []Message // system instructions, expanded from template
	History  []Message
	Model    string // selected LLMModelInfo name
	ToolSet  []string
	RemoteID string // optional remote-provider conversation UUID
}

// Append adds a message to the end of the conversation's history.
// History is append-only; callers must not mutate earlier entries.
func (c *Conversation) Append(msg Message) {
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	c.History = append(c.History, msg)
}

// Session is per-launcher state: one or more Conversations plus the
// concurrency semaphore that serializes queries for this launcher.
type Session struct {
	Launcher Launcher

	mu                sync.Mutex
	conversations     []*Conversation
	usingConversation *Conversation

	// Permits is a counting semaphore with the configured concurrency
	// limit; the pipeline acquires one permit for the lifetime of a query.
	Permits chan struct{}

	CreateTS       time.Time
	LastInteractTS time.Time
	Status         SessionStatus
}

// NewSession creates a session with a freshly minted semaphore of the given
// permit count (at least 1).
func NewSession(launcher Launcher, concurrency int) *Session {
	if concurrency < 1 {
		concurrency = 1
	}
	now := time.Now()
	return &Session{
		Launcher:       launcher,
		Permits:        make(chan struct{}, concurrency),
		CreateTS:       now,
		LastInteractTS: now,
		Status:         SessionOnGoing,
	}
}

// Acquire blocks until a concurrency permit is available. The returned
// release function is idempotent and must be called exactly once per
// acquire on every exit path; callers that need cancellation wrap the
// blocking wait in their own goroutine (see the session-acquire stage).
func (s *Session) Acquire() (release func()) {
	s.Permits <- struct{}{}
	var once sync.Once
	return func() {
		once.Do(func() {
			<-s.Permits
		})
	}
}

// Touch updates LastInteractTS to now; called on every inbound query.
func (s *Session) Touch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.LastInteractTS = time.Now()
}

// LastInteraction returns the last-interact timestamp under the session's
// own lock, so a sweeper on another goroutine can read it safely.
func (s *Session) LastInteraction() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.LastInteractTS
}

// UsingConversation returns the currently active conversation, if any.
func (s *Session) UsingConversation() *Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.usingConversation
}

// Conversations returns a snapshot of the session's conversation list.
func (s *Session) Conversations() []*Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Conversation, len(s.conversations))
	copy(out, s.conversations)
	return out
}

// AddConversation appends a conversation and, if none is active yet, makes
// it the "using" conversation. At most one conversation is "using" per
// session at any moment.
func (s *Session) AddConversation(c *Conversation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conversations = append(s.conversations, c)
	if s.usingConversation == nil {
		s.usingConversation = c
	}
}

// SwitchTo makes an existing conversation in the session the active one.
// Returns false if id is not one of this session's conversations.
func (s *Session) SwitchTo(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.conversations {
		if c.ID == id {
			s.usingConversation = c
			return true
		}
	}
	return false
}

// Reset clears history on the using conversation and re-initializes its
// prompt, used by the "reset" command and by expiry.
func (s *Session) Reset(defaultPrompt []Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.usingConversation == nil {
		return
	}
	s.usingConversation.History = nil
	s.usingConversation.Prompt = append([]Message(nil), defaultPrompt...)
}

// SessionKey uniquely identifies a session by its launcher.
func SessionKey(l Launcher) string {
	return string(l.Kind) + ":" + l.ID
}
