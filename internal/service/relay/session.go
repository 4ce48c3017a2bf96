package relay

import (
	"fmt"
	"strings"
	"sync"

	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"
	"github.com/zhouzirui/z-arena/backend/internal/service/ai"
)

// State is the lifecycle position of a relay session.
type State int

const (
	StatePending State = iota
	StateStreaming
	StateCompleted
	StateFailed
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateStreaming:
		return "streaming"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	case StateCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

// Session tracks one in-flight completion. It lives no longer than the
// request that created it.
type Session struct {
	ID     string
	Target ai.Target
	Prompt []*schema.Message
	Params ai.Params

	mu    sync.Mutex
	state State
	seq   int
	text  strings.Builder
}

// NewSession creates a pending session.
func NewSession(target ai.Target, prompt []*schema.Message, params ai.Params) *Session {
	return &Session{
		ID:     uuid.NewString(),
		Target: target,
		Prompt: prompt,
		Params: params,
	}
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Seq returns how many fragments have been delivered.
func (s *Session) Seq() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seq
}

// Text returns the concatenation of delivered fragments.
func (s *Session) Text() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.text.String()
}

// transition moves the session forward. Backward moves and moves out of a
// terminal state are refused.
func (s *Session) transition(next State) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Terminal() || next <= s.state {
		return false
	}
	s.state = next
	return true
}

func (s *Session) record(fragment string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	s.text.WriteString(fragment)
	return s.seq
}
