package service

import (
	"sync"
	"sync/atomic"
	"time"

	"addressor_backend/internal/addressor"
	"addressor_backend/platform/logger"

	"github.com/google/uuid"
)

// StreamEventType names the payloads pushed to stream subscribers.
type StreamEventType string

const (
	StreamView  StreamEventType = "view"
	StreamState StreamEventType = "state"
)

// StreamEvent is one message on a session stream. View is set for view
// changes, State after every handled resolver event.
type StreamEvent struct {
	Type  StreamEventType `json:"type"`
	View  *ViewState      `json:"view,omitempty"`
	State *State          `json:"state,omitempty"`
}

// State is the externally visible snapshot of a session.
type State struct {
	ID        uuid.UUID         `json:"id"`
	View      ViewState         `json:"view"`
	Form      map[string]string `json:"form"`
	Resolver  addressor.State   `json:"resolver"`
	CreatedAt time.Time         `json:"createdAt"`
}

const subscriberBuffer = 32

// Session hosts one resolver for one browser page.
type Session struct {
	ID        uuid.UUID
	CreatedAt time.Time

	resolver *addressor.Resolver
	form     *addressor.MemoryForm
	view     *viewRecorder
	log      *logger.Logger

	lastSeen atomic.Int64

	mu          sync.Mutex
	subscribers map[chan StreamEvent]struct{}
	closed      bool
}

func (s *Session) touch(now time.Time) {
	s.lastSeen.Store(now.UnixNano())
}

func (s *Session) idleSince() time.Time {
	return time.Unix(0, s.lastSeen.Load())
}

// State assembles the current snapshot. The view and the form are read under
// the resolver's lock so they always match the resolver state.
func (s *Session) State() State {
	state := State{ID: s.ID, CreatedAt: s.CreatedAt}
	s.resolver.Inspect(func(r addressor.State) {
		state.Resolver = r
		state.View = s.view.Snapshot()
		state.Form = s.form.Values()
	})
	return state
}

func (s *Session) subscribe() (<-chan StreamEvent, func(), bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, nil, false
	}

	ch := make(chan StreamEvent, subscriberBuffer)
	s.subscribers[ch] = struct{}{}

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if _, ok := s.subscribers[ch]; ok {
				delete(s.subscribers, ch)
				close(ch)
			}
		})
	}
	return ch, cancel, true
}

func (s *Session) subscriberCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subscribers)
}

func (s *Session) broadcast(event StreamEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for ch := range s.subscribers {
		select {
		case ch <- event:
		default:
			s.log.Warn("session stream buffer full, dropping event", "event", event.Type)
		}
	}
}

func (s *Session) close() {
	s.resolver.Close()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	for ch := range s.subscribers {
		delete(s.subscribers, ch)
		close(ch)
	}
}
