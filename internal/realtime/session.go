package realtime

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/tbourn/storehub-realtime/internal/domain"
)

// State is the lifecycle position of a single connection.
type State int32

const (
	StateConnecting State = iota
	StateConnected
	StateReconnecting
	StateDisconnected
	// StateAborted is terminal: the handshake failed and the connection was
	// never registered.
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateDisconnected:
		return "disconnected"
	case StateAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// transitions lists the legal moves of the connection state machine.
var transitions = map[State][]State{
	StateConnecting:   {StateConnected, StateAborted},
	StateConnected:    {StateReconnecting, StateDisconnected},
	StateReconnecting: {StateConnected, StateDisconnected},
}

// Close codes passed to transports. They mirror RFC 6455 values.
const (
	CloseNormal        = 1000
	CloseGoingAway     = 1001
	ClosePolicy        = 1008
	CloseTryAgainLater = 1013
)

// DefaultSendQueue is the per-session outbound buffer when none is given.
const DefaultSendQueue = 128

// Event is one server-to-client frame.
type Event struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// Server-to-client event names.
const (
	EventConnectionConfirmed      = "ConnectionConfirmed"
	EventReceiveMessage           = "ReceiveMessage"
	EventReceiveError             = "ReceiveError"
	EventReceiveOrderCreated      = "ReceiveOrderCreated"
	EventReceiveOrderStatusUpdate = "ReceiveOrderStatusUpdate"
)

// Session is one live connection. It owns a bounded outbound queue drained
// by the transport's writer; enqueueing never blocks.
type Session struct {
	ID        string
	Identity  domain.Identity
	CreatedAt time.Time

	queue chan Event
	done  chan struct{}

	mu         sync.Mutex
	state      State
	closeCode  int
	closeCause string
	closed     atomic.Bool
}

// NewSession returns a session in StateConnecting. A queueSize <= 0 uses
// DefaultSendQueue.
func NewSession(id string, ident domain.Identity, queueSize int) *Session {
	if queueSize <= 0 {
		queueSize = DefaultSendQueue
	}
	return &Session{
		ID:        id,
		Identity:  ident,
		CreatedAt: time.Now().UTC(),
		queue:     make(chan Event, queueSize),
		done:      make(chan struct{}),
		state:     StateConnecting,
	}
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Transition moves the session to next if the move is legal and reports
// whether it happened.
func (s *Session) Transition(next State) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, allowed := range transitions[s.state] {
		if allowed == next {
			s.state = next
			return true
		}
	}
	return false
}

// Outbound is drained by the transport writer.
func (s *Session) Outbound() <-chan Event { return s.queue }

// Done is closed once the session is closed.
func (s *Session) Done() <-chan struct{} { return s.done }

// Closed reports whether Close has been called.
func (s *Session) Closed() bool { return s.closed.Load() }

// CloseInfo returns the code and reason recorded by the first Close call.
func (s *Session) CloseInfo() (int, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeCode, s.closeCause
}

// Enqueue queues evt for delivery. A full queue closes the session with
// CloseTryAgainLater and returns ErrBackpressure.
func (s *Session) Enqueue(evt Event) error {
	if s.closed.Load() {
		return ErrSessionClosed
	}
	select {
	case <-s.done:
		return ErrSessionClosed
	case s.queue <- evt:
		return nil
	default:
		s.Close(CloseTryAgainLater, "backpressure overflow")
		return ErrBackpressure
	}
}

// Close marks the session closed once; later calls are no-ops. The queue is
// left open so a writer can never panic on a concurrent Enqueue.
func (s *Session) Close(code int, reason string) {
	if !s.closed.CompareAndSwap(false, true) {
		return
	}
	s.mu.Lock()
	s.closeCode, s.closeCause = code, reason
	if s.state == StateConnecting {
		s.state = StateAborted
	} else if s.state != StateAborted {
		s.state = StateDisconnected
	}
	s.mu.Unlock()
	close(s.done)
}
