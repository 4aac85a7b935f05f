package realtime

import (
	"context"

	"github.com/rs/zerolog"
)

// Client-to-server command names.
const (
	CommandSendMessage = "SendMessage"
	CommandJoinGroup   = "JoinGroup"
	CommandLeaveGroup  = "LeaveGroup"
)

// Command is one inbound client frame.
type Command struct {
	Type  string `json:"type"`
	Body  string `json:"body,omitempty"`
	Group string `json:"group,omitempty"`
}

// Channel is what a transport drives for each connection: Connect once after
// the handshake, Receive per inbound frame, Disconnect exactly once at
// teardown.
type Channel interface {
	Name() string
	Connect(ctx context.Context, s *Session) error
	Receive(ctx context.Context, connID string, cmd Command) error
	Disconnect(ctx context.Context, connID string)
	Directory() *Directory
}

// ConnectionConfirmed is sent to the connecting client alone.
type ConnectionConfirmed struct {
	Message      string `json:"message"`
	ConnectionID string `json:"connection_id"`
	UserID       string `json:"user_id"`
	UserName     string `json:"user_name,omitempty"`
}

// ErrorPayload is the body of a ReceiveError event.
type ErrorPayload struct {
	Message string `json:"message"`
}

// ReceiveError builds a caller-only error event.
func ReceiveError(msg string) Event {
	return Event{Type: EventReceiveError, Payload: ErrorPayload{Message: msg}}
}

// replyError sends a ReceiveError to s; delivery failures are only logged.
func replyError(s *Session, msg string, log zerolog.Logger) {
	if err := s.Enqueue(ReceiveError(msg)); err != nil {
		log.Debug().Err(err).Str("conn_id", s.ID).Msg("error reply not delivered")
	}
}

// confirm sends the ConnectionConfirmed acknowledgment to s.
func confirm(s *Session, welcome string) error {
	return s.Enqueue(Event{
		Type: EventConnectionConfirmed,
		Payload: ConnectionConfirmed{
			Message:      welcome,
			ConnectionID: s.ID,
			UserID:       s.Identity.UserID,
			UserName:     s.Identity.Name(),
		},
	})
}
