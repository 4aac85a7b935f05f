package realtime

import "github.com/rs/zerolog"

// Hub owns the process-wide channels. It is constructed once at startup and
// passed by reference to the transport and the event ingress.
type Hub struct {
	Chat          *ChatChannel
	Notifications *NotificationChannel
}

// NewHub builds both channels.
func NewHub(log zerolog.Logger, chat ChatOptions, notify NotificationOptions) *Hub {
	return &Hub{
		Chat:          NewChatChannel(log, chat),
		Notifications: NewNotificationChannel(log, notify),
	}
}

// Channels returns every channel the hub serves.
func (h *Hub) Channels() []Channel {
	return []Channel{h.Chat, h.Notifications}
}

// Stats returns one summary per channel.
func (h *Hub) Stats() []Stats {
	out := make([]Stats, 0, 2)
	for _, ch := range h.Channels() {
		out = append(out, ch.Directory().Stats())
	}
	return out
}

// Shutdown closes every live session with CloseGoingAway and returns how
// many were closed.
func (h *Hub) Shutdown() int {
	n := 0
	for _, ch := range h.Channels() {
		n += ch.Directory().CloseAll(CloseGoingAway, "server shutting down")
	}
	return n
}
