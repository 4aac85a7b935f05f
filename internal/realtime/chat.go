package realtime

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/tbourn/storehub-realtime/internal/domain"
	"github.com/tbourn/storehub-realtime/internal/observability"
)

// ChatChannelName labels the chat directory in logs and metrics.
const ChatChannelName = "chat"

const chatWelcome = "Connected to company chat"

// ChatOptions tunes the chat channel. Zero values pick defaults.
type ChatOptions struct {
	// MaxMessageLen caps bodies in UTF-16 code units; longer bodies are
	// truncated, not rejected.
	MaxMessageLen int
	// MessageRPS and MessageBurst bound each connection's send rate.
	// MessageRPS <= 0 disables limiting.
	MessageRPS   float64
	MessageBurst int
	// Now overrides the clock in tests.
	Now func() time.Time
}

// ChatChannel is the per-tenant broadcast chat. Every connection joins its
// tenant's group on connect; SendMessage fans out to that group only.
type ChatChannel struct {
	dir    *Directory
	opts   ChatOptions
	log    zerolog.Logger
	tracer trace.Tracer

	limiters sync.Map // conn id -> *rate.Limiter

	// members resolves broadcast targets; replaced in tests.
	members func(group string) []*Session
}

// NewChatChannel builds a chat channel with its own directory.
func NewChatChannel(log zerolog.Logger, opts ChatOptions) *ChatChannel {
	if opts.MaxMessageLen <= 0 {
		opts.MaxMessageLen = DefaultMaxMessageLen
	}
	if opts.MessageBurst <= 0 {
		opts.MessageBurst = 1
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	dir := NewDirectory(ChatChannelName, func(id domain.Identity) string {
		return TenantGroup(id.TenantID)
	}, log)
	c := &ChatChannel{
		dir:    dir,
		opts:   opts,
		log:    log.With().Str("channel", ChatChannelName).Logger(),
		tracer: observability.Tracer(),
	}
	c.members = dir.Members
	return c
}

// Name implements Channel.
func (c *ChatChannel) Name() string { return ChatChannelName }

// Directory implements Channel.
func (c *ChatChannel) Directory() *Directory { return c.dir }

// Connect registers s, joins its tenant group and confirms the connection
// to the caller alone. An incomplete identity aborts the session.
func (c *ChatChannel) Connect(_ context.Context, s *Session) error {
	if s == nil {
		return ErrHandshakeRejected
	}
	// Stored first so a disconnect racing the connect always finds it.
	if c.opts.MessageRPS > 0 {
		c.limiters.Store(s.ID, rate.NewLimiter(rate.Limit(c.opts.MessageRPS), c.opts.MessageBurst))
	}
	if err := c.dir.Connect(s); err != nil {
		c.limiters.Delete(s.ID)
		handshakes.WithLabelValues(ChatChannelName, "rejected").Inc()
		s.Close(ClosePolicy, "identity and tenant required")
		c.log.Warn().Err(err).Str("conn_id", s.ID).Msg("handshake rejected")
		return err
	}
	handshakes.WithLabelValues(ChatChannelName, "accepted").Inc()
	s.Transition(StateConnected)

	if err := confirm(s, chatWelcome); err != nil {
		c.log.Warn().Err(err).Str("conn_id", s.ID).Msg("confirmation not delivered")
	}
	c.log.Info().
		Str("conn_id", s.ID).
		Str("user_id", s.Identity.UserID).
		Str("tenant_id", s.Identity.TenantID).
		Msg("chat connected")
	return nil
}

// Disconnect runs the atomic disconnect routine for connID.
func (c *ChatChannel) Disconnect(_ context.Context, connID string) {
	c.limiters.Delete(connID)
	id, found := c.dir.HandleDisconnect(connID)
	if !found {
		return
	}
	c.log.Info().
		Str("conn_id", connID).
		Str("user_id", id.UserID).
		Str("tenant_id", id.TenantID).
		Msg("chat disconnected")
}

// Receive dispatches one inbound command.
func (c *ChatChannel) Receive(ctx context.Context, connID string, cmd Command) error {
	switch cmd.Type {
	case CommandSendMessage:
		return c.SendMessage(ctx, connID, cmd.Body)
	default:
		if s, ok := c.dir.Lookup(connID); ok {
			replyError(s, "unsupported command: "+cmd.Type, c.log)
		}
		return ErrUnsupportedCommand
	}
}

// SendMessage validates body, stamps it with the server clock and the
// sender's resolved identity, and broadcasts it to every connection in the
// sender's tenant group, the sender included. Validation problems go back
// to the caller as ReceiveError; a nil return means the broadcast was
// attempted, not that every recipient received it.
func (c *ChatChannel) SendMessage(ctx context.Context, connID, body string) error {
	s, ok := c.dir.Lookup(connID)
	if !ok {
		return ErrUnknownConnection
	}
	_, span := c.tracer.Start(ctx, "chat.SendMessage", trace.WithAttributes(
		attribute.String("conn.id", connID),
		attribute.String("tenant.id", s.Identity.TenantID),
	))
	defer span.End()

	if strings.TrimSpace(body) == "" {
		chatMessages.WithLabelValues("rejected").Inc()
		replyError(s, "message cannot be empty", c.log)
		return ErrEmptyMessage
	}
	if v, ok := c.limiters.Load(connID); ok && !v.(*rate.Limiter).Allow() {
		chatMessages.WithLabelValues("rate_limited").Inc()
		replyError(s, ErrRateLimited.Error(), c.log)
		return ErrRateLimited
	}

	body, truncated := TruncateUTF16(body, c.opts.MaxMessageLen)
	if truncated {
		chatMessages.WithLabelValues("truncated").Inc()
	} else {
		chatMessages.WithLabelValues("accepted").Inc()
	}

	msg := domain.ChatMessage{
		SenderUserID: s.Identity.UserID,
		SenderName:   s.Identity.Name(),
		Body:         body,
		TimestampUTC: c.opts.Now().UTC(),
	}
	rep := c.broadcast(s, msg)
	span.SetAttributes(
		attribute.Int("fanout.targeted", rep.Targeted),
		attribute.Int("fanout.delivered", rep.Delivered),
		attribute.Bool("message.truncated", truncated),
	)
	return nil
}

// broadcast fans msg out to the sender's tenant group. Any unexpected
// failure is logged and reported to the sender only.
func (c *ChatChannel) broadcast(sender *Session, msg domain.ChatMessage) (rep deliveryReport) {
	defer func() {
		if rec := recover(); rec != nil {
			c.log.Error().
				Interface("panic", rec).
				Str("conn_id", sender.ID).
				Msg("chat broadcast failed")
			replyError(sender, "message could not be delivered", c.log)
		}
	}()
	targets := c.members(TenantGroup(sender.Identity.TenantID))
	return fanout(ChatChannelName, targets, Event{Type: EventReceiveMessage, Payload: msg}, c.log)
}
