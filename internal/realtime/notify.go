package realtime

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/tbourn/storehub-realtime/internal/domain"
	"github.com/tbourn/storehub-realtime/internal/observability"
)

// NotificationChannelName labels the notification directory.
const NotificationChannelName = "notifications"

const notifyWelcome = "Connected to order notifications"

// NotificationOptions tunes the notification channel.
type NotificationOptions struct {
	// NotifyRoles lists roles whose connections join the tenant notification
	// group automatically. Empty means every connection joins.
	NotifyRoles []string
	// Now overrides the clock in tests.
	Now func() time.Time
}

// PublishResult reports what Publish did with one event.
type PublishResult struct {
	NotificationID string `json:"notification_id,omitempty"`
	Targeted       int    `json:"targeted"`
	Delivered      int    `json:"delivered"`
}

// NotificationChannel pushes order notifications to live connections.
// Delivery is best-effort: with no live audience the event is dropped.
//
// The audience of an event for tenant T is the union of
//   - connections in NotifyGroup(T),
//   - every connection of the event's assignee registered under T,
//   - members of the event's sub-group, which must live under NotifyGroup(T).
//
// No connection of another tenant is ever targeted.
type NotificationChannel struct {
	dir      *Directory
	opts     NotificationOptions
	log      zerolog.Logger
	tracer   trace.Tracer
	validate *validator.Validate
}

// NewNotificationChannel builds the channel with its own directory.
func NewNotificationChannel(log zerolog.Logger, opts NotificationOptions) *NotificationChannel {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	roles := opts.NotifyRoles
	dir := NewDirectory(NotificationChannelName, func(id domain.Identity) string {
		if len(roles) == 0 || id.HasAnyRole(roles...) {
			return NotifyGroup(id.TenantID)
		}
		return ""
	}, log)
	return &NotificationChannel{
		dir:      dir,
		opts:     opts,
		log:      log.With().Str("channel", NotificationChannelName).Logger(),
		tracer:   observability.Tracer(),
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// Name implements Channel.
func (n *NotificationChannel) Name() string { return NotificationChannelName }

// Directory implements Channel.
func (n *NotificationChannel) Directory() *Directory { return n.dir }

// Connect registers s and, for notify roles, joins the tenant group.
func (n *NotificationChannel) Connect(_ context.Context, s *Session) error {
	if err := n.dir.Connect(s); err != nil {
		handshakes.WithLabelValues(NotificationChannelName, "rejected").Inc()
		s.Close(ClosePolicy, "identity and tenant required")
		n.log.Warn().Err(err).Str("conn_id", s.ID).Msg("handshake rejected")
		return err
	}
	handshakes.WithLabelValues(NotificationChannelName, "accepted").Inc()
	s.Transition(StateConnected)
	if err := confirm(s, notifyWelcome); err != nil {
		n.log.Warn().Err(err).Str("conn_id", s.ID).Msg("confirmation not delivered")
	}
	n.log.Info().
		Str("conn_id", s.ID).
		Str("user_id", s.Identity.UserID).
		Str("tenant_id", s.Identity.TenantID).
		Strs("groups", n.dir.Router().GroupsOf(s.ID)).
		Msg("notifications connected")
	return nil
}

// Disconnect runs the atomic disconnect routine for connID.
func (n *NotificationChannel) Disconnect(_ context.Context, connID string) {
	if id, found := n.dir.HandleDisconnect(connID); found {
		n.log.Info().
			Str("conn_id", connID).
			Str("user_id", id.UserID).
			Msg("notifications disconnected")
	}
}

// Receive handles administrative JoinGroup / LeaveGroup. Groups must sit
// under the caller's own tenant namespace.
func (n *NotificationChannel) Receive(_ context.Context, connID string, cmd Command) error {
	s, ok := n.dir.Lookup(connID)
	if !ok {
		return ErrUnknownConnection
	}
	switch cmd.Type {
	case CommandJoinGroup, CommandLeaveGroup:
		if !InTenantNamespace(cmd.Group, s.Identity.TenantID) {
			replyError(s, "group not permitted: "+cmd.Group, n.log)
			return ErrGroupForbidden
		}
		var err error
		if cmd.Type == CommandJoinGroup {
			err = n.dir.Join(connID, cmd.Group)
		} else {
			err = n.dir.Leave(connID, cmd.Group)
		}
		if err != nil {
			replyError(s, "group change failed", n.log)
			return err
		}
		return nil
	case CommandSendMessage:
		replyError(s, "notification channel is receive-only", n.log)
		return ErrUnsupportedCommand
	default:
		replyError(s, "unsupported command: "+cmd.Type, n.log)
		return ErrUnsupportedCommand
	}
}

// Validate checks evt without publishing it.
func (n *NotificationChannel) Validate(evt domain.OrderEvent) error {
	if err := n.validate.Struct(evt); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}
	if evt.Group != "" && !InTenantNamespace(evt.Group, evt.TenantID) {
		return fmt.Errorf("%w: group %q outside tenant namespace", ErrInvalidEvent, evt.Group)
	}
	return nil
}

// Publish formats evt and delivers it to its live audience. No audience is
// not an error: the event is dropped.
func (n *NotificationChannel) Publish(ctx context.Context, evt domain.OrderEvent) (PublishResult, error) {
	_, span := n.tracer.Start(ctx, "notifications.Publish", trace.WithAttributes(
		attribute.String("tenant.id", evt.TenantID),
		attribute.String("order.id", evt.OrderID),
		attribute.String("notification.type", string(evt.Type)),
	))
	defer span.End()

	if err := n.Validate(evt); err != nil {
		span.RecordError(err)
		return PublishResult{}, err
	}

	note := n.build(evt)
	targets := n.dir.Targets(
		[]string{NotifyGroup(evt.TenantID), evt.Group},
		[]string{evt.AssigneeUserID},
		func(s *Session) bool { return s.Identity.TenantID == evt.TenantID },
	)
	res := PublishResult{NotificationID: note.ID, Targeted: len(targets)}
	if len(targets) == 0 {
		notifications.WithLabelValues(string(evt.Type), "dropped").Inc()
		n.log.Debug().
			Str("tenant_id", evt.TenantID).
			Str("order_id", evt.OrderID).
			Msg("no live audience; notification dropped")
		return res, nil
	}

	rep := fanout(NotificationChannelName, targets, Event{Type: eventNameFor(evt.Type), Payload: note}, n.log)
	res.Delivered = rep.Delivered
	notifications.WithLabelValues(string(evt.Type), "delivered").Inc()
	span.SetAttributes(attribute.Int("fanout.targeted", rep.Targeted), attribute.Int("fanout.delivered", rep.Delivered))
	return res, nil
}

func eventNameFor(t domain.NotificationType) string {
	if t == domain.NotificationCreated {
		return EventReceiveOrderCreated
	}
	return EventReceiveOrderStatusUpdate
}

// build turns evt into a client-visible notification with a time-ordered id.
func (n *NotificationChannel) build(evt domain.OrderEvent) domain.Notification {
	now := n.opts.Now().UTC()
	return domain.Notification{
		ID:   ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy()).String(),
		Type: evt.Type,
		Payload: domain.NotificationPayload{
			OrderID: evt.OrderID,
			Actor:   evt.ActorName,
			Message: n.formatMessage(evt),
			Note:    strings.TrimSpace(evt.Note),
		},
		TimestampUTC: now,
	}
}

// formatMessage renders the human-readable line shown in the dashboard.
func (n *NotificationChannel) formatMessage(evt domain.OrderEvent) string {
	var b strings.Builder
	switch evt.Type {
	case domain.NotificationCreated:
		fmt.Fprintf(&b, "Order #%s was created by %s", evt.OrderID, evt.ActorName)
		if evt.CounterpartName != "" {
			fmt.Fprintf(&b, " for %s", evt.CounterpartName)
		}
	default:
		fmt.Fprintf(&b, "Order #%s status changed", evt.OrderID)
		if evt.PreviousStatus != "" {
			fmt.Fprintf(&b, " from %s", n.humanizeStatus(evt.PreviousStatus))
		}
		fmt.Fprintf(&b, " to %s by %s", n.humanizeStatus(evt.Status), evt.ActorName)
		if evt.CounterpartName != "" {
			fmt.Fprintf(&b, " (%s)", evt.CounterpartName)
		}
	}
	return b.String()
}

var camelBoundary = regexp.MustCompile(`([a-z0-9])([A-Z])`)

// humanizeStatus turns "in_progress", "inProgress" or "IN-PROGRESS" into
// "In Progress". A Caser is stateful, so each call gets its own.
func (n *NotificationChannel) humanizeStatus(status string) string {
	s := camelBoundary.ReplaceAllString(strings.TrimSpace(status), "$1 $2")
	s = strings.NewReplacer("_", " ", "-", " ").Replace(s)
	return cases.Title(language.English).String(strings.ToLower(strings.Join(strings.Fields(s), " ")))
}
