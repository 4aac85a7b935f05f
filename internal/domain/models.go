// Package domain defines the value types that flow through the realtime
// subsystem: caller identity, chat messages, order events and the
// notifications built from them. Only the idempotency ledger is persisted.
package domain

import (
	"slices"
	"strings"
	"time"
)

// Identity is the verified (user, tenant) pair resolved at handshake time.
// It is immutable for the lifetime of a connection.
type Identity struct {
	UserID      string   `json:"user_id"`
	TenantID    string   `json:"tenant_id"`
	DisplayName string   `json:"display_name,omitempty"`
	Roles       []string `json:"roles,omitempty"`
}

// Valid reports whether both the user and tenant claims resolved.
func (i Identity) Valid() bool {
	return strings.TrimSpace(i.UserID) != "" && strings.TrimSpace(i.TenantID) != ""
}

// HasAnyRole reports whether the identity carries at least one of roles.
// Comparison is case-insensitive.
func (i Identity) HasAnyRole(roles ...string) bool {
	for _, want := range roles {
		if slices.ContainsFunc(i.Roles, func(have string) bool {
			return strings.EqualFold(have, want)
		}) {
			return true
		}
	}
	return false
}

// Name returns the display name, falling back to the user id.
func (i Identity) Name() string {
	if n := strings.TrimSpace(i.DisplayName); n != "" {
		return n
	}
	return i.UserID
}

// ChatMessage is a transient tenant-wide chat line. It is stamped by the
// server and discarded after fan-out.
type ChatMessage struct {
	SenderUserID string    `json:"sender_user_id"`
	SenderName   string    `json:"sender_name"`
	Body         string    `json:"body"`
	TimestampUTC time.Time `json:"timestamp_utc"`
}

// NotificationType tags what happened to an order.
type NotificationType string

const (
	NotificationCreated       NotificationType = "created"
	NotificationStatusChanged NotificationType = "statusChanged"
)

// Valid reports whether t is a known notification type.
func (t NotificationType) Valid() bool {
	return t == NotificationCreated || t == NotificationStatusChanged
}

// OrderEvent is emitted by the order-management collaborator whenever an
// order is created or changes status.
type OrderEvent struct {
	// EventID optionally identifies the event for deduplication.
	EventID string           `json:"event_id,omitempty" validate:"omitempty,max=200"`
	Type    NotificationType `json:"type"               validate:"required,oneof=created statusChanged"`
	// TenantID is the company that owns the order.
	TenantID       string `json:"tenant_id"              validate:"required,max=64"`
	OrderID        string `json:"order_id"               validate:"required,max=64"`
	ActorName      string `json:"actor_name"             validate:"required,max=200"`
	Status         string `json:"status,omitempty"       validate:"required_if=Type statusChanged,max=64"`
	PreviousStatus string `json:"previous_status,omitempty" validate:"max=64"`
	// CounterpartName is the other party, e.g. the storehouse or customer.
	CounterpartName string `json:"counterpart_name,omitempty" validate:"max=200"`
	Note            string `json:"note,omitempty"             validate:"max=1000"`
	// AssigneeUserID targets a specific user in the same tenant in addition
	// to the tenant's notification group.
	AssigneeUserID string `json:"assignee_user_id,omitempty" validate:"max=64"`
	// Group optionally targets a sub-group under the tenant's namespace.
	Group string `json:"group,omitempty" validate:"max=200"`
}

// NotificationPayload is the body of a delivered notification.
type NotificationPayload struct {
	OrderID string `json:"order_id"`
	Actor   string `json:"actor"`
	Message string `json:"message"`
	Note    string `json:"note,omitempty"`
}

// Notification is a transient, client-visible order notice. Read state is
// tracked by the client.
type Notification struct {
	ID           string              `json:"id"`
	Type         NotificationType    `json:"type"`
	Payload      NotificationPayload `json:"payload"`
	TimestampUTC time.Time           `json:"timestamp_utc"`
	Read         bool                `json:"read"`
}
