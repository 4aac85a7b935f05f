package realtime

import (
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/tbourn/storehub-realtime/internal/domain"
)

// HomeGroupFunc names the group a connection joins automatically on connect.
// An empty result means no home group.
type HomeGroupFunc func(domain.Identity) string

// Directory composes a ConnectionRegistry and a GroupRouter behind a single
// lifecycle lock. Connect and HandleDisconnect update both structures under
// the write lock; target snapshots take the read lock, so a broadcast that
// starts after a disconnect was recorded never sees the removed connection.
//
// One Directory is created per channel at process start and shared by
// reference.
type Directory struct {
	name     string
	home     HomeGroupFunc
	log      zerolog.Logger
	registry *ConnectionRegistry
	router   *GroupRouter

	mu sync.RWMutex
}

// NewDirectory builds a directory for the named channel.
func NewDirectory(name string, home HomeGroupFunc, log zerolog.Logger) *Directory {
	reg := NewConnectionRegistry()
	return &Directory{
		name:     name,
		home:     home,
		log:      log.With().Str("channel", name).Logger(),
		registry: reg,
		router:   NewGroupRouter(reg),
	}
}

// Name returns the channel name the directory was built for.
func (d *Directory) Name() string { return d.name }

// Registry exposes the underlying registry for read-only lookups.
func (d *Directory) Registry() *ConnectionRegistry { return d.registry }

// Router exposes the underlying router for read-only lookups.
func (d *Directory) Router() *GroupRouter { return d.router }

func (d *Directory) homeGroup(id domain.Identity) string {
	if d.home == nil {
		return ""
	}
	return d.home(id)
}

// Connect registers s and joins its home group as one step. It fails with
// ErrHandshakeRejected when the identity is incomplete.
func (d *Directory) Connect(s *Session) error {
	if s == nil || !s.Identity.Valid() {
		return ErrHandshakeRejected
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	prev, existed := d.registry.Lookup(s.ID)
	if !d.registry.AddConnection(s) {
		return ErrHandshakeRejected
	}
	if existed {
		d.dropStaleGroupsLocked(s.ID, prev.Identity, s.Identity)
	}
	if g := d.homeGroup(s.Identity); g != "" {
		if err := d.router.JoinGroup(s.ID, g); err != nil {
			d.registry.RemoveConnection(s.ID)
			return fmt.Errorf("connect %s: %w", s.ID, err)
		}
	}
	if !existed {
		connectionsActive.WithLabelValues(d.name).Inc()
	}
	return nil
}

// dropStaleGroupsLocked removes a re-registered connection from groups its
// previous identity held but the new one may not: every group when the
// tenant changed, otherwise the old home group if it differs.
func (d *Directory) dropStaleGroupsLocked(connID string, prev, next domain.Identity) {
	if prev.TenantID != next.TenantID {
		if left := d.router.LeaveAll(connID); len(left) > 0 {
			d.log.Warn().Str("conn_id", connID).Str("old_tenant", prev.TenantID).
				Str("new_tenant", next.TenantID).Strs("groups", left).Msg("connection re-registered under another tenant")
		}
		return
	}
	if old := d.homeGroup(prev); old != "" && old != d.homeGroup(next) {
		d.router.LeaveGroup(connID, old)
	}
}

// HandleDisconnect removes connID from the registry and from every group it
// joined, atomically with respect to Connect and target snapshots. Unknown
// ids are logged as a consistency warning and otherwise ignored.
func (d *Directory) HandleDisconnect(connID string) (domain.Identity, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	id, found := d.registry.RemoveConnection(connID)
	if !found {
		if left := d.router.LeaveAll(connID); len(left) > 0 {
			d.log.Warn().Str("conn_id", connID).Strs("groups", left).Msg("orphaned memberships removed")
		}
		d.log.Warn().Str("conn_id", connID).Msg("disconnect for unknown connection")
		return domain.Identity{}, false
	}
	if g := d.homeGroup(id); g != "" {
		d.router.LeaveGroup(connID, g)
	}
	d.router.LeaveAll(connID)
	connectionsActive.WithLabelValues(d.name).Dec()
	return id, true
}

// Join adds a live connection to an extra group.
func (d *Directory) Join(connID, group string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.router.JoinGroup(connID, group)
}

// Leave removes a connection from group. The home group cannot be left
// while the connection is live.
func (d *Directory) Leave(connID, group string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	s, ok := d.registry.Lookup(connID)
	if !ok {
		return ErrUnknownConnection
	}
	if group == d.homeGroup(s.Identity) {
		return ErrGroupForbidden
	}
	d.router.LeaveGroup(connID, group)
	return nil
}

// Lookup returns the live session for connID.
func (d *Directory) Lookup(connID string) (*Session, bool) {
	return d.registry.Lookup(connID)
}

// Members returns the live sessions currently joined to group.
func (d *Directory) Members(group string) []*Session {
	return d.Targets([]string{group}, nil, nil)
}

// Targets resolves the union of the given groups and users' connections to
// live sessions, deduplicated, under one read lock. keep, when non-nil,
// filters the result.
func (d *Directory) Targets(groups, users []string, keep func(*Session) bool) []*Session {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var ids []string
	for _, g := range groups {
		if g != "" {
			ids = append(ids, d.router.Members(g)...)
		}
	}
	for _, u := range users {
		if u != "" {
			ids = append(ids, d.registry.GetConnections(u)...)
		}
	}

	out := make([]*Session, 0, len(ids))
	for _, id := range lo.Uniq(ids) {
		s, ok := d.registry.Lookup(id)
		if !ok {
			continue
		}
		if keep != nil && !keep(s) {
			continue
		}
		out = append(out, s)
	}
	return out
}

// Sessions returns every live session.
func (d *Directory) Sessions() []*Session {
	return d.registry.Sessions()
}

// Stats summarizes the directory for the stats endpoint.
type Stats struct {
	Channel     string         `json:"channel"`
	Connections int            `json:"connections"`
	Users       int            `json:"users"`
	Groups      map[string]int `json:"groups"`
}

// Stats returns a point-in-time summary.
func (d *Directory) Stats() Stats {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return Stats{
		Channel:     d.name,
		Connections: d.registry.Len(),
		Users:       d.registry.UserCount(),
		Groups:      d.router.GroupSizes(),
	}
}

// CloseAll closes every live session and runs HandleDisconnect for it.
func (d *Directory) CloseAll(code int, reason string) int {
	sessions := d.Sessions()
	for _, s := range sessions {
		s.Close(code, reason)
		d.HandleDisconnect(s.ID)
	}
	return len(sessions)
}

// CheckConsistency audits the registry and router against each other and
// returns every violation found; nil means consistent.
func (d *Directory) CheckConsistency() error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var errs []error
	for group, size := range d.router.GroupSizes() {
		if size == 0 {
			errs = append(errs, fmt.Errorf("group %q is empty but present", group))
		}
		for _, id := range d.router.Members(group) {
			if !d.registry.Has(id) {
				errs = append(errs, fmt.Errorf("group %q holds unregistered connection %q", group, id))
			}
		}
	}
	for _, s := range d.registry.Sessions() {
		if g := d.homeGroup(s.Identity); g != "" && !d.router.IsMember(s.ID, g) {
			errs = append(errs, fmt.Errorf("connection %q missing from home group %q", s.ID, g))
		}
		for _, g := range d.router.GroupsOf(s.ID) {
			if tenantScoped(g) && !ownedBy(g, s.Identity.TenantID) {
				errs = append(errs, fmt.Errorf("connection %q of tenant %q is in foreign group %q", s.ID, s.Identity.TenantID, g))
			}
		}
	}
	for user, ids := range d.registry.userIndex() {
		if len(ids) == 0 {
			errs = append(errs, fmt.Errorf("user %q has an empty connection set", user))
		}
		for _, id := range ids {
			s, ok := d.registry.Lookup(id)
			if !ok || s.Identity.UserID != user {
				errs = append(errs, fmt.Errorf("user %q indexes stale connection %q", user, id))
			}
		}
	}
	return errors.Join(errs...)
}
