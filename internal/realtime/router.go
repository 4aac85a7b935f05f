package realtime

import (
	"fmt"
	"strings"
	"sync"

	"github.com/samber/lo"
)

// Group name prefixes. Chat uses one group per tenant; notifications use a
// per-tenant group plus optional sub-groups beneath it.
const (
	tenantGroupPrefix = "tenant:"
	notifyGroupPrefix = "notify:"
)

// TenantGroup returns the chat broadcast group for tenantID.
func TenantGroup(tenantID string) string { return tenantGroupPrefix + tenantID }

// NotifyGroup returns the notification group for tenantID.
func NotifyGroup(tenantID string) string { return notifyGroupPrefix + tenantID }

// InTenantNamespace reports whether group is a sub-group of tenantID's
// notification group, e.g. "notify:T1:storehouse-7".
func InTenantNamespace(group, tenantID string) bool {
	prefix := NotifyGroup(tenantID) + ":"
	return tenantID != "" && strings.HasPrefix(group, prefix) && len(group) > len(prefix)
}

// tenantScoped reports whether group belongs to some tenant's namespace.
func tenantScoped(group string) bool {
	return strings.HasPrefix(group, tenantGroupPrefix) || strings.HasPrefix(group, notifyGroupPrefix)
}

// ownedBy reports whether group is one of tenantID's groups.
func ownedBy(group, tenantID string) bool {
	return group == TenantGroup(tenantID) || group == NotifyGroup(tenantID) || InTenantNamespace(group, tenantID)
}

// membershipChecker is the part of the registry the router consults before
// admitting a connection to a group.
type membershipChecker interface {
	Has(connID string) bool
}

// GroupRouter tracks which connections belong to which named group. It keeps
// a reverse index so a disconnect can leave every group in one step.
//
// GroupRouter is safe for concurrent use.
type GroupRouter struct {
	registry membershipChecker

	mu      sync.RWMutex
	members map[string]map[string]struct{}
	joined  map[string]map[string]struct{}
}

// NewGroupRouter returns a router that only admits connections known to reg.
func NewGroupRouter(reg membershipChecker) *GroupRouter {
	return &GroupRouter{
		registry: reg,
		members:  make(map[string]map[string]struct{}),
		joined:   make(map[string]map[string]struct{}),
	}
}

// JoinGroup adds connID to group. The registry must already hold connID.
func (g *GroupRouter) JoinGroup(connID, group string) error {
	if strings.TrimSpace(group) == "" {
		return fmt.Errorf("join group: %w", ErrGroupForbidden)
	}
	if g.registry != nil && !g.registry.Has(connID) {
		return fmt.Errorf("join %q: %w", group, ErrUnknownConnection)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	addEdge(g.members, group, connID)
	addEdge(g.joined, connID, group)
	return nil
}

// LeaveGroup removes connID from group; absent memberships are a no-op.
func (g *GroupRouter) LeaveGroup(connID, group string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	dropEdge(g.members, group, connID)
	dropEdge(g.joined, connID, group)
}

// LeaveAll removes connID from every group and returns the groups it left.
func (g *GroupRouter) LeaveAll(connID string) []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	groups := lo.Keys(g.joined[connID])
	for _, grp := range groups {
		dropEdge(g.members, grp, connID)
	}
	delete(g.joined, connID)
	return groups
}

// Members returns a snapshot of group's connection ids.
func (g *GroupRouter) Members(group string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return lo.Keys(g.members[group])
}

// IsMember reports whether connID belongs to group.
func (g *GroupRouter) IsMember(connID, group string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.members[group][connID]
	return ok
}

// GroupsOf returns the groups connID belongs to.
func (g *GroupRouter) GroupsOf(connID string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return lo.Keys(g.joined[connID])
}

// GroupSizes returns the member count of every non-empty group.
func (g *GroupRouter) GroupSizes() map[string]int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return lo.MapValues(g.members, func(set map[string]struct{}, _ string) int {
		return len(set)
	})
}

func addEdge(m map[string]map[string]struct{}, k, v string) {
	set, ok := m[k]
	if !ok {
		set = make(map[string]struct{})
		m[k] = set
	}
	set[v] = struct{}{}
}

func dropEdge(m map[string]map[string]struct{}, k, v string) {
	set, ok := m[k]
	if !ok {
		return
	}
	delete(set, v)
	if len(set) == 0 {
		delete(m, k)
	}
}
