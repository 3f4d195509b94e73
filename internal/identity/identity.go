// Package identity models actors and their resolved role sets.
//
// Authentication itself is an external collaborator; this package only
// carries the resolved identity through a request and answers role and
// permission questions about it.
package identity

import (
	"context"
	"sort"
)

// Actor is a resolved user identity with its role memberships.
type Actor struct {
	ID    string   `json:"id"`
	Name  string   `json:"name,omitempty"`
	Roles []string `json:"roles"`
}

// Directory resolves an actor id into its role set. Implementations wrap the
// external identity/role collaborator; the result is resolved once per
// request and cached on the request context.
type Directory interface {
	Resolve(ctx context.Context, actorID string) (Actor, error)
}

type actorCtxKey struct{}

// WithActor caches a resolved actor on the request context.
func WithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorCtxKey{}, actor)
}

// ActorFrom returns the actor cached on the context, if any.
func ActorFrom(ctx context.Context) (Actor, bool) {
	actor, ok := ctx.Value(actorCtxKey{}).(Actor)
	return actor, ok
}

// RoleSet is an unordered set of role names.
type RoleSet map[string]struct{}

// NewRoleSet builds a set from role names.
func NewRoleSet(roles ...string) RoleSet {
	s := make(RoleSet, len(roles))
	for _, r := range roles {
		s[r] = struct{}{}
	}
	return s
}

// Has reports membership.
func (s RoleSet) Has(role string) bool {
	_, ok := s[role]
	return ok
}

// Add inserts a role.
func (s RoleSet) Add(role string) {
	s[role] = struct{}{}
}

// Intersects reports whether the two sets share any role.
func (s RoleSet) Intersects(other RoleSet) bool {
	for r := range s {
		if other.Has(r) {
			return true
		}
	}
	return false
}

// Values returns the roles in sorted order.
func (s RoleSet) Values() []string {
	out := make([]string, 0, len(s))
	for r := range s {
		out = append(out, r)
	}
	sort.Strings(out)
	return out
}
