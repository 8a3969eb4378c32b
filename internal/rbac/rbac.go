// Package rbac is the sole authority consulted at every privileged
// boundary of the session fabric (session create/join/leave, consensus
// veto). No caller may bypass it.
package rbac

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/ajitpratap0/swarmfabric/internal/audit"
	"github.com/ajitpratap0/swarmfabric/internal/metrics"
)

// Actions recognized by the core. Collaborators may define their own;
// these are the ones the session manager and consensus engine call.
const (
	ActionSessionCreate = "session.create"
	ActionSessionJoin   = "session.join"
	ActionSessionLeave  = "session.leave"
	ActionConsensusVeto = "consensus.veto"
)

// Decision is the result of a Guard.Check call.
type Decision struct {
	Allowed bool
	Reason  string
}

// Guard is the single operation every privileged boundary consults:
// check(userId, resourceId, resourceType, action) -> {allowed, reason}.
type Guard interface {
	Check(ctx context.Context, userID, resourceID, resourceType, action string) (Decision, error)
}

// RoleSet maps a role name to the set of actions it may perform.
// "*" grants every action, mirroring the teacher's wildcard/admin
// escape hatch in RequirePermission.
type RoleSet map[string][]string

// StaticGuard is a table-driven reference Guard: a user's role is
// looked up, then the role's allowed-action list is consulted. It is
// grounded on internal/api/auth_middleware.go's RequirePermission,
// generalized from HTTP gin-context permission strings to the
// (userId, resourceId, resourceType, action) tuple the spec requires.
type StaticGuard struct {
	mu        sync.RWMutex
	userRoles map[string]string // userID -> role
	roles     RoleSet
	audit     *audit.Logger
	log       zerolog.Logger
}

// NewStaticGuard builds a guard from a role table. userRoles may be
// nil/empty; unknown users get the "default" role if one is defined,
// otherwise every action is denied.
func NewStaticGuard(roles RoleSet, userRoles map[string]string, auditLogger *audit.Logger, log zerolog.Logger) *StaticGuard {
	if userRoles == nil {
		userRoles = make(map[string]string)
	}
	return &StaticGuard{
		userRoles: userRoles,
		roles:     roles,
		audit:     auditLogger,
		log:       log.With().Str("component", "rbac").Logger(),
	}
}

// SetRole assigns userID to role, overwriting any prior assignment.
func (g *StaticGuard) SetRole(userID, role string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.userRoles[userID] = role
}

// Check implements Guard.
func (g *StaticGuard) Check(ctx context.Context, userID, resourceID, resourceType, action string) (Decision, error) {
	g.mu.RLock()
	role, known := g.userRoles[userID]
	if !known {
		role = "default"
	}
	actions, roleExists := g.roles[role]
	g.mu.RUnlock()

	decision := Decision{Allowed: false, Reason: fmt.Sprintf("role %q has no permission for action %q", role, action)}
	if roleExists {
		for _, a := range actions {
			if a == "*" || a == "admin" || a == action {
				decision = Decision{Allowed: true, Reason: "granted"}
				break
			}
		}
	}

	g.log.Debug().
		Str("user_id", userID).
		Str("resource_id", resourceID).
		Str("resource_type", resourceType).
		Str("action", action).
		Bool("allowed", decision.Allowed).
		Msg("rbac check")

	metrics.RecordRBACCheck(action, decision.Allowed)

	if g.audit != nil {
		_ = g.audit.LogPermissionCheck(ctx, userID, resourceID, resourceType, action, decision.Reason, decision.Allowed)
	}

	return decision, nil
}

// DefaultRoles is a reasonable out-of-the-box table: "member" can join
// and leave and veto; "host" additionally can create sessions; "admin"
// can do everything. Deployments are expected to supply their own.
func DefaultRoles() RoleSet {
	return RoleSet{
		"admin":   {"*"},
		"host":    {ActionSessionCreate, ActionSessionJoin, ActionSessionLeave, ActionConsensusVeto},
		"member":  {ActionSessionJoin, ActionSessionLeave, ActionConsensusVeto},
		"default": {ActionSessionJoin, ActionSessionLeave},
	}
}
