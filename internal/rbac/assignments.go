package rbac

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"parishdesk.org/internal/audit"
	"parishdesk.org/internal/ids"
)

// Assignments maps subjects to roles. It is the sole mutator of assignment
// lifecycle; the duplicate check and the insert happen under one critical
// section, and ActiveRolesFor takes the same lock, so an Assign followed by
// a check from the same caller always observes the new grant.
type Assignments struct {
	mu     sync.RWMutex
	roles  *Registry
	audit  *audit.Log
	byUser map[string][]*Assignment
	now    func() time.Time
}

// NewAssignments creates an empty assignment store.
func NewAssignments(roles *Registry, auditLog *audit.Log, now func() time.Time) *Assignments {
	if now == nil {
		now = time.Now
	}
	return &Assignments{
		roles:  roles,
		audit:  auditLog,
		byUser: make(map[string][]*Assignment),
		now:    now,
	}
}

// Assign grants a role to a user. Every attempt is audited, success or
// failure, so the administrative trail shows rejected grants too.
func (s *Assignments) Assign(ctx context.Context, userID, roleID, assignedBy string, expiresAt *time.Time, scope *AssignmentScope) (Assignment, error) {
	out, err := s.assign(userID, roleID, assignedBy, expiresAt, scope)

	entry := audit.Entry{
		UserID:     assignedBy,
		Action:     "assignment.create",
		Resource:   "assignments",
		ResourceID: roleID,
		Granted:    err == nil,
	}
	if err != nil {
		entry.Reason = err.Error()
	} else {
		entry.ResourceID = out.ID
	}
	s.audit.Record(ctx, entry)

	return out, err
}

func (s *Assignments) assign(userID, roleID, assignedBy string, expiresAt *time.Time, scope *AssignmentScope) (Assignment, error) {
	userID = strings.TrimSpace(userID)
	roleID = strings.TrimSpace(roleID)
	assignedBy = strings.TrimSpace(assignedBy)
	if userID == "" || roleID == "" || assignedBy == "" {
		return Assignment{}, fmt.Errorf("%w: user_id, role_id and assigned_by are required", ErrInvalidInput)
	}

	active, maxAssignees, err := s.roles.lookupForAssign(roleID)
	if err != nil {
		return Assignment{}, err
	}
	if !active {
		return Assignment{}, fmt.Errorf("%w: %s", ErrRoleInactive, roleID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// The uniqueness key is (user, role) on the active flag alone. An expired
	// assignment whose flag has not been swept still blocks a re-grant; run
	// SweepExpired first. This keeps the at-most-one-active invariant literal.
	for _, a := range s.byUser[userID] {
		if a.RoleID == roleID && a.Active {
			return Assignment{}, fmt.Errorf("%w: user %s role %s", ErrDuplicateAssignment, userID, roleID)
		}
	}
	if maxAssignees > 0 && s.countActiveLocked(roleID) >= maxAssignees {
		return Assignment{}, fmt.Errorf("%w: %s caps at %d", ErrRoleAtCapacity, roleID, maxAssignees)
	}

	a := &Assignment{
		ID:         ids.New(),
		UserID:     userID,
		RoleID:     roleID,
		AssignedBy: assignedBy,
		AssignedAt: s.now().UTC(),
		ExpiresAt:  copyTime(expiresAt),
		Scope:      copyScope(scope),
		Active:     true,
	}
	s.byUser[userID] = append(s.byUser[userID], a)

	return snapshotAssignment(a), nil
}

// Revoke soft-deletes the active assignment for (user, role). A second call
// on the same pair fails with ErrAssignmentNotFound so callers can detect
// no-op replays; revocation is deliberately not idempotent.
func (s *Assignments) Revoke(ctx context.Context, userID, roleID string) error {
	err := s.revoke(userID, roleID)

	entry := audit.Entry{
		UserID:     userID,
		Action:     "assignment.revoke",
		Resource:   "assignments",
		ResourceID: roleID,
		Granted:    err == nil,
	}
	if err != nil {
		entry.Reason = err.Error()
	}
	s.audit.Record(ctx, entry)

	return err
}

func (s *Assignments) revoke(userID, roleID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.byUser[userID] {
		if a.RoleID == roleID && a.Active {
			a.Active = false
			return nil
		}
	}
	return fmt.Errorf("%w: user %s role %s", ErrAssignmentNotFound, userID, roleID)
}

// ActiveRolesFor returns the user's assignments that are active and not past
// expiry at the given time. This is the only place expiry is interpreted; it
// is a pure filter and flips nothing.
func (s *Assignments) ActiveRolesFor(userID string, at time.Time) []Assignment {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Assignment
	for _, a := range s.byUser[userID] {
		if !a.Active || a.expired(at) {
			continue
		}
		out = append(out, snapshotAssignment(a))
	}
	return out
}

// ListForUser returns the user's assignments, optionally including revoked ones.
func (s *Assignments) ListForUser(userID string, includeInactive bool) []Assignment {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Assignment
	for _, a := range s.byUser[userID] {
		if !includeInactive && !a.Active {
			continue
		}
		out = append(out, snapshotAssignment(a))
	}
	return out
}

// SweepExpired is the explicit maintenance pass that flips the active flag on
// assignments whose expiry has passed. Each flip is audited. Returns the
// number of assignments retired.
func (s *Assignments) SweepExpired(ctx context.Context, at time.Time) int {
	s.mu.Lock()
	var swept []Assignment
	for _, list := range s.byUser {
		for _, a := range list {
			if a.Active && a.expired(at) {
				a.Active = false
				swept = append(swept, snapshotAssignment(a))
			}
		}
	}
	s.mu.Unlock()

	for _, a := range swept {
		s.audit.Record(ctx, audit.Entry{
			UserID:     a.UserID,
			Action:     "assignment.expire",
			Resource:   "assignments",
			ResourceID: a.ID,
			Granted:    true,
			Reason:     "expiry passed",
		})
	}
	return len(swept)
}

// countActiveForRole reports active assignments referencing the role. Bound
// into the registry's delete check at service wiring.
func (s *Assignments) countActiveForRole(roleID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.countActiveLocked(roleID)
}

func (s *Assignments) countActiveLocked(roleID string) int {
	n := 0
	for _, list := range s.byUser {
		for _, a := range list {
			if a.RoleID == roleID && a.Active {
				n++
			}
		}
	}
	return n
}

func snapshotAssignment(a *Assignment) Assignment {
	out := *a
	out.ExpiresAt = copyTime(a.ExpiresAt)
	out.Scope = copyScope(a.Scope)
	return out
}
