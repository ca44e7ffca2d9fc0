package rbac

import (
	"context"
	"fmt"
	"time"

	"parishdesk.org/internal/audit"
	"parishdesk.org/internal/obs"
)

// Service wires the catalog, role registry, assignment store and request
// queue into one facade and runs permission checks against them. All state
// is in memory; the audit log is the only component with an external
// collaborator (its archiver).
type Service struct {
	catalog     *Catalog
	roles       *Registry
	assignments *Assignments
	requests    *Requests
	audit       *audit.Log
	now         func() time.Time
}

// ServiceOption configures the service.
type ServiceOption func(*Service)

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// New builds a service seeded with the built-in permission catalog and
// system roles. The built-in tables are validated at startup; a broken seed
// is a programming error and panics.
func New(auditLog *audit.Log, opts ...ServiceOption) *Service {
	s := &Service{
		audit: auditLog,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.catalog = NewCatalog(s.now)
	s.roles = NewRegistry(s.catalog, s.now)
	s.assignments = NewAssignments(s.roles, auditLog, s.now)
	s.requests = NewRequests(s.roles, s.assignments, auditLog, s.now)
	s.roles.bindAssignments(s.assignments.countActiveForRole)

	for _, p := range builtinPermissions {
		if _, err := s.catalog.Register(p); err != nil {
			panic(fmt.Sprintf("rbac: built-in permission %s/%s: %v", p.Resource, p.Action, err))
		}
	}
	for _, seed := range builtinRoles {
		permIDs := make([]string, 0, len(seed.permissions))
		for _, pair := range seed.permissions {
			p, ok := s.catalog.Lookup(pair[0], pair[1])
			if !ok {
				panic(fmt.Sprintf("rbac: built-in role %q references unknown permission %s/%s", seed.name, pair[0], pair[1]))
			}
			permIDs = append(permIDs, p.ID)
		}
		if _, err := s.roles.create(Role{
			Name:          seed.name,
			Description:   seed.description,
			Level:         seed.level,
			Type:          RoleSystem,
			PermissionIDs: permIDs,
			Restrictions:  seed.restrictions,
		}); err != nil {
			panic(fmt.Sprintf("rbac: built-in role %q: %v", seed.name, err))
		}
	}
	return s
}

// HasPermission decides whether the user may perform action on resource in
// the given context. It walks the user's active assignments, then each
// role's permission set, and grants on the first match whose scope fits.
// The second return value is the matched permission id, empty on denial.
// Every call is audited; the method itself never fails.
func (s *Service) HasPermission(ctx context.Context, userID, resource, action string, sc ScopeContext) (bool, string) {
	granted, permID, reason := s.decide(userID, resource, action, sc)

	obs.CountDecision(granted)
	s.audit.Record(ctx, audit.Entry{
		UserID:       userID,
		Action:       action,
		Resource:     resource,
		PermissionID: permID,
		Granted:      granted,
		Reason:       reason,
	})
	return granted, permID
}

func (s *Service) decide(userID, resource, action string, sc ScopeContext) (granted bool, permID, reason string) {
	now := s.now().UTC()
	for _, a := range s.assignments.ActiveRolesFor(userID, now) {
		for _, pid := range s.roles.permissionsOf(a.RoleID) {
			p, err := s.catalog.Get(pid)
			if err != nil || !p.Active {
				continue
			}
			if p.Resource != resource || p.Action != action {
				continue
			}
			if !scopeMatches(p.Scope, a.Scope, sc) {
				continue
			}
			return true, p.ID, ""
		}
	}
	return false, "", "insufficient permissions"
}

// scopeMatches applies the permission's scope class against the assignment's
// scope and the caller's context. Global and self permissions apply anywhere;
// church and team permissions need the context to name a church or team the
// assignment covers. An unscoped assignment covers all of them.
func scopeMatches(class ScopeClass, as *AssignmentScope, sc ScopeContext) bool {
	switch class {
	case ScopeGlobal, ScopeSelf:
		return true
	case ScopeChurch:
		if sc.ChurchID == "" {
			return false
		}
		return as == nil || as.ContainsChurch(sc.ChurchID)
	case ScopeTeam:
		if sc.TeamID == "" {
			return false
		}
		return as == nil || as.ContainsTeam(sc.TeamID)
	default:
		return false
	}
}

// RegisterPermission adds a catalog entry and audits the mutation.
func (s *Service) RegisterPermission(ctx context.Context, actorID string, p Permission) (Permission, error) {
	out, err := s.catalog.Register(p)
	s.auditMutation(ctx, actorID, "permission.register", "permissions", out.ID, err)
	return out, err
}

// GetPermission returns a catalog entry by id.
func (s *Service) GetPermission(id string) (Permission, error) {
	return s.catalog.Get(id)
}

// ListPermissions returns catalog entries matching the filter.
func (s *Service) ListPermissions(filter PermissionFilter) []Permission {
	return s.catalog.List(filter)
}

// DeactivatePermission retires a catalog entry and audits the mutation.
func (s *Service) DeactivatePermission(ctx context.Context, actorID, id string) error {
	err := s.catalog.Deactivate(id)
	s.auditMutation(ctx, actorID, "permission.deactivate", "permissions", id, err)
	return err
}

// CreateRole adds a custom role and audits the mutation.
func (s *Service) CreateRole(ctx context.Context, actorID string, role Role) (Role, error) {
	out, err := s.roles.Create(role)
	s.auditMutation(ctx, actorID, "role.create", "roles", out.ID, err)
	return out, err
}

// UpdateRole patches a role and audits the mutation.
func (s *Service) UpdateRole(ctx context.Context, actorID, id string, patch RolePatch) (Role, error) {
	out, err := s.roles.Update(id, patch)
	s.auditMutation(ctx, actorID, "role.update", "roles", id, err)
	return out, err
}

// DeleteRole removes a custom role and audits the mutation.
func (s *Service) DeleteRole(ctx context.Context, actorID, id string) error {
	err := s.roles.Delete(id)
	s.auditMutation(ctx, actorID, "role.delete", "roles", id, err)
	return err
}

// GetRole returns a role by id.
func (s *Service) GetRole(id string) (Role, error) {
	return s.roles.Get(id)
}

// ListRoles returns roles ordered by level descending.
func (s *Service) ListRoles(includeInactive bool) []Role {
	return s.roles.List(includeInactive)
}

// Assign grants a role to a user. The assignment store audits every attempt.
func (s *Service) Assign(ctx context.Context, userID, roleID, assignedBy string, expiresAt *time.Time, scope *AssignmentScope) (Assignment, error) {
	return s.assignments.Assign(ctx, userID, roleID, assignedBy, expiresAt, scope)
}

// Revoke soft-deletes an active assignment.
func (s *Service) Revoke(ctx context.Context, userID, roleID string) error {
	return s.assignments.Revoke(ctx, userID, roleID)
}

// ActiveRolesFor returns the user's live assignments as of now.
func (s *Service) ActiveRolesFor(userID string) []Assignment {
	return s.assignments.ActiveRolesFor(userID, s.now().UTC())
}

// ListAssignments returns the user's assignments, optionally including revoked ones.
func (s *Service) ListAssignments(userID string, includeInactive bool) []Assignment {
	return s.assignments.ListForUser(userID, includeInactive)
}

// SweepExpired retires assignments past their expiry and returns the count.
func (s *Service) SweepExpired(ctx context.Context) int {
	return s.assignments.SweepExpired(ctx, s.now().UTC())
}

// CreateRoleRequest files a pending role request.
func (s *Service) CreateRoleRequest(ctx context.Context, userID, roleID, requestedBy, reason string, expiresAt *time.Time) (RoleRequest, error) {
	return s.requests.Create(ctx, userID, roleID, requestedBy, reason, expiresAt)
}

// ReviewRoleRequest settles a pending request.
func (s *Service) ReviewRoleRequest(ctx context.Context, requestID, reviewerID string, approve bool, notes string) (RoleRequest, error) {
	return s.requests.Review(ctx, requestID, reviewerID, approve, notes)
}

// GetRoleRequest returns a request by id.
func (s *Service) GetRoleRequest(id string) (RoleRequest, error) {
	return s.requests.Get(id)
}

// ListRoleRequests returns requests newest first, optionally filtered by status.
func (s *Service) ListRoleRequests(status RequestStatus) []RoleRequest {
	return s.requests.List(status)
}

// QueryAudit exposes the audit trail for operators.
func (s *Service) QueryAudit(f audit.Filter) []audit.Entry {
	return s.audit.Query(f)
}

func (s *Service) auditMutation(ctx context.Context, actorID, action, resource, resourceID string, err error) {
	entry := audit.Entry{
		UserID:     actorID,
		Action:     action,
		Resource:   resource,
		ResourceID: resourceID,
		Granted:    err == nil,
	}
	if err != nil {
		entry.Reason = err.Error()
	}
	s.audit.Record(ctx, entry)
}
