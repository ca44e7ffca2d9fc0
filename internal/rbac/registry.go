package rbac

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"parishdesk.org/internal/ids"
)

// Registry holds role definitions. Reads vastly outnumber writes (every
// permission check walks role permission sets), so it is guarded by an
// RW-mutex and hands out copies.
type Registry struct {
	mu      sync.RWMutex
	catalog *Catalog
	byID    map[string]*Role
	order   []string
	now     func() time.Time

	// activeAssignments is bound by the service at wiring time; the registry
	// consults it before deleting a role.
	activeAssignments func(roleID string) int
}

// RolePatch updates a role. Nil fields are left untouched.
type RolePatch struct {
	Name          *string
	Description   *string
	Level         *int
	PermissionIDs *[]string
	Restrictions  *Restrictions
	Active        *bool
}

func (p RolePatch) touchesMoreThanActive() bool {
	return p.Name != nil || p.Description != nil || p.Level != nil ||
		p.PermissionIDs != nil || p.Restrictions != nil
}

// NewRegistry creates an empty registry validating permission ids against the catalog.
func NewRegistry(catalog *Catalog, now func() time.Time) *Registry {
	if now == nil {
		now = time.Now
	}
	return &Registry{
		catalog: catalog,
		byID:    make(map[string]*Role),
		now:     now,
	}
}

// Create adds a custom role. Every permission id must exist in the catalog;
// duplicates in the incoming set collapse. System roles are built in and
// cannot be created through this path.
func (r *Registry) Create(role Role) (Role, error) {
	if role.Type == RoleSystem {
		return Role{}, fmt.Errorf("%w: system roles are built in", ErrInvalidInput)
	}
	role.Type = RoleCustom
	return r.create(role)
}

func (r *Registry) create(role Role) (Role, error) {
	role.Name = strings.TrimSpace(role.Name)
	if role.Name == "" {
		return Role{}, fmt.Errorf("%w: role name is required", ErrInvalidInput)
	}
	perms, err := r.normalizePermissions(role.PermissionIDs)
	if err != nil {
		return Role{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now().UTC()
	role.ID = ids.New()
	role.PermissionIDs = perms
	role.Active = true
	role.CreatedAt = now
	role.UpdatedAt = now

	stored := role
	r.byID[role.ID] = &stored
	r.order = append(r.order, role.ID)
	return role, nil
}

// Update applies a patch. System roles accept only an Active toggle; anything
// else fails with ErrImmutableSystemRole.
func (r *Registry) Update(id string, patch RolePatch) (Role, error) {
	var perms []string
	if patch.PermissionIDs != nil {
		var err error
		perms, err = r.normalizePermissions(*patch.PermissionIDs)
		if err != nil {
			return Role{}, err
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	role, ok := r.byID[id]
	if !ok {
		return Role{}, fmt.Errorf("%w: %s", ErrRoleNotFound, id)
	}
	if role.Type == RoleSystem && patch.touchesMoreThanActive() {
		return Role{}, ErrImmutableSystemRole
	}
	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		if name == "" {
			return Role{}, fmt.Errorf("%w: role name is required", ErrInvalidInput)
		}
		role.Name = name
	}
	if patch.Description != nil {
		role.Description = strings.TrimSpace(*patch.Description)
	}
	if patch.Level != nil {
		role.Level = *patch.Level
	}
	if patch.PermissionIDs != nil {
		role.PermissionIDs = perms
	}
	if patch.Restrictions != nil {
		role.Restrictions = *patch.Restrictions
	}
	if patch.Active != nil {
		role.Active = *patch.Active
	}
	role.UpdatedAt = r.now().UTC()

	out := *role
	out.PermissionIDs = copyStrings(role.PermissionIDs)
	return out, nil
}

// Delete removes a custom role. System roles always refuse; a role with
// active assignments refuses with the count so the UI can say why.
func (r *Registry) Delete(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	role, ok := r.byID[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrRoleNotFound, id)
	}
	if role.Type == RoleSystem {
		return ErrSystemRoleProtected
	}
	if r.activeAssignments != nil {
		if n := r.activeAssignments(id); n > 0 {
			return &RoleInUseError{RoleID: id, Count: n}
		}
	}
	delete(r.byID, id)
	for i, oid := range r.order {
		if oid == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return nil
}

// Get returns the role with the given id.
func (r *Registry) Get(id string) (Role, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	role, ok := r.byID[id]
	if !ok {
		return Role{}, fmt.Errorf("%w: %s", ErrRoleNotFound, id)
	}
	out := *role
	out.PermissionIDs = copyStrings(role.PermissionIDs)
	return out, nil
}

// List returns roles ordered by descending level, then name. Level is a
// presentation hint only; nothing in the decision path reads it.
func (r *Registry) List(includeInactive bool) []Role {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Role, 0, len(r.byID))
	for _, id := range r.order {
		role := r.byID[id]
		if !includeInactive && !role.Active {
			continue
		}
		cp := *role
		cp.PermissionIDs = copyStrings(role.PermissionIDs)
		out = append(out, cp)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Level != out[j].Level {
			return out[i].Level > out[j].Level
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// permissionsOf returns the permission id set of a role, or nil if the role
// is missing or inactive. Used by the decision engine.
func (r *Registry) permissionsOf(roleID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	role, ok := r.byID[roleID]
	if !ok || !role.Active {
		return nil
	}
	return copyStrings(role.PermissionIDs)
}

// lookupForAssign returns the role state the assignment store needs.
func (r *Registry) lookupForAssign(roleID string) (active bool, maxAssignees int, err error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	role, ok := r.byID[roleID]
	if !ok {
		return false, 0, fmt.Errorf("%w: %s", ErrRoleNotFound, roleID)
	}
	return role.Active, role.Restrictions.MaxAssignees, nil
}

func (r *Registry) bindAssignments(count func(roleID string) int) {
	r.activeAssignments = count
}

// normalizePermissions dedupes the incoming ids and verifies each against the catalog.
func (r *Registry) normalizePermissions(in []string) ([]string, error) {
	set := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, id := range in {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := set[id]; ok {
			continue
		}
		if _, err := r.catalog.Get(id); err != nil {
			return nil, fmt.Errorf("%w: %s", ErrUnknownPermission, id)
		}
		set[id] = struct{}{}
		out = append(out, id)
	}
	return out, nil
}
