package rbac

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"parishdesk.org/internal/ids"
)

// Catalog is the registry of fine-grained capabilities. Entries are registered
// at startup from the built-in table (plus whatever an operator adds) and are
// never mutated afterwards beyond their active flag.
type Catalog struct {
	mu    sync.RWMutex
	byID  map[string]*Permission
	byKey map[string]*Permission // resource + "\x00" + action
	order []string               // registration order, for stable listings
	now   func() time.Time
}

// PermissionFilter narrows List results. Zero-value fields match everything.
type PermissionFilter struct {
	Resource string
	Category Category
	Scope    ScopeClass
}

// NewCatalog creates an empty catalog.
func NewCatalog(now func() time.Time) *Catalog {
	if now == nil {
		now = time.Now
	}
	return &Catalog{
		byID:  make(map[string]*Permission),
		byKey: make(map[string]*Permission),
		now:   now,
	}
}

// Register adds a permission to the catalog. The (resource, action) pair is
// the identity; registering it twice fails with ErrDuplicatePermission.
func (c *Catalog) Register(p Permission) (Permission, error) {
	p.Resource = strings.TrimSpace(strings.ToLower(p.Resource))
	p.Action = strings.TrimSpace(strings.ToLower(p.Action))
	if p.Resource == "" || p.Action == "" {
		return Permission{}, fmt.Errorf("%w: resource and action are required", ErrInvalidInput)
	}
	switch p.Scope {
	case ScopeGlobal, ScopeChurch, ScopeTeam, ScopeSelf:
	default:
		return Permission{}, fmt.Errorf("%w: unsupported scope %q", ErrInvalidInput, p.Scope)
	}
	switch p.Category {
	case CategoryCore, CategoryAdmin, CategoryMinistry, CategoryFinancial:
	default:
		return Permission{}, fmt.Errorf("%w: unsupported category %q", ErrInvalidInput, p.Category)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	key := permKey(p.Resource, p.Action)
	if _, ok := c.byKey[key]; ok {
		return Permission{}, fmt.Errorf("%w: %s/%s", ErrDuplicatePermission, p.Resource, p.Action)
	}
	p.ID = ids.New()
	p.Active = true
	p.CreatedAt = c.now().UTC()

	stored := p
	c.byID[p.ID] = &stored
	c.byKey[key] = &stored
	c.order = append(c.order, p.ID)
	return p, nil
}

// Get returns the permission with the given id.
func (c *Catalog) Get(id string) (Permission, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.byID[id]
	if !ok {
		return Permission{}, fmt.Errorf("%w: %s", ErrPermissionNotFound, id)
	}
	return *p, nil
}

// Lookup finds a permission by its (resource, action) identity.
func (c *Catalog) Lookup(resource, action string) (Permission, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.byKey[permKey(strings.ToLower(resource), strings.ToLower(action))]
	if !ok {
		return Permission{}, false
	}
	return *p, true
}

// List returns catalog entries matching the filter in registration order.
func (c *Catalog) List(filter PermissionFilter) []Permission {
	filter.Resource = strings.TrimSpace(strings.ToLower(filter.Resource))

	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []Permission
	for _, id := range c.order {
		p := c.byID[id]
		if filter.Resource != "" && p.Resource != filter.Resource {
			continue
		}
		if filter.Category != "" && p.Category != filter.Category {
			continue
		}
		if filter.Scope != "" && p.Scope != filter.Scope {
			continue
		}
		out = append(out, *p)
	}
	return out
}

// Deactivate retires a permission. Roles referencing it keep the id, but the
// decision engine filters inactive entries, so the grant silently stops.
// There is no cascade and no reactivation-by-mutation path.
func (c *Catalog) Deactivate(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.byID[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrPermissionNotFound, id)
	}
	p.Active = false
	return nil
}

func permKey(resource, action string) string {
	return resource + "\x00" + action
}
