package rbac

import "time"

// ScopeClass bounds where a granted permission applies.
type ScopeClass string

const (
	ScopeGlobal ScopeClass = "global"
	ScopeChurch ScopeClass = "church"
	ScopeTeam   ScopeClass = "team"
	ScopeSelf   ScopeClass = "self"
)

// Category groups catalog entries for the admin UI.
type Category string

const (
	CategoryCore      Category = "core"
	CategoryAdmin     Category = "admin"
	CategoryMinistry  Category = "ministry"
	CategoryFinancial Category = "financial"
)

// RoleType distinguishes built-in roles from operator-defined ones.
type RoleType string

const (
	RoleSystem RoleType = "system"
	RoleCustom RoleType = "custom"
)

// Permission is a fine-grained capability identified by its (resource, action) pair.
type Permission struct {
	ID          string     `json:"id"`
	Resource    string     `json:"resource"`
	Action      string     `json:"action"`
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	Scope       ScopeClass `json:"scope"`
	Category    Category   `json:"category"`
	Active      bool       `json:"active"`
	CreatedAt   time.Time  `json:"created_at"`
}

// Restrictions carries per-role assignment constraints.
type Restrictions struct {
	// MaxAssignees caps concurrently active assignments; zero means unlimited.
	MaxAssignees     int  `json:"max_assignees,omitempty"`
	ChurchSpecific   bool `json:"church_specific,omitempty"`
	RequiresApproval bool `json:"requires_approval,omitempty"`
}

// Role bundles permissions under a name. Level is a display and sorting hint,
// not an inheritance mechanism: a level-8 role grants nothing beyond its own set.
type Role struct {
	ID            string       `json:"id"`
	Name          string       `json:"name"`
	Description   string       `json:"description,omitempty"`
	Level         int          `json:"level"`
	Type          RoleType     `json:"type"`
	PermissionIDs []string     `json:"permission_ids"`
	Restrictions  Restrictions `json:"restrictions"`
	Active        bool         `json:"active"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`
}

// AssignmentScope limits an assignment to specific churches, teams or groups.
// A nil scope on an assignment means the role applies wherever its permissions allow.
type AssignmentScope struct {
	ChurchIDs []string `json:"church_ids,omitempty"`
	TeamIDs   []string `json:"team_ids,omitempty"`
	GroupIDs  []string `json:"group_ids,omitempty"`
}

// ContainsChurch reports whether the scope names the given church id.
func (s *AssignmentScope) ContainsChurch(id string) bool {
	if s == nil {
		return false
	}
	return containsString(s.ChurchIDs, id)
}

// ContainsTeam reports whether the scope names the given team id.
func (s *AssignmentScope) ContainsTeam(id string) bool {
	if s == nil {
		return false
	}
	return containsString(s.TeamIDs, id)
}

// Assignment links one subject to one role, optionally time-limited and scoped.
type Assignment struct {
	ID         string           `json:"id"`
	UserID     string           `json:"user_id"`
	RoleID     string           `json:"role_id"`
	AssignedBy string           `json:"assigned_by"`
	AssignedAt time.Time        `json:"assigned_at"`
	ExpiresAt  *time.Time       `json:"expires_at,omitempty"`
	Scope      *AssignmentScope `json:"scope,omitempty"`
	Active     bool             `json:"active"`
}

// expired reports whether the assignment's expiry has passed at the given time.
// A nil ExpiresAt never expires.
func (a Assignment) expired(at time.Time) bool {
	return a.ExpiresAt != nil && !a.ExpiresAt.After(at)
}

// RequestStatus is the lifecycle state of a RoleRequest.
type RequestStatus string

const (
	RequestPending  RequestStatus = "pending"
	RequestApproved RequestStatus = "approved"
	RequestRejected RequestStatus = "rejected"
)

// RoleRequest is a pending ask for a role grant subject to human review.
// Once reviewed it is terminal: a request is approved or rejected exactly once.
type RoleRequest struct {
	ID          string        `json:"id"`
	UserID      string        `json:"user_id"`
	RoleID      string        `json:"role_id"`
	RequestedBy string        `json:"requested_by"`
	Reason      string        `json:"reason,omitempty"`
	Status      RequestStatus `json:"status"`
	ExpiresAt   *time.Time    `json:"expires_at,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
	ReviewedBy  string        `json:"reviewed_by,omitempty"`
	ReviewedAt  *time.Time    `json:"reviewed_at,omitempty"`
	Notes       string        `json:"notes,omitempty"`
}

// ScopeContext carries the caller's position for a permission check.
type ScopeContext struct {
	ChurchID string `json:"church_id,omitempty"`
	TeamID   string `json:"team_id,omitempty"`
}

func containsString(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

func copyStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}

func copyScope(s *AssignmentScope) *AssignmentScope {
	if s == nil {
		return nil
	}
	return &AssignmentScope{
		ChurchIDs: copyStrings(s.ChurchIDs),
		TeamIDs:   copyStrings(s.TeamIDs),
		GroupIDs:  copyStrings(s.GroupIDs),
	}
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
