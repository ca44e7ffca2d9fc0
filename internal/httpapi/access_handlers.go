package httpapi

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"parishdesk.org/internal/audit"
	"parishdesk.org/internal/auth"
	"parishdesk.org/internal/rbac"
)

type registerPermissionRequest struct {
	Resource    string `json:"resource"`
	Action      string `json:"action"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Scope       string `json:"scope"`
	Category    string `json:"category"`
}

type createRoleRequest struct {
	Name          string             `json:"name"`
	Description   string             `json:"description"`
	Level         int                `json:"level"`
	PermissionIDs []string           `json:"permission_ids"`
	Restrictions  *rbac.Restrictions `json:"restrictions"`
}

type updateRoleRequest struct {
	Name          *string            `json:"name"`
	Description   *string            `json:"description"`
	Level         *int               `json:"level"`
	PermissionIDs *[]string          `json:"permission_ids"`
	Restrictions  *rbac.Restrictions `json:"restrictions"`
	Active        *bool              `json:"active"`
}

type assignRoleRequest struct {
	RoleID    string                `json:"role_id"`
	ExpiresAt *time.Time            `json:"expires_at"`
	Scope     *rbac.AssignmentScope `json:"scope"`
}

type accessCheckRequest struct {
	UserID   string `json:"user_id"`
	Resource string `json:"resource"`
	Action   string `json:"action"`
	ChurchID string `json:"church_id"`
	TeamID   string `json:"team_id"`
}

type accessCheckResponse struct {
	Allowed      bool   `json:"allowed"`
	PermissionID string `json:"permission_id,omitempty"`
	Reason       string `json:"reason,omitempty"`
}

type createRoleRequestRequest struct {
	UserID    string     `json:"user_id"`
	RoleID    string     `json:"role_id"`
	Reason    string     `json:"reason"`
	ExpiresAt *time.Time `json:"expires_at"`
}

type reviewRoleRequestRequest struct {
	Approve bool   `json:"approve"`
	Notes   string `json:"notes"`
}

// ensurePermission authorizes the request through the engine itself: the
// admin surface is gated by the same catalog entries it manages.
func (a *API) ensurePermission(w http.ResponseWriter, r *http.Request, resource, action string) (string, bool) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "authentication required")
		return "", false
	}
	allowed, _ := a.svc.HasPermission(r.Context(), userID, resource, action, rbac.ScopeContext{})
	if !allowed {
		respondError(w, http.StatusForbidden, "insufficient permissions")
		return "", false
	}
	return userID, true
}

func (a *API) handlePermissions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		if _, ok := a.ensurePermission(w, r, "roles", "read"); !ok {
			return
		}
		q := r.URL.Query()
		perms := a.svc.ListPermissions(rbac.PermissionFilter{
			Resource: q.Get("resource"),
			Category: rbac.Category(q.Get("category")),
			Scope:    rbac.ScopeClass(q.Get("scope")),
		})
		writeJSON(w, http.StatusOK, map[string]any{"permissions": perms})
	case http.MethodPost:
		actor, ok := a.ensurePermission(w, r, "roles", "manage")
		if !ok {
			return
		}
		var req registerPermissionRequest
		if err := decodeJSON(r, &req); err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		perm, err := a.svc.RegisterPermission(r.Context(), actor, rbac.Permission{
			Resource:    req.Resource,
			Action:      req.Action,
			Name:        req.Name,
			Description: req.Description,
			Scope:       rbac.ScopeClass(req.Scope),
			Category:    rbac.Category(req.Category),
		})
		if err != nil {
			handleAccessError(w, err)
			return
		}
		w.Header().Set("Location", fmt.Sprintf("/v1/permissions/%s", perm.ID))
		writeJSON(w, http.StatusCreated, perm)
	default:
		methodNotAllowed(w, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handlePermissionResource(w http.ResponseWriter, r *http.Request) {
	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/permissions/"), "/")
	if id == "" || strings.Contains(id, "/") {
		respondError(w, http.StatusNotFound, "resource not found")
		return
	}
	switch r.Method {
	case http.MethodGet:
		if _, ok := a.ensurePermission(w, r, "roles", "read"); !ok {
			return
		}
		perm, err := a.svc.GetPermission(id)
		if err != nil {
			handleAccessError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, perm)
	case http.MethodDelete:
		actor, ok := a.ensurePermission(w, r, "roles", "manage")
		if !ok {
			return
		}
		if err := a.svc.DeactivatePermission(r.Context(), actor, id); err != nil {
			handleAccessError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w, http.MethodGet, http.MethodDelete)
	}
}

func (a *API) handleRoles(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		if _, ok := a.ensurePermission(w, r, "roles", "read"); !ok {
			return
		}
		includeInactive := r.URL.Query().Get("include_inactive") == "true"
		writeJSON(w, http.StatusOK, map[string]any{"roles": a.svc.ListRoles(includeInactive)})
	case http.MethodPost:
		actor, ok := a.ensurePermission(w, r, "roles", "manage")
		if !ok {
			return
		}
		var req createRoleRequest
		if err := decodeJSON(r, &req); err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		role := rbac.Role{
			Name:          req.Name,
			Description:   req.Description,
			Level:         req.Level,
			PermissionIDs: req.PermissionIDs,
		}
		if req.Restrictions != nil {
			role.Restrictions = *req.Restrictions
		}
		created, err := a.svc.CreateRole(r.Context(), actor, role)
		if err != nil {
			handleAccessError(w, err)
			return
		}
		w.Header().Set("Location", fmt.Sprintf("/v1/roles/%s", created.ID))
		writeJSON(w, http.StatusCreated, created)
	default:
		methodNotAllowed(w, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleRoleResource(w http.ResponseWriter, r *http.Request) {
	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/roles/"), "/")
	if id == "" || strings.Contains(id, "/") {
		respondError(w, http.StatusNotFound, "resource not found")
		return
	}
	switch r.Method {
	case http.MethodGet:
		if _, ok := a.ensurePermission(w, r, "roles", "read"); !ok {
			return
		}
		role, err := a.svc.GetRole(id)
		if err != nil {
			handleAccessError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, role)
	case http.MethodPatch:
		actor, ok := a.ensurePermission(w, r, "roles", "manage")
		if !ok {
			return
		}
		var req updateRoleRequest
		if err := decodeJSON(r, &req); err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		role, err := a.svc.UpdateRole(r.Context(), actor, id, rbac.RolePatch{
			Name:          req.Name,
			Description:   req.Description,
			Level:         req.Level,
			PermissionIDs: req.PermissionIDs,
			Restrictions:  req.Restrictions,
			Active:        req.Active,
		})
		if err != nil {
			handleAccessError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, role)
	case http.MethodDelete:
		actor, ok := a.ensurePermission(w, r, "roles", "manage")
		if !ok {
			return
		}
		if err := a.svc.DeleteRole(r.Context(), actor, id); err != nil {
			handleAccessError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w, http.MethodGet, http.MethodPatch, http.MethodDelete)
	}
}

func (a *API) handleUserResource(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/users/"), "/")
	parts := strings.Split(path, "/")
	if len(parts) < 2 || parts[0] == "" || parts[1] != "assignments" {
		respondError(w, http.StatusNotFound, "resource not found")
		return
	}
	userID := parts[0]

	switch {
	case len(parts) == 2 && r.Method == http.MethodGet:
		if _, ok := a.ensurePermission(w, r, "roles", "read"); !ok {
			return
		}
		includeInactive := r.URL.Query().Get("include_inactive") == "true"
		writeJSON(w, http.StatusOK, map[string]any{"assignments": a.svc.ListAssignments(userID, includeInactive)})
	case len(parts) == 2 && r.Method == http.MethodPost:
		actor, ok := a.ensurePermission(w, r, "assignments", "manage")
		if !ok {
			return
		}
		var req assignRoleRequest
		if err := decodeJSON(r, &req); err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		assignment, err := a.svc.Assign(r.Context(), userID, req.RoleID, actor, req.ExpiresAt, req.Scope)
		if err != nil {
			handleAccessError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, assignment)
	case len(parts) == 3 && r.Method == http.MethodDelete:
		if _, ok := a.ensurePermission(w, r, "assignments", "manage"); !ok {
			return
		}
		if err := a.svc.Revoke(r.Context(), userID, parts[2]); err != nil {
			handleAccessError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		respondError(w, http.StatusNotFound, "resource not found")
	}
}

// handleAccessCheck answers "may this user do this, here". Any authenticated
// caller may ask; services check on behalf of their own users. The decision
// itself is audited by the engine.
func (a *API) handleAccessCheck(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	caller, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	var req accessCheckRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.UserID == "" {
		req.UserID = caller
	}
	if req.Resource == "" || req.Action == "" {
		respondError(w, http.StatusBadRequest, "resource and action are required")
		return
	}
	allowed, permID := a.svc.HasPermission(r.Context(), req.UserID, req.Resource, req.Action, rbac.ScopeContext{
		ChurchID: req.ChurchID,
		TeamID:   req.TeamID,
	})
	resp := accessCheckResponse{Allowed: allowed, PermissionID: permID}
	if !allowed {
		resp.Reason = "insufficient permissions"
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleRoleRequests(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		if _, ok := a.ensurePermission(w, r, "role-requests", "review"); !ok {
			return
		}
		status := rbac.RequestStatus(r.URL.Query().Get("status"))
		writeJSON(w, http.StatusOK, map[string]any{"requests": a.svc.ListRoleRequests(status)})
	case http.MethodPost:
		caller, ok := auth.UserIDFromContext(r.Context())
		if !ok {
			respondError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		var req createRoleRequestRequest
		if err := decodeJSON(r, &req); err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		if req.UserID == "" {
			req.UserID = caller
		}
		created, err := a.svc.CreateRoleRequest(r.Context(), req.UserID, req.RoleID, caller, req.Reason, req.ExpiresAt)
		if err != nil {
			handleAccessError(w, err)
			return
		}
		w.Header().Set("Location", fmt.Sprintf("/v1/role-requests/%s", created.ID))
		writeJSON(w, http.StatusCreated, created)
	default:
		methodNotAllowed(w, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleRoleRequestResource(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/role-requests/"), "/")
	parts := strings.Split(path, "/")
	switch {
	case len(parts) == 1 && parts[0] != "" && r.Method == http.MethodGet:
		if _, ok := a.ensurePermission(w, r, "role-requests", "review"); !ok {
			return
		}
		req, err := a.svc.GetRoleRequest(parts[0])
		if err != nil {
			handleAccessError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, req)
	case len(parts) == 2 && parts[1] == "review":
		if r.Method != http.MethodPost {
			methodNotAllowed(w, http.MethodPost)
			return
		}
		reviewer, ok := a.ensurePermission(w, r, "role-requests", "review")
		if !ok {
			return
		}
		var body reviewRoleRequestRequest
		if err := decodeJSON(r, &body); err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		reviewed, err := a.svc.ReviewRoleRequest(r.Context(), parts[0], reviewer, body.Approve, body.Notes)
		if err != nil {
			handleAccessError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, reviewed)
	default:
		respondError(w, http.StatusNotFound, "resource not found")
	}
}

func (a *API) handleAudit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	if _, ok := a.ensurePermission(w, r, "audit", "read"); !ok {
		return
	}
	q := r.URL.Query()
	f := audit.Filter{
		UserID:   q.Get("user_id"),
		Resource: q.Get("resource"),
	}
	if v := q.Get("granted"); v != "" {
		granted := v == "true"
		f.Granted = &granted
	}
	if v := q.Get("from"); v != "" {
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid from timestamp")
			return
		}
		f.From = ts
	}
	if v := q.Get("to"); v != "" {
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid to timestamp")
			return
		}
		f.To = ts
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": a.svc.QueryAudit(f)})
}
