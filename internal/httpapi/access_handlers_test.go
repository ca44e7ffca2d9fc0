package httpapi

import (
	"net/http"
	"testing"

	"parishdesk.org/internal/rbac"
)

type rolesEnvelope struct {
	Roles []rbac.Role `json:"roles"`
}

type permissionsEnvelope struct {
	Permissions []rbac.Permission `json:"permissions"`
}

type assignmentsEnvelope struct {
	Assignments []rbac.Assignment `json:"assignments"`
}

type requestsEnvelope struct {
	Requests []rbac.RoleRequest `json:"requests"`
}

func TestRoleCRUDOverHTTP(t *testing.T) {
	c, _ := newTestAPI(t)

	resp := c.do(http.MethodGet, "/v1/permissions?resource=events", nil)
	expectStatus(t, resp, http.StatusOK)
	perms := decode[permissionsEnvelope](t, resp)
	if len(perms.Permissions) == 0 {
		t.Fatal("expected seeded events permissions")
	}

	resp = c.do(http.MethodPost, "/v1/roles", map[string]any{
		"name":           "Choir Director",
		"level":          3,
		"permission_ids": []string{perms.Permissions[0].ID},
	})
	expectStatus(t, resp, http.StatusCreated)
	if loc := resp.Header.Get("Location"); loc == "" {
		t.Fatal("expected Location header")
	}
	role := decode[rbac.Role](t, resp)
	if role.Type != rbac.RoleCustom || !role.Active {
		t.Fatalf("unexpected created role: %+v", role)
	}

	resp = c.do(http.MethodPatch, "/v1/roles/"+role.ID, map[string]any{
		"description": "Leads the choir",
	})
	expectStatus(t, resp, http.StatusOK)
	updated := decode[rbac.Role](t, resp)
	if updated.Description != "Leads the choir" {
		t.Fatalf("patch not applied: %+v", updated)
	}

	resp = c.do(http.MethodGet, "/v1/roles", nil)
	expectStatus(t, resp, http.StatusOK)
	roles := decode[rolesEnvelope](t, resp)
	if len(roles.Roles) != 7 {
		t.Fatalf("expected 6 system roles plus 1 custom, got %d", len(roles.Roles))
	}

	resp = c.do(http.MethodDelete, "/v1/roles/"+role.ID, nil)
	expectStatus(t, resp, http.StatusNoContent)
	resp.Body.Close()

	resp = c.do(http.MethodGet, "/v1/roles/"+role.ID, nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", resp.StatusCode)
	}
}

func TestSystemRoleProtectionOverHTTP(t *testing.T) {
	c, svc := newTestAPI(t)
	member := systemRole(t, svc, "Member")

	resp := c.do(http.MethodPatch, "/v1/roles/"+member.ID, map[string]any{"name": "Renamed"})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 for system role rename, got %d", resp.StatusCode)
	}

	resp2 := c.do(http.MethodDelete, "/v1/roles/"+member.ID, nil)
	defer resp2.Body.Close()
	if resp2.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 for system role delete, got %d", resp2.StatusCode)
	}
}

func TestAssignmentsOverHTTP(t *testing.T) {
	c, svc := newTestAPI(t)
	pastor := systemRole(t, svc, "Pastor")

	resp := c.do(http.MethodPost, "/v1/users/u1/assignments", map[string]any{
		"role_id": pastor.ID,
		"scope":   map[string]any{"church_ids": []string{"church1"}},
	})
	expectStatus(t, resp, http.StatusCreated)
	created := decode[rbac.Assignment](t, resp)
	if created.AssignedBy != "root" {
		t.Fatalf("expected caller as assigner, got %s", created.AssignedBy)
	}

	// duplicate is a conflict
	resp = c.do(http.MethodPost, "/v1/users/u1/assignments", map[string]any{"role_id": pastor.ID})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 for duplicate, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = c.do(http.MethodGet, "/v1/users/u1/assignments", nil)
	expectStatus(t, resp, http.StatusOK)
	list := decode[assignmentsEnvelope](t, resp)
	if len(list.Assignments) != 1 {
		t.Fatalf("expected 1 assignment, got %d", len(list.Assignments))
	}

	resp = c.do(http.MethodDelete, "/v1/users/u1/assignments/"+pastor.ID, nil)
	expectStatus(t, resp, http.StatusNoContent)
	resp.Body.Close()

	// second revoke is a 404
	resp = c.do(http.MethodDelete, "/v1/users/u1/assignments/"+pastor.ID, nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for second revoke, got %d", resp.StatusCode)
	}
}

func TestAccessCheckOverHTTP(t *testing.T) {
	c, svc := newTestAPI(t)
	pastor := systemRole(t, svc, "Pastor")

	resp := c.do(http.MethodPost, "/v1/users/u1/assignments", map[string]any{
		"role_id": pastor.ID,
		"scope":   map[string]any{"church_ids": []string{"church1"}},
	})
	expectStatus(t, resp, http.StatusCreated)
	resp.Body.Close()

	resp = c.do(http.MethodPost, "/v1/access/check", map[string]any{
		"user_id":   "u1",
		"resource":  "kpis",
		"action":    "read",
		"church_id": "church1",
	})
	expectStatus(t, resp, http.StatusOK)
	check := decode[accessCheckResponse](t, resp)
	if !check.Allowed || check.PermissionID == "" {
		t.Fatalf("expected grant with matched permission id, got %+v", check)
	}

	resp = c.do(http.MethodPost, "/v1/access/check", map[string]any{
		"user_id":   "u1",
		"resource":  "kpis",
		"action":    "read",
		"church_id": "church2",
	})
	expectStatus(t, resp, http.StatusOK)
	check = decode[accessCheckResponse](t, resp)
	if check.Allowed || check.Reason == "" {
		t.Fatalf("expected reasoned denial, got %+v", check)
	}

	// user_id defaults to the caller
	userToken := c.obtainToken("u1")
	resp = c.doAs(userToken, http.MethodPost, "/v1/access/check", map[string]any{
		"resource":  "kpis",
		"action":    "read",
		"church_id": "church1",
	})
	expectStatus(t, resp, http.StatusOK)
	check = decode[accessCheckResponse](t, resp)
	if !check.Allowed {
		t.Fatalf("expected self check to pass, got %+v", check)
	}
}

func TestRoleRequestFlowOverHTTP(t *testing.T) {
	c, svc := newTestAPI(t)
	leader := systemRole(t, svc, "Ministry Leader")

	userToken := c.obtainToken("u1")
	resp := c.doAs(userToken, http.MethodPost, "/v1/role-requests", map[string]any{
		"role_id": leader.ID,
		"reason":  "taking over youth ministry",
	})
	expectStatus(t, resp, http.StatusCreated)
	req := decode[rbac.RoleRequest](t, resp)
	if req.Status != rbac.RequestPending || req.UserID != "u1" || req.RequestedBy != "u1" {
		t.Fatalf("unexpected request: %+v", req)
	}

	// a regular user cannot review
	resp = c.doAs(userToken, http.MethodPost, "/v1/role-requests/"+req.ID+"/review", map[string]any{"approve": true})
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 for non-reviewer, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = c.do(http.MethodPost, "/v1/role-requests/"+req.ID+"/review", map[string]any{
		"approve": true,
		"notes":   "confirmed with senior pastor",
	})
	expectStatus(t, resp, http.StatusOK)
	reviewed := decode[rbac.RoleRequest](t, resp)
	if reviewed.Status != rbac.RequestApproved || reviewed.ReviewedBy != "root" {
		t.Fatalf("unexpected reviewed request: %+v", reviewed)
	}

	if live := svc.ActiveRolesFor("u1"); len(live) != 1 || live[0].RoleID != leader.ID {
		t.Fatalf("expected approval to grant the role, got %+v", live)
	}

	// reviewing again conflicts
	resp = c.do(http.MethodPost, "/v1/role-requests/"+req.ID+"/review", map[string]any{"approve": false})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 for second review, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = c.do(http.MethodGet, "/v1/role-requests?status=approved", nil)
	expectStatus(t, resp, http.StatusOK)
	list := decode[requestsEnvelope](t, resp)
	if len(list.Requests) != 1 {
		t.Fatalf("expected 1 approved request, got %d", len(list.Requests))
	}
}

func TestAuditQueryOverHTTP(t *testing.T) {
	c, svc := newTestAPI(t)
	member := systemRole(t, svc, "Member")

	resp := c.do(http.MethodPost, "/v1/users/u1/assignments", map[string]any{"role_id": member.ID})
	expectStatus(t, resp, http.StatusCreated)
	resp.Body.Close()

	resp = c.do(http.MethodGet, "/v1/audit?resource=assignments", nil)
	expectStatus(t, resp, http.StatusOK)
	got := decode[map[string][]map[string]any](t, resp)
	if len(got["entries"]) == 0 {
		t.Fatal("expected assignment mutation in audit trail")
	}
}

func TestPermissionGating(t *testing.T) {
	c, _ := newTestAPI(t)

	// no token
	resp := c.doAs("", http.MethodGet, "/v1/roles", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	// authenticated but no roles
	userToken := c.obtainToken("nobody")
	resp = c.doAs(userToken, http.MethodGet, "/v1/roles", nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.StatusCode)
	}
}

func TestCreateRoleValidation(t *testing.T) {
	c, _ := newTestAPI(t)

	resp := c.do(http.MethodPost, "/v1/roles", map[string]any{"name": ""})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for blank name, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = c.do(http.MethodPost, "/v1/roles", map[string]any{
		"name":           "Broken",
		"permission_ids": []string{"no-such-permission"},
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 for unknown permission, got %d", resp.StatusCode)
	}
}
