package rbac

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"parishdesk.org/internal/audit"
)

func testRequestsSetup(t *testing.T) (*Registry, *Assignments, *Requests, string) {
	t.Helper()
	c, permIDs := testCatalogWith(t, [2]string{"kpis", "read"})
	now := fixedClock()
	r := NewRegistry(c, now)
	log := audit.NewLog(audit.WithClock(now))
	a := NewAssignments(r, log, now)
	r.bindAssignments(a.countActiveForRole)
	q := NewRequests(r, a, log, now)

	role, err := r.Create(Role{Name: "Ministry Analyst", Level: 4, PermissionIDs: []string{permIDs["kpis/read"]}})
	if err != nil {
		t.Fatalf("create role: %v", err)
	}
	return r, a, q, role.ID
}

func TestRequestApproveGrants(t *testing.T) {
	ctx := context.Background()
	_, a, q, roleID := testRequestsSetup(t)

	req, err := q.Create(ctx, "u1", roleID, "pastor1", "covers KPI reviews", nil)
	if err != nil {
		t.Fatalf("create request: %v", err)
	}
	if req.Status != RequestPending {
		t.Fatalf("expected pending, got %s", req.Status)
	}

	got, err := q.Review(ctx, req.ID, "admin1", true, "approved for Q2")
	if err != nil {
		t.Fatalf("review: %v", err)
	}
	if got.Status != RequestApproved || got.ReviewedBy != "admin1" || got.ReviewedAt == nil {
		t.Fatalf("unexpected reviewed request: %+v", got)
	}

	live := a.ActiveRolesFor("u1", time.Now())
	if len(live) != 1 || live[0].RoleID != roleID {
		t.Fatalf("expected approval to grant the role, got %+v", live)
	}
	if live[0].AssignedBy != "admin1" {
		t.Fatalf("expected reviewer as assigner, got %s", live[0].AssignedBy)
	}
}

func TestRequestReviewIsTerminal(t *testing.T) {
	ctx := context.Background()
	_, _, q, roleID := testRequestsSetup(t)

	req, err := q.Create(ctx, "u1", roleID, "pastor1", "", nil)
	if err != nil {
		t.Fatalf("create request: %v", err)
	}
	if _, err := q.Review(ctx, req.ID, "admin1", false, "not needed"); err != nil {
		t.Fatalf("reject: %v", err)
	}
	if _, err := q.Review(ctx, req.ID, "admin2", true, ""); !errors.Is(err, ErrAlreadyReviewed) {
		t.Fatalf("expected ErrAlreadyReviewed, got %v", err)
	}
}

func TestRequestAutoRejectOnFailedGrant(t *testing.T) {
	ctx := context.Background()
	r, a, q, roleID := testRequestsSetup(t)

	req, err := q.Create(ctx, "u1", roleID, "pastor1", "", nil)
	if err != nil {
		t.Fatalf("create request: %v", err)
	}

	// the role goes inactive between filing and review
	off := false
	if _, err := r.Update(roleID, RolePatch{Active: &off}); err != nil {
		t.Fatalf("deactivate role: %v", err)
	}

	got, err := q.Review(ctx, req.ID, "admin1", true, "")
	if err != nil {
		t.Fatalf("review: %v", err)
	}
	if got.Status != RequestRejected {
		t.Fatalf("expected auto-reject, got %s", got.Status)
	}
	if !strings.Contains(got.Notes, "Auto-rejected") {
		t.Fatalf("expected failure noted, got %q", got.Notes)
	}
	if live := a.ActiveRolesFor("u1", time.Now()); len(live) != 0 {
		t.Fatalf("expected no grant, got %+v", live)
	}
}

func TestReviewNeverExposesApprovedWithoutGrant(t *testing.T) {
	ctx := context.Background()
	r, a, q, roleID := testRequestsSetup(t)

	req, err := q.Create(ctx, "u1", roleID, "pastor1", "", nil)
	if err != nil {
		t.Fatalf("create request: %v", err)
	}

	// the grant is doomed: the role goes inactive before review
	off := false
	if _, err := r.Update(roleID, RolePatch{Active: &off}); err != nil {
		t.Fatalf("deactivate role: %v", err)
	}

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-done:
				return
			default:
			}
			got, err := q.Get(req.ID)
			if err != nil {
				t.Errorf("get: %v", err)
				return
			}
			if got.Status == RequestApproved {
				t.Error("observed approved request with no matching assignment")
				return
			}
		}
	}()

	got, err := q.Review(ctx, req.ID, "admin1", true, "")
	close(done)
	wg.Wait()
	if err != nil {
		t.Fatalf("review: %v", err)
	}
	if got.Status != RequestRejected {
		t.Fatalf("expected auto-reject, got %s", got.Status)
	}
	if live := a.ActiveRolesFor("u1", time.Now()); len(live) != 0 {
		t.Fatalf("expected no grant, got %+v", live)
	}
}

func TestRequestListAndGet(t *testing.T) {
	ctx := context.Background()
	_, _, q, roleID := testRequestsSetup(t)

	first, err := q.Create(ctx, "u1", roleID, "pastor1", "", nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	second, err := q.Create(ctx, "u2", roleID, "pastor1", "", nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := q.Review(ctx, first.ID, "admin1", false, ""); err != nil {
		t.Fatalf("reject: %v", err)
	}

	pending := q.List(RequestPending)
	if len(pending) != 1 || pending[0].ID != second.ID {
		t.Fatalf("pending filter wrong: %+v", pending)
	}
	all := q.List("")
	if len(all) != 2 || all[0].ID != second.ID {
		t.Fatalf("expected newest first, got %+v", all)
	}

	if _, err := q.Get(first.ID); err != nil {
		t.Fatalf("get: %v", err)
	}
	if _, err := q.Get("missing"); !errors.Is(err, ErrRequestNotFound) {
		t.Fatalf("expected ErrRequestNotFound, got %v", err)
	}
	if _, err := q.Create(ctx, "u1", "missing", "pastor1", "", nil); !errors.Is(err, ErrRoleNotFound) {
		t.Fatalf("expected ErrRoleNotFound, got %v", err)
	}
}
