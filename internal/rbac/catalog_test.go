package rbac

import (
	"errors"
	"testing"
	"time"
)

func fixedClock() func() time.Time {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return func() time.Time { return at }
}

func TestCatalogRegisterAndLookup(t *testing.T) {
	c := NewCatalog(fixedClock())

	p, err := c.Register(Permission{Resource: "Sermons", Action: "Publish", Name: "Publish sermons", Scope: ScopeChurch, Category: CategoryCore})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if p.ID == "" || !p.Active {
		t.Fatalf("expected id and active flag, got %+v", p)
	}
	if p.Resource != "sermons" || p.Action != "publish" {
		t.Fatalf("expected lowercased identity, got %s/%s", p.Resource, p.Action)
	}

	got, ok := c.Lookup("SERMONS", "publish")
	if !ok || got.ID != p.ID {
		t.Fatalf("lookup failed: ok=%v got=%+v", ok, got)
	}

	if _, err := c.Register(Permission{Resource: "sermons", Action: "publish", Scope: ScopeChurch, Category: CategoryCore}); !errors.Is(err, ErrDuplicatePermission) {
		t.Fatalf("expected ErrDuplicatePermission, got %v", err)
	}
}

func TestCatalogRegisterValidation(t *testing.T) {
	c := NewCatalog(fixedClock())

	cases := []Permission{
		{Resource: "", Action: "read", Scope: ScopeGlobal, Category: CategoryCore},
		{Resource: "x", Action: "", Scope: ScopeGlobal, Category: CategoryCore},
		{Resource: "x", Action: "read", Scope: "county", Category: CategoryCore},
		{Resource: "x", Action: "read", Scope: ScopeGlobal, Category: "misc"},
	}
	for i, p := range cases {
		if _, err := c.Register(p); !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("case %d: expected ErrInvalidInput, got %v", i, err)
		}
	}
}

func TestCatalogListFilters(t *testing.T) {
	c := NewCatalog(fixedClock())
	seed := []Permission{
		{Resource: "people", Action: "read", Scope: ScopeChurch, Category: CategoryCore},
		{Resource: "people", Action: "manage", Scope: ScopeChurch, Category: CategoryCore},
		{Resource: "donations", Action: "read", Scope: ScopeChurch, Category: CategoryFinancial},
		{Resource: "roles", Action: "manage", Scope: ScopeGlobal, Category: CategoryAdmin},
	}
	for _, p := range seed {
		if _, err := c.Register(p); err != nil {
			t.Fatalf("seed %s/%s: %v", p.Resource, p.Action, err)
		}
	}

	if got := c.List(PermissionFilter{}); len(got) != 4 {
		t.Fatalf("expected 4 entries, got %d", len(got))
	}
	if got := c.List(PermissionFilter{Resource: "people"}); len(got) != 2 {
		t.Fatalf("expected 2 people entries, got %d", len(got))
	}
	if got := c.List(PermissionFilter{Category: CategoryFinancial}); len(got) != 1 || got[0].Resource != "donations" {
		t.Fatalf("financial filter wrong: %+v", got)
	}
	if got := c.List(PermissionFilter{Scope: ScopeGlobal}); len(got) != 1 || got[0].Resource != "roles" {
		t.Fatalf("scope filter wrong: %+v", got)
	}

	// registration order is stable
	got := c.List(PermissionFilter{Resource: "people"})
	if got[0].Action != "read" || got[1].Action != "manage" {
		t.Fatalf("expected registration order, got %s then %s", got[0].Action, got[1].Action)
	}
}

func TestCatalogDeactivate(t *testing.T) {
	c := NewCatalog(fixedClock())
	p, err := c.Register(Permission{Resource: "kpis", Action: "read", Scope: ScopeChurch, Category: CategoryMinistry})
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	if err := c.Deactivate(p.ID); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	got, err := c.Get(p.ID)
	if err != nil {
		t.Fatalf("get after deactivate: %v", err)
	}
	if got.Active {
		t.Fatal("expected inactive permission")
	}

	if err := c.Deactivate("missing"); !errors.Is(err, ErrPermissionNotFound) {
		t.Fatalf("expected ErrPermissionNotFound, got %v", err)
	}
}
