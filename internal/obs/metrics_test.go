package obs

import "testing"

func TestCanonicalPath(t *testing.T) {
	cases := map[string]string{
		"":                                  "/",
		"/metrics":                          "/metrics",
		"/v1/roles":                         "/v1/roles",
		"/v1/roles/01J0ABC":                 "/v1/roles/:id",
		"/v1/permissions/01J0ABC":           "/v1/permissions/:id",
		"/v1/role-requests/01J0ABC":         "/v1/role-requests/:id",
		"/v1/role-requests/01J0ABC/review":  "/v1/role-requests/:id/review",
		"/v1/users/u1/assignments":          "/v1/users/:id/assignments",
		"/v1/users/u1/assignments/01J0ABC":  "/v1/users/:id/assignments/:role",
		"/v1/access/check":                  "/v1/access/check",
		"/v1/audit?user_id=u1":              "/v1/audit",
		"/v1/users/u1/assignments/a/b/tail": "/v1/users/u1/assignments/a/b/tail",
	}
	for input, expected := range cases {
		if got := CanonicalPath(input); got != expected {
			t.Fatalf("CanonicalPath(%q)=%q, want %q", input, got, expected)
		}
	}
}
