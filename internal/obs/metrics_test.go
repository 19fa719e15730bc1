package obs

import "testing"

func TestCanonicalPath(t *testing.T) {
	cases := map[string]string{
		"":                              "/",
		"/metrics":                      "/metrics",
		"/v1/users/abc":                 "/v1/users/:id",
		"/v1/users/abc/password":        "/v1/users/:id/password",
		"/v1/users/abc/assignments":     "/v1/users/:id/assignments",
		"/v1/users/abc/extra":           "/v1/users/abc/extra",
		"/v1/permissions/abc":           "/v1/permissions/:id",
		"/v1/roles/abc/permissions":     "/v1/roles/:id/permissions",
		"/v1/users":                     "/v1/users",
		"/v1/users?page=2":              "/v1/users",
		"/v1/auth/login":                "/v1/auth/login",
		"/v1/roles/abc/permissions?x=1": "/v1/roles/:id/permissions",
	}
	for input, expected := range cases {
		if got := CanonicalPath(input); got != expected {
			t.Fatalf("CanonicalPath(%q)=%q, want %q", input, got, expected)
		}
	}
}
