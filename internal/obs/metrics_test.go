package obs

import "testing"

func TestCanonicalPath(t *testing.T) {
	cases := map[string]string{
		"":                                   "/",
		"/metrics":                           "/metrics",
		"/v1/auth/login":                     "/v1/auth/login",
		"/v1/orgs":                           "/v1/orgs",
		"/v1/orgs/a3x9km":                    "/v1/orgs/:id",
		"/v1/orgs/a3x9km/members":            "/v1/orgs/:id/members",
		"/v1/orgs/a3x9km/members/user-1":     "/v1/orgs/:id/members/:userId",
		"/v1/invitations/inv-42":             "/v1/invitations/:id",
		"/v1/invitations/inv-42/accept":      "/v1/invitations/:id/accept",
		"/v1/auth/connections/conn-7":        "/v1/auth/connections/:id",
		"/v1/auth/passkeys/register/begin":   "/v1/auth/passkeys/register/begin",
		"/v1/auth/passkeys/login/finish":     "/v1/auth/passkeys/login/finish",
		"/v1/auth/passkeys/pk-19":            "/v1/auth/passkeys/:id",
		"/v1/auth/providers/github/callback": "/v1/auth/providers/github/callback",
		"/v1/orgs/a3x9km/members?role=admin": "/v1/orgs/:id/members",
	}
	for input, expected := range cases {
		if got := CanonicalPath(input); got != expected {
			t.Fatalf("CanonicalPath(%q)=%q, want %q", input, got, expected)
		}
	}
}
