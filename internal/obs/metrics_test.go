package obs

import "testing"

func TestCanonicalPath(t *testing.T) {
	cases := map[string]string{
		"":                    "/",
		"/":                   "/",
		"/metrics":            "/metrics",
		"/v1/demo/seed":       "/v1/demo/seed",
		"/v1/demo/seed/":      "/v1/demo/seed",
		"/v1/demo/reset?x=1":  "/v1/demo/reset",
		"/v1/demo/other":      "other",
		"/v1/accounts/abc/ok": "other",
	}
	for input, expected := range cases {
		if got := CanonicalPath(input); got != expected {
			t.Fatalf("CanonicalPath(%q)=%q, want %q", input, got, expected)
		}
	}
}
