package server

import "testing"

func TestRequiresJWT(t *testing.T) {
	t.Parallel()

	cases := []struct {
		path string
		want bool
	}{
		{path: "/api-keys", want: true},
		{path: "/api-keys/123", want: true},
		{path: "/routes", want: true},
		{path: "/routes/abc", want: true},
		{path: "/routes/resolve", want: false},
		{path: "/routes/metrics", want: false},
		{path: "/ping", want: false},
		{path: "/health", want: false},
		{path: "/chats", want: false},
		{path: "/ingest", want: false},
	}

	for _, tc := range cases {
		got := requiresJWT(tc.path)
		if got != tc.want {
			t.Fatalf("path=%q want=%v got=%v", tc.path, tc.want, got)
		}
	}
}

func TestRequiresAPIKey(t *testing.T) {
	t.Parallel()

	cases := []struct {
		path string
		want bool
	}{
		{path: "/ingest", want: true},
		{path: "/ingest/correlate", want: true},
		{path: "/chats", want: true},
		{path: "/messages/123", want: true},
		{path: "/mappings", want: true},
		{path: "/routes/resolve", want: true},
		{path: "/routes/metrics", want: true},
		{path: "/stats/cache", want: true},
		{path: "/api-keys", want: false},
		{path: "/routes", want: false},
		{path: "/ping", want: false},
		{path: "/health", want: false},
	}

	for _, tc := range cases {
		got := requiresAPIKey(tc.path)
		if got != tc.want {
			t.Fatalf("path=%q want=%v got=%v", tc.path, tc.want, got)
		}
	}
}
