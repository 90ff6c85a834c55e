package instance

import "testing"

func TestGetIDPrefersExplicitID(t *testing.T) {
	t.Setenv("ONEMAN_INSTANCE_ID", "api-1")
	t.Setenv("DYNO", "web.2")
	if got := GetID("x"); got != "api-1" {
		t.Fatalf("expected api-1, got %s", got)
	}
}

func TestGetIDFallback(t *testing.T) {
	for _, key := range idEnvVars {
		t.Setenv(key, "")
	}
	if got := GetID("cron-0"); got != "cron-0" {
		t.Fatalf("expected fallback, got %s", got)
	}
	if got := GetID(""); got != "local" {
		t.Fatalf("expected local, got %s", got)
	}
}
