package migrate

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestNextVersionBumpsPastNewestMigration(t *testing.T) {
	existing := []migrationFile{
		{version: "20260301090000", name: "20260301090000_create_users.sql"},
		{version: "20260301090500", name: "20260301090500_create_outbox_events.sql"},
	}
	skewed := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	got, err := nextVersion(skewed, existing)
	if err != nil {
		t.Fatalf("next version: %v", err)
	}
	if got != "20260301090501" {
		t.Fatalf("expected bumped version, got %s", got)
	}

	later := time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)
	if got, _ := nextVersion(later, existing); got != "20261017120000" {
		t.Fatalf("expected clock version, got %s", got)
	}
}

func TestValidateDirRejectsBrokenSections(t *testing.T) {
	cases := map[string]string{
		"down_first":   "-- +goose Down\n-- +goose Up\n",
		"unterminated": "-- +goose Up\n-- +goose StatementBegin\nSELECT 1;\n-- +goose Down\n",
		"stray_end":    "-- +goose Up\n-- +goose StatementEnd\n-- +goose Down\n",
		"missing_down": "-- +goose Up\nSELECT 1;\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			if err := os.WriteFile(filepath.Join(dir, "20260301090000_"+name+".sql"), []byte(body), 0o644); err != nil {
				t.Fatalf("write: %v", err)
			}
			if err := ValidateDir(dir); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}
