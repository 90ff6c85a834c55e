package migrate_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/oneman/oneman-backend/pkg/migrate"
)

func readMigration(t *testing.T, suffix string) string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join("migrations", "*_"+suffix+".sql"))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no %s migration file found", suffix)
	}
	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	return string(data)
}

func assertContains(t *testing.T, content string, checks []string) {
	t.Helper()
	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestGroupRecordsMigrationContainsConstraints(t *testing.T) {
	assertContains(t, readMigration(t, "create_group_records"), []string{
		"CREATE TABLE IF NOT EXISTS group_records",
		"companies TEXT[]",
		"materials JSONB NOT NULL",
		"version BIGINT NOT NULL DEFAULT 1",
		"CHECK (kind IN ('site', 'store'))",
		"DROP TABLE IF EXISTS group_records",
	})
}

func TestGroupMembersMigrationCascades(t *testing.T) {
	assertContains(t, readMigration(t, "create_group_members"), []string{
		"PRIMARY KEY (group_id, user_id)",
		"FOREIGN KEY (group_id) REFERENCES group_records(id) ON DELETE CASCADE",
		"DROP TABLE IF EXISTS group_members",
	})
}

func TestGroupMessagesMigrationEnforcesVariant(t *testing.T) {
	assertContains(t, readMigration(t, "create_group_messages"), []string{
		"CREATE TABLE IF NOT EXISTS group_messages",
		"CHECK (type IN ('text', 'image', 'material'))",
		"group_messages_payload_check",
		"CREATE INDEX IF NOT EXISTS idx_group_messages_order ON group_messages (group_id, sent_at, id)",
	})
}

func TestUsersMigrationIndexesEmail(t *testing.T) {
	assertContains(t, readMigration(t, "create_users"), []string{
		"CREATE UNIQUE INDEX IF NOT EXISTS idx_users_email ON users (email)",
		"CHECK (email = lower(email))",
	})
}

func TestTransfersAndOutboxMigrations(t *testing.T) {
	assertContains(t, readMigration(t, "create_material_transfers"), []string{
		"CHECK (amount > 0)",
		"CHECK (status IN ('pending', 'committed', 'failed'))",
	})
	assertContains(t, readMigration(t, "create_outbox_events"), []string{
		"CREATE TABLE IF NOT EXISTS outbox_events",
		"WHERE published_at IS NULL",
	})
}

func TestValidateDirAcceptsShippedMigrations(t *testing.T) {
	if err := migrate.ValidateDir("migrations"); err != nil {
		t.Fatalf("shipped migrations invalid: %v", err)
	}
}

func TestValidateDirRejectsBadNames(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "bad-name.sql"), []byte("-- +goose Up\n-- +goose Down\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := migrate.ValidateDir(dir); err == nil {
		t.Fatal("expected invalid filename error")
	}
}

func TestCreateSQLMigrationWritesTemplate(t *testing.T) {
	dir := t.TempDir()
	path, err := migrate.CreateSQLMigration(dir, "Add Material Index!")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !strings.HasSuffix(path, "_add_material_index.sql") {
		t.Fatalf("unexpected filename %s", path)
	}
	if err := migrate.ValidateDir(dir); err != nil {
		t.Fatalf("created migration should validate: %v", err)
	}
}
