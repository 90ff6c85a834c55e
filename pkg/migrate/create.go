package migrate

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

var nameSanitizeRe = regexp.MustCompile(`[^a-z0-9_]+`)

const migrationTemplate = `-- +goose Up
-- +goose StatementBegin
-- %[1]s
-- +goose StatementEnd

-- +goose Down
-- +goose StatementBegin
-- rollback %[1]s
-- +goose StatementEnd
`

// CreateSQLMigration writes <dir>/<version>_<name>.sql. The version is the
// current UTC second, bumped past the newest existing migration so a skewed
// clock cannot order a new file before the shipped ones.
func CreateSQLMigration(dir string, name string) (string, error) {
	if dir == "" {
		return "", fmt.Errorf("dir is required")
	}
	safe := migrationSlug(name)
	if safe == "" {
		return "", fmt.Errorf("name %q results in empty sanitized filename", name)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("mkdir %q: %w", dir, err)
	}

	existing, err := listMigrations(dir)
	if err != nil {
		return "", err
	}
	version, err := nextVersion(time.Now().UTC(), existing)
	if err != nil {
		return "", err
	}

	fullpath := filepath.Join(dir, fmt.Sprintf("%s_%s.sql", version, safe))
	if _, err := os.Stat(fullpath); err == nil {
		return "", fmt.Errorf("migration already exists: %s", fullpath)
	}
	if err := os.WriteFile(fullpath, []byte(fmt.Sprintf(migrationTemplate, safe)), 0o644); err != nil {
		return "", fmt.Errorf("write migration %q: %w", fullpath, err)
	}
	return fullpath, nil
}

func migrationSlug(name string) string {
	safe := strings.ToLower(strings.TrimSpace(name))
	safe = nameSanitizeRe.ReplaceAllString(safe, "_")
	return strings.Trim(safe, "_")
}

// nextVersion returns now as a version, or one second after the newest
// existing version when now is not later.
func nextVersion(now time.Time, existing []migrationFile) (string, error) {
	if len(existing) == 0 {
		return now.Format(versionLayout), nil
	}
	latest, err := time.Parse(versionLayout, existing[len(existing)-1].version)
	if err != nil {
		return "", fmt.Errorf("parse migration version %q: %w", existing[len(existing)-1].version, err)
	}
	if !now.After(latest) {
		now = latest.Add(time.Second)
	}
	return now.Format(versionLayout), nil
}
