package migrate

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

const versionLayout = "20060102150405"

var sqlFileRe = regexp.MustCompile(`^(\d{14})_[a-z0-9_]+\.sql$`)

// migrationFile is one goose SQL file in the migrations directory.
type migrationFile struct {
	version string
	name    string
}

// ValidateDir checks every .sql file in dir: versioned filename, unique
// version, an Up section before a Down section, and balanced
// StatementBegin/StatementEnd blocks.
func ValidateDir(dir string) error {
	files, err := listMigrations(dir)
	if err != nil {
		return err
	}
	for _, f := range files {
		body, err := os.ReadFile(filepath.Join(dir, f.name))
		if err != nil {
			return fmt.Errorf("read file %q: %w", f.name, err)
		}
		if err := checkSections(string(body)); err != nil {
			return fmt.Errorf("migration %q: %w", f.name, err)
		}
	}
	return nil
}

// listMigrations returns the directory's migrations sorted by version.
func listMigrations(dir string) ([]migrationFile, error) {
	if dir == "" {
		return nil, fmt.Errorf("dir is required")
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read dir %q: %w", dir, err)
	}

	seen := map[string]string{}
	var files []migrationFile
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".sql") {
			continue
		}
		m := sqlFileRe.FindStringSubmatch(name)
		if m == nil {
			return nil, fmt.Errorf("invalid migration filename %q (expected YYYYMMDDHHMMSS_name.sql)", name)
		}
		if prev, ok := seen[m[1]]; ok {
			return nil, fmt.Errorf("duplicate migration version %s in %q and %q", m[1], prev, name)
		}
		seen[m[1]] = name
		files = append(files, migrationFile{version: m[1], name: name})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].version < files[j].version })
	return files, nil
}

func checkSections(body string) error {
	up := strings.Index(body, "-- +goose Up")
	down := strings.Index(body, "-- +goose Down")
	switch {
	case up < 0:
		return fmt.Errorf("missing \"-- +goose Up\"")
	case down < 0:
		return fmt.Errorf("missing \"-- +goose Down\"")
	case down < up:
		return fmt.Errorf("\"-- +goose Down\" precedes \"-- +goose Up\"")
	}

	open := 0
	for _, line := range strings.Split(body, "\n") {
		switch strings.TrimSpace(line) {
		case "-- +goose StatementBegin":
			if open > 0 {
				return fmt.Errorf("nested StatementBegin")
			}
			open++
		case "-- +goose StatementEnd":
			if open == 0 {
				return fmt.Errorf("StatementEnd without StatementBegin")
			}
			open--
		}
	}
	if open != 0 {
		return fmt.Errorf("unterminated StatementBegin")
	}
	return nil
}
