package migrate

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

const versionLayout = "20060102150405"

var nameSanitizeRe = regexp.MustCompile(`[^a-z0-9]+`)

const migrationTemplate = `-- +goose Up
-- +goose StatementBegin
-- %[1]s: up statements
-- +goose StatementEnd

-- +goose Down
-- +goose StatementBegin
-- %[1]s: down statements
-- +goose StatementEnd
`

// CreateSQLMigration writes an empty goose migration into dir and returns its
// path. The version is the current UTC time, bumped past the newest existing
// version so files always sort after what is already there.
func CreateSQLMigration(dir string, name string) (string, error) {
	if dir == "" {
		return "", fmt.Errorf("dir is required")
	}
	slug := strings.Trim(nameSanitizeRe.ReplaceAllString(strings.ToLower(name), "_"), "_")
	if slug == "" {
		return "", fmt.Errorf("name %q has no usable characters", name)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("mkdir %q: %w", dir, err)
	}
	version, err := nextVersion(dir, time.Now().UTC())
	if err != nil {
		return "", err
	}

	fullpath := filepath.Join(dir, version+"_"+slug+".sql")
	file, err := os.OpenFile(fullpath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("create migration %q: %w", fullpath, err)
	}
	defer file.Close()
	if _, err := fmt.Fprintf(file, migrationTemplate, slug); err != nil {
		return "", fmt.Errorf("write migration %q: %w", fullpath, err)
	}
	return fullpath, nil
}

func nextVersion(dir string, now time.Time) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("read dir %q: %w", dir, err)
	}
	candidate := now.Truncate(time.Second)
	for _, entry := range entries {
		match := sqlFileRe.FindStringSubmatch(entry.Name())
		if match == nil {
			continue
		}
		existing, err := time.Parse(versionLayout, match[1])
		if err != nil {
			continue
		}
		if !existing.Before(candidate) {
			candidate = existing.Add(time.Second)
		}
	}
	return candidate.Format(versionLayout), nil
}
