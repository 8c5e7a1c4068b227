package migrations

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

var (
	// MigrationsDir can be overridden in tests or by the application.
	MigrationsDir = "scripts/migrations"
)

// LoadSchema concatenates all migration files in lexical order. The schema
// is idempotent (CREATE IF NOT EXISTS throughout), so applying it to an
// existing database is safe.
func LoadSchema() (string, error) {
	searchPaths := []string{
		MigrationsDir,
		filepath.Join("..", MigrationsDir),
		filepath.Join("..", "..", MigrationsDir),
	}

	for _, dir := range searchPaths {
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}

		var files []string
		for _, entry := range entries {
			if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
				files = append(files, filepath.Join(dir, entry.Name()))
			}
		}
		if len(files) == 0 {
			continue
		}
		sort.Strings(files)

		var schema strings.Builder
		for _, file := range files {
			content, err := os.ReadFile(file)
			if err != nil {
				return "", fmt.Errorf("failed to read migration %s: %w", file, err)
			}
			schema.Write(content)
			schema.WriteString("\n")
		}
		return schema.String(), nil
	}

	return "", fmt.Errorf("could not find migration files in any location")
}
