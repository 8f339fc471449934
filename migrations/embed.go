// Package migrations carries the embedded document catalog schema and the
// golang-migrate runner that applies it. Migrations are compiled into the
// binary with go:embed, so deployments need no migration files on disk.
package migrations

import (
	"embed"
	"fmt"
	"io/fs"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
)

//go:embed *.sql
var embedded embed.FS

// Migration filenames follow 001_name.up.sql / 001_name.down.sql.
var filenameRegex = regexp.MustCompile(`^(\d{3})_([a-zA-Z0-9_]+)\.(up|down)\.sql$`)

// Files returns the embedded migration filesystem.
func Files() fs.FS {
	return embedded
}

// List returns the embedded migration filenames that conform to the naming
// standard, sorted.
func List() ([]string, error) {
	entries, err := fs.ReadDir(embedded, ".")
	if err != nil {
		return nil, fmt.Errorf("failed to read embedded migrations: %w", err)
	}

	var files []string

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		name := entry.Name()
		if filepath.Ext(name) == ".sql" && filenameRegex.MatchString(name) {
			files = append(files, name)
		}
	}

	sort.Strings(files)

	return files, nil
}

// Validate checks the embedded set before any state-changing operation:
// every file parses, every up has a down, and the sequence starts at 001
// with no gaps.
func Validate() error {
	files, err := List()
	if err != nil {
		return err
	}

	if len(files) == 0 {
		return fmt.Errorf("no embedded migration files found")
	}

	pairs := make(map[int]map[string]bool)

	for _, file := range files {
		matches := filenameRegex.FindStringSubmatch(file)
		if len(matches) != 4 {
			return fmt.Errorf("invalid migration filename %s (expected 001_name.up.sql)", file)
		}

		sequence, err := strconv.Atoi(matches[1])
		if err != nil {
			return fmt.Errorf("invalid sequence in filename %s: %w", file, err)
		}

		if pairs[sequence] == nil {
			pairs[sequence] = make(map[string]bool)
		}

		pairs[sequence][matches[3]] = true
	}

	sequences := make([]int, 0, len(pairs))
	for sequence := range pairs {
		sequences = append(sequences, sequence)
	}

	sort.Ints(sequences)

	for i, sequence := range sequences {
		if expected := i + 1; sequence != expected {
			return fmt.Errorf("gap in migration sequence: expected %03d, found %03d", expected, sequence)
		}

		if !pairs[sequence]["up"] {
			return fmt.Errorf("migration %03d is missing its up file", sequence)
		}

		if !pairs[sequence]["down"] {
			return fmt.Errorf("migration %03d is missing its down file", sequence)
		}
	}

	return nil
}

// MaxVersion returns the highest embedded migration sequence number.
func MaxVersion() int {
	files, err := List()
	if err != nil {
		return 0
	}

	maxSequence := 0

	for _, file := range files {
		matches := filenameRegex.FindStringSubmatch(file)
		if len(matches) != 4 {
			continue
		}

		if sequence, err := strconv.Atoi(matches[1]); err == nil && sequence > maxSequence {
			maxSequence = sequence
		}
	}

	return maxSequence
}
