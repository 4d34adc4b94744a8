package main

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"sort"
	"strconv"
)

var (
	errNoMigrations       = errors.New("no migration files found")
	errInvalidFilename    = errors.New("invalid migration filename")
	errUnpairedMigration  = errors.New("unpaired migration")
	errSequenceGap        = errors.New("gap in migration sequence")
	errChecksumMismatch   = errors.New("migration checksum mismatch")
	errMigrationDuplicate = errors.New("duplicate migration sequence")
)

// migrationFilenameRegex matches 001_name.up.sql and 001_name.down.sql.
var migrationFilenameRegex = regexp.MustCompile(`^(\d{3})_([a-zA-Z0-9_]+)\.(up|down)\.sql$`)

// MigrationInfo describes one migration file.
type MigrationInfo struct {
	Sequence  int
	Name      string
	Direction string
	Filename  string
	Checksum  string
}

// MigrationSet lists and validates the fixture migration files of a directory.
type MigrationSet struct {
	fsys      fs.FS
	checksums map[string]string
}

// NewMigrationSet reads migrations from the directory at path.
func NewMigrationSet(path string) *MigrationSet {
	return NewMigrationSetFS(os.DirFS(path))
}

// NewMigrationSetFS reads migrations from fsys.
func NewMigrationSetFS(fsys fs.FS) *MigrationSet {
	return &MigrationSet{fsys: fsys, checksums: make(map[string]string)}
}

// List returns the well-formed migration files in lexical order. Other files are ignored.
func (m *MigrationSet) List() ([]MigrationInfo, error) {
	entries, err := fs.ReadDir(m.fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations directory: %w", err)
	}

	files := make([]MigrationInfo, 0, len(entries))

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		info, err := parseMigrationFilename(entry.Name())
		if err != nil {
			continue
		}

		content, err := fs.ReadFile(m.fsys, entry.Name())
		if err != nil {
			return nil, fmt.Errorf("failed to read migration file %s: %w", entry.Name(), err)
		}

		info.Checksum = checksum(content)
		files = append(files, info)
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Filename < files[j].Filename })

	return files, nil
}

// Validate checks that migrations exist, every up has a down, sequences start
// at 001 without gaps, and files have not changed since the previous Validate.
func (m *MigrationSet) Validate() error {
	files, err := m.List()
	if err != nil {
		return err
	}

	if len(files) == 0 {
		return errNoMigrations
	}

	if err := validatePairing(files); err != nil {
		return err
	}

	if err := validateSequence(files); err != nil {
		return err
	}

	for _, f := range files {
		if previous, ok := m.checksums[f.Filename]; ok && previous != f.Checksum {
			return fmt.Errorf("%w: %s", errChecksumMismatch, f.Filename)
		}

		m.checksums[f.Filename] = f.Checksum
	}

	return nil
}

func parseMigrationFilename(filename string) (MigrationInfo, error) {
	matches := migrationFilenameRegex.FindStringSubmatch(filename)
	if len(matches) != 4 { //nolint:mnd
		return MigrationInfo{}, fmt.Errorf("%w: %s (expected: 001_name.up.sql or 001_name.down.sql)",
			errInvalidFilename, filename)
	}

	sequence, err := strconv.Atoi(matches[1])
	if err != nil {
		return MigrationInfo{}, fmt.Errorf("%w: %s: %w", errInvalidFilename, filename, err)
	}

	return MigrationInfo{
		Sequence:  sequence,
		Name:      matches[2],
		Direction: matches[3],
		Filename:  filename,
	}, nil
}

func validatePairing(files []MigrationInfo) error {
	directions := make(map[string]map[string]bool)
	names := make(map[int]string)

	for _, f := range files {
		if name, ok := names[f.Sequence]; ok && name != f.Name {
			return fmt.Errorf("%w: %03d used by %s and %s", errMigrationDuplicate, f.Sequence, name, f.Name)
		}

		names[f.Sequence] = f.Name

		key := fmt.Sprintf("%03d_%s", f.Sequence, f.Name)
		if directions[key] == nil {
			directions[key] = make(map[string]bool)
		}

		directions[key][f.Direction] = true
	}

	for key, dirs := range directions {
		if !dirs["up"] {
			return fmt.Errorf("%w: missing up migration for %s", errUnpairedMigration, key)
		}

		if !dirs["down"] {
			return fmt.Errorf("%w: missing down migration for %s", errUnpairedMigration, key)
		}
	}

	return nil
}

func validateSequence(files []MigrationInfo) error {
	seen := make(map[int]bool)
	sequences := make([]int, 0, len(files))

	for _, f := range files {
		if !seen[f.Sequence] {
			seen[f.Sequence] = true
			sequences = append(sequences, f.Sequence)
		}
	}

	sort.Ints(sequences)

	expected := 1
	for _, seq := range sequences {
		if seq != expected {
			return fmt.Errorf("%w: expected %03d, found %03d", errSequenceGap, expected, seq)
		}

		expected++
	}

	return nil
}

func checksum(content []byte) string {
	sum := sha256.Sum256(content)

	return hex.EncodeToString(sum[:])
}
