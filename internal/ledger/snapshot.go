package ledger

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// snapshotSchemaVersion is bumped whenever the snapshot layout changes.
// LoadSnapshot rejects versions it does not understand.
const snapshotSchemaVersion = 1

type (
	// Snapshot is the on-disk full dump of ledger state, paired with a delta
	// log of transitions recorded after it was taken.
	Snapshot struct {
		Metadata SnapshotMetadata  `json:"metadata"`
		Entries  map[string]*Entry `json:"entries"`
	}

	// SnapshotMetadata describes a snapshot file.
	SnapshotMetadata struct {
		CreatedAt     time.Time `json:"created_at"`
		EntryCount    int       `json:"entry_count"`
		SchemaVersion int       `json:"schema_version"`
	}
)

// Snapshot writes a consistent full dump of the current entries to path,
// atomically (temp file, fsync, rename), and rolls the delta log so that
// subsequent Record calls append to a fresh delta.
func (l *Ledger) Snapshot(path string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return ErrClosed
	}

	return l.snapshotLocked(path)
}

// snapshotLocked writes the snapshot and rotates the delta log.
// The caller holds l.mu, so no transition can interleave between the dump
// and the delta reset.
func (l *Ledger) snapshotLocked(path string) error {
	l.indexMu.RLock()
	snapshot := Snapshot{
		Metadata: SnapshotMetadata{
			CreatedAt:     l.now().UTC(),
			EntryCount:    len(l.entries),
			SchemaVersion: snapshotSchemaVersion,
		},
		Entries: make(map[string]*Entry, len(l.entries)),
	}

	for docID, entry := range l.entries {
		copied := *entry
		snapshot.Entries[docID] = &copied
	}
	l.indexMu.RUnlock()

	data, err := json.Marshal(&snapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	data = append(data, '\n')

	if err := writeFileAtomic(path, data); err != nil {
		return err
	}

	// Start a fresh delta: everything up to this instant is in the snapshot.
	deltaPath := path + ".delta"

	if l.deltaFile != nil {
		_ = l.deltaFile.Close()
		l.deltaFile = nil
	}

	deltaFile, err := os.OpenFile(deltaPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("failed to rotate delta log %s: %w", deltaPath, err)
	}

	l.deltaFile = deltaFile
	l.snapshotPath = path
	l.deltaPath = deltaPath

	return nil
}

// Compact snapshots to the configured snapshot path, rotates prior snapshots
// (retaining the most recent N), and truncates the delta log on success.
func (l *Ledger) Compact() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return ErrClosed
	}

	if l.snapshotPath == "" {
		return errors.New("no snapshot path configured")
	}

	// Preserve the previous snapshot under a timestamped name before the
	// atomic rename replaces it.
	if _, err := os.Stat(l.snapshotPath); err == nil {
		rotated := fmt.Sprintf("%s.%d", l.snapshotPath, l.now().UnixNano())
		if err := os.Rename(l.snapshotPath, rotated); err != nil {
			return fmt.Errorf("failed to rotate snapshot: %w", err)
		}
	}

	if err := l.snapshotLocked(l.snapshotPath); err != nil {
		return err
	}

	return l.pruneSnapshots()
}

// pruneSnapshots deletes rotated snapshots beyond the retention count.
func (l *Ledger) pruneSnapshots() error {
	matches, err := filepath.Glob(l.snapshotPath + ".*")
	if err != nil {
		return fmt.Errorf("failed to list rotated snapshots: %w", err)
	}

	var rotated []string

	for _, match := range matches {
		if match == l.deltaPath {
			continue
		}

		rotated = append(rotated, match)
	}

	if len(rotated) <= l.retain {
		return nil
	}

	// Timestamped suffixes sort lexicographically by age for fixed-width nanos;
	// sort to be safe and drop the oldest.
	sort.Strings(rotated)

	for _, stale := range rotated[:len(rotated)-l.retain] {
		if err := os.Remove(stale); err != nil {
			l.logger.Warn("Failed to prune rotated snapshot",
				"path", stale,
				"error", err)
		}
	}

	return nil
}

// loadSnapshotAndDelta rebuilds the in-memory index from a snapshot plus its
// delta log. Initialization cost is O(snapshot entries + delta entries),
// never O(full history).
func (l *Ledger) loadSnapshotAndDelta(path, deltaPath string) error {
	snapshot, err := ReadSnapshot(path)
	if err != nil {
		return err
	}

	for docID, entry := range snapshot.Entries {
		copied := *entry
		l.entries[docID] = &copied
	}

	if deltaPath == "" {
		return nil
	}

	deltaFile, err := os.Open(deltaPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}

		return fmt.Errorf("failed to open delta log %s: %w", deltaPath, err)
	}

	defer func() {
		_ = deltaFile.Close()
	}()

	return l.applyRecords(deltaFile, deltaPath)
}

// ReadSnapshot reads and validates a snapshot file.
func ReadSnapshot(path string) (*Snapshot, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot %s: %w", path, err)
	}

	defer func() {
		_ = file.Close()
	}()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, &CorruptionError{Path: path, Err: err}
	}

	var snapshot Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, &CorruptionError{Path: path, Err: err}
	}

	if snapshot.Metadata.SchemaVersion != snapshotSchemaVersion {
		return nil, &CorruptionError{
			Path: path,
			Err:  fmt.Errorf("unsupported snapshot schema version %d", snapshot.Metadata.SchemaVersion),
		}
	}

	if snapshot.Entries == nil {
		snapshot.Entries = make(map[string]*Entry)
	}

	for docID, entry := range snapshot.Entries {
		if entry == nil || entry.DocID != docID || !entry.State.IsValid() {
			return nil, &CorruptionError{
				Path: path,
				Err:  fmt.Errorf("inconsistent snapshot entry for %q", docID),
			}
		}
	}

	return &snapshot, nil
}

// writeFileAtomic writes data to path via a temp file in the same directory,
// fsyncing before the rename so a crash never leaves a partial snapshot.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp snapshot: %w", err)
	}

	tmpName := tmp.Name()

	defer func() {
		// No-op when the rename succeeded.
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()

		return fmt.Errorf("failed to write snapshot: %w", err)
	}

	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()

		return fmt.Errorf("failed to sync snapshot: %w", err)
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close snapshot: %w", err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to publish snapshot: %w", err)
	}

	return nil
}
