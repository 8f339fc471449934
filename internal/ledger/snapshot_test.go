package ledger

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func TestSnapshotAndDeltaRecoverState(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "ledger.ndjson")
	snapshotPath := logPath + ".snapshot"

	led, err := Open(logPath, WithSnapshotPath(snapshotPath))
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}

	walk(t, led, "doc-a", StateCompleted)
	walk(t, led, "doc-b", StateFetching)

	if err := led.Compact(); err != nil {
		t.Fatalf("compact failed: %v", err)
	}

	// Transitions after the snapshot land in the delta log.
	for _, state := range []State{StateParsing, StateValidating, StateWriting, StateCompleted} {
		if _, err := led.Record("doc-b", "testsource", state); err != nil {
			t.Fatalf("post-snapshot transition to %s failed: %v", state, err)
		}
	}

	walk(t, led, "doc-c", StateParsing)

	if err := led.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	// Snapshot+delta initialization must agree with a full log replay.
	fromSnapshot, err := Open(logPath, WithSnapshotPath(snapshotPath))
	if err != nil {
		t.Fatalf("reopen via snapshot failed: %v", err)
	}
	defer func() { _ = fromSnapshot.Close() }()

	fromReplay, err := Open(logPath)
	if err != nil {
		t.Fatalf("reopen via replay failed: %v", err)
	}
	defer func() { _ = fromReplay.Close() }()

	for _, docID := range []string{"doc-a", "doc-b", "doc-c"} {
		snap := fromSnapshot.Get(docID)
		replay := fromReplay.Get(docID)

		if snap == nil || replay == nil {
			t.Fatalf("entry for %s missing: snapshot=%+v replay=%+v", docID, snap, replay)
		}

		if snap.State != replay.State || snap.Attempt != replay.Attempt {
			t.Errorf("%s diverged: snapshot=%s/%d replay=%s/%d",
				docID, snap.State, snap.Attempt, replay.State, replay.Attempt)
		}
	}

	// History still serves the full sequence after compaction.
	history, err := fromSnapshot.History("doc-b")
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}

	if len(history) != 6 {
		t.Errorf("doc-b history length = %d, want 6", len(history))
	}
}

func TestSnapshotIsAtomicAndVersioned(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "ledger.ndjson")
	snapshotPath := logPath + ".snapshot"

	led, err := Open(logPath, WithSnapshotPath(snapshotPath))
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	defer func() { _ = led.Close() }()

	walk(t, led, "doc-a", StateCompleted)

	if err := led.Snapshot(snapshotPath); err != nil {
		t.Fatalf("snapshot failed: %v", err)
	}

	snapshot, err := ReadSnapshot(snapshotPath)
	if err != nil {
		t.Fatalf("ReadSnapshot failed: %v", err)
	}

	if snapshot.Metadata.SchemaVersion != snapshotSchemaVersion {
		t.Errorf("schema version = %d", snapshot.Metadata.SchemaVersion)
	}

	if snapshot.Metadata.EntryCount != 1 {
		t.Errorf("entry count = %d, want 1", snapshot.Metadata.EntryCount)
	}

	if entry := snapshot.Entries["doc-a"]; entry == nil || entry.State != StateCompleted {
		t.Errorf("snapshot entry = %+v", snapshot.Entries["doc-a"])
	}
}

func TestReadSnapshotRejectsCorruption(t *testing.T) {
	dir := t.TempDir()

	badJSON := filepath.Join(dir, "bad.snapshot")
	if err := os.WriteFile(badJSON, []byte("{broken"), 0o600); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	var corruption *CorruptionError

	if _, err := ReadSnapshot(badJSON); !errors.As(err, &corruption) {
		t.Errorf("expected CorruptionError for bad JSON, got %v", err)
	}

	wrongVersion := filepath.Join(dir, "version.snapshot")
	if err := os.WriteFile(wrongVersion, []byte(`{"metadata":{"schema_version":99},"entries":{}}`), 0o600); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	if _, err := ReadSnapshot(wrongVersion); !errors.As(err, &corruption) {
		t.Errorf("expected CorruptionError for unsupported schema version, got %v", err)
	}

	inconsistent := filepath.Join(dir, "entry.snapshot")
	payload := `{"metadata":{"schema_version":1},"entries":{"doc-a":{"doc_id":"doc-b","adapter":"x","state":"PENDING","updated_at":"2026-01-01T00:00:00Z","attempt":0}}}`
	if err := os.WriteFile(inconsistent, []byte(payload), 0o600); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	if _, err := ReadSnapshot(inconsistent); !errors.As(err, &corruption) {
		t.Errorf("expected CorruptionError for inconsistent entry, got %v", err)
	}
}

func TestCompactPrunesRotatedSnapshots(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "ledger.ndjson")
	snapshotPath := logPath + ".snapshot"

	clock := time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC)

	var mu sync.Mutex

	led, err := Open(logPath,
		WithSnapshotPath(snapshotPath),
		WithSnapshotRetention(2),
		WithClock(func() time.Time {
			mu.Lock()
			defer mu.Unlock()

			return clock
		}))
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	defer func() { _ = led.Close() }()

	walk(t, led, "doc-a", StateCompleted)

	for i := 0; i < 5; i++ {
		if err := led.Compact(); err != nil {
			t.Fatalf("compact %d failed: %v", i, err)
		}

		mu.Lock()
		clock = clock.Add(time.Minute)
		mu.Unlock()
	}

	matches, err := filepath.Glob(snapshotPath + ".*")
	if err != nil {
		t.Fatalf("glob failed: %v", err)
	}

	rotated := 0

	for _, match := range matches {
		if match == snapshotPath+".delta" {
			continue
		}

		rotated++
	}

	if rotated > 2 {
		t.Errorf("rotated snapshots = %d, want at most 2", rotated)
	}

	if _, err := os.Stat(snapshotPath); err != nil {
		t.Errorf("current snapshot missing: %v", err)
	}
}

func TestCompactWithoutSnapshotPathFails(t *testing.T) {
	led, _ := openTestLedger(t)

	if err := led.Compact(); err == nil {
		t.Error("expected Compact to fail without a snapshot path")
	}
}
