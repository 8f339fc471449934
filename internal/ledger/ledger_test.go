package ledger

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func openTestLedger(t *testing.T, opts ...Option) (*Ledger, string) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "ledger.ndjson")

	led, err := Open(path, opts...)
	if err != nil {
		t.Fatalf("failed to open ledger: %v", err)
	}

	t.Cleanup(func() { _ = led.Close() })

	return led, path
}

// walk drives a document along the happy path up to the given state.
func walk(t *testing.T, led *Ledger, docID string, until State) {
	t.Helper()

	path := []State{StatePending, StateFetching, StateParsing, StateValidating, StateWriting, StateCompleted}

	for _, state := range path {
		if _, err := led.Record(docID, "testsource", state); err != nil {
			t.Fatalf("transition to %s failed: %v", state, err)
		}

		if state == until {
			return
		}
	}
}

func TestRecordHappyPath(t *testing.T) {
	led, _ := openTestLedger(t)

	walk(t, led, "nct:NCT00000001", StateCompleted)

	entry := led.Get("nct:NCT00000001")
	if entry == nil {
		t.Fatal("expected an entry after recording")
	}

	if entry.State != StateCompleted {
		t.Errorf("state = %s, want COMPLETED", entry.State)
	}

	if entry.Adapter != "testsource" {
		t.Errorf("adapter = %s", entry.Adapter)
	}
}

func TestRecordRejectsInvalidTransition(t *testing.T) {
	led, _ := openTestLedger(t)

	if _, err := led.Record("doc-1", "testsource", StatePending); err != nil {
		t.Fatalf("initial PENDING failed: %v", err)
	}

	_, err := led.Record("doc-1", "testsource", StateValidating)

	var invalid *InvalidStateTransitionError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidStateTransitionError, got %v", err)
	}

	// The rejected transition leaves the entry untouched.
	if entry := led.Get("doc-1"); entry.State != StatePending {
		t.Errorf("state after rejected transition = %s, want PENDING", entry.State)
	}
}

func TestTerminalStatesAreImmutable(t *testing.T) {
	led, _ := openTestLedger(t)

	walk(t, led, "doc-1", StateCompleted)

	for _, next := range []State{StatePending, StateFetching, StateRetrying, StateFailedTerminal} {
		if _, err := led.Record("doc-1", "testsource", next); err == nil {
			t.Errorf("transition COMPLETED → %s must fail", next)
		}
	}
}

func TestRecordRejectsUnknownStateAndMissingIDs(t *testing.T) {
	led, _ := openTestLedger(t)

	if _, err := led.Record("", "testsource", StatePending); !errors.Is(err, ErrDocIDRequired) {
		t.Errorf("expected ErrDocIDRequired, got %v", err)
	}

	if _, err := led.Record("doc-1", "", StatePending); !errors.Is(err, ErrAdapterRequired) {
		t.Errorf("expected ErrAdapterRequired, got %v", err)
	}

	if _, err := led.Record("doc-1", "testsource", State("BOGUS")); !errors.Is(err, ErrUnknownState) {
		t.Errorf("expected ErrUnknownState, got %v", err)
	}
}

func TestRetryingIncrementsAttempt(t *testing.T) {
	led, _ := openTestLedger(t)

	for _, state := range []State{StatePending, StateFetching, StateFailedRetryable} {
		if _, err := led.Record("doc-1", "testsource", state); err != nil {
			t.Fatalf("transition to %s failed: %v", state, err)
		}
	}

	entry, err := led.Record("doc-1", "testsource", StateRetrying)
	if err != nil {
		t.Fatalf("RETRYING failed: %v", err)
	}

	if entry.Attempt != 1 {
		t.Errorf("attempt after first RETRYING = %d, want 1", entry.Attempt)
	}

	for _, state := range []State{StateFetching, StateFailedRetryable, StateRetrying} {
		if entry, err = led.Record("doc-1", "testsource", state); err != nil {
			t.Fatalf("transition to %s failed: %v", state, err)
		}
	}

	if entry.Attempt != 2 {
		t.Errorf("attempt after second RETRYING = %d, want 2", entry.Attempt)
	}
}

func TestRecordOptionsCarryContext(t *testing.T) {
	led, _ := openTestLedger(t)

	if _, err := led.Record("doc-1", "testsource", StatePending,
		WithMetadata(map[string]any{"term": "covid"})); err != nil {
		t.Fatalf("PENDING failed: %v", err)
	}

	if _, err := led.Record("doc-1", "testsource", StateFetching); err != nil {
		t.Fatalf("FETCHING failed: %v", err)
	}

	entry, err := led.Record("doc-1", "testsource", StateFailedRetryable,
		WithError("TransportError", "connection refused", true),
		WithDuration(1500*time.Millisecond))
	if err != nil {
		t.Fatalf("FAILED_RETRYABLE failed: %v", err)
	}

	if entry.Error == nil || entry.Error.Type != "TransportError" || !entry.Error.Retryable {
		t.Errorf("error info not carried: %+v", entry.Error)
	}

	history, err := led.History("doc-1")
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}

	if len(history) != 3 {
		t.Fatalf("history length = %d, want 3", len(history))
	}

	if history[0].Parameters["term"] != "covid" {
		t.Errorf("metadata not in audit record: %+v", history[0].Parameters)
	}

	if history[2].DurationMS != 1500 {
		t.Errorf("duration_ms = %d, want 1500", history[2].DurationMS)
	}
}

func TestReplayAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.ndjson")

	led, err := Open(path)
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}

	walk(t, led, "doc-a", StateCompleted)
	walk(t, led, "doc-b", StateParsing)

	if err := led.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer func() { _ = reopened.Close() }()

	if entry := reopened.Get("doc-a"); entry == nil || entry.State != StateCompleted {
		t.Errorf("doc-a not recovered: %+v", entry)
	}

	if entry := reopened.Get("doc-b"); entry == nil || entry.State != StateParsing {
		t.Errorf("doc-b not recovered: %+v", entry)
	}

	// History spans the reopen because the audit log is never truncated.
	history, err := reopened.History("doc-a")
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}

	if len(history) != 6 {
		t.Errorf("doc-a history length = %d, want 6", len(history))
	}

	if history[0].OldState != "" || history[0].NewState != StatePending {
		t.Errorf("first record = %+v, want initial PENDING", history[0])
	}
}

func TestCorruptLogFailsOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.ndjson")

	led, err := Open(path)
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}

	walk(t, led, "doc-a", StateFetching)
	_ = led.Close()

	file, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		t.Fatalf("failed to open log for corruption: %v", err)
	}

	if _, err := file.WriteString("{not json\n"); err != nil {
		t.Fatalf("failed to write garbage: %v", err)
	}
	_ = file.Close()

	_, err = Open(path)

	var corruption *CorruptionError
	if !errors.As(err, &corruption) {
		t.Fatalf("expected CorruptionError, got %v", err)
	}

	if corruption.Line != 3 {
		t.Errorf("corruption line = %d, want 3", corruption.Line)
	}
}

func TestClosedLedgerRejectsRecord(t *testing.T) {
	led, _ := openTestLedger(t)

	if err := led.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	if _, err := led.Record("doc-1", "testsource", StatePending); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
}

func TestEntriesFilters(t *testing.T) {
	led, _ := openTestLedger(t)

	walk(t, led, "doc-a", StateCompleted)
	walk(t, led, "doc-b", StateFetching)

	if _, err := led.Record("doc-c", "othersource", StatePending); err != nil {
		t.Fatalf("PENDING failed: %v", err)
	}

	if got := len(led.Entries()); got != 3 {
		t.Errorf("Entries() length = %d, want 3", got)
	}

	completed := led.Entries(ByState(StateCompleted))
	if len(completed) != 1 || completed[0].DocID != "doc-a" {
		t.Errorf("ByState(COMPLETED) = %+v", completed)
	}

	other := led.Entries(ByAdapter("othersource"))
	if len(other) != 1 || other[0].DocID != "doc-c" {
		t.Errorf("ByAdapter(othersource) = %+v", other)
	}

	if ids := led.DocumentsInState(StateFetching); len(ids) != 1 || ids[0] != "doc-b" {
		t.Errorf("DocumentsInState(FETCHING) = %v", ids)
	}
}

func TestStuck(t *testing.T) {
	clock := time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC)

	var mu sync.Mutex

	led, _ := openTestLedger(t, WithClock(func() time.Time {
		mu.Lock()
		defer mu.Unlock()

		return clock
	}))

	walk(t, led, "doc-stale", StateFetching)
	walk(t, led, "doc-done", StateCompleted)

	mu.Lock()
	clock = clock.Add(2 * time.Hour)
	mu.Unlock()

	walk(t, led, "doc-fresh", StateFetching)

	stuck := led.Stuck(time.Hour)
	if len(stuck) != 1 || stuck[0] != "doc-stale" {
		t.Errorf("Stuck(1h) = %v, want [doc-stale]", stuck)
	}
}

func TestGetReturnsCopies(t *testing.T) {
	led, _ := openTestLedger(t)

	walk(t, led, "doc-a", StatePending)

	entry := led.Get("doc-a")
	entry.State = StateCompleted

	if led.Get("doc-a").State != StatePending {
		t.Error("mutating a returned entry leaked into the index")
	}
}

func TestConcurrentRecorders(t *testing.T) {
	led, _ := openTestLedger(t)

	var wg sync.WaitGroup

	for i := 0; i < 8; i++ {
		wg.Add(1)

		go func(n int) {
			defer wg.Done()

			docID := string(rune('a'+n)) + "-doc"
			for _, state := range []State{StatePending, StateFetching, StateParsing, StateValidating, StateWriting, StateCompleted} {
				if _, err := led.Record(docID, "testsource", state); err != nil {
					t.Errorf("transition of %s to %s failed: %v", docID, state, err)

					return
				}
			}
		}(i)
	}

	wg.Wait()

	if got := len(led.Entries(ByState(StateCompleted))); got != 8 {
		t.Errorf("completed entries = %d, want 8", got)
	}
}
