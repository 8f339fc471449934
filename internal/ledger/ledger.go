package ledger

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"
)

// Sentinel errors for ledger operations.
var (
	// ErrDocIDRequired is returned when a record call omits the document identifier.
	ErrDocIDRequired = errors.New("doc_id is required")

	// ErrAdapterRequired is returned when a record call omits the adapter name.
	ErrAdapterRequired = errors.New("adapter is required")

	// ErrClosed is returned when operating on a closed ledger.
	ErrClosed = errors.New("ledger is closed")
)

// CorruptionError reports an unreadable or inconsistent ledger artifact.
// Fatal to the process; requires operator action. Never swallow it.
type CorruptionError struct {
	Path string
	Line int
	Err  error
}

func (e *CorruptionError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("ledger corruption in %s line %d: %v", e.Path, e.Line, e.Err)
	}

	return fmt.Sprintf("ledger corruption in %s: %v", e.Path, e.Err)
}

func (e *CorruptionError) Unwrap() error { return e.Err }

type (
	// ErrorInfo is the structured failure attached to a ledger entry.
	ErrorInfo struct {
		Type      string `json:"type"`
		Message   string `json:"message"`
		Retryable bool   `json:"retryable"`
	}

	// Entry is the current lifecycle record for one document. (doc_id, adapter)
	// is unique; State always moved along a valid path to get here.
	Entry struct {
		DocID     string         `json:"doc_id"`
		Adapter   string         `json:"adapter"`
		State     State          `json:"state"`
		UpdatedAt time.Time      `json:"updated_at"`
		Attempt   int            `json:"attempt"`
		Error     *ErrorInfo     `json:"error,omitempty"`
		Metadata  map[string]any `json:"metadata,omitempty"`
	}

	// AuditRecord is one line of the append-only log: a single observed
	// transition with its context.
	AuditRecord struct {
		DocID      string         `json:"doc_id"`
		OldState   State          `json:"old_state,omitempty"`
		NewState   State          `json:"new_state"`
		Timestamp  time.Time      `json:"timestamp"`
		Adapter    string         `json:"adapter"`
		Attempt    int            `json:"attempt"`
		Error      *ErrorInfo     `json:"error,omitempty"`
		DurationMS int64          `json:"duration_ms,omitempty"`
		Parameters map[string]any `json:"parameters,omitempty"`
	}

	// Ledger is the durable state machine shared by concurrent pipeline
	// workers. Appends are serialized under a mutex (append+fsync before the
	// caller is acknowledged); reads take a shared lock on the in-memory index
	// and return copies.
	Ledger struct {
		// mu serializes Record, Snapshot, and Compact: a transition is either
		// fully durable (log + delta + index) or did not happen.
		mu sync.Mutex

		// indexMu guards the in-memory index for concurrent readers.
		indexMu sync.RWMutex
		entries map[string]*Entry

		logPath      string
		snapshotPath string
		deltaPath    string

		logFile   *os.File
		deltaFile *os.File

		retain int
		logger *slog.Logger
		now    func() time.Time
		closed bool
	}

	// Option customizes ledger construction.
	Option func(*Ledger)

	// RecordOption attaches optional context to a transition.
	RecordOption func(*AuditRecord)
)

const defaultSnapshotRetention = 7

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) { l.logger = logger }
}

// WithSnapshotPath sets the snapshot file location. The delta log lives next
// to it with a ".delta" suffix.
func WithSnapshotPath(path string) Option {
	return func(l *Ledger) {
		l.snapshotPath = path
		l.deltaPath = path + ".delta"
	}
}

// WithSnapshotRetention sets how many rotated snapshots Compact keeps.
func WithSnapshotRetention(n int) Option {
	return func(l *Ledger) {
		if n > 0 {
			l.retain = n
		}
	}
}

// WithClock overrides the timestamp source. Test hook.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// WithError attaches structured failure detail to the transition.
func WithError(errType, message string, retryable bool) RecordOption {
	return func(r *AuditRecord) {
		r.Error = &ErrorInfo{Type: errType, Message: message, Retryable: retryable}
	}
}

// WithMetadata attaches the invocation parameters to the audit record.
func WithMetadata(params map[string]any) RecordOption {
	return func(r *AuditRecord) { r.Parameters = params }
}

// WithDuration attaches the stage duration to the audit record.
func WithDuration(d time.Duration) RecordOption {
	return func(r *AuditRecord) { r.DurationMS = d.Milliseconds() }
}

// Open initializes a ledger backed by the append-only log at logPath.
//
// Initialization prefers snapshot+delta over full log replay: when a snapshot
// file exists the index is rebuilt from it plus the delta log in
// O(snapshot entries + delta entries); otherwise the full log is replayed.
// Either way the audit log itself is retained untruncated, so History can
// serve complete per-document transition sequences.
func Open(logPath string, opts ...Option) (*Ledger, error) {
	l := &Ledger{
		entries: make(map[string]*Entry),
		logPath: logPath,
		retain:  defaultSnapshotRetention,
		logger:  slog.Default(),
		now:     time.Now,
	}

	for _, opt := range opts {
		opt(l)
	}

	if l.snapshotPath != "" {
		if _, err := os.Stat(l.snapshotPath); err == nil {
			if err := l.loadSnapshotAndDelta(l.snapshotPath, l.deltaPath); err != nil {
				return nil, err
			}
		} else if err := l.replayLog(); err != nil {
			return nil, err
		}
	} else if err := l.replayLog(); err != nil {
		return nil, err
	}

	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger log %s: %w", logPath, err)
	}

	l.logFile = logFile

	// Keep appending to the existing delta once a snapshot is in place, so a
	// crash between snapshots loses nothing.
	if l.snapshotPath != "" {
		if _, err := os.Stat(l.snapshotPath); err == nil {
			deltaFile, err := os.OpenFile(l.deltaPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
			if err != nil {
				_ = l.logFile.Close()

				return nil, fmt.Errorf("failed to open delta log %s: %w", l.deltaPath, err)
			}

			l.deltaFile = deltaFile
		}
	}

	return l, nil
}

// Close releases the underlying files. Record calls after Close fail.
func (l *Ledger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}

	l.closed = true

	var errs []error

	if l.logFile != nil {
		errs = append(errs, l.logFile.Close())
	}

	if l.deltaFile != nil {
		errs = append(errs, l.deltaFile.Close())
	}

	return errors.Join(errs...)
}

// Record validates and applies a state transition for a document, appending
// the audit record durably before updating the in-memory index.
//
// Only the State enum is accepted; an invalid state or an illegal transition
// fails with InvalidStateTransitionError and leaves the ledger untouched.
func (l *Ledger) Record(docID, adapterName string, newState State, opts ...RecordOption) (*Entry, error) {
	if docID == "" {
		return nil, ErrDocIDRequired
	}

	if adapterName == "" {
		return nil, ErrAdapterRequired
	}

	if !newState.IsValid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownState, string(newState))
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil, ErrClosed
	}

	var (
		oldState State
		attempt  int
	)

	if current, ok := l.entries[docID]; ok {
		oldState = current.State
		attempt = current.Attempt
	}

	if err := ValidateTransition(oldState, newState, docID); err != nil {
		return nil, err
	}

	if newState == StateRetrying {
		attempt++
	}

	record := AuditRecord{
		DocID:     docID,
		OldState:  oldState,
		NewState:  newState,
		Timestamp: l.now().UTC(),
		Adapter:   adapterName,
		Attempt:   attempt,
	}

	for _, opt := range opts {
		opt(&record)
	}

	if err := l.append(&record); err != nil {
		return nil, err
	}

	entry := &Entry{
		DocID:     docID,
		Adapter:   adapterName,
		State:     newState,
		UpdatedAt: record.Timestamp,
		Attempt:   attempt,
		Error:     record.Error,
		Metadata:  record.Parameters,
	}

	l.indexMu.Lock()
	l.entries[docID] = entry
	l.indexMu.Unlock()

	copied := *entry

	return &copied, nil
}

// Get returns the current entry for a document, or nil when unseen.
func (l *Ledger) Get(docID string) *Entry {
	l.indexMu.RLock()
	defer l.indexMu.RUnlock()

	entry, ok := l.entries[docID]
	if !ok {
		return nil
	}

	copied := *entry

	return &copied
}

// EntryFilter narrows the result of Entries.
type EntryFilter func(*Entry) bool

// ByState keeps entries in the given state.
func ByState(state State) EntryFilter {
	return func(e *Entry) bool { return e.State == state }
}

// ByAdapter keeps entries produced by the named adapter.
func ByAdapter(name string) EntryFilter {
	return func(e *Entry) bool { return e.Adapter == name }
}

// Entries returns a snapshot of the current entries matching all filters.
// The result is finite and decoupled from subsequent writes.
func (l *Ledger) Entries(filters ...EntryFilter) []*Entry {
	l.indexMu.RLock()
	defer l.indexMu.RUnlock()

	result := make([]*Entry, 0, len(l.entries))

outer:
	for _, entry := range l.entries {
		for _, filter := range filters {
			if !filter(entry) {
				continue outer
			}
		}

		copied := *entry
		result = append(result, &copied)
	}

	return result
}

// DocumentsInState returns the doc_ids currently in the given state.
func (l *Ledger) DocumentsInState(state State) []string {
	entries := l.Entries(ByState(state))
	ids := make([]string, 0, len(entries))

	for _, entry := range entries {
		ids = append(ids, entry.DocID)
	}

	return ids
}

// Stuck returns doc_ids in non-terminal states whose last update is older
// than the threshold. These are candidates for resume on the next run.
func (l *Ledger) Stuck(threshold time.Duration) []string {
	cutoff := l.now().Add(-threshold)

	l.indexMu.RLock()
	defer l.indexMu.RUnlock()

	var ids []string

	for _, entry := range l.entries {
		if !entry.State.IsTerminal() && entry.UpdatedAt.Before(cutoff) {
			ids = append(ids, entry.DocID)
		}
	}

	return ids
}

// History returns the full ordered transition history for a document by
// scanning the append-only audit log. The log is retained across compactions,
// so the sequence is complete regardless of how the index was initialized.
func (l *Ledger) History(docID string) ([]AuditRecord, error) {
	file, err := os.Open(l.logPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to open ledger log: %w", err)
	}

	defer func() {
		_ = file.Close()
	}()

	var history []AuditRecord

	scanner := newAuditScanner(file, l.logPath)

	for {
		record, err := scanner.next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}

			return nil, err
		}

		if record.DocID == docID {
			history = append(history, *record)
		}
	}

	return history, nil
}

// append writes one audit record to the log (and delta log when present) and
// fsyncs before returning. The caller holds l.mu.
func (l *Ledger) append(record *AuditRecord) error {
	line, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal audit record: %w", err)
	}

	line = append(line, '\n')

	if _, err := l.logFile.Write(line); err != nil {
		return fmt.Errorf("failed to append to ledger log: %w", err)
	}

	if err := l.logFile.Sync(); err != nil {
		return fmt.Errorf("failed to sync ledger log: %w", err)
	}

	if l.deltaFile != nil {
		if _, err := l.deltaFile.Write(line); err != nil {
			return fmt.Errorf("failed to append to delta log: %w", err)
		}

		if err := l.deltaFile.Sync(); err != nil {
			return fmt.Errorf("failed to sync delta log: %w", err)
		}
	}

	return nil
}

// replayLog rebuilds the in-memory index from the full audit log.
func (l *Ledger) replayLog() error {
	file, err := os.Open(l.logPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}

		return fmt.Errorf("failed to open ledger log %s: %w", l.logPath, err)
	}

	defer func() {
		_ = file.Close()
	}()

	return l.applyRecords(file, l.logPath)
}

// applyRecords folds audit records from r into the in-memory index.
// Transition validity was enforced at write time; replay trusts the log but
// rejects records it cannot parse.
func (l *Ledger) applyRecords(r io.Reader, path string) error {
	scanner := newAuditScanner(r, path)

	for {
		record, err := scanner.next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}

			return err
		}

		l.entries[record.DocID] = &Entry{
			DocID:     record.DocID,
			Adapter:   record.Adapter,
			State:     record.NewState,
			UpdatedAt: record.Timestamp,
			Attempt:   record.Attempt,
			Error:     record.Error,
			Metadata:  record.Parameters,
		}
	}
}

// auditScanner reads NDJSON audit records, converting parse failures into
// CorruptionError with the offending line number.
type auditScanner struct {
	scanner *bufio.Scanner
	path    string
	line    int
}

func newAuditScanner(r io.Reader, path string) *auditScanner {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	return &auditScanner{scanner: scanner, path: path}
}

func (s *auditScanner) next() (*AuditRecord, error) {
	for s.scanner.Scan() {
		s.line++

		raw := s.scanner.Bytes()
		if len(raw) == 0 {
			continue
		}

		var record AuditRecord
		if err := json.Unmarshal(raw, &record); err != nil {
			return nil, &CorruptionError{Path: s.path, Line: s.line, Err: err}
		}

		if record.DocID == "" || !record.NewState.IsValid() {
			return nil, &CorruptionError{Path: s.path, Line: s.line, Err: errors.New("incomplete audit record")}
		}

		return &record, nil
	}

	if err := s.scanner.Err(); err != nil {
		return nil, &CorruptionError{Path: s.path, Line: s.line, Err: err}
	}

	return nil, io.EOF
}
