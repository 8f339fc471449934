// Package ledger provides the durable per-document lifecycle state machine:
// an append-only NDJSON audit log, an in-memory index, and snapshot+delta
// compaction for fast cold start.
//
// The ledger is the single source of truth for document lifecycle across
// restarts. Writes are serialized and fsynced before they are acknowledged;
// reads are served from the in-memory index.
package ledger

import (
	"errors"
	"fmt"
)

// State is a document lifecycle state. The enum is the sole accepted type for
// state arguments: strings are rejected at every boundary and no legacy
// coercion path exists.
type State string

// Document lifecycle states.
const (
	StatePending         State = "PENDING"
	StateFetching        State = "FETCHING"
	StateParsing         State = "PARSING"
	StateValidating      State = "VALIDATING"
	StateWriting         State = "WRITING"
	StateCompleted       State = "COMPLETED"
	StateFailedRetryable State = "FAILED_RETRYABLE"
	StateRetrying        State = "RETRYING"
	StateFailedTerminal  State = "FAILED_TERMINAL"
	StateSkipped         State = "SKIPPED"
)

// ValidTransitions is the total transition map: every non-terminal state maps
// to its permissible successors. Terminal states have no outgoing edges.
//
// Happy path:
//
//	PENDING → FETCHING → PARSING → VALIDATING → WRITING → COMPLETED
//
// Failure branches feed FAILED_RETRYABLE (looped back through RETRYING) or
// FAILED_TERMINAL. SKIPPED marks work intentionally not performed.
var ValidTransitions = map[State][]State{
	StatePending:         {StateFetching, StateSkipped},
	StateFetching:        {StateParsing, StateFailedRetryable, StateFailedTerminal, StateSkipped},
	StateParsing:         {StateValidating, StateFailedRetryable, StateFailedTerminal},
	StateValidating:      {StateWriting, StateFailedRetryable, StateFailedTerminal},
	StateWriting:         {StateCompleted, StateFailedRetryable, StateFailedTerminal},
	StateFailedRetryable: {StateRetrying, StateFailedTerminal},
	StateRetrying:        {StateFetching},
	StateCompleted:       {},
	StateFailedTerminal:  {},
	StateSkipped:         {},
}

// Sentinel errors for state parsing and transition validation.
var (
	// ErrUnknownState indicates a state name outside the closed enum.
	ErrUnknownState = errors.New("unknown ledger state")

	// ErrInvalidTransition indicates a transition outside ValidTransitions.
	ErrInvalidTransition = errors.New("invalid state transition")
)

// IsValid reports whether the state is a member of the closed enum.
func (s State) IsValid() bool {
	_, ok := ValidTransitions[s]

	return ok
}

// IsTerminal reports whether the state permits no further transitions.
func (s State) IsTerminal() bool {
	return s == StateCompleted || s == StateFailedTerminal || s == StateSkipped
}

// IsRetryable reports whether the state may transition to RETRYING.
func (s State) IsRetryable() bool {
	return s == StateFailedRetryable
}

// ParseState converts a serialized state name back to the enum, rejecting
// anything outside the closed set.
func ParseState(name string) (State, error) {
	s := State(name)
	if !s.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownState, name)
	}

	return s, nil
}

// MarshalText implements encoding.TextMarshaler using the enum name.
func (s State) MarshalText() ([]byte, error) {
	if !s.IsValid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownState, string(s))
	}

	return []byte(s), nil
}

// UnmarshalText implements encoding.TextUnmarshaler, rejecting unknown names.
// The empty string is accepted as the zero value so that the initial
// transition (no prior state) round-trips.
func (s *State) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		*s = ""

		return nil
	}

	parsed, err := ParseState(string(text))
	if err != nil {
		return err
	}

	*s = parsed

	return nil
}

// InvalidStateTransitionError reports an attempted illegal transition. This is
// a programming error: callers must let it propagate, never swallow it.
type InvalidStateTransitionError struct {
	From  State
	To    State
	DocID string
}

func (e *InvalidStateTransitionError) Error() string {
	if e.From == "" {
		return fmt.Sprintf("invalid initial state %s for %s (new documents start at PENDING)", e.To, e.DocID)
	}

	if e.From.IsTerminal() {
		return fmt.Sprintf("invalid state transition %s → %s for %s (terminal states are immutable)", e.From, e.To, e.DocID)
	}

	return fmt.Sprintf("invalid state transition %s → %s for %s", e.From, e.To, e.DocID)
}

func (e *InvalidStateTransitionError) Unwrap() error { return ErrInvalidTransition }

// ValidateTransition validates a single transition against ValidTransitions.
// An empty from state means the document is new; only PENDING may follow.
func ValidateTransition(from, to State, docID string) error {
	if from == "" {
		if to != StatePending {
			return &InvalidStateTransitionError{From: from, To: to, DocID: docID}
		}

		return nil
	}

	for _, next := range ValidTransitions[from] {
		if next == to {
			return nil
		}
	}

	return &InvalidStateTransitionError{From: from, To: to, DocID: docID}
}
