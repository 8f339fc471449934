// Package payload defines the typed record shapes carried by ingested
// documents, one per external source, together with the structural type
// guards and identifier validators that police them.
//
// Every adapter family has a closed set of record types. A record crosses two
// validation tiers on its way into a Document:
//
//  1. Boundary decoding (DecodeXxx): coerces an arbitrary JSON mapping into
//     the declared struct and fails when required keys are absent. This is
//     the only place untyped mappings are touched.
//  2. Semantic validation (identifier validators): value-level invariants such
//     as NCT number format or SNOMED Verhoeff check digits, applied by the
//     adapter's Validate stage on the already-typed record.
//
// Guards (GuardXxx) are pure boolean functions over raw mappings; they never
// return errors and never panic.
package payload

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Family identifies the adapter family a record belongs to.
type Family string

// Adapter families. The set is closed; extending it is a compile-time change.
const (
	FamilyClinical    Family = "clinical"
	FamilyLiterature  Family = "literature"
	FamilyTerminology Family = "terminology"
	FamilyGuideline   Family = "guideline"
)

// Record is the interface implemented by every typed source payload.
// Only types declared in this package implement it; Document construction
// rejects anything else at the boundary.
type Record interface {
	// Family returns the adapter family this record belongs to.
	Family() Family

	// Source returns the registry name of the source that produced the record.
	Source() string
}

// Sentinel errors for boundary decoding.
var (
	// ErrNilMapping is returned when a nil mapping is passed to a decoder.
	ErrNilMapping = errors.New("mapping cannot be nil")

	// ErrMissingRequiredField is returned when a required key is absent from a raw mapping.
	ErrMissingRequiredField = errors.New("missing required field")

	// ErrMalformedMapping is returned when a raw mapping cannot be coerced into the declared shape.
	ErrMalformedMapping = errors.New("malformed mapping")
)

// requireFields checks that every named key is present and non-nil in the mapping.
func requireFields(m map[string]any, fields ...string) error {
	for _, field := range fields {
		if value, ok := m[field]; !ok || value == nil {
			return fmt.Errorf("%w: %s", ErrMissingRequiredField, field)
		}
	}

	return nil
}

// hasFields reports whether every named key is present and non-nil.
// Guard helper; never errors.
func hasFields(m map[string]any, fields ...string) bool {
	if m == nil {
		return false
	}

	for _, field := range fields {
		if value, ok := m[field]; !ok || value == nil {
			return false
		}
	}

	return true
}

// decodeInto coerces a raw mapping into dst via a JSON round trip.
// Unknown keys are dropped, which is what keeps untyped values from leaking
// past the boundary.
func decodeInto(m map[string]any, dst any) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedMapping, err)
	}

	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedMapping, err)
	}

	return nil
}
