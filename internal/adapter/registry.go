package adapter

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Sentinel errors for registry operations.
var (
	// ErrAdapterNil is returned when registering a nil factory.
	ErrAdapterNil = errors.New("adapter factory cannot be nil")

	// ErrNameEmpty is returned when registering with an empty source name.
	ErrNameEmpty = errors.New("adapter name cannot be empty")

	// ErrAlreadyRegistered is returned when a source name is registered twice.
	ErrAlreadyRegistered = errors.New("adapter already registered")
)

// UnknownAdapterError reports a registry miss. Fatal to the invocation.
type UnknownAdapterError struct {
	Name string
}

func (e *UnknownAdapterError) Error() string {
	return fmt.Sprintf("unknown adapter %q", e.Name)
}

// Registry maps source names to adapter factories. Populated once at startup
// and read-only afterwards; there is no runtime class loading.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates an empty adapter registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds a factory under a source name.
func (r *Registry) Register(name string, factory Factory) error {
	if factory == nil {
		return ErrAdapterNil
	}

	if name == "" {
		return ErrNameEmpty
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[name]; exists {
		return fmt.Errorf("%w: %s", ErrAlreadyRegistered, name)
	}

	r.factories[name] = factory

	return nil
}

// Lookup returns the factory for a source name, or UnknownAdapterError.
func (r *Registry) Lookup(name string) (Factory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	factory, ok := r.factories[name]
	if !ok {
		return nil, &UnknownAdapterError{Name: name}
	}

	return factory, nil
}

// Build looks up and instantiates an adapter with the given dependencies.
func (r *Registry) Build(name string, deps Dependencies) (Adapter, error) {
	factory, err := r.Lookup(name)
	if err != nil {
		return nil, err
	}

	return factory(deps), nil
}

// Names returns the registered source names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

// DefaultRegistry returns a registry with every first-party adapter
// registered. The set is fixed at compile time.
func DefaultRegistry() *Registry {
	registry := NewRegistry()

	for name, factory := range map[string]Factory{
		"clinicaltrials":  NewClinicalTrials,
		"openfda":         NewOpenFDA,
		"dailymed":        NewDailyMed,
		"rxnorm":          NewRxNorm,
		"accessgudid":     NewAccessGUDID,
		"pubmed":          NewPubMed,
		"pmc":             NewPMC,
		"medrxiv":         NewMedRxiv,
		"mesh":            NewMeSH,
		"umls":            NewUMLS,
		"loinc":           NewLOINC,
		"icd11":           NewICD11,
		"snomed":          NewSNOMED,
		"nice":            NewNICE,
		"cdc":             NewCDC,
		"who":             NewWHO,
		"openprescribing": NewOpenPrescribing,
	} {
		// Registration cannot fail for the compiled-in set.
		_ = registry.Register(name, factory)
	}

	return registry
}
