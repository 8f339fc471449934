package adapter

import (
	"errors"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryRegisterAndBuild(t *testing.T) {
	registry := NewRegistry()

	require.NoError(t, registry.Register("clinicaltrials", NewClinicalTrials))

	a, err := registry.Build("clinicaltrials", Dependencies{})
	require.NoError(t, err)
	assert.Equal(t, "clinicaltrials", a.Name())
}

func TestRegistryRejectsDuplicatesAndNils(t *testing.T) {
	registry := NewRegistry()

	require.NoError(t, registry.Register("pubmed", NewPubMed))

	err := registry.Register("pubmed", NewPubMed)
	assert.ErrorIs(t, err, ErrAlreadyRegistered)

	assert.ErrorIs(t, registry.Register("", NewPubMed), ErrNameEmpty)
	assert.ErrorIs(t, registry.Register("x", nil), ErrAdapterNil)
}

func TestRegistryUnknownAdapter(t *testing.T) {
	registry := NewRegistry()

	_, err := registry.Build("nope", Dependencies{})

	var unknown *UnknownAdapterError
	require.True(t, errors.As(err, &unknown))
	assert.Equal(t, "nope", unknown.Name)
}

func TestDefaultRegistryCoversAllSources(t *testing.T) {
	names := DefaultRegistry().Names()

	expected := []string{
		"accessgudid", "cdc", "clinicaltrials", "dailymed", "icd11", "loinc",
		"medrxiv", "mesh", "nice", "openfda", "openprescribing", "pmc",
		"pubmed", "rxnorm", "snomed", "umls", "who",
	}

	assert.Equal(t, expected, names)
	assert.True(t, sort.StringsAreSorted(names))
}

func TestParametersAccessors(t *testing.T) {
	// Batch files decode through encoding/json, so numbers arrive as float64.
	params := Parameters{"pmid": float64(31452104), "term": "covid", "page_size": float64(50)}

	assert.Equal(t, "31452104", params.String("pmid"))
	assert.Equal(t, "covid", params.String("term"))
	assert.Equal(t, "", params.String("missing"))
	assert.Equal(t, 50, params.Int("page_size", 100))
	assert.Equal(t, 100, params.Int("missing", 100))
	assert.Equal(t, 100, params.Int("term", 100))
}
