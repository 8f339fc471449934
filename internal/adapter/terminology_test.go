package adapter

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medical-kg/ingest/internal/ingestion"
	"github.com/medical-kg/ingest/internal/payload"
)

func TestMeSHParseFlattensLookupDetails(t *testing.T) {
	a := NewMeSH(Dependencies{}).(*MeSH)

	doc, err := a.Parse(map[string]any{
		"descriptor_ui": "D015179",
		"label":         "Colorectal Neoplasms",
		"treeNumbers":   []any{"C04.588.274.476"},
		"scopeNote":     "Tumors or cancer of the colon or rectum.",
	})
	require.NoError(t, err)

	assert.Equal(t, "mesh:D015179", doc.DocID)
	assert.Equal(t, "Tumors or cancer of the colon or rectum.", doc.Content)

	record, ok := doc.Raw.(*payload.MeSHDescriptor)
	require.True(t, ok)
	assert.Equal(t, "Colorectal Neoplasms", record.Name)
	assert.Equal(t, []string{"C04.588.274.476"}, record.TreeNumbers)

	require.NoError(t, a.Validate(doc))
}

func TestMeSHValidateRejectsBadUI(t *testing.T) {
	a := NewMeSH(Dependencies{}).(*MeSH)

	doc, err := a.Parse(map[string]any{
		"descriptor_ui": "X015179",
		"name":          "Not a descriptor",
	})
	require.NoError(t, err)

	require.Error(t, a.Validate(doc))
}

func TestUMLSFetchRequiresAPIKey(t *testing.T) {
	t.Setenv("UMLS_API_KEY", "")

	a := NewUMLS(testDeps(t, "umls", "http://unused"))

	_, err := a.Fetch(context.Background(), Parameters{"cui": "C0004238"})
	require.Error(t, err)

	var missing *ingestion.MissingDependencyError
	require.ErrorAs(t, err, &missing)
	assert.Contains(t, missing.InstallHint, "UMLS_API_KEY")
}

func TestUMLSParseFlattensUTSResult(t *testing.T) {
	a := NewUMLS(Dependencies{}).(*UMLS)

	doc, err := a.Parse(map[string]any{
		"ui":   "C0004238",
		"name": "Atrial Fibrillation",
		"semanticTypes": []any{
			map[string]any{"name": "Disease or Syndrome"},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, "umls:C0004238", doc.DocID)

	record, ok := doc.Raw.(*payload.UMLSConcept)
	require.True(t, ok)
	assert.Equal(t, []string{"Disease or Syndrome"}, record.SemanticTypes)

	require.NoError(t, a.Validate(doc))
}

func TestLOINCFetchFlattensFHIRLookup(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/CodeSystem/$lookup", r.URL.Path)
		assert.Equal(t, "4548-4", r.URL.Query().Get("code"))

		_ = json.NewEncoder(w).Encode(map[string]any{
			"resourceType": "Parameters",
			"parameter": []any{
				map[string]any{"name": "display", "valueString": "Hemoglobin A1c/Hemoglobin.total in Blood"},
				map[string]any{
					"name": "property",
					"part": []any{
						map[string]any{"name": "code", "valueCode": "COMPONENT"},
						map[string]any{"name": "value", "valueString": "Hemoglobin A1c/Hemoglobin.total"},
					},
				},
				map[string]any{
					"name": "property",
					"part": []any{
						map[string]any{"name": "code", "valueCode": "SYSTEM"},
						map[string]any{"name": "value", "valueString": "Bld"},
					},
				},
			},
		})
	}))
	defer server.Close()

	a := NewLOINC(testDeps(t, "loinc", server.URL))

	cursor, err := a.Fetch(context.Background(), Parameters{"code": "4548-4"})
	require.NoError(t, err)

	raw, err := cursor.Next(context.Background())
	require.NoError(t, err)

	doc, err := a.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "loinc:4548-4", doc.DocID)

	record, ok := doc.Raw.(*payload.LOINCConcept)
	require.True(t, ok)
	assert.Equal(t, "Hemoglobin A1c/Hemoglobin.total in Blood", record.LongCommonName)
	assert.Equal(t, "Hemoglobin A1c/Hemoglobin.total", record.Component)
	assert.Equal(t, "Bld", record.System)

	require.NoError(t, a.Validate(doc))
}

func TestICD11ParseFlattensEntity(t *testing.T) {
	a := NewICD11(Dependencies{}).(*ICD11)

	doc, err := a.Parse(map[string]any{
		"entity_id":  "1435254666",
		"title":      map[string]any{"@value": "Diseases of the circulatory system"},
		"code":       "BA00",
		"definition": map[string]any{"@value": "Any condition of the circulatory system."},
	})
	require.NoError(t, err)

	assert.Equal(t, "icd11:1435254666", doc.DocID)
	assert.Equal(t, "Any condition of the circulatory system.", doc.Content)

	record, ok := doc.Raw.(*payload.ICD11Entity)
	require.True(t, ok)
	assert.Equal(t, "BA00", record.Code)

	require.NoError(t, a.Validate(doc))
}

func TestSNOMEDParseFlattensSnowstormConcept(t *testing.T) {
	a := NewSNOMED(Dependencies{}).(*SNOMED)

	doc, err := a.Parse(map[string]any{
		"conceptId": "22298006",
		"fsn":       map[string]any{"term": "Myocardial infarction (disorder)"},
		"pt":        map[string]any{"term": "Myocardial infarction"},
		"active":    true,
		"moduleId":  "900000000000207008",
	})
	require.NoError(t, err)

	assert.Equal(t, "snomed:22298006", doc.DocID)
	assert.Equal(t, "http://snomed.info/id/22298006", doc.URI)

	record, ok := doc.Raw.(*payload.SNOMEDConcept)
	require.True(t, ok)
	assert.Equal(t, "Myocardial infarction", record.PreferredTerm)
	assert.True(t, record.Active)

	require.NoError(t, a.Validate(doc))
}

func TestSNOMEDValidateRejectsBadCheckDigit(t *testing.T) {
	a := NewSNOMED(Dependencies{}).(*SNOMED)

	doc, err := a.Parse(map[string]any{
		"concept_id": "22298007",
		"fsn":        "Myocardial infarction (disorder)",
	})
	require.NoError(t, err)

	require.Error(t, a.Validate(doc))
}
