package adapter

import (
	"context"
	"fmt"
	"strings"

	"github.com/medical-kg/ingest/internal/config"
	"github.com/medical-kg/ingest/internal/httpclient"
	"github.com/medical-kg/ingest/internal/ingestion"
	"github.com/medical-kg/ingest/internal/payload"
)

// RxNorm ingests drug concepts from the NLM RxNorm REST API. Single mode
// fetches /rxcui/{id}/properties; name parameters resolve through
// approximateTerm first.
type RxNorm struct {
	base
}

// NewRxNorm builds the rxnorm adapter.
func NewRxNorm(deps Dependencies) Adapter {
	return &RxNorm{base: newBase("rxnorm", deps, config.SourceConfig{
		BaseURL:       "https://rxnav.nlm.nih.gov/REST",
		RatePerSecond: 10,
		Burst:         20,
		PageSize:      20,
	})}
}

// ParameterDocID implements SingleDocumenter.
func (a *RxNorm) ParameterDocID(params Parameters) (string, bool) {
	rxcui := params.String("rxcui")
	if rxcui == "" {
		return "", false
	}

	return "rxnorm:" + rxcui, true
}

// Fetch implements Adapter. Parameters:
//   - rxcui: fetch that concept's properties
//   - name: approximate-match a drug name, then fetch the top candidates
func (a *RxNorm) Fetch(ctx context.Context, params Parameters) (Cursor, error) {
	if rxcui := params.String("rxcui"); rxcui != "" {
		properties, err := a.properties(ctx, rxcui)
		if err != nil {
			return nil, err
		}

		return newSliceCursor([]map[string]any{properties}), nil
	}

	name := params.String("name")
	if name == "" {
		return nil, a.schemaErr(fmt.Errorf("rxnorm parameters need rxcui or name"))
	}

	response, err := a.client.GetJSON(ctx, a.source.BaseURL+"/approximateTerm.json",
		httpclient.WithQuery(map[string]string{
			"term":       name,
			"maxEntries": "10",
		}))
	if err != nil {
		return nil, err
	}

	page, err := response.Mapping()
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	records := make([]map[string]any, 0, 10)

	for _, candidate := range objectsAt(page, "approximateGroup", "candidate") {
		rxcui := stringAt(candidate, "rxcui")
		if rxcui == "" || seen[rxcui] {
			continue
		}

		seen[rxcui] = true

		properties, err := a.properties(ctx, rxcui)
		if err != nil {
			return nil, err
		}

		records = append(records, properties)
	}

	return newSliceCursor(records), nil
}

func (a *RxNorm) properties(ctx context.Context, rxcui string) (map[string]any, error) {
	response, err := a.client.GetJSON(ctx, a.source.BaseURL+"/rxcui/"+rxcui+"/properties.json")
	if err != nil {
		return nil, err
	}

	page, err := response.Mapping()
	if err != nil {
		return nil, err
	}

	properties := mapAt(page, "properties")
	if properties == nil {
		return nil, a.schemaErr(fmt.Errorf("rxcui %s has no properties object", rxcui))
	}

	return properties, nil
}

// Parse implements Adapter. Accepts either a flat RxNormConcept mapping or a
// raw /properties object (camel-cased keys).
func (a *RxNorm) Parse(raw map[string]any) (*ingestion.Document, error) {
	flat := raw
	if !payload.GuardRxNormConcept(raw) {
		flat = map[string]any{
			"rxcui": stringAt(raw, "rxcui"),
			"name":  stringAt(raw, "name"),
		}

		if tty := stringAt(raw, "tty"); tty != "" {
			flat["tty"] = tty
		}

		// RxNorm reports ISO 639-2 codes ("ENG"); normalize to the
		// two-letter form the payload contract uses.
		if language := strings.ToLower(stringAt(raw, "language")); len(language) >= 2 {
			flat["language"] = language[:2]
		}
	}

	if !payload.GuardRxNormConcept(flat) {
		return nil, a.schemaErr(fmt.Errorf("record is not an RxNorm concept"))
	}

	record, err := payload.DecodeRxNormConcept(flat)
	if err != nil {
		return nil, a.schemaErr(err)
	}

	return a.document("rxnorm:"+record.RxCUI, flat, record,
		ingestion.WithURI("https://mor.nlm.nih.gov/RxNav/search?searchBy=RXCUI&searchTerm="+record.RxCUI),
		ingestion.WithContent(record.Name),
	)
}

// Validate implements Adapter.
func (a *RxNorm) Validate(doc *ingestion.Document) error {
	record, ok := doc.Raw.(*payload.RxNormConcept)
	if !ok {
		return validationErr(doc.DocID, fmt.Errorf("expected RxNormConcept payload, got %T", doc.Raw))
	}

	if err := payload.ValidateRxCUI(record.RxCUI); err != nil {
		return validationErr(doc.DocID, err)
	}

	if record.Language != "" {
		if err := payload.ValidateLanguage(record.Language); err != nil {
			return validationErr(doc.DocID, err)
		}
	}

	if err := ingestion.ValidateMetadata(doc); err != nil {
		return validationErr(doc.DocID, err)
	}

	return nil
}
