package adapter

import (
	"context"
	"fmt"
	"strconv"

	"github.com/medical-kg/ingest/internal/config"
	"github.com/medical-kg/ingest/internal/httpclient"
	"github.com/medical-kg/ingest/internal/ingestion"
	"github.com/medical-kg/ingest/internal/payload"
)

// OpenFDA ingests drug label records from the openFDA /drug/label endpoint.
// Sweeps paginate with search/limit/skip; single mode filters on set_id.
type OpenFDA struct {
	base
}

// NewOpenFDA builds the openfda adapter.
func NewOpenFDA(deps Dependencies) Adapter {
	return &OpenFDA{base: newBase("openfda", deps, config.SourceConfig{
		BaseURL:       "https://api.fda.gov",
		RatePerSecond: 4,
		Burst:         8,
		PageSize:      100,
		APIKeyEnv:     "OPENFDA_API_KEY",
	})}
}

// ParameterDocID implements SingleDocumenter. set_id parameters identify one
// label lineage; openFDA returns its latest version.
func (a *OpenFDA) ParameterDocID(params Parameters) (string, bool) {
	setID := params.String("set_id")
	if setID == "" {
		return "", false
	}

	return "openfda:" + setID, true
}

// Fetch implements Adapter. Parameters:
//   - set_id: fetch the latest label for that SPL set
//   - search: openFDA search expression for a sweep
//   - page_size: page limit override (openFDA caps at 1000)
func (a *OpenFDA) Fetch(ctx context.Context, params Parameters) (Cursor, error) {
	search := params.String("search")
	if setID := params.String("set_id"); setID != "" {
		search = fmt.Sprintf(`set_id:%q`, setID)
	}

	pageSize := params.Int("page_size", a.source.PageSize)
	skip := 0

	return newPagedCursor(func(ctx context.Context) ([]map[string]any, bool, error) {
		query := map[string]string{
			"limit": strconv.Itoa(pageSize),
			"skip":  strconv.Itoa(skip),
		}

		if search != "" {
			query["search"] = search
		}

		if key := a.source.APIKey(); key != "" {
			query["api_key"] = key
		}

		response, err := a.client.GetJSON(ctx, a.source.BaseURL+"/drug/label.json", httpclient.WithQuery(query))
		if err != nil {
			return nil, false, err
		}

		results, err := response.MappingField("results")
		if err != nil {
			return nil, false, err
		}

		page, err := response.Mapping()
		if err != nil {
			return nil, false, err
		}

		skip += len(results)
		total := intAt(page, "meta", "results", "total")

		return results, skip < total, nil
	}), nil
}

// Parse implements Adapter. Accepts either a flat OpenFDARecord mapping or a
// raw openFDA label result with the nested openfda enrichment block.
func (a *OpenFDA) Parse(raw map[string]any) (*ingestion.Document, error) {
	flat := raw
	if mapAt(raw, "openfda") != nil {
		flat = flattenLabel(raw)
	}

	if !payload.GuardOpenFDARecord(flat) {
		return nil, a.schemaErr(fmt.Errorf("record is not an openFDA drug label"))
	}

	record, err := payload.DecodeOpenFDARecord(flat)
	if err != nil {
		return nil, a.schemaErr(err)
	}

	content := ""
	if len(record.IndicationsAndUsage) > 0 {
		content = record.IndicationsAndUsage[0]
	}

	return a.document("openfda:"+record.ID, flat, record,
		ingestion.WithURI(a.source.BaseURL+"/drug/label.json?search=id:"+record.ID),
		ingestion.WithContent(content),
	)
}

// Validate implements Adapter.
func (a *OpenFDA) Validate(doc *ingestion.Document) error {
	record, ok := doc.Raw.(*payload.OpenFDARecord)
	if !ok {
		return validationErr(doc.DocID, fmt.Errorf("expected OpenFDARecord payload, got %T", doc.Raw))
	}

	if record.ID == "" || record.SetID == "" {
		return validationErr(doc.DocID, fmt.Errorf("label id and set_id are required"))
	}

	if err := ingestion.ValidateMetadata(doc); err != nil {
		return validationErr(doc.DocID, err)
	}

	return nil
}

// AutoParameters implements AutoParameterizer: one sweep over labels whose
// effective_time falls inside the window.
func (a *OpenFDA) AutoParameters(_ context.Context, window Window) ([]Parameters, error) {
	search := fmt.Sprintf("effective_time:[%s TO %s]",
		window.Start.Format("20060102"), window.End.Format("20060102"))

	pageSize := window.PageSize
	if pageSize == 0 {
		pageSize = a.source.PageSize
	}

	return []Parameters{{"search": search, "page_size": pageSize}}, nil
}

// flattenLabel projects a raw openFDA label result onto the flat
// OpenFDARecord field set.
func flattenLabel(result map[string]any) map[string]any {
	flat := map[string]any{
		"id":     stringAt(result, "id"),
		"set_id": stringAt(result, "set_id"),
	}

	if version := stringAt(result, "version"); version != "" {
		flat["version"] = version
	}

	if effective := stringAt(result, "effective_time"); effective != "" {
		flat["effective_time"] = effective
	}

	if brands := stringsAt(result, "openfda", "brand_name"); len(brands) > 0 {
		flat["brand_name"] = brands[0]
	}

	if generics := stringsAt(result, "openfda", "generic_name"); len(generics) > 0 {
		flat["generic_name"] = generics[0]
	}

	for _, section := range []string{"indications_and_usage", "warnings", "adverse_reactions"} {
		if texts := stringsAt(result, section); len(texts) > 0 {
			values := make([]any, len(texts))
			for i, text := range texts {
				values[i] = text
			}

			flat[section] = values
		}
	}

	return flat
}
