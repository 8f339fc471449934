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

// DailyMed ingests structured product labels from the DailyMed v2 services
// API. Sweeps walk the /spls listing with page/pagesize; single mode filters
// the listing on setid.
type DailyMed struct {
	base
}

// NewDailyMed builds the dailymed adapter.
func NewDailyMed(deps Dependencies) Adapter {
	return &DailyMed{base: newBase("dailymed", deps, config.SourceConfig{
		BaseURL:       "https://dailymed.nlm.nih.gov/dailymed/services/v2",
		RatePerSecond: 3,
		Burst:         6,
		PageSize:      100,
	})}
}

// ParameterDocID implements SingleDocumenter.
func (a *DailyMed) ParameterDocID(params Parameters) (string, bool) {
	setID := params.String("set_id")
	if setID == "" {
		return "", false
	}

	return "dailymed:" + setID, true
}

// Fetch implements Adapter. Parameters:
//   - set_id: fetch the listing entry for that SPL set
//   - drug_name: listing filter for a sweep
//   - page_size: listing pagesize override
func (a *DailyMed) Fetch(ctx context.Context, params Parameters) (Cursor, error) {
	setID := params.String("set_id")
	drugName := params.String("drug_name")
	pageSize := params.Int("page_size", a.source.PageSize)
	page := 1

	return newPagedCursor(func(ctx context.Context) ([]map[string]any, bool, error) {
		query := map[string]string{
			"page":     strconv.Itoa(page),
			"pagesize": strconv.Itoa(pageSize),
		}

		if setID != "" {
			query["setid"] = setID
		}

		if drugName != "" {
			query["drug_name"] = drugName
		}

		response, err := a.client.GetJSON(ctx, a.source.BaseURL+"/spls.json", httpclient.WithQuery(query))
		if err != nil {
			return nil, false, err
		}

		entries, err := response.MappingField("data")
		if err != nil {
			return nil, false, err
		}

		listing, err := response.Mapping()
		if err != nil {
			return nil, false, err
		}

		totalPages := intAt(listing, "metadata", "total_pages")
		more := page < totalPages
		page++

		return entries, more, nil
	}), nil
}

// Parse implements Adapter. Accepts either a flat DailyMedSPL mapping or a
// raw /spls listing entry (setid/spl_version keys).
func (a *DailyMed) Parse(raw map[string]any) (*ingestion.Document, error) {
	flat := raw
	if !payload.GuardDailyMedSPL(raw) {
		flat = flattenSPL(raw)
	}

	if !payload.GuardDailyMedSPL(flat) {
		return nil, a.schemaErr(fmt.Errorf("record is not a DailyMed SPL listing entry"))
	}

	record, err := payload.DecodeDailyMedSPL(flat)
	if err != nil {
		return nil, a.schemaErr(err)
	}

	content := record.Content
	if content == "" {
		content = record.Title
	}

	return a.document("dailymed:"+record.SetID, flat, record,
		ingestion.WithURI("https://dailymed.nlm.nih.gov/dailymed/drugInfo.cfm?setid="+record.SetID),
		ingestion.WithContent(content),
	)
}

// Validate implements Adapter.
func (a *DailyMed) Validate(doc *ingestion.Document) error {
	record, ok := doc.Raw.(*payload.DailyMedSPL)
	if !ok {
		return validationErr(doc.DocID, fmt.Errorf("expected DailyMedSPL payload, got %T", doc.Raw))
	}

	if record.SetID == "" || record.Title == "" {
		return validationErr(doc.DocID, fmt.Errorf("SPL set_id and title are required"))
	}

	if err := ingestion.ValidateMetadata(doc); err != nil {
		return validationErr(doc.DocID, err)
	}

	return nil
}

// flattenSPL projects a raw /spls listing entry onto the flat DailyMedSPL
// field set.
func flattenSPL(entry map[string]any) map[string]any {
	flat := map[string]any{
		"set_id": stringAt(entry, "setid"),
		"title":  stringAt(entry, "title"),
	}

	if version := intAt(entry, "spl_version"); version > 0 {
		flat["spl_version"] = version
	}

	if published := stringAt(entry, "published_date"); published != "" {
		flat["published_date"] = published
	}

	return flat
}
