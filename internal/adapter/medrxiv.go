package adapter

import (
	"context"
	"fmt"
	"strconv"

	"github.com/medical-kg/ingest/internal/config"
	"github.com/medical-kg/ingest/internal/ingestion"
	"github.com/medical-kg/ingest/internal/payload"
)

// MedRxiv ingests preprint records from the medRxiv details API, which pages
// a date interval with a numeric cursor.
type MedRxiv struct {
	base
}

// NewMedRxiv builds the medrxiv adapter.
func NewMedRxiv(deps Dependencies) Adapter {
	return &MedRxiv{base: newBase("medrxiv", deps, config.SourceConfig{
		BaseURL:       "https://api.medrxiv.org",
		RatePerSecond: 2,
		Burst:         4,
		PageSize:      100,
	})}
}

// Fetch implements Adapter. Parameters:
//   - start, end: the date interval, YYYY-MM-DD
func (a *MedRxiv) Fetch(ctx context.Context, params Parameters) (Cursor, error) {
	start := params.String("start")
	end := params.String("end")

	if start == "" || end == "" {
		return nil, a.schemaErr(fmt.Errorf("medrxiv parameters need start and end dates"))
	}

	offset := 0

	return newPagedCursor(func(ctx context.Context) ([]map[string]any, bool, error) {
		url := fmt.Sprintf("%s/details/medrxiv/%s/%s/%s",
			a.source.BaseURL, start, end, strconv.Itoa(offset))

		response, err := a.client.GetJSON(ctx, url)
		if err != nil {
			return nil, false, err
		}

		preprints, err := response.MappingField("collection")
		if err != nil {
			return nil, false, err
		}

		page, err := response.Mapping()
		if err != nil {
			return nil, false, err
		}

		offset += len(preprints)

		total := 0
		if messages := objectsAt(page, "messages"); len(messages) > 0 {
			total = intAt(messages[0], "total")
		}

		return preprints, len(preprints) > 0 && offset < total, nil
	}), nil
}

// Parse implements Adapter. The details API collection entries are already
// flat; version arrives as a string and is normalized to an int.
func (a *MedRxiv) Parse(raw map[string]any) (*ingestion.Document, error) {
	flat := raw
	if _, isString := raw["version"].(string); isString {
		flat = make(map[string]any, len(raw))
		for key, value := range raw {
			flat[key] = value
		}

		version, _ := strconv.Atoi(stringAt(raw, "version"))
		flat["version"] = version
	}

	if !payload.GuardMedRxivPreprint(flat) {
		return nil, a.schemaErr(fmt.Errorf("record is not a medRxiv preprint"))
	}

	record, err := payload.DecodeMedRxivPreprint(flat)
	if err != nil {
		return nil, a.schemaErr(err)
	}

	content := record.Abstract
	if content == "" {
		content = record.Title
	}

	return a.document("medrxiv:"+record.DOI, flat, record,
		ingestion.WithURI("https://doi.org/"+record.DOI),
		ingestion.WithContent(content),
	)
}

// Validate implements Adapter.
func (a *MedRxiv) Validate(doc *ingestion.Document) error {
	record, ok := doc.Raw.(*payload.MedRxivPreprint)
	if !ok {
		return validationErr(doc.DocID, fmt.Errorf("expected MedRxivPreprint payload, got %T", doc.Raw))
	}

	if err := payload.ValidateDOI(record.DOI); err != nil {
		return validationErr(doc.DocID, err)
	}

	if err := ingestion.ValidateMetadata(doc); err != nil {
		return validationErr(doc.DocID, err)
	}

	return nil
}

// AutoParameters implements AutoParameterizer: the window maps directly onto
// the API's date interval.
func (a *MedRxiv) AutoParameters(_ context.Context, window Window) ([]Parameters, error) {
	return []Parameters{{
		"start": window.Start.Format("2006-01-02"),
		"end":   window.End.Format("2006-01-02"),
	}}, nil
}
