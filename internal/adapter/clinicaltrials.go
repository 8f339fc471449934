package adapter

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/medical-kg/ingest/internal/config"
	"github.com/medical-kg/ingest/internal/httpclient"
	"github.com/medical-kg/ingest/internal/ingestion"
	"github.com/medical-kg/ingest/internal/payload"
)

// ClinicalTrials ingests study records from the ClinicalTrials.gov v2 API.
//
// Two fetch modes: a single study by nct_id, or a search sweep driven by
// query.term with pageToken pagination. Parse flattens the v2 protocolSection
// tree into the ClinicalTrialsStudy payload shape.
type ClinicalTrials struct {
	base
}

// NewClinicalTrials builds the clinicaltrials adapter.
func NewClinicalTrials(deps Dependencies) Adapter {
	return &ClinicalTrials{base: newBase("clinicaltrials", deps, config.SourceConfig{
		BaseURL:       "https://clinicaltrials.gov/api/v2",
		RatePerSecond: 5,
		Burst:         10,
		PageSize:      100,
	})}
}

// ParameterDocID implements SingleDocumenter: nct_id parameters identify
// exactly one study.
func (a *ClinicalTrials) ParameterDocID(params Parameters) (string, bool) {
	nctID := strings.ToUpper(params.String("nct_id"))
	if nctID == "" {
		return "", false
	}

	return "nct:" + nctID, true
}

// Fetch implements Adapter. Parameters:
//   - nct_id: fetch that single study
//   - term: search expression for a sweep (Essie syntax)
//   - page_size: override for the sweep page size
func (a *ClinicalTrials) Fetch(ctx context.Context, params Parameters) (Cursor, error) {
	if nctID := strings.ToUpper(params.String("nct_id")); nctID != "" {
		response, err := a.client.GetJSON(ctx, a.source.BaseURL+"/studies/"+nctID)
		if err != nil {
			return nil, err
		}

		study, err := response.Mapping()
		if err != nil {
			return nil, err
		}

		return newSliceCursor([]map[string]any{study}), nil
	}

	term := params.String("term")
	pageSize := params.Int("page_size", a.source.PageSize)
	pageToken := ""

	return newPagedCursor(func(ctx context.Context) ([]map[string]any, bool, error) {
		query := map[string]string{
			"pageSize": strconv.Itoa(pageSize),
			"format":   "json",
		}

		if term != "" {
			query["query.term"] = term
		}

		if pageToken != "" {
			query["pageToken"] = pageToken
		}

		response, err := a.client.GetJSON(ctx, a.source.BaseURL+"/studies", httpclient.WithQuery(query))
		if err != nil {
			return nil, false, err
		}

		studies, err := response.MappingField("studies")
		if err != nil {
			return nil, false, err
		}

		page, err := response.Mapping()
		if err != nil {
			return nil, false, err
		}

		pageToken = stringAt(page, "nextPageToken")

		return studies, pageToken != "", nil
	}), nil
}

// Parse implements Adapter. Accepts either a raw v2 study tree or an
// already-flat study mapping (batch replays); both narrow through the same
// payload guard and decoder.
func (a *ClinicalTrials) Parse(raw map[string]any) (*ingestion.Document, error) {
	flat := raw
	if !payload.GuardClinicalTrialsStudy(raw) {
		flat = flattenStudy(raw)
	}

	if !payload.GuardClinicalTrialsStudy(flat) {
		return nil, a.schemaErr(fmt.Errorf("record is not a ClinicalTrials.gov study"))
	}

	record, err := payload.DecodeClinicalTrialsStudy(flat)
	if err != nil {
		return nil, a.schemaErr(err)
	}

	content := record.BriefSummary
	if content == "" {
		content = record.BriefTitle
	}

	return a.document("nct:"+record.NCTID, flat, record,
		ingestion.WithURI("https://clinicaltrials.gov/study/"+record.NCTID),
		ingestion.WithContent(content),
	)
}

// Validate implements Adapter.
func (a *ClinicalTrials) Validate(doc *ingestion.Document) error {
	record, ok := doc.Raw.(*payload.ClinicalTrialsStudy)
	if !ok {
		return validationErr(doc.DocID, fmt.Errorf("expected ClinicalTrialsStudy payload, got %T", doc.Raw))
	}

	if err := payload.ValidateNCTID(record.NCTID); err != nil {
		return validationErr(doc.DocID, err)
	}

	if err := ingestion.ValidateMetadata(doc); err != nil {
		return validationErr(doc.DocID, err)
	}

	return nil
}

// AutoParameters implements AutoParameterizer: one sweep over studies whose
// last update falls inside the window.
func (a *ClinicalTrials) AutoParameters(_ context.Context, window Window) ([]Parameters, error) {
	term := fmt.Sprintf("AREA[LastUpdatePostDate]RANGE[%s,%s]",
		window.Start.Format("2006-01-02"), window.End.Format("2006-01-02"))

	pageSize := window.PageSize
	if pageSize == 0 {
		pageSize = a.source.PageSize
	}

	return []Parameters{{"term": term, "page_size": pageSize}}, nil
}

// flattenStudy projects the v2 API protocolSection tree onto the flat
// ClinicalTrialsStudy field set.
func flattenStudy(study map[string]any) map[string]any {
	protocol := mapAt(study, "protocolSection")
	if protocol == nil {
		return study
	}

	flat := map[string]any{
		"nct_id":      stringAt(protocol, "identificationModule", "nctId"),
		"brief_title": stringAt(protocol, "identificationModule", "briefTitle"),
	}

	setIfPresent := func(key, value string) {
		if value != "" {
			flat[key] = value
		}
	}

	setIfPresent("official_title", stringAt(protocol, "identificationModule", "officialTitle"))
	setIfPresent("overall_status", stringAt(protocol, "statusModule", "overallStatus"))
	setIfPresent("study_type", stringAt(protocol, "designModule", "studyType"))
	setIfPresent("lead_sponsor", stringAt(protocol, "sponsorCollaboratorsModule", "leadSponsor", "name"))
	setIfPresent("brief_summary", stringAt(protocol, "descriptionModule", "briefSummary"))
	setIfPresent("last_update_date", stringAt(protocol, "statusModule", "lastUpdatePostDateStruct", "date"))
	setIfPresent("version_holder", stringAt(study, "derivedSection", "miscInfoModule", "versionHolder"))

	if phases := stringsAt(protocol, "designModule", "phases"); len(phases) > 0 {
		flat["phase"] = strings.Join(phases, "/")
	}

	if conditions := stringsAt(protocol, "conditionsModule", "conditions"); len(conditions) > 0 {
		values := make([]any, len(conditions))
		for i, condition := range conditions {
			values[i] = condition
		}

		flat["conditions"] = values
	}

	if enrollment := intAt(protocol, "designModule", "enrollmentInfo", "count"); enrollment > 0 {
		flat["enrollment_n"] = enrollment
	}

	return flat
}
