package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/medical-kg/ingest/internal/config"
	"github.com/medical-kg/ingest/internal/httpclient"
	"github.com/medical-kg/ingest/internal/ingestion"
	"github.com/medical-kg/ingest/internal/payload"
)

type (
	// NICE ingests guidance records from the NICE syndication API, keyed by
	// the guidance reference, e.g. "NG28".
	NICE struct {
		base
	}

	// CDC ingests dataset rows from data.cdc.gov Socrata endpoints with
	// $limit/$offset pagination.
	CDC struct {
		base
	}

	// WHO ingests indicator observations from the WHO GHO OData API.
	WHO struct {
		base
	}

	// OpenPrescribing ingests NHS prescribing spend rows from the
	// OpenPrescribing API.
	OpenPrescribing struct {
		base
	}
)

// NewNICE builds the nice adapter.
func NewNICE(deps Dependencies) Adapter {
	return &NICE{base: newBase("nice", deps, config.SourceConfig{
		BaseURL:       "https://api.nice.org.uk/services/v2",
		RatePerSecond: 2,
		Burst:         4,
		PageSize:      25,
		APIKeyEnv:     "NICE_API_KEY",
	})}
}

// ParameterDocID implements SingleDocumenter.
func (a *NICE) ParameterDocID(params Parameters) (string, bool) {
	guidelineID := params.String("guideline_id")
	if guidelineID == "" {
		return "", false
	}

	return "nice:" + guidelineID, true
}

// Fetch implements Adapter. Parameters:
//   - guideline_id: the guidance reference to fetch
func (a *NICE) Fetch(ctx context.Context, params Parameters) (Cursor, error) {
	guidelineID := params.String("guideline_id")
	if guidelineID == "" {
		return nil, a.schemaErr(fmt.Errorf("nice parameters need guideline_id"))
	}

	opts := []httpclient.RequestOption{
		httpclient.WithHeaders(map[string]string{"Accept": "application/vnd.nice.syndication.guidance+json"}),
	}

	if key := a.source.APIKey(); key != "" {
		opts = append(opts, httpclient.WithHeaders(map[string]string{"API-Key": key}))
	}

	response, err := a.client.GetJSON(ctx, a.source.BaseURL+"/guidance/"+guidelineID, opts...)
	if err != nil {
		return nil, err
	}

	guidance, err := response.Mapping()
	if err != nil {
		return nil, err
	}

	return newSliceCursor([]map[string]any{guidance}), nil
}

// Parse implements Adapter.
func (a *NICE) Parse(raw map[string]any) (*ingestion.Document, error) {
	flat := raw
	if !payload.GuardNICEGuideline(raw) {
		flat = map[string]any{
			"guideline_id": stringAt(raw, "Reference"),
			"title":        stringAt(raw, "Title"),
		}

		if published := stringAt(raw, "PublishedDate"); published != "" {
			flat["published"] = published
		}

		if updated := stringAt(raw, "LastModified"); updated != "" {
			flat["last_updated"] = updated
		}

		if chapters := objectsAt(raw, "Chapters"); len(chapters) > 0 {
			titles := make([]any, 0, len(chapters))
			for _, chapter := range chapters {
				if title := stringAt(chapter, "Title"); title != "" {
					titles = append(titles, title)
				}
			}

			if len(titles) > 0 {
				flat["chapters"] = titles
			}
		}
	}

	if !payload.GuardNICEGuideline(flat) {
		return nil, a.schemaErr(fmt.Errorf("record is not a NICE guideline"))
	}

	record, err := payload.DecodeNICEGuideline(flat)
	if err != nil {
		return nil, a.schemaErr(err)
	}

	content := record.Summary
	if content == "" {
		content = record.Title
	}

	return a.document("nice:"+record.GuidelineID, flat, record,
		ingestion.WithURI("https://www.nice.org.uk/guidance/"+record.GuidelineID),
		ingestion.WithContent(content),
	)
}

// Validate implements Adapter.
func (a *NICE) Validate(doc *ingestion.Document) error {
	record, ok := doc.Raw.(*payload.NICEGuideline)
	if !ok {
		return validationErr(doc.DocID, fmt.Errorf("expected NICEGuideline payload, got %T", doc.Raw))
	}

	if record.GuidelineID == "" || record.Title == "" {
		return validationErr(doc.DocID, fmt.Errorf("guideline_id and title are required"))
	}

	if err := ingestion.ValidateMetadata(doc); err != nil {
		return validationErr(doc.DocID, err)
	}

	return nil
}

// NewCDC builds the cdc adapter.
func NewCDC(deps Dependencies) Adapter {
	return &CDC{base: newBase("cdc", deps, config.SourceConfig{
		BaseURL:       "https://data.cdc.gov",
		RatePerSecond: 2,
		Burst:         4,
		PageSize:      500,
		APIKeyEnv:     "CDC_APP_TOKEN",
	})}
}

// Fetch implements Adapter. Parameters:
//   - dataset: the Socrata dataset identifier, e.g. "9mfq-cb36"
//   - page_size: $limit override
func (a *CDC) Fetch(ctx context.Context, params Parameters) (Cursor, error) {
	dataset := params.String("dataset")
	if dataset == "" {
		return nil, a.schemaErr(fmt.Errorf("cdc parameters need dataset"))
	}

	pageSize := params.Int("page_size", a.source.PageSize)
	offset := 0

	return newPagedCursor(func(ctx context.Context) ([]map[string]any, bool, error) {
		opts := []httpclient.RequestOption{
			httpclient.WithQuery(map[string]string{
				"$limit":  strconv.Itoa(pageSize),
				"$offset": strconv.Itoa(offset),
			}),
		}

		if token := a.source.APIKey(); token != "" {
			opts = append(opts, httpclient.WithHeaders(map[string]string{"X-App-Token": token}))
		}

		response, err := a.client.GetJSON(ctx, a.source.BaseURL+"/resource/"+dataset+".json", opts...)
		if err != nil {
			return nil, false, err
		}

		rows, err := response.Sequence()
		if err != nil {
			return nil, false, err
		}

		records := make([]map[string]any, 0, len(rows))

		for _, item := range rows {
			row, ok := item.(map[string]any)
			if !ok {
				continue
			}

			row["dataset"] = dataset
			records = append(records, row)
		}

		offset += len(records)

		return records, len(records) == pageSize, nil
	}), nil
}

// Parse implements Adapter. Socrata columns vary per dataset: the common
// indicator fields are lifted into typed columns and the remainder lands in
// the Columns map. Rows without a system :id get a deterministic identifier
// hashed from the row content.
func (a *CDC) Parse(raw map[string]any) (*ingestion.Document, error) {
	flat := raw
	if !payload.GuardCDCSocrataRow(raw) {
		flat = flattenSocrataRow(raw)
	}

	if !payload.GuardCDCSocrataRow(flat) {
		return nil, a.schemaErr(fmt.Errorf("record is not a Socrata dataset row"))
	}

	record, err := payload.DecodeCDCSocrataRow(flat)
	if err != nil {
		return nil, a.schemaErr(err)
	}

	content := record.Indicator
	if content == "" {
		content = record.Dataset
	}

	return a.document("cdc:"+record.Dataset+":"+record.RowID, flat, record,
		ingestion.WithURI(a.source.BaseURL+"/resource/"+record.Dataset+".json"),
		ingestion.WithContent(content),
	)
}

// Validate implements Adapter.
func (a *CDC) Validate(doc *ingestion.Document) error {
	record, ok := doc.Raw.(*payload.CDCSocrataRow)
	if !ok {
		return validationErr(doc.DocID, fmt.Errorf("expected CDCSocrataRow payload, got %T", doc.Raw))
	}

	if record.RowID == "" || record.Dataset == "" {
		return validationErr(doc.DocID, fmt.Errorf("row_id and dataset are required"))
	}

	if err := ingestion.ValidateMetadata(doc); err != nil {
		return validationErr(doc.DocID, err)
	}

	return nil
}

func flattenSocrataRow(row map[string]any) map[string]any {
	flat := map[string]any{
		"dataset": stringAt(row, "dataset"),
	}

	rowID := stringAt(row, ":id")
	if rowID == "" {
		canonical, err := json.Marshal(row)
		if err == nil {
			rowID = ingestion.ContentHash(canonical)[:16]
		}
	}

	flat["row_id"] = rowID

	typed := map[string]string{
		"indicator": "indicator",
		"value":     "value",
		"state":     "state",
		"year":      "year",
	}

	columns := make(map[string]any)

	for key, value := range row {
		if key == "dataset" || key == ":id" {
			continue
		}

		text := ""
		switch v := value.(type) {
		case string:
			text = v
		case float64:
			text = strconv.FormatFloat(v, 'f', -1, 64)
		default:
			continue
		}

		if target, ok := typed[key]; ok {
			flat[target] = text

			continue
		}

		columns[key] = text
	}

	if len(columns) > 0 {
		flat["columns"] = columns
	}

	return flat
}

// NewWHO builds the who adapter.
func NewWHO(deps Dependencies) Adapter {
	return &WHO{base: newBase("who", deps, config.SourceConfig{
		BaseURL:       "https://ghoapi.azureedge.net/api",
		RatePerSecond: 3,
		Burst:         6,
		PageSize:      1000,
	})}
}

// Fetch implements Adapter. Parameters:
//   - indicator: the GHO indicator code, e.g. "WHOSIS_000001"
//   - filter: optional OData $filter expression
func (a *WHO) Fetch(ctx context.Context, params Parameters) (Cursor, error) {
	indicator := params.String("indicator")
	if indicator == "" {
		return nil, a.schemaErr(fmt.Errorf("who parameters need indicator"))
	}

	opts := []httpclient.RequestOption{}
	if filter := params.String("filter"); filter != "" {
		opts = append(opts, httpclient.WithQuery(map[string]string{"$filter": filter}))
	}

	response, err := a.client.GetJSON(ctx, a.source.BaseURL+"/"+indicator, opts...)
	if err != nil {
		return nil, err
	}

	observations, err := response.MappingField("value")
	if err != nil {
		return nil, err
	}

	return newSliceCursor(observations), nil
}

// Parse implements Adapter.
func (a *WHO) Parse(raw map[string]any) (*ingestion.Document, error) {
	flat := raw
	if !payload.GuardWHOGHOIndicator(raw) {
		flat = map[string]any{
			"indicator_code": stringAt(raw, "IndicatorCode"),
			"spatial_dim":    stringAt(raw, "SpatialDim"),
		}

		if timeDim := intAt(raw, "TimeDim"); timeDim > 0 {
			flat["time_dim"] = timeDim
		}

		if numeric := floatAt(raw, "NumericValue"); numeric != 0 {
			flat["numeric_value"] = numeric
		}

		if value := stringAt(raw, "Value"); value != "" {
			flat["value"] = value
		}
	}

	if !payload.GuardWHOGHOIndicator(flat) {
		return nil, a.schemaErr(fmt.Errorf("record is not a GHO indicator observation"))
	}

	record, err := payload.DecodeWHOGHOIndicator(flat)
	if err != nil {
		return nil, a.schemaErr(err)
	}

	docID := fmt.Sprintf("who:%s:%s:%d", record.IndicatorCode, record.SpatialDim, record.TimeDim)

	return a.document(docID, flat, record,
		ingestion.WithURI(a.source.BaseURL+"/"+record.IndicatorCode),
		ingestion.WithContent(record.Value),
	)
}

// Validate implements Adapter.
func (a *WHO) Validate(doc *ingestion.Document) error {
	record, ok := doc.Raw.(*payload.WHOGHOIndicator)
	if !ok {
		return validationErr(doc.DocID, fmt.Errorf("expected WHOGHOIndicator payload, got %T", doc.Raw))
	}

	if record.IndicatorCode == "" || record.SpatialDim == "" {
		return validationErr(doc.DocID, fmt.Errorf("indicator_code and spatial_dim are required"))
	}

	if err := ingestion.ValidateMetadata(doc); err != nil {
		return validationErr(doc.DocID, err)
	}

	return nil
}

// NewOpenPrescribing builds the openprescribing adapter.
func NewOpenPrescribing(deps Dependencies) Adapter {
	return &OpenPrescribing{base: newBase("openprescribing", deps, config.SourceConfig{
		BaseURL:       "https://openprescribing.net/api/1.0",
		RatePerSecond: 1,
		Burst:         2,
		PageSize:      100,
	})}
}

// Fetch implements Adapter. Parameters:
//   - code: BNF code or chemical to report spending for
//   - org_type: organization granularity, default "sub_icb_location"
func (a *OpenPrescribing) Fetch(ctx context.Context, params Parameters) (Cursor, error) {
	code := params.String("code")
	if code == "" {
		return nil, a.schemaErr(fmt.Errorf("openprescribing parameters need code"))
	}

	orgType := params.String("org_type")
	if orgType == "" {
		orgType = "sub_icb_location"
	}

	response, err := a.client.GetJSON(ctx, a.source.BaseURL+"/spending_by_org/",
		httpclient.WithQuery(map[string]string{
			"code":     code,
			"org_type": orgType,
			"format":   "json",
		}))
	if err != nil {
		return nil, err
	}

	rows, err := response.Sequence()
	if err != nil {
		return nil, err
	}

	records := make([]map[string]any, 0, len(rows))

	for _, item := range rows {
		if row, ok := item.(map[string]any); ok {
			records = append(records, row)
		}
	}

	return newSliceCursor(records), nil
}

// Parse implements Adapter.
func (a *OpenPrescribing) Parse(raw map[string]any) (*ingestion.Document, error) {
	flat := raw
	if !payload.GuardOpenPrescribingRow(raw) {
		flat = map[string]any{
			"org_id": stringAt(raw, "row_id"),
			"date":   stringAt(raw, "date"),
		}

		if name := stringAt(raw, "row_name"); name != "" {
			flat["org_name"] = name
		}

		if items := intAt(raw, "items"); items > 0 {
			flat["items"] = items
		}

		if quantity := floatAt(raw, "quantity"); quantity != 0 {
			flat["quantity"] = quantity
		}

		if cost := floatAt(raw, "actual_cost"); cost != 0 {
			flat["actual_cost"] = cost
		}
	}

	if !payload.GuardOpenPrescribingRow(flat) {
		return nil, a.schemaErr(fmt.Errorf("record is not an OpenPrescribing spending row"))
	}

	record, err := payload.DecodeOpenPrescribingRow(flat)
	if err != nil {
		return nil, a.schemaErr(err)
	}

	return a.document("openprescribing:"+record.OrgID+":"+record.Date, flat, record,
		ingestion.WithURI(a.source.BaseURL+"/spending_by_org/"),
		ingestion.WithContent(record.OrgName),
	)
}

// Validate implements Adapter.
func (a *OpenPrescribing) Validate(doc *ingestion.Document) error {
	record, ok := doc.Raw.(*payload.OpenPrescribingRow)
	if !ok {
		return validationErr(doc.DocID, fmt.Errorf("expected OpenPrescribingRow payload, got %T", doc.Raw))
	}

	if record.OrgID == "" || record.Date == "" {
		return validationErr(doc.DocID, fmt.Errorf("org_id and date are required"))
	}

	if err := ingestion.ValidateMetadata(doc); err != nil {
		return validationErr(doc.DocID, err)
	}

	return nil
}
