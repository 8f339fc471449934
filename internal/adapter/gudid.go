package adapter

import (
	"context"
	"fmt"

	"github.com/medical-kg/ingest/internal/config"
	"github.com/medical-kg/ingest/internal/httpclient"
	"github.com/medical-kg/ingest/internal/ingestion"
	"github.com/medical-kg/ingest/internal/payload"
)

// AccessGUDID ingests device records from the AccessGUDID API, keyed by the
// primary device identifier (a GTIN-14).
type AccessGUDID struct {
	base
}

// NewAccessGUDID builds the accessgudid adapter.
func NewAccessGUDID(deps Dependencies) Adapter {
	return &AccessGUDID{base: newBase("accessgudid", deps, config.SourceConfig{
		BaseURL:       "https://accessgudid.nlm.nih.gov/api/v3",
		RatePerSecond: 3,
		Burst:         6,
		PageSize:      50,
	})}
}

// ParameterDocID implements SingleDocumenter.
func (a *AccessGUDID) ParameterDocID(params Parameters) (string, bool) {
	di := params.String("di")
	if di == "" {
		return "", false
	}

	return "gudid:" + di, true
}

// Fetch implements Adapter. Parameters:
//   - di: primary device identifier for a single lookup
func (a *AccessGUDID) Fetch(ctx context.Context, params Parameters) (Cursor, error) {
	di := params.String("di")
	if di == "" {
		return nil, a.schemaErr(fmt.Errorf("accessgudid parameters need di"))
	}

	response, err := a.client.GetJSON(ctx, a.source.BaseURL+"/devices/lookup.json",
		httpclient.WithQuery(map[string]string{"di": di}))
	if err != nil {
		return nil, err
	}

	page, err := response.Mapping()
	if err != nil {
		return nil, err
	}

	device := mapAt(page, "gudid", "device")
	if device == nil {
		return nil, a.schemaErr(fmt.Errorf("lookup for di %s returned no device object", di))
	}

	return newSliceCursor([]map[string]any{device}), nil
}

// Parse implements Adapter. Accepts either a flat AccessGUDIDDevice mapping
// or a raw GUDID device tree.
func (a *AccessGUDID) Parse(raw map[string]any) (*ingestion.Document, error) {
	flat := raw
	if !payload.GuardAccessGUDIDDevice(raw) {
		flat = flattenDevice(raw)
	}

	if !payload.GuardAccessGUDIDDevice(flat) {
		return nil, a.schemaErr(fmt.Errorf("record is not a GUDID device"))
	}

	record, err := payload.DecodeAccessGUDIDDevice(flat)
	if err != nil {
		return nil, a.schemaErr(err)
	}

	content := record.DeviceDescription
	if content == "" {
		content = record.BrandName
	}

	return a.document("gudid:"+record.PrimaryDI, flat, record,
		ingestion.WithURI("https://accessgudid.nlm.nih.gov/devices/"+record.PrimaryDI),
		ingestion.WithContent(content),
	)
}

// Validate implements Adapter.
func (a *AccessGUDID) Validate(doc *ingestion.Document) error {
	record, ok := doc.Raw.(*payload.AccessGUDIDDevice)
	if !ok {
		return validationErr(doc.DocID, fmt.Errorf("expected AccessGUDIDDevice payload, got %T", doc.Raw))
	}

	if err := payload.ValidateGTIN14(record.PrimaryDI); err != nil {
		return validationErr(doc.DocID, err)
	}

	if err := ingestion.ValidateMetadata(doc); err != nil {
		return validationErr(doc.DocID, err)
	}

	return nil
}

// flattenDevice projects a raw GUDID device tree onto the flat
// AccessGUDIDDevice field set. The primary DI lives under the identifiers
// list, marked deviceIdType "Primary".
func flattenDevice(device map[string]any) map[string]any {
	primaryDI := ""

	for _, identifier := range objectsAt(device, "identifiers", "identifier") {
		if stringAt(identifier, "deviceIdType") == "Primary" {
			primaryDI = stringAt(identifier, "deviceId")

			break
		}
	}

	flat := map[string]any{
		"primary_di": primaryDI,
		"brand_name": stringAt(device, "brandName"),
	}

	if company := stringAt(device, "companyName"); company != "" {
		flat["company_name"] = company
	}

	if model := stringAt(device, "versionModelNumber"); model != "" {
		flat["version_model_number"] = model
	}

	if description := stringAt(device, "deviceDescription"); description != "" {
		flat["device_description"] = description
	}

	if published := stringAt(device, "devicePublishDate"); published != "" {
		flat["publish_date"] = published
	}

	return flat
}
