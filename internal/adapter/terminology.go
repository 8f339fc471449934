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

// The terminology adapters are lookup-shaped: each parameter set names one
// concept in its code system, so they all implement SingleDocumenter and
// most fetch exactly one record per invocation.

type (
	// MeSH ingests descriptors from the NLM MeSH lookup API.
	MeSH struct {
		base
	}

	// UMLS ingests concepts from the UMLS UTS REST API. Requires an API key.
	UMLS struct {
		base
	}

	// LOINC ingests codes from the LOINC FHIR terminology server via
	// CodeSystem/$lookup.
	LOINC struct {
		base
	}

	// ICD11 ingests entities from the WHO ICD-11 API. The OAuth bearer token
	// is resolved from the environment per request.
	ICD11 struct {
		base
	}

	// SNOMED ingests concepts from a SNOMED CT Snowstorm server, either one
	// concept by SCTID or a paged term search.
	SNOMED struct {
		base
	}
)

// NewMeSH builds the mesh adapter.
func NewMeSH(deps Dependencies) Adapter {
	return &MeSH{base: newBase("mesh", deps, config.SourceConfig{
		BaseURL:       "https://id.nlm.nih.gov/mesh",
		RatePerSecond: 3,
		Burst:         6,
		PageSize:      50,
	})}
}

// ParameterDocID implements SingleDocumenter.
func (a *MeSH) ParameterDocID(params Parameters) (string, bool) {
	ui := params.String("descriptor_ui")
	if ui == "" {
		return "", false
	}

	return "mesh:" + ui, true
}

// Fetch implements Adapter. Parameters:
//   - descriptor_ui: the descriptor to fetch, e.g. "D012345"
func (a *MeSH) Fetch(ctx context.Context, params Parameters) (Cursor, error) {
	ui := params.String("descriptor_ui")
	if ui == "" {
		return nil, a.schemaErr(fmt.Errorf("mesh parameters need descriptor_ui"))
	}

	response, err := a.client.GetJSON(ctx, a.source.BaseURL+"/lookup/details",
		httpclient.WithQuery(map[string]string{"descriptor": ui}))
	if err != nil {
		return nil, err
	}

	details, err := response.Mapping()
	if err != nil {
		return nil, err
	}

	details["descriptor_ui"] = ui

	return newSliceCursor([]map[string]any{details}), nil
}

// Parse implements Adapter.
func (a *MeSH) Parse(raw map[string]any) (*ingestion.Document, error) {
	flat := raw
	if !payload.GuardMeSHDescriptor(raw) {
		flat = map[string]any{
			"descriptor_ui": stringAt(raw, "descriptor_ui"),
			"name":          stringAt(raw, "label"),
		}

		if treeNumbers := stringsAt(raw, "treeNumbers"); len(treeNumbers) > 0 {
			values := make([]any, len(treeNumbers))
			for i, number := range treeNumbers {
				values[i] = number
			}

			flat["tree_numbers"] = values
		}

		if scopeNote := stringAt(raw, "scopeNote"); scopeNote != "" {
			flat["scope_note"] = scopeNote
		}
	}

	if !payload.GuardMeSHDescriptor(flat) {
		return nil, a.schemaErr(fmt.Errorf("record is not a MeSH descriptor"))
	}

	record, err := payload.DecodeMeSHDescriptor(flat)
	if err != nil {
		return nil, a.schemaErr(err)
	}

	content := record.ScopeNote
	if content == "" {
		content = record.Name
	}

	return a.document("mesh:"+record.DescriptorUI, flat, record,
		ingestion.WithURI("https://id.nlm.nih.gov/mesh/"+record.DescriptorUI),
		ingestion.WithContent(content),
	)
}

// Validate implements Adapter.
func (a *MeSH) Validate(doc *ingestion.Document) error {
	record, ok := doc.Raw.(*payload.MeSHDescriptor)
	if !ok {
		return validationErr(doc.DocID, fmt.Errorf("expected MeSHDescriptor payload, got %T", doc.Raw))
	}

	if err := payload.ValidateMeSHUI(record.DescriptorUI); err != nil {
		return validationErr(doc.DocID, err)
	}

	if err := ingestion.ValidateMetadata(doc); err != nil {
		return validationErr(doc.DocID, err)
	}

	return nil
}

// NewUMLS builds the umls adapter.
func NewUMLS(deps Dependencies) Adapter {
	return &UMLS{base: newBase("umls", deps, config.SourceConfig{
		BaseURL:       "https://uts-ws.nlm.nih.gov/rest",
		RatePerSecond: 5,
		Burst:         10,
		PageSize:      25,
		APIKeyEnv:     "UMLS_API_KEY",
	})}
}

// ParameterDocID implements SingleDocumenter.
func (a *UMLS) ParameterDocID(params Parameters) (string, bool) {
	cui := params.String("cui")
	if cui == "" {
		return "", false
	}

	return "umls:" + cui, true
}

// Fetch implements Adapter. Parameters:
//   - cui: the concept to fetch, e.g. "C0004238"
func (a *UMLS) Fetch(ctx context.Context, params Parameters) (Cursor, error) {
	cui := params.String("cui")
	if cui == "" {
		return nil, a.schemaErr(fmt.Errorf("umls parameters need cui"))
	}

	key := a.source.APIKey()
	if key == "" {
		return nil, &ingestion.MissingDependencyError{
			Feature:     "UMLS concept lookup",
			Package:     a.source.APIKeyEnv,
			ExtrasGroup: "credentials",
			InstallHint: "export " + a.source.APIKeyEnv + " with a UTS API key from https://uts.nlm.nih.gov",
		}
	}

	response, err := a.client.GetJSON(ctx, a.source.BaseURL+"/content/current/CUI/"+cui,
		httpclient.WithQuery(map[string]string{"apiKey": key}))
	if err != nil {
		return nil, err
	}

	page, err := response.Mapping()
	if err != nil {
		return nil, err
	}

	result := mapAt(page, "result")
	if result == nil {
		return nil, a.schemaErr(fmt.Errorf("UTS response for %s carried no result object", cui))
	}

	return newSliceCursor([]map[string]any{result}), nil
}

// Parse implements Adapter.
func (a *UMLS) Parse(raw map[string]any) (*ingestion.Document, error) {
	flat := raw
	if !payload.GuardUMLSConcept(raw) {
		flat = map[string]any{
			"cui":  stringAt(raw, "ui"),
			"name": stringAt(raw, "name"),
		}

		if semanticTypes := objectsAt(raw, "semanticTypes"); len(semanticTypes) > 0 {
			names := make([]any, 0, len(semanticTypes))
			for _, semanticType := range semanticTypes {
				if name := stringAt(semanticType, "name"); name != "" {
					names = append(names, name)
				}
			}

			if len(names) > 0 {
				flat["semantic_types"] = names
			}
		}
	}

	if !payload.GuardUMLSConcept(flat) {
		return nil, a.schemaErr(fmt.Errorf("record is not a UMLS concept"))
	}

	record, err := payload.DecodeUMLSConcept(flat)
	if err != nil {
		return nil, a.schemaErr(err)
	}

	content := record.Definition
	if content == "" {
		content = record.Name
	}

	return a.document("umls:"+record.CUI, flat, record,
		ingestion.WithURI("https://uts.nlm.nih.gov/uts/umls/concept/"+record.CUI),
		ingestion.WithContent(content),
	)
}

// Validate implements Adapter.
func (a *UMLS) Validate(doc *ingestion.Document) error {
	record, ok := doc.Raw.(*payload.UMLSConcept)
	if !ok {
		return validationErr(doc.DocID, fmt.Errorf("expected UMLSConcept payload, got %T", doc.Raw))
	}

	if err := payload.ValidateCUI(record.CUI); err != nil {
		return validationErr(doc.DocID, err)
	}

	if err := ingestion.ValidateMetadata(doc); err != nil {
		return validationErr(doc.DocID, err)
	}

	return nil
}

// NewLOINC builds the loinc adapter.
func NewLOINC(deps Dependencies) Adapter {
	return &LOINC{base: newBase("loinc", deps, config.SourceConfig{
		BaseURL:       "https://fhir.loinc.org",
		RatePerSecond: 2,
		Burst:         4,
		PageSize:      50,
		APIKeyEnv:     "LOINC_CREDENTIALS",
	})}
}

// ParameterDocID implements SingleDocumenter.
func (a *LOINC) ParameterDocID(params Parameters) (string, bool) {
	code := params.String("code")
	if code == "" {
		return "", false
	}

	return "loinc:" + code, true
}

// Fetch implements Adapter. Parameters:
//   - code: the LOINC code to look up, e.g. "4548-4"
func (a *LOINC) Fetch(ctx context.Context, params Parameters) (Cursor, error) {
	code := params.String("code")
	if code == "" {
		return nil, a.schemaErr(fmt.Errorf("loinc parameters need code"))
	}

	opts := []httpclient.RequestOption{
		httpclient.WithQuery(map[string]string{
			"system": "http://loinc.org",
			"code":   code,
		}),
	}

	if credentials := a.source.APIKey(); credentials != "" {
		opts = append(opts, httpclient.WithHeaders(map[string]string{
			"Authorization": "Basic " + credentials,
		}))
	}

	response, err := a.client.GetJSON(ctx, a.source.BaseURL+"/CodeSystem/$lookup", opts...)
	if err != nil {
		return nil, err
	}

	parameters, err := response.Mapping()
	if err != nil {
		return nil, err
	}

	record := flattenFHIRLookup(code, parameters)

	return newSliceCursor([]map[string]any{record}), nil
}

// Parse implements Adapter.
func (a *LOINC) Parse(raw map[string]any) (*ingestion.Document, error) {
	flat := raw
	if stringAt(raw, "resourceType") == "Parameters" {
		flat = flattenFHIRLookup(stringAt(raw, "loinc_num"), raw)
	}

	if !payload.GuardLOINCConcept(flat) {
		return nil, a.schemaErr(fmt.Errorf("record is not a LOINC code"))
	}

	record, err := payload.DecodeLOINCConcept(flat)
	if err != nil {
		return nil, a.schemaErr(err)
	}

	return a.document("loinc:"+record.LoincNum, flat, record,
		ingestion.WithURI("https://loinc.org/"+record.LoincNum+"/"),
		ingestion.WithContent(record.LongCommonName),
	)
}

// Validate implements Adapter.
func (a *LOINC) Validate(doc *ingestion.Document) error {
	record, ok := doc.Raw.(*payload.LOINCConcept)
	if !ok {
		return validationErr(doc.DocID, fmt.Errorf("expected LOINCConcept payload, got %T", doc.Raw))
	}

	if err := payload.ValidateLOINC(record.LoincNum); err != nil {
		return validationErr(doc.DocID, err)
	}

	if err := ingestion.ValidateMetadata(doc); err != nil {
		return validationErr(doc.DocID, err)
	}

	return nil
}

// flattenFHIRLookup projects a FHIR Parameters $lookup response onto the flat
// LOINCConcept field set. The six-axis properties arrive as part lists keyed
// by uppercase axis codes.
func flattenFHIRLookup(code string, parameters map[string]any) map[string]any {
	flat := map[string]any{"loinc_num": code}

	axisKeys := map[string]string{
		"COMPONENT":  "component",
		"PROPERTY":   "property",
		"SYSTEM":     "system",
		"SCALE_TYP":  "scale",
		"METHOD_TYP": "method",
	}

	for _, parameter := range objectsAt(parameters, "parameter") {
		switch stringAt(parameter, "name") {
		case "display":
			flat["long_common_name"] = stringAt(parameter, "valueString")
		case "property":
			axis, value := "", ""

			for _, part := range objectsAt(parameter, "part") {
				switch stringAt(part, "name") {
				case "code":
					axis = stringAt(part, "valueCode")
				case "value":
					value = stringAt(part, "valueString")
				}
			}

			if key, ok := axisKeys[axis]; ok && value != "" {
				flat[key] = value
			}
		}
	}

	return flat
}

// NewICD11 builds the icd11 adapter.
func NewICD11(deps Dependencies) Adapter {
	return &ICD11{base: newBase("icd11", deps, config.SourceConfig{
		BaseURL:       "https://id.who.int/icd",
		RatePerSecond: 3,
		Burst:         6,
		PageSize:      50,
		APIKeyEnv:     "ICD11_ACCESS_TOKEN",
	})}
}

// ParameterDocID implements SingleDocumenter.
func (a *ICD11) ParameterDocID(params Parameters) (string, bool) {
	entityID := params.String("entity_id")
	if entityID == "" {
		return "", false
	}

	return "icd11:" + entityID, true
}

// Fetch implements Adapter. Parameters:
//   - entity_id: the foundation entity to fetch, e.g. "1435254666"
func (a *ICD11) Fetch(ctx context.Context, params Parameters) (Cursor, error) {
	entityID := params.String("entity_id")
	if entityID == "" {
		return nil, a.schemaErr(fmt.Errorf("icd11 parameters need entity_id"))
	}

	token := a.source.APIKey()
	if token == "" {
		return nil, &ingestion.MissingDependencyError{
			Feature:     "ICD-11 entity lookup",
			Package:     a.source.APIKeyEnv,
			ExtrasGroup: "credentials",
			InstallHint: "export " + a.source.APIKeyEnv + " with an OAuth token from https://icd.who.int/icdapi",
		}
	}

	response, err := a.client.GetJSON(ctx, a.source.BaseURL+"/entity/"+entityID,
		httpclient.WithHeaders(map[string]string{
			"Authorization":   "Bearer " + token,
			"API-Version":     "v2",
			"Accept-Language": "en",
		}))
	if err != nil {
		return nil, err
	}

	entity, err := response.Mapping()
	if err != nil {
		return nil, err
	}

	entity["entity_id"] = entityID

	return newSliceCursor([]map[string]any{entity}), nil
}

// Parse implements Adapter.
func (a *ICD11) Parse(raw map[string]any) (*ingestion.Document, error) {
	// A raw WHO entity carries language-tagged title/definition objects; a
	// flat replay carries plain strings. The title's type picks the path.
	flat := raw
	if _, isString := raw["title"].(string); !isString {
		flat = map[string]any{
			"entity_id": stringAt(raw, "entity_id"),
			"title":     stringAt(raw, "title", "@value"),
		}

		if code := stringAt(raw, "code"); code != "" {
			flat["code"] = code
		}

		if definition := stringAt(raw, "definition", "@value"); definition != "" {
			flat["definition"] = definition
		}

		if parents := stringsAt(raw, "parent"); len(parents) > 0 {
			values := make([]any, len(parents))
			for i, parent := range parents {
				values[i] = parent
			}

			flat["parents"] = values
		}
	}

	if !payload.GuardICD11Entity(flat) {
		return nil, a.schemaErr(fmt.Errorf("record is not an ICD-11 entity"))
	}

	record, err := payload.DecodeICD11Entity(flat)
	if err != nil {
		return nil, a.schemaErr(err)
	}

	content := record.Definition
	if content == "" {
		content = record.Title
	}

	return a.document("icd11:"+record.EntityID, flat, record,
		ingestion.WithURI("https://id.who.int/icd/entity/"+record.EntityID),
		ingestion.WithContent(content),
	)
}

// Validate implements Adapter.
func (a *ICD11) Validate(doc *ingestion.Document) error {
	record, ok := doc.Raw.(*payload.ICD11Entity)
	if !ok {
		return validationErr(doc.DocID, fmt.Errorf("expected ICD11Entity payload, got %T", doc.Raw))
	}

	if record.EntityID == "" || record.Title == "" {
		return validationErr(doc.DocID, fmt.Errorf("entity_id and title are required"))
	}

	if err := ingestion.ValidateMetadata(doc); err != nil {
		return validationErr(doc.DocID, err)
	}

	return nil
}

// NewSNOMED builds the snomed adapter.
func NewSNOMED(deps Dependencies) Adapter {
	return &SNOMED{base: newBase("snomed", deps, config.SourceConfig{
		BaseURL:       "https://snowstorm.ihtsdotools.org/snowstorm/snomed-ct",
		RatePerSecond: 3,
		Burst:         6,
		PageSize:      50,
	})}
}

// ParameterDocID implements SingleDocumenter.
func (a *SNOMED) ParameterDocID(params Parameters) (string, bool) {
	sctid := params.String("sctid")
	if sctid == "" {
		return "", false
	}

	return "snomed:" + sctid, true
}

// Fetch implements Adapter. Parameters:
//   - sctid: fetch that single concept
//   - term: Snowstorm description search for a sweep
//   - page_size: search page limit override
func (a *SNOMED) Fetch(ctx context.Context, params Parameters) (Cursor, error) {
	if sctid := params.String("sctid"); sctid != "" {
		response, err := a.client.GetJSON(ctx, a.source.BaseURL+"/browser/MAIN/concepts/"+sctid)
		if err != nil {
			return nil, err
		}

		concept, err := response.Mapping()
		if err != nil {
			return nil, err
		}

		return newSliceCursor([]map[string]any{concept}), nil
	}

	term := params.String("term")
	if term == "" {
		return nil, a.schemaErr(fmt.Errorf("snomed parameters need sctid or term"))
	}

	pageSize := params.Int("page_size", a.source.PageSize)
	offset := 0

	return newPagedCursor(func(ctx context.Context) ([]map[string]any, bool, error) {
		response, err := a.client.GetJSON(ctx, a.source.BaseURL+"/browser/MAIN/concepts",
			httpclient.WithQuery(map[string]string{
				"term":   term,
				"limit":  strconv.Itoa(pageSize),
				"offset": strconv.Itoa(offset),
			}))
		if err != nil {
			return nil, false, err
		}

		concepts, err := response.MappingField("items")
		if err != nil {
			return nil, false, err
		}

		page, err := response.Mapping()
		if err != nil {
			return nil, false, err
		}

		offset += len(concepts)
		total := intAt(page, "total")

		return concepts, len(concepts) > 0 && offset < total, nil
	}), nil
}

// Parse implements Adapter.
func (a *SNOMED) Parse(raw map[string]any) (*ingestion.Document, error) {
	flat := raw
	if !payload.GuardSNOMEDConcept(raw) {
		flat = map[string]any{
			"concept_id": stringAt(raw, "conceptId"),
			"fsn":        stringAt(raw, "fsn", "term"),
		}

		if preferred := stringAt(raw, "pt", "term"); preferred != "" {
			flat["preferred_term"] = preferred
		}

		if active, ok := raw["active"].(bool); ok {
			flat["active"] = active
		}

		if moduleID := stringAt(raw, "moduleId"); moduleID != "" {
			flat["module_id"] = moduleID
		}
	}

	if !payload.GuardSNOMEDConcept(flat) {
		return nil, a.schemaErr(fmt.Errorf("record is not a SNOMED CT concept"))
	}

	record, err := payload.DecodeSNOMEDConcept(flat)
	if err != nil {
		return nil, a.schemaErr(err)
	}

	return a.document("snomed:"+record.ConceptID, flat, record,
		ingestion.WithURI("http://snomed.info/id/"+record.ConceptID),
		ingestion.WithContent(record.FSN),
	)
}

// Validate implements Adapter. The SCTID check digit is verified with the
// Verhoeff algorithm the release format mandates.
func (a *SNOMED) Validate(doc *ingestion.Document) error {
	record, ok := doc.Raw.(*payload.SNOMEDConcept)
	if !ok {
		return validationErr(doc.DocID, fmt.Errorf("expected SNOMEDConcept payload, got %T", doc.Raw))
	}

	if err := payload.ValidateSCTID(record.ConceptID); err != nil {
		return validationErr(doc.DocID, err)
	}

	if err := ingestion.ValidateMetadata(doc); err != nil {
		return validationErr(doc.DocID, err)
	}

	return nil
}
