package adapter

import (
	"context"
	"fmt"
	"strings"

	"github.com/medical-kg/ingest/internal/config"
	"github.com/medical-kg/ingest/internal/ingestion"
	"github.com/medical-kg/ingest/internal/payload"
)

// PMC ingests open-access full-text articles through the NCBI BioC API,
// keyed by PMCID. Passages are folded into titled body sections.
type PMC struct {
	base
}

// NewPMC builds the pmc adapter.
func NewPMC(deps Dependencies) Adapter {
	return &PMC{base: newBase("pmc", deps, config.SourceConfig{
		BaseURL:       "https://www.ncbi.nlm.nih.gov/research/bionlp/RESTful/pmcoa.cgi",
		RatePerSecond: 3,
		Burst:         6,
		PageSize:      1,
	})}
}

// ParameterDocID implements SingleDocumenter.
func (a *PMC) ParameterDocID(params Parameters) (string, bool) {
	pmcid := normalizePMCID(params.String("pmcid"))
	if pmcid == "" {
		return "", false
	}

	return "pmc:" + pmcid, true
}

// Fetch implements Adapter. Parameters:
//   - pmcid: the article to fetch, with or without the PMC prefix
func (a *PMC) Fetch(ctx context.Context, params Parameters) (Cursor, error) {
	pmcid := normalizePMCID(params.String("pmcid"))
	if pmcid == "" {
		return nil, a.schemaErr(fmt.Errorf("pmc parameters need pmcid"))
	}

	response, err := a.client.GetJSON(ctx, a.source.BaseURL+"/BioC_json/"+pmcid+"/unicode")
	if err != nil {
		return nil, err
	}

	collections, err := response.Sequence()
	if err != nil {
		return nil, err
	}

	records := make([]map[string]any, 0, 1)

	for _, item := range collections {
		collection, ok := item.(map[string]any)
		if !ok {
			continue
		}

		for _, document := range objectsAt(collection, "documents") {
			records = append(records, document)
		}
	}

	if len(records) == 0 {
		return nil, a.schemaErr(fmt.Errorf("BioC response for %s carried no documents", pmcid))
	}

	return newSliceCursor(records), nil
}

// Parse implements Adapter. Accepts either a flat PMCFullText mapping or a
// raw BioC document whose passages carry section_type infons.
func (a *PMC) Parse(raw map[string]any) (*ingestion.Document, error) {
	flat := raw
	if !payload.GuardPMCFullText(raw) {
		flat = flattenBioC(raw)
	}

	if !payload.GuardPMCFullText(flat) {
		return nil, a.schemaErr(fmt.Errorf("record is not a PMC full-text article"))
	}

	record, err := payload.DecodePMCFullText(flat)
	if err != nil {
		return nil, a.schemaErr(err)
	}

	var body strings.Builder

	for i, section := range record.Sections {
		if i > 0 {
			body.WriteString("\n\n")
		}

		body.WriteString(section.Text)
	}

	content := body.String()
	if content == "" {
		content = record.Title
	}

	return a.document("pmc:"+record.PMCID, flat, record,
		ingestion.WithURI("https://www.ncbi.nlm.nih.gov/pmc/articles/"+record.PMCID+"/"),
		ingestion.WithContent(content),
	)
}

// Validate implements Adapter.
func (a *PMC) Validate(doc *ingestion.Document) error {
	record, ok := doc.Raw.(*payload.PMCFullText)
	if !ok {
		return validationErr(doc.DocID, fmt.Errorf("expected PMCFullText payload, got %T", doc.Raw))
	}

	if err := payload.ValidatePMCID(record.PMCID); err != nil {
		return validationErr(doc.DocID, err)
	}

	if record.PMID != "" {
		if err := payload.ValidatePMID(record.PMID); err != nil {
			return validationErr(doc.DocID, err)
		}
	}

	if err := ingestion.ValidateMetadata(doc); err != nil {
		return validationErr(doc.DocID, err)
	}

	return nil
}

func normalizePMCID(id string) string {
	id = strings.TrimSpace(id)
	if id == "" {
		return ""
	}

	if !strings.HasPrefix(strings.ToUpper(id), "PMC") {
		return "PMC" + id
	}

	return "PMC" + id[3:]
}

// flattenBioC projects a BioC document onto the flat PMCFullText field set.
// The TITLE passage becomes the article title; every other passage becomes a
// body section named by its section_type infon.
func flattenBioC(document map[string]any) map[string]any {
	flat := map[string]any{
		"pmcid": normalizePMCID(stringAt(document, "id")),
	}

	title := ""
	sections := make([]any, 0)

	for _, passage := range objectsAt(document, "passages") {
		text := stringAt(passage, "text")
		if text == "" {
			continue
		}

		sectionType := stringAt(passage, "infons", "section_type")
		if title == "" && strings.EqualFold(sectionType, "TITLE") {
			title = text

			continue
		}

		sections = append(sections, map[string]any{
			"title": sectionType,
			"text":  text,
		})

		if pmid := stringAt(passage, "infons", "article-id_pmid"); pmid != "" {
			flat["pmid"] = pmid
		}

		if license := stringAt(passage, "infons", "license"); license != "" {
			flat["license"] = license
		}
	}

	flat["title"] = title

	if len(sections) > 0 {
		flat["sections"] = sections
	}

	return flat
}
