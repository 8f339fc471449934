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

// PubMed ingests citation records from the NCBI E-utilities API.
//
// Single mode fetches one esummary docsum by pmid; sweep mode runs esearch
// with retstart pagination and pulls esummary pages for the matching ids.
// An API key raises the NCBI courtesy limit from 3 to 10 requests per second,
// so the key is attached whenever the source catalog names one.
type PubMed struct {
	base
}

// NewPubMed builds the pubmed adapter.
func NewPubMed(deps Dependencies) Adapter {
	return &PubMed{base: newBase("pubmed", deps, config.SourceConfig{
		BaseURL:       "https://eutils.ncbi.nlm.nih.gov/entrez/eutils",
		RatePerSecond: 3,
		Burst:         6,
		PageSize:      200,
		APIKeyEnv:     "NCBI_API_KEY",
	})}
}

// ParameterDocID implements SingleDocumenter.
func (a *PubMed) ParameterDocID(params Parameters) (string, bool) {
	pmid := params.String("pmid")
	if pmid == "" {
		return "", false
	}

	return "pmid:" + pmid, true
}

// Fetch implements Adapter. Parameters:
//   - pmid: fetch that single citation
//   - term: PubMed search expression for a sweep
//   - page_size: esearch retmax override
func (a *PubMed) Fetch(ctx context.Context, params Parameters) (Cursor, error) {
	if pmid := params.String("pmid"); pmid != "" {
		docs, err := a.summaries(ctx, []string{pmid})
		if err != nil {
			return nil, err
		}

		return newSliceCursor(docs), nil
	}

	term := params.String("term")
	pageSize := params.Int("page_size", a.source.PageSize)
	retstart := 0

	return newPagedCursor(func(ctx context.Context) ([]map[string]any, bool, error) {
		query := a.withKey(map[string]string{
			"db":       "pubmed",
			"term":     term,
			"retmode":  "json",
			"retmax":   strconv.Itoa(pageSize),
			"retstart": strconv.Itoa(retstart),
		})

		response, err := a.client.GetJSON(ctx, a.source.BaseURL+"/esearch.fcgi", httpclient.WithQuery(query))
		if err != nil {
			return nil, false, err
		}

		page, err := response.Mapping()
		if err != nil {
			return nil, false, err
		}

		ids := stringsAt(page, "esearchresult", "idlist")
		if len(ids) == 0 {
			return nil, false, nil
		}

		docs, err := a.summaries(ctx, ids)
		if err != nil {
			return nil, false, err
		}

		retstart += len(ids)
		total, _ := strconv.Atoi(stringAt(page, "esearchresult", "count"))

		return docs, retstart < total, nil
	}), nil
}

// summaries fetches esummary docsums for a batch of pmids, in request order.
func (a *PubMed) summaries(ctx context.Context, pmids []string) ([]map[string]any, error) {
	query := a.withKey(map[string]string{
		"db":      "pubmed",
		"id":      strings.Join(pmids, ","),
		"retmode": "json",
		"version": "2.0",
	})

	response, err := a.client.GetJSON(ctx, a.source.BaseURL+"/esummary.fcgi", httpclient.WithQuery(query))
	if err != nil {
		return nil, err
	}

	page, err := response.Mapping()
	if err != nil {
		return nil, err
	}

	result := mapAt(page, "result")
	if result == nil {
		return nil, a.schemaErr(fmt.Errorf("esummary response missing result object"))
	}

	docs := make([]map[string]any, 0, len(pmids))

	for _, pmid := range pmids {
		doc, ok := result[pmid].(map[string]any)
		if !ok {
			continue
		}

		docs = append(docs, doc)
	}

	return docs, nil
}

func (a *PubMed) withKey(query map[string]string) map[string]string {
	if key := a.source.APIKey(); key != "" {
		query["api_key"] = key
	}

	return query
}

// Parse implements Adapter. Accepts either a flat PubMedArticle mapping or a
// raw esummary v2.0 docsum.
func (a *PubMed) Parse(raw map[string]any) (*ingestion.Document, error) {
	flat := raw
	if !payload.GuardPubMedArticle(raw) {
		flat = flattenDocsum(raw)
	}

	if !payload.GuardPubMedArticle(flat) {
		return nil, a.schemaErr(fmt.Errorf("record is not a PubMed citation"))
	}

	record, err := payload.DecodePubMedArticle(flat)
	if err != nil {
		return nil, a.schemaErr(err)
	}

	content := record.Abstract
	if content == "" {
		content = record.Title
	}

	return a.document("pmid:"+record.PMID, flat, record,
		ingestion.WithURI("https://pubmed.ncbi.nlm.nih.gov/"+record.PMID+"/"),
		ingestion.WithContent(content),
	)
}

// Validate implements Adapter.
func (a *PubMed) Validate(doc *ingestion.Document) error {
	record, ok := doc.Raw.(*payload.PubMedArticle)
	if !ok {
		return validationErr(doc.DocID, fmt.Errorf("expected PubMedArticle payload, got %T", doc.Raw))
	}

	if err := payload.ValidatePMID(record.PMID); err != nil {
		return validationErr(doc.DocID, err)
	}

	if record.DOI != "" {
		if err := payload.ValidateDOI(record.DOI); err != nil {
			return validationErr(doc.DocID, err)
		}
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

// AutoParameters implements AutoParameterizer: one sweep over citations whose
// entry date falls inside the window.
func (a *PubMed) AutoParameters(_ context.Context, window Window) ([]Parameters, error) {
	term := fmt.Sprintf(`("%s"[EDAT] : "%s"[EDAT])`,
		window.Start.Format("2006/01/02"), window.End.Format("2006/01/02"))

	pageSize := window.PageSize
	if pageSize == 0 {
		pageSize = a.source.PageSize
	}

	return []Parameters{{"term": term, "page_size": pageSize}}, nil
}

// flattenDocsum projects an esummary v2.0 docsum onto the flat PubMedArticle
// field set.
func flattenDocsum(docsum map[string]any) map[string]any {
	flat := map[string]any{
		"pmid":  stringAt(docsum, "uid"),
		"title": stringAt(docsum, "title"),
	}

	if journal := stringAt(docsum, "fulljournalname"); journal != "" {
		flat["journal"] = journal
	}

	if pubdate := stringAt(docsum, "pubdate"); pubdate != "" {
		flat["pub_date"] = pubdate
	}

	// esummary reports ISO 639-2 codes ("eng"); narrow to the two-letter form
	// the language validator expects.
	if langs := stringsAt(docsum, "lang"); len(langs) > 0 {
		if language := strings.ToLower(langs[0]); len(language) >= 2 {
			flat["language"] = language[:2]
		}
	}

	if authors := objectsAt(docsum, "authors"); len(authors) > 0 {
		names := make([]any, 0, len(authors))
		for _, author := range authors {
			if name := stringAt(author, "name"); name != "" {
				names = append(names, name)
			}
		}

		if len(names) > 0 {
			flat["authors"] = names
		}
	}

	for _, articleID := range objectsAt(docsum, "articleids") {
		if stringAt(articleID, "idtype") == "doi" {
			if doi := stringAt(articleID, "value"); doi != "" {
				flat["doi"] = doi
			}
		}
	}

	return flat
}
