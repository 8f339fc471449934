package payload

// Literature family records: bibliographic databases and preprint servers.

type (
	// PubMedArticle is a citation record from the NCBI E-utilities esummary/efetch APIs.
	//
	// Required: pmid, title.
	PubMedArticle struct {
		PMID      string   `json:"pmid"`
		Title     string   `json:"title"`
		Abstract  string   `json:"abstract,omitempty"`
		Journal   string   `json:"journal,omitempty"`
		Language  string   `json:"language,omitempty"`
		PubDate   string   `json:"pub_date,omitempty"`
		DOI       string   `json:"doi,omitempty"`
		Authors   []string `json:"authors,omitempty"`
		MeSHTerms []string `json:"mesh_terms,omitempty"`
	}

	// PMCSection is a titled body section of a PMC full-text article.
	PMCSection struct {
		Title string `json:"title,omitempty"`
		Text  string `json:"text"`
	}

	// PMCFullText is a full-text article from the PMC OA API.
	//
	// Required: pmcid, title.
	PMCFullText struct {
		PMCID    string       `json:"pmcid"`
		PMID     string       `json:"pmid,omitempty"`
		Title    string       `json:"title"`
		Sections []PMCSection `json:"sections,omitempty"`
		License  string       `json:"license,omitempty"`
	}

	// MedRxivPreprint is a preprint record from the medRxiv API.
	//
	// Required: doi, title.
	MedRxivPreprint struct {
		DOI      string `json:"doi"`
		Title    string `json:"title"`
		Abstract string `json:"abstract,omitempty"`
		Category string `json:"category,omitempty"`
		Date     string `json:"date,omitempty"`
		Version  int    `json:"version,omitempty"`
		Server   string `json:"server,omitempty"`
	}
)

// Family implements Record.
func (PubMedArticle) Family() Family { return FamilyLiterature }

// Source implements Record.
func (PubMedArticle) Source() string { return "pubmed" }

// Family implements Record.
func (PMCFullText) Family() Family { return FamilyLiterature }

// Source implements Record.
func (PMCFullText) Source() string { return "pmc" }

// Family implements Record.
func (MedRxivPreprint) Family() Family { return FamilyLiterature }

// Source implements Record.
func (MedRxivPreprint) Source() string { return "medrxiv" }

// GuardPubMedArticle reports whether the mapping is structurally a PubMed citation.
func GuardPubMedArticle(m map[string]any) bool {
	return hasFields(m, "pmid", "title")
}

// GuardPMCFullText reports whether the mapping is structurally a PMC full-text article.
func GuardPMCFullText(m map[string]any) bool {
	return hasFields(m, "pmcid", "title")
}

// GuardMedRxivPreprint reports whether the mapping is structurally a medRxiv preprint.
func GuardMedRxivPreprint(m map[string]any) bool {
	return hasFields(m, "doi", "title")
}

// DecodePubMedArticle coerces a raw mapping into a PubMedArticle.
// Boundary validation against the E-utilities esummary v2.0 docsum shape.
func DecodePubMedArticle(m map[string]any) (*PubMedArticle, error) {
	if m == nil {
		return nil, ErrNilMapping
	}

	if err := requireFields(m, "pmid", "title"); err != nil {
		return nil, err
	}

	var record PubMedArticle
	if err := decodeInto(m, &record); err != nil {
		return nil, err
	}

	return &record, nil
}

// DecodePMCFullText coerces a raw mapping into a PMCFullText.
// Boundary validation against the PMC OA service article shape.
func DecodePMCFullText(m map[string]any) (*PMCFullText, error) {
	if m == nil {
		return nil, ErrNilMapping
	}

	if err := requireFields(m, "pmcid", "title"); err != nil {
		return nil, err
	}

	var record PMCFullText
	if err := decodeInto(m, &record); err != nil {
		return nil, err
	}

	return &record, nil
}

// DecodeMedRxivPreprint coerces a raw mapping into a MedRxivPreprint.
// Boundary validation against the medRxiv details API collection shape.
func DecodeMedRxivPreprint(m map[string]any) (*MedRxivPreprint, error) {
	if m == nil {
		return nil, ErrNilMapping
	}

	if err := requireFields(m, "doi", "title"); err != nil {
		return nil, err
	}

	var record MedRxivPreprint
	if err := decodeInto(m, &record); err != nil {
		return nil, err
	}

	return &record, nil
}
