package payload

// Clinical family records: trial registries, drug labels, drug and device
// vocabularies. Required versus optional keys follow the upstream API
// contracts named on each decoder.

type (
	// ClinicalTrialsStudy is a single study record from the ClinicalTrials.gov v2 API.
	//
	// Required: nct_id, brief_title. Everything else is optional per the API.
	ClinicalTrialsStudy struct {
		NCTID          string   `json:"nct_id"`
		BriefTitle     string   `json:"brief_title"`
		OfficialTitle  string   `json:"official_title,omitempty"`
		OverallStatus  string   `json:"overall_status,omitempty"`
		Phase          string   `json:"phase,omitempty"`
		StudyType      string   `json:"study_type,omitempty"`
		Conditions     []string `json:"conditions,omitempty"`
		LeadSponsor    string   `json:"lead_sponsor,omitempty"`
		BriefSummary   string   `json:"brief_summary,omitempty"`
		EnrollmentN    int      `json:"enrollment_n,omitempty"`
		LastUpdateDate string   `json:"last_update_date,omitempty"`
		VersionHolder  string   `json:"version_holder,omitempty"`
	}

	// OpenFDARecord is a drug label record from the openFDA /drug/label endpoint.
	//
	// Required: id, set_id.
	OpenFDARecord struct {
		ID                  string   `json:"id"`
		SetID               string   `json:"set_id"`
		Version             string   `json:"version,omitempty"`
		EffectiveTime       string   `json:"effective_time,omitempty"`
		BrandName           string   `json:"brand_name,omitempty"`
		GenericName         string   `json:"generic_name,omitempty"`
		IndicationsAndUsage []string `json:"indications_and_usage,omitempty"`
		Warnings            []string `json:"warnings,omitempty"`
		AdverseReactions    []string `json:"adverse_reactions,omitempty"`
	}

	// DailyMedSPL is a structured product label from the DailyMed v2 API.
	//
	// Required: set_id, title.
	DailyMedSPL struct {
		SetID         string `json:"set_id"`
		Title         string `json:"title"`
		SPLVersion    int    `json:"spl_version,omitempty"`
		PublishedDate string `json:"published_date,omitempty"`
		PackagedNDC   string `json:"packaged_ndc,omitempty"`
		Content       string `json:"content,omitempty"`
	}

	// RxNormConcept is a concept from the RxNorm REST API.
	//
	// Required: rxcui, name.
	RxNormConcept struct {
		RxCUI    string   `json:"rxcui"`
		Name     string   `json:"name"`
		TTY      string   `json:"tty,omitempty"`
		Synonyms []string `json:"synonyms,omitempty"`
		Language string   `json:"language,omitempty"`
	}

	// AccessGUDIDDevice is a device record from the AccessGUDID API.
	//
	// Required: primary_di, brand_name. primary_di is a GTIN-14.
	AccessGUDIDDevice struct {
		PrimaryDI          string `json:"primary_di"`
		BrandName          string `json:"brand_name"`
		CompanyName        string `json:"company_name,omitempty"`
		VersionModelNumber string `json:"version_model_number,omitempty"`
		DeviceDescription  string `json:"device_description,omitempty"`
		PublishDate        string `json:"publish_date,omitempty"`
	}
)

// Family implements Record.
func (ClinicalTrialsStudy) Family() Family { return FamilyClinical }

// Source implements Record.
func (ClinicalTrialsStudy) Source() string { return "clinicaltrials" }

// Family implements Record.
func (OpenFDARecord) Family() Family { return FamilyClinical }

// Source implements Record.
func (OpenFDARecord) Source() string { return "openfda" }

// Family implements Record.
func (DailyMedSPL) Family() Family { return FamilyClinical }

// Source implements Record.
func (DailyMedSPL) Source() string { return "dailymed" }

// Family implements Record.
func (RxNormConcept) Family() Family { return FamilyClinical }

// Source implements Record.
func (RxNormConcept) Source() string { return "rxnorm" }

// Family implements Record.
func (AccessGUDIDDevice) Family() Family { return FamilyClinical }

// Source implements Record.
func (AccessGUDIDDevice) Source() string { return "accessgudid" }

// GuardClinicalTrialsStudy reports whether the mapping is structurally a
// ClinicalTrials.gov study record.
func GuardClinicalTrialsStudy(m map[string]any) bool {
	return hasFields(m, "nct_id", "brief_title")
}

// GuardOpenFDARecord reports whether the mapping is structurally an openFDA label.
func GuardOpenFDARecord(m map[string]any) bool {
	return hasFields(m, "id", "set_id")
}

// GuardDailyMedSPL reports whether the mapping is structurally a DailyMed SPL.
func GuardDailyMedSPL(m map[string]any) bool {
	return hasFields(m, "set_id", "title") && !hasFields(m, "id")
}

// GuardRxNormConcept reports whether the mapping is structurally an RxNorm concept.
func GuardRxNormConcept(m map[string]any) bool {
	return hasFields(m, "rxcui", "name")
}

// GuardAccessGUDIDDevice reports whether the mapping is structurally a GUDID device.
func GuardAccessGUDIDDevice(m map[string]any) bool {
	return hasFields(m, "primary_di", "brand_name")
}

// DecodeClinicalTrialsStudy coerces a raw mapping into a ClinicalTrialsStudy.
// Boundary validation against the ClinicalTrials.gov v2 study shape.
func DecodeClinicalTrialsStudy(m map[string]any) (*ClinicalTrialsStudy, error) {
	if m == nil {
		return nil, ErrNilMapping
	}

	if err := requireFields(m, "nct_id", "brief_title"); err != nil {
		return nil, err
	}

	var record ClinicalTrialsStudy
	if err := decodeInto(m, &record); err != nil {
		return nil, err
	}

	return &record, nil
}

// DecodeOpenFDARecord coerces a raw mapping into an OpenFDARecord.
// Boundary validation against the openFDA drug label result shape.
func DecodeOpenFDARecord(m map[string]any) (*OpenFDARecord, error) {
	if m == nil {
		return nil, ErrNilMapping
	}

	if err := requireFields(m, "id", "set_id"); err != nil {
		return nil, err
	}

	var record OpenFDARecord
	if err := decodeInto(m, &record); err != nil {
		return nil, err
	}

	return &record, nil
}

// DecodeDailyMedSPL coerces a raw mapping into a DailyMedSPL.
// Boundary validation against the DailyMed v2 SPL listing shape.
func DecodeDailyMedSPL(m map[string]any) (*DailyMedSPL, error) {
	if m == nil {
		return nil, ErrNilMapping
	}

	if err := requireFields(m, "set_id", "title"); err != nil {
		return nil, err
	}

	var record DailyMedSPL
	if err := decodeInto(m, &record); err != nil {
		return nil, err
	}

	return &record, nil
}

// DecodeRxNormConcept coerces a raw mapping into an RxNormConcept.
// Boundary validation against the RxNorm REST property shape.
func DecodeRxNormConcept(m map[string]any) (*RxNormConcept, error) {
	if m == nil {
		return nil, ErrNilMapping
	}

	if err := requireFields(m, "rxcui", "name"); err != nil {
		return nil, err
	}

	var record RxNormConcept
	if err := decodeInto(m, &record); err != nil {
		return nil, err
	}

	return &record, nil
}

// DecodeAccessGUDIDDevice coerces a raw mapping into an AccessGUDIDDevice.
// Boundary validation against the AccessGUDID v3 device shape.
func DecodeAccessGUDIDDevice(m map[string]any) (*AccessGUDIDDevice, error) {
	if m == nil {
		return nil, ErrNilMapping
	}

	if err := requireFields(m, "primary_di", "brand_name"); err != nil {
		return nil, err
	}

	var record AccessGUDIDDevice
	if err := decodeInto(m, &record); err != nil {
		return nil, err
	}

	return &record, nil
}
