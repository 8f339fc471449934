package payload

// Guideline family records: clinical guidance and public-health knowledge bases.

type (
	// NICEGuideline is a guidance record from the NICE syndication API.
	//
	// Required: guideline_id, title. guideline_id is the NICE reference, e.g. "NG28".
	NICEGuideline struct {
		GuidelineID string   `json:"guideline_id"`
		Title       string   `json:"title"`
		Published   string   `json:"published,omitempty"`
		LastUpdated string   `json:"last_updated,omitempty"`
		Chapters    []string `json:"chapters,omitempty"`
		Summary     string   `json:"summary,omitempty"`
	}

	// CDCSocrataRow is a dataset row from a CDC data.cdc.gov Socrata endpoint.
	//
	// Required: row_id, dataset. Socrata columns vary per dataset, so the
	// typed columns carry the common indicator fields and the remainder stays
	// in Columns as string values.
	CDCSocrataRow struct {
		RowID     string            `json:"row_id"`
		Dataset   string            `json:"dataset"`
		Indicator string            `json:"indicator,omitempty"`
		Value     string            `json:"value,omitempty"`
		State     string            `json:"state,omitempty"`
		Year      string            `json:"year,omitempty"`
		Columns   map[string]string `json:"columns,omitempty"`
	}

	// WHOGHOIndicator is an indicator observation from the WHO GHO OData API.
	//
	// Required: indicator_code, spatial_dim.
	WHOGHOIndicator struct {
		IndicatorCode string  `json:"indicator_code"`
		SpatialDim    string  `json:"spatial_dim"`
		TimeDim       int     `json:"time_dim,omitempty"`
		NumericValue  float64 `json:"numeric_value,omitempty"`
		Value         string  `json:"value,omitempty"`
	}

	// OpenPrescribingRow is a spending row from the OpenPrescribing API.
	//
	// Required: org_id, date.
	OpenPrescribingRow struct {
		OrgID      string  `json:"org_id"`
		Date       string  `json:"date"`
		OrgName    string  `json:"org_name,omitempty"`
		Items      int     `json:"items,omitempty"`
		Quantity   float64 `json:"quantity,omitempty"`
		ActualCost float64 `json:"actual_cost,omitempty"`
	}
)

// Family implements Record.
func (NICEGuideline) Family() Family { return FamilyGuideline }

// Source implements Record.
func (NICEGuideline) Source() string { return "nice" }

// Family implements Record.
func (CDCSocrataRow) Family() Family { return FamilyGuideline }

// Source implements Record.
func (CDCSocrataRow) Source() string { return "cdc" }

// Family implements Record.
func (WHOGHOIndicator) Family() Family { return FamilyGuideline }

// Source implements Record.
func (WHOGHOIndicator) Source() string { return "who" }

// Family implements Record.
func (OpenPrescribingRow) Family() Family { return FamilyGuideline }

// Source implements Record.
func (OpenPrescribingRow) Source() string { return "openprescribing" }

// GuardNICEGuideline reports whether the mapping is structurally a NICE guideline.
func GuardNICEGuideline(m map[string]any) bool {
	return hasFields(m, "guideline_id", "title")
}

// GuardCDCSocrataRow reports whether the mapping is structurally a Socrata row.
func GuardCDCSocrataRow(m map[string]any) bool {
	return hasFields(m, "row_id", "dataset")
}

// GuardWHOGHOIndicator reports whether the mapping is structurally a GHO observation.
func GuardWHOGHOIndicator(m map[string]any) bool {
	return hasFields(m, "indicator_code", "spatial_dim")
}

// GuardOpenPrescribingRow reports whether the mapping is structurally an
// OpenPrescribing spending row.
func GuardOpenPrescribingRow(m map[string]any) bool {
	return hasFields(m, "org_id", "date")
}

// DecodeNICEGuideline coerces a raw mapping into a NICEGuideline.
// Boundary validation against the NICE syndication guidance shape.
func DecodeNICEGuideline(m map[string]any) (*NICEGuideline, error) {
	if m == nil {
		return nil, ErrNilMapping
	}

	if err := requireFields(m, "guideline_id", "title"); err != nil {
		return nil, err
	}

	var record NICEGuideline
	if err := decodeInto(m, &record); err != nil {
		return nil, err
	}

	return &record, nil
}

// DecodeCDCSocrataRow coerces a raw mapping into a CDCSocrataRow.
// Boundary validation against the Socrata SODA 2.1 row shape.
func DecodeCDCSocrataRow(m map[string]any) (*CDCSocrataRow, error) {
	if m == nil {
		return nil, ErrNilMapping
	}

	if err := requireFields(m, "row_id", "dataset"); err != nil {
		return nil, err
	}

	var record CDCSocrataRow
	if err := decodeInto(m, &record); err != nil {
		return nil, err
	}

	return &record, nil
}

// DecodeWHOGHOIndicator coerces a raw mapping into a WHOGHOIndicator.
// Boundary validation against the GHO OData value shape.
func DecodeWHOGHOIndicator(m map[string]any) (*WHOGHOIndicator, error) {
	if m == nil {
		return nil, ErrNilMapping
	}

	if err := requireFields(m, "indicator_code", "spatial_dim"); err != nil {
		return nil, err
	}

	var record WHOGHOIndicator
	if err := decodeInto(m, &record); err != nil {
		return nil, err
	}

	return &record, nil
}

// DecodeOpenPrescribingRow coerces a raw mapping into an OpenPrescribingRow.
// Boundary validation against the OpenPrescribing spending-by-org shape.
func DecodeOpenPrescribingRow(m map[string]any) (*OpenPrescribingRow, error) {
	if m == nil {
		return nil, ErrNilMapping
	}

	if err := requireFields(m, "org_id", "date"); err != nil {
		return nil, err
	}

	var record OpenPrescribingRow
	if err := decodeInto(m, &record); err != nil {
		return nil, err
	}

	return &record, nil
}
