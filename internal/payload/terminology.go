package payload

// Terminology family records: medical ontologies and code systems.

type (
	// MeSHDescriptor is a descriptor record from the NLM MeSH RDF API.
	//
	// Required: descriptor_ui, name.
	MeSHDescriptor struct {
		DescriptorUI string   `json:"descriptor_ui"`
		Name         string   `json:"name"`
		TreeNumbers  []string `json:"tree_numbers,omitempty"`
		ScopeNote    string   `json:"scope_note,omitempty"`
	}

	// UMLSConcept is a concept record from the UMLS UTS REST API.
	//
	// Required: cui, name.
	UMLSConcept struct {
		CUI           string   `json:"cui"`
		Name          string   `json:"name"`
		SemanticTypes []string `json:"semantic_types,omitempty"`
		RootSource    string   `json:"root_source,omitempty"`
		Definition    string   `json:"definition,omitempty"`
	}

	// LOINCConcept is a code record from the LOINC FHIR terminology server.
	//
	// Required: loinc_num, long_common_name.
	LOINCConcept struct {
		LoincNum       string `json:"loinc_num"`
		LongCommonName string `json:"long_common_name"`
		Component      string `json:"component,omitempty"`
		Property       string `json:"property,omitempty"`
		System         string `json:"system,omitempty"`
		Scale          string `json:"scale,omitempty"`
		Method         string `json:"method,omitempty"`
	}

	// ICD11Entity is an entity record from the WHO ICD-11 API.
	//
	// Required: entity_id, title.
	ICD11Entity struct {
		EntityID   string   `json:"entity_id"`
		Title      string   `json:"title"`
		Code       string   `json:"code,omitempty"`
		Definition string   `json:"definition,omitempty"`
		Parents    []string `json:"parents,omitempty"`
	}

	// SNOMEDConcept is a concept record from a SNOMED CT Snowstorm server.
	//
	// Required: concept_id, fsn. concept_id is an SCTID with a Verhoeff check digit.
	SNOMEDConcept struct {
		ConceptID     string `json:"concept_id"`
		FSN           string `json:"fsn"`
		PreferredTerm string `json:"preferred_term,omitempty"`
		Active        bool   `json:"active,omitempty"`
		ModuleID      string `json:"module_id,omitempty"`
	}
)

// Family implements Record.
func (MeSHDescriptor) Family() Family { return FamilyTerminology }

// Source implements Record.
func (MeSHDescriptor) Source() string { return "mesh" }

// Family implements Record.
func (UMLSConcept) Family() Family { return FamilyTerminology }

// Source implements Record.
func (UMLSConcept) Source() string { return "umls" }

// Family implements Record.
func (LOINCConcept) Family() Family { return FamilyTerminology }

// Source implements Record.
func (LOINCConcept) Source() string { return "loinc" }

// Family implements Record.
func (ICD11Entity) Family() Family { return FamilyTerminology }

// Source implements Record.
func (ICD11Entity) Source() string { return "icd11" }

// Family implements Record.
func (SNOMEDConcept) Family() Family { return FamilyTerminology }

// Source implements Record.
func (SNOMEDConcept) Source() string { return "snomed" }

// GuardMeSHDescriptor reports whether the mapping is structurally a MeSH descriptor.
func GuardMeSHDescriptor(m map[string]any) bool {
	return hasFields(m, "descriptor_ui", "name")
}

// GuardUMLSConcept reports whether the mapping is structurally a UMLS concept.
func GuardUMLSConcept(m map[string]any) bool {
	return hasFields(m, "cui", "name")
}

// GuardLOINCConcept reports whether the mapping is structurally a LOINC code.
func GuardLOINCConcept(m map[string]any) bool {
	return hasFields(m, "loinc_num", "long_common_name")
}

// GuardICD11Entity reports whether the mapping is structurally an ICD-11 entity.
func GuardICD11Entity(m map[string]any) bool {
	return hasFields(m, "entity_id", "title")
}

// GuardSNOMEDConcept reports whether the mapping is structurally a SNOMED concept.
func GuardSNOMEDConcept(m map[string]any) bool {
	return hasFields(m, "concept_id", "fsn")
}

// DecodeMeSHDescriptor coerces a raw mapping into a MeSHDescriptor.
// Boundary validation against the MeSH RDF lookup descriptor shape.
func DecodeMeSHDescriptor(m map[string]any) (*MeSHDescriptor, error) {
	if m == nil {
		return nil, ErrNilMapping
	}

	if err := requireFields(m, "descriptor_ui", "name"); err != nil {
		return nil, err
	}

	var record MeSHDescriptor
	if err := decodeInto(m, &record); err != nil {
		return nil, err
	}

	return &record, nil
}

// DecodeUMLSConcept coerces a raw mapping into a UMLSConcept.
// Boundary validation against the UTS /content concept shape.
func DecodeUMLSConcept(m map[string]any) (*UMLSConcept, error) {
	if m == nil {
		return nil, ErrNilMapping
	}

	if err := requireFields(m, "cui", "name"); err != nil {
		return nil, err
	}

	var record UMLSConcept
	if err := decodeInto(m, &record); err != nil {
		return nil, err
	}

	return &record, nil
}

// DecodeLOINCConcept coerces a raw mapping into a LOINCConcept.
// Boundary validation against the LOINC FHIR CodeSystem lookup shape.
func DecodeLOINCConcept(m map[string]any) (*LOINCConcept, error) {
	if m == nil {
		return nil, ErrNilMapping
	}

	if err := requireFields(m, "loinc_num", "long_common_name"); err != nil {
		return nil, err
	}

	var record LOINCConcept
	if err := decodeInto(m, &record); err != nil {
		return nil, err
	}

	return &record, nil
}

// DecodeICD11Entity coerces a raw mapping into an ICD11Entity.
// Boundary validation against the ICD-11 /entity shape.
func DecodeICD11Entity(m map[string]any) (*ICD11Entity, error) {
	if m == nil {
		return nil, ErrNilMapping
	}

	if err := requireFields(m, "entity_id", "title"); err != nil {
		return nil, err
	}

	var record ICD11Entity
	if err := decodeInto(m, &record); err != nil {
		return nil, err
	}

	return &record, nil
}

// DecodeSNOMEDConcept coerces a raw mapping into a SNOMEDConcept.
// Boundary validation against the Snowstorm browser concept shape.
func DecodeSNOMEDConcept(m map[string]any) (*SNOMEDConcept, error) {
	if m == nil {
		return nil, ErrNilMapping
	}

	if err := requireFields(m, "concept_id", "fsn"); err != nil {
		return nil, err
	}

	var record SNOMEDConcept
	if err := decodeInto(m, &record); err != nil {
		return nil, err
	}

	return &record, nil
}
