package payload

import (
	"errors"
	"fmt"
	"regexp"
)

// Sentinel errors for semantic identifier validation.
// These can be used with errors.Is() for error checking.
var (
	// ErrInvalidNCTID indicates an identifier that is not NCT followed by 8 digits.
	ErrInvalidNCTID = errors.New("invalid NCT identifier")

	// ErrInvalidPMID indicates a non-numeric PubMed identifier.
	ErrInvalidPMID = errors.New("invalid PMID")

	// ErrInvalidPMCID indicates an identifier that is not PMC followed by digits.
	ErrInvalidPMCID = errors.New("invalid PMCID")

	// ErrInvalidDOI indicates a malformed DOI.
	ErrInvalidDOI = errors.New("invalid DOI")

	// ErrInvalidLOINC indicates a code that does not match the LOINC format.
	ErrInvalidLOINC = errors.New("invalid LOINC code")

	// ErrInvalidSCTID indicates a SNOMED identifier that fails the Verhoeff check.
	ErrInvalidSCTID = errors.New("invalid SNOMED CT identifier")

	// ErrInvalidGTIN indicates a device identifier that fails the GTIN-14 check digit.
	ErrInvalidGTIN = errors.New("invalid GTIN-14")

	// ErrInvalidRxCUI indicates a non-numeric RxNorm concept identifier.
	ErrInvalidRxCUI = errors.New("invalid RxCUI")

	// ErrInvalidCUI indicates a UMLS concept identifier not matching C\d{7}.
	ErrInvalidCUI = errors.New("invalid UMLS CUI")

	// ErrInvalidMeSHUI indicates a malformed MeSH descriptor UI.
	ErrInvalidMeSHUI = errors.New("invalid MeSH descriptor UI")

	// ErrInvalidLanguage indicates a language tag that is not a two-letter ISO 639-1 code.
	ErrInvalidLanguage = errors.New("invalid language code")
)

// Identifier format patterns, compiled once at package initialization.
// Formats follow the respective registry specifications: ClinicalTrials.gov
// NCT numbers, NCBI PMIDs/PMCIDs, Regenstrief LOINC codes, UMLS CUIs,
// NLM MeSH descriptor UIs, and BCP 47 primary language subtags.
var (
	nctIDPattern    = regexp.MustCompile(`^NCT\d{8}$`)
	pmidPattern     = regexp.MustCompile(`^\d{1,8}$`)
	pmcidPattern    = regexp.MustCompile(`^PMC\d{1,8}$`)
	doiPattern      = regexp.MustCompile(`^10\.\d{4,9}/\S+$`)
	loincPattern    = regexp.MustCompile(`^\d{1,7}-\d$`)
	sctidPattern    = regexp.MustCompile(`^\d{6,18}$`)
	gtin14Pattern   = regexp.MustCompile(`^\d{14}$`)
	rxcuiPattern    = regexp.MustCompile(`^\d{1,8}$`)
	cuiPattern      = regexp.MustCompile(`^C\d{7}$`)
	meshUIPattern   = regexp.MustCompile(`^[CD]\d{6,9}$`)
	languagePattern = regexp.MustCompile(`^[a-z]{2}$`)
)

// ValidateNCTID checks a ClinicalTrials.gov registry number (NCT + 8 digits).
func ValidateNCTID(id string) error {
	if !nctIDPattern.MatchString(id) {
		return fmt.Errorf("%w: %q (expected NCT followed by 8 digits)", ErrInvalidNCTID, id)
	}

	return nil
}

// ValidatePMID checks a PubMed identifier (1-8 digits).
func ValidatePMID(id string) error {
	if !pmidPattern.MatchString(id) {
		return fmt.Errorf("%w: %q (expected numeric PMID)", ErrInvalidPMID, id)
	}

	return nil
}

// ValidatePMCID checks a PubMed Central identifier (PMC + digits).
func ValidatePMCID(id string) error {
	if !pmcidPattern.MatchString(id) {
		return fmt.Errorf("%w: %q (expected PMC followed by digits)", ErrInvalidPMCID, id)
	}

	return nil
}

// ValidateDOI checks a DOI against the Crossref-recommended pattern.
func ValidateDOI(doi string) error {
	if !doiPattern.MatchString(doi) {
		return fmt.Errorf("%w: %q", ErrInvalidDOI, doi)
	}

	return nil
}

// ValidateLOINC checks a LOINC code (1-7 digits, hyphen, single check digit).
func ValidateLOINC(code string) error {
	if !loincPattern.MatchString(code) {
		return fmt.Errorf("%w: %q (expected \\d{1,7}-\\d)", ErrInvalidLOINC, code)
	}

	return nil
}

// ValidateSCTID checks a SNOMED CT identifier: 6-18 digits whose final digit
// is a Verhoeff check digit over the whole number.
func ValidateSCTID(id string) error {
	if !sctidPattern.MatchString(id) {
		return fmt.Errorf("%w: %q (expected 6-18 digits)", ErrInvalidSCTID, id)
	}

	if verhoeffChecksum(id) != 0 {
		return fmt.Errorf("%w: %q (Verhoeff check digit mismatch)", ErrInvalidSCTID, id)
	}

	return nil
}

// ValidateGTIN14 checks a 14-digit GTIN with a GS1 mod-10 check digit,
// the format AccessGUDID uses for primary device identifiers.
func ValidateGTIN14(id string) error {
	if !gtin14Pattern.MatchString(id) {
		return fmt.Errorf("%w: %q (expected 14 digits)", ErrInvalidGTIN, id)
	}

	sum := 0

	for i := 0; i < 13; i++ {
		digit := int(id[i] - '0')
		// GS1: leftmost of the 13 data digits carries weight 3, alternating.
		if i%2 == 0 {
			sum += digit * 3
		} else {
			sum += digit
		}
	}

	check := (10 - sum%10) % 10
	if check != int(id[13]-'0') {
		return fmt.Errorf("%w: %q (check digit mismatch)", ErrInvalidGTIN, id)
	}

	return nil
}

// ValidateRxCUI checks an RxNorm concept identifier (numeric).
func ValidateRxCUI(id string) error {
	if !rxcuiPattern.MatchString(id) {
		return fmt.Errorf("%w: %q (expected numeric RxCUI)", ErrInvalidRxCUI, id)
	}

	return nil
}

// ValidateCUI checks a UMLS concept identifier (C + 7 digits).
func ValidateCUI(id string) error {
	if !cuiPattern.MatchString(id) {
		return fmt.Errorf("%w: %q (expected C followed by 7 digits)", ErrInvalidCUI, id)
	}

	return nil
}

// ValidateMeSHUI checks a MeSH descriptor or concept UI (C/D + digits).
func ValidateMeSHUI(id string) error {
	if !meshUIPattern.MatchString(id) {
		return fmt.Errorf("%w: %q", ErrInvalidMeSHUI, id)
	}

	return nil
}

// ValidateLanguage checks a two-letter lowercase ISO 639-1 language code.
func ValidateLanguage(code string) error {
	if !languagePattern.MatchString(code) {
		return fmt.Errorf("%w: %q (expected two lowercase letters)", ErrInvalidLanguage, code)
	}

	return nil
}

// Verhoeff dihedral group tables. The multiplication table d composes
// permutations in D5, p permutes digits by position, and inv inverts.
var (
	verhoeffD = [10][10]int{
		{0, 1, 2, 3, 4, 5, 6, 7, 8, 9},
		{1, 2, 3, 4, 0, 6, 7, 8, 9, 5},
		{2, 3, 4, 0, 1, 7, 8, 9, 5, 6},
		{3, 4, 0, 1, 2, 8, 9, 5, 6, 7},
		{4, 0, 1, 2, 3, 9, 5, 6, 7, 8},
		{5, 9, 8, 7, 6, 0, 4, 3, 2, 1},
		{6, 5, 9, 8, 7, 1, 0, 4, 3, 2},
		{7, 6, 5, 9, 8, 2, 1, 0, 4, 3},
		{8, 7, 6, 5, 9, 3, 2, 1, 0, 4},
		{9, 8, 7, 6, 5, 4, 3, 2, 1, 0},
	}
	verhoeffP = [8][10]int{
		{0, 1, 2, 3, 4, 5, 6, 7, 8, 9},
		{1, 5, 7, 6, 2, 8, 3, 0, 9, 4},
		{5, 8, 0, 3, 7, 9, 6, 1, 4, 2},
		{8, 9, 1, 6, 0, 4, 3, 5, 2, 7},
		{9, 4, 5, 3, 1, 2, 6, 8, 7, 0},
		{4, 2, 8, 6, 5, 7, 3, 9, 0, 1},
		{2, 7, 9, 3, 8, 0, 6, 4, 1, 5},
		{7, 0, 4, 6, 9, 1, 3, 2, 5, 8},
	}
)

// verhoeffChecksum computes the Verhoeff checksum over a digit string.
// A valid number (data digits plus check digit) sums to zero.
func verhoeffChecksum(digits string) int {
	c := 0

	for i := 0; i < len(digits); i++ {
		// Process digits right to left; position 0 is the check digit.
		digit := int(digits[len(digits)-1-i] - '0')
		c = verhoeffD[c][verhoeffP[i%8][digit]]
	}

	return c
}
