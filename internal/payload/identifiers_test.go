package payload

import (
	"errors"
	"testing"
)

func TestValidateNCTID(t *testing.T) {
	valid := []string{"NCT04267848", "NCT00000001", "NCT99999999"}
	for _, id := range valid {
		if err := ValidateNCTID(id); err != nil {
			t.Errorf("ValidateNCTID(%q) = %v, want nil", id, err)
		}
	}

	invalid := []string{"", "NCT1234567", "NCT123456789", "nct04267848", "NCT0426784X", "04267848"}
	for _, id := range invalid {
		if err := ValidateNCTID(id); !errors.Is(err, ErrInvalidNCTID) {
			t.Errorf("ValidateNCTID(%q) = %v, want ErrInvalidNCTID", id, err)
		}
	}
}

func TestValidatePMID(t *testing.T) {
	valid := []string{"1", "31452104", "99999999"}
	for _, id := range valid {
		if err := ValidatePMID(id); err != nil {
			t.Errorf("ValidatePMID(%q) = %v, want nil", id, err)
		}
	}

	invalid := []string{"", "123456789", "PMID:1234", "12a4"}
	for _, id := range invalid {
		if err := ValidatePMID(id); !errors.Is(err, ErrInvalidPMID) {
			t.Errorf("ValidatePMID(%q) = %v, want ErrInvalidPMID", id, err)
		}
	}
}

func TestValidatePMCID(t *testing.T) {
	if err := ValidatePMCID("PMC7096066"); err != nil {
		t.Errorf("ValidatePMCID(PMC7096066) = %v, want nil", err)
	}

	invalid := []string{"", "7096066", "pmc7096066", "PMC", "PMC70960661234"}
	for _, id := range invalid {
		if err := ValidatePMCID(id); !errors.Is(err, ErrInvalidPMCID) {
			t.Errorf("ValidatePMCID(%q) = %v, want ErrInvalidPMCID", id, err)
		}
	}
}

func TestValidateDOI(t *testing.T) {
	valid := []string{"10.1101/2020.03.09.20033217", "10.1056/NEJMoa2034577"}
	for _, doi := range valid {
		if err := ValidateDOI(doi); err != nil {
			t.Errorf("ValidateDOI(%q) = %v, want nil", doi, err)
		}
	}

	invalid := []string{"", "11.1101/x", "10.123/x", "10.1101/", "doi:10.1101/x"}
	for _, doi := range invalid {
		if err := ValidateDOI(doi); !errors.Is(err, ErrInvalidDOI) {
			t.Errorf("ValidateDOI(%q) = %v, want ErrInvalidDOI", doi, err)
		}
	}
}

func TestValidateLOINC(t *testing.T) {
	valid := []string{"2160-0", "94500-6", "1-8"}
	for _, code := range valid {
		if err := ValidateLOINC(code); err != nil {
			t.Errorf("ValidateLOINC(%q) = %v, want nil", code, err)
		}
	}

	invalid := []string{"", "2160", "2160-", "2160-00", "LP2160-0"}
	for _, code := range invalid {
		if err := ValidateLOINC(code); !errors.Is(err, ErrInvalidLOINC) {
			t.Errorf("ValidateLOINC(%q) = %v, want ErrInvalidLOINC", code, err)
		}
	}
}

// Published SNOMED CT identifiers carry a valid Verhoeff check digit by
// construction; the invalid cases mutate only the final digit.
func TestValidateSCTID(t *testing.T) {
	valid := []string{"22298006", "80146002", "404684003", "138875005"}
	for _, id := range valid {
		if err := ValidateSCTID(id); err != nil {
			t.Errorf("ValidateSCTID(%q) = %v, want nil", id, err)
		}
	}

	checkDigitMutations := []string{"22298007", "80146003", "404684004"}
	for _, id := range checkDigitMutations {
		if err := ValidateSCTID(id); !errors.Is(err, ErrInvalidSCTID) {
			t.Errorf("ValidateSCTID(%q) = %v, want ErrInvalidSCTID", id, err)
		}
	}

	malformed := []string{"", "12345", "2229800622298006222", "22298O06"}
	for _, id := range malformed {
		if err := ValidateSCTID(id); !errors.Is(err, ErrInvalidSCTID) {
			t.Errorf("ValidateSCTID(%q) = %v, want ErrInvalidSCTID", id, err)
		}
	}
}

func TestValidateGTIN14(t *testing.T) {
	valid := []string{"00012345678905", "10012345678902"}
	for _, id := range valid {
		if err := ValidateGTIN14(id); err != nil {
			t.Errorf("ValidateGTIN14(%q) = %v, want nil", id, err)
		}
	}

	invalid := []string{"", "00012345678904", "0001234567890", "000123456789050", "0001234567890X"}
	for _, id := range invalid {
		if err := ValidateGTIN14(id); !errors.Is(err, ErrInvalidGTIN) {
			t.Errorf("ValidateGTIN14(%q) = %v, want ErrInvalidGTIN", id, err)
		}
	}
}

func TestValidateRxCUI(t *testing.T) {
	if err := ValidateRxCUI("161"); err != nil {
		t.Errorf("ValidateRxCUI(161) = %v, want nil", err)
	}

	invalid := []string{"", "161a", "123456789"}
	for _, id := range invalid {
		if err := ValidateRxCUI(id); !errors.Is(err, ErrInvalidRxCUI) {
			t.Errorf("ValidateRxCUI(%q) = %v, want ErrInvalidRxCUI", id, err)
		}
	}
}

func TestValidateCUI(t *testing.T) {
	if err := ValidateCUI("C0004057"); err != nil {
		t.Errorf("ValidateCUI(C0004057) = %v, want nil", err)
	}

	invalid := []string{"", "0004057", "C000405", "C00040571", "c0004057"}
	for _, id := range invalid {
		if err := ValidateCUI(id); !errors.Is(err, ErrInvalidCUI) {
			t.Errorf("ValidateCUI(%q) = %v, want ErrInvalidCUI", id, err)
		}
	}
}

func TestValidateMeSHUI(t *testing.T) {
	valid := []string{"D000068877", "C535575", "D012345"}
	for _, id := range valid {
		if err := ValidateMeSHUI(id); err != nil {
			t.Errorf("ValidateMeSHUI(%q) = %v, want nil", id, err)
		}
	}

	invalid := []string{"", "X012345", "D12", "d012345"}
	for _, id := range invalid {
		if err := ValidateMeSHUI(id); !errors.Is(err, ErrInvalidMeSHUI) {
			t.Errorf("ValidateMeSHUI(%q) = %v, want ErrInvalidMeSHUI", id, err)
		}
	}
}

func TestValidateLanguage(t *testing.T) {
	valid := []string{"en", "fr", "zh"}
	for _, code := range valid {
		if err := ValidateLanguage(code); err != nil {
			t.Errorf("ValidateLanguage(%q) = %v, want nil", code, err)
		}
	}

	invalid := []string{"", "EN", "eng", "e1", "en-US"}
	for _, code := range invalid {
		if err := ValidateLanguage(code); !errors.Is(err, ErrInvalidLanguage) {
			t.Errorf("ValidateLanguage(%q) = %v, want ErrInvalidLanguage", code, err)
		}
	}
}

func TestVerhoeffChecksumRejectsTransposition(t *testing.T) {
	// The Verhoeff scheme detects all single-digit errors and adjacent
	// transpositions, which is why SNOMED mandates it over plain mod-10.
	if verhoeffChecksum("22298006") != 0 {
		t.Fatal("expected 22298006 to checksum to zero")
	}

	if verhoeffChecksum("22289006") == 0 {
		t.Error("expected transposed 22289006 to fail the checksum")
	}
}
