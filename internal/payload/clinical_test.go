package payload

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGuardClinicalTrialsStudy(t *testing.T) {
	assert.True(t, GuardClinicalTrialsStudy(map[string]any{
		"nct_id":      "NCT04267848",
		"brief_title": "A study",
	}))

	assert.False(t, GuardClinicalTrialsStudy(nil))
	assert.False(t, GuardClinicalTrialsStudy(map[string]any{"nct_id": "NCT04267848"}))
	assert.False(t, GuardClinicalTrialsStudy(map[string]any{
		"nct_id":      "NCT04267848",
		"brief_title": nil,
	}))
}

func TestDecodeClinicalTrialsStudy(t *testing.T) {
	record, err := DecodeClinicalTrialsStudy(map[string]any{
		"nct_id":       "NCT04267848",
		"brief_title":  "Tocilizumab in COVID-19 Pneumonia",
		"phase":        "PHASE3",
		"enrollment_n": float64(450),
		"conditions":   []any{"COVID-19", "Pneumonia"},
		"unknown_key":  "dropped at the boundary",
	})

	require.NoError(t, err)
	assert.Equal(t, "NCT04267848", record.NCTID)
	assert.Equal(t, "Tocilizumab in COVID-19 Pneumonia", record.BriefTitle)
	assert.Equal(t, "PHASE3", record.Phase)
	assert.Equal(t, 450, record.EnrollmentN)
	assert.Equal(t, []string{"COVID-19", "Pneumonia"}, record.Conditions)
	assert.Equal(t, FamilyClinical, record.Family())
	assert.Equal(t, "clinicaltrials", record.Source())
}

func TestDecodeClinicalTrialsStudy_MissingRequired(t *testing.T) {
	_, err := DecodeClinicalTrialsStudy(map[string]any{"nct_id": "NCT04267848"})
	require.ErrorIs(t, err, ErrMissingRequiredField)

	_, err = DecodeClinicalTrialsStudy(nil)
	require.ErrorIs(t, err, ErrNilMapping)
}

func TestDecodeClinicalTrialsStudy_Malformed(t *testing.T) {
	// enrollment_n declared as int; a string cannot coerce.
	_, err := DecodeClinicalTrialsStudy(map[string]any{
		"nct_id":       "NCT04267848",
		"brief_title":  "A study",
		"enrollment_n": "four hundred",
	})
	require.ErrorIs(t, err, ErrMalformedMapping)
}

func TestGuardDailyMedSPL_RejectsOpenFDAShape(t *testing.T) {
	// openFDA labels also carry set_id; the id key disambiguates.
	openFDA := map[string]any{"id": "abc", "set_id": "def", "title": "label"}
	assert.False(t, GuardDailyMedSPL(openFDA))
	assert.True(t, GuardOpenFDARecord(openFDA))

	assert.True(t, GuardDailyMedSPL(map[string]any{"set_id": "def", "title": "label"}))
}

func TestDecodeOpenFDARecord(t *testing.T) {
	record, err := DecodeOpenFDARecord(map[string]any{
		"id":                    "8fc2b10e",
		"set_id":                "0f4c0a83",
		"effective_time":        "20240115",
		"brand_name":            "Lipitor",
		"generic_name":          "atorvastatin calcium",
		"indications_and_usage": []any{"Section text"},
	})

	require.NoError(t, err)
	assert.Equal(t, "8fc2b10e", record.ID)
	assert.Equal(t, "0f4c0a83", record.SetID)
	assert.Equal(t, "Lipitor", record.BrandName)
	assert.Equal(t, []string{"Section text"}, record.IndicationsAndUsage)
}

func TestDecodeRxNormConcept(t *testing.T) {
	record, err := DecodeRxNormConcept(map[string]any{
		"rxcui":    "161",
		"name":     "acetaminophen",
		"tty":      "IN",
		"language": "en",
	})

	require.NoError(t, err)
	assert.Equal(t, "161", record.RxCUI)
	assert.Equal(t, "acetaminophen", record.Name)
	assert.Equal(t, "IN", record.TTY)

	_, err = DecodeRxNormConcept(map[string]any{"rxcui": "161"})
	assert.True(t, errors.Is(err, ErrMissingRequiredField))
}

func TestDecodeAccessGUDIDDevice(t *testing.T) {
	record, err := DecodeAccessGUDIDDevice(map[string]any{
		"primary_di":   "00012345678905",
		"brand_name":   "CardioStent",
		"company_name": "Example Devices Inc",
	})

	require.NoError(t, err)
	assert.Equal(t, "00012345678905", record.PrimaryDI)
	assert.Equal(t, "CardioStent", record.BrandName)

	_, err = DecodeAccessGUDIDDevice(map[string]any{"brand_name": "CardioStent"})
	assert.True(t, errors.Is(err, ErrMissingRequiredField))
}
