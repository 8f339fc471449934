package adapter

import "testing"

func TestNestedNavigationHelpers(t *testing.T) {
	tree := map[string]any{
		"protocolSection": map[string]any{
			"identificationModule": map[string]any{
				"nctId": "NCT00000001",
			},
			"designModule": map[string]any{
				"phases": []any{"PHASE2", "PHASE3"},
				"enrollmentInfo": map[string]any{
					"count": float64(450),
				},
			},
		},
		"score": float64(0.93),
		"uid":   float64(31452104),
		"authors": []any{
			map[string]any{"name": "Smith J"},
			"not an object",
		},
	}

	if got := stringAt(tree, "protocolSection", "identificationModule", "nctId"); got != "NCT00000001" {
		t.Errorf("stringAt = %q", got)
	}

	// Numeric identifiers format without exponent.
	if got := stringAt(tree, "uid"); got != "31452104" {
		t.Errorf("stringAt numeric = %q", got)
	}

	if got := stringAt(tree, "protocolSection", "missing", "nctId"); got != "" {
		t.Errorf("stringAt missing path = %q", got)
	}

	if got := intAt(tree, "protocolSection", "designModule", "enrollmentInfo", "count"); got != 450 {
		t.Errorf("intAt = %d", got)
	}

	if got := floatAt(tree, "score"); got != 0.93 {
		t.Errorf("floatAt = %v", got)
	}

	if got := stringsAt(tree, "protocolSection", "designModule", "phases"); len(got) != 2 || got[0] != "PHASE2" {
		t.Errorf("stringsAt = %v", got)
	}

	// Non-object array members are dropped, not surfaced as errors.
	if got := objectsAt(tree, "authors"); len(got) != 1 || got[0]["name"] != "Smith J" {
		t.Errorf("objectsAt = %v", got)
	}

	if got := mapAt(nil, "anything"); got != nil {
		t.Errorf("mapAt on nil = %v", got)
	}
}
