package logfields

import (
	"errors"
	"log/slog"
	"testing"
)

// TestHelperKeyNames verifies string-based helper key/value stability.
func TestHelperKeyNames(t *testing.T) {
	cases := []struct {
		name    string
		attrKey string
		attrVal string
		attr    slog.Attr
	}{
		{"GenerationID", KeyGenerationID, "g1", GenerationID("g1")},
		{"ProjectID", KeyProjectID, "P1", ProjectID("P1")},
		{"PageID", KeyPageID, "pg", PageID("pg")},
		{"PageName", KeyPageName, "about", PageName("about")},
		{"Strategy", KeyStrategy, "multi", Strategy("multi")},
		{"Stage", KeyStage, "assembly", Stage("assembly")},
		{"Unit", KeyUnit, "contact", Unit("contact")},
		{"Provider", KeyProvider, "anthropic", Provider("anthropic")},
		{"Model", KeyModel, "m", Model("m")},
		{"Method", KeyMethod, "GET", Method("GET")},
		{"Path", KeyPath, "/preview/P1", Path("/preview/P1")},
		{"RequestID", KeyRequestID, "rid", RequestID("rid")},
		{"Rule", KeyRule, "bare_token", Rule("bare_token")},
	}

	for _, tc := range cases {
		if tc.attr.Key != tc.attrKey {
			// Key drift would break log ingestion schemas.
			t.Fatalf("%s: expected key %s, got %s", tc.name, tc.attrKey, tc.attr.Key)
		}
		if got := tc.attr.Value.String(); got != tc.attrVal {
			t.Fatalf("%s: expected value %s, got %v", tc.name, tc.attrVal, got)
		}
	}
}

func TestNumericHelpers(t *testing.T) {
	if a := Attempt(2); a.Key != KeyAttempt || a.Value.Int64() != 2 {
		t.Fatalf("unexpected attempt attr %v", a)
	}
	if a := Status(404); a.Key != KeyStatus || a.Value.Int64() != 404 {
		t.Fatalf("unexpected status attr %v", a)
	}
	if a := DurationMS(1.5); a.Value.Float64() != 1.5 {
		t.Fatalf("unexpected duration attr %v", a)
	}
}

func TestErrorHelper(t *testing.T) {
	if Error(nil).Value.String() != "" {
		t.Fatal("nil error should render empty")
	}
	if Error(errors.New("boom")).Value.String() != "boom" {
		t.Fatal("error text mismatch")
	}
}
