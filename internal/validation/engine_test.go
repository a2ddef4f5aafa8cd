package validation

import (
	"fmt"
	"reflect"
	"strings"
	"testing"

	"github.com/rpattn/fileflow/internal/parser"
)

func findErrors(result Result, kind ErrorKind) []Error {
	var out []Error
	for _, e := range result.Errors {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

func TestValidateCleanFile(t *testing.T) {
	policy := DefaultPolicy()
	policy.RequiredColumns = []string{"email", "name"}

	data := []byte("Full Name,Email Address\nAna,ana@example.com\nBob,bob@example.com\n")
	result := Validate(data, parser.FormatCSV, policy)

	if !result.IsValid {
		t.Fatalf("expected valid result, got errors: %+v", result.Errors)
	}
	if len(result.Warnings) != 0 {
		t.Fatalf("expected no warnings, got %v", result.Warnings)
	}
	if result.Stats.TotalRows != 2 || result.Stats.TotalColumns != 2 {
		t.Fatalf("unexpected stats: %+v", result.Stats)
	}
}

func TestValidateSizeGateShortCircuits(t *testing.T) {
	policy := DefaultPolicy()
	policy.MaxFileBytes = 10

	// Deliberately unparseable; the size gate must fire before the parser.
	result := Validate([]byte("this is not valid json at all"), parser.FormatJSON, policy)

	if result.IsValid {
		t.Fatal("oversized payload must be invalid")
	}
	if len(result.Errors) != 1 || result.Errors[0].Kind != KindSizeLimit {
		t.Fatalf("expected a single size_limit error, got %+v", result.Errors)
	}
}

func TestValidateParseFailureShortCircuits(t *testing.T) {
	result := Validate([]byte(`{"not":"an array"}`), parser.FormatJSON, DefaultPolicy())

	if result.IsValid {
		t.Fatal("unparseable payload must be invalid")
	}
	if len(result.Errors) != 1 || result.Errors[0].Kind != KindStructureError {
		t.Fatalf("expected a single structure_error, got %+v", result.Errors)
	}
}

func TestValidateEmptyDataset(t *testing.T) {
	result := Validate([]byte("name,email\n"), parser.FormatCSV, DefaultPolicy())

	if result.IsValid {
		t.Fatal("dataset without data rows must be invalid")
	}
	if len(findErrors(result, KindStructureError)) != 1 {
		t.Fatalf("expected structure_error for empty dataset, got %+v", result.Errors)
	}
	if result.Stats.TotalColumns != 2 || result.Stats.TotalRows != 0 {
		t.Fatalf("unexpected stats: %+v", result.Stats)
	}
}

func TestValidateRequiredColumnsSubstringMatch(t *testing.T) {
	policy := DefaultPolicy()
	policy.RequiredColumns = []string{"email", "name"}

	// "Email Address" and "Full Name" satisfy "email" and "name" by
	// case-insensitive substring.
	ok := Validate([]byte("Email Address,Full Name\na@x.com,Ana\n"), parser.FormatCSV, policy)
	if len(findErrors(ok, KindMissingColumns)) != 0 {
		t.Fatalf("substring match should have satisfied required columns: %+v", ok.Errors)
	}

	policy.RequiredColumns = []string{"phone"}
	missing := Validate([]byte("Email Address,Full Name\na@x.com,Ana\n"), parser.FormatCSV, policy)
	errs := findErrors(missing, KindMissingColumns)
	if len(errs) != 1 {
		t.Fatalf("expected one missing_columns error, got %+v", missing.Errors)
	}
	if !reflect.DeepEqual(errs[0].Expected, []string{"phone"}) {
		t.Fatalf("expected field should list the required set: %+v", errs[0])
	}
	if !reflect.DeepEqual(errs[0].Found, []string{"Email Address", "Full Name"}) {
		t.Fatalf("found field should list actual headers: %+v", errs[0])
	}
}

func TestValidateRowLocators(t *testing.T) {
	policy := DefaultPolicy()
	policy.AllowEmptyValues = false

	data := []byte("name,email\nAna,ana@x.com\nBob,\nCara,bad-email\n")
	result := Validate(data, parser.FormatCSV, policy)

	if result.IsValid {
		t.Fatal("expected an invalid result")
	}

	empties := findErrors(result, KindEmptyValue)
	if len(empties) != 1 {
		t.Fatalf("expected one empty_value error, got %+v", result.Errors)
	}
	// Bob is the second data row; with the header as row 1 that is row 3.
	if empties[0].Row != 3 || empties[0].Column != "email" {
		t.Fatalf("wrong locator on empty_value error: %+v", empties[0])
	}

	invalids := findErrors(result, KindInvalidFormat)
	if len(invalids) != 1 {
		t.Fatalf("expected one invalid_format error, got %+v", result.Errors)
	}
	if invalids[0].Row != 4 || invalids[0].Value != "bad-email" {
		t.Fatalf("wrong locator on invalid_format error: %+v", invalids[0])
	}

	want := Stats{TotalRows: 3, TotalColumns: 2, EmptyRows: 0, EmptyColumns: 0}
	if result.Stats != want {
		t.Fatalf("stats = %+v, want %+v", result.Stats, want)
	}
}

func TestValidateDuplicateHeadersWarnOnly(t *testing.T) {
	result := Validate([]byte("name,Name,email\nAna,Anna,a@x.com\n"), parser.FormatCSV, DefaultPolicy())

	if !result.IsValid {
		t.Fatalf("duplicate headers must not fail validation: %+v", result.Errors)
	}
	if len(result.Warnings) != 1 || !strings.Contains(result.Warnings[0], "duplicate header") {
		t.Fatalf("expected a duplicate header warning, got %v", result.Warnings)
	}
}

func TestValidateBlankHeaderIsStructural(t *testing.T) {
	result := Validate([]byte("name,,email\nAna,x,a@x.com\n"), parser.FormatCSV, DefaultPolicy())

	if result.IsValid {
		t.Fatal("blank header must fail validation")
	}
	if len(findErrors(result, KindStructureError)) != 1 {
		t.Fatalf("expected structure_error for blank header, got %+v", result.Errors)
	}
}

func TestValidateRowAndColumnLimits(t *testing.T) {
	policy := DefaultPolicy()
	policy.MaxRows = 2
	policy.MaxColumns = 1

	data := []byte("name,email\nAna,a@x.com\nBob,b@x.com\nCara,c@x.com\n")
	result := Validate(data, parser.FormatCSV, policy)

	if result.IsValid {
		t.Fatal("expected limits to fail validation")
	}
	if got := len(findErrors(result, KindSizeLimit)); got != 2 {
		t.Fatalf("expected row and column limit errors, got %+v", result.Errors)
	}
	// Limit breaches do not short-circuit; stats still computed.
	if result.Stats.TotalRows != 3 {
		t.Fatalf("stats should still be computed: %+v", result.Stats)
	}
}

func TestValidateContentScanStopsAtLimit(t *testing.T) {
	var sb strings.Builder
	sb.WriteString("email\n")
	for i := 0; i < contentScanRowLimit+50; i++ {
		sb.WriteString("not-an-email\n")
	}

	result := Validate([]byte(sb.String()), parser.FormatCSV, DefaultPolicy())

	got := len(findErrors(result, KindInvalidFormat))
	if got != contentScanRowLimit {
		t.Fatalf("content scan should cap at %d rows, got %d errors", contentScanRowLimit, got)
	}
	if result.Stats.TotalRows != contentScanRowLimit+50 {
		t.Fatalf("stats must still count every row: %+v", result.Stats)
	}
}

func TestValidateExplicitRolesOverrideInference(t *testing.T) {
	policy := DefaultPolicy()
	policy.ColumnRoles = map[string]Role{"Email Address": RoleNone}

	result := Validate([]byte("Email Address\nnot-an-email\n"), parser.FormatCSV, policy)
	if !result.IsValid {
		t.Fatalf("explicit RoleNone should disable the email check: %+v", result.Errors)
	}

	policy = DefaultPolicy()
	policy.InferColumnRoles = false
	policy.ColumnRoles = map[string]Role{"contact": RoleEmail}

	result = Validate([]byte("contact\nnot-an-email\n"), parser.FormatCSV, policy)
	if len(findErrors(result, KindInvalidFormat)) != 1 {
		t.Fatalf("explicit RoleEmail should enable the email check: %+v", result.Errors)
	}
}

func TestValidateDateAndNumericChecks(t *testing.T) {
	data := []byte("created_date,price\n2024-01-15,1234.56\nnot-a-date,abc\n")
	result := Validate(data, parser.FormatCSV, DefaultPolicy())

	invalids := findErrors(result, KindInvalidFormat)
	if len(invalids) != 2 {
		t.Fatalf("expected two invalid_format errors, got %+v", result.Errors)
	}
	for _, e := range invalids {
		if e.Row != 3 {
			t.Fatalf("both defects live in row 3: %+v", e)
		}
	}
}

func TestValidateEmptyColumnStat(t *testing.T) {
	result := Validate([]byte("name,notes\nAna,\nBob,\n"), parser.FormatCSV, DefaultPolicy())

	if !result.IsValid {
		t.Fatalf("empty values are allowed by default: %+v", result.Errors)
	}
	if result.Stats.EmptyColumns != 1 {
		t.Fatalf("expected one empty column, got %+v", result.Stats)
	}
}

func TestBounded(t *testing.T) {
	result := Result{}
	for i := 0; i < 8; i++ {
		result.Errors = append(result.Errors, Error{
			Kind:    KindEmptyValue,
			Message: fmt.Sprintf("defect %d", i),
		})
	}

	shown, omitted := result.Bounded(5)
	if len(shown) != 5 || omitted != 3 {
		t.Fatalf("Bounded(5) = %d shown, %d omitted", len(shown), omitted)
	}

	shown, omitted = result.Bounded(10)
	if len(shown) != 8 || omitted != 0 {
		t.Fatalf("Bounded(10) = %d shown, %d omitted", len(shown), omitted)
	}
}

func TestNormalizeNumber(t *testing.T) {
	cases := map[string]bool{
		"1234":       true,
		"1,234.56":   true,
		"1.234,56":   true,
		"1 234,56":   true,
		"-42.5":      true,
		"1,234":      true,
		"abc":        false,
		"12.34.56.7": false,
	}
	for value, want := range cases {
		if got := looksLikeNumber(value); got != want {
			t.Errorf("looksLikeNumber(%q) = %v, want %v", value, got, want)
		}
	}
}
