package validation

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rpattn/fileflow/internal/parser"
)

// ErrorKind tags the category of a validation error.
type ErrorKind string

const (
	KindMissingColumns ErrorKind = "missing_columns"
	KindEmptyValue     ErrorKind = "empty_value"
	KindInvalidFormat  ErrorKind = "invalid_format"
	KindSizeLimit      ErrorKind = "size_limit"
	KindStructureError ErrorKind = "structure_error"
)

// Error is one defect found during validation. Row is 1-based and counts
// the header row, so the first data row reports Row 2.
type Error struct {
	Kind     ErrorKind `json:"kind"`
	Message  string    `json:"message"`
	Row      int       `json:"row,omitempty"`
	Column   string    `json:"column,omitempty"`
	Value    string    `json:"value,omitempty"`
	Expected []string  `json:"expected,omitempty"`
	Found    []string  `json:"found,omitempty"`
}

// Stats summarizes the dataset regardless of validity.
type Stats struct {
	TotalRows    int `json:"total_rows"`
	TotalColumns int `json:"total_columns"`
	EmptyRows    int `json:"empty_rows"`
	EmptyColumns int `json:"empty_columns"`
}

// Result is the complete verdict for one validation run. Warnings never
// affect IsValid.
type Result struct {
	IsValid  bool     `json:"is_valid"`
	Errors   []Error  `json:"errors"`
	Warnings []string `json:"warnings"`
	Stats    Stats    `json:"stats"`
}

// Bounded returns up to max errors plus a count of how many were withheld,
// for presentation to callers.
func (r Result) Bounded(max int) ([]Error, int) {
	if max <= 0 || len(r.Errors) <= max {
		return r.Errors, 0
	}
	return r.Errors[:max], len(r.Errors) - max
}

// contentScanRowLimit bounds the per-cell scan so validation latency does
// not grow with arbitrarily large uploads.
const contentScanRowLimit = 1000

var emailPattern = regexp.MustCompile(`^[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}$`)

var dateLayouts = []string{
	time.RFC3339,
	time.RFC3339Nano,
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006/01/02",
	"01/02/2006",
	"02/01/2006",
	"02-01-2006",
	"January 2, 2006",
	"2 January 2006",
}

// Validate inspects the raw upload against the policy and produces a
// structured verdict. Parse failures and the size gate short-circuit;
// every other check runs to completion so the caller sees the full defect
// list alongside stats.
func Validate(payload []byte, format parser.Format, policy Policy) Result {
	result := Result{
		Errors:   []Error{},
		Warnings: []string{},
	}

	maxBytes := policy.MaxFileBytes
	if maxBytes <= 0 {
		maxBytes = DefaultMaxFileBytes
	}
	if int64(len(payload)) > maxBytes {
		result.Errors = append(result.Errors, Error{
			Kind:    KindSizeLimit,
			Message: fmt.Sprintf("file size %d bytes exceeds limit of %d bytes", len(payload), maxBytes),
		})
		return result
	}

	table, err := parser.Parse(format, payload)
	if err != nil {
		result.Errors = append(result.Errors, Error{
			Kind:    KindStructureError,
			Message: fmt.Sprintf("failed to parse file: %v", err),
		})
		return result
	}

	result.Stats.TotalColumns = len(table.Headers)
	result.Stats.TotalRows = len(table.Rows)

	if len(table.Rows) == 0 {
		result.Errors = append(result.Errors, Error{
			Kind:    KindStructureError,
			Message: "file contains no data rows",
		})
		return result
	}

	if policy.MaxRows > 0 && len(table.Rows) > policy.MaxRows {
		result.Errors = append(result.Errors, Error{
			Kind:    KindSizeLimit,
			Message: fmt.Sprintf("row count %d exceeds limit of %d", len(table.Rows), policy.MaxRows),
		})
	}
	if policy.MaxColumns > 0 && len(table.Headers) > policy.MaxColumns {
		result.Errors = append(result.Errors, Error{
			Kind:    KindSizeLimit,
			Message: fmt.Sprintf("column count %d exceeds limit of %d", len(table.Headers), policy.MaxColumns),
		})
	}

	validateHeaders(table.Headers, &result)
	validateRequiredColumns(policy.RequiredColumns, table.Headers, &result)
	scanContent(table, policy, &result)
	computeStats(table, &result.Stats)

	result.IsValid = len(result.Errors) == 0
	return result
}

func validateHeaders(headers []string, result *Result) {
	seen := make(map[string][]int, len(headers))
	for idx, header := range headers {
		if strings.TrimSpace(header) == "" {
			result.Errors = append(result.Errors, Error{
				Kind:    KindStructureError,
				Message: fmt.Sprintf("header cell %d is empty", idx+1),
			})
			continue
		}
		key := strings.ToLower(strings.TrimSpace(header))
		seen[key] = append(seen[key], idx+1)
	}

	for _, header := range headers {
		key := strings.ToLower(strings.TrimSpace(header))
		if positions := seen[key]; len(positions) > 1 {
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("duplicate header %q at columns %v", header, positions))
			delete(seen, key)
		}
	}
}

func validateRequiredColumns(required, headers []string, result *Result) {
	if len(required) == 0 {
		return
	}

	var missing []string
	for _, name := range required {
		want := strings.ToLower(strings.TrimSpace(name))
		matched := false
		for _, header := range headers {
			if strings.Contains(strings.ToLower(header), want) {
				matched = true
				break
			}
		}
		if !matched {
			missing = append(missing, name)
		}
	}

	if len(missing) > 0 {
		result.Errors = append(result.Errors, Error{
			Kind:     KindMissingColumns,
			Message:  fmt.Sprintf("required columns not found: %s", strings.Join(missing, ", ")),
			Expected: append([]string(nil), required...),
			Found:    append([]string(nil), headers...),
		})
	}
}

func scanContent(table parser.Table, policy Policy, result *Result) {
	limit := len(table.Rows)
	if limit > contentScanRowLimit {
		limit = contentScanRowLimit
	}

	roles := make([]Role, len(table.Headers))
	for idx, header := range table.Headers {
		roles[idx] = policy.roleFor(header)
	}

	for rowIdx := 0; rowIdx < limit; rowIdx++ {
		row := table.Rows[rowIdx]
		rowNumber := rowIdx + 2 // 1-based, counting the header row

		for colIdx, header := range table.Headers {
			cell := strings.TrimSpace(row[colIdx])

			if cell == "" {
				if !policy.AllowEmptyValues {
					result.Errors = append(result.Errors, Error{
						Kind:    KindEmptyValue,
						Message: fmt.Sprintf("empty value in row %d, column %q", rowNumber, header),
						Row:     rowNumber,
						Column:  header,
					})
				}
				continue
			}

			switch roles[colIdx] {
			case RoleEmail:
				if policy.EnableEmailCheck && !emailPattern.MatchString(cell) {
					result.Errors = append(result.Errors, Error{
						Kind:    KindInvalidFormat,
						Message: fmt.Sprintf("invalid email in row %d, column %q", rowNumber, header),
						Row:     rowNumber,
						Column:  header,
						Value:   cell,
					})
				}
			case RoleDate:
				if policy.EnableDateCheck && !looksLikeDate(cell) {
					result.Errors = append(result.Errors, Error{
						Kind:    KindInvalidFormat,
						Message: fmt.Sprintf("invalid date in row %d, column %q", rowNumber, header),
						Row:     rowNumber,
						Column:  header,
						Value:   cell,
					})
				}
			case RoleNumeric:
				if policy.EnableNumericCheck && !looksLikeNumber(cell) {
					result.Errors = append(result.Errors, Error{
						Kind:    KindInvalidFormat,
						Message: fmt.Sprintf("invalid number in row %d, column %q", rowNumber, header),
						Row:     rowNumber,
						Column:  header,
						Value:   cell,
					})
				}
			}
		}
	}
}

func looksLikeDate(value string) bool {
	value = strings.TrimSpace(value)
	for _, layout := range dateLayouts {
		if _, err := time.Parse(layout, value); err == nil {
			return true
		}
	}
	return false
}

func looksLikeNumber(value string) bool {
	_, err := strconv.ParseFloat(normalizeNumber(value), 64)
	return err == nil
}

// normalizeNumber strips thousands separators and maps a decimal comma to
// a decimal point so both "1,234.56" and "1.234,56" parse.
func normalizeNumber(value string) string {
	value = strings.TrimSpace(value)
	value = strings.ReplaceAll(value, " ", "")

	dot := strings.LastIndex(value, ".")
	comma := strings.LastIndex(value, ",")

	switch {
	case dot >= 0 && comma >= 0 && comma > dot:
		// European style: dot groups thousands, comma is the decimal mark.
		value = strings.ReplaceAll(value, ".", "")
		value = strings.Replace(value, ",", ".", 1)
	case dot >= 0 && comma >= 0:
		value = strings.ReplaceAll(value, ",", "")
	case comma >= 0 && strings.Count(value, ",") == 1 && len(value)-comma-1 <= 2:
		value = strings.Replace(value, ",", ".", 1)
	case comma >= 0:
		value = strings.ReplaceAll(value, ",", "")
	}

	return value
}

func computeStats(table parser.Table, stats *Stats) {
	for _, row := range table.Rows {
		empty := true
		for _, cell := range row {
			if strings.TrimSpace(cell) != "" {
				empty = false
				break
			}
		}
		if empty {
			stats.EmptyRows++
		}
	}

	for col := range table.Headers {
		empty := true
		for _, row := range table.Rows {
			if strings.TrimSpace(row[col]) != "" {
				empty = false
				break
			}
		}
		if empty {
			stats.EmptyColumns++
		}
	}
}
