package parser

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
)

var (
	// ErrUnsupportedFormat is returned when an uploaded file is not supported.
	ErrUnsupportedFormat = errors.New("unsupported file format")

	byteOrderMark = []byte{0xEF, 0xBB, 0xBF}
)

// Format identifies the tabular encodings the parser understands.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
	FormatJSON Format = "json"
)

// Table is the normalized row/column representation of an uploaded file.
// Every row carries exactly len(Headers) cells.
type Table struct {
	Headers []string
	Rows    [][]string
}

// DetectFormat resolves the parse format from the upload's file name and
// declared content type. The content type wins when it is unambiguous;
// text/plain and unknown types fall back to the file extension.
func DetectFormat(fileName, contentType string) (Format, error) {
	mediaType := strings.ToLower(strings.TrimSpace(contentType))
	if idx := strings.Index(mediaType, ";"); idx >= 0 {
		mediaType = strings.TrimSpace(mediaType[:idx])
	}

	switch mediaType {
	case "text/csv":
		return FormatCSV, nil
	case "application/json":
		return FormatJSON, nil
	case "application/vnd.ms-excel",
		"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":
		return FormatXLSX, nil
	}

	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".csv":
		return FormatCSV, nil
	case ".xlsx", ".xls":
		return FormatXLSX, nil
	case ".json":
		return FormatJSON, nil
	}

	return "", fmt.Errorf("%w: %s (%s)", ErrUnsupportedFormat, fileName, contentType)
}

// Parse decodes raw upload bytes into a Table. It performs no I/O beyond
// reading the payload and never evaluates spreadsheet formulas.
func Parse(format Format, payload []byte) (Table, error) {
	switch format {
	case FormatCSV:
		return parseCSV(payload)
	case FormatXLSX:
		return parseExcel(payload)
	case FormatJSON:
		return parseJSON(payload)
	default:
		return Table{}, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
}

func parseCSV(payload []byte) (Table, error) {
	reader := bufio.NewReader(bytes.NewReader(payload))
	if prefix, err := reader.Peek(len(byteOrderMark)); err == nil && bytes.Equal(prefix, byteOrderMark) {
		_, _ = reader.Discard(len(byteOrderMark))
	}

	csvReader := csv.NewReader(reader)
	csvReader.TrimLeadingSpace = true
	csvReader.FieldsPerRecord = -1

	records, err := csvReader.ReadAll()
	if err != nil {
		return Table{}, fmt.Errorf("failed to read csv: %w", err)
	}

	return normalizeTable(records)
}

func parseExcel(payload []byte) (Table, error) {
	f, err := excelize.OpenReader(bytes.NewReader(payload))
	if err != nil {
		return Table{}, fmt.Errorf("failed to open spreadsheet: %w", err)
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return Table{}, errors.New("spreadsheet has no sheets")
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return Table{}, fmt.Errorf("failed to read rows from spreadsheet: %w", err)
	}

	return normalizeTable(rows)
}

func parseJSON(payload []byte) (Table, error) {
	var elements []json.RawMessage
	if err := json.Unmarshal(payload, &elements); err != nil {
		return Table{}, fmt.Errorf("json payload must be an array of objects: %w", err)
	}
	if len(elements) == 0 {
		return Table{}, errors.New("json payload must be a non-empty array of objects")
	}

	// Header order follows the first element's key insertion order.
	headers, err := objectKeys(elements[0])
	if err != nil {
		return Table{}, err
	}
	if len(headers) == 0 {
		return Table{}, errors.New("first json object has no keys")
	}

	rows := make([][]string, 0, len(elements))
	for idx, element := range elements {
		var record map[string]any
		if err := json.Unmarshal(element, &record); err != nil {
			return Table{}, fmt.Errorf("json array element %d is not an object: %w", idx+1, err)
		}
		row := make([]string, len(headers))
		for col, key := range headers {
			if value, ok := record[key]; ok {
				row[col] = cellString(value)
			}
		}
		rows = append(rows, row)
	}

	return Table{Headers: headers, Rows: rows}, nil
}

// objectKeys reads the keys of a JSON object in document order.
func objectKeys(raw json.RawMessage) ([]string, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))

	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("failed to read json object: %w", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, errors.New("json array elements must be objects")
	}

	var keys []string
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("failed to read json object key: %w", err)
		}
		key, ok := keyTok.(string)
		if !ok {
			return nil, errors.New("unexpected token in json object")
		}
		keys = append(keys, key)

		var skip json.RawMessage
		if err := dec.Decode(&skip); err != nil {
			return nil, fmt.Errorf("failed to read json object value: %w", err)
		}
	}

	return keys, nil
}

func cellString(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(encoded)
	}
}

func normalizeTable(records [][]string) (Table, error) {
	var headerRow []string
	var dataRows [][]string

	for _, row := range records {
		if rowBlank(row) {
			continue
		}
		if headerRow == nil {
			headerRow = row
			continue
		}
		dataRows = append(dataRows, row)
	}

	if headerRow == nil {
		return Table{}, errors.New("no header row detected")
	}

	headers := make([]string, len(headerRow))
	for i, value := range headerRow {
		headers[i] = strings.TrimSpace(value)
	}

	for i := range dataRows {
		dataRows[i] = padRow(dataRows[i], len(headers))
	}

	return Table{Headers: headers, Rows: dataRows}, nil
}

func rowBlank(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

func padRow(row []string, length int) []string {
	if len(row) >= length {
		return row[:length]
	}
	padded := make([]string, length)
	copy(padded, row)
	return padded
}
