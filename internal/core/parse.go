package core

import (
	"bytes"
	"encoding/csv"
	"errors"
	"io"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Format is an input file format.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatTSV  Format = "tsv"
	FormatXLSX Format = "xlsx"
)

const (
	mimeXLSX     = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	mimeLegacyXL = "application/vnd.ms-excel"
)

var (
	magicZip = []byte("PK\x03\x04")
	magicOLE = []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}
)

// DetectFormat picks the parser for a file from its extension, then its
// declared MIME type, then its leading bytes.
func DetectFormat(fileName, mimeType string, data []byte) (Format, error) {
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".csv", ".txt":
		return FormatCSV, nil
	case ".tsv", ".tab":
		return FormatTSV, nil
	case ".xlsx", ".xlsm":
		return FormatXLSX, nil
	case ".xls":
		return "", &ParseError{Reason: "unsupported file format: legacy .xls, save as .xlsx or .csv"}
	}

	mt := strings.ToLower(strings.TrimSpace(mimeType))
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = strings.TrimSpace(mt[:i])
	}
	switch mt {
	case "text/csv", "application/csv", "text/plain":
		return FormatCSV, nil
	case "text/tab-separated-values":
		return FormatTSV, nil
	case mimeXLSX:
		return FormatXLSX, nil
	}

	switch {
	case bytes.HasPrefix(data, magicZip):
		return FormatXLSX, nil
	case bytes.HasPrefix(data, magicOLE):
		return "", &ParseError{Reason: "unsupported file format: legacy .xls, save as .xlsx or .csv"}
	case mt == "" || mt == mimeLegacyXL || mt == "application/octet-stream":
		if looksLikeText(data) {
			return FormatCSV, nil
		}
	}

	return "", &ParseError{Reason: "unsupported file format " + describe(fileName, mimeType)}
}

// Parse turns an uploaded file into a RawTable. The first non-empty row is
// the header; blank rows are skipped.
func Parse(data []byte, fileName, mimeType string) (*RawTable, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, &ParseError{Reason: "empty file"}
	}

	format, err := DetectFormat(fileName, mimeType, data)
	if err != nil {
		return nil, err
	}

	var rows []RawRow
	switch format {
	case FormatXLSX:
		rows, err = readSpreadsheet(data)
	case FormatTSV:
		rows, err = readDelimited(data, '\t')
	default:
		rows, err = readDelimited(data, 0)
	}
	if err != nil {
		return nil, err
	}

	table, err := buildTable(rows)
	if err != nil {
		return nil, err
	}
	table.Format = format
	return table, nil
}

// readDelimited reads delimited text. A zero delimiter is sniffed from the
// first line.
func readDelimited(data []byte, delim rune) ([]RawRow, error) {
	src, err := io.ReadAll(textReader(data))
	if err != nil {
		return nil, &ParseError{Reason: "unreadable text file", Err: err}
	}
	if delim == 0 {
		delim = sniffDelimiter(src)
	}

	r := csv.NewReader(bytes.NewReader(src))
	r.Comma = delim
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	var rows []RawRow
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, &ParseError{Reason: "unreadable text file", Err: err}
		}
		line, _ := r.FieldPos(0)
		rows = append(rows, RawRow{Line: line, Cells: rec})
	}
	return rows, nil
}

// readSpreadsheet reads the first sheet of a workbook as displayed strings.
func readSpreadsheet(data []byte) ([]RawRow, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, &ParseError{Reason: "unreadable spreadsheet", Err: err}
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, &ParseError{Reason: "empty file: workbook has no sheets"}
	}

	records, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, &ParseError{Reason: "unreadable spreadsheet", Err: err}
	}

	rows := make([]RawRow, 0, len(records))
	for i, rec := range records {
		rows = append(rows, RawRow{Line: i + 1, Cells: rec})
	}
	return rows, nil
}

func buildTable(rows []RawRow) (*RawTable, error) {
	headerAt := -1
	for i, row := range rows {
		if !isEmptyRow(row.Cells) {
			headerAt = i
			break
		}
	}
	if headerAt < 0 {
		return nil, &ParseError{Reason: "no header row"}
	}

	headers := make([]string, len(rows[headerAt].Cells))
	for i, h := range rows[headerAt].Cells {
		headers[i] = strings.TrimSpace(h)
	}
	for len(headers) > 0 && headers[len(headers)-1] == "" {
		headers = headers[:len(headers)-1]
	}

	table := &RawTable{Headers: headers}
	for _, row := range rows[headerAt+1:] {
		if isEmptyRow(row.Cells) {
			continue
		}
		table.Rows = append(table.Rows, row)
	}
	if len(table.Rows) == 0 {
		return nil, &ParseError{Reason: "no data rows below the header"}
	}

	return table, nil
}

func isEmptyRow(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// sniffDelimiter picks the most frequent of comma, semicolon and tab in the
// first non-blank line. Comma wins ties.
func sniffDelimiter(src []byte) rune {
	var line []byte
	for len(src) > 0 {
		line = src
		if i := bytes.IndexByte(src, '\n'); i >= 0 {
			line, src = src[:i], src[i+1:]
		} else {
			src = nil
		}
		if len(bytes.TrimSpace(line)) > 0 {
			break
		}
	}

	best, bestCount := ',', bytes.Count(line, []byte{','})
	for _, d := range []rune{';', '\t'} {
		if n := bytes.Count(line, []byte(string(d))); n > bestCount {
			best, bestCount = d, n
		}
	}
	return best
}

// looksLikeText reports whether the start of data has no NUL bytes, which
// rules out binary containers but allows UTF-16 with a BOM.
func looksLikeText(data []byte) bool {
	if bytes.HasPrefix(data, bomUTF16LE) || bytes.HasPrefix(data, bomUTF16BE) {
		return true
	}
	head := data
	if len(head) > 512 {
		head = head[:512]
	}
	return bytes.IndexByte(head, 0) < 0
}

func describe(fileName, mimeType string) string {
	switch {
	case fileName != "" && mimeType != "":
		return "(" + fileName + ", " + mimeType + ")"
	case fileName != "":
		return "(" + fileName + ")"
	case mimeType != "":
		return "(" + mimeType + ")"
	default:
		return ""
	}
}
