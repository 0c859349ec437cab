// Package sniffer classifies uploaded statement files and turns them into a
// RawTable of typed cells. It detects the container format (CSV/XLS/XLSX/
// OFX/QIF) from MIME type, extension and content signatures, finds the CSV
// delimiter and header row, and reads spreadsheet workbooks.
package sniffer

import (
	"bytes"
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"errors"
	"net/http"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/extrame/xls"
	"github.com/xuri/excelize/v2"
)

var (
	ErrEmptyFile        = errors.New("file is empty")
	ErrNoHeadersFound   = errors.New("could not find data headers")
	ErrInvalidDelimiter = errors.New("could not detect valid delimiter")
	ErrNoSheets         = errors.New("workbook has no sheets")
)

// Format is the detected container format of an uploaded file.
type Format string

const (
	FormatUnknown Format = "unknown"
	FormatCSV     Format = "csv"
	FormatXLS     Format = "xls"
	FormatXLSX    Format = "xlsx"
	FormatOFX     Format = "ofx"
	FormatQIF     Format = "qif"
)

// FormatDetection carries the classification and the evidence behind it.
type FormatDetection struct {
	Format     Format
	Confidence float64
	Reason     string
}

// CellKind tags the RawTable cell union.
type CellKind int

const (
	CellEmpty CellKind = iota
	CellString
	CellNumber
)

// Cell is one table value. Heterogeneous spreadsheet content is converted to
// this closed union at the parsing boundary; nothing downstream sees raw
// interface{} values.
type Cell struct {
	Kind   CellKind
	Text   string
	Number float64
}

func StringCell(s string) Cell {
	s = strings.TrimSpace(s)
	if s == "" {
		return Cell{Kind: CellEmpty}
	}
	return Cell{Kind: CellString, Text: s}
}

func NumberCell(n float64) Cell { return Cell{Kind: CellNumber, Number: n} }

// Value renders the cell for string-based parsing.
func (c Cell) Value() string {
	switch c.Kind {
	case CellString:
		return c.Text
	case CellNumber:
		return strconv.FormatFloat(c.Number, 'f', -1, 64)
	default:
		return ""
	}
}

func (c Cell) IsEmpty() bool { return c.Kind == CellEmpty }

// RawTable is the 2-D cell grid parsed from one file, with the inferred
// header row. Ephemeral: owned by a single import request.
type RawTable struct {
	Rows      [][]Cell
	HeaderRow int    // index into Rows; -1 when no header row exists
	Delimiter rune   // CSV only
	SheetName string // workbooks only
}

// Headers returns the header row as strings, or nil for headerless tables.
func (t *RawTable) Headers() []string {
	if t.HeaderRow < 0 || t.HeaderRow >= len(t.Rows) {
		return nil
	}
	row := t.Rows[t.HeaderRow]
	out := make([]string, len(row))
	for i, c := range row {
		out[i] = c.Value()
	}
	return out
}

// DataRows returns the rows after the header (or all rows when headerless).
func (t *RawTable) DataRows() [][]Cell {
	start := t.HeaderRow + 1
	if start < 0 {
		start = 0
	}
	if start >= len(t.Rows) {
		return nil
	}
	return t.Rows[start:]
}

// Column collects up to max non-empty values of one data column.
func (t *RawTable) Column(col, max int) []string {
	var out []string
	for _, row := range t.DataRows() {
		if col < 0 || col >= len(row) || row[col].IsEmpty() {
			continue
		}
		out = append(out, row[col].Value())
		if len(out) >= max {
			break
		}
	}
	return out
}

// SampleRows renders up to max data rows as strings, for profile matching
// and for manual-mapping previews.
func (t *RawTable) SampleRows(max int) [][]string {
	data := t.DataRows()
	if len(data) > max {
		data = data[:max]
	}
	out := make([][]string, len(data))
	for i, row := range data {
		out[i] = make([]string, len(row))
		for j, c := range row {
			out[i][j] = c.Value()
		}
	}
	return out
}

// ColumnCount is the widest row width, which tolerates ragged CSV exports.
func (t *RawTable) ColumnCount() int {
	n := 0
	for _, row := range t.Rows {
		if len(row) > n {
			n = len(row)
		}
	}
	return n
}

// Content signatures checked before anything else.
var (
	sigZIP = []byte{0x50, 0x4b, 0x03, 0x04}                         // XLSX (zip container)
	sigOLE = []byte{0xd0, 0xcf, 0x11, 0xe0, 0xa1, 0xb1, 0x1a, 0xe1} // legacy XLS
)

const (
	sigConfidence     = 0.95
	extConfidence     = 0.8
	mimeConfidence    = 0.7
	contentConfidence = 0.6
)

// DetectFormat classifies a file from its declared MIME type, extension and
// content signature. Signature evidence always beats the declared metadata;
// extensions lie and browsers send vnd.ms-excel for plain CSVs.
func DetectFormat(filename, declaredMIME string, data []byte) FormatDetection {
	if len(data) == 0 {
		return FormatDetection{Format: FormatUnknown, Confidence: 0, Reason: "empty file"}
	}

	if bytes.HasPrefix(data, sigZIP) {
		return FormatDetection{Format: FormatXLSX, Confidence: sigConfidence, Reason: "zip container signature"}
	}
	if bytes.HasPrefix(data, sigOLE) {
		return FormatDetection{Format: FormatXLS, Confidence: sigConfidence, Reason: "OLE2 signature"}
	}
	head := data
	if len(head) > 1024 {
		head = head[:1024]
	}
	upperHead := strings.ToUpper(string(head))
	if strings.Contains(upperHead, "OFXHEADER") || strings.Contains(upperHead, "<OFX>") {
		return FormatDetection{Format: FormatOFX, Confidence: sigConfidence, Reason: "OFX header"}
	}
	if strings.HasPrefix(strings.TrimSpace(string(head)), "!Type:") {
		return FormatDetection{Format: FormatQIF, Confidence: sigConfidence, Reason: "QIF type marker"}
	}

	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".csv", ".tsv", ".txt":
		if isTextData(head) {
			return FormatDetection{Format: FormatCSV, Confidence: extConfidence, Reason: "extension " + ext}
		}
	case ".xlsx":
		return FormatDetection{Format: FormatXLSX, Confidence: contentConfidence, Reason: "extension without zip signature"}
	case ".xls":
		// Banks ship CSVs under .xls all the time; trust the content.
		if isTextData(head) {
			return FormatDetection{Format: FormatCSV, Confidence: contentConfidence, Reason: ".xls extension but text content"}
		}
		return FormatDetection{Format: FormatXLS, Confidence: contentConfidence, Reason: "extension .xls"}
	case ".ofx":
		return FormatDetection{Format: FormatOFX, Confidence: extConfidence, Reason: "extension .ofx"}
	case ".qif":
		return FormatDetection{Format: FormatQIF, Confidence: extConfidence, Reason: "extension .qif"}
	}

	switch strings.ToLower(strings.Split(declaredMIME, ";")[0]) {
	case "text/csv", "application/csv", "text/plain":
		if isTextData(head) {
			return FormatDetection{Format: FormatCSV, Confidence: mimeConfidence, Reason: "declared MIME " + declaredMIME}
		}
	case "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":
		return FormatDetection{Format: FormatXLSX, Confidence: mimeConfidence, Reason: "declared MIME"}
	case "application/vnd.ms-excel":
		if isTextData(head) {
			return FormatDetection{Format: FormatCSV, Confidence: contentConfidence, Reason: "vnd.ms-excel with text content"}
		}
		return FormatDetection{Format: FormatXLS, Confidence: contentConfidence, Reason: "declared MIME"}
	}

	if isTextData(head) && looksDelimited(string(head)) {
		return FormatDetection{Format: FormatCSV, Confidence: contentConfidence, Reason: "delimited text content"}
	}
	return FormatDetection{Format: FormatUnknown, Confidence: 0.2, Reason: "no signature, extension or MIME evidence"}
}

// isTextData rejects binary content: null bytes or mostly non-text bytes.
func isTextData(buf []byte) bool {
	if bytes.IndexByte(buf, 0) != -1 {
		return false
	}
	if utf8.Valid(buf) {
		return true
	}
	// Latin-1 statements are not valid UTF-8 but are still text.
	ct := http.DetectContentType(buf)
	return strings.HasPrefix(ct, "text/")
}

func looksDelimited(s string) bool {
	for _, d := range []string{";", ",", "\t", "|"} {
		if strings.Count(s, d) >= 2 {
			return true
		}
	}
	return false
}

// Header keywords used to locate the header row (Spanish first, then the
// English and Portuguese variants seen in real exports).
var headerKeywords = []string{
	"fecha", "f. valor", "fecha valor", "concepto", "descripción", "descripcion",
	"importe", "cantidad", "cargo", "abono", "debe", "haber", "saldo",
	"referencia", "beneficiario", "ordenante",
	"date", "description", "amount", "debit", "credit", "balance", "reference", "payee",
	"data mov", "descrição", "débito", "crédito", "montante", "valor",
}

// DetectOptions overrides header row or delimiter auto-detection.
type DetectOptions struct {
	// HeaderRowIndex is 0-based; -1 auto-detects.
	HeaderRowIndex int
	// Delimiter overrides detection when non-zero.
	Delimiter rune
}

const maxHeaderScan = 20

// ParseCSV reads CSV/TSV bytes into a RawTable, handling BOM and latin-1
// re-encoding, metadata preambles and ragged rows.
func ParseCSV(data []byte, opts *DetectOptions) (*RawTable, error) {
	data = normalizeTextBytes(data)
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, ErrEmptyFile
	}

	lines := strings.Split(string(data), "\n")

	var (
		delimiter rune
		headerRow int
		err       error
	)
	if opts != nil && opts.HeaderRowIndex >= 0 {
		if opts.HeaderRowIndex >= len(lines) {
			return nil, ErrNoHeadersFound
		}
		headerRow = opts.HeaderRowIndex
		delimiter = opts.Delimiter
		if delimiter == 0 {
			delimiter, _ = detectDelimiter(cleanLine(lines[headerRow], headerRow == 0))
			if delimiter == 0 {
				return nil, ErrInvalidDelimiter
			}
		}
	} else {
		delimiter, headerRow, err = findHeaderLine(lines)
		if err != nil {
			return nil, err
		}
		if opts != nil && opts.Delimiter != 0 {
			delimiter = opts.Delimiter
		}
	}

	// Lines are parsed one at a time so blank or malformed preamble lines
	// keep their slot and the header row index stays aligned with the source
	// file. Statement exports do not use quoted multi-line fields.
	table := &RawTable{HeaderRow: headerRow, Delimiter: delimiter}
	for i, line := range lines {
		line = cleanLine(line, i == 0)
		if strings.TrimSpace(line) == "" {
			if i == len(lines)-1 {
				break // trailing newline artifact
			}
			table.Rows = append(table.Rows, nil)
			continue
		}
		reader := csv.NewReader(strings.NewReader(line))
		reader.Comma = delimiter
		reader.LazyQuotes = true
		reader.FieldsPerRecord = -1
		reader.TrimLeadingSpace = true
		record, err := reader.Read()
		if err != nil {
			table.Rows = append(table.Rows, nil)
			continue
		}
		row := make([]Cell, len(record))
		for j, field := range record {
			row[j] = StringCell(field)
		}
		table.Rows = append(table.Rows, row)
	}
	if len(table.DataRows()) == 0 {
		return nil, ErrNoHeadersFound
	}
	return table, nil
}

// ParseXLSX reads the most statement-like sheet of an XLSX workbook.
func ParseXLSX(data []byte) (*RawTable, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	sheet := findStatementSheet(f.GetSheetList())
	if sheet == "" {
		return nil, ErrNoSheets
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrEmptyFile
	}
	table := tableFromStrings(rows)
	table.SheetName = sheet
	return table, nil
}

// ParseXLS reads a legacy BIFF workbook via extrame/xls.
func ParseXLS(data []byte) (*RawTable, error) {
	wb, err := xls.OpenReader(bytes.NewReader(data), "utf-8")
	if err != nil {
		return nil, err
	}
	rows := wb.ReadAllCells(32768)
	if len(rows) == 0 {
		return nil, ErrEmptyFile
	}
	return tableFromStrings(rows), nil
}

func tableFromStrings(rows [][]string) *RawTable {
	table := &RawTable{HeaderRow: -1}
	for _, r := range rows {
		row := make([]Cell, len(r))
		for i, v := range r {
			row[i] = StringCell(v)
		}
		table.Rows = append(table.Rows, row)
	}
	table.HeaderRow = findHeaderRowCells(table.Rows)
	return table
}

// Preferred sheet names, checked case-insensitively before falling back to
// the first sheet.
var statementSheetNames = []string{
	"movimientos", "movimentos", "extracto", "extrato",
	"transactions", "statement", "data", "sheet1", "hoja1",
}

func findStatementSheet(sheets []string) string {
	if len(sheets) == 0 {
		return ""
	}
	for _, preferred := range statementSheetNames {
		for _, s := range sheets {
			if strings.EqualFold(s, preferred) {
				return s
			}
		}
	}
	return sheets[0]
}

// findHeaderLine locates the CSV header row and its delimiter. Lines with
// header keywords win, but only when none of their cells look like data:
// movement descriptions routinely contain words like "abono" or "cargo",
// and a data row must never shadow the real header above it. Without
// keyword evidence the earliest widest line wins.
func findHeaderLine(lines []string) (rune, int, error) {
	bestKeywordIdx, bestKeywordCount := -1, 0
	bestKeywordDelim := rune(0)
	bestKeywordScore := -1

	fallbackIdx, fallbackCount := -1, 0
	fallbackDelim := rune(0)

	for i, line := range lines {
		if i > maxHeaderScan {
			break
		}
		line = cleanLine(line, i == 0)
		if line == "" {
			continue
		}
		delim, count := detectDelimiter(line)
		if count < 1 {
			continue
		}
		lower := strings.ToLower(line)
		matches := 0
		for _, kw := range headerKeywords {
			if strings.Contains(lower, kw) {
				matches++
			}
		}
		if matches > 0 && !looksLikeDataLine(line, delim) {
			score := count*10 + matches
			if score > bestKeywordScore {
				bestKeywordScore = score
				bestKeywordIdx = i
				bestKeywordCount = count
				bestKeywordDelim = delim
			}
		} else if count > fallbackCount {
			fallbackIdx = i
			fallbackCount = count
			fallbackDelim = delim
		}
	}

	if bestKeywordIdx >= 0 && bestKeywordCount >= 2 {
		return bestKeywordDelim, bestKeywordIdx, nil
	}
	if fallbackCount >= 2 {
		return fallbackDelim, fallbackIdx, nil
	}
	return 0, 0, ErrNoHeadersFound
}

// findHeaderRowCells scores workbook rows by header keyword hits. Rows with
// date- or amount-shaped cells are data, never headers. Returns -1 for
// headerless sheets (all rows look like data).
func findHeaderRowCells(rows [][]Cell) int {
	for i, row := range rows {
		if i > maxHeaderScan {
			break
		}
		matches := 0
		dataCells := false
		for _, c := range row {
			lower := strings.ToLower(c.Value())
			if lower == "" {
				continue
			}
			if c.Kind == CellNumber || looksLikeDataCell(lower) {
				dataCells = true
				break
			}
			for _, kw := range headerKeywords {
				if strings.Contains(lower, kw) {
					matches++
					break
				}
			}
		}
		if !dataCells && matches >= 2 {
			return i
		}
	}
	return -1
}

var (
	dateShapedCell   = regexp.MustCompile(`^\d{1,4}[./-]\d{1,2}[./-]\d{1,4}$`)
	amountShapedCell = regexp.MustCompile(`^\(?[+-]?[0-9][0-9.,\x{00a0} ]*\)?-?$`)
)

// looksLikeDataLine reports whether any delimited cell is date- or
// amount-shaped, which disqualifies the line as a header candidate.
func looksLikeDataLine(line string, delim rune) bool {
	for _, field := range strings.Split(line, string(delim)) {
		if looksLikeDataCell(strings.TrimSpace(field)) {
			return true
		}
	}
	return false
}

func looksLikeDataCell(s string) bool {
	if s == "" {
		return false
	}
	s = strings.Trim(s, `"'`)
	return dateShapedCell.MatchString(s) || amountShapedCell.MatchString(s)
}

func detectDelimiter(line string) (rune, int) {
	best := rune(0)
	bestCount := 0
	for _, d := range []rune{';', '\t', ',', '|'} {
		if count := strings.Count(line, string(d)); count > bestCount {
			bestCount = count
			best = d
		}
	}
	return best, bestCount
}

func cleanLine(line string, firstLine bool) string {
	line = strings.TrimRight(line, "\r")
	if firstLine {
		line = strings.TrimPrefix(line, "\ufeff")
	}
	return strings.TrimSpace(line)
}

func normalizeTextBytes(data []byte) []byte {
	if len(data) >= 3 && data[0] == 0xEF && data[1] == 0xBB && data[2] == 0xBF {
		data = data[3:]
	}
	if utf8.Valid(data) {
		return data
	}
	runes := make([]rune, len(data))
	for i, b := range data {
		runes[i] = rune(b)
	}
	return []byte(string(runes))
}

// Fingerprint hashes normalized header names into a stable layout signature.
func Fingerprint(headers []string) string {
	var normalized []string
	for _, h := range headers {
		clean := strings.Map(func(r rune) rune {
			if unicode.IsLetter(r) || unicode.IsDigit(r) {
				return unicode.ToLower(r)
			}
			return -1
		}, h)
		if clean != "" {
			normalized = append(normalized, clean)
		}
	}
	sum := sha256.Sum256([]byte(strings.Join(normalized, "|")))
	return hex.EncodeToString(sum[:])
}
