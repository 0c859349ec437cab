// Package service orchestrates the statement import pipeline: format
// detection, parsing, schema matching, row transformation, deduplication,
// ledger validation and profile learning.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/inmoledger/inmoledger/internal/domain/import/amount"
	"github.com/inmoledger/inmoledger/internal/domain/import/columns"
	"github.com/inmoledger/inmoledger/internal/domain/import/dates"
	"github.com/inmoledger/inmoledger/internal/domain/import/dedup"
	"github.com/inmoledger/inmoledger/internal/domain/import/ledger"
	"github.com/inmoledger/inmoledger/internal/domain/import/model"
	"github.com/inmoledger/inmoledger/internal/domain/import/normalizer"
	"github.com/inmoledger/inmoledger/internal/domain/import/profile"
	"github.com/inmoledger/inmoledger/internal/domain/import/sign"
	"github.com/inmoledger/inmoledger/internal/domain/import/sniffer"
	"github.com/inmoledger/inmoledger/pkg/metrics"
)

// Fatal pipeline errors. Everything else is accumulated into the result.
var (
	ErrUnreadableFile       = errors.New("file is unreadable or corrupt")
	ErrUnsupportedFormat    = errors.New("unsupported file format")
	ErrNoRows               = errors.New("no data rows parsed")
	ErrFormatNotImplemented = errors.New("format recognized but not implemented")
)

// Status is the terminal state of one import.
type Status string

const (
	StatusCompleted    Status = "completed"
	StatusNeedsMapping Status = "needs_mapping"
	StatusFailed       Status = "failed"
)

// minFormatConfidence is the floor below which a format guess is treated as
// unsupported rather than acted on.
const minFormatConfidence = 0.5

const sampleRowsForPreview = 10

// File is an uploaded statement: name, declared MIME type and raw bytes.
type File struct {
	Name string
	MIME string
	Data []byte
}

// MovementStore is the external ledger the importer feeds. Implementations
// own the schema; the importer only needs hash lookup and bulk persistence.
type MovementStore interface {
	ExistingHashes(ctx context.Context, accountID string) ([]string, error)
	SaveMovements(ctx context.Context, accountID string, movements []*model.Movement) error
}

// ImportStatistics summarizes one pipeline run for the caller.
type ImportStatistics struct {
	FileFormat         string  `json:"file_format"`
	TotalRows          int     `json:"total_rows"`
	DataRows           int     `json:"data_rows"`
	SuccessfulParsed   int     `json:"successful_parsed"`
	SkippedRows        int     `json:"skipped_rows"`
	DuplicatesDetected int     `json:"duplicates_detected"`
	ProcessingTimeMs   int64   `json:"processing_time_ms"`
	Locale             string  `json:"locale"`
	DateFormat         string  `json:"date_format"`
	OverallConfidence  float64 `json:"overall_confidence"`
}

// ManualMappingRequest is handed to a mapping-assistant UI when detection is
// not confident enough to proceed. The caller resubmits with Options.Mapping.
type ManualMappingRequest struct {
	Headers     []string        `json:"headers"`
	SampleRows  [][]string      `json:"sample_rows"`
	Detected    *columns.Result `json:"detected"`
	Suggestions []string        `json:"suggestions,omitempty"`
	Ambiguities []string        `json:"ambiguities,omitempty"`
}

// Result is the full outcome of an import run. Fatal failures are returned
// as errors from Import; everything recoverable lands here.
type Result struct {
	Status        Status                `json:"status"`
	Movements     []*model.Movement     `json:"movements,omitempty"`
	Summary       ledger.Summary        `json:"summary"`
	Ledger        *ledger.Report        `json:"ledger,omitempty"`
	Statistics    ImportStatistics      `json:"statistics"`
	Warnings      []string              `json:"warnings,omitempty"`
	Errors        []string              `json:"errors,omitempty"`
	ManualMapping *ManualMappingRequest `json:"manual_mapping,omitempty"`
	ProfileID     string                `json:"profile_id,omitempty"`
}

// AnalyzeResult is the dry-run view: what would the importer do with this
// file, without transforming any rows.
type AnalyzeResult struct {
	Format       sniffer.FormatDetection `json:"format"`
	Headers      []string                `json:"headers"`
	SampleRows   [][]string              `json:"sample_rows"`
	Detection    *columns.Result         `json:"detection"`
	ProfileMatch *profile.MatchResult    `json:"profile_match,omitempty"`
	CanAutoRun   bool                    `json:"can_auto_run"`
}

// Options lets callers override detection on resubmission.
type Options struct {
	AccountID string
	BankName  string
	// Mapping, when set, bypasses schema detection entirely. Used by the
	// manual-mapping flow.
	Mapping             *columns.Mapping
	OpeningBalanceCents *int64
}

// Importer runs the pipeline. Profile service is required; the movement
// store is optional and enables cross-batch dedup and persistence.
type Importer struct {
	profiles  *profile.Service
	movements MovementStore
	logger    *slog.Logger
}

// NewImporter wires an importer. logger may be nil.
func NewImporter(profiles *profile.Service, logger *slog.Logger) *Importer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Importer{profiles: profiles, logger: logger}
}

// WithMovementStore adds persistence and cross-batch dedup.
func (im *Importer) WithMovementStore(store MovementStore) *Importer {
	im.movements = store
	return im
}

// Analyze inspects a file without importing: format, schema guess, profile
// hit, and whether an unattended import could run.
func (im *Importer) Analyze(ctx context.Context, file File) (*AnalyzeResult, error) {
	table, format, err := im.parseTable(file, false)
	if err != nil {
		return nil, err
	}

	headers := table.Headers()
	det := columns.Detect(table)

	res := &AnalyzeResult{
		Format:     format,
		Headers:    headers,
		SampleRows: table.SampleRows(sampleRowsForPreview),
		Detection:  det,
	}

	match, err := im.profiles.Find(ctx, sniffer.Fingerprint(headers), sampleHash(table), headers)
	if err != nil {
		im.logger.Warn("profile lookup failed", "error", err)
	} else if match != nil {
		res.ProfileMatch = match
	}
	res.CanAutoRun = res.ProfileMatch != nil || !det.ManualMappingNeeded
	return res, nil
}

// Import runs the whole pipeline on one file. The returned error is non-nil
// only for the fatal cases; schema problems come back as StatusNeedsMapping
// and row/consistency/persistence problems as warnings and errors in the
// result.
func (im *Importer) Import(ctx context.Context, file File, opts Options) (*Result, error) {
	start := time.Now()

	table, format, err := im.parseTable(file, opts.Mapping != nil)
	if err != nil {
		metrics.ImportsTotal.WithLabelValues(string(StatusFailed), string(format.Format)).Inc()
		return nil, err
	}

	res := &Result{
		Statistics: ImportStatistics{
			FileFormat: string(format.Format),
			TotalRows:  len(table.Rows),
			DataRows:   len(table.DataRows()),
		},
	}

	headers := table.Headers()
	fingerprint := sniffer.Fingerprint(headers)
	det := columns.Detect(table)

	// Schema resolution: explicit mapping beats stored profile beats fresh
	// detection. Only fresh detection can demand manual mapping.
	mapping := det.Mapping
	dateFormat := det.DateFormat.Format
	var matched *profile.MatchResult
	switch {
	case opts.Mapping != nil:
		mapping = *opts.Mapping
		if err := mapping.Validate(); err != nil {
			return nil, fmt.Errorf("explicit mapping: %w", err)
		}
	default:
		matched, err = im.profiles.Find(ctx, fingerprint, sampleHash(table), headers)
		if err != nil {
			res.Warnings = append(res.Warnings, fmt.Sprintf("profile lookup failed: %v", err))
		}
		if matched != nil {
			metrics.ProfileMatches.WithLabelValues(matched.Method).Inc()
			mapping = matched.Profile.Mapping
			dateFormat = matched.Profile.DateFormat
			res.ProfileID = matched.Profile.ID
		} else {
			metrics.ProfileMatches.WithLabelValues("miss").Inc()
			if det.ManualMappingNeeded {
				res.Status = StatusNeedsMapping
				res.ManualMapping = buildMappingRequest(table, det)
				res.Statistics.ProcessingTimeMs = time.Since(start).Milliseconds()
				metrics.ImportsTotal.WithLabelValues(string(StatusNeedsMapping), string(format.Format)).Inc()
				return res, nil
			}
		}
	}

	res.Statistics.Locale = det.Locale.Family()
	res.Statistics.DateFormat = dateFormat
	res.Statistics.OverallConfidence = det.Overall

	movements, rowErrs := im.transformRows(ctx, table, mapping, dateFormat, opts.AccountID)
	res.Statistics.SuccessfulParsed = len(movements)
	res.Statistics.SkippedRows = len(rowErrs)
	for _, re := range rowErrs {
		res.Errors = append(res.Errors, re.Error())
	}
	metrics.RowsProcessed.WithLabelValues("imported").Add(float64(len(movements)))
	metrics.RowsProcessed.WithLabelValues("skipped").Add(float64(len(rowErrs)))

	if len(movements) == 0 {
		metrics.ImportsTotal.WithLabelValues(string(StatusFailed), string(format.Format)).Inc()
		return nil, fmt.Errorf("%w: %d rows, %d skipped", ErrNoRows, res.Statistics.DataRows, len(rowErrs))
	}

	var existing []string
	if im.movements != nil && opts.AccountID != "" {
		existing, err = im.movements.ExistingHashes(ctx, opts.AccountID)
		if err != nil {
			res.Warnings = append(res.Warnings, fmt.Sprintf("could not fetch existing hashes: %v", err))
		}
	}
	zeroed := 0
	for _, m := range movements {
		if m.Cents == 0 {
			zeroed++
		}
	}
	if zeroed > 0 {
		res.Warnings = append(res.Warnings, fmt.Sprintf("%d movements have a zero amount", zeroed))
	}

	movements, dropped := dedup.Deduplicate(movements, existing)
	res.Statistics.DuplicatesDetected = dropped
	metrics.RowsProcessed.WithLabelValues("duplicate").Add(float64(dropped))

	model.SortByDate(movements)

	rep := ledger.Validate(movements, opts.OpeningBalanceCents)
	res.Ledger = rep
	switch rep.Outcome {
	case ledger.OutcomeReconstructed:
		res.Warnings = append(res.Warnings,
			fmt.Sprintf("balance column inconsistent in %d of %d rows; balances reconstructed from amounts",
				len(rep.Violations), rep.CheckedRows))
	case ledger.OutcomeManualReview:
		res.Warnings = append(res.Warnings,
			fmt.Sprintf("balance mismatches in %d of %d rows; review recommended", len(rep.Violations), rep.CheckedRows))
	}
	res.Summary = ledger.Summarize(movements, rep.OpeningCents)
	res.Movements = movements

	if im.movements != nil && opts.AccountID != "" {
		if err := im.movements.SaveMovements(ctx, opts.AccountID, movements); err != nil {
			metrics.ImportsTotal.WithLabelValues(string(StatusFailed), string(format.Format)).Inc()
			return nil, fmt.Errorf("persist movements: %w", err)
		}
	}

	// Profile learning is best-effort: a store failure never fails the import.
	if opts.Mapping != nil || matched == nil {
		p := profile.New(opts.BankName, fingerprint, sampleHash(table), headers, det)
		p.Mapping = mapping
		if dateFormat != "" {
			p.DateFormat = dateFormat
		}
		if err := im.profiles.Learn(ctx, p); err != nil {
			res.Warnings = append(res.Warnings, fmt.Sprintf("could not save bank profile: %v", err))
		} else {
			res.ProfileID = p.ID
		}
	}

	res.Status = StatusCompleted
	res.Statistics.ProcessingTimeMs = time.Since(start).Milliseconds()
	metrics.ImportsTotal.WithLabelValues(string(StatusCompleted), string(format.Format)).Inc()
	metrics.ImportDuration.Observe(time.Since(start).Seconds())

	im.logger.Info("import completed",
		slog.String("bank", bankGuess(opts.BankName, matched)),
		slog.String("format", string(format.Format)),
		slog.Int("rows_total", res.Statistics.DataRows),
		slog.Int("rows_imported", len(movements)),
		slog.Int("rows_skipped", res.Statistics.SkippedRows),
		slog.Int("duplicates", dropped),
		slog.String("mapped_roles", mappedRoles(mapping)),
		slog.String("locale", res.Statistics.Locale))
	return res, nil
}

// parseTable decodes the file into a RawTable, enforcing the fatal cases.
// explicitMapping marks a manual-mapping resubmission: the caller already
// knows the column layout, so a failed header search falls back to treating
// the first line as the header instead of aborting.
func (im *Importer) parseTable(file File, explicitMapping bool) (*sniffer.RawTable, sniffer.FormatDetection, error) {
	format := sniffer.DetectFormat(file.Name, file.MIME, file.Data)
	if format.Confidence < minFormatConfidence || format.Format == sniffer.FormatUnknown {
		return nil, format, fmt.Errorf("%w: %s (%s)", ErrUnsupportedFormat, format.Format, format.Reason)
	}

	var (
		table *sniffer.RawTable
		err   error
	)
	switch format.Format {
	case sniffer.FormatCSV:
		table, err = sniffer.ParseCSV(file.Data, nil)
		if err != nil && explicitMapping && errors.Is(err, sniffer.ErrNoHeadersFound) {
			table, err = sniffer.ParseCSV(file.Data, &sniffer.DetectOptions{HeaderRowIndex: 0})
		}
	case sniffer.FormatXLSX:
		table, err = sniffer.ParseXLSX(file.Data)
	case sniffer.FormatXLS:
		table, err = sniffer.ParseXLS(file.Data)
	case sniffer.FormatOFX, sniffer.FormatQIF:
		return nil, format, fmt.Errorf("%w: %s", ErrFormatNotImplemented, format.Format)
	default:
		return nil, format, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format.Format)
	}
	if err != nil {
		return nil, format, fmt.Errorf("%w: %v", ErrUnreadableFile, err)
	}
	if len(table.DataRows()) == 0 {
		return nil, format, ErrNoRows
	}
	return table, format, nil
}

// RowError is a recoverable per-row failure: the row is skipped, counted and
// reported, never silently dropped.
type RowError struct {
	Row   int
	Field string
	Value string
	Msg   string
}

func (e *RowError) Error() string {
	return fmt.Sprintf("row %d: %s %q: %s", e.Row, e.Field, e.Value, e.Msg)
}

// transformRows converts data rows to movements in parallel. Results are
// collected by row index so the output order matches the file order exactly,
// which keeps first-occurrence-wins dedup deterministic.
func (im *Importer) transformRows(ctx context.Context, table *sniffer.RawTable, mapping columns.Mapping, dateFormat, accountID string) ([]*model.Movement, []*RowError) {
	data := table.DataRows()
	firstRowNum := table.HeaderRow + 2 // 1-indexed source line of the first data row

	type slot struct {
		m   *model.Movement
		err *RowError
	}
	slots := make([]slot, len(data))

	workerCount := runtime.GOMAXPROCS(0)
	if workerCount < 1 {
		workerCount = 1
	}
	jobs := make(chan int, workerCount*4)

	var wg sync.WaitGroup
	for w := 0; w < workerCount; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				if ctx.Err() != nil {
					return
				}
				m, rerr := transformRow(data[i], mapping, dateFormat, accountID, firstRowNum+i)
				slots[i] = slot{m: m, err: rerr}
			}
		}()
	}
	for i := range data {
		if ctx.Err() != nil {
			break
		}
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	var movements []*model.Movement
	var rowErrs []*RowError
	for _, s := range slots {
		switch {
		case s.err != nil:
			rowErrs = append(rowErrs, s.err)
		case s.m != nil:
			movements = append(movements, s.m)
		}
	}
	return movements, rowErrs
}

// transformRow builds one movement. Returns (nil, nil) for blank rows, which
// are neither imported nor counted as failures.
func transformRow(row []sniffer.Cell, mapping columns.Mapping, dateFormat, accountID string, rowNum int) (*model.Movement, *RowError) {
	if rowIsBlank(row) {
		return nil, nil
	}
	cell := func(idx int) string {
		if idx < 0 || idx >= len(row) {
			return ""
		}
		return row[idx].Value()
	}

	rawDate := cell(mapping.Date)
	if rawDate == "" {
		return nil, &RowError{Row: rowNum, Field: "date", Value: rawDate, Msg: "empty required cell"}
	}
	date, ok := parseDate(rawDate, dateFormat)
	if !ok {
		return nil, &RowError{Row: rowNum, Field: "date", Value: rawDate, Msg: "unparseable date"}
	}

	var d sign.Derivation
	if mapping.IsDoubleEntry() {
		d = sign.FromDoubleEntry(cell(mapping.Debit), cell(mapping.Credit))
	} else {
		d = sign.FromSingleColumn(cell(mapping.Amount))
	}
	if !d.OK {
		raw := cell(mapping.Amount)
		if mapping.IsDoubleEntry() {
			raw = cell(mapping.Debit) + "/" + cell(mapping.Credit)
		}
		return nil, &RowError{Row: rowNum, Field: "amount", Value: raw, Msg: "unparseable amount"}
	}

	m := &model.Movement{
		AccountID:    accountID,
		Date:         date,
		Cents:        d.Cents,
		Description:  normalizer.CleanDescription(cell(mapping.Description)),
		Counterparty: normalizer.CleanDescription(cell(mapping.Counterparty)),
		Reference:    cell(mapping.Reference),
		SourceRow:    rowNum,
		Confidence:   d.Confidence,
	}
	if raw := cell(mapping.Balance); raw != "" {
		if r := amount.ParseToCents(raw); r.OK {
			v := r.Cents
			m.BalanceCents = &v
		}
	}
	m.Hash = dedup.HashMovement(m)
	return m, nil
}

// parseDate prefers the remembered format and falls back to the catalog for
// stray cells that do not fit it.
func parseDate(raw, format string) (time.Time, bool) {
	if format != "" {
		if t, ok := dates.ParseAs(raw, format); ok {
			return t, true
		}
	}
	return dates.Parse(raw)
}

func rowIsBlank(row []sniffer.Cell) bool {
	for _, c := range row {
		if !c.IsEmpty() {
			return false
		}
	}
	return true
}

func buildMappingRequest(table *sniffer.RawTable, det *columns.Result) *ManualMappingRequest {
	req := &ManualMappingRequest{
		Headers:     table.Headers(),
		SampleRows:  table.SampleRows(sampleRowsForPreview),
		Detected:    det,
		Ambiguities: det.Conflicts,
	}
	for _, a := range det.Columns {
		if a.Role != columns.RoleUnknown {
			req.Suggestions = append(req.Suggestions,
				fmt.Sprintf("column %d (%s): %s (%.0f%%, %s)", a.Index, a.Header, a.Role, a.Confidence*100, a.Reason))
		}
	}
	return req
}

// sampleHash digests the first data rows so identical exports match even
// when the bank ships no headers.
func sampleHash(table *sniffer.RawTable) string {
	rows := table.SampleRows(3)
	var flat []string
	for _, r := range rows {
		flat = append(flat, r...)
	}
	if len(flat) == 0 {
		return ""
	}
	return sniffer.Fingerprint(flat)
}

func bankGuess(explicit string, matched *profile.MatchResult) string {
	if explicit != "" {
		return explicit
	}
	if matched != nil {
		return matched.Profile.DisplayName()
	}
	return "unknown"
}

func mappedRoles(m columns.Mapping) string {
	out := ""
	add := func(name string, idx int) {
		if idx >= 0 {
			if out != "" {
				out += ","
			}
			out += name
		}
	}
	add("date", m.Date)
	add("value_date", m.ValueDate)
	add("description", m.Description)
	add("counterparty", m.Counterparty)
	add("amount", m.Amount)
	add("debit", m.Debit)
	add("credit", m.Credit)
	add("balance", m.Balance)
	add("reference", m.Reference)
	return out
}
