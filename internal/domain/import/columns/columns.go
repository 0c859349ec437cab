// Package columns classifies spreadsheet columns into semantic roles (date,
// description, debit, credit, amount, balance, ...) by combining header
// keyword matching with content heuristics. Content evidence wins over
// headers for financial columns; mislabeled headers are common.
package columns

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/inmoledger/inmoledger/internal/domain/import/amount"
	"github.com/inmoledger/inmoledger/internal/domain/import/dates"
	"github.com/inmoledger/inmoledger/internal/domain/import/locale"
	"github.com/inmoledger/inmoledger/internal/domain/import/normalizer"
	"github.com/inmoledger/inmoledger/internal/domain/import/sniffer"
)

// Role is the semantic function of one table column.
type Role string

const (
	RoleDate         Role = "date"
	RoleValueDate    Role = "value_date"
	RoleDescription  Role = "description"
	RoleCounterparty Role = "counterparty"
	RoleDebit        Role = "debit"
	RoleCredit       Role = "credit"
	RoleAmount       Role = "amount"
	RoleBalance      Role = "balance"
	RoleReference    Role = "reference"
	RoleUnknown      Role = "unknown"
)

// Assignment is the classification of a single column.
type Assignment struct {
	Index      int      `json:"index"`
	Header     string   `json:"header,omitempty"`
	Role       Role     `json:"role"`
	Confidence float64  `json:"confidence"`
	Reason     string   `json:"reason"`
	Samples    []string `json:"samples,omitempty"`
}

// Mapping indexes the roles into the raw table. -1 means unset.
type Mapping struct {
	Date         int `json:"date"`
	ValueDate    int `json:"value_date"`
	Description  int `json:"description"`
	Counterparty int `json:"counterparty"`
	Amount       int `json:"amount"`
	Debit        int `json:"debit"`
	Credit       int `json:"credit"`
	Balance      int `json:"balance"`
	Reference    int `json:"reference"`
}

// NewMapping returns a mapping with every role unset.
func NewMapping() Mapping {
	return Mapping{Date: -1, ValueDate: -1, Description: -1, Counterparty: -1,
		Amount: -1, Debit: -1, Credit: -1, Balance: -1, Reference: -1}
}

// Validate enforces the structural minimum: a date column, a description
// column, and either a single amount column or at least one debit/credit.
func (m Mapping) Validate() error {
	if m.Date < 0 {
		return fmt.Errorf("mapping has no date column")
	}
	if m.Description < 0 {
		return fmt.Errorf("mapping has no description column")
	}
	if m.Amount < 0 && m.Debit < 0 && m.Credit < 0 {
		return fmt.Errorf("mapping has no amount, debit or credit column")
	}
	return nil
}

// IsDoubleEntry reports whether the mapping uses split debit/credit columns.
func (m Mapping) IsDoubleEntry() bool { return m.Amount < 0 && (m.Debit >= 0 || m.Credit >= 0) }

// Result is the full schema detection outcome for one table.
type Result struct {
	Columns             []Assignment            `json:"columns"`
	Mapping             Mapping                 `json:"mapping"`
	Locale              locale.NumberLocale     `json:"locale"`
	DateFormat          dates.DetectionResult   `json:"date_format"`
	Overall             float64                 `json:"overall_confidence"`
	Conflicts           []string                `json:"conflicts,omitempty"`
	ManualMappingNeeded bool                    `json:"manual_mapping_needed"`
}

const (
	headerMatchConfidence = 0.9
	agreementBoost        = 0.1
	maxCombinedConfidence = 0.95

	contentSampleSize = 20
	contentThreshold  = 0.6 // fraction of samples that must agree

	balanceProgressionRatio     = 0.6
	balanceProgressionTolerance = 0.5 // relative step tolerance between balances

	minOverallConfidence = 0.8

	descriptionMinAvgLen = 15.0
	descriptionMinUnique = 0.8
)

// Header keywords per role, pre-normalized (lowercase, unaccented). Longest
// match wins, so "fecha valor" resolves to value date, not date.
var roleKeywords = map[Role][]string{
	RoleValueDate: {"fecha valor", "f. valor", "f valor", "value date", "data valor", "fecha de valor"},
	RoleDate: {"fecha", "fecha operacion", "f. operacion", "fecha contable", "fecha mov",
		"date", "data", "data mov", "datum", "dia"},
	RoleDescription: {"concepto", "descripcion", "detalle", "observaciones",
		"description", "descricao", "memo", "narrative", "details"},
	RoleCounterparty: {"beneficiario", "ordenante", "contrapartida", "titular",
		"payee", "counterparty", "merchant", "entidad"},
	RoleDebit: {"debe", "cargo", "debito", "adeudo", "cargos", "pagos", "salidas",
		"debit", "withdrawal", "money out"},
	RoleCredit: {"haber", "abono", "credito", "abonos", "ingresos", "entradas",
		"credit", "deposit", "money in"},
	RoleAmount: {"importe", "cantidad", "monto", "movimiento", "montante",
		"amount", "valor", "value", "montant"},
	RoleBalance:   {"saldo", "saldo disponible", "saldo actual", "balance", "running balance"},
	RoleReference: {"referencia", "ref", "numero documento", "documento", "reference", "ref."},
}

var (
	ibanPattern  = regexp.MustCompile(`^[A-Z]{2}\d{2}[A-Z0-9]{10,30}$`)
	refIDPattern = regexp.MustCompile(`^[A-Z0-9][A-Z0-9\-/.]{4,}$`)
)

// Detect classifies every column of the table and assembles the best-guess
// mapping, the file locale and the date format.
func Detect(table *sniffer.RawTable) *Result {
	headers := table.Headers()
	colCount := table.ColumnCount()

	res := &Result{Mapping: NewMapping()}

	// Locale is a one-shot inference over every numeric-looking cell; it must
	// be fixed before any amount is parsed.
	res.Locale = locale.Detect(collectNumericSamples(table, colCount))

	for col := 0; col < colCount; col++ {
		header := ""
		if col < len(headers) {
			header = headers[col]
		}
		samples := table.Column(col, contentSampleSize)
		a := classifyColumn(col, header, samples)
		res.Columns = append(res.Columns, a)
	}

	res.assembleMapping()
	res.validate()

	if res.Mapping.Date >= 0 {
		res.DateFormat = dates.Detect(table.Column(res.Mapping.Date, contentSampleSize))
	} else {
		res.DateFormat = dates.DetectionResult{}
	}

	total := 0.0
	for _, a := range res.Columns {
		total += a.Confidence
	}
	if len(res.Columns) > 0 {
		res.Overall = total / float64(len(res.Columns))
	}
	res.ManualMappingNeeded = res.Overall < minOverallConfidence || len(res.Conflicts) > 0
	return res
}

// classifyColumn combines header and content evidence for one column.
func classifyColumn(idx int, header string, samples []string) Assignment {
	a := Assignment{Index: idx, Header: header, Role: RoleUnknown}

	headerRole, headerOK := matchHeader(header)
	contentRole, contentConf, contentReason := classifyContent(samples)

	switch {
	case headerOK && contentRole != RoleUnknown && compatible(headerRole, contentRole):
		a.Role = headerRole
		a.Confidence = combined((headerMatchConfidence + contentConf) / 2)
		a.Reason = fmt.Sprintf("header %q and content agree", header)
	case headerOK && contentRole != RoleUnknown:
		// Data beats possibly-mislabeled headers for financial columns.
		if isFinancialRole(contentRole) {
			a.Role = contentRole
			a.Confidence = contentConf
			a.Reason = fmt.Sprintf("content (%s) overrides header %q", contentReason, header)
		} else {
			a.Role = headerRole
			a.Confidence = headerMatchConfidence
			a.Reason = fmt.Sprintf("header %q over weak content evidence", header)
		}
	case headerOK:
		a.Role = headerRole
		a.Confidence = headerMatchConfidence
		a.Reason = fmt.Sprintf("header %q", header)
	case contentRole != RoleUnknown:
		a.Role = contentRole
		a.Confidence = contentConf
		a.Reason = contentReason
	default:
		a.Reason = "no header or content evidence"
	}

	if len(samples) > 5 {
		samples = samples[:5]
	}
	a.Samples = samples
	return a
}

// compatible reports whether content evidence supports the header role even
// when the detected role differs. Generic numeric evidence cannot tell debit
// from credit from amount, so the header decides; a value-date column parses
// as plain dates.
func compatible(header, content Role) bool {
	if header == content {
		return true
	}
	switch header {
	case RoleAmount, RoleDebit, RoleCredit, RoleBalance:
		return content == RoleAmount || content == RoleCredit || content == RoleDebit
	case RoleValueDate:
		return content == RoleDate
	}
	return false
}

func isFinancialRole(r Role) bool {
	switch r {
	case RoleAmount, RoleDebit, RoleCredit, RoleBalance, RoleDate:
		return true
	}
	return false
}

func combined(avg float64) float64 {
	v := avg + agreementBoost
	if v > maxCombinedConfidence {
		return maxCombinedConfidence
	}
	return v
}

// matchHeader resolves a header to a role; the longest keyword hit across
// all roles wins.
func matchHeader(header string) (Role, bool) {
	h := normalizer.NormalizeHeader(header)
	if h == "" {
		return RoleUnknown, false
	}
	bestRole := RoleUnknown
	bestLen := 0
	for role, keywords := range roleKeywords {
		for _, kw := range keywords {
			if h == kw {
				// Exact match beats any substring hit.
				if len(kw)+100 > bestLen {
					bestRole, bestLen = role, len(kw)+100
				}
			} else if strings.Contains(h, kw) && len(kw) > bestLen {
				bestRole, bestLen = role, len(kw)
			}
		}
	}
	return bestRole, bestRole != RoleUnknown
}

// classifyContent infers a role from cell values alone.
func classifyContent(samples []string) (Role, float64, string) {
	if len(samples) == 0 {
		return RoleUnknown, 0, ""
	}
	n := float64(len(samples))

	dateHits := 0
	for _, s := range samples {
		if _, ok := dates.Parse(s); ok {
			dateHits++
		}
	}
	if frac := float64(dateHits) / n; frac >= contentThreshold {
		return RoleDate, capAt(frac, 0.9), fmt.Sprintf("%d/%d cells parse as dates", dateHits, len(samples))
	}

	var values []float64
	numericHits := 0
	positives, negatives := 0, 0
	for _, s := range samples {
		if r := amount.ParseToCents(s); r.OK {
			numericHits++
			v := amount.Euros(r.Cents)
			values = append(values, v)
			if v < 0 {
				negatives++
			} else if v > 0 {
				positives++
			}
		}
	}
	if frac := float64(numericHits) / n; frac >= contentThreshold {
		switch {
		case isBalanceProgression(values):
			return RoleBalance, capAt(frac, 0.85), "values progress like a running balance"
		case negatives > 0 && positives > 0:
			return RoleAmount, capAt(frac, 0.85), "mixed-sign numeric values"
		case negatives == 0 && positives > 0:
			return RoleCredit, capAt(frac*0.9, 0.75), "all-positive numeric values"
		default:
			return RoleAmount, capAt(frac*0.9, 0.75), "numeric values"
		}
	}

	refHits := 0
	for _, s := range samples {
		up := normalizer.NormalizeReference(s)
		if ibanPattern.MatchString(up) || (refIDPattern.MatchString(up) && strings.IndexFunc(up, isDigitRune) >= 0) {
			refHits++
		}
	}
	if frac := float64(refHits) / n; frac >= contentThreshold {
		return RoleReference, capAt(frac*0.8, 0.7), "IBAN/identifier-like values"
	}

	// Free text: long, mostly unique strings read like descriptions; short
	// repetitive ones like counterparties.
	totalLen := 0
	unique := map[string]struct{}{}
	for _, s := range samples {
		totalLen += len(s)
		unique[strings.ToLower(s)] = struct{}{}
	}
	avgLen := float64(totalLen) / n
	uniqueRatio := float64(len(unique)) / n
	if avgLen >= descriptionMinAvgLen || uniqueRatio >= descriptionMinUnique {
		return RoleDescription, 0.6, fmt.Sprintf("free text (avg len %.0f, uniqueness %.2f)", avgLen, uniqueRatio)
	}
	return RoleCounterparty, 0.5, fmt.Sprintf("short repetitive text (avg len %.0f)", avgLen)
}

// isBalanceProgression checks whether value triples track each other the way
// a running balance does: each value stays close to the one predicted from
// the two before it. Amount columns jump around and fail this.
func isBalanceProgression(values []float64) bool {
	if len(values) < 3 {
		return false
	}
	consistent := 0
	triples := 0
	for i := 2; i < len(values); i++ {
		triples++
		predicted := values[i-2] + (values[i-1] - values[i-2])
		scale := maxFloat(absFloat(values[i]), absFloat(predicted), 1)
		if absFloat(values[i]-predicted)/scale <= balanceProgressionTolerance {
			consistent++
		}
	}
	return float64(consistent)/float64(triples) >= balanceProgressionRatio
}

// assembleMapping picks the highest-confidence column per role.
func (r *Result) assembleMapping() {
	best := map[Role]int{}
	conf := map[Role]float64{}
	for _, a := range r.Columns {
		if a.Role == RoleUnknown {
			continue
		}
		if prev, ok := best[a.Role]; ok {
			// Duplicate unique-role claims are schema conflicts.
			if a.Role == RoleDate || a.Role == RoleBalance {
				r.Conflicts = append(r.Conflicts,
					fmt.Sprintf("columns %d and %d both classified as %s", prev, a.Index, a.Role))
			}
			if a.Confidence <= conf[a.Role] {
				continue
			}
		}
		best[a.Role] = a.Index
		conf[a.Role] = a.Confidence
	}

	set := func(dst *int, role Role) {
		if idx, ok := best[role]; ok {
			*dst = idx
		}
	}
	set(&r.Mapping.Date, RoleDate)
	set(&r.Mapping.ValueDate, RoleValueDate)
	set(&r.Mapping.Description, RoleDescription)
	set(&r.Mapping.Counterparty, RoleCounterparty)
	set(&r.Mapping.Amount, RoleAmount)
	set(&r.Mapping.Debit, RoleDebit)
	set(&r.Mapping.Credit, RoleCredit)
	set(&r.Mapping.Balance, RoleBalance)
	set(&r.Mapping.Reference, RoleReference)

	// A lone value-date column can stand in for the missing movement date.
	if r.Mapping.Date < 0 && r.Mapping.ValueDate >= 0 {
		r.Mapping.Date = r.Mapping.ValueDate
	}
}

func (r *Result) validate() {
	if r.Mapping.Date < 0 {
		r.Conflicts = append(r.Conflicts, "no date column detected")
	}
	if r.Mapping.Amount < 0 && r.Mapping.Debit < 0 && r.Mapping.Credit < 0 {
		r.Conflicts = append(r.Conflicts, "no amount, debit or credit column detected")
	}
}

// collectNumericSamples gathers amount-looking cells across the table for
// the one-shot locale inference.
func collectNumericSamples(table *sniffer.RawTable, colCount int) []string {
	var samples []string
	for col := 0; col < colCount; col++ {
		for _, s := range table.Column(col, contentSampleSize) {
			if looksNumeric(s) {
				samples = append(samples, s)
			}
		}
	}
	return samples
}

func looksNumeric(s string) bool {
	digits := 0
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			digits++
		case r == ',' || r == '.' || r == '-' || r == '+' || r == '(' || r == ')' ||
			r == ' ' || r == '\u00a0' || r == '€':
		default:
			return false
		}
	}
	return digits > 0
}

func isDigitRune(r rune) bool { return r >= '0' && r <= '9' }

func capAt(v, max float64) float64 {
	if v > max {
		return max
	}
	return v
}

func absFloat(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func maxFloat(vs ...float64) float64 {
	m := vs[0]
	for _, v := range vs[1:] {
		if v > m {
			m = v
		}
	}
	return m
}
