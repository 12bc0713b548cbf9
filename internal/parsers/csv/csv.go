// Package csv parses the delimited text bank export dialect. Column names
// vary across exporting institutions and across time; the parser maps several
// known header synonyms onto each logical field.
package csv

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rumor-ml/commons.systems/bankrecon/internal/domain"
	"github.com/rumor-ml/commons.systems/bankrecon/internal/parser"
)

// Parser implements delimited-text parsing with a stateless design.
// Safe for concurrent use; all behavior is determined by the file content and
// the ImportContext.
type Parser struct{}

var parserInstance = &Parser{}

// NewParser returns the shared CSV parser instance.
func NewParser() *Parser {
	return parserInstance
}

// Name returns the parser identifier.
func (p *Parser) Name() string {
	return "csv"
}

// Logical columns recognized in the header row. Matching is case-insensitive
// after trimming; the first synonym present wins.
var headerSynonyms = map[string][]string{
	"valueDate":  {"date", "transaction date", "value date", "trans date"},
	"entryDate":  {"entry date", "posting date", "posted date", "booking date"},
	"amount":     {"amount", "value", "transaction amount", "amt"},
	"debit":      {"debit", "debit amount", "withdrawal", "withdrawals", "money out"},
	"credit":     {"credit", "credit amount", "deposit", "deposits", "money in"},
	"payee":      {"description", "details", "narrative", "payee", "merchant"},
	"memo":       {"memo", "notes", "additional info"},
	"typeCode":   {"type", "transaction type", "dr/cr", "cd"},
	"reference":  {"reference", "ref", "reference number", "cheque number", "check number"},
	"account":    {"account", "account number", "account id"},
	"externalID": {"transaction id", "unique id", "fitid", "id"},
	"currency":   {"currency", "ccy"},
	"bank":       {"bank", "institution"},
}

var dateLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"01/02/2006",
	"1/2/2006",
	"02 Jan 2006",
	"02-Jan-2006",
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// CanParse checks the extension and requires a header row naming at least a
// date column and a payee/description column.
func (p *Parser) CanParse(path string, header []byte) bool {
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".csv" && ext != ".txt" {
		return false
	}

	r := csv.NewReader(bytes.NewReader(bytes.TrimPrefix(header, utf8BOM)))
	r.LazyQuotes = true
	r.TrimLeadingSpace = true
	r.FieldsPerRecord = -1

	record, err := r.Read()
	if err != nil {
		return false
	}

	cols := mapHeader(record)
	_, hasDate := cols["valueDate"]
	_, hasPayee := cols["payee"]
	return hasDate && hasPayee
}

// Parse extracts raw statements from a delimited export. Rows are grouped by
// account; each account yields one statement dated at its latest value date.
func (p *Parser) Parse(ctx context.Context, r io.Reader, ictx *parser.ImportContext) ([]*parser.RawStatement, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	content, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV content from %s: %w", ictx.FilePath(), err)
	}
	content = bytes.TrimPrefix(content, utf8BOM)

	csvReader := csv.NewReader(bytes.NewReader(content))
	csvReader.LazyQuotes = true
	csvReader.TrimLeadingSpace = true
	csvReader.FieldsPerRecord = -1

	records, err := csvReader.ReadAll()
	if err != nil {
		line := 0
		if parseErr, ok := err.(*csv.ParseError); ok {
			line = parseErr.Line
		}
		return nil, &domain.MalformedInputError{Dialect: "csv", Line: line, Message: err.Error()}
	}

	if len(records) < 2 {
		return nil, &domain.MalformedInputError{Dialect: "csv", Line: 1,
			Message: fmt.Sprintf("file %s has no transaction rows", filepath.Base(ictx.FilePath()))}
	}

	cols := mapHeader(records[0])
	if err := requireColumns(cols, filepath.Base(ictx.FilePath())); err != nil {
		return nil, err
	}

	// Group transactions by account column value; empty means the file-level
	// default applies and everything lands in one group.
	type group struct {
		bank, currency string
		transactions   []parser.RawTransaction
		lastDate       time.Time
	}
	groups := make(map[string]*group)

	for i, record := range records[1:] {
		line := i + 2
		if isBlankRow(record) {
			continue
		}

		row := newRow(cols, record)
		raw, err := p.parseRow(row, line)
		if err != nil {
			return nil, err
		}

		account := row.get("account")
		g, ok := groups[account]
		if !ok {
			g = &group{}
			groups[account] = g
		}
		if bank := row.get("bank"); bank != "" {
			g.bank = bank
		}
		if cur := row.get("currency"); cur != "" {
			g.currency = strings.ToUpper(cur)
		}
		if raw.ValueDate().After(g.lastDate) {
			g.lastDate = raw.ValueDate()
		}
		g.transactions = append(g.transactions, *raw)
	}

	accounts := make([]string, 0, len(groups))
	for account := range groups {
		accounts = append(accounts, account)
	}
	sort.Strings(accounts)

	statements := make([]*parser.RawStatement, 0, len(groups))
	for _, account := range accounts {
		g := groups[account]
		externalAccount := account
		if externalAccount == "" {
			externalAccount = "default"
		}
		statements = append(statements, &parser.RawStatement{
			Bank:         g.bank,
			AccountID:    account,
			Currency:     g.currency,
			Date:         g.lastDate,
			ExternalID:   fmt.Sprintf("%s-%s", externalAccount, g.lastDate.Format("20060102")),
			Transactions: g.transactions,
		})
	}

	return statements, nil
}

// parseRow converts a single data row.
func (p *Parser) parseRow(row row, line int) (*parser.RawTransaction, error) {
	valueDate, err := parseDate(row.get("valueDate"))
	if err != nil {
		return nil, &domain.MalformedInputError{Dialect: "csv", Line: line, Message: err.Error()}
	}

	payee := row.get("payee")
	if payee == "" {
		return nil, &domain.MalformedInputError{Dialect: "csv", Line: line, Message: "description cannot be empty"}
	}

	signed, typeCode, dir, ambiguous, err := resolveAmount(row)
	if err != nil {
		return nil, &domain.MalformedInputError{Dialect: "csv", Line: line, Message: err.Error()}
	}

	raw, err := parser.NewRawTransaction(valueDate, payee, signed)
	if err != nil {
		return nil, &domain.MalformedInputError{Dialect: "csv", Line: line, Message: err.Error()}
	}

	if entryStr := row.get("entryDate"); entryStr != "" {
		entryDate, err := parseDate(entryStr)
		if err != nil {
			return nil, &domain.MalformedInputError{Dialect: "csv", Line: line, Message: fmt.Sprintf("entry date: %v", err)}
		}
		raw.SetEntryDate(entryDate)
	}
	if memo := row.get("memo"); memo != "" {
		raw.SetMemo(memo)
	}
	if ref := row.get("reference"); ref != "" {
		raw.SetReference(ref)
	}
	if id := row.get("externalID"); id != "" {
		raw.SetExternalID(id)
	}

	if err := raw.Classify(typeCode, dir, ambiguous); err != nil {
		return nil, &domain.MalformedInputError{Dialect: "csv", Line: line, Message: err.Error()}
	}

	return raw, nil
}

// resolveAmount determines the signed amount and direction for a row. The
// type column wins when present; separate debit/credit columns come next;
// the amount sign is the last resort and is marked ambiguous.
func resolveAmount(row row) (signed float64, typeCode string, dir domain.Direction, ambiguous bool, err error) {
	debitStr := row.get("debit")
	creditStr := row.get("credit")
	amountStr := row.get("amount")

	switch {
	case debitStr != "" && creditStr != "":
		return 0, "", "", false, fmt.Errorf("row carries both debit %q and credit %q", debitStr, creditStr)
	case debitStr != "":
		mag, err := parseAmount(debitStr)
		if err != nil {
			return 0, "", "", false, fmt.Errorf("invalid debit amount %q: %w", debitStr, err)
		}
		return -abs(mag), "DEBIT", domain.DirectionDebit, false, nil
	case creditStr != "":
		mag, err := parseAmount(creditStr)
		if err != nil {
			return 0, "", "", false, fmt.Errorf("invalid credit amount %q: %w", creditStr, err)
		}
		return abs(mag), "CREDIT", domain.DirectionCredit, false, nil
	case amountStr == "":
		return 0, "", "", false, fmt.Errorf("row has neither amount nor debit/credit columns populated")
	}

	amount, err := parseAmount(amountStr)
	if err != nil {
		return 0, "", "", false, fmt.Errorf("invalid amount %q: %w", amountStr, err)
	}

	rawType := strings.ToUpper(row.get("typeCode"))
	switch rawType {
	case "D", "DR", "DEBIT", "W", "WITHDRAWAL":
		return -abs(amount), rawType, domain.DirectionDebit, false, nil
	case "C", "CR", "CREDIT", "DEP", "DEPOSIT":
		return abs(amount), rawType, domain.DirectionCredit, false, nil
	}

	// No usable type vocabulary: fall back to the amount sign.
	dir = domain.DirectionCredit
	if amount < 0 {
		dir = domain.DirectionDebit
	}
	return amount, rawType, dir, true, nil
}

// requireColumns enforces the dialect's structural grammar: a date, a
// description, and some amount representation must be present in the header.
func requireColumns(cols map[string]int, file string) error {
	missing := []string{}
	if _, ok := cols["valueDate"]; !ok {
		missing = append(missing, "date")
	}
	if _, ok := cols["payee"]; !ok {
		missing = append(missing, "description")
	}
	_, hasAmount := cols["amount"]
	_, hasDebit := cols["debit"]
	_, hasCredit := cols["credit"]
	if !hasAmount && !hasDebit && !hasCredit {
		missing = append(missing, "amount (or debit/credit)")
	}
	if len(missing) > 0 {
		return &domain.MalformedInputError{Dialect: "csv", Line: 1,
			Message: fmt.Sprintf("file %s header is missing required columns: %s", file, strings.Join(missing, ", "))}
	}
	return nil
}

// mapHeader maps logical column names to field indexes via the synonym table.
func mapHeader(record []string) map[string]int {
	cols := make(map[string]int)
	for i, cell := range record {
		name := strings.ToLower(strings.TrimSpace(cell))
		for logical, synonyms := range headerSynonyms {
			if _, taken := cols[logical]; taken {
				continue
			}
			for _, syn := range synonyms {
				if name == syn {
					cols[logical] = i
					break
				}
			}
		}
	}
	return cols
}

type row struct {
	cols   map[string]int
	record []string
}

func newRow(cols map[string]int, record []string) row {
	return row{cols: cols, record: record}
}

// get returns the trimmed value for a logical column, or empty when the
// column is absent or the row is short.
func (r row) get(logical string) string {
	idx, ok := r.cols[logical]
	if !ok || idx >= len(r.record) {
		return ""
	}
	return strings.TrimSpace(r.record[idx])
}

func isBlankRow(record []string) bool {
	for _, cell := range record {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}

// parseAmount tolerates currency symbols, thousands separators, and
// parenthesized negatives.
func parseAmount(s string) (float64, error) {
	s = strings.TrimSpace(s)
	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = s[1 : len(s)-1]
	}
	s = strings.TrimLeft(s, "$€£ ")
	s = strings.ReplaceAll(s, ",", "")

	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if negative {
		v = -v
	}
	return v, nil
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
