// Package telex parses the fixed-structure telex-style export used by some
// interbank networks: a line-oriented, tag-per-line format in the MT940
// family. Each tagged line starts with ":NN:"; untagged lines continue the
// preceding :86: information field.
package telex

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rumor-ml/commons.systems/bankrecon/internal/domain"
	"github.com/rumor-ml/commons.systems/bankrecon/internal/parser"
)

// Parser implements telex parsing with a stateless design.
// Safe for concurrent use; all behavior is determined by the file content and
// the ImportContext.
type Parser struct{}

var parserInstance = &Parser{}

// NewParser returns the shared telex parser instance.
func NewParser() *Parser {
	return parserInstance
}

// Name returns the parser identifier.
func (p *Parser) Name() string {
	return "telex"
}

// CanParse checks the extension and requires the transaction reference tag
// near the start of the file.
func (p *Parser) CanParse(path string, header []byte) bool {
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".sta" && ext != ".mt940" && ext != ".940" && ext != ".txt" {
		return false
	}
	head := strings.TrimPrefix(string(header), "\xEF\xBB\xBF")
	return strings.Contains(head, ":20:") && strings.Contains(head, ":25:")
}

// statementLinePattern matches the :61: statement line:
// value date, optional entry date, debit/credit mark (with reversal prefix),
// optional funds code letter, comma-decimal amount, and the type code with
// the trailing reference.
var statementLinePattern = regexp.MustCompile(
	`^(\d{6})(\d{4})?(R?[DC])([A-Z])?(\d+,\d*)N([A-Z0-9]{3})(.*)$`)

// balancePattern matches :60F:/:62F: balance lines.
var balancePattern = regexp.MustCompile(`^([DC])(\d{6})([A-Z]{3})(\d+,\d*)$`)

// block accumulates one statement while scanning.
type block struct {
	externalID   string
	bank         string
	accountID    string
	sequence     string
	currency     string
	date         time.Time
	startBalance float64
	endBalance   float64
	hasOpening   bool
	hasClosing   bool
	transactions []parser.RawTransaction
	pending      *parser.RawTransaction
}

// Parse extracts raw statements from a telex export. A file may carry several
// statement blocks, each introduced by :20:.
func (p *Parser) Parse(ctx context.Context, r io.Reader, ictx *parser.ImportContext) ([]*parser.RawStatement, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	var statements []*parser.RawStatement
	var current *block

	flush := func(line int) error {
		if current == nil {
			return nil
		}
		stmt, err := current.finish(line)
		if err != nil {
			return err
		}
		statements = append(statements, stmt)
		current = nil
		return nil
	}

	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimRight(scanner.Text(), "\r")
		if lineNo == 1 {
			line = strings.TrimPrefix(line, "\xEF\xBB\xBF")
		}
		if strings.TrimSpace(line) == "" {
			continue
		}
		// A single "-" terminates a message block.
		if line == "-" {
			if err := flush(lineNo); err != nil {
				return nil, err
			}
			continue
		}

		tag, value, tagged := splitTag(line)
		if !tagged {
			// Continuation of the preceding :86: information field; embedded
			// newlines inside descriptions arrive this way.
			if current == nil || current.pending == nil {
				return nil, malformed(lineNo, "continuation line outside an information field")
			}
			appendInfo(current.pending, strings.TrimSpace(line))
			continue
		}

		switch tag {
		case "20":
			if err := flush(lineNo); err != nil {
				return nil, err
			}
			current = &block{externalID: strings.TrimSpace(value)}
		case "25":
			if current == nil {
				return nil, malformed(lineNo, ":25: before :20:")
			}
			current.bank, current.accountID = splitAccount(value)
		case "28C", "28":
			if current == nil {
				return nil, malformed(lineNo, ":28C: before :20:")
			}
			current.sequence = strings.TrimSpace(value)
		case "60F", "60M":
			if current == nil {
				return nil, malformed(lineNo, ":60F: before :20:")
			}
			_, currency, amount, err := parseBalance(value)
			if err != nil {
				return nil, malformed(lineNo, err.Error())
			}
			current.currency = currency
			current.startBalance = amount
			current.hasOpening = true
		case "62F", "62M":
			if current == nil {
				return nil, malformed(lineNo, ":62F: before :20:")
			}
			date, currency, amount, err := parseBalance(value)
			if err != nil {
				return nil, malformed(lineNo, err.Error())
			}
			if current.currency == "" {
				current.currency = currency
			}
			current.date = date
			current.endBalance = amount
			current.hasClosing = true
		case "61":
			if current == nil {
				return nil, malformed(lineNo, ":61: before :20:")
			}
			current.commitPending()
			raw, err := parseStatementLine(value, lineNo)
			if err != nil {
				return nil, err
			}
			current.pending = raw
		case "86":
			if current == nil || current.pending == nil {
				return nil, malformed(lineNo, ":86: without a preceding :61: line")
			}
			appendInfo(current.pending, strings.TrimSpace(value))
		default:
			// Unknown tags (e.g. :64:, :65: available balances) are skipped;
			// they do not affect the staging model.
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read telex content from %s: %w", ictx.FilePath(), err)
	}

	if err := flush(lineNo); err != nil {
		return nil, err
	}

	if len(statements) == 0 {
		return nil, malformed(1, fmt.Sprintf("file %s contains no statement blocks", filepath.Base(ictx.FilePath())))
	}

	return statements, nil
}

// finish validates and converts an accumulated block.
func (b *block) finish(line int) (*parser.RawStatement, error) {
	b.commitPending()

	if b.accountID == "" {
		return nil, malformed(line, fmt.Sprintf("statement %s is missing the :25: account identification", b.externalID))
	}
	if !b.hasOpening || !b.hasClosing {
		return nil, malformed(line, fmt.Sprintf("statement %s is missing balance lines (:60F:/:62F:)", b.externalID))
	}

	externalID := b.externalID
	if externalID == "" {
		externalID = fmt.Sprintf("%s-%s", b.accountID, b.date.Format("20060102"))
	}

	return &parser.RawStatement{
		Bank:         b.bank,
		AccountID:    b.accountID,
		Currency:     b.currency,
		Date:         b.date,
		Sequence:     b.sequence,
		ExternalID:   externalID,
		StartBalance: b.startBalance,
		EndBalance:   b.endBalance,
		Transactions: b.transactions,
	}, nil
}

func (b *block) commitPending() {
	if b.pending != nil {
		b.transactions = append(b.transactions, *b.pending)
		b.pending = nil
	}
}

// parseStatementLine converts a :61: line into a raw transaction.
func parseStatementLine(value string, line int) (*parser.RawTransaction, error) {
	m := statementLinePattern.FindStringSubmatch(strings.TrimSpace(value))
	if m == nil {
		return nil, malformed(line, fmt.Sprintf("unparseable :61: line %q", value))
	}

	valueDate, err := time.Parse("060102", m[1])
	if err != nil {
		return nil, malformed(line, fmt.Sprintf("invalid value date in :61: line: %v", err))
	}

	entryDate := valueDate
	if m[2] != "" {
		// Entry date carries month and day only; the year comes from the
		// value date, adjusting across a year boundary.
		ed, err := time.Parse("20060102", fmt.Sprintf("%04d%s", valueDate.Year(), m[2]))
		if err != nil {
			return nil, malformed(line, fmt.Sprintf("invalid entry date in :61: line: %v", err))
		}
		if valueDate.Month() == time.January && ed.Month() == time.December {
			ed = ed.AddDate(-1, 0, 0)
		} else if valueDate.Month() == time.December && ed.Month() == time.January {
			ed = ed.AddDate(1, 0, 0)
		}
		entryDate = ed
	}

	amount, err := parseCommaAmount(m[5])
	if err != nil {
		return nil, malformed(line, fmt.Sprintf("invalid amount in :61: line: %v", err))
	}

	mark := m[3]
	dir := domain.DirectionCredit
	switch mark {
	case "D", "RC": // RC reverses a credit, so money leaves the account
		dir = domain.DirectionDebit
	case "C", "RD":
		dir = domain.DirectionCredit
	}

	signed := amount
	if dir == domain.DirectionDebit {
		signed = -amount
	}

	typeCode := "N" + m[6]
	reference := strings.TrimSpace(m[7])
	var bankRef string
	if idx := strings.Index(reference, "//"); idx >= 0 {
		bankRef = strings.TrimSpace(reference[idx+2:])
		reference = strings.TrimSpace(reference[:idx])
	}
	if reference == "NONREF" {
		reference = ""
	}

	// The payee starts as the reference line; :86: information replaces it
	// when present.
	payee := reference
	if payee == "" {
		payee = typeCode
	}

	raw, err := parser.NewRawTransaction(valueDate, payee, signed)
	if err != nil {
		return nil, malformed(line, err.Error())
	}
	raw.SetEntryDate(entryDate)
	if reference != "" {
		raw.SetReference(reference)
	}
	if bankRef != "" {
		raw.SetExternalID(bankRef)
	}

	// The D/C mark is authoritative in this dialect except for interest,
	// where some institutions mislabel credits as debits.
	ambiguous := m[6] == "INT"
	if err := raw.Classify(typeCode, dir, ambiguous); err != nil {
		return nil, malformed(line, err.Error())
	}

	return raw, nil
}

// appendInfo folds an :86: information line (or continuation) into the
// pending transaction. The first information line becomes the description,
// replacing the reference placeholder; later lines accumulate in the memo.
func appendInfo(raw *parser.RawTransaction, info string) {
	if info == "" {
		return
	}
	if raw.Payee() == raw.Reference() || raw.Payee() == raw.TypeCode() {
		raw.SetPayee(info)
		return
	}
	if raw.Memo() == "" {
		raw.SetMemo(info)
	} else {
		raw.SetMemo(raw.Memo() + " " + info)
	}
}

// splitTag splits ":NN:value" lines.
func splitTag(line string) (tag, value string, ok bool) {
	if !strings.HasPrefix(line, ":") {
		return "", "", false
	}
	rest := line[1:]
	idx := strings.Index(rest, ":")
	if idx <= 0 {
		return "", "", false
	}
	return rest[:idx], rest[idx+1:], true
}

// splitAccount splits the :25: account identification. The optional bank code
// precedes the account number, separated by "/".
func splitAccount(value string) (bank, account string) {
	value = strings.TrimSpace(value)
	if idx := strings.Index(value, "/"); idx >= 0 {
		return strings.TrimSpace(value[:idx]), strings.TrimSpace(value[idx+1:])
	}
	return "", value
}

// parseBalance parses :60F:/:62F: lines: D/C mark, YYMMDD date, currency,
// comma-decimal amount. Debit balances are negative.
func parseBalance(value string) (time.Time, string, float64, error) {
	m := balancePattern.FindStringSubmatch(strings.TrimSpace(value))
	if m == nil {
		return time.Time{}, "", 0, fmt.Errorf("unparseable balance line %q", value)
	}
	date, err := time.Parse("060102", m[2])
	if err != nil {
		return time.Time{}, "", 0, fmt.Errorf("invalid balance date: %v", err)
	}
	amount, err := parseCommaAmount(m[4])
	if err != nil {
		return time.Time{}, "", 0, fmt.Errorf("invalid balance amount: %v", err)
	}
	if m[1] == "D" {
		amount = -amount
	}
	return date, m[3], amount, nil
}

// parseCommaAmount parses the dialect's comma-decimal amounts ("1234,56").
func parseCommaAmount(s string) (float64, error) {
	s = strings.ReplaceAll(s, ",", ".")
	if strings.HasSuffix(s, ".") {
		s += "0"
	}
	return strconv.ParseFloat(s, 64)
}

func malformed(line int, msg string) *domain.MalformedInputError {
	return &domain.MalformedInputError{Dialect: "telex", Line: line, Message: msg}
}
