// Package ofx parses the tag-delimited bank export dialect (OFX/QFX, both the
// SGML flavor and the well-formed XML variant) into raw statements.
package ofx

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/aclindsa/ofxgo"

	"github.com/rumor-ml/commons.systems/bankrecon/internal/domain"
	"github.com/rumor-ml/commons.systems/bankrecon/internal/parser"
)

// Parser implements OFX/QFX parsing with a stateless design.
// The struct has no fields because OFX parsing requires no configuration
// state; all behavior is determined by the file content and the ImportContext.
type Parser struct{}

var parserInstance = &Parser{}

// NewParser returns the shared OFX parser instance.
// Safe for concurrent use due to stateless design.
func NewParser() *Parser {
	return parserInstance
}

// Name returns the parser identifier.
func (p *Parser) Name() string {
	return "ofx"
}

// utf8BOM is stripped before handing content to ofxgo; some exporters prepend it.
var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// CanParse checks if this parser can handle the file based on extension and header.
func (p *Parser) CanParse(path string, header []byte) bool {
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".ofx" && ext != ".qfx" {
		return false
	}

	headerUpper := strings.ToUpper(string(bytes.TrimPrefix(header, utf8BOM)))

	// Look for OFX header markers (both v1 SGML and v2 XML formats)
	return strings.Contains(headerUpper, "OFXHEADER") ||
		strings.Contains(headerUpper, "<?OFX") ||
		strings.Contains(headerUpper, "<OFX>")
}

// Parse extracts raw statements from an OFX/QFX file. Every bank-account and
// credit-card block in the response yields one statement.
func (p *Parser) Parse(ctx context.Context, r io.Reader, ictx *parser.ImportContext) ([]*parser.RawStatement, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read OFX content from %s: %w", ictx.FilePath(), err)
	}
	content = bytes.TrimPrefix(content, utf8BOM)

	// ofxgo.ParseResponse does not support cancellation; check between the
	// read and the parse.
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	response, err := ofxgo.ParseResponse(bytes.NewReader(content))
	if err != nil {
		return nil, &domain.MalformedInputError{
			Dialect: "ofx",
			Message: fmt.Sprintf("%s (%d bytes): %v", filepath.Base(ictx.FilePath()), len(content), err),
		}
	}

	bank := response.Signon.Org.String()

	var statements []*parser.RawStatement

	for i := range response.Bank {
		stmt, ok := response.Bank[i].(*ofxgo.StatementResponse)
		if !ok {
			return nil, fmt.Errorf("unexpected bank statement type %T in %s", response.Bank[i], ictx.FilePath())
		}
		raw, err := p.convertBank(stmt, bank)
		if err != nil {
			return nil, fmt.Errorf("bank block %d in %s: %w", i, ictx.FilePath(), err)
		}
		statements = append(statements, raw)
	}

	for i := range response.CreditCard {
		stmt, ok := response.CreditCard[i].(*ofxgo.CCStatementResponse)
		if !ok {
			return nil, fmt.Errorf("unexpected credit card statement type %T in %s", response.CreditCard[i], ictx.FilePath())
		}
		raw, err := p.convertCreditCard(stmt, bank)
		if err != nil {
			return nil, fmt.Errorf("credit card block %d in %s: %w", i, ictx.FilePath(), err)
		}
		statements = append(statements, raw)
	}

	if len(statements) == 0 {
		return nil, &domain.MalformedInputError{
			Dialect: "ofx",
			Message: fmt.Sprintf("no bank or credit card statement blocks in %s (bank: %d, creditcard: %d, investment: %d)",
				filepath.Base(ictx.FilePath()), len(response.Bank), len(response.CreditCard), len(response.InvStmt)),
		}
	}

	return statements, nil
}

// convertBank converts a bank statement block.
func (p *Parser) convertBank(stmt *ofxgo.StatementResponse, bank string) (*parser.RawStatement, error) {
	accountID := stmt.BankAcctFrom.AcctID.String()
	if accountID == "" {
		return nil, fmt.Errorf("missing account ID in bank statement")
	}
	if stmt.BankTranList == nil {
		return nil, fmt.Errorf("missing transaction list for account %s", accountID)
	}

	transactions, err := p.convertTransactions(stmt.BankTranList.Transactions)
	if err != nil {
		return nil, err
	}

	endBalance, _ := stmt.BalAmt.Float64()
	balanceDate := stmt.DtAsOf.Time
	if balanceDate.IsZero() {
		balanceDate = stmt.BankTranList.DtEnd.Time
	}

	return assemble(bank, accountID, stmt.CurDef.String(), balanceDate, endBalance, transactions), nil
}

// convertCreditCard converts a credit card statement block.
func (p *Parser) convertCreditCard(stmt *ofxgo.CCStatementResponse, bank string) (*parser.RawStatement, error) {
	accountID := stmt.CCAcctFrom.AcctID.String()
	if accountID == "" {
		return nil, fmt.Errorf("missing account ID in credit card statement")
	}
	if stmt.BankTranList == nil {
		return nil, fmt.Errorf("missing transaction list for account %s", accountID)
	}

	transactions, err := p.convertTransactions(stmt.BankTranList.Transactions)
	if err != nil {
		return nil, err
	}

	endBalance, _ := stmt.BalAmt.Float64()
	balanceDate := stmt.DtAsOf.Time
	if balanceDate.IsZero() {
		balanceDate = stmt.BankTranList.DtEnd.Time
	}

	return assemble(bank, accountID, stmt.CurDef.String(), balanceDate, endBalance, transactions), nil
}

// assemble builds the raw statement. OFX carries only the closing balance, so
// the opening balance is derived by backing the transaction net out of it.
// The external statement id is deterministic over (account, balance date)
// because OFX has no native statement number.
func assemble(bank, accountID, currency string, balanceDate time.Time, endBalance float64, transactions []parser.RawTransaction) *parser.RawStatement {
	var net float64
	for i := range transactions {
		net += transactions[i].SignedAmount()
	}

	return &parser.RawStatement{
		Bank:         bank,
		AccountID:    accountID,
		Currency:     currency,
		Date:         balanceDate,
		ExternalID:   fmt.Sprintf("%s-%s", accountID, balanceDate.Format("20060102")),
		StartBalance: endBalance - net,
		EndBalance:   endBalance,
		Transactions: transactions,
	}
}

// convertTransactions converts OFX transactions to raw transactions.
func (p *Parser) convertTransactions(txns []ofxgo.Transaction) ([]parser.RawTransaction, error) {
	out := make([]parser.RawTransaction, 0, len(txns))
	for i, txn := range txns {
		raw, err := convertTransaction(txn)
		if err != nil {
			return nil, fmt.Errorf("transaction at index %d: %w", i, err)
		}
		out = append(out, *raw)
	}
	return out, nil
}

// convertTransaction extracts one OFX transaction.
func convertTransaction(txn ofxgo.Transaction) (*parser.RawTransaction, error) {
	date := txn.DtPosted.Time
	if date.IsZero() {
		date = txn.DtUser.Time
	}
	if date.IsZero() {
		return nil, fmt.Errorf("transaction %s missing both posted date and user date", txn.FiTID.String())
	}

	payee := txn.Name.String()
	if payee == "" {
		payee = txn.Memo.String()
	}
	payee = strings.TrimSpace(payee)
	if payee == "" {
		return nil, fmt.Errorf("transaction %s missing both name and memo", txn.FiTID.String())
	}

	amount, _ := txn.TrnAmt.Float64()

	raw, err := parser.NewRawTransaction(date, payee, amount)
	if err != nil {
		return nil, err
	}

	if id := txn.FiTID.String(); id != "" {
		raw.SetExternalID(id)
	}
	if memo := strings.TrimSpace(txn.Memo.String()); memo != "" {
		raw.SetMemo(memo)
	}
	if ref := txn.CheckNum.String(); ref != "" {
		raw.SetReference(ref)
	} else if ref := txn.RefNum.String(); ref != "" {
		raw.SetReference(ref)
	}

	typeCode, dir, ambiguous := classify(txn, amount)
	if err := raw.Classify(typeCode, dir, ambiguous); err != nil {
		return nil, err
	}

	return raw, nil
}

// classify maps the OFX transaction type to a direction. The file's own type
// vocabulary wins; the amount sign is used only where the vocabulary is known
// to be ambiguous: interest records mislabeled by some institutions,
// transfers, ATM movements, and unknown types.
func classify(txn ofxgo.Transaction, amount float64) (string, domain.Direction, bool) {
	signDir := domain.DirectionCredit
	if amount < 0 {
		signDir = domain.DirectionDebit
	}

	switch txn.TrnType {
	case ofxgo.TrnTypeDebit:
		return "DEBIT", domain.DirectionDebit, false
	case ofxgo.TrnTypeCheck:
		return "CHECK", domain.DirectionDebit, false
	case ofxgo.TrnTypeFee, ofxgo.TrnTypeSrvChg:
		return "FEE", domain.DirectionDebit, false
	case ofxgo.TrnTypePOS:
		return "POS", domain.DirectionDebit, false
	case ofxgo.TrnTypePayment:
		return "PAYMENT", domain.DirectionDebit, false
	case ofxgo.TrnTypeCredit:
		return "CREDIT", domain.DirectionCredit, false
	case ofxgo.TrnTypeDep, ofxgo.TrnTypeDirectDep:
		return "DEPOSIT", domain.DirectionCredit, false
	case ofxgo.TrnTypeInt:
		// Interest is the known trouble spot: some institutions emit credits
		// flagged as debits. Classify by sign and leave the record open for
		// the normalizer heuristic and manual correction.
		return "INTEREST", signDir, true
	case ofxgo.TrnTypeXfer:
		return "TRANSFER", signDir, false
	case ofxgo.TrnTypeATM:
		return "ATM", signDir, false
	default:
		return fmt.Sprintf("UNKNOWN_%v", txn.TrnType), signDir, true
	}
}
