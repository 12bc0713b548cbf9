package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/rumor-ml/commons.systems/bankrecon/internal/domain"
	"github.com/rumor-ml/commons.systems/bankrecon/internal/ledger"
	"github.com/rumor-ml/commons.systems/bankrecon/internal/logger"
	"github.com/rumor-ml/commons.systems/bankrecon/internal/match"
	"github.com/rumor-ml/commons.systems/bankrecon/internal/normalize"
	"github.com/rumor-ml/commons.systems/bankrecon/internal/output"
	"github.com/rumor-ml/commons.systems/bankrecon/internal/parser"
	"github.com/rumor-ml/commons.systems/bankrecon/internal/pipeline"
	"github.com/rumor-ml/commons.systems/bankrecon/internal/registry"
	"github.com/rumor-ml/commons.systems/bankrecon/internal/scanner"
	"github.com/rumor-ml/commons.systems/bankrecon/internal/staging"
	"github.com/rumor-ml/commons.systems/bankrecon/internal/transfer"
	"github.com/rumor-ml/commons.systems/bankrecon/internal/ui"
	"github.com/rumor-ml/commons.systems/bankrecon/internal/vendors"
)

const version = "0.1.0"

var (
	versionFlag = flag.Bool("version", false, "Show version")

	dbPath      = flag.String("db", "bankrecon.db", "Staging database path")
	vendorsFile = flag.String("vendors", "", "Vendor directory YAML (default: embedded)")
	verbose     = flag.Bool("verbose", false, "Show debug logs")

	// Import flags
	importPath   = flag.String("import", "", "Import a bank export file or directory")
	defaultsFile = flag.String("defaults", "", "YAML file with import defaults (bank/account/currency)")
	defaultBank  = flag.String("bank", "", "Default bank when the file omits one")
	defaultAcct  = flag.String("account", "", "Default account when the file omits one")
	defaultCur   = flag.String("currency", "", "Default currency when the file omits one")
	reportFile   = flag.String("report", "", "Write the import report JSON here (default: stdout)")

	// Reconciliation flags
	matchID     = flag.Int64("match", 0, "List ledger candidates for a staged transaction id")
	transferIDs = flag.String("transfer", "", "Post two staged transaction ids as a transfer (e.g. 12,34)")
	toggleID    = flag.Int64("toggle", 0, "Flip the direction flag of a staged transaction id")
	resetRef    = flag.String("reset", "", "Reset records posted under a voided ledger ref (e.g. TRANSFER:7)")
	registerAcc = flag.String("register-account", "", "Register a ledger bank account (id,number,name,currency)")
)

func main() {
	flag.Usage = func() {
		fmt.Fprint(os.Stderr, `bankrecon - Bank export reconciliation pipeline

Usage:
  bankrecon [flags]

Flags:
`)
		flag.PrintDefaults()
		fmt.Fprint(os.Stderr, `
Examples:
  # Import every export under a directory
  bankrecon -import ~/exports -bank ANZ -currency USD

  # Find ledger candidates for a staged record
  bankrecon -match 12

  # Post two staged records as one transfer
  bankrecon -transfer 12,34

  # Correct a misclassified direction flag
  bankrecon -toggle 12

`)
	}

	flag.Parse()

	if *versionFlag {
		fmt.Printf("bankrecon version %s\n", version)
		os.Exit(0)
	}

	if err := run(); err != nil {
		ui.Error(err.Error())
		os.Exit(1)
	}
}

type app struct {
	repo   *staging.Repository
	ledger *ledger.SQLite
	pipe   *pipeline.Pipeline
}

func run() error {
	ctx := context.Background()
	log := logger.New(*verbose)

	db, err := staging.OpenDatabase(*dbPath)
	if err != nil {
		return err
	}
	defer db.Close()

	repo, err := staging.NewRepository(db, log)
	if err != nil {
		return err
	}
	books, err := ledger.NewSQLite(db, log)
	if err != nil {
		return err
	}

	dir, err := loadVendors()
	if err != nil {
		return err
	}

	a := &app{
		repo:   repo,
		ledger: books,
		pipe:   pipeline.New(registry.New(), normalize.New(dir), repo, log),
	}

	switch {
	case *importPath != "":
		return a.runImport(ctx)
	case *matchID != 0:
		return a.runMatch(ctx, log)
	case *transferIDs != "":
		return a.runTransfer(ctx, log)
	case *toggleID != 0:
		return a.runToggle(ctx)
	case *resetRef != "":
		return a.runReset(ctx)
	case *registerAcc != "":
		return a.runRegisterAccount(ctx)
	default:
		flag.Usage()
		return fmt.Errorf("no operation given")
	}
}

func loadVendors() (*vendors.Directory, error) {
	if *vendorsFile != "" {
		return vendors.LoadFromFile(*vendorsFile)
	}
	return vendors.LoadEmbedded()
}

// importDefaults is the shape of the -defaults YAML file. Explicit flags win
// over file values.
type importDefaults struct {
	Bank     string `yaml:"bank"`
	Account  string `yaml:"account"`
	Currency string `yaml:"currency"`
}

func loadImportDefaults() error {
	if *defaultsFile == "" {
		return nil
	}
	data, err := os.ReadFile(*defaultsFile)
	if err != nil {
		return fmt.Errorf("cannot read defaults file: %w", err)
	}
	var d importDefaults
	if err := yaml.Unmarshal(data, &d); err != nil {
		return fmt.Errorf("cannot parse defaults file %s: %w", *defaultsFile, err)
	}
	if *defaultBank == "" {
		*defaultBank = d.Bank
	}
	if *defaultAcct == "" {
		*defaultAcct = d.Account
	}
	if *defaultCur == "" {
		*defaultCur = d.Currency
	}
	return nil
}

func (a *app) runImport(ctx context.Context) error {
	ui.Header("Importing Bank Exports")

	if err := loadImportDefaults(); err != nil {
		return err
	}

	ui.Step(1, 3, "Finding export files")
	contexts, err := importContexts(*importPath)
	if err != nil {
		return err
	}
	if len(contexts) == 0 {
		return fmt.Errorf("no export files found under %s", *importPath)
	}
	ui.Success(fmt.Sprintf("Found %d export files", len(contexts)))

	ui.Step(2, 3, "Parsing and staging")
	var reports []*pipeline.FileReport
	for _, ictx := range contexts {
		applyFlagDefaults(ictx)
		reports = append(reports, a.pipe.ImportFile(ctx, ictx))
	}

	ui.Step(3, 3, "Writing report")
	report := output.BuildReport(reports)
	if err := output.WriteReportToFile(report, *reportFile); err != nil {
		return err
	}

	if report.Totals.Failed > 0 {
		ui.Warning(fmt.Sprintf("%d of %d files failed", report.Totals.Failed, report.Totals.Files))
	}
	ui.Success(fmt.Sprintf("Staged %d new transactions (%d duplicates skipped, %d rejected)",
		report.Totals.Inserted, report.Totals.Duplicates, report.Totals.Rejected))
	return nil
}

// importContexts builds one import context per file: a directory is scanned
// recursively, a single path imports just that file.
func importContexts(path string) ([]*parser.ImportContext, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read import path: %w", err)
	}
	if info.IsDir() {
		return scanner.New(path).Scan()
	}

	ictx, err := parser.NewImportContext(path, time.Now())
	if err != nil {
		return nil, err
	}
	return []*parser.ImportContext{ictx}, nil
}

// applyFlagDefaults fills identity defaults from flags where the scanner's
// directory layout supplied none.
func applyFlagDefaults(ictx *parser.ImportContext) {
	if ictx.DefaultBank() == "" {
		ictx.SetDefaultBank(*defaultBank)
	}
	if ictx.DefaultAccountID() == "" {
		ictx.SetDefaultAccountID(*defaultAcct)
	}
	if ictx.DefaultCurrency() == "" {
		ictx.SetDefaultCurrency(*defaultCur)
	}
}

func (a *app) runMatch(ctx context.Context, log zerolog.Logger) error {
	txn, err := a.repo.GetTransaction(ctx, *matchID)
	if err != nil {
		return err
	}

	acct, err := a.ledger.LookupBankAccountByNumber(ctx, txn.AccountID)
	if err != nil {
		return err
	}

	engine := match.New(a.ledger, match.DefaultConfig(), log)
	candidates, err := engine.FindCandidates(ctx, txn, acct.ID)
	if err != nil {
		return err
	}

	ui.Header("Ledger Candidates")
	ui.Info(fmt.Sprintf("Transaction %d: %s %s %.2f on %s",
		txn.ID, txn.Label, txn.Title, txn.Amount, txn.ValueDate.Format("2006-01-02")))
	if len(candidates) == 0 {
		ui.Warning("No candidates above the confidence floor")
		return nil
	}
	for i, c := range candidates {
		kind := ""
		if c.IsInvoice {
			kind = " [invoice]"
		}
		fmt.Printf("%2d. %s/%d score=%.2f date±%dd%s\n",
			i+1, c.Ledger.TransType, c.Ledger.TransNo, c.Score, c.DateDeltaDays, kind)
	}
	return nil
}

func (a *app) runTransfer(ctx context.Context, log zerolog.Logger) error {
	parts := strings.Split(*transferIDs, ",")
	if len(parts) != 2 {
		return fmt.Errorf("-transfer wants two ids separated by a comma, got %q", *transferIDs)
	}
	idA, errA := strconv.ParseInt(strings.TrimSpace(parts[0]), 10, 64)
	idB, errB := strconv.ParseInt(strings.TrimSpace(parts[1]), 10, 64)
	if errA != nil || errB != nil {
		return fmt.Errorf("-transfer wants numeric ids, got %q", *transferIDs)
	}

	o := transfer.NewOrchestrator(a.repo, a.ledger, log)
	result, err := o.Post(ctx, idA, idB)
	if err != nil {
		return err
	}

	ui.Success(fmt.Sprintf("Posted transfer %s/%d: %.2f from %s to %s",
		result.Ledger.TransType, result.Ledger.TransNo,
		result.Request.Amount, result.Request.FromAccountID, result.Request.ToAccountID))
	return nil
}

func (a *app) runToggle(ctx context.Context) error {
	txn, err := a.repo.ToggleDirection(ctx, *toggleID)
	if err != nil {
		return err
	}
	ui.Success(fmt.Sprintf("Transaction %d is now a %s (%s %.2f)",
		txn.ID, strings.ToLower(txn.Label), txn.Title, txn.Amount))
	return nil
}

func (a *app) runReset(ctx context.Context) error {
	parts := strings.SplitN(*resetRef, ":", 2)
	if len(parts) != 2 {
		return fmt.Errorf("-reset wants TYPE:NUMBER, got %q", *resetRef)
	}
	transNo, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return fmt.Errorf("-reset wants a numeric transaction number, got %q", parts[1])
	}

	n, err := a.repo.ResetByLedgerRef(ctx, domain.LedgerRef{TransType: parts[0], TransNo: transNo})
	if err != nil {
		return err
	}
	ui.Success(fmt.Sprintf("Reset %d staged records to unprocessed", n))
	return nil
}

func (a *app) runRegisterAccount(ctx context.Context) error {
	parts := strings.Split(*registerAcc, ",")
	if len(parts) != 4 {
		return fmt.Errorf("-register-account wants id,number,name,currency, got %q", *registerAcc)
	}
	acct := ledger.BankAccount{
		ID:       strings.TrimSpace(parts[0]),
		Number:   strings.TrimSpace(parts[1]),
		Name:     strings.TrimSpace(parts[2]),
		Currency: strings.TrimSpace(parts[3]),
	}
	if err := a.ledger.RegisterBankAccount(ctx, acct); err != nil {
		return err
	}
	ui.Success(fmt.Sprintf("Registered ledger account %s (%s)", acct.ID, acct.Number))
	return nil
}
