// Package importer runs one statement file through a dialect pipeline and
// submits the resulting entries to the ledger.
package importer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/lox/bank-statement-importer/internal/bank"
	"github.com/lox/bank-statement-importer/internal/db"
	"github.com/lox/bank-statement-importer/internal/firefly"
	"github.com/lox/bank-statement-importer/internal/pipeline"
	"github.com/lox/bank-statement-importer/internal/resolver"
	"github.com/lox/bank-statement-importer/internal/types"
)

// ErrMissingOwnAccount is returned when neither the statement nor the user
// names the account being imported into
var ErrMissingOwnAccount = errors.New("own account required")

// Ledger is what the importer needs from the ledger client
type Ledger interface {
	resolver.Ledger
	CreateTag(ctx context.Context, name string, date time.Time) error
	FindTransactionByExternalID(ctx context.Context, externalID string) (*firefly.Transaction, error)
	SubmitTransaction(ctx context.Context, entry types.LedgerEntry) error
}

// Journal records what an import did
type Journal interface {
	StartRun(ctx context.Context, run db.Run) error
	SetOwnAccount(ctx context.Context, tag string, acc types.Account) error
	RecordOutcome(ctx context.Context, tag string, o db.Outcome) error
	RecordAccount(ctx context.Context, tag string, acc types.Account) error
	FinishRun(ctx context.Context, tag string, counts db.Counts, runErr error) error
}

type Config struct {
	// File is the statement path, recorded in the journal
	File string
	// OwnAccount is an IBAN or account name; it overrides the statement IBAN
	OwnAccount string
	DryRun     bool
	Progress   bool
	// Limit caps the number of records processed (0 = no limit)
	Limit int
	// Output receives dry-run entries as JSON, defaults to stdout
	Output io.Writer
}

// Summary is the result of one import
type Summary struct {
	Tag        string        `json:"tag"`
	OwnAccount types.Account `json:"own_account"`
	db.Counts
}

type Importer struct {
	ledger  Ledger
	journal Journal
	logger  *log.Logger
	now     func() time.Time
}

// New creates an importer. A nil journal disables journaling.
func New(ledger Ledger, journal Journal, logger *log.Logger) *Importer {
	if journal == nil {
		journal = noopJournal{}
	}
	return &Importer{
		ledger:  ledger,
		journal: journal,
		logger:  logger,
		now:     time.Now,
	}
}

// Import parses a statement, binds the own account, creates the import tag and
// submits every entry the dialect pipeline produces, in source order.
// Duplicates and rule-deleted transactions are reported and skipped; any other
// ledger error aborts the import.
func (im *Importer) Import(ctx context.Context, b bank.Bank, r io.Reader, config Config) (*Summary, error) {
	if b.RequiresOwnAccount() && strings.TrimSpace(config.OwnAccount) == "" {
		return nil, fmt.Errorf("%w: the %s export does not name its account, pass --account", ErrMissingOwnAccount, b.Name())
	}

	stmt, err := b.Parse(ctx, r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse statement: %w", err)
	}

	identifier, err := im.ownAccountIdentifier(b, stmt, config)
	if err != nil {
		return nil, err
	}

	session := pipeline.NewSession(b.Name(), im.now())
	summary := &Summary{Tag: session.Tag()}

	err = im.journal.StartRun(ctx, db.Run{
		Tag:     session.Tag(),
		Dialect: b.Name(),
		File:    config.File,
		DryRun:  config.DryRun,
	})
	if err != nil {
		return nil, err
	}

	runErr := im.run(ctx, b, stmt, identifier, session, config, summary)
	if err := im.journal.FinishRun(context.WithoutCancel(ctx), session.Tag(), summary.Counts, runErr); err != nil {
		im.logger.Warn("Failed to finish journal run", "tag", session.Tag(), "error", err)
	}
	if runErr != nil {
		return summary, runErr
	}

	im.logger.Info("Import finished",
		"tag", summary.Tag,
		"records", summary.Records,
		"stored", summary.Stored,
		"duplicates", summary.Duplicates,
		"rule_dropped", summary.RuleDropped,
		"dropped", summary.Dropped,
		"dry_run", summary.DryRun,
		"accounts_created", summary.AccountsCreated)
	return summary, nil
}

func (im *Importer) ownAccountIdentifier(b bank.Bank, stmt *types.Statement, config Config) (string, error) {
	flag := strings.TrimSpace(config.OwnAccount)
	switch {
	case flag != "" && stmt.IBAN != "" && types.NormalizeIBAN(flag) != stmt.IBAN:
		im.logger.Warn("Own account differs from statement IBAN, using the given account",
			"account", flag, "statement_iban", stmt.IBAN)
		return flag, nil
	case flag != "":
		return flag, nil
	case stmt.IBAN != "":
		return stmt.IBAN, nil
	}
	return "", fmt.Errorf("%w: the %s statement carries no IBAN, pass --account", ErrMissingOwnAccount, b.Name())
}

func (im *Importer) run(ctx context.Context, b bank.Bank, stmt *types.Statement, identifier string, session *pipeline.Session, config Config, summary *Summary) error {
	tag := session.Tag()

	res := resolver.New(im.ledger, im.logger,
		resolver.WithDryRun(config.DryRun),
		resolver.WithOnCreate(func(acc types.Account) {
			summary.AccountsCreated++
			if err := im.journal.RecordAccount(ctx, tag, acc); err != nil {
				im.logger.Warn("Failed to journal created account", "account", acc.Name, "error", err)
			}
		}),
	)

	own, err := res.ResolveOwnAccount(ctx, identifier)
	if err != nil {
		return err
	}
	if err := session.BindOwnAccount(own); err != nil {
		return err
	}
	summary.OwnAccount = own
	if err := im.journal.SetOwnAccount(ctx, tag, own); err != nil {
		im.logger.Warn("Failed to journal own account", "error", err)
	}
	im.logger.Info("Importing statement",
		"bank", b.Name(),
		"account", own.Name,
		"account_id", own.ID,
		"records", len(stmt.Records),
		"tag", tag,
		"dry_run", config.DryRun)

	if config.DryRun {
		im.logger.Info("Dry run: not creating tag", "tag", tag)
	} else if err := im.ledger.CreateTag(ctx, tag, session.RunDate()); err != nil {
		return fmt.Errorf("failed to create import tag: %w", err)
	}

	records := stmt.Records
	if config.Limit > 0 && len(records) > config.Limit {
		records = records[:config.Limit]
	}

	var progress Progress
	if !config.Progress || config.DryRun {
		progress = NewNoopProgress()
	} else {
		progress = NewBarProgress(len(records), "Importing")
	}
	defer progress.Close()

	p := b.NewPipeline(pipeline.Env{
		Session:  session,
		Resolver: res,
		Logger:   im.logger,
	})

	for i, rec := range records {
		index := i + 1
		summary.Records++

		entry, err := p.Apply(ctx, rec)
		if err != nil {
			return fmt.Errorf("record %d: %w", index, err)
		}

		var outcome db.Outcome
		if entry == nil {
			outcome = db.Outcome{Record: index, Kind: db.OutcomeDropped, Reason: "dropped by pipeline"}
			im.logger.Info("Skipping record", "record", index)
		} else {
			outcome, err = im.submit(ctx, index, *entry, config)
			if err != nil {
				return fmt.Errorf("record %d: %w", index, err)
			}
		}

		im.count(summary, outcome.Kind)
		if err := im.journal.RecordOutcome(ctx, tag, outcome); err != nil {
			im.logger.Warn("Failed to journal outcome", "record", index, "error", err)
		}
		progress.Describe(fmt.Sprintf("Importing (%d stored, %d duplicates, %d dropped)",
			summary.Stored, summary.Duplicates, summary.Dropped+summary.RuleDropped))
		if err := progress.Add(1); err != nil {
			return fmt.Errorf("error updating progress: %w", err)
		}
	}

	return nil
}

// submit sends one entry, checking the external id first. Duplicates and
// rule-deleted transactions are outcomes, not errors.
func (im *Importer) submit(ctx context.Context, index int, entry types.LedgerEntry, config Config) (db.Outcome, error) {
	outcome := db.Outcome{
		Record:      index,
		Date:        entry.Date.Format(time.DateOnly),
		Amount:      entry.Amount,
		Description: entry.Description,
		ExternalID:  entry.ExternalID,
	}

	if config.DryRun {
		if err := im.print(entry, config.Output); err != nil {
			return outcome, err
		}
		outcome.Kind = db.OutcomeDryRun
		im.logger.Info("Dry run: would store transaction", "record", index, "description", entry.Description, "amount", entry.Amount)
		return outcome, nil
	}

	if entry.ExternalID != "" {
		existing, err := im.ledger.FindTransactionByExternalID(ctx, entry.ExternalID)
		if err != nil {
			return outcome, fmt.Errorf("failed to look up external id %q: %w", entry.ExternalID, err)
		}
		if existing != nil {
			outcome.Kind = db.OutcomeDuplicate
			outcome.Reason = fmt.Sprintf("external id already imported (group %s)", existing.GroupID)
			im.logger.Info("Skipping duplicate transaction",
				"record", index,
				"description", entry.Description,
				"external_id", entry.ExternalID,
				"group_id", existing.GroupID)
			return outcome, nil
		}
	}

	err := im.ledger.SubmitTransaction(ctx, entry)
	switch {
	case err == nil:
		outcome.Kind = db.OutcomeStored
		im.logger.Info("Stored transaction",
			"record", index,
			"description", entry.Description,
			"amount", entry.Amount,
			"date", outcome.Date,
			"type", entry.Kind)
	case errors.Is(err, firefly.ErrDuplicateTransaction):
		outcome.Kind = db.OutcomeDuplicate
		outcome.Reason = "ledger reported duplicate hash"
		im.logger.Info("Skipping duplicate transaction", "record", index, "description", entry.Description)
	case errors.Is(err, firefly.ErrRuleDropped):
		outcome.Kind = db.OutcomeRuleDropped
		outcome.Reason = "deleted by a ledger rule"
		im.logger.Warn("Transaction was deleted by a rule", "record", index, "description", entry.Description)
	default:
		return outcome, fmt.Errorf("failed to store transaction %q: %w", entry.Description, err)
	}
	return outcome, nil
}

func (im *Importer) print(entry types.LedgerEntry, w io.Writer) error {
	if w == nil {
		w = os.Stdout
	}
	b, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal entry: %w", err)
	}
	_, err = fmt.Fprintln(w, string(b))
	return err
}

func (im *Importer) count(summary *Summary, kind db.OutcomeKind) {
	switch kind {
	case db.OutcomeStored:
		summary.Stored++
	case db.OutcomeDuplicate:
		summary.Duplicates++
	case db.OutcomeRuleDropped:
		summary.RuleDropped++
	case db.OutcomeDropped:
		summary.Dropped++
	case db.OutcomeDryRun:
		summary.DryRun++
	}
}

type noopJournal struct{}

func (noopJournal) StartRun(context.Context, db.Run) error                     { return nil }
func (noopJournal) SetOwnAccount(context.Context, string, types.Account) error { return nil }
func (noopJournal) RecordOutcome(context.Context, string, db.Outcome) error    { return nil }
func (noopJournal) RecordAccount(context.Context, string, types.Account) error { return nil }
func (noopJournal) FinishRun(context.Context, string, db.Counts, error) error  { return nil }
