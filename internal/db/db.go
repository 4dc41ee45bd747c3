package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/charmbracelet/log"
	"github.com/lox/bank-statement-importer/internal/types"
)

// OutcomeKind is what happened to one statement record
type OutcomeKind string

const (
	OutcomeStored      OutcomeKind = "stored"
	OutcomeDuplicate   OutcomeKind = "duplicate"
	OutcomeRuleDropped OutcomeKind = "rule-dropped"
	OutcomeDropped     OutcomeKind = "dropped"
	OutcomeDryRun      OutcomeKind = "dry-run"
)

// Run statuses
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// ErrRunNotFound is returned when a run tag is unknown
var ErrRunNotFound = errors.New("run not found")

// Counts tallies the outcomes of a run
type Counts struct {
	Records         int `json:"records"`
	Stored          int `json:"stored"`
	Duplicates      int `json:"duplicates"`
	RuleDropped     int `json:"rule_dropped"`
	Dropped         int `json:"dropped"`
	DryRun          int `json:"dry_run"`
	AccountsCreated int `json:"accounts_created"`
}

// Run is one import of one statement file
type Run struct {
	Tag            string     `json:"tag"`
	Dialect        string     `json:"dialect"`
	File           string     `json:"file"`
	OwnAccountID   string     `json:"own_account_id"`
	OwnAccountName string     `json:"own_account_name"`
	DryRun         bool       `json:"dry_run"`
	StartedAt      time.Time  `json:"started_at"`
	FinishedAt     *time.Time `json:"finished_at,omitempty"`
	Status         string     `json:"status"`
	Error          string     `json:"error,omitempty"`
	Counts         Counts     `json:"counts"`
}

// Outcome is the journal entry for one record
type Outcome struct {
	Record      int         `json:"record"`
	Kind        OutcomeKind `json:"outcome"`
	Date        string      `json:"date,omitempty"`
	Amount      string      `json:"amount,omitempty"`
	Description string      `json:"description,omitempty"`
	ExternalID  string      `json:"external_id,omitempty"`
	Reason      string      `json:"reason,omitempty"`
}

// CreatedAccount is an account created during a run
type CreatedAccount struct {
	RunTag    string            `json:"run_tag"`
	AccountID string            `json:"account_id"`
	Name      string            `json:"name"`
	IBAN      string            `json:"iban,omitempty"`
	Type      types.AccountType `json:"type"`
	CreatedAt time.Time         `json:"created_at"`
}

// DB is the local import journal. It records runs, what happened to every
// record and which accounts were created, so past imports can be audited.
type DB struct {
	db     *sql.DB
	logger *log.Logger
	now    func() time.Time
}

// New opens (and creates) the journal in dataDir
func New(dataDir string, logger *log.Logger) (*DB, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "journal.db")
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// pragmas apply per connection
	db.SetMaxOpenConns(1)

	_, err = db.Exec(`
		PRAGMA foreign_keys = ON;
		PRAGMA journal_mode = WAL;
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set database pragmas: %w", err)
	}

	if err := createTables(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	if err := ApplyMigrations(context.Background(), db, logger); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	logger.Debug("Opened import journal", "path", dbPath)
	return &DB{db: db, logger: logger, now: time.Now}, nil
}

func createTables(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS runs (
			tag TEXT PRIMARY KEY,
			dialect TEXT NOT NULL,
			file TEXT NOT NULL,
			own_account_id TEXT NOT NULL DEFAULT '',
			own_account_name TEXT NOT NULL DEFAULT '',
			dry_run INTEGER NOT NULL DEFAULT 0,
			started_at TEXT NOT NULL,
			finished_at TEXT,
			status TEXT NOT NULL,
			error TEXT NOT NULL DEFAULT '',
			records INTEGER NOT NULL DEFAULT 0,
			stored INTEGER NOT NULL DEFAULT 0,
			duplicates INTEGER NOT NULL DEFAULT 0,
			rule_dropped INTEGER NOT NULL DEFAULT 0,
			dropped INTEGER NOT NULL DEFAULT 0,
			dry_run_count INTEGER NOT NULL DEFAULT 0,
			accounts_created INTEGER NOT NULL DEFAULT 0
		);

		CREATE TABLE IF NOT EXISTS outcomes (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_tag TEXT NOT NULL REFERENCES runs(tag) ON DELETE CASCADE,
			record INTEGER NOT NULL,
			outcome TEXT NOT NULL,
			date TEXT NOT NULL DEFAULT '',
			amount TEXT NOT NULL DEFAULT '',
			description TEXT NOT NULL DEFAULT '',
			external_id TEXT NOT NULL DEFAULT '',
			reason TEXT NOT NULL DEFAULT ''
		);

		CREATE TABLE IF NOT EXISTS accounts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_tag TEXT NOT NULL REFERENCES runs(tag) ON DELETE CASCADE,
			account_id TEXT NOT NULL,
			name TEXT NOT NULL,
			iban TEXT NOT NULL DEFAULT '',
			type TEXT NOT NULL,
			created_at TEXT NOT NULL
		);
	`)
	if err != nil {
		return fmt.Errorf("failed to create journal tables: %w", err)
	}

	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_outcomes_run ON outcomes(run_tag, record)",
		"CREATE INDEX IF NOT EXISTS idx_accounts_run ON accounts(run_tag)",
		"CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at)",
	}
	for _, index := range indexes {
		if _, err := db.Exec(index); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}
	return nil
}

// StartRun records the beginning of an import
func (d *DB) StartRun(ctx context.Context, run Run) error {
	if run.StartedAt.IsZero() {
		run.StartedAt = d.now()
	}
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO runs (tag, dialect, file, own_account_id, own_account_name, dry_run, started_at, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, run.Tag, run.Dialect, run.File, run.OwnAccountID, run.OwnAccountName, run.DryRun,
		run.StartedAt.UTC().Format(time.RFC3339), StatusRunning)
	if err != nil {
		return fmt.Errorf("failed to start run %s: %w", run.Tag, err)
	}
	d.logger.Debug("Journal run started", "tag", run.Tag)
	return nil
}

// SetOwnAccount records the account a run imports into
func (d *DB) SetOwnAccount(ctx context.Context, tag string, acc types.Account) error {
	_, err := d.db.ExecContext(ctx, `UPDATE runs SET own_account_id = ?, own_account_name = ? WHERE tag = ?`,
		acc.ID, acc.Name, tag)
	if err != nil {
		return fmt.Errorf("failed to set own account of run %s: %w", tag, err)
	}
	return nil
}

// RecordOutcome appends the outcome of one record to a run
func (d *DB) RecordOutcome(ctx context.Context, tag string, o Outcome) error {
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO outcomes (run_tag, record, outcome, date, amount, description, external_id, reason)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, tag, o.Record, string(o.Kind), o.Date, o.Amount, o.Description, o.ExternalID, o.Reason)
	if err != nil {
		return fmt.Errorf("failed to record outcome of record %d: %w", o.Record, err)
	}
	return nil
}

// RecordAccount remembers an account created during a run
func (d *DB) RecordAccount(ctx context.Context, tag string, acc types.Account) error {
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO accounts (run_tag, account_id, name, iban, type, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, tag, acc.ID, acc.Name, acc.IBAN, string(acc.Type), d.now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to record account %s: %w", acc.Name, err)
	}
	return nil
}

// FinishRun stores the final counts and status of a run. A non-nil runErr
// marks the run as failed.
func (d *DB) FinishRun(ctx context.Context, tag string, counts Counts, runErr error) error {
	status, message := StatusCompleted, ""
	if runErr != nil {
		status, message = StatusFailed, runErr.Error()
	}
	res, err := d.db.ExecContext(ctx, `
		UPDATE runs SET
			finished_at = ?, status = ?, error = ?,
			records = ?, stored = ?, duplicates = ?, rule_dropped = ?, dropped = ?, dry_run_count = ?, accounts_created = ?
		WHERE tag = ?
	`, d.now().UTC().Format(time.RFC3339), status, message,
		counts.Records, counts.Stored, counts.Duplicates, counts.RuleDropped, counts.Dropped, counts.DryRun, counts.AccountsCreated,
		tag)
	if err != nil {
		return fmt.Errorf("failed to finish run %s: %w", tag, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, tag)
	}
	return nil
}

// Runs returns the most recent runs, newest first
func (d *DB) Runs(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := d.db.QueryContext(ctx, `
		SELECT tag, dialect, file, own_account_id, own_account_name, dry_run, started_at, finished_at, status, error,
			records, stored, duplicates, rule_dropped, dropped, dry_run_count, accounts_created
		FROM runs
		ORDER BY started_at DESC, rowid DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate runs: %w", err)
	}
	return runs, nil
}

// Run returns one run by tag
func (d *DB) Run(ctx context.Context, tag string) (*Run, error) {
	row := d.db.QueryRowContext(ctx, `
		SELECT tag, dialect, file, own_account_id, own_account_name, dry_run, started_at, finished_at, status, error,
			records, stored, duplicates, rule_dropped, dropped, dry_run_count, accounts_created
		FROM runs WHERE tag = ?
	`, tag)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, tag)
	}
	return run, err
}

// Outcomes returns the per-record outcomes of a run in record order
func (d *DB) Outcomes(ctx context.Context, tag string) ([]Outcome, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT record, outcome, date, amount, description, external_id, reason
		FROM outcomes WHERE run_tag = ?
		ORDER BY record, id
	`, tag)
	if err != nil {
		return nil, fmt.Errorf("failed to query outcomes: %w", err)
	}
	defer rows.Close()

	var outcomes []Outcome
	for rows.Next() {
		var o Outcome
		var kind string
		if err := rows.Scan(&o.Record, &kind, &o.Date, &o.Amount, &o.Description, &o.ExternalID, &o.Reason); err != nil {
			return nil, fmt.Errorf("failed to scan outcome: %w", err)
		}
		o.Kind = OutcomeKind(kind)
		outcomes = append(outcomes, o)
	}
	return outcomes, rows.Err()
}

// Accounts returns the accounts created during a run
func (d *DB) Accounts(ctx context.Context, tag string) ([]CreatedAccount, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT run_tag, account_id, name, iban, type, created_at
		FROM accounts WHERE run_tag = ?
		ORDER BY id
	`, tag)
	if err != nil {
		return nil, fmt.Errorf("failed to query accounts: %w", err)
	}
	defer rows.Close()

	var accounts []CreatedAccount
	for rows.Next() {
		var a CreatedAccount
		var accountType, createdAt string
		if err := rows.Scan(&a.RunTag, &a.AccountID, &a.Name, &a.IBAN, &accountType, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		a.Type = types.AccountType(accountType)
		a.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (*Run, error) {
	var run Run
	var startedAt string
	var finishedAt sql.NullString
	err := s.Scan(&run.Tag, &run.Dialect, &run.File, &run.OwnAccountID, &run.OwnAccountName, &run.DryRun,
		&startedAt, &finishedAt, &run.Status, &run.Error,
		&run.Counts.Records, &run.Counts.Stored, &run.Counts.Duplicates, &run.Counts.RuleDropped,
		&run.Counts.Dropped, &run.Counts.DryRun, &run.Counts.AccountsCreated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan run: %w", err)
	}
	run.StartedAt, _ = time.Parse(time.RFC3339, startedAt)
	if finishedAt.Valid {
		t, err := time.Parse(time.RFC3339, finishedAt.String)
		if err == nil {
			run.FinishedAt = &t
		}
	}
	return &run, nil
}

// Close closes the database connection
func (d *DB) Close() error {
	return d.db.Close()
}
