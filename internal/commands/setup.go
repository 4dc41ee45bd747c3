package commands

import (
	"fmt"
	"io"

	"github.com/charmbracelet/log"
	"github.com/lox/bank-statement-importer/internal/bank"
	"github.com/lox/bank-statement-importer/internal/bank/appkb"
	"github.com/lox/bank-statement-importer/internal/bank/camt"
	"github.com/lox/bank-statement-importer/internal/bank/ubs"
	"github.com/lox/bank-statement-importer/internal/bank/ubscard"
	"github.com/lox/bank-statement-importer/internal/bank/zkb"
	"github.com/lox/bank-statement-importer/internal/db"
	"github.com/lox/bank-statement-importer/internal/firefly"
	"github.com/lox/bank-statement-importer/internal/statement/camt053"
)

// Dialects is the --bank enum, kept in sync with SetupRegistry
const Dialects = "appkb,camt,ubs,ubscard,zkb"

// SetupLogger creates a logger writing to w at the given level
func SetupLogger(w io.Writer, level string) (*log.Logger, error) {
	logger := log.New(w)
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	logger.SetLevel(lvl)
	return logger, nil
}

// SetupLedger creates the Firefly III client from the connection flags
func SetupLedger(config LedgerConfig, logger *log.Logger) (*firefly.Client, error) {
	client, err := firefly.New(firefly.NewConfig().
		WithURL(config.LedgerURL).
		WithToken(config.Token).
		WithTimeout(config.LedgerTimeout).
		WithRetryAttempts(config.RetryAttempts).
		WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("failed to create ledger client: %w", err)
	}
	logger.Debug("Using ledger", "url", config.LedgerURL)
	return client, nil
}

// SetupJournal opens the import journal in the data directory
func SetupJournal(dataDir string, logger *log.Logger) (*db.DB, error) {
	journal, err := db.New(dataDir, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open import journal: %w", err)
	}
	return journal, nil
}

// SetupRegistry registers every supported bank dialect. The amount policy
// applies to the camt.053 based dialects.
func SetupRegistry(policy camt053.AmountPolicy) *bank.Registry {
	registry := bank.NewRegistry()
	registry.Register(appkb.New(policy))
	registry.Register(camt.New(policy))
	registry.Register(ubs.New())
	registry.Register(ubscard.New())
	registry.Register(zkb.New())
	return registry
}
