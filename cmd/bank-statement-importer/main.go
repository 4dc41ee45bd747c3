package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/lox/bank-statement-importer/internal/commands"
	"github.com/lox/bank-statement-importer/internal/importer"
	"github.com/lox/bank-statement-importer/internal/statement/camt053"
)

type CLI struct {
	commands.CommonConfig

	Import  ImportCmd  `cmd:"" help:"Import a bank statement into Firefly III."`
	History HistoryCmd `cmd:"" help:"Show past imports from the local journal."`
}

type ImportCmd struct {
	commands.LedgerConfig

	File         string `help:"Path to the statement export" required:"" type:"existingfile"`
	Bank         string `help:"Statement dialect" required:"" enum:"${dialects}"`
	Account      string `help:"Own account IBAN or name (overrides the statement IBAN)"`
	AmountPolicy string `help:"camt.053 amount source for batched entries (entry, detail)" default:"entry" enum:"entry,detail"`
	DryRun       bool   `help:"Print entries as JSON instead of submitting them" default:"false"`
	Limit        int    `help:"Limit the number of records to process (0 = no limit)" default:"0"`
	NoProgress   bool   `help:"Disable progress bar" default:"false"`
}

type HistoryCmd struct {
	Tag   string `name:"run" help:"Show the record outcomes of one run tag"`
	Limit int    `help:"Number of runs to list (0 = all)" default:"20"`
	JSON  bool   `help:"Print as JSON" default:"false"`
}

func (c *ImportCmd) Run(cli *CLI) error {
	logger, err := commands.SetupLogger(os.Stderr, cli.LogLevel)
	if err != nil {
		return err
	}

	policy, err := camt053.ParseAmountPolicy(c.AmountPolicy)
	if err != nil {
		return err
	}
	registry := commands.SetupRegistry(policy)
	b, ok := registry.Get(c.Bank)
	if !ok {
		return fmt.Errorf("unknown bank %q, available: %v", c.Bank, registry.List())
	}

	ledger, err := commands.SetupLedger(c.LedgerConfig, logger)
	if err != nil {
		return err
	}

	journal, err := commands.SetupJournal(cli.DataDir, logger)
	if err != nil {
		return err
	}
	defer journal.Close()

	file, err := os.Open(c.File)
	if err != nil {
		return fmt.Errorf("failed to open statement: %w", err)
	}
	defer file.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	summary, err := importer.New(ledger, journal, logger).Import(ctx, b, file, importer.Config{
		File:       c.File,
		OwnAccount: c.Account,
		DryRun:     c.DryRun,
		Progress:   !c.NoProgress,
		Limit:      c.Limit,
		Output:     os.Stdout,
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "%s: %d records, %d stored, %d duplicates, %d rule-dropped, %d dropped, %d accounts created\n",
		summary.Tag, summary.Records, summary.Stored+summary.DryRun, summary.Duplicates,
		summary.RuleDropped, summary.Dropped, summary.AccountsCreated)
	return nil
}

func (c *HistoryCmd) Run(cli *CLI) error {
	logger, err := commands.SetupLogger(os.Stderr, cli.LogLevel)
	if err != nil {
		return err
	}

	journal, err := commands.SetupJournal(cli.DataDir, logger)
	if err != nil {
		return err
	}
	defer journal.Close()

	ctx := context.Background()

	if c.Tag == "" {
		runs, err := journal.Runs(ctx, c.Limit)
		if err != nil {
			return err
		}
		if c.JSON {
			return printJSON(runs)
		}
		return commands.RenderRuns(os.Stdout, runs)
	}

	run, err := journal.Run(ctx, c.Tag)
	if err != nil {
		return err
	}
	outcomes, err := journal.Outcomes(ctx, c.Tag)
	if err != nil {
		return err
	}
	accounts, err := journal.Accounts(ctx, c.Tag)
	if err != nil {
		return err
	}
	if c.JSON {
		return printJSON(map[string]any{
			"run":      run,
			"outcomes": outcomes,
			"accounts": accounts,
		})
	}
	return commands.RenderRun(os.Stdout, run, outcomes, accounts)
}

func printJSON(v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(b))
	return nil
}

func main() {
	cli := &CLI{}
	ctx := kong.Parse(cli,
		kong.Name("bank-statement-importer"),
		kong.Description("Import bank statements into Firefly III"),
		kong.UsageOnError(),
		kong.Configuration(commands.YAML, commands.DefaultConfigFile),
		kong.Vars{"dialects": commands.Dialects},
	)

	err := ctx.Run(cli)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
