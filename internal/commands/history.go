package commands

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/lox/bank-statement-importer/internal/db"
)

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.NormalBorder()).
		Headers(headers...)
}

// RenderRuns writes a table of journal runs, newest first
func RenderRuns(w io.Writer, runs []db.Run) error {
	t := newTable("Tag", "Bank", "File", "Account", "Started", "Status", "Stored", "Duplicates", "Dropped", "Accounts")
	for _, r := range runs {
		status := r.Status
		if r.DryRun {
			status += " (dry run)"
		}
		t.Row(
			r.Tag,
			r.Dialect,
			r.File,
			r.OwnAccountName,
			r.StartedAt.Local().Format(time.DateTime),
			status,
			strconv.Itoa(r.Counts.Stored+r.Counts.DryRun),
			strconv.Itoa(r.Counts.Duplicates),
			strconv.Itoa(r.Counts.Dropped+r.Counts.RuleDropped),
			strconv.Itoa(r.Counts.AccountsCreated),
		)
	}
	_, err := fmt.Fprintln(w, t.Render())
	return err
}

// RenderRun writes one run's record outcomes and created accounts
func RenderRun(w io.Writer, run *db.Run, outcomes []db.Outcome, accounts []db.CreatedAccount) error {
	if _, err := fmt.Fprintf(w, "%s  %s  %s  %s\n", run.Tag, run.Dialect, run.File, run.Status); err != nil {
		return err
	}
	if run.Error != "" {
		if _, err := fmt.Fprintf(w, "error: %s\n", run.Error); err != nil {
			return err
		}
	}

	t := newTable("#", "Outcome", "Date", "Amount", "Description", "External ID", "Reason")
	for _, o := range outcomes {
		t.Row(strconv.Itoa(o.Record), string(o.Kind), o.Date, o.Amount, o.Description, o.ExternalID, o.Reason)
	}
	if _, err := fmt.Fprintln(w, t.Render()); err != nil {
		return err
	}

	if len(accounts) == 0 {
		return nil
	}
	at := newTable("Account", "ID", "Type", "IBAN")
	for _, a := range accounts {
		at.Row(a.Name, a.AccountID, string(a.Type), a.IBAN)
	}
	_, err := fmt.Fprintln(w, at.Render())
	return err
}
