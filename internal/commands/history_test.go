package commands

import (
	"bytes"
	"testing"
	"time"

	"github.com/lox/bank-statement-importer/internal/db"
	"github.com/lox/bank-statement-importer/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderRuns(t *testing.T) {
	var buf bytes.Buffer
	err := RenderRuns(&buf, []db.Run{
		{Tag: "import-zkb-2024-03-31-abcde", Dialect: "zkb", File: "zkb.csv", StartedAt: time.Now(), Status: db.StatusCompleted, Counts: db.Counts{Stored: 4, Duplicates: 1}},
		{Tag: "import-camt-2024-03-30-fghij", Dialect: "camt", File: "march.xml", StartedAt: time.Now(), Status: db.StatusCompleted, DryRun: true},
	})
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "import-zkb-2024-03-31-abcde")
	assert.Contains(t, out, "completed (dry run)")
	assert.Contains(t, out, "Duplicates")
}

func TestRenderRun(t *testing.T) {
	var buf bytes.Buffer
	run := &db.Run{Tag: "import-ubs-2024-03-31-abcde", Dialect: "ubs", File: "ubs.csv", Status: db.StatusFailed, Error: "status 500"}
	err := RenderRun(&buf, run,
		[]db.Outcome{{Record: 1, Kind: db.OutcomeStored, Date: "2024-03-01", Amount: "42.50", Description: "Salary", ExternalID: "T1"}},
		[]db.CreatedAccount{{AccountID: "101", Name: "Employer AG", Type: types.AccountTypeRevenue}},
	)
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "error: status 500")
	assert.Contains(t, out, "Salary")
	assert.Contains(t, out, "Employer AG")
}
