// Package banktest wires dialect pipelines against an in-memory ledger for tests.
package banktest

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/lox/bank-statement-importer/internal/firefly/fireflytest"
	"github.com/lox/bank-statement-importer/internal/pipeline"
	"github.com/lox/bank-statement-importer/internal/resolver"
	"github.com/lox/bank-statement-importer/internal/types"
	"github.com/stretchr/testify/require"
)

// OwnIBAN is the IBAN of the seeded own account
const OwnIBAN = "CH5604835012345678009"

// RunDate is the session date of every test run
var RunDate = time.Date(2024, 3, 31, 12, 0, 0, 0, time.UTC)

// Fixture is a ready pipeline environment with its backing ledger
type Fixture struct {
	Env    pipeline.Env
	Ledger *fireflytest.Ledger
	Own    types.Account
}

// New seeds an own asset account, binds it and returns the environment
func New(t *testing.T, dialect string) *Fixture {
	t.Helper()
	ledger := fireflytest.New()
	own := ledger.AddAccount("Privatkonto", OwnIBAN, types.AccountTypeAsset)

	logger := log.New(io.Discard)
	session := pipeline.NewSession(dialect, RunDate)
	require.NoError(t, session.BindOwnAccount(own))

	return &Fixture{
		Env: pipeline.Env{
			Session:  session,
			Resolver: resolver.New(ledger, logger),
			Logger:   logger,
		},
		Ledger: ledger,
		Own:    own,
	}
}

// Transform runs records through a fresh pipeline and fails the test on error
func (f *Fixture) Transform(t *testing.T, p *pipeline.Pipeline, records ...types.RawRecord) []types.LedgerEntry {
	t.Helper()
	entries, err := p.Transform(context.Background(), records)
	require.NoError(t, err)
	return entries
}

// Record is shorthand for building a raw record
func Record(fields map[string]string) types.RawRecord {
	return types.NewRawRecord(fields)
}
