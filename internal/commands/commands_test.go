package commands

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alecthomas/kong"
	"github.com/lox/bank-statement-importer/internal/statement/camt053"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testCLI struct {
	CommonConfig
	LedgerConfig
	Limit int `help:"Limit" default:"0"`
}

func parse(t *testing.T, config string, args ...string) testCLI {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(config), 0o600))

	var cli testCLI
	parser, err := kong.New(&cli, kong.Configuration(YAML, path))
	require.NoError(t, err)
	_, err = parser.Parse(args)
	require.NoError(t, err)
	return cli
}

func TestYAMLConfig(t *testing.T) {
	cli := parse(t, `
ledger:
  url: https://firefly.example.com
token: secret
log_level: debug
retry-attempts: 5
ledger-timeout: 10s
limit: 20
`)
	assert.Equal(t, "https://firefly.example.com", cli.LedgerURL)
	assert.Equal(t, "secret", cli.Token)
	assert.Equal(t, "debug", cli.LogLevel)
	assert.Equal(t, uint(5), cli.RetryAttempts)
	assert.Equal(t, 10*time.Second, cli.LedgerTimeout)
	assert.Equal(t, 20, cli.Limit)
	assert.Equal(t, "./data", cli.DataDir)
}

func TestFlagsOverrideYAMLConfig(t *testing.T) {
	cli := parse(t, "token: from-file\nlimit: 20\n", "--token", "from-flag")
	assert.Equal(t, "from-flag", cli.Token)
	assert.Equal(t, 20, cli.Limit)
}

func TestEmptyYAMLConfig(t *testing.T) {
	cli := parse(t, "")
	assert.Equal(t, "info", cli.LogLevel)
	assert.Equal(t, uint(3), cli.RetryAttempts)
}

func TestYAMLRejectsInvalidDocument(t *testing.T) {
	_, err := YAML(strings.NewReader("- not\n- a map\n"))
	assert.Error(t, err)
}

func TestSetupRegistry(t *testing.T) {
	registry := SetupRegistry(camt053.AmountPolicyEntry)
	assert.Equal(t, strings.Split(Dialects, ","), registry.List())

	for _, name := range registry.List() {
		b, ok := registry.Get(name)
		require.True(t, ok)
		assert.Equal(t, name, b.Name())
	}
}

func TestSetupLogger(t *testing.T) {
	_, err := SetupLogger(io.Discard, "loud")
	assert.Error(t, err)

	logger, err := SetupLogger(io.Discard, "warn")
	require.NoError(t, err)
	assert.Equal(t, "warn", logger.GetLevel().String())
}

func TestSetupLedgerRequiresURL(t *testing.T) {
	logger, err := SetupLogger(io.Discard, "info")
	require.NoError(t, err)

	_, err = SetupLedger(LedgerConfig{Token: "t", LedgerTimeout: time.Second, RetryAttempts: 1}, logger)
	assert.ErrorContains(t, err, "ledger URL is required")

	client, err := SetupLedger(LedgerConfig{LedgerURL: "http://localhost:8080", Token: "t", LedgerTimeout: time.Second, RetryAttempts: 1}, logger)
	require.NoError(t, err)
	assert.NotNil(t, client)
}

func TestSetupJournal(t *testing.T) {
	logger, err := SetupLogger(io.Discard, "info")
	require.NoError(t, err)

	journal, err := SetupJournal(t.TempDir(), logger)
	require.NoError(t, err)
	assert.NoError(t, journal.Close())
}
