package commands

import (
	"time"

	"github.com/alecthomas/kong"
)

// DefaultConfigFile is read when present, before any --config file
const DefaultConfigFile = "~/.config/bank-statement-importer.yaml"

// CommonConfig contains configuration common to all commands
type CommonConfig struct {
	// DataDir is the path to the data directory holding the import journal
	DataDir string `help:"Path to data directory" default:"./data" env:"IMPORTER_DATA_DIR"`
	// LogLevel is the logging level to use
	LogLevel string `help:"Log level (debug, info, warn, error)" default:"info" enum:"debug,info,warn,error" env:"IMPORTER_LOG_LEVEL"`
	// Config is an optional YAML file with flag defaults
	Config kong.ConfigFlag `help:"Path to a YAML config file" type:"existingfile"`
}

// LedgerConfig contains flag definitions for the Firefly III connection
type LedgerConfig struct {
	LedgerURL     string        `name:"ledger-url" help:"Firefly III base URL" env:"FIREFLY_URL"`
	Token         string        `help:"Firefly III personal access token" env:"FIREFLY_TOKEN"`
	LedgerTimeout time.Duration `name:"ledger-timeout" help:"Timeout for a single ledger request" default:"30s"`
	RetryAttempts uint          `help:"Attempts for transient ledger failures" default:"3"`
}
