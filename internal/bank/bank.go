package bank

import (
	"context"
	"io"

	"github.com/lox/bank-statement-importer/internal/pipeline"
	"github.com/lox/bank-statement-importer/internal/types"
	"golang.org/x/exp/slices"
)

// Bank is a statement dialect: how one bank's export is parsed and which
// pipeline normalizes its records
type Bank interface {
	// Name returns the dialect name used on the command line
	Name() string

	// Parse reads a statement export
	Parse(ctx context.Context, r io.Reader) (*types.Statement, error)

	// NewPipeline builds the transform pipeline for one run. Steps may keep
	// state across records, so pipelines must not be shared between runs.
	NewPipeline(env pipeline.Env) *pipeline.Pipeline

	// RequiresOwnAccount reports whether the export lacks the owner's IBAN,
	// so the own account has to be named by the user
	RequiresOwnAccount() bool
}

// Registry maintains a list of available bank implementations
type Registry struct {
	banks map[string]Bank
}

// NewRegistry creates a new bank registry
func NewRegistry() *Registry {
	return &Registry{
		banks: make(map[string]Bank),
	}
}

// Register adds a bank implementation to the registry
func (r *Registry) Register(b Bank) {
	r.banks[b.Name()] = b
}

// Get returns a bank implementation by name
func (r *Registry) Get(name string) (Bank, bool) {
	b, ok := r.banks[name]
	return b, ok
}

// List returns the registered bank names in sorted order
func (r *Registry) List() []string {
	names := make([]string, 0, len(r.banks))
	for name := range r.banks {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
