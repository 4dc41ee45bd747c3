package pipeline

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/lox/bank-statement-importer/internal/resolver"
	"github.com/lox/bank-statement-importer/internal/types"
)

// Step rewrites a draft. Returning a nil draft drops the record; returning an
// error aborts the run.
type Step interface {
	Name() string
	Apply(ctx context.Context, d *Draft) (*Draft, error)
}

// Resolver binds counterparties to ledger accounts
type Resolver interface {
	Resolve(ctx context.Context, cp types.Counterparty, dir types.Direction) (resolver.Resolution, error)
}

// Env carries what dialect steps need from the run
type Env struct {
	Session  *Session
	Resolver Resolver
	Logger   *log.Logger
}

type stepFunc struct {
	name string
	fn   func(ctx context.Context, d *Draft) (*Draft, error)
}

// StepFunc wraps a function as a named step
func StepFunc(name string, fn func(ctx context.Context, d *Draft) (*Draft, error)) Step {
	return &stepFunc{name: name, fn: fn}
}

func (s *stepFunc) Name() string { return s.name }

func (s *stepFunc) Apply(ctx context.Context, d *Draft) (*Draft, error) {
	return s.fn(ctx, d)
}

// Pipeline applies an ordered list of steps to each record independently
type Pipeline struct {
	name   string
	steps  []Step
	logger *log.Logger
}

// New creates a pipeline with steps applied in the given order
func New(name string, logger *log.Logger, steps ...Step) *Pipeline {
	return &Pipeline{
		name:   name,
		steps:  steps,
		logger: logger,
	}
}

// Name returns the dialect name of the pipeline
func (p *Pipeline) Name() string {
	return p.name
}

// StepNames lists the step names in order
func (p *Pipeline) StepNames() []string {
	names := make([]string, len(p.steps))
	for i, s := range p.steps {
		names[i] = s.Name()
	}
	return names
}

// Apply runs one record through all steps. A nil entry with a nil error means
// the record was dropped.
func (p *Pipeline) Apply(ctx context.Context, rec types.RawRecord) (*types.LedgerEntry, error) {
	d := &Draft{Raw: rec}
	for _, s := range p.steps {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		next, err := s.Apply(ctx, d)
		if err != nil {
			return nil, fmt.Errorf("%s step %s: %w", p.name, s.Name(), err)
		}
		if next == nil {
			p.logger.Debug("Record dropped by pipeline", "pipeline", p.name, "step", s.Name())
			return nil, nil
		}
		d = next
	}
	entry := d.Entry.Clone()
	return &entry, nil
}

// Transform runs every record and returns the entries that were not dropped,
// in source order.
func (p *Pipeline) Transform(ctx context.Context, records []types.RawRecord) ([]types.LedgerEntry, error) {
	entries := make([]types.LedgerEntry, 0, len(records))
	for i, rec := range records {
		entry, err := p.Apply(ctx, rec)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i+1, err)
		}
		if entry != nil {
			entries = append(entries, *entry)
		}
	}
	return entries, nil
}
