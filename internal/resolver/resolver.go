package resolver

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/lox/bank-statement-importer/internal/firefly"
	"github.com/lox/bank-statement-importer/internal/types"
	"golang.org/x/sync/singleflight"
)

var (
	// ErrNoIdentifier is returned for a counterparty without IBAN and name
	ErrNoIdentifier = errors.New("counterparty has neither IBAN nor name")
	// ErrOwnAccountNotFound is returned when the statement owner's asset account does not exist
	ErrOwnAccountNotFound = errors.New("own asset account not found")
)

// DryRunAccount stands in for accounts that would have been created
var DryRunAccount = types.AccountRef{ID: "-1", Name: "dry-run placeholder"}

// Ledger is the subset of the ledger client the resolver needs
type Ledger interface {
	FindAccount(ctx context.Context, identifier string, accountType types.AccountType, field types.SearchField) (*types.Account, error)
	CreateAccount(ctx context.Context, iban, name string, accountType types.AccountType) (*types.Account, error)
}

// Resolution is the outcome of resolving a counterparty
type Resolution struct {
	Account types.AccountRef
	// Transfer is set when the counterparty is one of the user's asset accounts
	Transfer bool
	// Created is set on the call that created the account
	Created bool
}

// Option configures a Resolver
type Option func(*Resolver)

// WithDryRun disables account creation
func WithDryRun(dryRun bool) Option {
	return func(r *Resolver) {
		r.dryRun = dryRun
	}
}

// WithOnCreate registers a callback for every created account
func WithOnCreate(fn func(types.Account)) Option {
	return func(r *Resolver) {
		r.onCreate = fn
	}
}

// Resolver finds or creates the ledger account for a counterparty.
// Lookups and creation for one identifier are serialized and remembered for
// the rest of the run, so a counterparty gets at most one new account.
type Resolver struct {
	ledger   Ledger
	logger   *log.Logger
	dryRun   bool
	onCreate func(types.Account)

	group singleflight.Group
	mu    sync.Mutex
	cache map[string]Resolution
}

// New creates a resolver backed by the ledger
func New(ledger Ledger, logger *log.Logger, opts ...Option) *Resolver {
	r := &Resolver{
		ledger: ledger,
		logger: logger,
		cache:  make(map[string]Resolution),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the account to bind for a counterparty. Money arriving is
// matched against revenue accounts, money leaving against expense accounts;
// then asset accounts (a transfer); otherwise a new account is created.
func (r *Resolver) Resolve(ctx context.Context, cp types.Counterparty, dir types.Direction) (Resolution, error) {
	identifier, field := cp.Identifier()
	if identifier == "" {
		return Resolution{}, ErrNoIdentifier
	}

	primary := types.AccountTypeExpense
	if dir == types.DirectionCredit {
		primary = types.AccountTypeRevenue
	}
	key := fmt.Sprintf("%s:%s:%s", primary, field, strings.ToLower(identifier))

	if res, ok := r.cached(key); ok {
		return res, nil
	}

	v, err, _ := r.group.Do(key, func() (any, error) {
		if res, ok := r.cached(key); ok {
			return res, nil
		}
		res, err := r.resolve(ctx, cp, identifier, field, primary)
		if err != nil {
			return nil, err
		}
		r.store(key, res)
		return res, nil
	})
	if err != nil {
		return Resolution{}, err
	}
	return v.(Resolution), nil
}

func (r *Resolver) resolve(ctx context.Context, cp types.Counterparty, identifier string, field types.SearchField, primary types.AccountType) (Resolution, error) {
	acc, err := r.ledger.FindAccount(ctx, identifier, primary, field)
	if err != nil {
		return Resolution{}, fmt.Errorf("failed to look up %s account %q: %w", primary, identifier, err)
	}
	if acc != nil {
		r.logger.Debug("Resolved counterparty", "identifier", identifier, "type", primary, "account_id", acc.ID)
		return Resolution{Account: acc.Ref()}, nil
	}

	acc, err = r.ledger.FindAccount(ctx, identifier, types.AccountTypeAsset, field)
	if err != nil {
		return Resolution{}, fmt.Errorf("failed to look up asset account %q: %w", identifier, err)
	}
	if acc != nil {
		r.logger.Debug("Counterparty is an own asset account", "identifier", identifier, "account_id", acc.ID)
		return Resolution{Account: acc.Ref(), Transfer: true}, nil
	}

	if r.dryRun {
		r.logger.Info("Dry run: would create account", "type", primary, "name", displayName(cp, identifier), "identifier", identifier)
		return Resolution{Account: DryRunAccount}, nil
	}

	acc, err = r.create(ctx, cp, identifier, primary)
	if err != nil {
		return Resolution{}, err
	}
	return Resolution{Account: acc.Ref(), Created: true}, nil
}

// create makes a new account, retrying once with the IBAN appended to the
// name when the name is taken.
func (r *Resolver) create(ctx context.Context, cp types.Counterparty, identifier string, accountType types.AccountType) (*types.Account, error) {
	iban := types.NormalizeIBAN(cp.IBAN)
	name := displayName(cp, identifier)

	r.logger.Info("Creating account", "type", accountType, "name", name, "iban", iban)
	acc, err := r.ledger.CreateAccount(ctx, iban, name, accountType)
	if errors.Is(err, firefly.ErrNameConflict) && iban != "" && name != iban {
		retryName := fmt.Sprintf("%s (%s)", name, iban)
		r.logger.Warn("Account name is in use, retrying", "name", name, "retry_name", retryName)
		acc, err = r.ledger.CreateAccount(ctx, iban, retryName, accountType)
		if err != nil {
			return nil, fmt.Errorf("failed to create %s account %q after name collision: %w", accountType, retryName, err)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create %s account %q: %w", accountType, name, err)
	}

	r.logger.Info("Created account", "type", accountType, "name", acc.Name, "id", acc.ID)
	if r.onCreate != nil {
		r.onCreate(*acc)
	}
	return acc, nil
}

// ResolveOwnAccount finds the statement owner's asset account by IBAN, or by
// name when the identifier is not shaped like an IBAN.
func (r *Resolver) ResolveOwnAccount(ctx context.Context, identifier string) (types.Account, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return types.Account{}, fmt.Errorf("%w: empty identifier", ErrOwnAccountNotFound)
	}
	field := types.SearchFieldName
	if types.LooksLikeIBAN(identifier) {
		field = types.SearchFieldIBAN
		identifier = types.NormalizeIBAN(identifier)
	}

	acc, err := r.ledger.FindAccount(ctx, identifier, types.AccountTypeAsset, field)
	if err != nil {
		return types.Account{}, fmt.Errorf("failed to look up own account %q: %w", identifier, err)
	}
	if acc == nil {
		return types.Account{}, fmt.Errorf("%w: %s %q", ErrOwnAccountNotFound, field, identifier)
	}
	return *acc, nil
}

func (r *Resolver) cached(key string) (Resolution, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	res, ok := r.cache[key]
	res.Created = false
	return res, ok
}

func (r *Resolver) store(key string, res Resolution) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache[key] = res
}

func displayName(cp types.Counterparty, identifier string) string {
	if name := strings.TrimSpace(cp.Name); name != "" {
		return name
	}
	return identifier
}
