// Package fireflytest provides an in-memory ledger for tests.
package fireflytest

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/lox/bank-statement-importer/internal/firefly"
	"github.com/lox/bank-statement-importer/internal/types"
)

// Ledger mimics the ledger API: exact account lookups, name uniqueness on
// creation, duplicate detection on submission.
type Ledger struct {
	mu sync.Mutex

	Accounts     []types.Account
	Tags         []string
	Transactions []types.LedgerEntry

	// TakenNames are names that collide on creation regardless of type
	TakenNames map[string]bool
	// RuleDeletes holds descriptions a server-side rule deletes after creation
	RuleDeletes map[string]bool
	// SubmitErr, when set, is returned by every submission
	SubmitErr error

	calls  map[string]int
	nextID int
}

func New() *Ledger {
	return &Ledger{
		TakenNames:  make(map[string]bool),
		RuleDeletes: make(map[string]bool),
		calls:       make(map[string]int),
		nextID:      100,
	}
}

// AddAccount seeds an existing account
func (l *Ledger) AddAccount(name, iban string, accountType types.AccountType) types.Account {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.addLocked(name, iban, accountType)
}

func (l *Ledger) addLocked(name, iban string, accountType types.AccountType) types.Account {
	l.nextID++
	acc := types.Account{
		ID:   strconv.Itoa(l.nextID),
		Name: name,
		IBAN: types.NormalizeIBAN(iban),
		Type: accountType,
	}
	l.Accounts = append(l.Accounts, acc)
	return acc
}

// Calls returns how often an operation was invoked
func (l *Ledger) Calls(op string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls[op]
}

func (l *Ledger) FindAccount(ctx context.Context, identifier string, accountType types.AccountType, field types.SearchField) (*types.Account, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls["FindAccount"]++
	for _, a := range l.Accounts {
		if a.Type != accountType {
			continue
		}
		switch field {
		case types.SearchFieldIBAN:
			if a.IBAN != "" && a.IBAN == types.NormalizeIBAN(identifier) {
				acc := a
				return &acc, nil
			}
		default:
			if strings.EqualFold(a.Name, strings.TrimSpace(identifier)) {
				acc := a
				return &acc, nil
			}
		}
	}
	return nil, nil
}

func (l *Ledger) CreateAccount(ctx context.Context, iban, name string, accountType types.AccountType) (*types.Account, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls["CreateAccount"]++
	if l.TakenNames[name] {
		return nil, fmt.Errorf("create account: %w", firefly.ErrNameConflict)
	}
	for _, a := range l.Accounts {
		if strings.EqualFold(a.Name, name) {
			return nil, fmt.Errorf("create account: %w", firefly.ErrNameConflict)
		}
	}
	acc := l.addLocked(name, iban, accountType)
	return &acc, nil
}

func (l *Ledger) CreateTag(ctx context.Context, name string, date time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls["CreateTag"]++
	l.Tags = append(l.Tags, name)
	return nil
}

func (l *Ledger) FindTransactionByExternalID(ctx context.Context, externalID string) (*firefly.Transaction, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls["FindTransactionByExternalID"]++
	for i, tx := range l.Transactions {
		if tx.ExternalID == externalID {
			return &firefly.Transaction{
				GroupID:     strconv.Itoa(i + 1),
				Description: tx.Description,
				Amount:      tx.Amount,
				ExternalID:  tx.ExternalID,
				Type:        string(tx.Kind),
			}, nil
		}
	}
	return nil, nil
}

func (l *Ledger) SubmitTransaction(ctx context.Context, entry types.LedgerEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls["SubmitTransaction"]++
	if l.SubmitErr != nil {
		return l.SubmitErr
	}
	if l.RuleDeletes[entry.Description] {
		return fmt.Errorf("store transaction: %w", firefly.ErrRuleDropped)
	}
	for _, tx := range l.Transactions {
		if hash(tx) == hash(entry) {
			return fmt.Errorf("store transaction: %w", firefly.ErrDuplicateTransaction)
		}
	}
	l.Transactions = append(l.Transactions, entry.Clone())
	return nil
}

func hash(e types.LedgerEntry) string {
	return strings.Join([]string{
		e.Date.Format(time.DateOnly), e.Amount, e.Description, string(e.Kind),
		e.Source.ID, e.Source.Name, e.Destination.ID, e.Destination.Name, e.ExternalID,
	}, "|")
}
