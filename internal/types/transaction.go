package types

import (
	"strings"
	"time"

	"golang.org/x/exp/slices"
)

// TransactionKind is the ledger's transaction type
type TransactionKind string

const (
	TransactionKindDeposit    TransactionKind = "deposit"
	TransactionKindWithdrawal TransactionKind = "withdrawal"
	TransactionKindTransfer   TransactionKind = "transfer"
)

// Direction tells whether money flows into or out of the owned account
type Direction int

const (
	DirectionCredit Direction = iota
	DirectionDebit
)

func (d Direction) String() string {
	if d == DirectionDebit {
		return "debit"
	}
	return "credit"
}

// Kind returns the default ledger kind for a direction
func (d Direction) Kind() TransactionKind {
	if d == DirectionDebit {
		return TransactionKindWithdrawal
	}
	return TransactionKindDeposit
}

// LedgerEntry is a normalized transaction ready to be submitted to the ledger
type LedgerEntry struct {
	Amount      string          `json:"amount"`
	Description string          `json:"description"`
	Date        time.Time       `json:"date"`
	Kind        TransactionKind `json:"type"`
	ExternalID  string          `json:"external_id,omitempty"`
	Source      AccountRef      `json:"source"`
	Destination AccountRef      `json:"destination"`
	Notes       string          `json:"notes,omitempty"`
	Tags        []string        `json:"tags,omitempty"`
}

// AppendNote adds a line to the notes, keeping previous lines
func (e *LedgerEntry) AppendNote(line string) {
	if line == "" {
		return
	}
	if e.Notes == "" {
		e.Notes = line
		return
	}
	e.Notes = e.Notes + "\n" + line
}

// AddTag appends a tag unless it is already present
func (e *LedgerEntry) AddTag(tag string) {
	if tag == "" || slices.Contains(e.Tags, tag) {
		return
	}
	e.Tags = append(e.Tags, tag)
}

// CounterpartySide returns the side that is not the own account for the current kind.
// Withdrawals pay out to the destination, everything else is sourced from the counterparty.
func (e *LedgerEntry) CounterpartySide() *AccountRef {
	if e.Kind == TransactionKindWithdrawal {
		return &e.Destination
	}
	return &e.Source
}

// SetCounterpartyName overwrites the free-text counterparty name
func (e *LedgerEntry) SetCounterpartyName(name string) {
	name = strings.TrimSpace(name)
	if name == "" {
		return
	}
	e.CounterpartySide().Name = name
}

// OwnSides counts how many sides of the entry are bound to the given account
func (e LedgerEntry) OwnSides(ownID string) int {
	n := 0
	if e.Source.ID == ownID {
		n++
	}
	if e.Destination.ID == ownID {
		n++
	}
	return n
}

// Clone returns a deep copy of the entry
func (e LedgerEntry) Clone() LedgerEntry {
	e.Tags = slices.Clone(e.Tags)
	return e
}
