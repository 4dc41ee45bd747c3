package pipeline

import (
	"fmt"
	"strings"
	"time"

	"github.com/lox/bank-statement-importer/internal/types"
	"github.com/shopspring/decimal"
)

// Draft accumulates the normalized entry for one raw record while it flows
// through a pipeline. Raw is never modified by steps.
type Draft struct {
	Raw       types.RawRecord
	Direction types.Direction
	Entry     types.LedgerEntry

	// Counterparty is the other party as identified by the bank
	Counterparty types.Counterparty
	// Text is the free text pattern recognizers match against
	Text string
}

// Bind assigns the own account to the side matching the direction and the
// counterparty name to the other side.
func (d *Draft) Bind(own types.Account, dir types.Direction, counterparty string) {
	d.Direction = dir
	d.Entry.Kind = dir.Kind()
	d.Counterparty.Name = strings.TrimSpace(counterparty)

	ownRef := types.AccountRef{ID: own.ID}
	otherRef := types.AccountRef{Name: d.Counterparty.Name}
	if dir == types.DirectionCredit {
		d.Entry.Destination = ownRef
		d.Entry.Source = otherRef
	} else {
		d.Entry.Source = ownRef
		d.Entry.Destination = otherRef
	}
}

// CounterpartyRef returns the side of the entry the counterparty sits on,
// by money direction rather than by kind.
func (d *Draft) CounterpartyRef() *types.AccountRef {
	if d.Direction == types.DirectionDebit {
		return &d.Entry.Destination
	}
	return &d.Entry.Source
}

// FoldRemittance adds remittance information to the notes and the description
func (d *Draft) FoldRemittance(remittance string) {
	remittance = strings.TrimSpace(remittance)
	if remittance == "" {
		return
	}
	d.Entry.AppendNote(remittance)
	if d.Entry.Description == "" {
		d.Entry.Description = remittance
		return
	}
	d.Entry.Description = fmt.Sprintf("%s (%s)", d.Entry.Description, remittance)
}

// Amount is a sourced amount with its sign split off
type Amount struct {
	// Magnitude is the sourced amount string without a leading sign
	Magnitude string
	Negative  bool
}

// ParseAmount validates a sourced amount and strips a leading sign character.
// Swiss exports may carry apostrophe thousands separators, which are removed.
func ParseAmount(s string) (Amount, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), "'", "")
	if s == "" {
		return Amount{}, fmt.Errorf("empty amount")
	}
	value, err := decimal.NewFromString(s)
	if err != nil {
		return Amount{}, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	magnitude := strings.TrimLeft(s, "+-")
	return Amount{Magnitude: magnitude, Negative: value.IsNegative()}, nil
}

// ParseDate tries each layout in order
func ParseDate(value string, layouts ...string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, false
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
