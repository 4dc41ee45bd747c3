// Package camt implements the generic camt.053 dialect. Its base step is
// shared by bank-specific camt dialects.
package camt

import (
	"context"
	"io"
	"strings"
	"time"

	"github.com/lox/bank-statement-importer/internal/bank"
	"github.com/lox/bank-statement-importer/internal/pipeline"
	"github.com/lox/bank-statement-importer/internal/statement/camt053"
	"github.com/lox/bank-statement-importer/internal/types"
)

const (
	indicatorCredit = "CRDT"
	indicatorDebit  = "DBIT"
	statusPending   = "PDNG"
)

// Camt is a bank exporting plain camt.053 statements
type Camt struct {
	policy camt053.AmountPolicy
}

// New creates the generic camt dialect
func New(policy camt053.AmountPolicy) *Camt {
	return &Camt{policy: policy}
}

func (c *Camt) Name() string {
	return "camt"
}

func (c *Camt) Parse(ctx context.Context, r io.Reader) (*types.Statement, error) {
	return camt053.New(c.policy).Parse(r)
}

func (c *Camt) NewPipeline(env pipeline.Env) *pipeline.Pipeline {
	return pipeline.New(c.Name(), env.Logger,
		BaseStep(env),
		pipeline.CounterpartyStep(env.Resolver),
		pipeline.UnpackStep(env.Session, env.Logger),
		pipeline.TagStep(env.Session),
	)
}

// RequiresOwnAccount is false, camt.053 carries the account IBAN
func (c *Camt) RequiresOwnAccount() bool {
	return false
}

// BaseStep builds the draft from a camt.053 record. Credits are sourced from
// the debtor, debits go to the creditor. Pending entries and records without
// a usable amount, indicator or date are dropped.
func BaseStep(env pipeline.Env) pipeline.Step {
	logger := env.Logger
	return pipeline.StepFunc("base", func(ctx context.Context, d *pipeline.Draft) (*pipeline.Draft, error) {
		own, ok := env.Session.OwnAccount()
		if !ok {
			return nil, pipeline.ErrNoOwnAccount
		}
		raw := d.Raw
		ref := raw.Value(camt053.FieldAccountServicerReference)

		if raw.Value(camt053.FieldStatus) == statusPending {
			logger.Info("Skipping pending entry", "reference", ref)
			return nil, nil
		}

		var dir types.Direction
		var name, iban string
		switch raw.Value(camt053.FieldCreditDebitIndicator) {
		case indicatorCredit:
			dir = types.DirectionCredit
			name = raw.Value(camt053.FieldDebtorName)
			iban = raw.Value(camt053.FieldDebtorIBAN)
		case indicatorDebit:
			dir = types.DirectionDebit
			name = raw.Value(camt053.FieldCreditorName)
			iban = raw.Value(camt053.FieldCreditorIBAN)
		default:
			logger.Warn("Skipping entry with unknown credit/debit indicator",
				"reference", ref,
				"indicator", raw.Value(camt053.FieldCreditDebitIndicator))
			return nil, nil
		}

		amount, err := pipeline.ParseAmount(raw.Value(camt053.FieldAmount))
		if err != nil {
			logger.Warn("Skipping entry without valid amount", "reference", ref, "error", err)
			return nil, nil
		}

		date, ok := pipeline.ParseDate(raw.Value(camt053.FieldBookingDate), time.DateOnly)
		if !ok {
			date, ok = pipeline.ParseDate(raw.Value(camt053.FieldValueDate), time.DateOnly)
			if !ok {
				logger.Warn("Skipping entry without booking or value date", "reference", ref)
				return nil, nil
			}
			logger.Warn("Entry has no booking date, using value date", "reference", ref, "date", date.Format(time.DateOnly))
		}

		text := raw.Value(camt053.FieldAdditionalEntryInformation)
		d.Bind(own, dir, name)
		d.Counterparty.IBAN = iban
		d.Text = text
		d.Entry.Amount = amount.Magnitude
		d.Entry.Date = date
		d.Entry.Description = text
		d.Entry.ExternalID = ref
		d.FoldRemittance(raw.Value(camt053.FieldRemittanceInformation))
		if d.Entry.Description == "" {
			d.Entry.Description = d.Counterparty.Name
		}
		if strings.EqualFold(raw.Value(camt053.FieldReversalIndicator), "true") {
			d.Entry.AppendNote("Reversal")
		}
		return d, nil
	})
}

var _ bank.Bank = (*Camt)(nil)
