package pipeline

import (
	"context"

	"github.com/charmbracelet/log"
	"github.com/lox/bank-statement-importer/internal/types"
)

// CounterpartyStep replaces the free-text counterparty with a resolved
// account when the bank provided an IBAN.
func CounterpartyStep(r Resolver) Step {
	return StepFunc("counterparty", func(ctx context.Context, d *Draft) (*Draft, error) {
		if types.NormalizeIBAN(d.Counterparty.IBAN) == "" {
			return d, nil
		}
		res, err := r.Resolve(ctx, d.Counterparty, d.Direction)
		if err != nil {
			return nil, err
		}
		d.CounterpartyRef().ID = res.Account.ID
		if res.Transfer {
			d.Entry.Kind = types.TransactionKindTransfer
		}
		return d, nil
	})
}

// UnpackStep checks that exactly one side is the own account and strips the
// pipeline bookkeeping from the draft.
func UnpackStep(session *Session, logger *log.Logger) Step {
	return StepFunc("unpack", func(ctx context.Context, d *Draft) (*Draft, error) {
		own, ok := session.OwnAccount()
		if !ok {
			return nil, ErrNoOwnAccount
		}
		if n := d.Entry.OwnSides(own.ID); n != 1 {
			logger.Warn("Skipping transaction not bound to own account exactly once",
				"description", d.Entry.Description,
				"date", d.Entry.Date.Format("2006-01-02"),
				"own_sides", n)
			return nil, nil
		}
		return &Draft{
			Raw:       d.Raw,
			Direction: d.Direction,
			Entry:     d.Entry,
		}, nil
	})
}

// TagStep stamps the run's import tag on the entry
func TagStep(session *Session) Step {
	return StepFunc("tag", func(ctx context.Context, d *Draft) (*Draft, error) {
		d.Entry.AddTag(session.Tag())
		return d, nil
	})
}
