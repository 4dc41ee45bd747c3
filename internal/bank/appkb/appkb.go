// Package appkb implements the Appenzeller Kantonalbank camt.053 dialect.
// The bank puts card, TWINT and standing order details into the entry text.
package appkb

import (
	"context"
	"io"

	"github.com/lox/bank-statement-importer/internal/bank"
	"github.com/lox/bank-statement-importer/internal/bank/camt"
	"github.com/lox/bank-statement-importer/internal/pipeline"
	"github.com/lox/bank-statement-importer/internal/statement/camt053"
	"github.com/lox/bank-statement-importer/internal/types"
)

// AppKB represents the Appenzeller Kantonalbank
type AppKB struct {
	policy camt053.AmountPolicy
}

// New creates the AppKB dialect
func New(policy camt053.AmountPolicy) *AppKB {
	return &AppKB{policy: policy}
}

func (a *AppKB) Name() string {
	return "appkb"
}

func (a *AppKB) Parse(ctx context.Context, r io.Reader) (*types.Statement, error) {
	return camt053.New(a.policy).Parse(r)
}

func (a *AppKB) NewPipeline(env pipeline.Env) *pipeline.Pipeline {
	return pipeline.New(a.Name(), env.Logger,
		camt.BaseStep(env),
		pipeline.CounterpartyStep(env.Resolver),
		DebitCard(),
		Twint(),
		StandingOrder(),
		pipeline.UnpackStep(env.Session, env.Logger),
		pipeline.TagStep(env.Session),
	)
}

func (a *AppKB) RequiresOwnAccount() bool {
	return false
}

// DebitCard recognizes "Debitkarten-Zahlung 01.02.2024 10:00 COOP Kartennummer: 1234**"
func DebitCard() *pipeline.Recognizer {
	return pipeline.NewRecognizer("debit-card",
		[]string{"Debitkarten-"},
		`^Debitkarten-\S+ (?P<date>\d+\.\d+\.\d+ \d+:\d+) (?P<name>.+) Kartennummer: (?P<card>[\d*]+)`,
		pipeline.Note{Label: "Purchase Date", Group: "date"},
		pipeline.Note{Label: "Card No.", Group: "card"},
	)
}

// Twint recognizes "TWINT-Zahlung Max Muster 0041791234567"
func Twint() *pipeline.Recognizer {
	return pipeline.NewRecognizer("twint",
		[]string{"TWINT"},
		`^TWINT-\S+ (?P<name>.+) (?P<account>\d{12,20})`,
		pipeline.Note{Label: "Twint Account ID", Group: "account"},
	)
}

// StandingOrder recognizes "Dauerauftrag: Landlord AG" and "Lastschrift: Insurer"
func StandingOrder() *pipeline.Recognizer {
	return pipeline.NewRecognizer("standing-order",
		[]string{"Dauerauftrag", "Lastschrift"},
		`^(?P<order>Dauerauftrag|Lastschrift)\S*:? (?P<name>.+)$`,
	).Then(func(d *pipeline.Draft, m pipeline.Match) {
		if m["order"] == "Lastschrift" {
			d.Entry.AppendNote("Direct debit")
		} else {
			d.Entry.AppendNote("Standing order")
		}
		if mandate := d.Raw.Value(camt053.FieldMandateID); mandate != "" {
			d.Entry.AppendNote("Mandate: " + mandate)
		}
	})
}

var _ bank.Bank = (*AppKB)(nil)
