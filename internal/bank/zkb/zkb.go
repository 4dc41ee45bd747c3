// Package zkb implements the Zürcher Kantonalbank CSV export dialect
package zkb

import (
	"context"
	"io"
	"strings"

	"github.com/lox/bank-statement-importer/internal/bank"
	"github.com/lox/bank-statement-importer/internal/pipeline"
	"github.com/lox/bank-statement-importer/internal/statement/csvstmt"
	"github.com/lox/bank-statement-importer/internal/types"
)

const (
	colDate        = "Datum"
	colText        = "Buchungstext"
	colPurpose     = "Zahlungszweck"
	colDetails     = "Details"
	colReference   = "ZKB-Referenz"
	colDebit       = "Belastung CHF"
	colCredit      = "Gutschrift CHF"
	colValueDate   = "Valuta"
	colDetailValue = "Betrag Detail"

	dateLayout = "02.01.2006"
)

// ZKB represents the Zürcher Kantonalbank
type ZKB struct{}

// New creates the ZKB dialect
func New() *ZKB {
	return &ZKB{}
}

func (z *ZKB) Name() string {
	return "zkb"
}

// Parse reads the semicolon separated export, which may start with a BOM
func (z *ZKB) Parse(ctx context.Context, r io.Reader) (*types.Statement, error) {
	return csvstmt.Read(r, csvstmt.Options{Delimiter: ';', HeaderKey: colText})
}

func (z *ZKB) NewPipeline(env pipeline.Env) *pipeline.Pipeline {
	return pipeline.New(z.Name(), env.Logger,
		baseStep(env),
		DebitCard(),
		Twint(),
		StandingOrder(),
		pipeline.UnpackStep(env.Session, env.Logger),
		pipeline.TagStep(env.Session),
	)
}

// RequiresOwnAccount is true, the export does not name the account
func (z *ZKB) RequiresOwnAccount() bool {
	return true
}

func baseStep(env pipeline.Env) pipeline.Step {
	logger := env.Logger
	return pipeline.StepFunc("base", func(ctx context.Context, d *pipeline.Draft) (*pipeline.Draft, error) {
		own, ok := env.Session.OwnAccount()
		if !ok {
			return nil, pipeline.ErrNoOwnAccount
		}
		raw := d.Raw
		text := raw.Value(colText)
		ref := raw.Value(colReference)

		debit, credit := raw.Value(colDebit), raw.Value(colCredit)
		var dir types.Direction
		var value string
		switch {
		case debit != "" && credit != "":
			logger.Warn("Skipping row with both debit and credit amount", "reference", ref, "text", text)
			return nil, nil
		case debit != "":
			dir, value = types.DirectionDebit, debit
		case credit != "":
			dir, value = types.DirectionCredit, credit
		default:
			// collective order breakdown rows only carry "Betrag Detail"
			logger.Debug("Skipping detail row", "text", text, "detail_amount", raw.Value(colDetailValue))
			return nil, nil
		}

		amount, err := pipeline.ParseAmount(value)
		if err != nil {
			logger.Warn("Skipping row without valid amount", "reference", ref, "error", err)
			return nil, nil
		}

		date, ok := pipeline.ParseDate(raw.Value(colDate), dateLayout)
		if !ok {
			date, ok = pipeline.ParseDate(raw.Value(colValueDate), dateLayout)
			if !ok {
				logger.Warn("Skipping row without date", "reference", ref, "text", text)
				return nil, nil
			}
			logger.Warn("Row has no booking date, using value date", "reference", ref, "date", date.Format("2006-01-02"))
		}

		d.Bind(own, dir, counterpartyName(text))
		d.Text = text
		d.Entry.Amount = amount.Magnitude
		d.Entry.Date = date
		d.Entry.Description = text
		d.Entry.ExternalID = ref
		d.FoldRemittance(raw.Value(colPurpose))
		d.Entry.AppendNote(raw.Value(colDetails))
		return d, nil
	})
}

// counterpartyName returns the text after the first ": ", which is where
// ZKB puts the payee or payer
func counterpartyName(text string) string {
	if _, after, ok := strings.Cut(text, ": "); ok {
		return strings.TrimSpace(after)
	}
	return ""
}

// DebitCard recognizes "Einkauf ZKB Visa Debit Karte Nr. xxxx1234, Migros Zürich"
func DebitCard() *pipeline.Recognizer {
	return pipeline.NewRecognizer("debit-card",
		[]string{"Einkauf", "Bezug"},
		`^(?:Einkauf|Bezug) .*?(?:Karte|card) Nr\. (?P<card>[\dxX* ]+), (?P<name>.+)$`,
		pipeline.Note{Label: "Card No.", Group: "card"},
	)
}

// Twint recognizes "TWINT Belastung: Max Muster +41791234567"
func Twint() *pipeline.Recognizer {
	return pipeline.NewRecognizer("twint",
		[]string{"TWINT"},
		`^TWINT [^:]+: (?P<name>.+?) (?P<account>\+?\d{10,20})$`,
		pipeline.Note{Label: "Twint Account ID", Group: "account"},
	)
}

// StandingOrder recognizes "Dauerauftrag: Landlord AG" and "LSV: Insurer AG"
func StandingOrder() *pipeline.Recognizer {
	return pipeline.NewRecognizer("standing-order",
		[]string{"Dauerauftrag", "LSV", "Lastschrift"},
		`^(?P<order>Dauerauftrag|LSV\+?|Lastschrift)\S*:? (?P<name>.+)$`,
	).Then(func(d *pipeline.Draft, m pipeline.Match) {
		if m["order"] == "Dauerauftrag" {
			d.Entry.AppendNote("Standing order")
		} else {
			d.Entry.AppendNote("Direct debit")
		}
	})
}

var _ bank.Bank = (*ZKB)(nil)
