// Package ubscard implements the UBS credit card CSV dialect. The export has
// no transaction ids, so ids are derived from the row content.
package ubscard

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/lox/bank-statement-importer/internal/bank"
	"github.com/lox/bank-statement-importer/internal/pipeline"
	"github.com/lox/bank-statement-importer/internal/statement/csvstmt"
	"github.com/lox/bank-statement-importer/internal/types"
	"golang.org/x/text/encoding/charmap"
)

const (
	colPurchaseDate     = "Einkaufsdatum"
	colText             = "Buchungstext"
	colSector           = "Branche"
	colAmount           = "Betrag"
	colOriginalCurrency = "Originalwährung"
	colRate             = "Kurs"
	colCurrency         = "Währung"
	colDebit            = "Belastung"
	colCredit           = "Gutschrift"
	colBookingDate      = "Buchung"

	dateLayout = "02.01.2006"

	// FeeCounterparty is the payee of card fees
	FeeCounterparty = "UBS Card Services"
)

// UBSCard represents UBS credit card statements
type UBSCard struct{}

// New creates the UBS credit card dialect
func New() *UBSCard {
	return &UBSCard{}
}

func (u *UBSCard) Name() string {
	return "ubscard"
}

// Parse reads the Windows-1252 encoded export
func (u *UBSCard) Parse(ctx context.Context, r io.Reader) (*types.Statement, error) {
	return csvstmt.Read(r, csvstmt.Options{
		Delimiter: ';',
		Encoding:  charmap.Windows1252,
		HeaderKey: colPurchaseDate,
	})
}

func (u *UBSCard) NewPipeline(env pipeline.Env) *pipeline.Pipeline {
	return pipeline.New(u.Name(), env.Logger,
		newBaseStep(env),
		CardPayment(),
		Fee(),
		CategoryStep(),
		ForeignAmountStep(),
		pipeline.UnpackStep(env.Session, env.Logger),
		pipeline.TagStep(env.Session),
	)
}

// RequiresOwnAccount is true, the card account has no IBAN
func (u *UBSCard) RequiresOwnAccount() bool {
	return true
}

// baseStep numbers the rows of each day so that identical purchases on the
// same day get distinct ids. The sequence restarts when the date changes.
type baseStep struct {
	env pipeline.Env

	day time.Time
	seq int
}

func newBaseStep(env pipeline.Env) *baseStep {
	return &baseStep{env: env}
}

func (s *baseStep) Name() string {
	return "base"
}

func (s *baseStep) Apply(ctx context.Context, d *pipeline.Draft) (*pipeline.Draft, error) {
	own, ok := s.env.Session.OwnAccount()
	if !ok {
		return nil, pipeline.ErrNoOwnAccount
	}
	logger := s.env.Logger
	raw := d.Raw
	text := raw.Value(colText)

	date, ok := pipeline.ParseDate(raw.Value(colPurchaseDate), dateLayout)
	if !ok {
		date, ok = pipeline.ParseDate(raw.Value(colBookingDate), dateLayout)
	}
	if !ok {
		// summary rows at the end of the export have no dates
		logger.Debug("Skipping row without date", "text", text)
		return nil, nil
	}

	var dir types.Direction
	var value string
	switch {
	case raw.Has(colDebit):
		dir, value = types.DirectionDebit, raw.Value(colDebit)
	case raw.Has(colCredit):
		dir, value = types.DirectionCredit, raw.Value(colCredit)
	default:
		logger.Warn("Skipping row without amount", "text", text)
		return nil, nil
	}
	amount, err := pipeline.ParseAmount(value)
	if err != nil {
		logger.Warn("Skipping row without valid amount", "text", text, "error", err)
		return nil, nil
	}

	if !date.Equal(s.day) {
		s.day = date
		s.seq = 0
	}
	s.seq++

	d.Bind(own, dir, text)
	d.Text = text
	d.Entry.Amount = amount.Magnitude
	d.Entry.Date = date
	d.Entry.Description = text
	d.Entry.ExternalID = ExternalID(date, text, s.seq)
	return d, nil
}

// ExternalID derives a stable id from the purchase date, the booking text and
// the row's position within its day
func ExternalID(date time.Time, text string, seq int) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%d", date.Format(time.DateOnly), text, seq)))
	return "ubscard-" + hex.EncodeToString(sum[:])[:16]
}

// CardPayment recognizes the monthly settlement "IHRE ZAHLUNG - DANKE",
// which is booked as a deposit onto the card account
func CardPayment() *pipeline.Recognizer {
	return pipeline.NewRecognizer("card-payment",
		[]string{"ZAHLUNG"},
		`ZAHLUNG.*DANKE`,
	).Then(func(d *pipeline.Draft, m pipeline.Match) {
		if d.Direction != types.DirectionCredit {
			return
		}
		d.Entry.Kind = types.TransactionKindDeposit
		d.Entry.AppendNote("Card payment")
	})
}

// Fee recognizes card fees and surcharges
func Fee() *pipeline.Recognizer {
	return pipeline.NewRecognizer("fee",
		[]string{"GEB", "Geb", "geb", "JAHRESBEITRAG", "Jahresbeitrag", "ZUSCHLAG", "Zuschlag"},
		`(?i)^(?P<fee>.*(?:gebühr|gebuehr|jahresbeitrag|zuschlag).*)$`,
	).Then(func(d *pipeline.Draft, m pipeline.Match) {
		d.Entry.SetCounterpartyName(FeeCounterparty)
		d.Entry.AppendNote("Fee: " + m["fee"])
	})
}

// CategoryStep notes the merchant category the card issuer reports
func CategoryStep() pipeline.Step {
	return pipeline.StepFunc("category", func(ctx context.Context, d *pipeline.Draft) (*pipeline.Draft, error) {
		if sector := d.Raw.Value(colSector); sector != "" {
			d.Entry.AppendNote("Category: " + sector)
		}
		return d, nil
	})
}

// ForeignAmountStep notes the original amount of purchases in another currency
func ForeignAmountStep() pipeline.Step {
	return pipeline.StepFunc("foreign-amount", func(ctx context.Context, d *pipeline.Draft) (*pipeline.Draft, error) {
		original := d.Raw.Value(colOriginalCurrency)
		if original == "" || strings.EqualFold(original, d.Raw.Value(colCurrency)) || !d.Raw.Has(colAmount) {
			return d, nil
		}
		note := fmt.Sprintf("Original Amount: %s %s", d.Raw.Value(colAmount), original)
		if rate := d.Raw.Value(colRate); rate != "" {
			note += fmt.Sprintf(" (rate %s)", rate)
		}
		d.Entry.AppendNote(note)
		return d, nil
	})
}

var (
	_ bank.Bank     = (*UBSCard)(nil)
	_ pipeline.Step = (*baseStep)(nil)
)
