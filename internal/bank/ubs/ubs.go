// Package ubs implements the UBS account statement CSV dialect
package ubs

import (
	"context"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/lox/bank-statement-importer/internal/bank"
	"github.com/lox/bank-statement-importer/internal/pipeline"
	"github.com/lox/bank-statement-importer/internal/statement/csvstmt"
	"github.com/lox/bank-statement-importer/internal/types"
)

const (
	colBookingDate = "Buchungsdatum"
	colValueDate   = "Valutadatum"
	colDebit       = "Belastung"
	colCredit      = "Gutschrift"
	colSingle      = "Einzelbetrag"
	colTxn         = "Transaktions-Nr."
	colDesc1       = "Beschreibung1"
	colDesc2       = "Beschreibung2"
	colDesc3       = "Beschreibung3"

	// StandingOrderPlaceholder heads the rows of a batch of standing orders.
	// The orders follow as individual rows, so the placeholder is not imported.
	StandingOrderPlaceholder = "Diverse Daueraufträge"

	// FeeCounterparty is the payee of account and card fees
	FeeCounterparty = "UBS Switzerland AG"
)

var (
	ibanPattern       = regexp.MustCompile(`IBAN: ?([A-Z]{2}[0-9]{2}(?: ?[A-Z0-9]){8,30})`)
	remittancePattern = regexp.MustCompile(`Mitteilungen: ([^;]+)`)
)

// UBS represents UBS Switzerland
type UBS struct{}

// New creates the UBS dialect
func New() *UBS {
	return &UBS{}
}

func (u *UBS) Name() string {
	return "ubs"
}

// Parse reads the export. The account IBAN is in the preamble above the header.
func (u *UBS) Parse(ctx context.Context, r io.Reader) (*types.Statement, error) {
	return csvstmt.Read(r, csvstmt.Options{
		Delimiter: ';',
		HeaderKey: colBookingDate,
		IBANKey:   "IBAN:",
	})
}

func (u *UBS) NewPipeline(env pipeline.Env) *pipeline.Pipeline {
	return pipeline.New(u.Name(), env.Logger,
		newBaseStep(env),
		pipeline.CounterpartyStep(env.Resolver),
		DebitCard(),
		Twint(),
		StandingOrder(),
		CardFee(),
		pipeline.UnpackStep(env.Session, env.Logger),
		pipeline.TagStep(env.Session),
	)
}

func (u *UBS) RequiresOwnAccount() bool {
	return false
}

// baseStep carries state between rows: continuation rows of a batch have no
// booking date or transaction number and inherit them from the row above.
type baseStep struct {
	env pipeline.Env

	prevDate time.Time
	prevTxn  string
	seq      int
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
	desc1 := raw.Value(colDesc1)

	date, txn := s.carry(raw)

	if desc1 == StandingOrderPlaceholder {
		logger.Debug("Skipping standing order placeholder", "date", date.Format(time.DateOnly))
		return nil, nil
	}
	if date.IsZero() {
		logger.Warn("Skipping row without booking date", "description", desc1)
		return nil, nil
	}

	dir, amount, ok := s.amount(raw)
	if !ok {
		return nil, nil
	}

	desc3 := raw.Value(colDesc3)
	d.Bind(own, dir, desc1)
	if m := ibanPattern.FindStringSubmatch(desc3); m != nil {
		d.Counterparty.IBAN = types.NormalizeIBAN(m[1])
	}
	d.Text = strings.Join([]string{desc1, raw.Value(colDesc2), desc3}, "; ")
	d.Entry.Amount = amount
	d.Entry.Date = date
	d.Entry.ExternalID = txn
	d.Entry.Description = description(desc1, raw.Value(colDesc2))
	if m := remittancePattern.FindStringSubmatch(desc3); m != nil {
		d.FoldRemittance(m[1])
	}
	return d, nil
}

// carry returns the row's booking date and transaction number, falling back to
// the previous row's. The previous values are updated for every row,
// including rows that are dropped afterwards.
func (s *baseStep) carry(raw types.RawRecord) (time.Time, string) {
	if date, ok := pipeline.ParseDate(raw.Value(colBookingDate), time.DateOnly); ok {
		s.prevDate = date
		s.prevTxn = raw.Value(colTxn)
		s.seq = 0
		return date, s.prevTxn
	}

	txn := raw.Value(colTxn)
	if txn == "" && s.prevTxn != "" {
		s.seq++
		txn = fmt.Sprintf("%s-%d", s.prevTxn, s.seq)
	}
	return s.prevDate, txn
}

func (s *baseStep) amount(raw types.RawRecord) (types.Direction, string, bool) {
	logger := s.env.Logger
	var dir types.Direction
	var value string
	switch {
	case raw.Has(colDebit):
		dir, value = types.DirectionDebit, raw.Value(colDebit)
	case raw.Has(colCredit):
		dir, value = types.DirectionCredit, raw.Value(colCredit)
	case raw.Has(colSingle):
		value = raw.Value(colSingle)
	default:
		logger.Warn("Skipping row without amount", "description", raw.Value(colDesc1))
		return 0, "", false
	}

	amount, err := pipeline.ParseAmount(value)
	if err != nil {
		logger.Warn("Skipping row without valid amount", "description", raw.Value(colDesc1), "error", err)
		return 0, "", false
	}
	if !raw.Has(colDebit) && !raw.Has(colCredit) {
		dir = types.DirectionCredit
		if amount.Negative {
			dir = types.DirectionDebit
		}
	}
	return dir, amount.Magnitude, true
}

func description(parts ...string) string {
	var kept []string
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, ", ")
}

// DebitCard recognizes rows like
// "Migros Zürich; Debitkarte; Zahlungsdatum: 01.03.2024 10:00; Kartennummer: xxxx1234"
func DebitCard() *pipeline.Recognizer {
	return pipeline.NewRecognizer("debit-card",
		[]string{"Debitkarte"},
		`^(?P<name>[^;]+); [^;]*Debitkarte[^;]*; Zahlungsdatum: (?P<date>\d+\.\d+\.\d+ \d+:\d+); Kartennummer: (?P<card>[\dxX*]+)`,
		pipeline.Note{Label: "Purchase Date", Group: "date"},
		pipeline.Note{Label: "Card No.", Group: "card"},
	)
}

// Twint recognizes "Max Muster; TWINT; +41791234567"
func Twint() *pipeline.Recognizer {
	return pipeline.NewRecognizer("twint",
		[]string{"TWINT"},
		`^(?P<name>[^;]+); TWINT[^;]*; (?P<account>\+?\d{10,20})`,
		pipeline.Note{Label: "Twint Account ID", Group: "account"},
	)
}

// StandingOrder recognizes "Landlord AG; Dauerauftrag; ..." and direct debits
func StandingOrder() *pipeline.Recognizer {
	return pipeline.NewRecognizer("standing-order",
		[]string{"Dauerauftrag", "Lastschrift", "LSV"},
		`^(?P<name>[^;]+); [^;]*(?P<order>Dauerauftrag|Lastschrift|LSV)`,
	).Then(func(d *pipeline.Draft, m pipeline.Match) {
		if m["order"] == "Dauerauftrag" {
			d.Entry.AppendNote("Standing order")
		} else {
			d.Entry.AppendNote("Direct debit")
		}
	})
}

// CardFee recognizes account and card fees, which UBS books against itself
func CardFee() *pipeline.Recognizer {
	return pipeline.NewRecognizer("card-fee",
		[]string{"gebühr", "Gebühr", "Preis für"},
		`^(?P<fee>[^;]*(?:[Gg]ebühr|Preis für)[^;]*)`,
	).Then(func(d *pipeline.Draft, m pipeline.Match) {
		d.Entry.SetCounterpartyName(FeeCounterparty)
		d.Entry.AppendNote("Fee: " + m["fee"])
	})
}

var (
	_ bank.Bank     = (*UBS)(nil)
	_ pipeline.Step = (*baseStep)(nil)
)
