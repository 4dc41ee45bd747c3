package zkb

import (
	"context"
	"strings"
	"testing"

	"github.com/lox/bank-statement-importer/internal/bank/banktest"
	"github.com/lox/bank-statement-importer/internal/pipeline"
	"github.com/lox/bank-statement-importer/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const export = "\ufeff" + `"Datum";"Buchungstext";"Whg";"Betrag Detail";"ZKB-Referenz";"Referenznummer";"Belastung CHF";"Gutschrift CHF";"Valuta";"Saldo CHF";"Zahlungszweck";"Details"
"01.03.2024";"Gutschrift: Employer AG";"";"";"Z1";"";"";"5'000.00";"01.03.2024";"12'000.00";"Lohn März";""
"02.03.2024";"Einkauf ZKB Visa Debit Karte Nr. xxxx1234, Migros Zürich";"";"";"Z2";"";"45.10";"";"02.03.2024";"11'954.90";"";""
"03.03.2024";"Sammelauftrag: 2 Zahlungen";"";"";"Z3";"";"300.00";"";"03.03.2024";"11'654.90";"";""
"";"Landlord AG";"CHF";"200.00";"";"";"";"";"";"";"";""
"";"Insurer AG";"CHF";"100.00";"";"";"";"";"";"";"";""
"04.03.2024";"TWINT Belastung: Max Muster +41791234567";"";"";"Z4";"";"12.00";"";"04.03.2024";"11'642.90";"";"Pizza"
"05.03.2024";"LSV: Krankenkasse AG";"";"";"Z5";"";"310.20";"";"05.03.2024";"11'332.70";"";""
`

func parse(t *testing.T) *types.Statement {
	t.Helper()
	stmt, err := New().Parse(context.Background(), strings.NewReader(export))
	require.NoError(t, err)
	return stmt
}

func TestParse(t *testing.T) {
	stmt := parse(t)
	assert.Empty(t, stmt.IBAN)
	require.Len(t, stmt.Records, 7)
	assert.Equal(t, "01.03.2024", stmt.Records[0].Value(colDate))
	assert.True(t, New().RequiresOwnAccount())
}

func TestTransform(t *testing.T) {
	f := banktest.New(t, "zkb")
	entries := f.Transform(t, New().NewPipeline(f.Env), parse(t).Records...)
	require.Len(t, entries, 5)

	t.Run("credit", func(t *testing.T) {
		e := entries[0]
		assert.Equal(t, types.TransactionKindDeposit, e.Kind)
		assert.Equal(t, "5000.00", e.Amount)
		assert.Equal(t, "Employer AG", e.Source.Name)
		assert.Equal(t, f.Own.ID, e.Destination.ID)
		assert.Equal(t, "Gutschrift: Employer AG (Lohn März)", e.Description)
		assert.Equal(t, "Z1", e.ExternalID)
		assert.Equal(t, "2024-03-01", e.Date.Format("2006-01-02"))
	})

	t.Run("debit card", func(t *testing.T) {
		e := entries[1]
		assert.Equal(t, types.TransactionKindWithdrawal, e.Kind)
		assert.Equal(t, "Migros Zürich", e.Destination.Name)
		assert.Equal(t, "Card No.: xxxx1234", e.Notes)
	})

	t.Run("collective order keeps total and skips details", func(t *testing.T) {
		e := entries[2]
		assert.Equal(t, "300.00", e.Amount)
		assert.Equal(t, "2 Zahlungen", e.Destination.Name)
	})

	t.Run("twint", func(t *testing.T) {
		e := entries[3]
		assert.Equal(t, "Max Muster", e.Destination.Name)
		assert.Equal(t, "Pizza\nTwint Account ID: +41791234567", e.Notes)
	})

	t.Run("direct debit", func(t *testing.T) {
		e := entries[4]
		assert.Equal(t, "Krankenkasse AG", e.Destination.Name)
		assert.Equal(t, "Direct debit", e.Notes)
		assert.Equal(t, []string{f.Env.Session.Tag()}, e.Tags)
	})
}

func TestRecognizerMisses(t *testing.T) {
	f := banktest.New(t, "zkb")
	own, _ := f.Env.Session.OwnAccount()

	for _, tt := range []struct {
		recognizer *pipeline.Recognizer
		text       string
	}{
		{DebitCard(), "Einkauf im Ausland"},
		{Twint(), "TWINT Belastung: ohne Nummer"},
		{StandingOrder(), "Storno Dauerauftrag"},
	} {
		t.Run(tt.recognizer.Name(), func(t *testing.T) {
			d := &pipeline.Draft{Raw: types.NewRawRecord(nil), Text: tt.text}
			d.Bind(own, types.DirectionDebit, "free text")
			before := *d
			before.Entry = d.Entry.Clone()

			got, err := tt.recognizer.Apply(context.Background(), d)
			require.NoError(t, err)
			assert.Equal(t, before, *got)
		})
	}
}

func TestCounterpartyName(t *testing.T) {
	assert.Equal(t, "Landlord AG", counterpartyName("Belastung eBanking: Landlord AG"))
	assert.Equal(t, "a: b", counterpartyName("x: a: b"))
	assert.Equal(t, "", counterpartyName("Kontoführung"))
}
