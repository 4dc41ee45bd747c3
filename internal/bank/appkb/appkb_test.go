package appkb

import (
	"context"
	"strings"
	"testing"

	"github.com/lox/bank-statement-importer/internal/bank/banktest"
	"github.com/lox/bank-statement-importer/internal/pipeline"
	"github.com/lox/bank-statement-importer/internal/statement/camt053"
	"github.com/lox/bank-statement-importer/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func debit(text string, extra map[string]string) types.RawRecord {
	fields := map[string]string{
		camt053.FieldAmount:                     "12.30",
		camt053.FieldCreditDebitIndicator:       "DBIT",
		camt053.FieldBookingDate:                "2024-02-01",
		camt053.FieldAdditionalEntryInformation: text,
		camt053.FieldAccountServicerReference:   "REF-" + text,
	}
	for k, v := range extra {
		fields[k] = v
	}
	return types.NewRawRecord(fields)
}

func TestEmployerSalaryWithoutIBAN(t *testing.T) {
	f := banktest.New(t, "appkb")
	p := New(camt053.AmountPolicyEntry).NewPipeline(f.Env)

	entries := f.Transform(t, p, banktest.Record(map[string]string{
		camt053.FieldAmount:                     "42.50",
		camt053.FieldCreditDebitIndicator:       "CRDT",
		camt053.FieldDebtorName:                 "Employer AG",
		camt053.FieldDebtorIBAN:                 "",
		camt053.FieldBookingDate:                "2024-03-01",
		camt053.FieldAdditionalEntryInformation: "Salary",
	}))
	require.Len(t, entries, 1)

	e := entries[0]
	assert.Equal(t, types.TransactionKindDeposit, e.Kind)
	assert.Equal(t, "42.50", e.Amount)
	assert.Equal(t, "Salary", e.Description)
	assert.Equal(t, "2024-03-01", e.Date.Format("2006-01-02"))
	assert.Equal(t, f.Own.ID, e.Destination.ID)
	assert.Equal(t, types.AccountRef{Name: "Employer AG"}, e.Source)
	assert.Equal(t, []string{f.Env.Session.Tag()}, e.Tags)

	assert.Equal(t, 0, f.Ledger.Calls("FindAccount"))
	assert.Equal(t, 0, f.Ledger.Calls("CreateAccount"))
}

func TestDebitCardPurchase(t *testing.T) {
	f := banktest.New(t, "appkb")
	p := New(camt053.AmountPolicyEntry).NewPipeline(f.Env)

	entries := f.Transform(t, p, debit("Debitkarten-Zahlung 01.02.2024 10:00 COOP SUPERMARKT Kartennummer: 1234**", nil))
	require.Len(t, entries, 1)

	e := entries[0]
	assert.Equal(t, types.TransactionKindWithdrawal, e.Kind)
	assert.Equal(t, f.Own.ID, e.Source.ID)
	assert.Equal(t, "COOP SUPERMARKT", e.Destination.Name)
	assert.Contains(t, e.Notes, "Purchase Date: 01.02.2024 10:00")
	assert.Contains(t, e.Notes, "Card No.: 1234**")
}

func TestRemittanceFoldsIntoDescription(t *testing.T) {
	f := banktest.New(t, "appkb")
	p := New(camt053.AmountPolicyEntry).NewPipeline(f.Env)

	entries := f.Transform(t, p, debit("Zahlung", map[string]string{
		camt053.FieldCreditorName:          "Landlord",
		camt053.FieldRemittanceInformation: "Rent March",
	}))
	require.Len(t, entries, 1)
	assert.Equal(t, "Zahlung (Rent March)", entries[0].Description)
	assert.Equal(t, "Rent March", entries[0].Notes)
	assert.Equal(t, "Landlord", entries[0].Destination.Name)
}

func TestRecognizers(t *testing.T) {
	f := banktest.New(t, "appkb")
	own, _ := f.Env.Session.OwnAccount()

	draft := func(text string, dir types.Direction) *pipeline.Draft {
		d := &pipeline.Draft{Raw: debit(text, nil), Text: text}
		d.Bind(own, dir, "bank text")
		d.Entry.Notes = "existing"
		return d
	}

	tests := []struct {
		name       string
		recognizer *pipeline.Recognizer
		match      string
		wantName   string
		wantNotes  []string
		miss       string
	}{
		{
			name:       "debit card",
			recognizer: DebitCard(),
			match:      "Debitkarten-Zahlung 01.02.2024 10:00 COOP SUPERMARKT Kartennummer: 1234**",
			wantName:   "COOP SUPERMARKT",
			wantNotes:  []string{"Purchase Date: 01.02.2024 10:00", "Card No.: 1234**"},
			miss:       "Debitkarten-Zahlung ohne Details",
		},
		{
			name:       "twint",
			recognizer: Twint(),
			match:      "TWINT-Zahlung Max Muster 0041791234567",
			wantName:   "Max Muster",
			wantNotes:  []string{"Twint Account ID: 0041791234567"},
			miss:       "Zahlung an TWINT Händler",
		},
		{
			name:       "standing order",
			recognizer: StandingOrder(),
			match:      "Dauerauftrag: Landlord AG",
			wantName:   "Landlord AG",
			wantNotes:  []string{"Standing order"},
			miss:       "Gutschrift Dauerauftrag storniert",
		},
		{
			name:       "direct debit",
			recognizer: StandingOrder(),
			match:      "Lastschrift Insurer AG",
			wantName:   "Insurer AG",
			wantNotes:  []string{"Direct debit"},
			miss:       "Rückbuchung",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name+" match", func(t *testing.T) {
			d, err := tt.recognizer.Apply(context.Background(), draft(tt.match, types.DirectionDebit))
			require.NoError(t, err)
			assert.Equal(t, tt.wantName, d.Entry.Destination.Name)
			assert.Equal(t, own.ID, d.Entry.Source.ID)
			assert.True(t, strings.HasPrefix(d.Entry.Notes, "existing\n"))
			for _, n := range tt.wantNotes {
				assert.Contains(t, d.Entry.Notes, n)
			}
		})

		t.Run(tt.name+" miss", func(t *testing.T) {
			d := draft(tt.miss, types.DirectionDebit)
			before := *d
			before.Entry = d.Entry.Clone()

			got, err := tt.recognizer.Apply(context.Background(), d)
			require.NoError(t, err)
			assert.Equal(t, before, *got)
		})
	}
}

func TestTwintCreditNamesSource(t *testing.T) {
	f := banktest.New(t, "appkb")
	p := New(camt053.AmountPolicyEntry).NewPipeline(f.Env)

	entries := f.Transform(t, p, banktest.Record(map[string]string{
		camt053.FieldAmount:                     "20.00",
		camt053.FieldCreditDebitIndicator:       "CRDT",
		camt053.FieldBookingDate:                "2024-03-04",
		camt053.FieldAdditionalEntryInformation: "TWINT-Gutschrift Anna Beispiel 0041761112233",
	}))
	require.Len(t, entries, 1)
	assert.Equal(t, "Anna Beispiel", entries[0].Source.Name)
	assert.Equal(t, f.Own.ID, entries[0].Destination.ID)
	assert.Equal(t, "Twint Account ID: 0041761112233", entries[0].Notes)
}

func TestCounterpartyResolution(t *testing.T) {
	const landlordIBAN = "CH4431999123000889012"

	t.Run("creates expense account once", func(t *testing.T) {
		f := banktest.New(t, "appkb")
		p := New(camt053.AmountPolicyEntry).NewPipeline(f.Env)
		rec := func(ref string) types.RawRecord {
			return debit("Zahlung", map[string]string{
				camt053.FieldCreditorName:             "Landlord",
				camt053.FieldCreditorIBAN:             landlordIBAN,
				camt053.FieldAccountServicerReference: ref,
			})
		}

		entries := f.Transform(t, p, rec("A"), rec("B"))
		require.Len(t, entries, 2)
		assert.Equal(t, 1, f.Ledger.Calls("CreateAccount"))
		assert.NotEmpty(t, entries[0].Destination.ID)
		assert.Equal(t, entries[0].Destination.ID, entries[1].Destination.ID)
		assert.Equal(t, types.TransactionKindWithdrawal, entries[0].Kind)
	})

	t.Run("own asset account makes a transfer", func(t *testing.T) {
		f := banktest.New(t, "appkb")
		savings := f.Ledger.AddAccount("Sparkonto", landlordIBAN, types.AccountTypeAsset)
		p := New(camt053.AmountPolicyEntry).NewPipeline(f.Env)

		entries := f.Transform(t, p, debit("Übertrag", map[string]string{
			camt053.FieldCreditorIBAN: landlordIBAN,
		}))
		require.Len(t, entries, 1)
		assert.Equal(t, types.TransactionKindTransfer, entries[0].Kind)
		assert.Equal(t, savings.ID, entries[0].Destination.ID)
		assert.Equal(t, f.Own.ID, entries[0].Source.ID)
	})

	t.Run("self transfer is dropped", func(t *testing.T) {
		f := banktest.New(t, "appkb")
		p := New(camt053.AmountPolicyEntry).NewPipeline(f.Env)

		entries := f.Transform(t, p, debit("Übertrag", map[string]string{
			camt053.FieldCreditorIBAN: banktest.OwnIBAN,
		}))
		assert.Empty(t, entries)
	})
}

func TestBaseStepDrops(t *testing.T) {
	f := banktest.New(t, "appkb")
	p := New(camt053.AmountPolicyEntry).NewPipeline(f.Env)

	entries := f.Transform(t, p,
		debit("pending", map[string]string{camt053.FieldStatus: "PDNG"}),
		debit("unknown", map[string]string{camt053.FieldCreditDebitIndicator: "XXXX"}),
		debit("no amount", map[string]string{camt053.FieldAmount: ""}),
		debit("no date", map[string]string{camt053.FieldBookingDate: ""}),
		debit("value date", map[string]string{camt053.FieldBookingDate: "", camt053.FieldValueDate: "2024-02-03"}),
	)
	require.Len(t, entries, 1)
	assert.Equal(t, "value date", entries[0].Description)
	assert.Equal(t, "2024-02-03", entries[0].Date.Format("2006-01-02"))
}

func TestParseStatement(t *testing.T) {
	doc := `<Document><BkToCstmrStmt><Stmt>
<Acct><Id><IBAN>CH5604835012345678009</IBAN></Id></Acct>
<Ntry><Amt Ccy="CHF">5.00</Amt><CdtDbtInd>DBIT</CdtDbtInd><BookgDt><Dt>2024-03-01</Dt></BookgDt><AddtlNtryInf>Gebühr</AddtlNtryInf></Ntry>
</Stmt></BkToCstmrStmt></Document>`

	stmt, err := New(camt053.AmountPolicyEntry).Parse(context.Background(), strings.NewReader(doc))
	require.NoError(t, err)
	assert.Equal(t, banktest.OwnIBAN, stmt.IBAN)
	require.Len(t, stmt.Records, 1)
	assert.False(t, New("").RequiresOwnAccount())
}
