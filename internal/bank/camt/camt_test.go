package camt

import (
	"context"
	"strings"
	"testing"

	"github.com/lox/bank-statement-importer/internal/bank/banktest"
	"github.com/lox/bank-statement-importer/internal/statement/camt053"
	"github.com/lox/bank-statement-importer/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPipelineSteps(t *testing.T) {
	f := banktest.New(t, "camt")
	p := New(camt053.AmountPolicyEntry).NewPipeline(f.Env)
	assert.Equal(t, []string{"base", "counterparty", "unpack", "tag"}, p.StepNames())
}

func TestGenericCamtKeepsEntryText(t *testing.T) {
	f := banktest.New(t, "camt")
	p := New(camt053.AmountPolicyEntry).NewPipeline(f.Env)

	text := "Debitkarten-Zahlung 01.02.2024 10:00 COOP SUPERMARKT Kartennummer: 1234**"
	entries := f.Transform(t, p, banktest.Record(map[string]string{
		camt053.FieldAmount:                     "8.90",
		camt053.FieldCreditDebitIndicator:       "DBIT",
		camt053.FieldBookingDate:                "2024-02-01",
		camt053.FieldAdditionalEntryInformation: text,
		camt053.FieldAccountServicerReference:   "ABC-1",
		camt053.FieldReversalIndicator:          "true",
	}))
	require.Len(t, entries, 1)

	e := entries[0]
	assert.Equal(t, text, e.Description)
	assert.Equal(t, "ABC-1", e.ExternalID)
	assert.Equal(t, "Reversal", e.Notes)
	assert.Equal(t, types.AccountRef{ID: f.Own.ID}, e.Source)
	assert.Empty(t, e.Destination.Name)
}

func TestDescriptionFallsBackToCounterparty(t *testing.T) {
	f := banktest.New(t, "camt")
	p := New(camt053.AmountPolicyEntry).NewPipeline(f.Env)

	entries := f.Transform(t, p, banktest.Record(map[string]string{
		camt053.FieldAmount:               "100.00",
		camt053.FieldCreditDebitIndicator: "CRDT",
		camt053.FieldBookingDate:          "2024-02-01",
		camt053.FieldDebtorName:           "Tax Office",
	}))
	require.Len(t, entries, 1)
	assert.Equal(t, "Tax Office", entries[0].Description)
}

func TestDetailPolicyFlowsToEntries(t *testing.T) {
	doc := `<Document><BkToCstmrStmt><Stmt>
<Acct><Id><IBAN>CH5604835012345678009</IBAN></Id></Acct>
<Ntry><Amt Ccy="CHF">30.50</Amt><CdtDbtInd>DBIT</CdtDbtInd><BookgDt><Dt>2024-03-01</Dt></BookgDt>
<AcctSvcrRef>B1</AcctSvcrRef><AddtlNtryInf>Sammelauftrag</AddtlNtryInf>
<NtryDtls>
<TxDtls><Amt Ccy="CHF">10.00</Amt><RltdPties><Cdtr><Nm>A</Nm></Cdtr></RltdPties></TxDtls>
<TxDtls><Amt Ccy="CHF">20.00</Amt><RltdPties><Cdtr><Nm>B</Nm></Cdtr></RltdPties></TxDtls>
</NtryDtls></Ntry>
</Stmt></BkToCstmrStmt></Document>`

	dialect := New(camt053.AmountPolicyDetail)
	stmt, err := dialect.Parse(context.Background(), strings.NewReader(doc))
	require.NoError(t, err)

	f := banktest.New(t, "camt")
	entries := f.Transform(t, dialect.NewPipeline(f.Env), stmt.Records...)
	require.Len(t, entries, 2)
	assert.Equal(t, "10.00", entries[0].Amount)
	assert.Equal(t, "B1-1", entries[0].ExternalID)
	assert.Equal(t, "A", entries[0].Destination.Name)
	assert.Equal(t, "20.00", entries[1].Amount)
	assert.Equal(t, "B1-2", entries[1].ExternalID)
}
