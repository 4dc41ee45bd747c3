// Package camt053 reads ISO 20022 camt.053 bank-to-customer statements into
// flat records, one per transaction detail.
package camt053

import (
	"encoding/xml"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/lox/bank-statement-importer/internal/types"
)

// Record field names
const (
	FieldAmount                     = "Amount"
	FieldEntryAmount                = "EntryAmount"
	FieldDetailAmount               = "DetailAmount"
	FieldCurrency                   = "Currency"
	FieldCreditDebitIndicator       = "CreditDebitIndicator"
	FieldReversalIndicator          = "ReversalIndicator"
	FieldStatus                     = "Status"
	FieldBookingDate                = "BookingDate"
	FieldValueDate                  = "ValueDate"
	FieldEntryReference             = "EntryReference"
	FieldAccountServicerReference   = "AccountServicerReference"
	FieldBankTransactionCode        = "BankTransactionCode"
	FieldAdditionalEntryInformation = "AdditionalEntryInformation"
	FieldEndToEndID                 = "EndToEndId"
	FieldMandateID                  = "MandateId"
	FieldCreditorName               = "CreditorName"
	FieldCreditorIBAN               = "CreditorIBAN"
	FieldDebtorName                 = "DebtorName"
	FieldDebtorIBAN                 = "DebtorIBAN"
	FieldRemittanceInformation      = "RemittanceInformation"
)

// AmountPolicy selects which amount a batched entry's records carry.
// The entry amount includes bank fees, the detail amount does not. Which one
// the ledger should see is undecided, so both are kept selectable.
type AmountPolicy string

const (
	AmountPolicyEntry  AmountPolicy = "entry"
	AmountPolicyDetail AmountPolicy = "detail"
)

// ParseAmountPolicy validates a policy name
func ParseAmountPolicy(s string) (AmountPolicy, error) {
	switch p := AmountPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case AmountPolicyEntry, AmountPolicyDetail:
		return p, nil
	case "":
		return AmountPolicyEntry, nil
	}
	return "", fmt.Errorf("unknown amount policy %q (want entry or detail)", s)
}

type document struct {
	XMLName    xml.Name    `xml:"Document"`
	Statements []statement `xml:"BkToCstmrStmt>Stmt"`
}

type statement struct {
	ID      string  `xml:"Id"`
	IBAN    string  `xml:"Acct>Id>IBAN"`
	Entries []entry `xml:"Ntry"`
}

type amount struct {
	Value    string `xml:",chardata"`
	Currency string `xml:"Ccy,attr"`
}

type dateChoice struct {
	Dt   string `xml:"Dt"`
	DtTm string `xml:"DtTm"`
}

func (d dateChoice) date() string {
	if d.Dt != "" {
		return strings.TrimSpace(d.Dt)
	}
	if len(d.DtTm) >= 10 {
		return d.DtTm[:10]
	}
	return ""
}

type status struct {
	Text string `xml:",chardata"`
	Cd   string `xml:"Cd"`
}

func (s status) String() string {
	if s.Cd != "" {
		return strings.TrimSpace(s.Cd)
	}
	return strings.TrimSpace(s.Text)
}

type entry struct {
	Ref          string      `xml:"NtryRef"`
	Amt          amount      `xml:"Amt"`
	CdtDbtInd    string      `xml:"CdtDbtInd"`
	RvslInd      string      `xml:"RvslInd"`
	Sts          status      `xml:"Sts"`
	BookgDt      dateChoice  `xml:"BookgDt"`
	ValDt        dateChoice  `xml:"ValDt"`
	AcctSvcrRef  string      `xml:"AcctSvcrRef"`
	Domain       string      `xml:"BkTxCd>Domn>Cd"`
	Family       string      `xml:"BkTxCd>Domn>Fmly>Cd"`
	SubFamily    string      `xml:"BkTxCd>Domn>Fmly>SubFmlyCd"`
	Proprietary  string      `xml:"BkTxCd>Prtry>Cd"`
	Details      []txDetails `xml:"NtryDtls>TxDtls"`
	AddtlNtryInf string      `xml:"AddtlNtryInf"`
}

type party struct {
	Nm  string `xml:"Nm"`
	Pty struct {
		Nm string `xml:"Nm"`
	} `xml:"Pty"`
}

func (p party) name() string {
	if p.Nm != "" {
		return strings.TrimSpace(p.Nm)
	}
	return strings.TrimSpace(p.Pty.Nm)
}

type txDetails struct {
	AcctSvcrRef string   `xml:"Refs>AcctSvcrRef"`
	EndToEndID  string   `xml:"Refs>EndToEndId"`
	MndtID      string   `xml:"Refs>MndtId"`
	Amt         amount   `xml:"Amt"`
	TxAmt       amount   `xml:"AmtDtls>TxAmt>Amt"`
	Dbtr        party    `xml:"RltdPties>Dbtr"`
	DbtrIBAN    string   `xml:"RltdPties>DbtrAcct>Id>IBAN"`
	Cdtr        party    `xml:"RltdPties>Cdtr"`
	CdtrIBAN    string   `xml:"RltdPties>CdtrAcct>Id>IBAN"`
	Ustrd       []string `xml:"RmtInf>Ustrd"`
}

func (t txDetails) amount() string {
	if v := strings.TrimSpace(t.Amt.Value); v != "" {
		return v
	}
	return strings.TrimSpace(t.TxAmt.Value)
}

// Parser reads camt.053 documents
type Parser struct {
	policy AmountPolicy
}

// New creates a parser using the given amount policy
func New(policy AmountPolicy) *Parser {
	if policy == "" {
		policy = AmountPolicyEntry
	}
	return &Parser{policy: policy}
}

// Parse reads a statement document. Each transaction detail becomes one
// record carrying its entry's fields; entries without details become one record.
func (p *Parser) Parse(r io.Reader) (*types.Statement, error) {
	var doc document
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode camt.053 document: %w", err)
	}
	if len(doc.Statements) == 0 {
		return nil, fmt.Errorf("camt.053 document contains no statement")
	}

	stmt := &types.Statement{IBAN: types.NormalizeIBAN(doc.Statements[0].IBAN)}
	for _, s := range doc.Statements {
		for _, e := range s.Entries {
			stmt.Records = append(stmt.Records, p.records(e)...)
		}
	}
	return stmt, nil
}

func (p *Parser) records(e entry) []types.RawRecord {
	base := map[string]string{
		FieldAmount:                     strings.TrimSpace(e.Amt.Value),
		FieldEntryAmount:                strings.TrimSpace(e.Amt.Value),
		FieldCurrency:                   e.Amt.Currency,
		FieldCreditDebitIndicator:       strings.TrimSpace(e.CdtDbtInd),
		FieldReversalIndicator:          strings.TrimSpace(e.RvslInd),
		FieldStatus:                     e.Sts.String(),
		FieldBookingDate:                e.BookgDt.date(),
		FieldValueDate:                  e.ValDt.date(),
		FieldEntryReference:             strings.TrimSpace(e.Ref),
		FieldAccountServicerReference:   strings.TrimSpace(e.AcctSvcrRef),
		FieldBankTransactionCode:        bankTransactionCode(e),
		FieldAdditionalEntryInformation: strings.TrimSpace(e.AddtlNtryInf),
	}
	if len(e.Details) == 0 {
		return []types.RawRecord{types.NewRawRecord(base)}
	}

	records := make([]types.RawRecord, 0, len(e.Details))
	for i, d := range e.Details {
		fields := make(map[string]string, len(base)+10)
		for k, v := range base {
			fields[k] = v
		}

		detailAmount := d.amount()
		fields[FieldDetailAmount] = detailAmount
		if p.policy == AmountPolicyDetail && detailAmount != "" {
			fields[FieldAmount] = detailAmount
		}

		// Batched entries share the entry reference, so details without their
		// own reference get a positional suffix to stay distinguishable.
		switch {
		case strings.TrimSpace(d.AcctSvcrRef) != "":
			fields[FieldAccountServicerReference] = strings.TrimSpace(d.AcctSvcrRef)
		case len(e.Details) > 1 && base[FieldAccountServicerReference] != "":
			fields[FieldAccountServicerReference] = base[FieldAccountServicerReference] + "-" + strconv.Itoa(i+1)
		}

		fields[FieldEndToEndID] = strings.TrimSpace(d.EndToEndID)
		fields[FieldMandateID] = strings.TrimSpace(d.MndtID)
		fields[FieldCreditorName] = d.Cdtr.name()
		fields[FieldCreditorIBAN] = types.NormalizeIBAN(d.CdtrIBAN)
		fields[FieldDebtorName] = d.Dbtr.name()
		fields[FieldDebtorIBAN] = types.NormalizeIBAN(d.DbtrIBAN)
		fields[FieldRemittanceInformation] = strings.TrimSpace(strings.Join(d.Ustrd, " "))
		records = append(records, types.NewRawRecord(fields))
	}
	return records
}

func bankTransactionCode(e entry) string {
	if e.Domain != "" {
		return strings.Join([]string{e.Domain, e.Family, e.SubFamily}, "/")
	}
	return strings.TrimSpace(e.Proprietary)
}
