package types

import (
	"regexp"
	"strings"
)

// AccountType is the ledger's account classification
type AccountType string

const (
	AccountTypeAsset   AccountType = "asset"
	AccountTypeRevenue AccountType = "revenue"
	AccountTypeExpense AccountType = "expense"
)

// SearchField selects which account attribute a lookup matches on
type SearchField string

const (
	SearchFieldIBAN SearchField = "iban"
	SearchFieldName SearchField = "name"
)

// Account is a ledger account as seen by the importer
type Account struct {
	ID   string      `json:"id"`
	Name string      `json:"name"`
	IBAN string      `json:"iban,omitempty"`
	Type AccountType `json:"type"`
}

// Ref returns a reference bound to the account id
func (a Account) Ref() AccountRef {
	return AccountRef{ID: a.ID, Name: a.Name}
}

// AccountRef points at either a resolved account id or a free-text name
type AccountRef struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name,omitempty"`
}

// Resolved reports whether the reference carries an account id
func (r AccountRef) Resolved() bool {
	return r.ID != ""
}

var ibanPattern = regexp.MustCompile(`^[A-Z]{2}[0-9]{2}[A-Z0-9]{8,30}$`)

// NormalizeIBAN strips whitespace and upper-cases an IBAN
func NormalizeIBAN(iban string) string {
	return strings.ToUpper(strings.Join(strings.Fields(iban), ""))
}

// LooksLikeIBAN reports whether s is shaped like an IBAN once normalized
func LooksLikeIBAN(s string) bool {
	return ibanPattern.MatchString(NormalizeIBAN(s))
}

// Counterparty identifies the other party of a transaction by IBAN and/or name
type Counterparty struct {
	IBAN string
	Name string
}

// Identifier returns the lookup key and the field it should be matched on
func (c Counterparty) Identifier() (string, SearchField) {
	if iban := NormalizeIBAN(c.IBAN); iban != "" {
		return iban, SearchFieldIBAN
	}
	return strings.TrimSpace(c.Name), SearchFieldName
}
