package types

import (
	"sort"
	"strings"
)

// RawRecord is one transaction line or entry as read from a statement file.
// Field names are defined by the bank format. Missing fields read as empty.
type RawRecord struct {
	fields map[string]string
}

// NewRawRecord copies fields into a new record
func NewRawRecord(fields map[string]string) RawRecord {
	m := make(map[string]string, len(fields))
	for k, v := range fields {
		m[k] = v
	}
	return RawRecord{fields: m}
}

// Get returns the untrimmed value of a field and whether it exists
func (r RawRecord) Get(key string) (string, bool) {
	v, ok := r.fields[key]
	return v, ok
}

// Value returns the trimmed value of a field, or "" when it is missing
func (r RawRecord) Value(key string) string {
	return strings.TrimSpace(r.fields[key])
}

// Has reports whether a field is present and not blank
func (r RawRecord) Has(key string) bool {
	return r.Value(key) != ""
}

// Keys returns the field names in sorted order
func (r RawRecord) Keys() []string {
	keys := make([]string, 0, len(r.fields))
	for k := range r.fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Statement is the parsed content of one input file
type Statement struct {
	// IBAN of the statement owner, if the file carries it
	IBAN    string
	Records []RawRecord
}
