// Package csvstmt reads delimiter-separated bank exports: an optional
// metadata preamble, a header row and one record per transaction line.
package csvstmt

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/lox/bank-statement-importer/internal/types"
	"golang.org/x/text/encoding"
	"golang.org/x/text/transform"
)

var byteOrderMark = []byte("\ufeff")

// Options describes the layout of one CSV dialect
type Options struct {
	// Delimiter separates fields, defaults to ';'
	Delimiter rune
	// Encoding decodes the input, nil means UTF-8
	Encoding encoding.Encoding
	// HeaderKey is a column name that identifies the header row. Rows before
	// it are treated as preamble. When empty the first row is the header.
	HeaderKey string
	// IBANKey is the preamble key whose value is the statement owner's IBAN
	IBANKey string
}

// ErrNoHeader is returned when the header row cannot be found
var ErrNoHeader = errors.New("csv header row not found")

// Read parses a statement. Preamble rows are "key;value" pairs; a "sep=" line
// and a byte order mark are skipped. Blank rows are ignored and fields beyond
// the header width are discarded.
func Read(r io.Reader, opts Options) (*types.Statement, error) {
	if opts.Encoding != nil {
		r = transform.NewReader(r, opts.Encoding.NewDecoder())
	}
	delimiter := opts.Delimiter
	if delimiter == 0 {
		delimiter = ';'
	}

	buffered := bufio.NewReader(r)
	if prefix, err := buffered.Peek(len(byteOrderMark)); err == nil && bytes.Equal(prefix, byteOrderMark) {
		_, _ = buffered.Discard(len(byteOrderMark))
	}

	reader := csv.NewReader(buffered)
	reader.Comma = delimiter
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	stmt := &types.Statement{}
	var header []string
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read csv: %w", err)
		}
		if blank(row) {
			continue
		}

		if header == nil {
			switch {
			case strings.HasPrefix(strings.ToLower(strings.TrimSpace(row[0])), "sep="):
				continue
			case opts.HeaderKey == "" || contains(row, opts.HeaderKey):
				header = trimAll(row)
			case opts.IBANKey != "" && strings.TrimSpace(row[0]) == opts.IBANKey && len(row) > 1:
				stmt.IBAN = types.NormalizeIBAN(row[1])
			}
			continue
		}

		fields := make(map[string]string, len(header))
		for i, name := range header {
			if name == "" {
				continue
			}
			if _, dup := fields[name]; dup {
				continue
			}
			if i < len(row) {
				fields[name] = row[i]
			} else {
				fields[name] = ""
			}
		}
		stmt.Records = append(stmt.Records, types.NewRawRecord(fields))
	}

	if header == nil {
		if opts.HeaderKey != "" {
			return nil, fmt.Errorf("%w: no row contains column %q", ErrNoHeader, opts.HeaderKey)
		}
		return nil, ErrNoHeader
	}
	return stmt, nil
}

func blank(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

func contains(row []string, key string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) == key {
			return true
		}
	}
	return false
}

func trimAll(row []string) []string {
	out := make([]string, len(row))
	for i, cell := range row {
		out[i] = strings.TrimSpace(cell)
	}
	return out
}
