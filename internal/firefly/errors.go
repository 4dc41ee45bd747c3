package firefly

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNameConflict is returned when an account name is already taken
	ErrNameConflict = errors.New("account name already in use")
	// ErrDuplicateTransaction is returned when the ledger already holds the same transaction
	ErrDuplicateTransaction = errors.New("duplicate transaction")
	// ErrRuleDropped is returned when a ledger rule deleted the transaction after creation
	ErrRuleDropped = errors.New("transaction dropped by rule")
)

const (
	nameInUseMarker   = "account name is already in use"
	duplicateMarker   = "Duplicate of transaction"
	ruleDeletedMarker = "a rule deleted this transaction"
)

// RemoteError is a non-successful response from the ledger
type RemoteError struct {
	Method     string
	Path       string
	StatusCode int
	Message    string
	Body       string
	kind       error
}

func (e *RemoteError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Body
	}
	return fmt.Sprintf("%s %s returned status %d: %s", e.Method, e.Path, e.StatusCode, msg)
}

// Unwrap exposes the recognized error kind, if any
func (e *RemoteError) Unwrap() error {
	return e.kind
}

type errorResponse struct {
	Message   string              `json:"message"`
	Exception string              `json:"exception"`
	Errors    map[string][]string `json:"errors"`
}

// newRemoteError builds a RemoteError and classifies it by the body content.
// The ledger reports duplicates and rule deletions as plain error messages.
func newRemoteError(method, path string, status int, body []byte) *RemoteError {
	e := &RemoteError{
		Method:     method,
		Path:       path,
		StatusCode: status,
		Body:       string(body),
	}

	var resp errorResponse
	if err := json.Unmarshal(body, &resp); err == nil {
		e.Message = resp.Message
		for field, msgs := range resp.Errors {
			for _, m := range msgs {
				e.Message = strings.TrimSpace(e.Message + " " + field + ": " + m)
			}
		}
	}

	text := e.Body
	switch {
	case strings.Contains(text, nameInUseMarker):
		e.kind = ErrNameConflict
	case strings.Contains(text, duplicateMarker):
		e.kind = ErrDuplicateTransaction
	case strings.Contains(text, ruleDeletedMarker):
		e.kind = ErrRuleDropped
	}
	return e
}

// isTransient reports whether a status code is worth retrying
func isTransient(status int, idempotent bool) bool {
	switch status {
	case 429, 503:
		return true
	case 502, 504:
		return idempotent
	}
	return false
}
