package pipeline

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lox/bank-statement-importer/internal/types"
)

var (
	// ErrOwnAccountBound is returned when rebinding the own account to a different account
	ErrOwnAccountBound = errors.New("own account already bound")
	// ErrNoOwnAccount is returned when a record is processed before the own account is bound
	ErrNoOwnAccount = errors.New("own account not bound")
)

// Session is the state shared by all records of one import run
type Session struct {
	mu      sync.RWMutex
	own     *types.Account
	tag     string
	dialect string
	runDate time.Time
}

// NewSession starts a run for a dialect and generates its import tag
func NewSession(dialect string, now time.Time) *Session {
	return &Session{
		tag:     NewImportTag(dialect, now),
		dialect: dialect,
		runDate: now,
	}
}

// NewImportTag returns "import-{dialect}-{date}-{random}"
func NewImportTag(dialect string, now time.Time) string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return fmt.Sprintf("import-%s-%s-%s", dialect, now.Format(time.DateOnly), id[len(id)-5:])
}

// BindOwnAccount sets the statement owner's account. It can only be set once.
func (s *Session) BindOwnAccount(acc types.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.own != nil {
		if s.own.ID == acc.ID {
			return nil
		}
		return fmt.Errorf("%w: %s (%s)", ErrOwnAccountBound, s.own.Name, s.own.ID)
	}
	s.own = &acc
	return nil
}

// OwnAccount returns the bound own account
func (s *Session) OwnAccount() (types.Account, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.own == nil {
		return types.Account{}, false
	}
	return *s.own, true
}

func (s *Session) Tag() string        { return s.tag }
func (s *Session) Dialect() string    { return s.dialect }
func (s *Session) RunDate() time.Time { return s.runDate }
