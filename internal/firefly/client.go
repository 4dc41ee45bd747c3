package firefly

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/charmbracelet/log"
	"github.com/lox/bank-statement-importer/internal/types"
)

// Config holds configuration for the ledger API client
type Config struct {
	URL           string
	Token         string
	Timeout       time.Duration
	RetryAttempts uint
	RetryDelay    time.Duration
	Logger        *log.Logger
}

func NewConfig() Config {
	return Config{
		Timeout:       30 * time.Second,
		RetryAttempts: 3,
		RetryDelay:    500 * time.Millisecond,
	}
}

func (c Config) WithURL(url string) Config {
	c.URL = url
	return c
}
func (c Config) WithToken(token string) Config {
	c.Token = token
	return c
}
func (c Config) WithTimeout(timeout time.Duration) Config {
	c.Timeout = timeout
	return c
}
func (c Config) WithRetryAttempts(attempts uint) Config {
	c.RetryAttempts = attempts
	return c
}
func (c Config) WithRetryDelay(delay time.Duration) Config {
	c.RetryDelay = delay
	return c
}
func (c Config) WithLogger(logger *log.Logger) Config {
	c.Logger = logger
	return c
}

func (c Config) Validate() error {
	if c.URL == "" {
		return fmt.Errorf("ledger URL is required")
	}
	if _, err := url.Parse(c.URL); err != nil {
		return fmt.Errorf("invalid ledger URL: %w", err)
	}
	if c.Token == "" {
		return fmt.Errorf("access token is required")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be greater than 0")
	}
	if c.RetryAttempts == 0 {
		return fmt.Errorf("retry attempts must be greater than 0")
	}
	if c.Logger == nil {
		return fmt.Errorf("logger is required")
	}
	return nil
}

// Client talks to the Firefly III REST API
type Client struct {
	config     Config
	baseURL    *url.URL
	httpClient *http.Client
	logger     *log.Logger
}

// Transaction is a stored ledger transaction as returned by search
type Transaction struct {
	GroupID     string
	Description string
	Amount      string
	ExternalID  string
	Type        string
}

func New(config Config) (*Client, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	baseURL, err := url.Parse(config.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	return &Client{
		config:  config,
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		logger: config.Logger,
	}, nil
}

type listResponse[T any] struct {
	Data []T `json:"data"`
}

type singleResponse[T any] struct {
	Data T `json:"data"`
}

type accountData struct {
	ID         string `json:"id"`
	Attributes struct {
		Name string `json:"name"`
		Type string `json:"type"`
		IBAN string `json:"iban"`
	} `json:"attributes"`
}

func (a accountData) account() *types.Account {
	return &types.Account{
		ID:   a.ID,
		Name: a.Attributes.Name,
		IBAN: a.Attributes.IBAN,
		Type: types.AccountType(a.Attributes.Type),
	}
}

type transactionGroupData struct {
	ID         string `json:"id"`
	Attributes struct {
		Transactions []struct {
			Description string `json:"description"`
			Amount      string `json:"amount"`
			ExternalID  string `json:"external_id"`
			Type        string `json:"type"`
		} `json:"transactions"`
	} `json:"attributes"`
}

type tagStore struct {
	Tag  string `json:"tag"`
	Date string `json:"date"`
}

type accountStore struct {
	Name string `json:"name"`
	Type string `json:"type"`
	IBAN string `json:"iban,omitempty"`
}

type transactionStore struct {
	ErrorIfDuplicateHash bool               `json:"error_if_duplicate_hash"`
	ApplyRules           bool               `json:"apply_rules"`
	FireWebhooks         bool               `json:"fire_webhooks"`
	Transactions         []transactionSplit `json:"transactions"`
}

type transactionSplit struct {
	Type            string   `json:"type"`
	Date            string   `json:"date"`
	Amount          string   `json:"amount"`
	Description     string   `json:"description"`
	ExternalID      string   `json:"external_id,omitempty"`
	SourceID        string   `json:"source_id,omitempty"`
	SourceName      string   `json:"source_name,omitempty"`
	DestinationID   string   `json:"destination_id,omitempty"`
	DestinationName string   `json:"destination_name,omitempty"`
	Notes           string   `json:"notes,omitempty"`
	Tags            []string `json:"tags,omitempty"`
}

// CreateTag creates a tag dated at the given day
func (c *Client) CreateTag(ctx context.Context, name string, date time.Time) error {
	c.logger.Debug("Creating tag", "tag", name)
	return c.do(ctx, http.MethodPost, "api/v1/tags", nil, tagStore{
		Tag:  name,
		Date: date.Format(time.DateOnly),
	}, nil)
}

// CreateAccount creates an account. It fails with ErrNameConflict when the name is taken.
func (c *Client) CreateAccount(ctx context.Context, iban, name string, accountType types.AccountType) (*types.Account, error) {
	var resp singleResponse[accountData]
	err := c.do(ctx, http.MethodPost, "api/v1/accounts", nil, accountStore{
		Name: name,
		Type: string(accountType),
		IBAN: types.NormalizeIBAN(iban),
	}, &resp)
	if err != nil {
		return nil, err
	}
	return resp.Data.account(), nil
}

// FindAccount searches for an account of the given type. Only exact matches on the
// searched field count, the ledger's search is a substring match.
func (c *Client) FindAccount(ctx context.Context, identifier string, accountType types.AccountType, field types.SearchField) (*types.Account, error) {
	query := url.Values{}
	query.Set("query", identifier)
	query.Set("type", string(accountType))
	query.Set("field", string(field))

	var resp listResponse[accountData]
	if err := c.do(ctx, http.MethodGet, "api/v1/search/accounts", query, nil, &resp); err != nil {
		return nil, err
	}

	for _, a := range resp.Data {
		switch field {
		case types.SearchFieldIBAN:
			if types.NormalizeIBAN(a.Attributes.IBAN) == types.NormalizeIBAN(identifier) {
				return a.account(), nil
			}
		default:
			if strings.EqualFold(strings.TrimSpace(a.Attributes.Name), strings.TrimSpace(identifier)) {
				return a.account(), nil
			}
		}
	}
	return nil, nil
}

// FindTransactionByExternalID returns the first transaction carrying the external id
func (c *Client) FindTransactionByExternalID(ctx context.Context, externalID string) (*Transaction, error) {
	query := url.Values{}
	query.Set("query", "external_id:"+externalID)

	var resp listResponse[transactionGroupData]
	if err := c.do(ctx, http.MethodGet, "api/v1/search/transactions", query, nil, &resp); err != nil {
		return nil, err
	}
	for _, group := range resp.Data {
		for _, split := range group.Attributes.Transactions {
			if split.ExternalID != externalID {
				continue
			}
			return &Transaction{
				GroupID:     group.ID,
				Description: split.Description,
				Amount:      split.Amount,
				ExternalID:  split.ExternalID,
				Type:        split.Type,
			}, nil
		}
	}
	return nil, nil
}

// SubmitTransaction stores an entry. Duplicates and rule deletions come back as
// ErrDuplicateTransaction and ErrRuleDropped.
func (c *Client) SubmitTransaction(ctx context.Context, entry types.LedgerEntry) error {
	split := transactionSplit{
		Type:            string(entry.Kind),
		Date:            entry.Date.Format(time.DateOnly),
		Amount:          entry.Amount,
		Description:     entry.Description,
		ExternalID:      entry.ExternalID,
		SourceID:        entry.Source.ID,
		SourceName:      entry.Source.Name,
		DestinationID:   entry.Destination.ID,
		DestinationName: entry.Destination.Name,
		Notes:           entry.Notes,
		Tags:            entry.Tags,
	}
	return c.do(ctx, http.MethodPost, "api/v1/transactions", nil, transactionStore{
		ErrorIfDuplicateHash: true,
		ApplyRules:           true,
		FireWebhooks:         true,
		Transactions:         []transactionSplit{split},
	}, nil)
}

type transientError struct {
	err error
}

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any, out any) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
	}

	endpoint := c.baseURL.JoinPath(path)
	if query != nil {
		endpoint.RawQuery = query.Encode()
	}
	idempotent := method == http.MethodGet

	err := retry.Do(
		func() error {
			req, err := http.NewRequestWithContext(ctx, method, endpoint.String(), bytes.NewReader(payload))
			if err != nil {
				return retry.Unrecoverable(fmt.Errorf("failed to create request: %w", err))
			}
			req.Header.Set("Authorization", "Bearer "+c.config.Token)
			req.Header.Set("Accept", "application/json")
			if body != nil {
				req.Header.Set("Content-Type", "application/json")
			}

			resp, err := c.httpClient.Do(req)
			if err != nil {
				err = fmt.Errorf("failed to make request: %w", err)
				if idempotent {
					return &transientError{err: err}
				}
				return err
			}
			defer resp.Body.Close()

			respBody, err := io.ReadAll(resp.Body)
			if err != nil {
				return fmt.Errorf("failed to read response: %w", err)
			}
			if resp.StatusCode < 200 || resp.StatusCode > 299 {
				remoteErr := newRemoteError(method, "/"+path, resp.StatusCode, respBody)
				if isTransient(resp.StatusCode, idempotent) {
					return &transientError{err: remoteErr}
				}
				return remoteErr
			}
			if out == nil || len(respBody) == 0 {
				return nil
			}
			if err := json.Unmarshal(respBody, out); err != nil {
				c.logger.Debug("Failed to unmarshal ledger response", "body", string(respBody), "error", err)
				return fmt.Errorf("failed to unmarshal response: %w", err)
			}
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(c.config.RetryAttempts),
		retry.Delay(c.config.RetryDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			var te *transientError
			return errors.As(err, &te)
		}),
		retry.OnRetry(func(n uint, err error) {
			c.logger.Warn("Retrying ledger request", "method", method, "path", path, "attempt", n+1, "max_attempts", c.config.RetryAttempts, "error", err)
		}),
	)
	return err
}
