package firefly

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/lox/bank-statement-importer/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := New(NewConfig().
		WithURL(srv.URL).
		WithToken("secret").
		WithRetryDelay(time.Millisecond).
		WithLogger(log.New(io.Discard)))
	require.NoError(t, err)
	return client
}

func TestConfigValidate(t *testing.T) {
	logger := log.New(io.Discard)

	_, err := New(NewConfig().WithToken("x").WithLogger(logger))
	assert.ErrorContains(t, err, "ledger URL is required")

	_, err = New(NewConfig().WithURL("http://localhost").WithLogger(logger))
	assert.ErrorContains(t, err, "access token is required")

	_, err = New(NewConfig().WithURL("http://localhost").WithToken("x"))
	assert.ErrorContains(t, err, "logger is required")
}

func TestFindAccountExactMatch(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/search/accounts", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.Equal(t, "CH9300762011623852957", r.URL.Query().Get("query"))
		assert.Equal(t, "revenue", r.URL.Query().Get("type"))
		assert.Equal(t, "iban", r.URL.Query().Get("field"))
		_, _ = io.WriteString(w, `{"data":[
			{"id":"1","attributes":{"name":"Other","type":"revenue","iban":"CH9300762011623852957999"}},
			{"id":"2","attributes":{"name":"Employer AG","type":"revenue","iban":"CH93 0076 2011 6238 5295 7"}}
		]}`)
	})

	acc, err := client.FindAccount(context.Background(), "CH9300762011623852957", types.AccountTypeRevenue, types.SearchFieldIBAN)
	require.NoError(t, err)
	require.NotNil(t, acc)
	assert.Equal(t, "2", acc.ID)
	assert.Equal(t, "Employer AG", acc.Name)
	assert.Equal(t, types.AccountTypeRevenue, acc.Type)
}

func TestFindAccountNone(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"data":[]}`)
	})

	acc, err := client.FindAccount(context.Background(), "Girokonto", types.AccountTypeAsset, types.SearchFieldName)
	require.NoError(t, err)
	assert.Nil(t, acc)
}

func TestCreateAccountNameConflict(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = io.WriteString(w, `{"message":"The given data was invalid.","errors":{"name":["This account name is already in use."]}}`)
	})

	_, err := client.CreateAccount(context.Background(), "CH9300762011623852957", "Employer AG", types.AccountTypeRevenue)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNameConflict))

	var remote *RemoteError
	require.True(t, errors.As(err, &remote))
	assert.Equal(t, http.StatusUnprocessableEntity, remote.StatusCode)
	assert.Contains(t, remote.Error(), "This account name is already in use.")
}

func TestCreateAccount(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "Employer AG", body["name"])
		assert.Equal(t, "revenue", body["type"])
		assert.Equal(t, "CH9300762011623852957", body["iban"])
		_, _ = io.WriteString(w, `{"data":{"id":"42","attributes":{"name":"Employer AG","type":"revenue","iban":"CH9300762011623852957"}}}`)
	})

	acc, err := client.CreateAccount(context.Background(), "CH93 0076 2011 6238 5295 7", "Employer AG", types.AccountTypeRevenue)
	require.NoError(t, err)
	assert.Equal(t, "42", acc.ID)
}

func TestSubmitTransactionErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		kind   error
	}{
		{
			name:   "duplicate",
			status: http.StatusUnprocessableEntity,
			body:   `{"message":"Duplicate of transaction #12.","errors":{"transactions.0.description":["Duplicate of transaction #12."]}}`,
			kind:   ErrDuplicateTransaction,
		},
		{
			name:   "rule_dropped",
			status: http.StatusInternalServerError,
			body:   `{"message":"Could not find transaction. Possibly, a rule deleted this transaction after its creation."}`,
			kind:   ErrRuleDropped,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = io.WriteString(w, tc.body)
			})
			err := client.SubmitTransaction(context.Background(), types.LedgerEntry{Amount: "1.00"})
			require.Error(t, err)
			assert.True(t, errors.Is(err, tc.kind))
		})
	}
}

func TestSubmitTransactionPayload(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/transactions", r.URL.Path)
		var body transactionStore
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.True(t, body.ErrorIfDuplicateHash)
		assert.True(t, body.ApplyRules)
		require.Len(t, body.Transactions, 1)
		split := body.Transactions[0]
		assert.Equal(t, "deposit", split.Type)
		assert.Equal(t, "2024-03-01", split.Date)
		assert.Equal(t, "42.50", split.Amount)
		assert.Equal(t, "Employer AG", split.SourceName)
		assert.Equal(t, "7", split.DestinationID)
		assert.Equal(t, []string{"import-appkb-2024-03-02-abcde"}, split.Tags)
		_, _ = io.WriteString(w, `{"data":{"id":"100"}}`)
	})

	err := client.SubmitTransaction(context.Background(), types.LedgerEntry{
		Amount:      "42.50",
		Description: "Salary",
		Date:        time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		Kind:        types.TransactionKindDeposit,
		Source:      types.AccountRef{Name: "Employer AG"},
		Destination: types.AccountRef{ID: "7"},
		Tags:        []string{"import-appkb-2024-03-02-abcde"},
	})
	require.NoError(t, err)
}

func TestGenericRemoteErrorIsNotRetriedForPost(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
		_, _ = io.WriteString(w, `{"message":"upstream down"}`)
	})

	err := client.SubmitTransaction(context.Background(), types.LedgerEntry{})
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrDuplicateTransaction))
	assert.Contains(t, err.Error(), "upstream down")
	assert.Equal(t, int32(1), calls.Load())
}

func TestSearchRetriesTransientErrors(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		assert.Equal(t, "external_id:REF-1", r.URL.Query().Get("query"))
		_, _ = io.WriteString(w, `{"data":[{"id":"9","attributes":{"transactions":[{"description":"Salary","amount":"42.50","external_id":"REF-1","type":"deposit"}]}}]}`)
	})

	tx, err := client.FindTransactionByExternalID(context.Background(), "REF-1")
	require.NoError(t, err)
	require.NotNil(t, tx)
	assert.Equal(t, "9", tx.GroupID)
	assert.Equal(t, "Salary", tx.Description)
	assert.Equal(t, int32(3), calls.Load())
}

func TestCreateTag(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/tags", r.URL.Path)
		var body tagStore
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "import-zkb-2024-03-02-abcde", body.Tag)
		assert.Equal(t, "2024-03-02", body.Date)
		_, _ = io.WriteString(w, `{"data":{"id":"3"}}`)
	})

	err := client.CreateTag(context.Background(), "import-zkb-2024-03-02-abcde", time.Date(2024, 3, 2, 9, 0, 0, 0, time.UTC))
	require.NoError(t, err)
}
