package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/txpulse/txpulse/service/analytics"
	"github.com/txpulse/txpulse/service/ledger"
	"github.com/txpulse/txpulse/service/monitor"
)

const testAddress = "So11111111111111111111111111111111111111112"

// mockHistory is a stub HistoryFetcher for handler tests.
type mockHistory struct {
	records []*ledger.TransactionRecord
	err     error
}

func (m *mockHistory) FetchWindow(ctx context.Context, address solana.PublicKey, start, end time.Time) ([]*ledger.TransactionRecord, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.records, nil
}

func record(id, amount string, direction ledger.Direction, status ledger.Status, ts time.Time) *ledger.TransactionRecord {
	return &ledger.TransactionRecord{
		ID:        id,
		Address:   testAddress,
		Direction: direction,
		Amount:    decimal.RequireFromString(amount),
		Fee:       decimal.Zero,
		Status:    status,
		Timestamp: ts,
	}
}

func testStore(t *testing.T) *monitor.Store {
	t.Helper()
	now := time.Now()

	store := monitor.NewStore()
	store.GetOrCreate(testAddress, "Main Treasury")
	store.RecordSeen(testAddress, record("sig1", "2.0", ledger.DirectionIncoming, ledger.StatusConfirmed, now.Add(-48*time.Hour)))
	store.RecordSeen(testAddress, record("sig2", "3.0", ledger.DirectionIncoming, ledger.StatusConfirmed, now.Add(-24*time.Hour)))
	store.RecordSeen(testAddress, record("sig3", "-0.5", ledger.DirectionOutgoing, ledger.StatusConfirmed, now.Add(-time.Hour)))
	return store
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
}

func postQuery(t *testing.T, handler http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/analytics/query", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestHandleAnalyticsQuery_Balance(t *testing.T) {
	store := testStore(t)
	engine := analytics.NewEngine(store, &mockHistory{}, 0, nil, testLogger())
	handler := handleAnalyticsQuery(engine, testLogger())

	rec := postQuery(t, handler, `{"wallet_nickname":"Main Treasury","question":"What is the balance?"}`)

	require.Equal(t, http.StatusOK, rec.Code)

	var result analytics.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, analytics.IntentCurrentBalance, result.Intent)
	require.NotNil(t, result.Balance)
	assert.True(t, result.Balance.Equal(decimal.RequireFromString("4.5")),
		"expected 4.5, got %s", result.Balance)
}

func TestHandleAnalyticsQuery_NicknameIsCaseInsensitive(t *testing.T) {
	store := testStore(t)
	engine := analytics.NewEngine(store, &mockHistory{}, 0, nil, testLogger())
	handler := handleAnalyticsQuery(engine, testLogger())

	rec := postQuery(t, handler, `{"wallet_nickname":"main treasury","question":"balance"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleAnalyticsQuery_UnknownNickname(t *testing.T) {
	store := testStore(t)
	engine := analytics.NewEngine(store, &mockHistory{}, 0, nil, testLogger())
	handler := handleAnalyticsQuery(engine, testLogger())

	rec := postQuery(t, handler, `{"wallet_nickname":"Ghost Wallet","question":"What is the balance?"}`)

	require.Equal(t, http.StatusNotFound, rec.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Contains(t, resp["error"], "Ghost Wallet")
}

func TestHandleAnalyticsQuery_DataUnavailable(t *testing.T) {
	store := monitor.NewStore()
	store.GetOrCreate(testAddress, "Main Treasury")
	engine := analytics.NewEngine(store, &mockHistory{err: errors.New("rpc down")}, 0, nil, testLogger())
	handler := handleAnalyticsQuery(engine, testLogger())

	rec := postQuery(t, handler, `{"wallet_nickname":"Main Treasury","question":"how much did I receive last week"}`)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestHandleAnalyticsQuery_BadRequests(t *testing.T) {
	store := testStore(t)
	engine := analytics.NewEngine(store, &mockHistory{}, 0, nil, testLogger())
	handler := handleAnalyticsQuery(engine, testLogger())

	tests := []struct {
		name string
		body string
	}{
		{"invalid json", `{not json`},
		{"missing nickname", `{"question":"balance"}`},
		{"missing question", `{"wallet_nickname":"Main Treasury"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := postQuery(t, handler, tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestHandleListWallets(t *testing.T) {
	store := testStore(t)
	handler := handleListWallets(store, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/wallets", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Wallets []monitor.AddressInfo `json:"wallets"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Wallets, 1)
	assert.Equal(t, "Main Treasury", resp.Wallets[0].Nickname)
	assert.Equal(t, testAddress, resp.Wallets[0].Address)
	assert.Equal(t, 3, resp.Wallets[0].TrackedCount)
}

func TestHandleListTransactions(t *testing.T) {
	store := testStore(t)
	handler := handleListTransactions(store, testLogger())

	newRequest := func(path string) *httptest.ResponseRecorder {
		mux := http.NewServeMux()
		mux.Handle("GET /api/v1/wallets/{nickname}/transactions", handler)
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)
		return rec
	}

	t.Run("lists newest first", func(t *testing.T) {
		rec := newRequest("/api/v1/wallets/Main%20Treasury/transactions")
		require.Equal(t, http.StatusOK, rec.Code)

		var resp struct {
			Wallet       string                      `json:"wallet"`
			Total        int                         `json:"total"`
			Transactions []*ledger.TransactionRecord `json:"transactions"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "Main Treasury", resp.Wallet)
		assert.Equal(t, 3, resp.Total)
		require.Len(t, resp.Transactions, 3)
		assert.Equal(t, "sig3", resp.Transactions[0].ID)
		assert.Equal(t, "sig1", resp.Transactions[2].ID)
	})

	t.Run("respects limit", func(t *testing.T) {
		rec := newRequest("/api/v1/wallets/Main%20Treasury/transactions?limit=1")
		require.Equal(t, http.StatusOK, rec.Code)

		var resp struct {
			Total        int                         `json:"total"`
			Transactions []*ledger.TransactionRecord `json:"transactions"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, 3, resp.Total)
		assert.Len(t, resp.Transactions, 1)
	})

	t.Run("unknown nickname", func(t *testing.T) {
		rec := newRequest("/api/v1/wallets/Ghost%20Wallet/transactions")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("invalid limit", func(t *testing.T) {
		rec := newRequest("/api/v1/wallets/Main%20Treasury/transactions?limit=nope")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("invalid window", func(t *testing.T) {
		rec := newRequest("/api/v1/wallets/Main%20Treasury/transactions?start=yesterday")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}
