package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/txpulse/txpulse/service/analytics"
	"github.com/txpulse/txpulse/service/ledger"
	"github.com/txpulse/txpulse/service/monitor"
)

const (
	maxRequestBodySize = 1 << 20 // 1MB - plenty for a query
	maxQuestionLength  = 1000
	defaultTxListLimit = 100
	maxTxListLimit     = 1000
)

// handleAnalyticsQuery returns a handler that answers a natural-language
// question about a watched wallet.
// POST /api/v1/analytics/query
func handleAnalyticsQuery(engine *analytics.Engine, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Limit request body size to prevent memory exhaustion
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

		var req analytics.QueryRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			logger.Debug("failed to decode query request", "error", err)
			if strings.Contains(err.Error(), "http: request body too large") {
				writeError(w, "request body too large: maximum size is 1MB", http.StatusBadRequest)
				return
			}
			writeError(w, "invalid request body: must be valid JSON", http.StatusBadRequest)
			return
		}

		req.WalletNickname = strings.TrimSpace(req.WalletNickname)
		req.Question = strings.TrimSpace(req.Question)
		if req.WalletNickname == "" {
			writeError(w, "wallet_nickname is required", http.StatusBadRequest)
			return
		}
		if req.Question == "" {
			writeError(w, "question is required", http.StatusBadRequest)
			return
		}
		if len(req.Question) > maxQuestionLength {
			writeError(w, "question too long", http.StatusBadRequest)
			return
		}

		result, err := engine.Query(r.Context(), req)
		if err != nil {
			var resolutionErr *analytics.ResolutionError
			var unavailableErr *analytics.DataUnavailableError
			switch {
			case errors.As(err, &resolutionErr):
				logger.Debug("unknown wallet nickname", "nickname", req.WalletNickname)
				writeError(w, resolutionErr.Error(), http.StatusNotFound)
			case errors.As(err, &unavailableErr):
				logger.Warn("analytics data unavailable",
					"nickname", req.WalletNickname,
					"error", err,
				)
				writeError(w, unavailableErr.Error(), http.StatusBadGateway)
			default:
				logger.Error("analytics query failed",
					"nickname", req.WalletNickname,
					"error", err,
				)
				writeError(w, "internal server error", http.StatusInternalServerError)
			}
			return
		}

		logger.Debug("analytics query answered",
			"nickname", req.WalletNickname,
			"intent", result.Intent,
		)
		writeJSON(w, result, http.StatusOK)
	})
}

// handleListWallets returns a handler that lists all watched wallets.
// GET /api/v1/wallets
func handleListWallets(store *monitor.Store, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		wallets := store.Addresses()

		logger.Debug("wallets listed", "count", len(wallets))

		writeJSON(w, map[string]interface{}{
			"wallets": wallets,
		}, http.StatusOK)
	})
}

// handleListTransactions returns a handler that lists observed transactions
// for a wallet, newest first.
// GET /api/v1/wallets/{nickname}/transactions?start={rfc3339}&end={rfc3339}&limit={n}
func handleListTransactions(store *monitor.Store, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		nickname := r.PathValue("nickname")

		address, ok := store.ResolveNickname(nickname)
		if !ok {
			writeError(w, "wallet not found", http.StatusNotFound)
			return
		}

		start, end, err := parseWindow(r)
		if err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		limit := defaultTxListLimit
		if raw := r.URL.Query().Get("limit"); raw != "" {
			limit, err = strconv.Atoi(raw)
			if err != nil || limit < 1 || limit > maxTxListLimit {
				writeError(w, "limit must be an integer between 1 and 1000", http.StatusBadRequest)
				return
			}
		}

		records := store.RecordsInWindow(address, start, end)
		sort.Slice(records, func(i, j int) bool {
			return records[i].Timestamp.After(records[j].Timestamp)
		})
		total := len(records)
		if len(records) > limit {
			records = records[:limit]
		}
		if records == nil {
			records = []*ledger.TransactionRecord{}
		}

		logger.Debug("transactions listed",
			"nickname", nickname,
			"total", total,
			"returned", len(records),
		)

		writeJSON(w, map[string]interface{}{
			"wallet":       store.Nickname(address),
			"address":      address,
			"total":        total,
			"transactions": records,
		}, http.StatusOK)
	})
}

// parseWindow reads optional start/end query params. Defaults cover the full
// observed history up to now.
func parseWindow(r *http.Request) (time.Time, time.Time, error) {
	start := time.Time{}
	end := time.Now().Add(time.Second)

	if raw := r.URL.Query().Get("start"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return start, end, errors.New("start must be an RFC3339 timestamp")
		}
		start = t
	}
	if raw := r.URL.Query().Get("end"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return start, end, errors.New("end must be an RFC3339 timestamp")
		}
		end = t
	}
	if !end.After(start) {
		return start, end, errors.New("end must be after start")
	}
	return start, end, nil
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]string{
		"error": message,
	})
}
