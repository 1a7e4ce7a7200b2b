package ledger

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/txpulse/txpulse/service/metrics"
)

// RPCClient is an interface for the Solana RPC operations we need.
// This allows us to mock the RPC layer in tests without hitting real nodes.
type RPCClient interface {
	GetSignaturesForAddress(
		ctx context.Context,
		address solana.PublicKey,
		opts *rpc.GetSignaturesForAddressOpts,
	) ([]*rpc.TransactionSignature, error)

	GetTransaction(
		ctx context.Context,
		signature solana.Signature,
		opts *rpc.GetTransactionOpts,
	) (*rpc.GetTransactionResult, error)
}

// Client provides read-only access to transaction history for watched
// addresses. It wraps the RPC client with domain-specific operations and is
// the only component in the system that performs network I/O against the
// ledger.
type Client struct {
	rpc      RPCClient
	logger   *slog.Logger
	metrics  *metrics.Metrics
	endpoint string // RPC endpoint identifier for metrics labels
	timeout  time.Duration
}

// NewClient creates a new ledger client. The endpoint parameter is used for
// metrics labeling (e.g. "mainnet" or the RPC hostname). If m is nil, no
// metrics are recorded. The timeout bounds each individual RPC call so one
// slow address cannot stall a whole polling cycle.
func NewClient(rpcClient RPCClient, endpoint string, timeout time.Duration, m *metrics.Metrics, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		rpc:      rpcClient,
		logger:   logger,
		metrics:  m,
		endpoint: endpoint,
		timeout:  timeout,
	}
}

// FetchParams contains parameters for fetching transactions.
type FetchParams struct {
	Address solana.PublicKey
	SinceID string // last sync marker; empty means "most recent only"
	Limit   int
}

// FetchTransactions polls for transactions at or after the given marker.
// Returns records in descending order (newest first). Re-fetching with the
// same marker yields a superset or equal set, never a different transaction
// for the same id.
func (c *Client) FetchTransactions(ctx context.Context, params FetchParams) ([]*TransactionRecord, error) {
	limit := params.Limit
	if limit == 0 {
		limit = 100
	}
	opts := &rpc.GetSignaturesForAddressOpts{
		Limit: &limit,
	}
	if params.SinceID != "" {
		sig, err := solana.SignatureFromBase58(params.SinceID)
		if err == nil {
			opts.Until = sig
		} else {
			c.logger.WarnContext(ctx, "ignoring malformed sync marker",
				"marker", params.SinceID,
				"error", err,
			)
		}
	}

	sigs, err := c.getSignatures(ctx, params.Address, opts)
	if err != nil {
		return nil, err
	}

	records, err := c.fetchAndParse(ctx, params.Address, sigs)
	if err != nil {
		return nil, err
	}

	c.logger.InfoContext(ctx, "fetched and parsed transactions",
		"address", params.Address.String(),
		"count", len(records),
	)
	if c.metrics != nil {
		c.metrics.RecordTransactionsFetched(params.Address.String(), len(records))
	}

	return records, nil
}

// FetchWindow fetches all transactions for an address whose timestamp falls
// in [start, end). It pages backwards through signature history until the
// window start is passed. Used by the analytics engine for windows that
// extend before what the in-memory store has observed.
func (c *Client) FetchWindow(ctx context.Context, address solana.PublicKey, start, end time.Time) ([]*TransactionRecord, error) {
	const pageSize = 100
	const maxPages = 50 // hard stop against runaway history walks

	var inWindow []*rpc.TransactionSignature
	var before solana.Signature

	for page := 0; page < maxPages; page++ {
		limit := pageSize
		opts := &rpc.GetSignaturesForAddressOpts{Limit: &limit}
		if !before.IsZero() {
			opts.Before = before
		}

		sigs, err := c.getSignatures(ctx, address, opts)
		if err != nil {
			return nil, err
		}
		if len(sigs) == 0 {
			break
		}

		passedStart := false
		for _, sig := range sigs {
			if sig.BlockTime == nil {
				continue
			}
			ts := sig.BlockTime.Time()
			if ts.Before(start) {
				passedStart = true
				break
			}
			if ts.Before(end) {
				inWindow = append(inWindow, sig)
			}
		}

		before = sigs[len(sigs)-1].Signature
		if passedStart || len(sigs) < pageSize {
			break
		}
	}

	records, err := c.fetchAndParse(ctx, address, inWindow)
	if err != nil {
		return nil, err
	}

	c.logger.DebugContext(ctx, "fetched historical window",
		"address", address.String(),
		"start", start,
		"end", end,
		"count", len(records),
	)

	return records, nil
}

// getSignatures wraps the GetSignaturesForAddress RPC call with timeout and
// metrics recording.
func (c *Client) getSignatures(ctx context.Context, address solana.PublicKey, opts *rpc.GetSignaturesForAddressOpts) ([]*rpc.TransactionSignature, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	sigs, err := c.rpc.GetSignaturesForAddress(callCtx, address, opts)
	duration := time.Since(start).Seconds()

	status := "success"
	if err != nil {
		status = "error"
		c.logger.ErrorContext(ctx, "failed to get signatures",
			"address", address.String(),
			"error", err,
		)
	}
	if c.metrics != nil {
		c.metrics.RecordRPCCall("GetSignaturesForAddress", status, c.endpoint, duration)
	}
	if err != nil {
		return nil, err
	}
	if c.metrics != nil {
		c.metrics.RecordRPCSignaturesPerCall(c.endpoint, float64(len(sigs)))
	}

	c.logger.DebugContext(ctx, "fetched transaction signatures",
		"address", address.String(),
		"count", len(sigs),
	)
	return sigs, nil
}

// fetchAndParse resolves full transaction details for each signature and
// parses them into domain records. Signatures of failed transactions are
// skipped; a record that cannot be fetched or parsed falls back to a
// metadata-only record so the change detector still sees its id.
func (c *Client) fetchAndParse(ctx context.Context, address solana.PublicKey, sigs []*rpc.TransactionSignature) ([]*TransactionRecord, error) {
	records := make([]*TransactionRecord, 0, len(sigs))
	for _, sig := range sigs {
		// Failed transactions move no value; the watcher has nothing to say
		// about them.
		if sig.Err != nil {
			continue
		}

		result, err := c.getTransaction(ctx, sig.Signature)
		if err != nil {
			c.logger.WarnContext(ctx, "failed to get transaction details, using metadata only",
				"signature", sig.Signature.String(),
				"error", err,
			)
			records = append(records, signatureToRecord(sig, address))
			continue
		}

		rec, err := parseRecord(sig, result, address)
		if err != nil {
			c.logger.WarnContext(ctx, "failed to parse transaction, using metadata only",
				"signature", sig.Signature.String(),
				"error", err,
			)
			if c.metrics != nil {
				c.metrics.RecordTransactionParsed(address.String(), "error")
			}
			records = append(records, signatureToRecord(sig, address))
			continue
		}

		if c.metrics != nil {
			c.metrics.RecordTransactionParsed(address.String(), "success")
		}
		records = append(records, rec)
	}
	return records, nil
}

// getTransaction fetches full transaction details with retry and backoff.
// Public RPC endpoints rate-limit aggressively, so 429s back off harder.
func (c *Client) getTransaction(ctx context.Context, signature solana.Signature) (*rpc.GetTransactionResult, error) {
	var result *rpc.GetTransactionResult
	var err error

	const maxAttempts = 3
	for attempt := 0; attempt < maxAttempts; attempt++ {
		opts := &rpc.GetTransactionOpts{
			Encoding:                       solana.EncodingBase64,
			MaxSupportedTransactionVersion: &[]uint64{0}[0],
		}

		callCtx, cancel := context.WithTimeout(ctx, c.timeout)
		start := time.Now()
		result, err = c.rpc.GetTransaction(callCtx, signature, opts)
		duration := time.Since(start).Seconds()
		cancel()

		status := "success"
		if err != nil {
			status = "error"
		}
		if c.metrics != nil {
			c.metrics.RecordRPCCall("GetTransaction", status, c.endpoint, duration)
		}

		if err == nil {
			return result, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		backoff := time.Duration(1<<uint(attempt)) * time.Second
		if strings.Contains(err.Error(), "429") {
			backoff = time.Duration(2<<uint(attempt)) * time.Second
			if c.metrics != nil {
				c.metrics.RecordRateLimitHit(c.endpoint)
			}
		}
		c.logger.WarnContext(ctx, "failed to get transaction, backing off",
			"signature", signature.String(),
			"attempt", attempt+1,
			"backoff_seconds", backoff.Seconds(),
			"error", err,
		)
		if c.metrics != nil {
			c.metrics.RecordRPCRetry("GetTransaction")
		}
		time.Sleep(backoff)
	}

	return nil, err
}
