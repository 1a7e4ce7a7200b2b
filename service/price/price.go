package price

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/shopspring/decimal"
)

const (
	defaultBaseURL = "https://api.coingecko.com/api/v3"

	// cacheTTL bounds how stale a quoted price can be. Notifications are
	// informational, so a few minutes of staleness beats hammering the API.
	cacheTTL       = 5 * time.Minute
	cacheSweep     = 10 * time.Minute
	requestTimeout = 5 * time.Second
)

// coingeckoIDs maps the token symbols we surface to CoinGecko coin ids.
// Symbols without an entry simply have no fiat quote.
var coingeckoIDs = map[string]string{
	"SOL":  "solana",
	"WSOL": "wrapped-solana",
	"MSOL": "msol",
	"USDC": "usd-coin",
	"USDT": "tether",
	"BONK": "bonk",
	"JUP":  "jupiter-exchange-solana",
}

// Service quotes USD prices for token symbols, caching results so repeated
// notification formatting does not translate into repeated API calls. All
// failures degrade to "no price available" rather than erroring out.
type Service struct {
	baseURL string
	httpc   *http.Client
	cache   *cache.Cache
	logger  *slog.Logger
}

// NewService creates a price service against the public CoinGecko API.
func NewService(logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		baseURL: defaultBaseURL,
		httpc:   &http.Client{Timeout: requestTimeout},
		cache:   cache.New(cacheTTL, cacheSweep),
		logger:  logger,
	}
}

// NewServiceWithBaseURL creates a price service against a custom endpoint,
// used by tests to point at a local fixture server.
func NewServiceWithBaseURL(baseURL string, logger *slog.Logger) *Service {
	s := NewService(logger)
	s.baseURL = strings.TrimSuffix(baseURL, "/")
	return s
}

// USDPrice returns the current USD price for a token symbol. The second
// return is false when the symbol is unknown or the quote cannot be fetched.
func (s *Service) USDPrice(ctx context.Context, symbol string) (decimal.Decimal, bool) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	id, ok := coingeckoIDs[symbol]
	if !ok {
		return decimal.Zero, false
	}

	if cached, found := s.cache.Get(id); found {
		return cached.(decimal.Decimal), true
	}

	price, err := s.fetch(ctx, id)
	if err != nil {
		s.logger.Warn("price lookup failed",
			"symbol", symbol,
			"coin_id", id,
			"error", err,
		)
		return decimal.Zero, false
	}

	s.cache.Set(id, price, cache.DefaultExpiration)
	return price, true
}

func (s *Service) fetch(ctx context.Context, coinID string) (decimal.Decimal, error) {
	u := fmt.Sprintf("%s/simple/price?ids=%s&vs_currencies=usd", s.baseURL, url.QueryEscape(coinID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to build price request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpc.Do(req)
	if err != nil {
		return decimal.Zero, fmt.Errorf("price request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, fmt.Errorf("price API returned %d", resp.StatusCode)
	}

	// Decode into json.Number so the quote survives as an exact decimal.
	var payload map[string]map[string]json.Number
	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(&payload); err != nil {
		return decimal.Zero, fmt.Errorf("failed to decode price response: %w", err)
	}

	quote, ok := payload[coinID]["usd"]
	if !ok {
		return decimal.Zero, fmt.Errorf("no usd quote for %s in response", coinID)
	}

	price, err := decimal.NewFromString(quote.String())
	if err != nil {
		return decimal.Zero, fmt.Errorf("unparseable usd quote %q: %w", quote.String(), err)
	}
	return price, nil
}
