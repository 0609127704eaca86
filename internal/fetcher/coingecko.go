package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const (
	simplePricePath = "/simple/price"
	apiKeyHeader    = "x-cg-demo-api-key"
	vsCurrency      = "usd"
)

// CoinGeckoOptions parameterise the CoinGecko fetcher.
type CoinGeckoOptions struct {
	BaseURL   string
	APIKey    string
	Timeout   time.Duration
	UserAgent string
}

// CoinGecko fetches spot prices from the CoinGecko simple price API.
type CoinGecko struct {
	opts    CoinGeckoOptions
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
	now     func() time.Time
}

// NewCoinGecko constructs a CoinGecko fetcher.
func NewCoinGecko(opts CoinGeckoOptions, logger zerolog.Logger) *CoinGecko {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.coingecko.com/api/v3"
	}

	return &CoinGecko{
		opts:    opts,
		logger:  logger.With().Str("component", "coingecko_fetcher").Logger(),
		client:  &http.Client{Timeout: opts.Timeout},
		baseURL: baseURL,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// GetPrice retrieves the USD price for a single token.
func (c *CoinGecko) GetPrice(ctx context.Context, token string) (Quote, error) {
	query := url.Values{}
	query.Set("ids", token)
	query.Set("vs_currencies", vsCurrency)
	endpoint := c.baseURL + simplePricePath + "?" + query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Quote{}, &FetchError{Token: token, Message: "build request", Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(c.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	}
	if c.opts.APIKey != "" {
		req.Header.Set(apiKeyHeader, c.opts.APIKey)
	}

	c.logger.Debug().Str("token", token).Msg("fetching price")

	resp, err := c.client.Do(req)
	if err != nil {
		return Quote{}, &FetchError{Token: token, Message: "request failed", Err: err}
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return Quote{}, &FetchError{Token: token, Message: "read response", Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Quote{}, &FetchError{Token: token, Message: "upstream error", Err: parseHTTPError(resp.StatusCode, payload)}
	}

	var prices simplePriceResponse
	if err := json.Unmarshal(payload, &prices); err != nil {
		return Quote{}, &FetchError{Token: token, Message: "decode response", Err: err}
	}

	entry, ok := prices[token]
	if !ok || entry.USD == nil {
		return Quote{}, &FetchError{Token: token, Message: "no price data found"}
	}
	if !entry.USD.IsPositive() {
		return Quote{}, &FetchError{Token: token, Message: fmt.Sprintf("non-positive price %s", entry.USD.String())}
	}

	return Quote{Token: token, Price: *entry.USD, Timestamp: c.now()}, nil
}

// GetPrices fetches every token concurrently; failures are reported per token.
func (c *CoinGecko) GetPrices(ctx context.Context, tokens []string) []Result {
	return fetchAll(ctx, tokens, c.opts.Timeout, c.GetPrice)
}

type simplePriceResponse map[string]struct {
	USD *decimal.Decimal `json:"usd"`
}

type errorResponse struct {
	Error  string `json:"error"`
	Status struct {
		ErrorCode    int    `json:"error_code"`
		ErrorMessage string `json:"error_message"`
	} `json:"status"`
}

func parseHTTPError(status int, payload []byte) error {
	var apiErr errorResponse
	if err := json.Unmarshal(payload, &apiErr); err == nil {
		if apiErr.Status.ErrorMessage != "" {
			return fmt.Errorf("coingecko api error (%d): %s", status, apiErr.Status.ErrorMessage)
		}
		if apiErr.Error != "" {
			return fmt.Errorf("coingecko api error (%d): %s", status, apiErr.Error)
		}
	}
	if len(payload) > 0 {
		return fmt.Errorf("coingecko api error (%d): %s", status, strings.TrimSpace(string(payload)))
	}
	return fmt.Errorf("coingecko api error (%d)", status)
}

var _ PriceFetcher = (*CoinGecko)(nil)
