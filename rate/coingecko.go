package rate

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dnldd/fxrfq/shared"
	"github.com/tidwall/gjson"
)

const (
	// BaseURL is the public CoinGecko api base url.
	BaseURL = "https://api.coingecko.com/api/v3"
	// proAPIKeyHeader carries the optional pro api key.
	proAPIKeyHeader = "x-cg-pro-api-key"
)

// CoinGeckoConfig represents the configuration for the CoinGecko client.
type CoinGeckoConfig struct {
	// APIKey is the optional CoinGecko pro api key.
	APIKey string
	// BaseURL is the api base url.
	BaseURL string
}

// CoinGeckoClient represents the CoinGecko price api client. It is safe
// for concurrent use.
type CoinGeckoClient struct {
	cfg   *CoinGeckoConfig
	httpc http.Client
}

// Ensure the CoinGeckoClient implements the PriceSource interface.
var _ shared.PriceSource = (*CoinGeckoClient)(nil)

// NewCoinGeckoClient instantiates a new CoinGecko client.
func NewCoinGeckoClient(cfg *CoinGeckoConfig) *CoinGeckoClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = BaseURL
	}

	return &CoinGeckoClient{
		cfg:   cfg,
		httpc: http.Client{Timeout: time.Second * 5},
	}
}

// formURL creates full urls including parameters for the api. The builder
// is per call since the client is shared by the sampling job and request
// handlers running in parallel.
func (c *CoinGeckoClient) formURL(path string, params string) string {
	var buf strings.Builder
	buf.Grow(len(c.cfg.BaseURL) + len(path) + len(params) + 1)
	buf.WriteString(c.cfg.BaseURL)
	buf.WriteString(path)
	buf.WriteString("?")
	buf.WriteString(params)

	return buf.String()
}

// fetch performs an api request and returns the response body.
func (c *CoinGeckoClient) fetch(ctx context.Context, formedURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, formedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating price request: %w", err)
	}

	if c.cfg.APIKey != "" {
		req.Header.Set(proAPIKeyHeader, c.cfg.APIKey)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching prices: %w", err)
	}

	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("price api responded with status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	return body, nil
}

// Lookup fetches the current price of each provided coin id in the
// reference unit.
func (c *CoinGeckoClient) Lookup(ctx context.Context, coinIDs []string) (map[string]float64, error) {
	const simplePricePath = "/simple/price"

	params := url.Values{}
	params.Add("ids", strings.Join(coinIDs, ","))
	params.Add("vs_currencies", "usd")

	body, err := c.fetch(ctx, c.formURL(simplePricePath, params.Encode()))
	if err != nil {
		return nil, err
	}

	prices := make(map[string]float64, len(coinIDs))
	for _, id := range coinIDs {
		price := gjson.GetBytes(body, id+".usd")
		if !price.Exists() {
			return nil, fmt.Errorf("no price data for coin %s", id)
		}

		prices[id] = price.Float()
	}

	return prices, nil
}

// History fetches a price time series for the provided coin id. Timestamps
// are reported in milliseconds as returned upstream.
func (c *CoinGeckoClient) History(ctx context.Context, coinID string, days string, interval string) ([]shared.PricePoint, error) {
	params := url.Values{}
	params.Add("vs_currency", "usd")
	params.Add("days", days)
	if interval != "" && interval != "auto" {
		params.Add("interval", interval)
	}

	path := fmt.Sprintf("/coins/%s/market_chart", coinID)
	body, err := c.fetch(ctx, c.formURL(path, params.Encode()))
	if err != nil {
		return nil, err
	}

	data := gjson.GetBytes(body, "prices").Array()
	points := make([]shared.PricePoint, 0, len(data))
	for idx := range data {
		pair := data[idx].Array()
		if len(pair) < 2 {
			continue
		}

		points = append(points, shared.PricePoint{
			Time:  pair[0].Int(),
			Price: pair[1].Float(),
		})
	}

	return points, nil
}
