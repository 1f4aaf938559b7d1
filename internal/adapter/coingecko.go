package adapter

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/cardano-portfolio/internal/config"
	apperrors "github.com/cardano-portfolio/internal/errors"
)

// CoinGeckoClient reads USD prices from the CoinGecko simple price endpoint
type CoinGeckoClient struct {
	baseURL   string
	apiKey    string
	transport transport
}

// NewCoinGeckoClient creates a new CoinGecko client
func NewCoinGeckoClient(cfg *config.CoinGeckoConfig) *CoinGeckoClient {
	return &CoinGeckoClient{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:    cfg.APIKey,
		transport: newTransport("coingecko", &http.Client{Timeout: cfg.Timeout}, cfg.RequestsPerSecond),
	}
}

// Name identifies the source in quote provenance strings
func (c *CoinGeckoClient) Name() string { return "coingecko" }

// GetSimplePrice prices every id in one request. Ids CoinGecko does not know
// are absent from the result.
func (c *CoinGeckoClient) GetSimplePrice(ctx context.Context, ids []string) (map[string]float64, error) {
	out := make(map[string]float64, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	q := url.Values{}
	q.Set("ids", strings.Join(ids, ","))
	q.Set("vs_currencies", "usd")
	if c.apiKey != "" {
		q.Set("x_cg_pro_api_key", c.apiKey)
	}

	req, err := newJSONRequest(ctx, http.MethodGet, c.baseURL+"/api/v3/simple/price?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}

	var resp map[string]map[string]float64
	if err := c.transport.do(ctx, req, &resp); err != nil {
		return nil, apperrors.NewProviderError(c.Name(), err)
	}

	for id, prices := range resp {
		if usd, ok := prices["usd"]; ok && usd > 0 {
			out[id] = usd
		}
	}
	return out, nil
}
