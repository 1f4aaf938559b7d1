package adapter

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/cardano-portfolio/internal/config"
	apperrors "github.com/cardano-portfolio/internal/errors"
)

// KrakenClient reads last trade prices from Kraken's public Ticker endpoint
type KrakenClient struct {
	baseURL   string
	transport transport
}

// NewKrakenClient creates a new Kraken ticker client
func NewKrakenClient(cfg *config.KrakenConfig) *KrakenClient {
	return &KrakenClient{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		transport: newTransport("kraken", &http.Client{Timeout: cfg.Timeout}, cfg.RequestsPerSecond),
	}
}

// Name identifies the source in quote provenance strings
func (c *KrakenClient) Name() string { return "kraken" }

// krakenTicker holds the fields of a ticker entry that are read.
// c is [price, lotVolume] of the last closed trade.
type krakenTicker struct {
	LastTradeClosed []string `json:"c"`
}

type krakenTickerResponse struct {
	Error  []string                `json:"error"`
	Result map[string]krakenTicker `json:"result"`
}

// GetTicker prices every pair in one request. The result is keyed by Kraken's
// own result names (XXBTZUSD for XBTUSD), which callers match back to pairs.
func (c *KrakenClient) GetTicker(ctx context.Context, pairs []string) (map[string]float64, error) {
	out := make(map[string]float64, len(pairs))
	if len(pairs) == 0 {
		return out, nil
	}

	q := url.Values{}
	q.Set("pair", strings.Join(pairs, ","))
	req, err := newJSONRequest(ctx, http.MethodGet, c.baseURL+"/0/public/Ticker?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}

	var resp krakenTickerResponse
	if err := c.transport.do(ctx, req, &resp); err != nil {
		return nil, apperrors.NewProviderError(c.Name(), err)
	}
	if len(resp.Error) > 0 && len(resp.Result) == 0 {
		return nil, apperrors.NewProviderError(c.Name(), errors.New(strings.Join(resp.Error, ", ")))
	}

	for key, ticker := range resp.Result {
		if len(ticker.LastTradeClosed) == 0 {
			continue
		}
		price, err := strconv.ParseFloat(ticker.LastTradeClosed[0], 64)
		if err != nil || price <= 0 {
			continue
		}
		out[key] = price
	}
	if len(out) == 0 {
		return nil, apperrors.NewProviderError(c.Name(), fmt.Errorf("no prices in ticker response for %s", strings.Join(pairs, ",")))
	}
	return out, nil
}
