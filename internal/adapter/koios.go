package adapter

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/cardano-portfolio/internal/config"
	apperrors "github.com/cardano-portfolio/internal/errors"
	"github.com/cardano-portfolio/internal/logging"
	"github.com/cardano-portfolio/internal/models"
)

// koiosPageSize is the row limit Koios applies to a single response
const koiosPageSize = 1000

// KoiosClient reads stake account balances from a Koios REST endpoint.
// Every call covers the whole address batch.
type KoiosClient struct {
	endpoints *EndpointPool
	apiKey    string
	transport transport
	pageSize  int
}

// NewKoiosClient creates a client with primary/secondary failover
func NewKoiosClient(cfg *config.KoiosConfig) (*KoiosClient, error) {
	pool, err := NewEndpointPool(strings.TrimRight(cfg.PrimaryURL, "/"), strings.TrimRight(cfg.SecondaryURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("koios: %w", err)
	}
	return &KoiosClient{
		endpoints: pool,
		apiKey:    cfg.APIKey,
		transport: newTransport("koios", &http.Client{Timeout: cfg.Timeout}, cfg.RequestsPerSecond),
		pageSize:  koiosPageSize,
	}, nil
}

// Health returns the health of the endpoint in use
func (c *KoiosClient) Health() EndpointHealth {
	return c.endpoints.Health()
}

type stakeAddressesBody struct {
	StakeAddresses []string `json:"_stake_addresses"`
}

type koiosAccountInfo struct {
	StakeAddress string `json:"stake_address"`
	Status       string `json:"status"`
	TotalBalance string `json:"total_balance"`
}

type koiosAccountAsset struct {
	StakeAddress string `json:"stake_address"`
	PolicyID     string `json:"policy_id"`
	AssetName    string `json:"asset_name"`
	Decimals     *int   `json:"decimals"`
	Quantity     string `json:"quantity"`
}

// GetAccountInfo returns the total lovelace balance per stake address.
// Addresses unknown to the indexer are absent from the result.
func (c *KoiosClient) GetAccountInfo(ctx context.Context, addresses []string) (map[string]models.AccountBalance, error) {
	out := make(map[string]models.AccountBalance, len(addresses))
	if len(addresses) == 0 {
		return out, nil
	}

	rows, err := paginate[koiosAccountInfo](ctx, c, "/account_info", addresses)
	if err != nil {
		return nil, err
	}
	for _, r := range rows {
		out[r.StakeAddress] = models.AccountBalance{StakeAddress: r.StakeAddress, TotalBalance: r.TotalBalance}
	}

	logging.FromContext(ctx).WithFields(map[string]interface{}{
		"component": "koios",
		"requested": len(addresses),
		"returned":  len(out),
	}).Debug("Fetched account info")
	return out, nil
}

// GetAccountAssets returns every native token held by the stake addresses
func (c *KoiosClient) GetAccountAssets(ctx context.Context, addresses []string) ([]models.AccountAsset, error) {
	if len(addresses) == 0 {
		return nil, nil
	}

	rows, err := paginate[koiosAccountAsset](ctx, c, "/account_assets", addresses)
	if err != nil {
		return nil, err
	}

	assets := make([]models.AccountAsset, 0, len(rows))
	for _, r := range rows {
		assets = append(assets, models.AccountAsset{
			StakeAddress: r.StakeAddress,
			Unit:         r.PolicyID + r.AssetName,
			RawQuantity:  r.Quantity,
			Decimals:     r.Decimals,
		})
	}
	return assets, nil
}

// paginate POSTs the address batch and follows offset pages until a short page
func paginate[T any](ctx context.Context, c *KoiosClient, path string, addresses []string) ([]T, error) {
	body := stakeAddressesBody{StakeAddresses: addresses}

	var all []T
	for offset := 0; ; offset += c.pageSize {
		var page []T
		err := c.endpoints.Do(ctx, isServerSide, func(baseURL string) error {
			q := url.Values{}
			q.Set("offset", strconv.Itoa(offset))
			q.Set("limit", strconv.Itoa(c.pageSize))

			req, err := newJSONRequest(ctx, http.MethodPost, baseURL+path+"?"+q.Encode(), body)
			if err != nil {
				return err
			}
			if c.apiKey != "" {
				req.Header.Set("Authorization", "Bearer "+c.apiKey)
			}
			page = page[:0]
			return c.transport.do(ctx, req, &page)
		})
		if err != nil {
			return nil, apperrors.NewProviderError("koios", err)
		}

		all = append(all, page...)
		if len(page) < c.pageSize {
			return all, nil
		}
	}
}
