// Package dexscreener is the REST client for the DexScreener public API,
// which provides trending-token discovery and pair market data.
package dexscreener

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/alanyoungcy/dexbot/internal/domain"
	"github.com/alanyoungcy/dexbot/internal/platform/httperr"
)

// DefaultBaseURL is the DexScreener public API root.
const DefaultBaseURL = "https://api.dexscreener.com"

// Client is the REST client for the DexScreener API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new DexScreener API client.
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// TrendingPairs returns pairs for the currently boosted tokens on the given
// chain, falling back to a keyword search when the boost feed is empty. The
// result preserves feed order and contains each token at most once.
func (c *Client) TrendingPairs(ctx context.Context, chain string) ([]domain.Pair, error) {
	seen := make(map[string]bool)
	var pairs []domain.Pair

	add := func(candidates []domain.Pair) {
		for _, p := range candidates {
			if p.Chain != chain || p.TokenAddress == "" || seen[p.TokenAddress] {
				continue
			}
			seen[p.TokenAddress] = true
			pairs = append(pairs, p)
		}
	}

	boosted, err := c.boostedTokens(ctx, chain)
	if err != nil {
		return nil, err
	}
	for _, addr := range boosted {
		tokenPairs, err := c.tokenPairs(ctx, chain, addr)
		if err != nil {
			// One bad token must not sink the whole scan.
			continue
		}
		add(tokenPairs)
	}

	if len(pairs) == 0 {
		searched, err := c.searchPairs(ctx, "trending "+chain)
		if err != nil {
			return nil, err
		}
		add(searched)
	}

	return pairs, nil
}

// TokenPrice returns the current price of a token, taken from its most
// liquid pair.
func (c *Client) TokenPrice(ctx context.Context, chain, tokenAddress string) (float64, error) {
	pairs, err := c.tokenPairs(ctx, chain, tokenAddress)
	if err != nil {
		return 0, err
	}
	if len(pairs) == 0 {
		return 0, domain.NewCollaboratorError("market_data", domain.FailureNotFound,
			fmt.Errorf("no pairs for token %s", tokenAddress))
	}

	best := pairs[0]
	for _, p := range pairs[1:] {
		if p.LiquidityUSD > best.LiquidityUSD {
			best = p
		}
	}
	if best.PriceUSD <= 0 {
		return 0, domain.NewCollaboratorError("market_data", domain.FailureBadResponse,
			fmt.Errorf("non-positive price for token %s", tokenAddress))
	}
	return best.PriceUSD, nil
}

// boostedTokens fetches token addresses from the top-boosts feed, falling
// back to the latest-boosts feed.
func (c *Client) boostedTokens(ctx context.Context, chain string) ([]string, error) {
	for _, path := range []string{"/token-boosts/top/v1", "/token-boosts/latest/v1"} {
		body, err := c.doGet(ctx, path)
		if err != nil {
			return nil, fmt.Errorf("dexscreener: boosted tokens: %w", err)
		}

		var boosts []APIBoost
		if err := json.Unmarshal(body, &boosts); err != nil {
			return nil, domain.NewCollaboratorError("market_data", domain.FailureBadResponse,
				fmt.Errorf("dexscreener: decode boosts: %w", err))
		}

		var tokens []string
		for _, b := range boosts {
			if b.ChainID == chain && b.TokenAddress != "" {
				tokens = append(tokens, b.TokenAddress)
			}
		}
		if len(tokens) > 0 {
			return tokens, nil
		}
	}
	return nil, nil
}

// tokenPairs returns all pairs trading the given token on the given chain.
func (c *Client) tokenPairs(ctx context.Context, chain, tokenAddress string) ([]domain.Pair, error) {
	path := fmt.Sprintf("/token-pairs/v1/%s/%s", url.PathEscape(chain), url.PathEscape(tokenAddress))

	body, err := c.doGet(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("dexscreener: token pairs %s: %w", tokenAddress, err)
	}

	var apiPairs []APIPair
	if err := json.Unmarshal(body, &apiPairs); err != nil {
		return nil, domain.NewCollaboratorError("market_data", domain.FailureBadResponse,
			fmt.Errorf("dexscreener: decode token pairs: %w", err))
	}

	pairs := make([]domain.Pair, 0, len(apiPairs))
	for i := range apiPairs {
		pairs = append(pairs, apiPairs[i].ToDomainPair())
	}
	return pairs, nil
}

// searchPairs queries the free-text pair search endpoint.
func (c *Client) searchPairs(ctx context.Context, query string) ([]domain.Pair, error) {
	params := url.Values{}
	params.Set("q", query)

	body, err := c.doGet(ctx, "/latest/dex/search?"+params.Encode())
	if err != nil {
		return nil, fmt.Errorf("dexscreener: search pairs: %w", err)
	}

	var resp searchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, domain.NewCollaboratorError("market_data", domain.FailureBadResponse,
			fmt.Errorf("dexscreener: decode search: %w", err))
	}

	pairs := make([]domain.Pair, 0, len(resp.Pairs))
	for i := range resp.Pairs {
		pairs = append(pairs, resp.Pairs[i].ToDomainPair())
	}
	return pairs, nil
}

func (c *Client) doGet(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, httperr.Classify("market_data", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, domain.NewCollaboratorError("market_data", domain.FailureNetwork,
			fmt.Errorf("read response: %w", err))
	}

	if err := httperr.CheckStatus("market_data", resp.StatusCode, body); err != nil {
		return nil, err
	}
	return body, nil
}

func parsePrice(s string) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}
