// Package jupiter is the REST client for the Jupiter swap aggregator, the
// execution collaborator for Solana tokens. Transaction signing stays out of
// process: live swaps are built here and handed to a remote signer service.
package jupiter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/alanyoungcy/dexbot/internal/domain"
	"github.com/alanyoungcy/dexbot/internal/platform/httperr"
)

const (
	// DefaultQuoteBaseURL is the Jupiter v6 quote/swap API root.
	DefaultQuoteBaseURL = "https://quote-api.jup.ag/v6"
	// DefaultTokenListURL resolves token metadata (decimals).
	DefaultTokenListURL = "https://tokens.jup.ag"
	// USDCMint is the quote-side settlement asset for every swap.
	USDCMint = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"

	usdcDecimals = 6
)

// Side distinguishes buy and sell quotes.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Config holds the venue client parameters. SignerURL points at the external
// signing service that co-signs and submits swap transactions; when empty,
// live execution is rejected.
type Config struct {
	QuoteBaseURL    string
	TokenListURL    string
	SignerURL       string
	WalletPublicKey string
	SlippageBps     int
}

// Client is the REST client for the Jupiter swap API.
type Client struct {
	cfg        Config
	httpClient *http.Client

	mu       sync.Mutex
	decimals map[string]int
}

// NewClient creates a new Jupiter venue client.
func NewClient(cfg Config) *Client {
	if cfg.QuoteBaseURL == "" {
		cfg.QuoteBaseURL = DefaultQuoteBaseURL
	}
	if cfg.TokenListURL == "" {
		cfg.TokenListURL = DefaultTokenListURL
	}
	if cfg.SlippageBps <= 0 {
		cfg.SlippageBps = 100
	}
	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		decimals: make(map[string]int),
	}
}

// Quote is an executable price for one swap direction.
type Quote struct {
	TokenAddress string
	Side         Side
	Price        float64 // USD per token
	Quantity     float64 // token amount in or out
	NotionalUSD  float64

	raw json.RawMessage // verbatim quote response, replayed into /swap
}

type apiQuoteResponse struct {
	InAmount  string `json:"inAmount"`
	OutAmount string `json:"outAmount"`
}

// QuoteBuy prices a buy of notionalUSD worth of the token.
func (c *Client) QuoteBuy(ctx context.Context, tokenAddress string, notionalUSD float64) (Quote, error) {
	dec, err := c.tokenDecimals(ctx, tokenAddress)
	if err != nil {
		return Quote{}, err
	}

	amountIn := int64(math.Round(notionalUSD * math.Pow10(usdcDecimals)))
	raw, resp, err := c.quote(ctx, USDCMint, tokenAddress, amountIn)
	if err != nil {
		return Quote{}, fmt.Errorf("jupiter: quote buy %s: %w", tokenAddress, err)
	}

	outRaw, err := strconv.ParseInt(resp.OutAmount, 10, 64)
	if err != nil || outRaw <= 0 {
		return Quote{}, domain.NewCollaboratorError("execution", domain.FailureBadResponse,
			fmt.Errorf("jupiter: bad out amount %q", resp.OutAmount))
	}

	quantity := float64(outRaw) / math.Pow10(dec)
	return Quote{
		TokenAddress: tokenAddress,
		Side:         SideBuy,
		Price:        notionalUSD / quantity,
		Quantity:     quantity,
		NotionalUSD:  notionalUSD,
		raw:          raw,
	}, nil
}

// QuoteSell prices a sell of the given token quantity back into USDC.
func (c *Client) QuoteSell(ctx context.Context, tokenAddress string, quantity float64) (Quote, error) {
	dec, err := c.tokenDecimals(ctx, tokenAddress)
	if err != nil {
		return Quote{}, err
	}

	amountIn := int64(math.Round(quantity * math.Pow10(dec)))
	raw, resp, err := c.quote(ctx, tokenAddress, USDCMint, amountIn)
	if err != nil {
		return Quote{}, fmt.Errorf("jupiter: quote sell %s: %w", tokenAddress, err)
	}

	outRaw, err := strconv.ParseInt(resp.OutAmount, 10, 64)
	if err != nil || outRaw <= 0 {
		return Quote{}, domain.NewCollaboratorError("execution", domain.FailureBadResponse,
			fmt.Errorf("jupiter: bad out amount %q", resp.OutAmount))
	}

	notional := float64(outRaw) / math.Pow10(usdcDecimals)
	return Quote{
		TokenAddress: tokenAddress,
		Side:         SideSell,
		Price:        notional / quantity,
		Quantity:     quantity,
		NotionalUSD:  notional,
		raw:          raw,
	}, nil
}

// Execute builds the swap transaction for a previously obtained quote and
// submits it through the remote signer. The signer's transaction signature
// becomes the fill's tx reference.
func (c *Client) Execute(ctx context.Context, q Quote) (domain.Fill, error) {
	if c.cfg.SignerURL == "" || c.cfg.WalletPublicKey == "" {
		return domain.Fill{}, domain.NewCollaboratorError("execution", domain.FailureRejected,
			fmt.Errorf("jupiter: live execution requires signer_url and wallet_public_key"))
	}

	swapReq, err := json.Marshal(map[string]any{
		"quoteResponse": q.raw,
		"userPublicKey": c.cfg.WalletPublicKey,
	})
	if err != nil {
		return domain.Fill{}, fmt.Errorf("jupiter: marshal swap request: %w", err)
	}

	body, err := c.doPost(ctx, c.cfg.QuoteBaseURL+"/swap", swapReq)
	if err != nil {
		return domain.Fill{}, fmt.Errorf("jupiter: build swap: %w", err)
	}

	var swap struct {
		SwapTransaction string `json:"swapTransaction"`
	}
	if err := json.Unmarshal(body, &swap); err != nil || swap.SwapTransaction == "" {
		return domain.Fill{}, domain.NewCollaboratorError("execution", domain.FailureBadResponse,
			fmt.Errorf("jupiter: swap response missing transaction"))
	}

	signReq, err := json.Marshal(map[string]string{
		"transaction": swap.SwapTransaction,
	})
	if err != nil {
		return domain.Fill{}, fmt.Errorf("jupiter: marshal sign request: %w", err)
	}

	signBody, err := c.doPost(ctx, c.cfg.SignerURL, signReq)
	if err != nil {
		return domain.Fill{}, fmt.Errorf("jupiter: sign and send: %w", err)
	}

	var signed struct {
		Signature string `json:"signature"`
		Error     string `json:"error"`
	}
	if err := json.Unmarshal(signBody, &signed); err != nil {
		return domain.Fill{}, domain.NewCollaboratorError("execution", domain.FailureBadResponse,
			fmt.Errorf("jupiter: decode signer response: %w", err))
	}
	if signed.Signature == "" {
		kind := domain.FailureRejected
		if strings.Contains(strings.ToLower(signed.Error), "insufficient") {
			kind = domain.FailureInsufficientBalance
		}
		return domain.Fill{}, domain.NewCollaboratorError("execution", kind,
			fmt.Errorf("jupiter: signer rejected: %s", signed.Error))
	}

	return domain.Fill{
		Price:    q.Price,
		Quantity: q.Quantity,
		TxRef:    signed.Signature,
		DryRun:   false,
	}, nil
}

// ExecuteBuy quotes and executes a buy of notionalUSD worth of the token.
func (c *Client) ExecuteBuy(ctx context.Context, tokenAddress string, notionalUSD float64) (domain.Fill, error) {
	q, err := c.QuoteBuy(ctx, tokenAddress, notionalUSD)
	if err != nil {
		return domain.Fill{}, err
	}
	return c.Execute(ctx, q)
}

// ExecuteSell quotes and executes a sell of the given token quantity.
func (c *Client) ExecuteSell(ctx context.Context, tokenAddress string, quantity float64) (domain.Fill, error) {
	q, err := c.QuoteSell(ctx, tokenAddress, quantity)
	if err != nil {
		return domain.Fill{}, err
	}
	return c.Execute(ctx, q)
}

func (c *Client) quote(ctx context.Context, inputMint, outputMint string, amount int64) (json.RawMessage, apiQuoteResponse, error) {
	params := url.Values{}
	params.Set("inputMint", inputMint)
	params.Set("outputMint", outputMint)
	params.Set("amount", strconv.FormatInt(amount, 10))
	params.Set("slippageBps", strconv.Itoa(c.cfg.SlippageBps))
	params.Set("swapMode", "ExactIn")

	body, err := c.doGet(ctx, c.cfg.QuoteBaseURL+"/quote?"+params.Encode())
	if err != nil {
		return nil, apiQuoteResponse{}, err
	}

	var resp apiQuoteResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, apiQuoteResponse{}, domain.NewCollaboratorError("execution", domain.FailureBadResponse,
			fmt.Errorf("decode quote: %w", err))
	}
	return body, resp, nil
}

// tokenDecimals resolves and memoizes a mint's decimal places.
func (c *Client) tokenDecimals(ctx context.Context, mint string) (int, error) {
	c.mu.Lock()
	if dec, ok := c.decimals[mint]; ok {
		c.mu.Unlock()
		return dec, nil
	}
	c.mu.Unlock()

	body, err := c.doGet(ctx, c.cfg.TokenListURL+"/token/"+url.PathEscape(mint))
	if err != nil {
		return 0, fmt.Errorf("jupiter: token metadata %s: %w", mint, err)
	}

	var meta struct {
		Decimals int `json:"decimals"`
	}
	if err := json.Unmarshal(body, &meta); err != nil {
		return 0, domain.NewCollaboratorError("execution", domain.FailureBadResponse,
			fmt.Errorf("jupiter: decode token metadata: %w", err))
	}
	if meta.Decimals <= 0 {
		return 0, domain.NewCollaboratorError("execution", domain.FailureBadResponse,
			fmt.Errorf("jupiter: token %s has no decimals", mint))
	}

	c.mu.Lock()
	c.decimals[mint] = meta.Decimals
	c.mu.Unlock()
	return meta.Decimals, nil
}

func (c *Client) doGet(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	return c.do(req)
}

func (c *Client) doPost(ctx context.Context, rawURL string, payload []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	return c.do(req)
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, httperr.Classify("execution", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, domain.NewCollaboratorError("execution", domain.FailureNetwork,
			fmt.Errorf("read response: %w", err))
	}

	if err := httperr.CheckStatus("execution", resp.StatusCode, body); err != nil {
		return nil, err
	}
	return body, nil
}
