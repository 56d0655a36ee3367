// Package rugcheck is the REST client for the Rugcheck API, which scores
// Solana tokens for rug-pull and honeypot risk.
package rugcheck

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/alanyoungcy/dexbot/internal/domain"
	"github.com/alanyoungcy/dexbot/internal/platform/httperr"
)

// DefaultBaseURL is the Rugcheck public API root.
const DefaultBaseURL = "https://api.rugcheck.xyz"

// Client is the REST client for the Rugcheck API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new Rugcheck API client.
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

// apiReport mirrors the token report summary payload. Lower scores mean
// fewer detected risks.
type apiReport struct {
	Score           float64 `json:"score"`
	ScoreNormalised float64 `json:"score_normalised"`
	Risks           []struct {
		Name  string `json:"name"`
		Level string `json:"level"`
	} `json:"risks"`
}

// Assess fetches the risk report for a token and maps it onto a safety
// verdict: low score with no findings is safe, a moderate score or few
// findings is risky, everything else is unsafe.
func (c *Client) Assess(ctx context.Context, chain, tokenAddress string) (domain.SafetyReport, error) {
	if chain != "solana" {
		// Rugcheck only covers Solana; other chains stay unverified.
		return domain.SafetyReport{
			Verdict: domain.SafetyVerdictUnverified,
			Detail:  fmt.Sprintf("no safety provider for chain %s", chain),
		}, nil
	}

	path := fmt.Sprintf("/v1/tokens/%s/report/summary", url.PathEscape(tokenAddress))
	body, err := c.doGet(ctx, path)
	if err != nil {
		return domain.SafetyReport{}, fmt.Errorf("rugcheck: assess %s: %w", tokenAddress, err)
	}

	var report apiReport
	if err := json.Unmarshal(body, &report); err != nil {
		return domain.SafetyReport{}, domain.NewCollaboratorError("safety_check", domain.FailureBadResponse,
			fmt.Errorf("rugcheck: decode report: %w", err))
	}

	score := report.ScoreNormalised
	if score == 0 {
		score = report.Score
	}

	verdict := domain.SafetyVerdictUnsafe
	switch {
	case score <= 500 && len(report.Risks) == 0:
		verdict = domain.SafetyVerdictSafe
	case score <= 2000 || len(report.Risks) <= 2:
		verdict = domain.SafetyVerdictRisky
	}

	detail := ""
	for i, r := range report.Risks {
		if i > 0 {
			detail += "; "
		}
		detail += r.Name
	}

	return domain.SafetyReport{
		Verdict: verdict,
		Score:   score,
		Detail:  detail,
	}, nil
}

func (c *Client) doGet(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, httperr.Classify("safety_check", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, domain.NewCollaboratorError("safety_check", domain.FailureNetwork,
			fmt.Errorf("read response: %w", err))
	}

	if err := httperr.CheckStatus("safety_check", resp.StatusCode, body); err != nil {
		return nil, err
	}
	return body, nil
}
