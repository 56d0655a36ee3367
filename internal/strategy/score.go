package strategy

import (
	"context"
	"fmt"
	"math"

	"github.com/alanyoungcy/dexbot/internal/domain"
)

// Scorer assigns a 0-100 momentum/quality score to each candidate. Scoring is
// pluggable; a scorer error falls back to the heuristic, it never drops the
// candidate.
type Scorer interface {
	Score(ctx context.Context, candidates []domain.Candidate) ([]domain.Candidate, error)
}

// HeuristicScorer is the default deterministic scorer. It combines turnover,
// price momentum, liquidity depth, and the safety verdict.
type HeuristicScorer struct{}

// Score fills in Score and Reasoning for each candidate.
func (HeuristicScorer) Score(_ context.Context, candidates []domain.Candidate) ([]domain.Candidate, error) {
	for i := range candidates {
		candidates[i].Score = heuristicScore(candidates[i])
		candidates[i].Reasoning = fmt.Sprintf(
			"heuristic: turnover+momentum+liquidity+safety, 24h change %.1f%%",
			candidates[i].PriceChange24h)
	}
	return candidates, nil
}

func heuristicScore(c domain.Candidate) float64 {
	score := 0.0

	// Volume/liquidity turnover, 0-30.
	if c.LiquidityUSD > 0 {
		score += math.Min(30, c.Volume24hUSD/c.LiquidityUSD*10)
	}

	// Positive 24h momentum, 0-30.
	if c.PriceChange24h > 0 {
		score += math.Min(30, c.PriceChange24h)
	}

	// Liquidity depth, 0-20.
	switch {
	case c.LiquidityUSD >= 50000:
		score += 20
	case c.LiquidityUSD >= 10000:
		score += 10
	}

	// Safety verdict, 0-20.
	switch c.Safety.Verdict {
	case domain.SafetyVerdictSafe:
		score += 20
	case domain.SafetyVerdictRisky, domain.SafetyVerdictUnverified:
		score += 10
	}

	return math.Min(100, score)
}
