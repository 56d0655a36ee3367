package strategy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/dexbot/internal/domain"
)

// MarketData is the market-data collaborator: trending discovery and spot
// prices.
type MarketData interface {
	TrendingPairs(ctx context.Context, chain string) ([]domain.Pair, error)
	TokenPrice(ctx context.Context, chain, tokenAddress string) (float64, error)
}

// SafetyChecker is the safety-check collaborator.
type SafetyChecker interface {
	Assess(ctx context.Context, chain, tokenAddress string) (domain.SafetyReport, error)
}

const safetyConcurrency = 4

// Pipeline turns the trending feed into an ordered list of scored
// candidates. Every stage may drop candidates; no single bad token fails a
// cycle.
type Pipeline struct {
	market    MarketData
	safety    SafetyChecker
	scorer    Scorer
	positions domain.PositionStore
	penalties domain.PenaltyStore
	chain     string
	excluded  map[string]bool
	logger    *slog.Logger
}

// NewPipeline creates a discovery pipeline for one chain. The excluded list
// names token addresses that can never become position targets, such as the
// settlement asset.
func NewPipeline(
	market MarketData,
	safety SafetyChecker,
	scorer Scorer,
	positions domain.PositionStore,
	penalties domain.PenaltyStore,
	chain string,
	excluded []string,
	logger *slog.Logger,
) *Pipeline {
	excludeSet := make(map[string]bool, len(excluded))
	for _, addr := range excluded {
		excludeSet[addr] = true
	}
	return &Pipeline{
		market:    market,
		safety:    safety,
		scorer:    scorer,
		positions: positions,
		penalties: penalties,
		chain:     chain,
		excluded:  excludeSet,
		logger:    logger.With(slog.String("component", "discovery")),
	}
}

// Discover runs the pipeline: scan trending pairs, filter by volume and
// liquidity, drop held/excluded/benched/cooling tokens, safety-check the
// survivors, score, and return candidates sorted descending by score (stable
// on ties in discovery order).
func (p *Pipeline) Discover(ctx context.Context, params Params, now time.Time) ([]domain.Candidate, error) {
	pairs, err := p.market.TrendingPairs(ctx, p.chain)
	if err != nil {
		return nil, fmt.Errorf("strategy: discover: %w", err)
	}
	p.logger.Info("scanned trending pairs", slog.Int("count", len(pairs)))

	filtered, err := p.filter(ctx, pairs, params, now)
	if err != nil {
		return nil, err
	}
	if len(filtered) == 0 {
		return nil, nil
	}

	checked := p.safetyCheck(ctx, filtered)
	if len(checked) == 0 {
		return nil, nil
	}

	scored, err := p.scorer.Score(ctx, checked)
	if err != nil {
		// Scoring is best-effort: fall back to the built-in heuristic.
		p.logger.Warn("scorer failed, using heuristic", slog.String("error", err.Error()))
		scored, _ = HeuristicScorer{}.Score(ctx, checked)
	}

	var qualified []domain.Candidate
	for _, c := range scored {
		if c.Score >= params.MinScore {
			qualified = append(qualified, c)
		}
	}

	sort.SliceStable(qualified, func(i, j int) bool {
		return qualified[i].Score > qualified[j].Score
	})

	p.logger.Info("discovery complete",
		slog.Int("scanned", len(pairs)),
		slog.Int("filtered", len(filtered)),
		slog.Int("qualified", len(qualified)),
	)
	return qualified, nil
}

// filter applies the market-quality filters and drops tokens that are held,
// excluded, benched by the penalty box, or inside the re-entry cooldown.
func (p *Pipeline) filter(ctx context.Context, pairs []domain.Pair, params Params, now time.Time) ([]domain.Candidate, error) {
	open, err := p.positions.ListOpen(ctx)
	if err != nil {
		return nil, fmt.Errorf("strategy: discover: list open: %w", err)
	}
	held := make(map[string]bool, len(open))
	for _, pos := range open {
		held[pos.TokenAddress] = true
	}

	var out []domain.Candidate
	for _, pair := range pairs {
		if pair.PriceUSD <= 0 || pair.Volume24hUSD < params.MinVolumeUSD || pair.LiquidityUSD < params.MinLiquidityUSD {
			continue
		}
		if held[pair.TokenAddress] || p.excluded[pair.TokenAddress] {
			continue
		}

		skip, err := p.penalties.SkipCycles(ctx, pair.TokenAddress, p.chain)
		if err != nil {
			return nil, fmt.Errorf("strategy: discover: penalty lookup: %w", err)
		}
		if skip > 0 {
			p.logger.Info("token benched by penalty box",
				slog.String("token", pair.TokenAddress),
				slog.Int("skip_cycles", skip),
			)
			continue
		}

		if params.ReentryCooldown > 0 {
			last, err := p.positions.LastEntryTime(ctx, pair.TokenAddress, p.chain)
			if err != nil {
				return nil, fmt.Errorf("strategy: discover: last entry: %w", err)
			}
			if last != nil && now.Sub(*last) < params.ReentryCooldown {
				continue
			}
		}

		out = append(out, domain.Candidate{Pair: pair})
	}
	return out, nil
}

// safetyCheck assesses candidates concurrently. Unsafe verdicts and provider
// failures both drop the candidate; result order is preserved.
func (p *Pipeline) safetyCheck(ctx context.Context, candidates []domain.Candidate) []domain.Candidate {
	results := make([]*domain.Candidate, len(candidates))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(safetyConcurrency)

	for i := range candidates {
		g.Go(func() error {
			c := candidates[i]
			report, err := p.safety.Assess(gctx, c.Chain, c.TokenAddress)
			if err != nil {
				if errors.Is(err, context.Canceled) {
					return err
				}
				p.logger.Warn("safety check failed, dropping candidate",
					slog.String("token", c.TokenAddress),
					slog.String("error", err.Error()),
				)
				return nil
			}
			if report.Verdict == domain.SafetyVerdictUnsafe {
				p.logger.Info("dropping unsafe token",
					slog.String("token", c.TokenAddress),
					slog.Float64("safety_score", report.Score),
				)
				return nil
			}
			c.Safety = report
			results[i] = &c
			return nil
		})
	}
	// The only propagated error is context cancellation; partial results
	// are still returned in that case.
	_ = g.Wait()

	var out []domain.Candidate
	for _, c := range results {
		if c != nil {
			out = append(out, *c)
		}
	}
	return out
}
