package strategy

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/dexbot/internal/domain"
)

// Venue is the execution collaborator for live trades: quote and execute in
// one call, returning a normalized fill or a classified failure.
type Venue interface {
	ExecuteBuy(ctx context.Context, tokenAddress string, notionalUSD float64) (domain.Fill, error)
	ExecuteSell(ctx context.Context, tokenAddress string, quantity float64) (domain.Fill, error)
}

// Executor translates open and close decisions into fills. In dry-run mode it
// simulates a zero-slippage fill at the last quoted price and never contacts
// the venue. It never retries; retry back-off is the risk guard's cooldown.
type Executor struct {
	venue  Venue
	prices domain.PriceCache
	logger *slog.Logger
}

// NewExecutor creates an Executor. The price cache feeds dry-run fills.
func NewExecutor(venue Venue, prices domain.PriceCache, logger *slog.Logger) *Executor {
	return &Executor{
		venue:  venue,
		prices: prices,
		logger: logger.With(slog.String("component", "executor")),
	}
}

// Open buys sizeUSD worth of the candidate token. The candidate's scan price
// is the dry-run fill price.
func (e *Executor) Open(ctx context.Context, c domain.Candidate, sizeUSD float64, dryRun bool) (domain.Fill, error) {
	if dryRun {
		if c.PriceUSD <= 0 {
			return domain.Fill{}, domain.NewCollaboratorError("execution", domain.FailureBadResponse,
				fmt.Errorf("strategy: no quoted price for %s", c.TokenAddress))
		}
		fill := domain.Fill{
			Price:    c.PriceUSD,
			Quantity: sizeUSD / c.PriceUSD,
			DryRun:   true,
		}
		e.cachePrice(ctx, c.Chain, c.TokenAddress, fill.Price)
		return fill, nil
	}

	fill, err := e.venue.ExecuteBuy(ctx, c.TokenAddress, sizeUSD)
	if err != nil {
		return domain.Fill{}, err
	}
	e.cachePrice(ctx, c.Chain, c.TokenAddress, fill.Price)
	e.logger.Info("live buy filled",
		slog.String("token", c.TokenAddress),
		slog.Float64("price", fill.Price),
		slog.String("tx", fill.TxRef),
	)
	return fill, nil
}

// Close sells the position's full quantity. currentPrice, the last quoted
// price from the exit check, is the dry-run fill price.
func (e *Executor) Close(ctx context.Context, p domain.Position, currentPrice float64, dryRun bool) (domain.Fill, error) {
	if dryRun {
		if currentPrice <= 0 {
			return domain.Fill{}, domain.NewCollaboratorError("execution", domain.FailureBadResponse,
				fmt.Errorf("strategy: no quoted price for %s", p.TokenAddress))
		}
		fill := domain.Fill{
			Price:    currentPrice,
			Quantity: p.Quantity,
			DryRun:   true,
		}
		e.cachePrice(ctx, p.Chain, p.TokenAddress, fill.Price)
		return fill, nil
	}

	fill, err := e.venue.ExecuteSell(ctx, p.TokenAddress, p.Quantity)
	if err != nil {
		return domain.Fill{}, err
	}
	e.cachePrice(ctx, p.Chain, p.TokenAddress, fill.Price)
	e.logger.Info("live sell filled",
		slog.String("token", p.TokenAddress),
		slog.Float64("price", fill.Price),
		slog.String("tx", fill.TxRef),
	)
	return fill, nil
}

func (e *Executor) cachePrice(ctx context.Context, chain, tokenAddress string, price float64) {
	if err := e.prices.SetPrice(ctx, chain, tokenAddress, price, time.Now().UTC()); err != nil {
		e.logger.Warn("price cache write failed",
			slog.String("token", tokenAddress),
			slog.String("error", err.Error()),
		)
	}
}
