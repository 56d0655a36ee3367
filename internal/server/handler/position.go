package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/dexbot/internal/domain"
)

// PositionReader lists positions from the store.
type PositionReader interface {
	ListOpen(ctx context.Context) ([]domain.Position, error)
	ListClosed(ctx context.Context, limit int) ([]domain.Position, error)
}

// PositionCloser executes operator-initiated exits.
type PositionCloser interface {
	ClosePosition(ctx context.Context, id string) (domain.Position, error)
	CloseAll(ctx context.Context) ([]string, error)
}

// PositionHandler serves position HTTP endpoints.
type PositionHandler struct {
	positions PositionReader
	closer    PositionCloser
	logger    *slog.Logger
}

// NewPositionHandler creates a PositionHandler with the given dependencies.
func NewPositionHandler(positions PositionReader, closer PositionCloser, logger *slog.Logger) *PositionHandler {
	return &PositionHandler{
		positions: positions,
		closer:    closer,
		logger:    logger,
	}
}

// positionResponse is the JSON shape for a position.
type positionResponse struct {
	ID           string   `json:"id"`
	TokenAddress string   `json:"token_address"`
	Symbol       string   `json:"symbol"`
	Chain        string   `json:"chain"`
	EntryPrice   float64  `json:"entry_price"`
	Quantity     float64  `json:"quantity"`
	NotionalUSD  float64  `json:"notional_usd"`
	StopPrice    float64  `json:"stop_price"`
	TakePrice    float64  `json:"take_price"`
	TrailingStop *float64 `json:"trailing_stop,omitempty"`
	HighWater    float64  `json:"high_water"`
	Score        float64  `json:"score"`
	DryRun       bool     `json:"dry_run"`
	Status       string   `json:"status"`
	OpenedAt     string   `json:"opened_at"`
	ClosedAt     *string  `json:"closed_at,omitempty"`
	ExitPrice    *float64 `json:"exit_price,omitempty"`
	RealizedPnL  *float64 `json:"realized_pnl_usd,omitempty"`
	CloseReason  *string  `json:"close_reason,omitempty"`
}

func toPositionResponse(p domain.Position) positionResponse {
	resp := positionResponse{
		ID:           p.ID,
		TokenAddress: p.TokenAddress,
		Symbol:       p.Symbol,
		Chain:        p.Chain,
		EntryPrice:   p.EntryPrice,
		Quantity:     p.Quantity,
		NotionalUSD:  p.NotionalUSD,
		StopPrice:    p.StopPrice,
		TakePrice:    p.TakePrice,
		TrailingStop: p.TrailingStop,
		HighWater:    p.HighWater,
		Score:        p.Score,
		DryRun:       p.DryRun,
		Status:       string(p.Status),
		OpenedAt:     p.OpenedAt.UTC().Format(time.RFC3339),
		ExitPrice:    p.ExitPrice,
		RealizedPnL:  p.RealizedPnLUSD,
	}
	if p.ClosedAt != nil {
		s := p.ClosedAt.UTC().Format(time.RFC3339)
		resp.ClosedAt = &s
	}
	if p.CloseReason != nil {
		s := string(*p.CloseReason)
		resp.CloseReason = &s
	}
	return resp
}

func toPositionResponses(positions []domain.Position) []positionResponse {
	out := make([]positionResponse, 0, len(positions))
	for _, p := range positions {
		out = append(out, toPositionResponse(p))
	}
	return out
}

// ListPositions returns all open positions in entry order.
// GET /api/positions
func (h *PositionHandler) ListPositions(w http.ResponseWriter, r *http.Request) {
	positions, err := h.positions.ListOpen(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list positions failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list positions")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"positions": toPositionResponses(positions),
		"count":     len(positions),
	})
}

// ListHistory returns recently closed positions, newest first.
// GET /api/positions/history?limit=50
func (h *PositionHandler) ListHistory(w http.ResponseWriter, r *http.Request) {
	limit := parseLimit(r, 50)

	positions, err := h.positions.ListClosed(r.Context(), limit)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list position history failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list position history")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"positions": toPositionResponses(positions),
		"count":     len(positions),
	})
}

// ClosePosition closes a single position at the current market price. Closing
// an already-closed position is a no-op and returns the stored record.
// POST /api/positions/{id}/close
func (h *PositionHandler) ClosePosition(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "position id is required")
		return
	}

	p, err := h.closer.ClosePosition(r.Context(), id)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: close position failed",
			slog.String("position_id", id),
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toPositionResponse(p))
}

// CloseAllPositions closes every open position, continuing past individual
// failures. The response lists the IDs that were closed.
// POST /api/positions/close-all
func (h *PositionHandler) CloseAllPositions(w http.ResponseWriter, r *http.Request) {
	closed, err := h.closer.CloseAll(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: close all positions failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to close positions")
		return
	}

	if closed == nil {
		closed = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"closed": closed,
		"count":  len(closed),
	})
}
