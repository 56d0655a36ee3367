package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/dexbot/internal/strategy"
)

// ResetService archives and wipes closed positions and the event log.
type ResetService interface {
	Reset(ctx context.Context, archiver strategy.Archiver) (strategy.ResetResult, error)
}

// ResetHandler serves the history-reset endpoint.
type ResetHandler struct {
	engine   ResetService
	archiver strategy.Archiver // nil disables archiving
	logger   *slog.Logger
}

// NewResetHandler creates a ResetHandler. archiver may be nil, in which case
// resets delete without exporting.
func NewResetHandler(engine ResetService, archiver strategy.Archiver, logger *slog.Logger) *ResetHandler {
	return &ResetHandler{
		engine:   engine,
		archiver: archiver,
		logger:   logger,
	}
}

// Reset archives closed positions and the event log, then deletes them.
// Open positions and their trigger prices are untouched.
// POST /api/reset
func (h *ResetHandler) Reset(w http.ResponseWriter, r *http.Request) {
	res, err := h.engine.Reset(r.Context(), h.archiver)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: reset failed",
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, res)
}
