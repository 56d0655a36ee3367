package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/dexbot/internal/strategy"
)

// RiskReporter derives the current risk-guard view.
type RiskReporter interface {
	RiskStatus(ctx context.Context) (strategy.RiskStatus, error)
}

// SchedulerReporter reports the scheduler's cycle state.
type SchedulerReporter interface {
	Status() strategy.SchedulerStatus
}

// StatusHandler serves the combined operator status endpoint.
type StatusHandler struct {
	risk      RiskReporter
	scheduler SchedulerReporter
	params    ParamService
	logger    *slog.Logger
}

// NewStatusHandler creates a StatusHandler with the given dependencies.
func NewStatusHandler(risk RiskReporter, scheduler SchedulerReporter, params ParamService, logger *slog.Logger) *StatusHandler {
	return &StatusHandler{
		risk:      risk,
		scheduler: scheduler,
		params:    params,
		logger:    logger,
	}
}

// GetStatus returns the risk-guard view, scheduler state, and the current
// parameter set in one snapshot.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	risk, err := h.risk.RiskStatus(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: risk status failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to compute risk status")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"risk":      risk,
		"scheduler": h.scheduler.Status(),
		"params":    h.params.All(),
	})
}
