package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/dexbot/internal/domain"
	"github.com/alanyoungcy/dexbot/internal/strategy"
)

// SchedulerService controls the cycle scheduler and runs cycles on demand.
type SchedulerService interface {
	Start(ctx context.Context) error
	Stop()
	Status() strategy.SchedulerStatus
	RunDiscoveryNow(ctx context.Context) (strategy.DiscoveryResult, error)
	RunExitCheckNow(ctx context.Context) (strategy.ExitResult, error)
}

// SchedulerHandler serves scheduler and manual-cycle HTTP endpoints.
//
// Start uses the handler's base context rather than the request context so
// the loops outlive the HTTP request that started them.
type SchedulerHandler struct {
	scheduler SchedulerService
	baseCtx   context.Context
	logger    *slog.Logger
}

// NewSchedulerHandler creates a SchedulerHandler. baseCtx is the process
// lifetime context that scheduler loops run under.
func NewSchedulerHandler(scheduler SchedulerService, baseCtx context.Context, logger *slog.Logger) *SchedulerHandler {
	return &SchedulerHandler{
		scheduler: scheduler,
		baseCtx:   baseCtx,
		logger:    logger,
	}
}

// StartScheduler starts both cycle loops. Starting an already-running
// scheduler returns 409.
// POST /api/scheduler/start
func (h *SchedulerHandler) StartScheduler(w http.ResponseWriter, r *http.Request) {
	if err := h.scheduler.Start(h.baseCtx); err != nil {
		if errors.Is(err, domain.ErrInvalidTransition) {
			writeError(w, http.StatusConflict, "scheduler already running")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: scheduler start failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to start scheduler")
		return
	}

	writeJSON(w, http.StatusOK, h.scheduler.Status())
}

// StopScheduler signals both cycle loops to stop. In-flight cycles run to
// completion; stopping an already-stopped scheduler is a no-op.
// POST /api/scheduler/stop
func (h *SchedulerHandler) StopScheduler(w http.ResponseWriter, r *http.Request) {
	h.scheduler.Stop()
	writeJSON(w, http.StatusOK, h.scheduler.Status())
}

// TriggerDiscovery runs one discovery cycle immediately. Returns 409 when a
// discovery cycle is already in flight.
// POST /api/cycles/discovery
func (h *SchedulerHandler) TriggerDiscovery(w http.ResponseWriter, r *http.Request) {
	res, err := h.scheduler.RunDiscoveryNow(r.Context())
	if err != nil {
		if errors.Is(err, domain.ErrInvalidTransition) {
			writeError(w, http.StatusConflict, "discovery cycle already running")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: discovery cycle failed",
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, res)
}

// TriggerExitCheck runs one exit-check cycle immediately. Returns 409 when
// an exit-check cycle is already in flight.
// POST /api/cycles/exit
func (h *SchedulerHandler) TriggerExitCheck(w http.ResponseWriter, r *http.Request) {
	res, err := h.scheduler.RunExitCheckNow(r.Context())
	if err != nil {
		if errors.Is(err, domain.ErrInvalidTransition) {
			writeError(w, http.StatusConflict, "exit check cycle already running")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: exit check cycle failed",
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, res)
}
