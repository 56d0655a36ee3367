package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
)

// ParamService exposes the runtime strategy parameters.
type ParamService interface {
	Get(name string) (string, error)
	All() map[string]string
	Set(ctx context.Context, name, value string) error
}

// ParamHandler serves the runtime-parameter HTTP endpoints.
type ParamHandler struct {
	params ParamService
	logger *slog.Logger
}

// NewParamHandler creates a ParamHandler with the given service and logger.
func NewParamHandler(params ParamService, logger *slog.Logger) *ParamHandler {
	return &ParamHandler{params: params, logger: logger}
}

// ListParams returns every parameter with its current value.
// GET /api/params
func (h *ParamHandler) ListParams(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"params": h.params.All()})
}

// GetParam returns a single parameter value.
// GET /api/params/{name}
func (h *ParamHandler) GetParam(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	value, err := h.params.Get(name)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"name":  name,
		"value": value,
	})
}

// updateParamRequest is the body for a parameter update.
type updateParamRequest struct {
	Value string `json:"value"`
}

// UpdateParam validates, applies, and persists a new parameter value. The
// new value takes effect from the next scheduler tick.
// PUT /api/params/{name}
func (h *ParamHandler) UpdateParam(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	var req updateParamRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Value == "" {
		writeError(w, http.StatusBadRequest, "value is required")
		return
	}

	if err := h.params.Set(r.Context(), name, req.Value); err != nil {
		h.logger.ErrorContext(r.Context(), "handler: update param failed",
			slog.String("name", name),
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"name":  name,
		"value": req.Value,
	})
}
