package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/dexbot/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakePositionReader struct {
	open   []domain.Position
	closed []domain.Position
	err    error
}

func (f *fakePositionReader) ListOpen(ctx context.Context) ([]domain.Position, error) {
	return f.open, f.err
}

func (f *fakePositionReader) ListClosed(ctx context.Context, limit int) ([]domain.Position, error) {
	if limit > 0 && limit < len(f.closed) {
		return f.closed[:limit], f.err
	}
	return f.closed, f.err
}

type fakeCloser struct {
	position domain.Position
	closed   []string
	err      error
	gotID    string
}

func (f *fakeCloser) ClosePosition(ctx context.Context, id string) (domain.Position, error) {
	f.gotID = id
	return f.position, f.err
}

func (f *fakeCloser) CloseAll(ctx context.Context) ([]string, error) {
	return f.closed, f.err
}

type fakeParams struct {
	values map[string]string
	setErr error
}

func (f *fakeParams) Get(name string) (string, error) {
	v, ok := f.values[name]
	if !ok {
		return "", fmt.Errorf("params: %s: %w", name, domain.ErrNotFound)
	}
	return v, nil
}

func (f *fakeParams) All() map[string]string { return f.values }

func (f *fakeParams) Set(ctx context.Context, name, value string) error {
	if f.setErr != nil {
		return f.setErr
	}
	if _, ok := f.values[name]; !ok {
		return fmt.Errorf("params: %s: %w", name, domain.ErrNotFound)
	}
	f.values[name] = value
	return nil
}

func openPosition(id string) domain.Position {
	return domain.Position{
		ID:           id,
		TokenAddress: "So1111",
		Symbol:       "WIF",
		Chain:        "solana",
		EntryPrice:   1.0,
		Quantity:     50,
		NotionalUSD:  50,
		StopPrice:    0.92,
		TakePrice:    1.15,
		HighWater:    1.0,
		Score:        80,
		DryRun:       true,
		Status:       domain.PositionStatusOpen,
		OpenedAt:     time.Now().UTC(),
	}
}

func TestHealthCheck(t *testing.T) {
	h := NewHealthHandler(testLogger())

	rec := httptest.NewRecorder()
	h.HealthCheck(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestListPositions(t *testing.T) {
	reader := &fakePositionReader{open: []domain.Position{openPosition("pos-1"), openPosition("pos-2")}}
	h := NewPositionHandler(reader, &fakeCloser{}, testLogger())

	rec := httptest.NewRecorder()
	h.ListPositions(rec, httptest.NewRequest(http.MethodGet, "/api/positions", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Positions []positionResponse `json:"positions"`
		Count     int                `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 2, body.Count)
	assert.Equal(t, "pos-1", body.Positions[0].ID)
	assert.Equal(t, "open", body.Positions[0].Status)
	assert.Nil(t, body.Positions[0].CloseReason)
}

func TestClosePositionNotFound(t *testing.T) {
	closer := &fakeCloser{err: fmt.Errorf("strategy: close: %w", domain.ErrNotFound)}
	h := NewPositionHandler(&fakePositionReader{}, closer, testLogger())

	req := httptest.NewRequest(http.MethodPost, "/api/positions/nope/close", nil)
	req.SetPathValue("id", "nope")
	rec := httptest.NewRecorder()
	h.ClosePosition(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "nope", closer.gotID)
}

func TestClosePositionConflict(t *testing.T) {
	closer := &fakeCloser{err: fmt.Errorf("strategy: close: %w", domain.ErrInvalidTransition)}
	h := NewPositionHandler(&fakePositionReader{}, closer, testLogger())

	req := httptest.NewRequest(http.MethodPost, "/api/positions/pos-1/close", nil)
	req.SetPathValue("id", "pos-1")
	rec := httptest.NewRecorder()
	h.ClosePosition(rec, req)

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestClosePositionCollaboratorFailure(t *testing.T) {
	closer := &fakeCloser{err: domain.NewCollaboratorError("market_data", domain.FailureTimeout, context.DeadlineExceeded)}
	h := NewPositionHandler(&fakePositionReader{}, closer, testLogger())

	req := httptest.NewRequest(http.MethodPost, "/api/positions/pos-1/close", nil)
	req.SetPathValue("id", "pos-1")
	rec := httptest.NewRecorder()
	h.ClosePosition(rec, req)

	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestCloseAllPositions(t *testing.T) {
	closer := &fakeCloser{closed: []string{"pos-1", "pos-2"}}
	h := NewPositionHandler(&fakePositionReader{}, closer, testLogger())

	rec := httptest.NewRecorder()
	h.CloseAllPositions(rec, httptest.NewRequest(http.MethodPost, "/api/positions/close-all", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Closed []string `json:"closed"`
		Count  int      `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 2, body.Count)
	assert.Equal(t, []string{"pos-1", "pos-2"}, body.Closed)
}

func TestUpdateParam(t *testing.T) {
	params := &fakeParams{values: map[string]string{"take_profit_pct": "15"}}
	h := NewParamHandler(params, testLogger())

	req := httptest.NewRequest(http.MethodPut, "/api/params/take_profit_pct",
		strings.NewReader(`{"value":"20"}`))
	req.SetPathValue("name", "take_profit_pct")
	rec := httptest.NewRecorder()
	h.UpdateParam(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "20", params.values["take_profit_pct"])
}

func TestUpdateParamUnknownName(t *testing.T) {
	params := &fakeParams{values: map[string]string{}}
	h := NewParamHandler(params, testLogger())

	req := httptest.NewRequest(http.MethodPut, "/api/params/bogus",
		strings.NewReader(`{"value":"1"}`))
	req.SetPathValue("name", "bogus")
	rec := httptest.NewRecorder()
	h.UpdateParam(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUpdateParamBadValue(t *testing.T) {
	params := &fakeParams{
		values: map[string]string{"stop_loss_pct": "8"},
		setErr: fmt.Errorf("params: stop_loss_pct: %w", domain.ErrValidation),
	}
	h := NewParamHandler(params, testLogger())

	req := httptest.NewRequest(http.MethodPut, "/api/params/stop_loss_pct",
		strings.NewReader(`{"value":"150"}`))
	req.SetPathValue("name", "stop_loss_pct")
	rec := httptest.NewRecorder()
	h.UpdateParam(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestParseLimitCaps(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/api/events?limit=10000", nil)
	assert.Equal(t, 500, parseLimit(r, 100))

	r = httptest.NewRequest(http.MethodGet, "/api/events", nil)
	assert.Equal(t, 100, parseLimit(r, 100))

	r = httptest.NewRequest(http.MethodGet, "/api/events?limit=-5", nil)
	assert.Equal(t, 100, parseLimit(r, 100))
}
