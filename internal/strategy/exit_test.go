package strategy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/dexbot/internal/domain"
)

func exitParams() Params {
	p := DefaultParams()
	p.TakeProfitPct = 15
	p.StopLossPct = 8
	p.TrailingStopPct = 5
	p.TrailingActivationPct = 10
	p.MaxHoldHours = 24
	return p
}

func openPosition(t *testing.T, entry, stop, take float64) domain.Position {
	t.Helper()
	p, err := domain.NewPosition("pos-1", "tok-1", "TOK", "solana",
		entry, 1, entry, stop, take, 0, true, time.Now().UTC())
	require.NoError(t, err)
	return p
}

func TestEvaluateExitPriority(t *testing.T) {
	t.Run("take profit beats stop loss when thresholds contradict", func(t *testing.T) {
		// Degenerate config where a single price satisfies both thresholds.
		p := openPosition(t, 100, 92, 115)
		p.TakePrice = 50 // both "price >= take" and "price <= stop" hold at 60
		p.StopPrice = 90

		d := EvaluateExit(p, 60, time.Now(), exitParams())
		assert.Equal(t, DecisionCloseTakeProfit, d.Kind)
	})

	t.Run("trailing stop beats fixed stop loss", func(t *testing.T) {
		p := openPosition(t, 100, 92, 115)
		stop := 95.0
		p.TrailingStop = &stop
		p.HighWater = 100

		d := EvaluateExit(p, 93, time.Now(), exitParams())
		assert.Equal(t, DecisionCloseTrailingStop, d.Kind)
	})
}

func TestEvaluateExitTakeProfitScenario(t *testing.T) {
	// Entry 100, TP 115, SL 92, trailing 5%, sequence 100 -> 108 -> 120.
	p := openPosition(t, 100, 92, 115)
	now := time.Now()

	d := EvaluateExit(p, 108, now, exitParams())
	assert.Equal(t, DecisionHold, d.Kind, "108 is below TP and below activation")

	d = EvaluateExit(p, 120, now, exitParams())
	assert.Equal(t, DecisionCloseTakeProfit, d.Kind)
}

func TestEvaluateExitTrailingScenario(t *testing.T) {
	// Entry 100, sequence 100 -> 110 -> 104: 110 arms the trailing stop at
	// 104.5, then 104 triggers it.
	p := openPosition(t, 100, 92, 115)
	now := time.Now()

	d := EvaluateExit(p, 110, now, exitParams())
	require.Equal(t, DecisionTrailingUpdate, d.Kind)
	assert.InDelta(t, 104.5, d.NewTrailingStop, 1e-9)
	assert.InDelta(t, 110, d.NewHighWater, 1e-9)

	stop := d.NewTrailingStop
	p.TrailingStop = &stop
	p.HighWater = d.NewHighWater

	d = EvaluateExit(p, 104, now, exitParams())
	assert.Equal(t, DecisionCloseTrailingStop, d.Kind)
}

func TestEvaluateExitTrailingRatchet(t *testing.T) {
	p := openPosition(t, 100, 92, 1000)
	now := time.Now()
	params := exitParams()

	// Successive updates never lower the stop.
	var lastStop float64
	for _, price := range []float64{110, 121, 134} {
		d := EvaluateExit(p, price, now, params)
		require.Equal(t, DecisionTrailingUpdate, d.Kind, "price %v", price)
		require.GreaterOrEqual(t, d.NewTrailingStop, lastStop)
		lastStop = d.NewTrailingStop
		stop := d.NewTrailingStop
		p.TrailingStop = &stop
		p.HighWater = d.NewHighWater
	}

	// Below the activation threshold nothing changes.
	d := EvaluateExit(p, 140, now, params)
	assert.Equal(t, DecisionHold, d.Kind)
}

func TestEvaluateExitTimeout(t *testing.T) {
	p := openPosition(t, 100, 92, 115)
	p.OpenedAt = time.Now().Add(-25 * time.Hour)

	d := EvaluateExit(p, 101, time.Now(), exitParams())
	assert.Equal(t, DecisionCloseTimeout, d.Kind)

	t.Run("disabled when max hold is zero", func(t *testing.T) {
		params := exitParams()
		params.MaxHoldHours = 0
		d := EvaluateExit(p, 101, time.Now(), params)
		assert.Equal(t, DecisionHold, d.Kind)
	})
}

func TestEvaluateExitStopLoss(t *testing.T) {
	p := openPosition(t, 100, 92, 115)
	d := EvaluateExit(p, 91, time.Now(), exitParams())
	assert.Equal(t, DecisionCloseStopLoss, d.Kind)
}

func TestDecisionCloseReason(t *testing.T) {
	assert.Equal(t, domain.CloseReasonTakeProfit, Decision{Kind: DecisionCloseTakeProfit}.CloseReason())
	assert.Equal(t, domain.CloseReasonTrailingStop, Decision{Kind: DecisionCloseTrailingStop}.CloseReason())
	assert.Equal(t, domain.CloseReasonStopLoss, Decision{Kind: DecisionCloseStopLoss}.CloseReason())
	assert.Equal(t, domain.CloseReasonTimeout, Decision{Kind: DecisionCloseTimeout}.CloseReason())
	assert.False(t, Decision{Kind: DecisionHold}.IsClose())
}
