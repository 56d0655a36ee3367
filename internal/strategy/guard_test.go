package strategy

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/dexbot/internal/domain"
)

func TestCanOpenCapacity(t *testing.T) {
	params := DefaultParams()
	params.MaxPositions = 3
	now := time.Now()

	t.Run("allows strictly below the cap", func(t *testing.T) {
		adm := CanOpen(RiskState{OpenCount: 2}, params, now)
		assert.True(t, adm.Allowed)
	})

	t.Run("rejects at the cap", func(t *testing.T) {
		adm := CanOpen(RiskState{OpenCount: 3}, params, now)
		require.False(t, adm.Allowed)
		assert.Equal(t, RejectCapacity, adm.Reason)
	})
}

func TestCanOpenDailyLimit(t *testing.T) {
	params := DefaultParams()
	params.DailyLossLimitUSD = 50
	now := time.Now()

	adm := CanOpen(RiskState{RealizedPnLToday: -55}, params, now)
	require.False(t, adm.Allowed)
	assert.Equal(t, RejectDailyLimit, adm.Reason)

	adm = CanOpen(RiskState{RealizedPnLToday: -49}, params, now)
	assert.True(t, adm.Allowed)
}

func TestCanOpenCooldown(t *testing.T) {
	params := DefaultParams()
	params.FailureCooldown = 5 * time.Minute
	now := time.Now()

	recent := now.Add(-time.Minute)
	adm := CanOpen(RiskState{LastFailureAt: &recent}, params, now)
	require.False(t, adm.Allowed)
	assert.Equal(t, RejectCooldown, adm.Reason)

	old := now.Add(-10 * time.Minute)
	adm = CanOpen(RiskState{LastFailureAt: &old}, params, now)
	assert.True(t, adm.Allowed)
}

func TestAvailableSlots(t *testing.T) {
	params := DefaultParams()
	params.MaxPositions = 5
	assert.Equal(t, 3, AvailableSlots(RiskState{OpenCount: 2}, params))
	assert.Equal(t, 0, AvailableSlots(RiskState{OpenCount: 7}, params))
}

func TestDayStartBoundary(t *testing.T) {
	loc := time.UTC
	beforeMidnight := time.Date(2025, 3, 10, 23, 59, 0, 0, loc)
	afterMidnight := time.Date(2025, 3, 11, 0, 1, 0, 0, loc)

	assert.NotEqual(t, DayStart(beforeMidnight, loc), DayStart(afterMidnight, loc),
		"closes either side of the cutover belong to different accounting days")
	assert.Equal(t, time.Date(2025, 3, 11, 0, 0, 0, 0, loc), DayStart(afterMidnight, loc))
}

func TestGuardStateRecomputesFromStores(t *testing.T) {
	ctx := context.Background()
	positions := newMemPositionStore()
	events := newMemEventStore()
	guard := NewGuard(positions, events, time.UTC)
	now := time.Now().UTC()

	// Two losing closes today: -30 and -25.
	for i, pnl := range []float64{-30, -25} {
		p, err := domain.NewPosition(
			string(rune('a'+i))+"-pos", "tok", "TOK", "solana",
			100, 1, 100, 92, 115, 0, true, now.Add(-2*time.Hour))
		require.NoError(t, err)
		require.NoError(t, positions.Insert(ctx, p))
		require.NoError(t, positions.Close(ctx, p.ID, domain.CloseReasonStopLoss, 100+pnl, pnl, now))
	}

	state, err := guard.State(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 0, state.OpenCount)
	assert.InDelta(t, -55, state.RealizedPnLToday, 1e-9)

	params := DefaultParams()
	params.DailyLossLimitUSD = 50
	adm := CanOpen(state, params, now)
	require.False(t, adm.Allowed)
	assert.Equal(t, RejectDailyLimit, adm.Reason)
}
