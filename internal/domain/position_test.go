package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validPosition(t *testing.T) Position {
	t.Helper()
	p, err := NewPosition("pos-1", "So1111", "WIF", "solana",
		100, 1.0, 100, 92, 115, 60, true, time.Now())
	require.NoError(t, err)
	return p
}

func TestNewPosition(t *testing.T) {
	t.Run("valid entry invariants", func(t *testing.T) {
		p := validPosition(t)
		assert.True(t, p.IsOpen())
		assert.False(t, p.TrailingArmed())
		assert.Equal(t, 100.0, p.HighWater, "high water starts at entry")
	})

	t.Run("rejects stop above entry", func(t *testing.T) {
		_, err := NewPosition("pos-2", "So1111", "WIF", "solana",
			100, 1.0, 100, 105, 115, 0, true, time.Now())
		require.ErrorIs(t, err, ErrValidation)
	})

	t.Run("rejects take below entry", func(t *testing.T) {
		_, err := NewPosition("pos-3", "So1111", "WIF", "solana",
			100, 1.0, 100, 92, 99, 0, true, time.Now())
		require.ErrorIs(t, err, ErrValidation)
	})

	t.Run("rejects non-positive price and size", func(t *testing.T) {
		_, err := NewPosition("pos-4", "So1111", "WIF", "solana",
			0, 1.0, 100, -1, 1, 0, true, time.Now())
		require.ErrorIs(t, err, ErrValidation)

		_, err = NewPosition("pos-5", "So1111", "WIF", "solana",
			100, 0, 100, 92, 115, 0, true, time.Now())
		require.ErrorIs(t, err, ErrValidation)
	})
}

func TestValidateTrailingUpdate(t *testing.T) {
	t.Run("first arm is allowed", func(t *testing.T) {
		p := validPosition(t)
		require.NoError(t, ValidateTrailingUpdate(p, 104.5, 110))
	})

	t.Run("ratchet never lowers the stop", func(t *testing.T) {
		p := validPosition(t)
		stop := 104.5
		p.TrailingStop = &stop
		p.HighWater = 110

		require.NoError(t, ValidateTrailingUpdate(p, 110.2, 116))
		require.ErrorIs(t, ValidateTrailingUpdate(p, 101, 116), ErrInvalidTransition)
	})

	t.Run("high water never falls below entry", func(t *testing.T) {
		p := validPosition(t)
		require.ErrorIs(t, ValidateTrailingUpdate(p, 90, 95), ErrInvalidTransition)
	})

	t.Run("closed positions are immutable", func(t *testing.T) {
		p := validPosition(t)
		p.Status = PositionStatusClosed
		require.ErrorIs(t, ValidateTrailingUpdate(p, 105, 111), ErrInvalidTransition)
	})
}

func TestValidateClose(t *testing.T) {
	t.Run("open position closes", func(t *testing.T) {
		needsWrite, err := ValidateClose(validPosition(t), CloseReasonTakeProfit)
		require.NoError(t, err)
		assert.True(t, needsWrite)
	})

	t.Run("same reason is idempotent no-op", func(t *testing.T) {
		p := validPosition(t)
		p.Status = PositionStatusClosed
		reason := CloseReasonStopLoss
		p.CloseReason = &reason

		needsWrite, err := ValidateClose(p, CloseReasonStopLoss)
		require.NoError(t, err)
		assert.False(t, needsWrite)
	})

	t.Run("different reason is invalid transition", func(t *testing.T) {
		p := validPosition(t)
		p.Status = PositionStatusClosed
		reason := CloseReasonStopLoss
		p.CloseReason = &reason

		_, err := ValidateClose(p, CloseReasonManual)
		require.ErrorIs(t, err, ErrInvalidTransition)
	})
}
