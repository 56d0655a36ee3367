package strategy

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/dexbot/internal/domain"
)

func newTestPipeline(t *testing.T) (*Pipeline, *testEnv) {
	t.Helper()
	env := newTestEnv(t)
	pipeline := NewPipeline(env.market, env.safety, HeuristicScorer{}, env.positions,
		env.penalties, "solana", []string{"excluded-mint"}, testLogger())
	return pipeline, env
}

func TestPipelineFiltersMarketQuality(t *testing.T) {
	ctx := context.Background()
	pipeline, env := newTestPipeline(t)
	params := DefaultParams()
	params.MinScore = 0

	env.market.pairs = []domain.Pair{
		trendingPair("tok-ok", 1, 200000, 60000, 10),
		trendingPair("tok-thin-volume", 1, 500, 60000, 10),
		trendingPair("tok-thin-liquidity", 1, 200000, 100, 10),
		trendingPair("tok-no-price", 0, 200000, 60000, 10),
	}

	got, err := pipeline.Discover(ctx, params, time.Now().UTC())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "tok-ok", got[0].TokenAddress)
}

func TestPipelineDropsUnsafeAndFailedChecks(t *testing.T) {
	ctx := context.Background()
	pipeline, env := newTestPipeline(t)
	params := DefaultParams()
	params.MinScore = 0

	env.market.pairs = []domain.Pair{
		trendingPair("tok-safe", 1, 200000, 60000, 10),
		trendingPair("tok-unsafe", 1, 200000, 60000, 10),
		trendingPair("tok-flaky", 1, 200000, 60000, 10),
	}
	env.safety.verdicts["tok-unsafe"] = domain.SafetyVerdictUnsafe
	env.safety.errs["tok-flaky"] = domain.NewCollaboratorError("safety_check",
		domain.FailureTimeout, errors.New("deadline"))

	got, err := pipeline.Discover(ctx, params, time.Now().UTC())
	require.NoError(t, err, "a bad candidate never fails the cycle")
	require.Len(t, got, 1)
	assert.Equal(t, "tok-safe", got[0].TokenAddress)
}

func TestPipelineSkipsHeldAndExcluded(t *testing.T) {
	ctx := context.Background()
	pipeline, env := newTestPipeline(t)
	params := DefaultParams()
	params.MinScore = 0
	params.ReentryCooldown = 0

	held, err := domain.NewPosition("pos-held", "tok-held", "HELD", "solana",
		1, 1, 1, 0.9, 1.2, 0, true, time.Now().UTC())
	require.NoError(t, err)
	require.NoError(t, env.positions.Insert(ctx, held))

	env.market.pairs = []domain.Pair{
		trendingPair("tok-held", 1, 200000, 60000, 10),
		trendingPair("excluded-mint", 1, 200000, 60000, 10),
		trendingPair("tok-free", 1, 200000, 60000, 10),
	}

	got, err := pipeline.Discover(ctx, params, time.Now().UTC())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "tok-free", got[0].TokenAddress)
}

func TestPipelineReentryCooldown(t *testing.T) {
	ctx := context.Background()
	pipeline, env := newTestPipeline(t)
	params := DefaultParams()
	params.MinScore = 0
	params.ReentryCooldown = time.Hour
	now := time.Now().UTC()

	// Recently exited token: entry 10 minutes ago, already closed.
	p, err := domain.NewPosition("pos-recent", "tok-recent", "REC", "solana",
		1, 1, 1, 0.9, 1.2, 0, true, now.Add(-10*time.Minute))
	require.NoError(t, err)
	require.NoError(t, env.positions.Insert(ctx, p))
	require.NoError(t, env.positions.Close(ctx, p.ID, domain.CloseReasonManual, 1, 0, now))

	env.market.pairs = []domain.Pair{trendingPair("tok-recent", 1, 200000, 60000, 10)}

	got, err := pipeline.Discover(ctx, params, now)
	require.NoError(t, err)
	assert.Empty(t, got)

	// Outside the window the token is eligible again.
	got, err = pipeline.Discover(ctx, params, now.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestPipelineSortsByScoreStable(t *testing.T) {
	ctx := context.Background()
	pipeline, env := newTestPipeline(t)
	params := DefaultParams()
	params.MinScore = 0

	// tok-b and tok-c share identical market stats, so identical scores;
	// discovery order must break the tie.
	env.market.pairs = []domain.Pair{
		trendingPair("tok-a", 1, 60000, 12000, 2),
		trendingPair("tok-b", 1, 100000, 60000, 12),
		trendingPair("tok-c", 1, 100000, 60000, 12),
	}

	got, err := pipeline.Discover(ctx, params, time.Now().UTC())
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "tok-b", got[0].TokenAddress)
	assert.Equal(t, "tok-c", got[1].TokenAddress)
	assert.Equal(t, "tok-a", got[2].TokenAddress)
}

func TestPipelineMinScoreFilter(t *testing.T) {
	ctx := context.Background()
	pipeline, env := newTestPipeline(t)
	params := DefaultParams()
	params.MinScore = 90

	env.market.pairs = []domain.Pair{
		trendingPair("tok-strong", 1, 200000, 60000, 25), // score 95
		trendingPair("tok-weak", 1, 100000, 60000, 12),   // score ~69
	}

	got, err := pipeline.Discover(ctx, params, time.Now().UTC())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "tok-strong", got[0].TokenAddress)
}
