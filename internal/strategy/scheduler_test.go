package strategy

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/dexbot/internal/domain"
)

func newTestScheduler(t *testing.T) (*Scheduler, *testEnv) {
	t.Helper()
	env := newTestEnv(t)
	return NewScheduler(env.engine, env.params, testLogger()), env
}

func TestSchedulerManualRunsWhileStopped(t *testing.T) {
	ctx := context.Background()
	s, env := newTestScheduler(t)
	env.market.pairs = []domain.Pair{trendingPair("tok-a", 1, 200000, 60000, 25)}

	require.False(t, s.Running())

	res, err := s.RunDiscoveryNow(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Opened)

	exitRes, err := s.RunExitCheckNow(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, exitRes.Checked)
}

func TestSchedulerStartStop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s, env := newTestScheduler(t)

	// Fast intervals so the immediate first ticks run during the test.
	require.NoError(t, env.params.Set(ctx, ParamDiscoveryIntervalSecs, "3600"))
	require.NoError(t, env.params.Set(ctx, ParamExitCheckIntervalSecs, "3600"))

	require.NoError(t, s.Start(ctx))
	assert.True(t, s.Running())

	require.ErrorIs(t, s.Start(ctx), domain.ErrInvalidTransition)

	// The immediate first tick of each loop lands shortly after Start.
	deadline := time.After(2 * time.Second)
	for s.Status().Discovery.Runs == 0 || s.Status().ExitCheck.Runs == 0 {
		select {
		case <-deadline:
			t.Fatal("first ticks did not run")
		case <-time.After(10 * time.Millisecond):
		}
	}

	s.Stop()
	assert.False(t, s.Running())
	s.Stop() // stopping a stopped scheduler is a no-op
	s.Wait()

	status := s.Status()
	assert.Equal(t, "stopped", status.Discovery.State)
	assert.GreaterOrEqual(t, status.Discovery.Runs, int64(1))
	assert.NotNil(t, status.Discovery.LastRunAt)
}

func TestSchedulerRejectsOverlappingManualRuns(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestScheduler(t)

	// Simulate an in-flight discovery cycle.
	require.True(t, s.discovery.busy.CompareAndSwap(false, true))
	defer s.discovery.busy.Store(false)

	_, err := s.RunDiscoveryNow(ctx)
	require.ErrorIs(t, err, domain.ErrInvalidTransition)

	// The other cycle type is unaffected.
	_, err = s.RunExitCheckNow(ctx)
	require.NoError(t, err)
}

func TestSchedulerScheduledTickSkipsWhileBusy(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s, env := newTestScheduler(t)
	require.NoError(t, env.params.Set(ctx, ParamDiscoveryIntervalSecs, "1"))
	require.NoError(t, env.params.Set(ctx, ParamExitCheckIntervalSecs, "3600"))

	// Hold the discovery cycle in flight so scheduled ticks find it busy.
	require.True(t, s.discovery.busy.CompareAndSwap(false, true))

	require.NoError(t, s.Start(ctx))

	deadline := time.After(3 * time.Second)
	for s.Status().Discovery.Skips == 0 {
		select {
		case <-deadline:
			t.Fatal("scheduled tick did not record a skip")
		case <-time.After(10 * time.Millisecond):
		}
	}
	assert.Zero(t, s.Status().Discovery.Runs)
	assert.Contains(t, env.events.kinds(), domain.EventCycleSkipped)

	// The skipped tick rearmed the timer, so the cadence resumes once the
	// in-flight cycle clears.
	s.discovery.busy.Store(false)
	deadline = time.After(3 * time.Second)
	for s.Status().Discovery.Runs == 0 {
		select {
		case <-deadline:
			t.Fatal("tick did not run after the busy cycle cleared")
		case <-time.After(10 * time.Millisecond):
		}
	}

	s.Stop()
	s.Wait()
}

func TestSchedulerRestart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s, env := newTestScheduler(t)
	require.NoError(t, env.params.Set(ctx, ParamDiscoveryIntervalSecs, "3600"))
	require.NoError(t, env.params.Set(ctx, ParamExitCheckIntervalSecs, "3600"))

	require.NoError(t, s.Start(ctx))
	s.Stop()
	s.Wait()

	require.NoError(t, s.Start(ctx), "a stopped scheduler can start again")
	s.Stop()
	s.Wait()
}
