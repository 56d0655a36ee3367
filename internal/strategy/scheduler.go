package strategy

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alanyoungcy/dexbot/internal/domain"
)

// Cycle names used in status reports and skip events.
const (
	CycleDiscovery = "discovery"
	CycleExitCheck = "exit_check"
)

// CycleStatus describes one cycle type's scheduling state.
type CycleStatus struct {
	State     string     `json:"state"` // running | stopped
	Interval  string     `json:"interval"`
	LastRunAt *time.Time `json:"last_run_at,omitempty"`
	Runs      int64      `json:"runs"`
	Skips     int64      `json:"skips"`
}

// SchedulerStatus is the operator-facing scheduler summary.
type SchedulerStatus struct {
	Running   bool        `json:"running"`
	Discovery CycleStatus `json:"discovery"`
	ExitCheck CycleStatus `json:"exit_check"`
}

type cycleStats struct {
	busy  atomic.Bool
	runs  atomic.Int64
	skips atomic.Int64

	mu      sync.Mutex
	lastRun *time.Time
}

func (c *cycleStats) markRun(at time.Time) {
	c.runs.Add(1)
	c.mu.Lock()
	c.lastRun = &at
	c.mu.Unlock()
}

func (c *cycleStats) lastRunAt() *time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastRun
}

// Scheduler drives the two independent periodic cycles. One cycle type never
// overlaps itself: a tick that is due while the previous tick still runs is
// skipped and logged, not queued. Stop is cooperative and never interrupts an
// in-flight tick.
type Scheduler struct {
	engine *Engine
	params *ParamSet
	logger *slog.Logger

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup

	discovery cycleStats
	exitCheck cycleStats
}

// NewScheduler creates a Scheduler in the stopped state.
func NewScheduler(engine *Engine, params *ParamSet, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		engine: engine,
		params: params,
		logger: logger.With(slog.String("component", "scheduler")),
	}
}

// Start begins both cycle loops, with an immediate first tick each. Intervals
// are re-read from the parameters before every rearm, so interval changes
// apply from the next tick. Starting a running scheduler is an error.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("strategy: scheduler already running: %w", domain.ErrInvalidTransition)
	}
	s.running = true
	s.stopCh = make(chan struct{})

	s.wg.Add(2)
	go s.loop(ctx, CycleDiscovery, &s.discovery,
		func() time.Duration { return s.params.Snapshot().DiscoveryInterval },
		s.runDiscovery,
	)
	go s.loop(ctx, CycleExitCheck, &s.exitCheck,
		func() time.Duration { return s.params.Snapshot().ExitCheckInterval },
		s.runExitCheck,
	)

	s.logger.Info("scheduler started")
	return nil
}

// Stop prevents further ticks. An in-flight tick finishes; Stop does not wait
// for it. Stopping a stopped scheduler is a no-op.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	s.running = false
	close(s.stopCh)
	s.logger.Info("scheduler stopped")
}

// Wait blocks until both cycle loops and any in-flight tick bodies have
// exited. Used during shutdown.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

// Running reports whether the scheduler is in the running state.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// RunDiscoveryNow executes one discovery cycle synchronously, regardless of
// the running state. It fails when a discovery cycle is already in flight.
func (s *Scheduler) RunDiscoveryNow(ctx context.Context) (DiscoveryResult, error) {
	if !s.discovery.busy.CompareAndSwap(false, true) {
		return DiscoveryResult{}, fmt.Errorf("strategy: discovery cycle already in flight: %w", domain.ErrInvalidTransition)
	}
	defer s.discovery.busy.Store(false)

	s.discovery.markRun(time.Now().UTC())
	return s.engine.RunDiscoveryCycle(ctx)
}

// RunExitCheckNow executes one exit-check cycle synchronously, regardless of
// the running state. It fails when an exit-check cycle is already in flight.
func (s *Scheduler) RunExitCheckNow(ctx context.Context) (ExitResult, error) {
	if !s.exitCheck.busy.CompareAndSwap(false, true) {
		return ExitResult{}, fmt.Errorf("strategy: exit-check cycle already in flight: %w", domain.ErrInvalidTransition)
	}
	defer s.exitCheck.busy.Store(false)

	s.exitCheck.markRun(time.Now().UTC())
	return s.engine.RunExitChecks(ctx)
}

// Status reports both cycle types' scheduling state.
func (s *Scheduler) Status() SchedulerStatus {
	running := s.Running()
	params := s.params.Snapshot()

	state := "stopped"
	if running {
		state = "running"
	}
	return SchedulerStatus{
		Running: running,
		Discovery: CycleStatus{
			State:     state,
			Interval:  params.DiscoveryInterval.String(),
			LastRunAt: s.discovery.lastRunAt(),
			Runs:      s.discovery.runs.Load(),
			Skips:     s.discovery.skips.Load(),
		},
		ExitCheck: CycleStatus{
			State:     state,
			Interval:  params.ExitCheckInterval.String(),
			LastRunAt: s.exitCheck.lastRunAt(),
			Runs:      s.exitCheck.runs.Load(),
			Skips:     s.exitCheck.skips.Load(),
		},
	}
}

func (s *Scheduler) loop(ctx context.Context, name string, stats *cycleStats, interval func() time.Duration, body func(context.Context)) {
	defer s.wg.Done()

	stopCh := s.stopCh
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ctx.Done():
			return
		case <-timer.C:
			// Rearm before running the body so the cadence stays fixed
			// no matter how long a tick takes.
			timer.Reset(interval())

			if !stats.busy.CompareAndSwap(false, true) {
				stats.skips.Add(1)
				s.logger.Warn("tick skipped, previous still running", slog.String("cycle", name))
				s.engine.RecordCycleSkipped(ctx, name)
				continue
			}

			stats.markRun(time.Now().UTC())
			s.wg.Add(1)
			go func() {
				defer s.wg.Done()
				defer stats.busy.Store(false)
				body(ctx)
			}()
		}
	}
}

func (s *Scheduler) runDiscovery(ctx context.Context) {
	res, err := s.engine.RunDiscoveryCycle(ctx)
	if err != nil {
		s.logger.Error("discovery cycle failed", slog.String("error", err.Error()))
		return
	}
	s.logger.Info("discovery cycle complete",
		slog.Int("candidates", res.Candidates),
		slog.Int("opened", res.Opened),
	)
}

func (s *Scheduler) runExitCheck(ctx context.Context) {
	res, err := s.engine.RunExitChecks(ctx)
	if err != nil {
		s.logger.Error("exit-check cycle failed", slog.String("error", err.Error()))
		return
	}
	if res.Closed > 0 || res.TrailingUpdates > 0 {
		s.logger.Info("exit-check cycle complete",
			slog.Int("checked", res.Checked),
			slog.Int("trailing_updates", res.TrailingUpdates),
			slog.Int("closed", res.Closed),
		)
	}
}
