// Package strategy implements the portfolio strategy engine: discovery of new
// positions, risk admission, exit evaluation, execution, and the scheduler
// that drives the periodic cycles.
package strategy

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/alanyoungcy/dexbot/internal/domain"
)

// Params are the tunable runtime parameters of the strategy. Changes apply to
// subsequent cycles only; trigger prices of open positions are never
// recomputed.
type Params struct {
	DryRun          bool
	PositionSizeUSD float64
	MaxPositions    int
	MaxNewPerCycle  int

	TakeProfitPct         float64
	StopLossPct           float64
	TrailingStopPct       float64
	TrailingActivationPct float64
	MaxHoldHours          float64 // 0 disables the timeout exit

	DailyLossLimitUSD float64
	FailureCooldown   time.Duration
	ReentryCooldown   time.Duration

	MinVolumeUSD    float64
	MinLiquidityUSD float64
	MinScore        float64

	DiscoveryInterval time.Duration
	ExitCheckInterval time.Duration
}

// DefaultParams returns the shipped parameter set.
func DefaultParams() Params {
	return Params{
		DryRun:                true,
		PositionSizeUSD:       50,
		MaxPositions:          5,
		MaxNewPerCycle:        3,
		TakeProfitPct:         15,
		StopLossPct:           8,
		TrailingStopPct:       5,
		TrailingActivationPct: 10,
		MaxHoldHours:          24,
		DailyLossLimitUSD:     50,
		FailureCooldown:       5 * time.Minute,
		ReentryCooldown:       5 * time.Minute,
		MinVolumeUSD:          10000,
		MinLiquidityUSD:       5000,
		MinScore:              50,
		DiscoveryInterval:     30 * time.Minute,
		ExitCheckInterval:     60 * time.Second,
	}
}

// Parameter names accepted by Get/Set.
const (
	ParamDryRun                = "dry_run"
	ParamPositionSizeUSD       = "position_size_usd"
	ParamMaxPositions          = "max_positions"
	ParamMaxNewPerCycle        = "max_new_per_cycle"
	ParamTakeProfitPct         = "take_profit_pct"
	ParamStopLossPct           = "stop_loss_pct"
	ParamTrailingStopPct       = "trailing_stop_pct"
	ParamTrailingActivationPct = "trailing_activation_pct"
	ParamMaxHoldHours          = "max_hold_hours"
	ParamDailyLossLimitUSD     = "daily_loss_limit_usd"
	ParamFailureCooldownSecs   = "failure_cooldown_secs"
	ParamReentryCooldownSecs   = "reentry_cooldown_secs"
	ParamMinVolumeUSD          = "min_volume_usd"
	ParamMinLiquidityUSD       = "min_liquidity_usd"
	ParamMinScore              = "min_score"
	ParamDiscoveryIntervalSecs = "discovery_interval_secs"
	ParamExitCheckIntervalSecs = "exit_check_interval_secs"
)

// ParamSet holds the live parameter values behind a mutex and persists
// overrides through the param store so they survive restarts. Readers take a
// snapshot per cycle; a mid-cycle change never applies retroactively.
type ParamSet struct {
	mu     sync.RWMutex
	params Params
	store  domain.ParamStore
	logger *slog.Logger
}

// NewParamSet creates a ParamSet starting from the given base values.
func NewParamSet(base Params, store domain.ParamStore, logger *slog.Logger) *ParamSet {
	return &ParamSet{
		params: base,
		store:  store,
		logger: logger.With(slog.String("component", "params")),
	}
}

// Load applies persisted overrides on top of the base values. Unknown or
// invalid persisted entries are logged and skipped.
func (ps *ParamSet) Load(ctx context.Context) error {
	overrides, err := ps.store.All(ctx)
	if err != nil {
		return fmt.Errorf("strategy: load params: %w", err)
	}

	names := make([]string, 0, len(overrides))
	for name := range overrides {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if err := ps.apply(name, overrides[name]); err != nil {
			ps.logger.Warn("skipping persisted param",
				slog.String("name", name),
				slog.String("value", overrides[name]),
				slog.String("error", err.Error()),
			)
		}
	}
	return nil
}

// Snapshot returns a copy of the current parameter values.
func (ps *ParamSet) Snapshot() Params {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	return ps.params
}

// Get returns the string form of one parameter, or ErrNotFound.
func (ps *ParamSet) Get(name string) (string, error) {
	all := ps.All()
	v, ok := all[name]
	if !ok {
		return "", fmt.Errorf("strategy: param %q: %w", name, domain.ErrNotFound)
	}
	return v, nil
}

// All returns every parameter in string form, keyed by name.
func (ps *ParamSet) All() map[string]string {
	p := ps.Snapshot()
	return map[string]string{
		ParamDryRun:                strconv.FormatBool(p.DryRun),
		ParamPositionSizeUSD:       formatFloat(p.PositionSizeUSD),
		ParamMaxPositions:          strconv.Itoa(p.MaxPositions),
		ParamMaxNewPerCycle:        strconv.Itoa(p.MaxNewPerCycle),
		ParamTakeProfitPct:         formatFloat(p.TakeProfitPct),
		ParamStopLossPct:           formatFloat(p.StopLossPct),
		ParamTrailingStopPct:       formatFloat(p.TrailingStopPct),
		ParamTrailingActivationPct: formatFloat(p.TrailingActivationPct),
		ParamMaxHoldHours:          formatFloat(p.MaxHoldHours),
		ParamDailyLossLimitUSD:     formatFloat(p.DailyLossLimitUSD),
		ParamFailureCooldownSecs:   strconv.Itoa(int(p.FailureCooldown / time.Second)),
		ParamReentryCooldownSecs:   strconv.Itoa(int(p.ReentryCooldown / time.Second)),
		ParamMinVolumeUSD:          formatFloat(p.MinVolumeUSD),
		ParamMinLiquidityUSD:       formatFloat(p.MinLiquidityUSD),
		ParamMinScore:              formatFloat(p.MinScore),
		ParamDiscoveryIntervalSecs: strconv.Itoa(int(p.DiscoveryInterval / time.Second)),
		ParamExitCheckIntervalSecs: strconv.Itoa(int(p.ExitCheckInterval / time.Second)),
	}
}

// Set validates and applies one parameter, then persists the override.
// Validation failures are rejected before any side effect.
func (ps *ParamSet) Set(ctx context.Context, name, value string) error {
	if err := ps.apply(name, value); err != nil {
		return err
	}
	if err := ps.store.Set(ctx, name, value); err != nil {
		return fmt.Errorf("strategy: persist param %s: %w", name, err)
	}
	ps.logger.Info("param updated", slog.String("name", name), slog.String("value", value))
	return nil
}

func (ps *ParamSet) apply(name, value string) error {
	parseF := func(min float64) (float64, error) {
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return 0, fmt.Errorf("strategy: param %s: %w: not a number: %q", name, domain.ErrValidation, value)
		}
		if v < min {
			return 0, fmt.Errorf("strategy: param %s: %w: %v below minimum %v", name, domain.ErrValidation, v, min)
		}
		return v, nil
	}
	parseI := func(min int) (int, error) {
		v, err := strconv.Atoi(value)
		if err != nil {
			return 0, fmt.Errorf("strategy: param %s: %w: not an integer: %q", name, domain.ErrValidation, value)
		}
		if v < min {
			return 0, fmt.Errorf("strategy: param %s: %w: %d below minimum %d", name, domain.ErrValidation, v, min)
		}
		return v, nil
	}

	ps.mu.Lock()
	defer ps.mu.Unlock()

	switch name {
	case ParamDryRun:
		v, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("strategy: param %s: %w: not a bool: %q", name, domain.ErrValidation, value)
		}
		ps.params.DryRun = v
	case ParamPositionSizeUSD:
		v, err := parseF(0.01)
		if err != nil {
			return err
		}
		ps.params.PositionSizeUSD = v
	case ParamMaxPositions:
		v, err := parseI(1)
		if err != nil {
			return err
		}
		ps.params.MaxPositions = v
	case ParamMaxNewPerCycle:
		v, err := parseI(1)
		if err != nil {
			return err
		}
		ps.params.MaxNewPerCycle = v
	case ParamTakeProfitPct:
		v, err := parseF(0.01)
		if err != nil {
			return err
		}
		ps.params.TakeProfitPct = v
	case ParamStopLossPct:
		v, err := parseF(0.01)
		if err != nil {
			return err
		}
		if v >= 100 {
			return fmt.Errorf("strategy: param %s: %w: %v must be below 100", name, domain.ErrValidation, v)
		}
		ps.params.StopLossPct = v
	case ParamTrailingStopPct:
		v, err := parseF(0.01)
		if err != nil {
			return err
		}
		if v >= 100 {
			return fmt.Errorf("strategy: param %s: %w: %v must be below 100", name, domain.ErrValidation, v)
		}
		ps.params.TrailingStopPct = v
	case ParamTrailingActivationPct:
		v, err := parseF(0.01)
		if err != nil {
			return err
		}
		ps.params.TrailingActivationPct = v
	case ParamMaxHoldHours:
		v, err := parseF(0)
		if err != nil {
			return err
		}
		ps.params.MaxHoldHours = v
	case ParamDailyLossLimitUSD:
		v, err := parseF(0)
		if err != nil {
			return err
		}
		ps.params.DailyLossLimitUSD = v
	case ParamFailureCooldownSecs:
		v, err := parseI(0)
		if err != nil {
			return err
		}
		ps.params.FailureCooldown = time.Duration(v) * time.Second
	case ParamReentryCooldownSecs:
		v, err := parseI(0)
		if err != nil {
			return err
		}
		ps.params.ReentryCooldown = time.Duration(v) * time.Second
	case ParamMinVolumeUSD:
		v, err := parseF(0)
		if err != nil {
			return err
		}
		ps.params.MinVolumeUSD = v
	case ParamMinLiquidityUSD:
		v, err := parseF(0)
		if err != nil {
			return err
		}
		ps.params.MinLiquidityUSD = v
	case ParamMinScore:
		v, err := parseF(0)
		if err != nil {
			return err
		}
		ps.params.MinScore = v
	case ParamDiscoveryIntervalSecs:
		v, err := parseI(1)
		if err != nil {
			return err
		}
		ps.params.DiscoveryInterval = time.Duration(v) * time.Second
	case ParamExitCheckIntervalSecs:
		v, err := parseI(1)
		if err != nil {
			return err
		}
		ps.params.ExitCheckInterval = time.Duration(v) * time.Second
	default:
		return fmt.Errorf("strategy: param %q: %w", name, domain.ErrNotFound)
	}
	return nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
