package strategy

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/alanyoungcy/dexbot/internal/domain"
)

// In-memory store implementations mirroring the postgres semantics, shared by
// the engine, guard, discovery, and scheduler tests.

type memPositionStore struct {
	mu        sync.Mutex
	positions map[string]domain.Position
	order     []string
}

func newMemPositionStore() *memPositionStore {
	return &memPositionStore{positions: make(map[string]domain.Position)}
}

func (m *memPositionStore) Insert(_ context.Context, p domain.Position) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.positions[p.ID]; ok {
		return domain.ErrDuplicateID
	}
	m.positions[p.ID] = p
	m.order = append(m.order, p.ID)
	return nil
}

func (m *memPositionStore) GetByID(_ context.Context, id string) (domain.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.positions[id]
	if !ok {
		return domain.Position{}, domain.ErrNotFound
	}
	return p, nil
}

func (m *memPositionStore) GetOpenByToken(_ context.Context, tokenAddress, chain string) (domain.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range m.order {
		p := m.positions[id]
		if p.TokenAddress == tokenAddress && p.Chain == chain && p.IsOpen() {
			return p, nil
		}
	}
	return domain.Position{}, domain.ErrNotFound
}

func (m *memPositionStore) ListOpen(_ context.Context) ([]domain.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Position
	for _, id := range m.order {
		if p := m.positions[id]; p.IsOpen() {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *memPositionStore) ListClosed(_ context.Context, limit int) ([]domain.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Position
	for i := len(m.order) - 1; i >= 0; i-- {
		p := m.positions[m.order[i]]
		if !p.IsOpen() {
			out = append(out, p)
			if limit > 0 && len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (m *memPositionStore) CountOpen(ctx context.Context) (int, error) {
	open, _ := m.ListOpen(ctx)
	return len(open), nil
}

func (m *memPositionStore) UpdateTrailingStop(_ context.Context, id string, newStop, newHighWater float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.positions[id]
	if !ok {
		return domain.ErrNotFound
	}
	if err := domain.ValidateTrailingUpdate(p, newStop, newHighWater); err != nil {
		return err
	}
	p.TrailingStop = &newStop
	p.HighWater = newHighWater
	m.positions[id] = p
	return nil
}

func (m *memPositionStore) Close(_ context.Context, id string, reason domain.CloseReason, exitPrice, realizedPnLUSD float64, closedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.positions[id]
	if !ok {
		return domain.ErrNotFound
	}
	needsWrite, err := domain.ValidateClose(p, reason)
	if err != nil {
		return err
	}
	if !needsWrite {
		return nil
	}
	p.Status = domain.PositionStatusClosed
	p.CloseReason = &reason
	p.ExitPrice = &exitPrice
	p.RealizedPnLUSD = &realizedPnLUSD
	p.ClosedAt = &closedAt
	m.positions[id] = p
	return nil
}

func (m *memPositionStore) RealizedPnLSince(_ context.Context, since time.Time) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var total float64
	for _, p := range m.positions {
		if !p.IsOpen() && p.ClosedAt != nil && !p.ClosedAt.Before(since) && p.RealizedPnLUSD != nil {
			total += *p.RealizedPnLUSD
		}
	}
	return total, nil
}

func (m *memPositionStore) LastEntryTime(_ context.Context, tokenAddress, chain string) (*time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var last *time.Time
	for _, p := range m.positions {
		if p.TokenAddress == tokenAddress && p.Chain == chain {
			if last == nil || p.OpenedAt.After(*last) {
				t := p.OpenedAt
				last = &t
			}
		}
	}
	return last, nil
}

func (m *memPositionStore) DeleteClosed(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var deleted int64
	var order []string
	for _, id := range m.order {
		if m.positions[id].IsOpen() {
			order = append(order, id)
			continue
		}
		delete(m.positions, id)
		deleted++
	}
	m.order = order
	return deleted, nil
}

type memEventStore struct {
	mu     sync.Mutex
	events []domain.Event
	nextID int64
}

func newMemEventStore() *memEventStore { return &memEventStore{nextID: 1} }

func (m *memEventStore) Append(_ context.Context, e domain.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e.ID = m.nextID
	m.nextID++
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	m.events = append(m.events, e)
	return nil
}

func (m *memEventStore) List(_ context.Context, limit int) ([]domain.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Event
	for i := len(m.events) - 1; i >= 0; i-- {
		out = append(out, m.events[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *memEventStore) LastOfKind(_ context.Context, kind domain.EventKind) (*time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.events) - 1; i >= 0; i-- {
		if m.events[i].Kind == kind {
			t := m.events[i].CreatedAt
			return &t, nil
		}
	}
	return nil, nil
}

func (m *memEventStore) DeleteAll(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := int64(len(m.events))
	m.events = nil
	return n, nil
}

func (m *memEventStore) kinds() []domain.EventKind {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.EventKind, 0, len(m.events))
	for _, e := range m.events {
		out = append(out, e.Kind)
	}
	return out
}

type penaltyState struct {
	lossStreak int
	skipCycles int
}

type memPenaltyStore struct {
	mu     sync.Mutex
	tokens map[string]*penaltyState
}

func newMemPenaltyStore() *memPenaltyStore {
	return &memPenaltyStore{tokens: make(map[string]*penaltyState)}
}

func (m *memPenaltyStore) key(token, chain string) string { return chain + ":" + token }

func (m *memPenaltyStore) SkipCycles(_ context.Context, token, chain string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.tokens[m.key(token, chain)]; ok {
		return s.skipCycles, nil
	}
	return 0, nil
}

func (m *memPenaltyStore) RecordLoss(_ context.Context, token, chain string, _ time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := m.key(token, chain)
	s, ok := m.tokens[k]
	if !ok {
		s = &penaltyState{}
		m.tokens[k] = s
	}
	s.lossStreak++
	streak := s.lossStreak
	if s.lossStreak >= 2 {
		s.lossStreak = 0
		s.skipCycles = 1
	}
	return streak, nil
}

func (m *memPenaltyStore) Advance(_ context.Context, chain string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for k, s := range m.tokens {
		if len(k) > len(chain) && k[:len(chain)] == chain && s.skipCycles > 0 {
			s.skipCycles--
			n++
		}
	}
	return n, nil
}

func (m *memPenaltyStore) Clear(_ context.Context, token, chain string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tokens, m.key(token, chain))
	return nil
}

type memParamStore struct {
	mu     sync.Mutex
	params map[string]string
}

func newMemParamStore() *memParamStore {
	return &memParamStore{params: make(map[string]string)}
}

func (m *memParamStore) Set(_ context.Context, name, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.params[name] = value
	return nil
}

func (m *memParamStore) All(_ context.Context) (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]string, len(m.params))
	for k, v := range m.params {
		out[k] = v
	}
	return out, nil
}

func (m *memParamStore) Delete(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.params, name)
	return nil
}

type memPriceCache struct {
	mu     sync.Mutex
	prices map[string]float64
}

func newMemPriceCache() *memPriceCache {
	return &memPriceCache{prices: make(map[string]float64)}
}

func (m *memPriceCache) SetPrice(_ context.Context, chain, token string, price float64, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prices[chain+":"+token] = price
	return nil
}

func (m *memPriceCache) GetPrice(_ context.Context, chain, token string) (float64, time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.prices[chain+":"+token]
	if !ok {
		return 0, time.Time{}, domain.ErrNotFound
	}
	return p, time.Now().UTC(), nil
}

// Collaborator fakes.

type fakeMarket struct {
	mu       sync.Mutex
	pairs    []domain.Pair
	prices   map[string]float64
	priceErr map[string]error
}

func newFakeMarket() *fakeMarket {
	return &fakeMarket{
		prices:   make(map[string]float64),
		priceErr: make(map[string]error),
	}
}

func (f *fakeMarket) TrendingPairs(_ context.Context, _ string) ([]domain.Pair, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Pair(nil), f.pairs...), nil
}

func (f *fakeMarket) TokenPrice(_ context.Context, _, token string) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.priceErr[token]; ok {
		return 0, err
	}
	p, ok := f.prices[token]
	if !ok {
		return 0, domain.NewCollaboratorError("market_data", domain.FailureNotFound,
			fmt.Errorf("no price for %s", token))
	}
	return p, nil
}

func (f *fakeMarket) setPrice(token string, price float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prices[token] = price
	delete(f.priceErr, token)
}

type fakeSafety struct {
	mu       sync.Mutex
	verdicts map[string]domain.SafetyVerdict
	errs     map[string]error
}

func newFakeSafety() *fakeSafety {
	return &fakeSafety{
		verdicts: make(map[string]domain.SafetyVerdict),
		errs:     make(map[string]error),
	}
}

func (f *fakeSafety) Assess(_ context.Context, _, token string) (domain.SafetyReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.errs[token]; ok {
		return domain.SafetyReport{}, err
	}
	v, ok := f.verdicts[token]
	if !ok {
		v = domain.SafetyVerdictSafe
	}
	return domain.SafetyReport{Verdict: v}, nil
}

type fakeVenue struct {
	mu      sync.Mutex
	buyErr  error
	sellErr error
	fills   int
}

func (f *fakeVenue) ExecuteBuy(_ context.Context, _ string, notionalUSD float64) (domain.Fill, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.buyErr != nil {
		return domain.Fill{}, f.buyErr
	}
	f.fills++
	return domain.Fill{Price: 1, Quantity: notionalUSD, TxRef: "tx-buy"}, nil
}

func (f *fakeVenue) ExecuteSell(_ context.Context, _ string, quantity float64) (domain.Fill, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sellErr != nil {
		return domain.Fill{}, f.sellErr
	}
	f.fills++
	return domain.Fill{Price: 1, Quantity: quantity, TxRef: "tx-sell"}, nil
}

// blockingNotifier signals when a notification starts and then blocks until
// released, so tests can observe what the engine does mid-delivery.
type blockingNotifier struct {
	started chan struct{}
	release chan struct{}
}

func newBlockingNotifier() *blockingNotifier {
	return &blockingNotifier{
		started: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
}

func (n *blockingNotifier) Notify(context.Context, string) {
	select {
	case n.started <- struct{}{}:
	default:
	}
	<-n.release
}
