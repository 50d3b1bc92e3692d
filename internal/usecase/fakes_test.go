package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"SignalDesk/internal/domain/models"
	domrepo "SignalDesk/internal/domain/repository"
)

var day0 = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

// bars builds daily candles from closes with a +/-1 range and fixed volume.
func bars(symbol string, closes ...float64) []models.Candle {
	out := make([]models.Candle, len(closes))
	for i, c := range closes {
		out[i] = models.Candle{
			Symbol: symbol,
			Date:   day0.AddDate(0, 0, i),
			Open:   c,
			High:   c + 1,
			Low:    c - 1,
			Close:  c,
			Volume: 2_000_000,
		}
	}
	return out
}

// breakoutBars is flat at 100 for 39 days, then closes at 110. MA_CROSS and
// BREAKOUT both fire on the last bar.
func breakoutBars(symbol string) []models.Candle {
	closes := make([]float64, 40)
	for i := range closes {
		closes[i] = 100
	}
	closes[39] = 110
	return bars(symbol, closes...)
}

var lastDay = day0.AddDate(0, 0, 39)

type fakeCandles struct {
	mu    sync.Mutex
	data  map[string][]models.Candle
	errs  map[string]error
	calls map[string]int
}

func newFakeCandles() *fakeCandles {
	return &fakeCandles{data: map[string][]models.Candle{}, errs: map[string]error{}, calls: map[string]int{}}
}

func (f *fakeCandles) ListSymbols(context.Context, domrepo.Market) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	seen := map[string]bool{}
	for s := range f.data {
		seen[s] = true
	}
	for s := range f.errs {
		seen[s] = true
	}
	out := make([]string, 0, len(seen))
	for s := range seen {
		out = append(out, s)
	}
	sort.Strings(out)
	return out, nil
}

func (f *fakeCandles) GetHistory(_ context.Context, symbol string, upTo time.Time, limit int) ([]models.Candle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[symbol]++
	if err := f.errs[symbol]; err != nil {
		return nil, err
	}
	var out []models.Candle
	for _, c := range f.data[symbol] {
		if !c.Date.After(upTo) {
			out = append(out, c)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (f *fakeCandles) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

// memStore is an in-memory signal, position and allocation repository.
// Callbacks run on copies, so a callback error leaves state untouched.
type memStore struct {
	mu        sync.Mutex
	nextID    uint64
	signals   map[uint64]models.PendingSignal
	positions map[uint64]models.Position
	snapshots []models.AllocationSnapshot
}

func newMemStore() *memStore {
	return &memStore{signals: map[uint64]models.PendingSignal{}, positions: map[uint64]models.Position{}}
}

func (m *memStore) id() uint64 {
	m.nextID++
	return m.nextID
}

func (m *memStore) InsertPending(_ context.Context, rows []models.PendingSignal) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, r := range rows {
		dup := false
		for _, s := range m.signals {
			if s.Symbol == r.Symbol && s.TradeDate.Equal(r.TradeDate) && s.StrategyCode == r.StrategyCode {
				dup = true
				break
			}
		}
		if dup {
			continue
		}
		r.ID = m.id()
		if r.Status == "" {
			r.Status = models.SignalPending
		}
		m.signals[r.ID] = r
		n++
	}
	return n, nil
}

// add stores a signal as-is and returns its id.
func (m *memStore) add(s models.PendingSignal) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	s.ID = m.id()
	if s.Status == "" {
		s.Status = models.SignalPending
	}
	m.signals[s.ID] = s
	return s.ID
}

func (m *memStore) Get(_ context.Context, id uint64) (*models.PendingSignal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.signals[id]
	if !ok {
		return nil, models.ErrSignalNotFound
	}
	return &s, nil
}

func (m *memStore) listLocked(f domrepo.SignalFilter) []models.PendingSignal {
	var out []models.PendingSignal
	for _, s := range m.signals {
		if f.Date != nil && !s.TradeDate.Equal(*f.Date) {
			continue
		}
		if f.Status != "" && s.Status != f.Status {
			continue
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].RankScore != out[j].RankScore {
			return out[i].RankScore > out[j].RankScore
		}
		return out[i].ID < out[j].ID
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out
}

// List applies the same default page size as the postgres store.
func (m *memStore) List(_ context.Context, f domrepo.SignalFilter) ([]models.PendingSignal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if f.Limit <= 0 {
		f.Limit = 500
	}
	return m.listLocked(f), nil
}

func (m *memStore) PendingOn(_ context.Context, date time.Time) ([]models.PendingSignal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listLocked(domrepo.SignalFilter{Date: &date, Status: models.SignalPending}), nil
}

func (m *memStore) ListPending(_ context.Context, upTo time.Time) ([]models.PendingSignal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.PendingSignal
	for _, s := range m.listLocked(domrepo.SignalFilter{Status: models.SignalPending}) {
		if !s.TradeDate.After(upTo) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *memStore) MutatePending(_ context.Context, date time.Time, fn func([]*models.PendingSignal) error) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rows := m.listLocked(domrepo.SignalFilter{Date: &date, Status: models.SignalPending})
	ptrs := make([]*models.PendingSignal, len(rows))
	for i := range rows {
		ptrs[i] = &rows[i]
	}
	if err := fn(ptrs); err != nil {
		return 0, err
	}
	for _, r := range rows {
		m.signals[r.ID] = r
	}
	return len(rows), nil
}

func (m *memStore) Decide(_ context.Context, id uint64, fn func(*models.PendingSignal) error) (*models.PendingSignal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.signals[id]
	if !ok {
		return nil, models.ErrSignalNotFound
	}
	if err := fn(&s); err != nil {
		return nil, err
	}
	m.signals[id] = s
	return &s, nil
}

func (m *memStore) Execute(_ context.Context, id uint64, fn func(*models.PendingSignal) (*models.Position, error)) (*models.PendingSignal, *models.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.signals[id]
	if !ok {
		return nil, nil, models.ErrSignalNotFound
	}
	pos, err := fn(&s)
	if err != nil {
		return nil, nil, err
	}
	pos.ID = m.id()
	m.signals[id] = s
	m.positions[pos.ID] = *pos
	return &s, pos, nil
}

type memPositions struct{ *memStore }

func (m memPositions) Get(_ context.Context, id uint64) (*models.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.positions[id]
	if !ok {
		return nil, models.ErrPositionNotFound
	}
	return &p, nil
}

func (m memPositions) List(_ context.Context, f domrepo.PositionFilter) ([]models.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Position
	for _, p := range m.positions {
		if f.Status == "" || p.Status == f.Status {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m memPositions) Update(_ context.Context, id uint64, fn func(*models.Position) error) (*models.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.positions[id]
	if !ok {
		return nil, models.ErrPositionNotFound
	}
	if err := fn(&p); err != nil {
		return nil, err
	}
	m.positions[id] = p
	return &p, nil
}

func (m memPositions) WinRate(_ context.Context, code string) (float64, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	closed, wins := 0, 0
	for _, p := range m.positions {
		if p.StrategyCode != code || p.Status != models.PositionClosed {
			continue
		}
		closed++
		if p.Profitable() {
			wins++
		}
	}
	if closed == 0 {
		return 0, 0, nil
	}
	return float64(wins) / float64(closed), closed, nil
}

// addPosition stores an OPEN position directly.
func (m memPositions) addPosition(p models.Position) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	p.ID = m.id()
	if p.Status == "" {
		p.Status = models.PositionOpen
	}
	m.positions[p.ID] = p
	return p.ID
}

type memAllocations struct{ *memStore }

func (m memAllocations) Allocate(_ context.Context, date time.Time, simulate func([]models.PendingSignal) (*models.AllocationSnapshot, error)) (*models.AllocationSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap, err := simulate(m.listLocked(domrepo.SignalFilter{Date: &date, Status: models.SignalPending}))
	if err != nil {
		return nil, err
	}
	m.snapshots = append(m.snapshots, *snap)
	return snap, nil
}

func (m memAllocations) Latest(_ context.Context, date time.Time) (*models.AllocationSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.snapshots) - 1; i >= 0; i-- {
		if m.snapshots[i].RunDate.Equal(date) {
			s := m.snapshots[i]
			return &s, nil
		}
	}
	return nil, models.ErrSnapshotNotFound
}

func (m memAllocations) LatestForSignal(_ context.Context, signalID uint64) (*models.AllocationPosition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.snapshots) - 1; i >= 0; i-- {
		if p, ok := m.snapshots[i].PositionFor(signalID); ok {
			return &p, nil
		}
	}
	return nil, nil
}

type fakeQuotes struct {
	mu     sync.Mutex
	prices map[string]float64
	errs   map[string]error
}

func newFakeQuotes() *fakeQuotes {
	return &fakeQuotes{prices: map[string]float64{}, errs: map[string]error{}}
}

func (q *fakeQuotes) set(symbol string, price float64) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.prices[symbol] = price
}

func (q *fakeQuotes) LatestPrice(_ context.Context, symbol string) (float64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if err := q.errs[symbol]; err != nil {
		return 0, err
	}
	p, ok := q.prices[symbol]
	if !ok {
		return 0, fmt.Errorf("no quote for %s", symbol)
	}
	return p, nil
}

type fakeLocker struct {
	mu   sync.Mutex
	held map[string]bool
}

func newFakeLocker() *fakeLocker { return &fakeLocker{held: map[string]bool{}} }

func (l *fakeLocker) Acquire(_ context.Context, key string, _ time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] {
		return false, nil
	}
	l.held[key] = true
	return true, nil
}

func (l *fakeLocker) Release(_ context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, key)
	return nil
}

type capturePublisher struct {
	mu     sync.Mutex
	events []models.Event
}

func (p *capturePublisher) Publish(_ context.Context, ev models.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *capturePublisher) Close() error { return nil }

func (p *capturePublisher) types() []models.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]models.EventType, len(p.events))
	for i, ev := range p.events {
		out[i] = ev.Type
	}
	return out
}

func (p *capturePublisher) has(t models.EventType) bool {
	for _, got := range p.types() {
		if got == t {
			return true
		}
	}
	return false
}

var errUnavailable = errors.New("provider unavailable")
