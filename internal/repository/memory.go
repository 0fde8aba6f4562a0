package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"StratLab/internal/domain/models"
	domrepo "StratLab/internal/domain/repository"
)

// MemoryBarStore serves bars loaded up front, e.g. from a CSV export.
type MemoryBarStore struct {
	mu   sync.RWMutex
	bars map[string][]models.Bar
}

var _ domrepo.BarStore = (*MemoryBarStore)(nil)

func NewMemoryBarStore(bars []models.Bar) *MemoryBarStore {
	s := &MemoryBarStore{bars: make(map[string][]models.Bar)}
	s.Add(bars)
	return s
}

// Add merges bars, keeping each symbol's series ordered by time.
func (s *MemoryBarStore) Add(bars []models.Bar) {
	s.mu.Lock()
	defer s.mu.Unlock()
	touched := map[string]bool{}
	for _, b := range bars {
		s.bars[b.Symbol] = append(s.bars[b.Symbol], b)
		touched[b.Symbol] = true
	}
	for sym := range touched {
		series := s.bars[sym]
		sort.SliceStable(series, func(i, j int) bool { return series[i].Timestamp.Before(series[j].Timestamp) })
	}
}

func (s *MemoryBarStore) GetBars(_ context.Context, symbol string, from, to time.Time) ([]models.Bar, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	series := s.bars[symbol]
	lo := sort.Search(len(series), func(i int) bool { return !series[i].Timestamp.Before(from) })
	hi := sort.Search(len(series), func(i int) bool { return series[i].Timestamp.After(to) })
	if lo >= hi {
		return nil, nil
	}
	out := make([]models.Bar, hi-lo)
	copy(out, series[lo:hi])
	return out, nil
}

// Range returns the first and last bar time of symbol.
func (s *MemoryBarStore) Range(symbol string) (time.Time, time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	series := s.bars[symbol]
	if len(series) == 0 {
		return time.Time{}, time.Time{}, false
	}
	return series[0].Timestamp, series[len(series)-1].Timestamp, true
}

// MemoryResultStore keeps results for the lifetime of the process.
type MemoryResultStore struct {
	mu   sync.RWMutex
	runs map[string]*models.StrategyResult
}

var _ domrepo.ResultStore = (*MemoryResultStore)(nil)

func NewMemoryResultStore() *MemoryResultStore {
	return &MemoryResultStore{runs: make(map[string]*models.StrategyResult)}
}

func (s *MemoryResultStore) Init(context.Context) error { return nil }

func (s *MemoryResultStore) Save(_ context.Context, res *models.StrategyResult) error {
	s.mu.Lock()
	s.runs[res.RunID] = res
	s.mu.Unlock()
	return nil
}

func (s *MemoryResultStore) Get(_ context.Context, runID string) (*models.StrategyResult, error) {
	s.mu.RLock()
	res, ok := s.runs[runID]
	s.mu.RUnlock()
	if !ok {
		return nil, models.ErrRunNotFound
	}
	return res, nil
}

func (s *MemoryResultStore) Health(context.Context) error { return nil }
func (s *MemoryResultStore) Close() error                 { return nil }
