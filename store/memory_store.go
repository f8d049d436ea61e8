package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/cppla/xkcdviews/models"
)

// MemoryStore keeps counters in process memory (single-instance only).
type MemoryStore struct {
	mu       sync.Mutex
	counters map[int]int64
	daily    map[string]map[int]int64
	now      func() time.Time
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		counters: map[int]int64{},
		daily:    map[string]map[int]int64{},
		now:      time.Now,
	}
}

func (m *MemoryStore) GetOrCreate(_ context.Context, comicNumber int) (*models.ComicViewCounter, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	count, ok := m.counters[comicNumber]
	if !ok {
		m.counters[comicNumber] = 0
	}
	return &models.ComicViewCounter{ComicNumber: comicNumber, ViewCount: count}, !ok, nil
}

func (m *MemoryStore) Create(_ context.Context, counter *models.ComicViewCounter) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.counters[counter.ComicNumber]; ok {
		return ErrDuplicate
	}
	m.counters[counter.ComicNumber] = counter.ViewCount
	return nil
}

func (m *MemoryStore) IncrementView(_ context.Context, comicNumber int) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.counters[comicNumber]++
	day := Today(m.now())
	if m.daily[day] == nil {
		m.daily[day] = map[int]int64{}
	}
	m.daily[day][comicNumber]++
	return m.counters[comicNumber], nil
}

func (m *MemoryStore) GetViewCount(_ context.Context, comicNumber int) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	count, ok := m.counters[comicNumber]
	if !ok {
		return 0, ErrNotFound
	}
	return count, nil
}

func (m *MemoryStore) Delete(_ context.Context, comicNumber int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.counters[comicNumber]; !ok {
		return ErrNotFound
	}
	delete(m.counters, comicNumber)
	for _, bucket := range m.daily {
		delete(bucket, comicNumber)
	}
	return nil
}

func (m *MemoryStore) Top(_ context.Context, limit int) ([]models.ComicViewCounter, error) {
	m.mu.Lock()
	items := make([]models.ComicViewCounter, 0, len(m.counters))
	for n, c := range m.counters {
		items = append(items, models.ComicViewCounter{ComicNumber: n, ViewCount: c})
	}
	m.mu.Unlock()

	sort.Slice(items, func(i, j int) bool {
		if items[i].ViewCount != items[j].ViewCount {
			return items[i].ViewCount > items[j].ViewCount
		}
		return items[i].ComicNumber < items[j].ComicNumber
	})
	return truncate(items, limit), nil
}

func (m *MemoryStore) Trending(_ context.Context, day string, limit int) ([]models.ComicDailyView, error) {
	m.mu.Lock()
	items := make([]models.ComicDailyView, 0, len(m.daily[day]))
	for n, v := range m.daily[day] {
		items = append(items, models.ComicDailyView{Day: day, ComicNumber: n, Views: v})
	}
	m.mu.Unlock()

	sort.Slice(items, func(i, j int) bool {
		if items[i].Views != items[j].Views {
			return items[i].Views > items[j].Views
		}
		return items[i].ComicNumber < items[j].ComicNumber
	})
	return truncate(items, limit), nil
}

func (m *MemoryStore) Totals(_ context.Context) (Totals, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t := Totals{Comics: int64(len(m.counters))}
	for _, c := range m.counters {
		t.Views += c
	}
	return t, nil
}

func truncate[T any](items []T, limit int) []T {
	if limit > 0 && len(items) > limit {
		return items[:limit]
	}
	return items
}
