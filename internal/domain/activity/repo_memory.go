package activity

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// memoryRepo keeps the journal per day and maintains the aggregate
// incrementally on every append, so StatsByDay is a map read rather than a
// rescan.
type memoryRepo struct {
	mu      sync.Mutex
	entries map[string][]Activity
	stats   map[string]DailyStats
}

func NewMemoryRepo() Repository {
	return &memoryRepo{
		entries: make(map[string][]Activity),
		stats:   make(map[string]DailyStats),
	}
}

func (r *memoryRepo) Add(ctx context.Context, a *Activity) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	// Newest first.
	r.entries[a.Day] = append([]Activity{*a}, r.entries[a.Day]...)

	stats, ok := r.stats[a.Day]
	if !ok {
		stats = DailyStats{Day: a.Day}
	}
	stats.apply(*a)
	r.stats[a.Day] = stats
	return nil
}

func (r *memoryRepo) ByDay(ctx context.Context, day string) ([]Activity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries, ok := r.entries[day]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]Activity, len(entries))
	copy(out, entries)
	return out, nil
}

func (r *memoryRepo) StatsByDay(ctx context.Context, day string) (DailyStats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stats, ok := r.stats[day]
	if !ok {
		return DailyStats{}, ErrNotFound
	}
	return stats, nil
}

func (r *memoryRepo) Days(ctx context.Context) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	days := make([]string, 0, len(r.entries))
	for day := range r.entries {
		days = append(days, day)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(days)))
	return days, nil
}
