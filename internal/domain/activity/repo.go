package activity

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a day has no journal entries.
var ErrNotFound = errors.New("no activity for date")

type Repository interface {
	Add(ctx context.Context, a *Activity) error

	// ByDay returns a day's entries, newest first.
	ByDay(ctx context.Context, day string) ([]Activity, error)

	// StatsByDay returns the aggregate for a day, or ErrNotFound when the
	// day has no entries.
	StatsByDay(ctx context.Context, day string) (DailyStats, error)

	// Days returns every day with at least one entry, newest first.
	Days(ctx context.Context) ([]string, error)
}
