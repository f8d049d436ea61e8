// Package store persists comic view counters.
//
// Store is the contract the HTTP layer depends on. GormStore is the SQL
// implementation, MemoryStore keeps everything in a map and CachedStore puts a
// Redis read cache in front of either one.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/cppla/xkcdviews/models"
)

var (
	// ErrNotFound is returned when no counter exists for a comic number.
	ErrNotFound = errors.New("comic view counter not found")
	// ErrDuplicate is returned when a counter already exists for a comic number.
	ErrDuplicate = errors.New("comic view counter already exists")
)

// Totals summarises all counters.
type Totals struct {
	Comics int64 `json:"comics"`
	Views  int64 `json:"views"`
}

// Store is the persistence contract for comic view counters.
type Store interface {
	// GetOrCreate returns the counter for comicNumber, creating it with a zero
	// count when absent. created reports whether this call inserted the row.
	GetOrCreate(ctx context.Context, comicNumber int) (counter *models.ComicViewCounter, created bool, err error)

	// Create inserts a new counter. It returns ErrDuplicate if one already exists.
	Create(ctx context.Context, counter *models.ComicViewCounter) error

	// IncrementView atomically adds one view, creating the counter if needed,
	// and returns the new count.
	IncrementView(ctx context.Context, comicNumber int) (int64, error)

	// GetViewCount returns the current count or ErrNotFound.
	GetViewCount(ctx context.Context, comicNumber int) (int64, error)

	// Delete removes a counter and its daily history. It returns ErrNotFound if absent.
	Delete(ctx context.Context, comicNumber int) error

	// Top lists counters by view count, highest first.
	Top(ctx context.Context, limit int) ([]models.ComicViewCounter, error)

	// Trending lists the daily buckets of day (YYYY-MM-DD), most viewed first.
	Trending(ctx context.Context, day string, limit int) ([]models.ComicDailyView, error)

	// Totals returns the number of tracked comics and the sum of their views.
	Totals(ctx context.Context) (Totals, error)
}

// Today returns the local day key used for daily buckets.
func Today(now time.Time) string {
	return now.In(time.Local).Format(models.DayLayout)
}
