package snapshot

import (
	"context"
	"sync"
	"time"

	"github.com/inertia-live/inertia-go/internal/observability"

	"golang.org/x/sync/singleflight"
)

// Query caches one REST-sourced snapshot behind a staleness window. Reads
// inside the window are served from cache; reads past it, and explicit
// Refetch calls, go to the network. Concurrent refetches of the same query
// collapse into a single in-flight request.
type Query[T any] struct {
	name      string
	staleness time.Duration
	fetch     func(ctx context.Context) (T, error)
	clock     func() time.Time

	group singleflight.Group

	mu        sync.RWMutex
	value     T
	hasValue  bool
	fetchedAt time.Time
	lastErr   error
}

func NewQuery[T any](name string, staleness time.Duration, fetch func(ctx context.Context) (T, error)) *Query[T] {
	return &Query[T]{
		name:      name,
		staleness: staleness,
		fetch:     fetch,
		clock:     time.Now,
	}
}

// Get returns the cached value if it is still fresh, otherwise refetches.
func (q *Query[T]) Get(ctx context.Context) (T, error) {
	q.mu.RLock()
	fresh := q.hasValue && q.clock().Sub(q.fetchedAt) < q.staleness
	value := q.value
	q.mu.RUnlock()
	if fresh {
		return value, nil
	}
	return q.Refetch(ctx)
}

// Refetch always goes to the network. Calls that arrive while a fetch for
// this query is already in flight share that fetch's result instead of
// issuing a second request.
func (q *Query[T]) Refetch(ctx context.Context) (T, error) {
	v, err, _ := q.group.Do(q.name, func() (any, error) {
		value, err := q.fetch(ctx)
		now := q.clock()
		q.mu.Lock()
		if err != nil {
			q.lastErr = err
			q.mu.Unlock()
			observability.RecordSnapshotRefetch(q.name, "error")
			return nil, err
		}
		q.value = value
		q.hasValue = true
		q.fetchedAt = now
		q.lastErr = nil
		q.mu.Unlock()
		observability.RecordSnapshotRefetch(q.name, "success")
		return value, nil
	})
	if err != nil {
		q.mu.RLock()
		stale := q.value
		q.mu.RUnlock()
		return stale, err
	}
	return v.(T), nil
}

// Cached returns the last fetched value without touching the network,
// regardless of staleness.
func (q *Query[T]) Cached() (T, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.value, q.hasValue
}

// Err returns the most recent fetch error, nil after a successful fetch.
func (q *Query[T]) Err() error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.lastErr
}

// Invalidate forces the next Get to refetch.
func (q *Query[T]) Invalidate() {
	q.mu.Lock()
	q.fetchedAt = time.Time{}
	q.mu.Unlock()
}
