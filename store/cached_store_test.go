package store_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cppla/xkcdviews/models"
	"github.com/cppla/xkcdviews/store"
)

// pausingStore parks the first GetViewCount after the wrapped read and before
// it returns, so other calls can run in between.
type pausingStore struct {
	store.Store
	once    sync.Once
	read    chan struct{}
	release chan struct{}
}

func newPausingStore(next store.Store) *pausingStore {
	return &pausingStore{Store: next, read: make(chan struct{}), release: make(chan struct{})}
}

func (p *pausingStore) GetViewCount(ctx context.Context, comicNumber int) (int64, error) {
	n, err := p.Store.GetViewCount(ctx, comicNumber)
	p.once.Do(func() {
		close(p.read)
		<-p.release
	})
	return n, err
}

type countResult struct {
	n   int64
	err error
}

// pausedRead starts a cached read that stops after it has loaded the count from next.
func pausedRead(cs *store.CachedStore, p *pausingStore, comicNumber int) <-chan countResult {
	out := make(chan countResult, 1)
	go func() {
		n, err := cs.GetViewCount(context.Background(), comicNumber)
		out <- countResult{n, err}
	}()
	<-p.read
	return out
}

func TestCachedStore_ServesHitsFromRedis(t *testing.T) {
	ctx := context.Background()
	mr, rc := newMiniredis(t)
	base := store.NewMemoryStore()
	cs := store.NewCachedStore(base, rc, time.Minute, nil)

	for i := 0; i < 2; i++ {
		_, err := cs.IncrementView(ctx, 7)
		require.NoError(t, err)
	}
	cached, err := mr.Get("xkcdviews:count:7")
	require.NoError(t, err)
	assert.Equal(t, "2", cached)

	// a write behind the cache's back is not seen until the entry expires
	_, err = base.IncrementView(ctx, 7)
	require.NoError(t, err)
	n, err := cs.GetViewCount(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	mr.FastForward(2 * time.Minute)
	n, err = cs.GetViewCount(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}

func TestCachedStore_DeleteThenNotFound(t *testing.T) {
	ctx := context.Background()
	mr, rc := newMiniredis(t)
	cs := store.NewCachedStore(store.NewMemoryStore(), rc, time.Minute, nil)

	_, err := cs.IncrementView(ctx, 221)
	require.NoError(t, err)
	require.True(t, mr.Exists("xkcdviews:count:221"))

	require.NoError(t, cs.Delete(ctx, 221))
	assert.False(t, mr.Exists("xkcdviews:count:221"))

	_, err = cs.GetViewCount(ctx, 221)
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.False(t, mr.Exists("xkcdviews:count:221"), "not-found must not be cached")
}

func TestCachedStore_ReadRacingDeleteIsNotCached(t *testing.T) {
	ctx := context.Background()
	_, rc := newMiniredis(t)
	base := store.NewMemoryStore()
	for i := 0; i < 3; i++ {
		_, err := base.IncrementView(ctx, 42)
		require.NoError(t, err)
	}
	p := newPausingStore(base)
	cs := store.NewCachedStore(p, rc, time.Minute, nil)

	pending := pausedRead(cs, p, 42)
	require.NoError(t, cs.Delete(ctx, 42))
	close(p.release)

	res := <-pending
	require.NoError(t, res.err)
	assert.Equal(t, int64(3), res.n, "the read started before the delete")

	_, err := cs.GetViewCount(ctx, 42)
	assert.ErrorIs(t, err, store.ErrNotFound)

	n, err := cs.IncrementView(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	n, err = cs.GetViewCount(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestCachedStore_OlderCountNeverLowersCache(t *testing.T) {
	ctx := context.Background()
	mr, rc := newMiniredis(t)
	base := store.NewMemoryStore()
	for i := 0; i < 5; i++ {
		_, err := base.IncrementView(ctx, 99)
		require.NoError(t, err)
	}
	p := newPausingStore(base)
	cs := store.NewCachedStore(p, rc, time.Minute, nil)

	pending := pausedRead(cs, p, 99)
	n, err := cs.IncrementView(ctx, 99)
	require.NoError(t, err)
	assert.Equal(t, int64(6), n)
	close(p.release)

	res := <-pending
	require.NoError(t, res.err)
	assert.Equal(t, int64(5), res.n)

	cached, err := mr.Get("xkcdviews:count:99")
	require.NoError(t, err)
	assert.Equal(t, "6", cached)
	n, err = cs.GetViewCount(ctx, 99)
	require.NoError(t, err)
	assert.Equal(t, int64(6), n)
}

func TestCachedStore_TopInvalidatedByCreateAndDelete(t *testing.T) {
	ctx := context.Background()
	mr, rc := newMiniredis(t)
	cs := store.NewCachedStore(store.NewMemoryStore(), rc, time.Minute, nil)

	for comic, n := range map[int]int{1: 2, 2: 1} {
		for i := 0; i < n; i++ {
			_, err := cs.IncrementView(ctx, comic)
			require.NoError(t, err)
		}
	}

	top, err := cs.Top(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, []models.ComicViewCounter{{ComicNumber: 1, ViewCount: 2}, {ComicNumber: 2, ViewCount: 1}}, top)
	assert.True(t, mr.Exists("xkcdviews:top:2"))

	require.NoError(t, cs.Create(ctx, &models.ComicViewCounter{ComicNumber: 500, ViewCount: 10}))
	assert.False(t, mr.Exists("xkcdviews:top:2"))

	top, err = cs.Top(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, []models.ComicViewCounter{{ComicNumber: 500, ViewCount: 10}, {ComicNumber: 1, ViewCount: 2}}, top)

	// served from the cache until the next create or delete
	_, err = cs.Top(ctx, 2)
	require.NoError(t, err)
	assert.True(t, mr.Exists("xkcdviews:top:2"))

	require.NoError(t, cs.Delete(ctx, 500))
	assert.False(t, mr.Exists("xkcdviews:top:2"))

	top, err = cs.Top(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, []models.ComicViewCounter{{ComicNumber: 1, ViewCount: 2}, {ComicNumber: 2, ViewCount: 1}}, top)
}
