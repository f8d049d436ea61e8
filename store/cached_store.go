package store

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/cppla/xkcdviews/models"
)

const (
	defaultCacheTTL = time.Minute
	cacheOpTimeout  = 2 * time.Second

	// generations outlive any in-flight read; an expired one only makes a stale write skip
	generationTTL = 24 * time.Hour

	countKeyPrefix = "xkcdviews:count:"
	genKeyPrefix   = "xkcdviews:gen:"
	topKeyPrefix   = "xkcdviews:top:"
)

// CachedStore serves reads from Redis and falls back to the wrapped Store.
// Redis errors are logged and never returned; the wrapped Store stays the source of truth.
//
// Every cached count is written against the comic's delete generation read
// before the wrapped Store was consulted. Delete bumps the generation, so a
// count read before a delete can never be cached after it.
type CachedStore struct {
	next   Store
	rc     *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewCachedStore wraps next with a Redis cache. A nil client disables caching.
func NewCachedStore(next Store, rc *redis.Client, ttl time.Duration, logger *zap.Logger) *CachedStore {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedStore{next: next, rc: rc, ttl: ttl, logger: logger}
}

func (c *CachedStore) GetOrCreate(ctx context.Context, comicNumber int) (*models.ComicViewCounter, bool, error) {
	gen, ok := c.generation(ctx, comicNumber)
	counter, created, err := c.next.GetOrCreate(ctx, comicNumber)
	if err != nil {
		return nil, false, err
	}
	if ok {
		c.setCount(ctx, comicNumber, counter.ViewCount, gen)
	}
	return counter, created, nil
}

func (c *CachedStore) Create(ctx context.Context, counter *models.ComicViewCounter) error {
	gen, ok := c.generation(ctx, counter.ComicNumber)
	if err := c.next.Create(ctx, counter); err != nil {
		return err
	}
	if ok {
		c.setCount(ctx, counter.ComicNumber, counter.ViewCount, gen)
	}
	c.invalidate(ctx, topKeyPrefix)
	return nil
}

func (c *CachedStore) IncrementView(ctx context.Context, comicNumber int) (int64, error) {
	gen, ok := c.generation(ctx, comicNumber)
	count, err := c.next.IncrementView(ctx, comicNumber)
	if err != nil {
		return 0, err
	}
	if ok {
		c.setCount(ctx, comicNumber, count, gen)
	}
	return count, nil
}

func (c *CachedStore) GetViewCount(ctx context.Context, comicNumber int) (int64, error) {
	var gen string
	ok := false
	if c.rc != nil {
		cctx, cancel := context.WithTimeout(ctx, cacheOpTimeout)
		vals, err := c.rc.MGet(cctx, countKey(comicNumber), genKey(comicNumber)).Result()
		cancel()
		if err != nil {
			c.logger.Warn("cache get failed", zap.Int("comic_number", comicNumber), zap.Error(err))
		} else {
			if raw, isStr := vals[0].(string); isStr {
				if n, perr := strconv.ParseInt(raw, 10, 64); perr == nil {
					return n, nil
				}
			}
			gen, _ = vals[1].(string)
			ok = true
		}
	}

	count, err := c.next.GetViewCount(ctx, comicNumber)
	if err != nil {
		return 0, err
	}
	if ok {
		c.setCount(ctx, comicNumber, count, gen)
	}
	return count, nil
}

func (c *CachedStore) Delete(ctx context.Context, comicNumber int) error {
	if err := c.next.Delete(ctx, comicNumber); err != nil {
		return err
	}
	if c.rc != nil {
		cctx, cancel := context.WithTimeout(ctx, cacheOpTimeout)
		defer cancel()
		// bump and clear together so a cached count always belongs to the current generation
		_, err := c.rc.TxPipelined(cctx, func(pipe redis.Pipeliner) error {
			pipe.Incr(cctx, genKey(comicNumber))
			pipe.Expire(cctx, genKey(comicNumber), generationTTL)
			pipe.Del(cctx, countKey(comicNumber))
			return nil
		})
		if err != nil {
			c.logger.Warn("cache delete failed", zap.Int("comic_number", comicNumber), zap.Error(err))
		}
	}
	c.invalidate(ctx, topKeyPrefix)
	return nil
}

// Top is cached as JSON for the TTL; rankings may lag behind increments by that much.
func (c *CachedStore) Top(ctx context.Context, limit int) ([]models.ComicViewCounter, error) {
	key := topKeyPrefix + strconv.Itoa(limit)
	if c.rc != nil {
		cctx, cancel := context.WithTimeout(ctx, cacheOpTimeout)
		b, err := c.rc.Get(cctx, key).Bytes()
		cancel()
		if err == nil {
			var items []models.ComicViewCounter
			if json.Unmarshal(b, &items) == nil {
				return items, nil
			}
		} else if !errors.Is(err, redis.Nil) {
			c.logger.Warn("cache get failed", zap.String("key", key), zap.Error(err))
		}
	}

	items, err := c.next.Top(ctx, limit)
	if err != nil {
		return nil, err
	}
	if c.rc != nil {
		if b, merr := json.Marshal(items); merr == nil {
			cctx, cancel := context.WithTimeout(ctx, cacheOpTimeout)
			defer cancel()
			if err := c.rc.Set(cctx, key, b, c.ttl).Err(); err != nil {
				c.logger.Warn("cache set failed", zap.String("key", key), zap.Error(err))
			}
		}
	}
	return items, nil
}

func (c *CachedStore) Trending(ctx context.Context, day string, limit int) ([]models.ComicDailyView, error) {
	return c.next.Trending(ctx, day, limit)
}

func (c *CachedStore) Totals(ctx context.Context) (Totals, error) {
	return c.next.Totals(ctx)
}

// setMaxScript only raises a cached count, and only while the comic's delete
// generation still matches the one read before the wrapped Store was consulted.
// Counts are monotonic within a generation, so a slower writer holding an older
// value cannot overwrite a newer one.
//
// KEYS: count key, generation key. ARGV: count, ttl in ms, expected generation.
var setMaxScript = redis.NewScript(`
local g = redis.call('GET', KEYS[2]) or ''
if g ~= ARGV[3] then
  return 0
end
local v = redis.call('GET', KEYS[1])
if (not v) or tonumber(v) < tonumber(ARGV[1]) then
  redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[2])
  return 1
end
return 0
`)

// generation returns the delete generation of comicNumber ("" before the first
// delete). ok is false when there is no usable cache, and then nothing may be cached.
func (c *CachedStore) generation(ctx context.Context, comicNumber int) (string, bool) {
	if c.rc == nil {
		return "", false
	}
	cctx, cancel := context.WithTimeout(ctx, cacheOpTimeout)
	defer cancel()
	gen, err := c.rc.Get(cctx, genKey(comicNumber)).Result()
	switch {
	case err == nil:
		return gen, true
	case errors.Is(err, redis.Nil):
		return "", true
	default:
		c.logger.Warn("cache generation read failed", zap.Int("comic_number", comicNumber), zap.Error(err))
		return "", false
	}
}

func (c *CachedStore) setCount(ctx context.Context, comicNumber int, count int64, gen string) {
	cctx, cancel := context.WithTimeout(ctx, cacheOpTimeout)
	defer cancel()
	keys := []string{countKey(comicNumber), genKey(comicNumber)}
	if err := setMaxScript.Run(cctx, c.rc, keys, count, c.ttl.Milliseconds(), gen).Err(); err != nil {
		c.logger.Warn("cache set failed", zap.Int("comic_number", comicNumber), zap.Error(err))
	}
}

// invalidate deletes keys matching prefix using SCAN.
func (c *CachedStore) invalidate(ctx context.Context, prefix string) {
	if c.rc == nil {
		return
	}
	cctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	var cursor uint64
	for i := 0; i < 10; i++ { // bounded rounds
		keys, cur, err := c.rc.Scan(cctx, cursor, prefix+"*", 1000).Result()
		if err != nil {
			c.logger.Warn("cache scan failed", zap.String("prefix", prefix), zap.Error(err))
			return
		}
		cursor = cur
		if len(keys) > 0 {
			pipe := c.rc.Pipeline()
			for _, k := range keys {
				pipe.Del(cctx, k)
			}
			_, _ = pipe.Exec(cctx)
		}
		if cursor == 0 {
			return
		}
	}
}

func countKey(comicNumber int) string {
	return countKeyPrefix + strconv.Itoa(comicNumber)
}

func genKey(comicNumber int) string {
	return genKeyPrefix + strconv.Itoa(comicNumber)
}
