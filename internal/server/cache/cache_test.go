package cache

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/dynamic-rindex/internal/rindex"
	"github.com/Adithya-Monish-Kumar-K/dynamic-rindex/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	mu   sync.Mutex
	data map[string][]byte
	err  error
}

func newMemStore() *memStore { return &memStore{data: map[string][]byte{}} }

func (s *memStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, false, s.err
	}
	v, ok := s.data[key]
	return v, ok, nil
}

func (s *memStore) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.data[key] = value
	return nil
}

func (s *memStore) FlushByPattern(_ context.Context, pattern string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prefix := strings.TrimSuffix(pattern, "*")
	var n int64
	for k := range s.data {
		if strings.HasPrefix(k, prefix) {
			delete(s.data, k)
			n++
		}
	}
	return n, nil
}

func (s *memStore) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.data)
}

func result(version uint64, positions ...int) rindex.QueryResults {
	return rindex.QueryResults{Count: len(positions), Positions: positions, CharCounts: []int{0, 1}, Alphabet: "\x01a", Version: version}
}

func TestGetOrComputeCachesPerVersion(t *testing.T) {
	store := newMemStore()
	m := metrics.New(prometheus.NewRegistry())
	c := New(store, time.Minute, m)
	ctx := context.Background()

	calls := 0
	compute := func(v uint64) func() (rindex.QueryResults, error) {
		return func() (rindex.QueryResults, error) {
			calls++
			return result(v, 3, 1), nil
		}
	}

	r, hit, err := c.GetOrCompute(ctx, 1, []byte("ana"), true, compute(1))
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, []int{3, 1}, r.Positions)

	r, hit, err = c.GetOrCompute(ctx, 1, []byte("ana"), true, compute(1))
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, result(1, 3, 1), r)
	assert.Equal(t, 1, calls)

	_, hit, err = c.GetOrCompute(ctx, 1, []byte("ana"), false, compute(1))
	require.NoError(t, err)
	assert.False(t, hit)
	_, hit, err = c.GetOrCompute(ctx, 2, []byte("ana"), true, compute(2))
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, 3, calls)

	hits, misses := c.Stats()
	assert.Equal(t, int64(1), hits)
	assert.Equal(t, int64(3), misses)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheHitsTotal))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.CacheMissesTotal))

	require.NoError(t, c.Invalidate(ctx))
	assert.Zero(t, store.len())
}

// TestRestartedProcessIgnoresEarlierEntries models two boots sharing one
// Redis: both indexes reach version 1 over different texts, and the second
// must not be served what the first cached.
func TestRestartedProcessIgnoresEarlierEntries(t *testing.T) {
	store := newMemStore()
	ctx := context.Background()

	first := New(store, time.Minute, nil)
	_, _, err := first.GetOrCompute(ctx, 1, []byte("ana"), true, func() (rindex.QueryResults, error) {
		return result(1, 3, 1), nil
	})
	require.NoError(t, err)
	require.Equal(t, 1, store.len())

	second := New(store, time.Minute, nil)
	assert.NotEqual(t, first.Epoch(), second.Epoch())
	r, hit, err := second.GetOrCompute(ctx, 1, []byte("ana"), true, func() (rindex.QueryResults, error) {
		return result(1, 0), nil
	})
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, []int{0}, r.Positions)

	r, hit, err = second.GetOrCompute(ctx, 1, []byte("ana"), true, func() (rindex.QueryResults, error) {
		return rindex.QueryResults{}, errors.New("should be cached")
	})
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, []int{0}, r.Positions)

	require.NoError(t, second.Invalidate(ctx))
	assert.Zero(t, store.len())
}

func TestStaleComputationIsNotStored(t *testing.T) {
	store := newMemStore()
	c := New(store, time.Minute, nil)
	r, _, err := c.GetOrCompute(context.Background(), 4, []byte("a"), false, func() (rindex.QueryResults, error) {
		return result(5), nil
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(5), r.Version)
	assert.Zero(t, store.len())
}

func TestStoreFailureFallsBackToCompute(t *testing.T) {
	store := newMemStore()
	store.err = errors.New("connection refused")
	c := New(store, time.Minute, nil)
	for range 10 {
		r, hit, err := c.GetOrCompute(context.Background(), 1, []byte("a"), true, func() (rindex.QueryResults, error) {
			return result(1, 0), nil
		})
		require.NoError(t, err)
		assert.False(t, hit)
		assert.Equal(t, []int{0}, r.Positions)
	}
	assert.Error(t, c.Invalidate(context.Background()))
}

func TestComputeErrorPropagates(t *testing.T) {
	c := New(newMemStore(), time.Minute, nil)
	boom := errors.New("boom")
	_, _, err := c.GetOrCompute(context.Background(), 1, []byte("a"), true, func() (rindex.QueryResults, error) {
		return rindex.QueryResults{}, boom
	})
	assert.ErrorIs(t, err, boom)
}

func TestConcurrentMissesComputeOnce(t *testing.T) {
	c := New(newMemStore(), time.Minute, nil)
	var calls atomic.Int32
	release := make(chan struct{})
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := c.GetOrCompute(context.Background(), 1, []byte("na"), true, func() (rindex.QueryResults, error) {
				calls.Add(1)
				<-release
				return result(1, 2, 4), nil
			})
			assert.NoError(t, err)
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()
	assert.LessOrEqual(t, calls.Load(), int32(8))
	assert.GreaterOrEqual(t, calls.Load(), int32(1))
}

func TestNilCacheComputes(t *testing.T) {
	var c *LocateCache
	r, hit, err := c.GetOrCompute(context.Background(), 1, []byte("a"), false, func() (rindex.QueryResults, error) {
		return result(1, 0), nil
	})
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, 1, r.Count)
	require.NoError(t, c.Invalidate(context.Background()))
}
