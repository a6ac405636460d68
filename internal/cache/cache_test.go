package cache

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hanpama/apqgate/internal/apq"
)

func openStores(t *testing.T) map[string]Store {
	t.Helper()
	mem, err := NewMemory(1<<20, 0)
	require.NoError(t, err)
	bdg, err := OpenBadger("", 0, nil)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = mem.Close()
		_ = bdg.Close()
	})
	return map[string]Store{BackendMemory: mem, BackendBadger: bdg}
}

func TestStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	q := "query Hello { hello }"
	h := apq.Hash(q)
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			_, found, err := s.Get(ctx, h, apq.CacheOptions{})
			require.NoError(t, err)
			require.False(t, found)

			require.NoError(t, s.Put(ctx, h, q, apq.CacheOptions{}))
			got, found, err := s.Get(ctx, h, apq.CacheOptions{})
			require.NoError(t, err)
			require.True(t, found)
			require.Equal(t, q, got)

			// Overwrite with the same text is harmless.
			require.NoError(t, s.Put(ctx, h, q, apq.CacheOptions{}))
			got, _, _ = s.Get(ctx, h, apq.CacheOptions{})
			require.Equal(t, q, got)
		})
	}
}

func TestStoreConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			var wg sync.WaitGroup
			for i := 0; i < 16; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					q := fmt.Sprintf("{ field%d }", i%4)
					if err := s.Put(ctx, apq.Hash(q), q, apq.CacheOptions{}); err != nil {
						t.Errorf("put: %v", err)
					}
					if _, _, err := s.Get(ctx, apq.Hash(q), apq.CacheOptions{}); err != nil {
						t.Errorf("get: %v", err)
					}
				}(i)
			}
			wg.Wait()
			for i := 0; i < 4; i++ {
				q := fmt.Sprintf("{ field%d }", i)
				got, found, err := s.Get(ctx, apq.Hash(q), apq.CacheOptions{})
				require.NoError(t, err)
				require.True(t, found, q)
				require.Equal(t, q, got)
			}
		})
	}
}

func TestStoreHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	for name, s := range openStores(t) {
		_, _, err := s.Get(ctx, "h", apq.CacheOptions{})
		require.ErrorIs(t, err, context.Canceled, name)
		require.ErrorIs(t, s.Put(ctx, "h", "q", apq.CacheOptions{}), context.Canceled, name)
	}
}

func TestBadgerTTL(t *testing.T) {
	s, err := OpenBadger("", 0, nil)
	require.NoError(t, err)
	defer s.Close()
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "h", "{ a }", apq.CacheOptions{TTL: time.Second}))
	_, found, err := s.Get(ctx, "h", apq.CacheOptions{})
	require.NoError(t, err)
	require.True(t, found)

	// Badger expiry has one-second granularity.
	time.Sleep(2100 * time.Millisecond)
	_, found, err = s.Get(ctx, "h", apq.CacheOptions{})
	require.NoError(t, err)
	require.False(t, found)
}

func TestBadgerSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	q := "{ persisted }"

	s, err := OpenBadger(dir, 0, nil)
	require.NoError(t, err)
	require.NoError(t, s.Put(ctx, apq.Hash(q), q, apq.CacheOptions{}))
	require.NoError(t, s.Close())

	s, err = OpenBadger(dir, 0, nil)
	require.NoError(t, err)
	defer s.Close()
	got, found, err := s.Get(ctx, apq.Hash(q), apq.CacheOptions{})
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, q, got)
}

func TestMemoryRejectsOversizedEntry(t *testing.T) {
	s, err := NewMemory(16, 0)
	require.NoError(t, err)
	defer s.Close()
	q := "query Big { aVeryLongFieldName anotherLongFieldName }"
	err = s.Put(context.Background(), apq.Hash(q), q, apq.CacheOptions{})
	require.ErrorIs(t, err, ErrRejected)
	_, found, err := s.Get(context.Background(), apq.Hash(q), apq.CacheOptions{})
	require.NoError(t, err)
	require.False(t, found)
}

func TestOpen(t *testing.T) {
	s, err := Open(Config{Backend: "memory", MaxSize: "1MiB"}, nil)
	require.NoError(t, err)
	require.IsType(t, &Memory{}, s)
	require.NoError(t, s.Close())

	s, err = Open(Config{}, nil)
	require.NoError(t, err)
	require.IsType(t, &Memory{}, s)
	require.NoError(t, s.Close())

	s, err = Open(Config{Backend: "Badger"}, nil)
	require.NoError(t, err)
	require.IsType(t, &Badger{}, s)
	require.NoError(t, s.Close())

	_, err = Open(Config{Backend: "redis"}, nil)
	require.ErrorContains(t, err, "unknown backend")

	_, err = Open(Config{MaxSize: "lots"}, nil)
	require.ErrorContains(t, err, "invalid max size")

	_, err = NewMemory(0, 0)
	require.Error(t, err)
}
