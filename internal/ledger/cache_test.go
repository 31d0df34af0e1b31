package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) *ViewCache {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewViewCache(client, time.Minute)
}

func TestViewCacheServesCachedView(t *testing.T) {
	ctx := context.Background()
	cache := newTestCache(t)

	loads := 0
	loader := func(context.Context) (*LedgerView, error) {
		loads++
		return &LedgerView{ObligationID: 1, Kind: KindReceivable, TotalPaid: 150000}, nil
	}

	first, err := cache.Fetch(ctx, KindReceivable, 1, 7, loader)
	require.NoError(t, err)
	require.InDelta(t, 150000, first.TotalPaid, AmountTolerance)
	require.Equal(t, 1, loads)

	second, err := cache.Fetch(ctx, KindReceivable, 1, 7, loader)
	require.NoError(t, err)
	require.InDelta(t, 150000, second.TotalPaid, AmountTolerance)
	require.Equal(t, 1, loads)
}

func TestViewCacheBumpInvalidates(t *testing.T) {
	ctx := context.Background()
	cache := newTestCache(t)

	loads := 0
	loader := func(context.Context) (*LedgerView, error) {
		loads++
		return &LedgerView{ObligationID: 1, TotalPaid: float64(loads)}, nil
	}

	_, err := cache.Fetch(ctx, KindReceivable, 1, 7, loader)
	require.NoError(t, err)
	require.NoError(t, cache.Bump(ctx))

	view, err := cache.Fetch(ctx, KindReceivable, 1, 7, loader)
	require.NoError(t, err)
	require.Equal(t, 2, loads)
	require.InDelta(t, 2, view.TotalPaid, AmountTolerance)
}

func TestViewCacheKeysScopedToOwner(t *testing.T) {
	ctx := context.Background()
	cache := newTestCache(t)

	loads := 0
	loader := func(context.Context) (*LedgerView, error) {
		loads++
		return &LedgerView{ObligationID: 1}, nil
	}

	_, err := cache.Fetch(ctx, KindReceivable, 1, 7, loader)
	require.NoError(t, err)
	_, err = cache.Fetch(ctx, KindReceivable, 1, 8, loader)
	require.NoError(t, err)
	require.Equal(t, 2, loads)
}

func TestViewCacheNilSafe(t *testing.T) {
	ctx := context.Background()
	var cache *ViewCache

	view, err := cache.Fetch(ctx, KindReceivable, 1, 7, func(context.Context) (*LedgerView, error) {
		return &LedgerView{ObligationID: 1}, nil
	})
	require.NoError(t, err)
	require.Equal(t, int64(1), view.ObligationID)
	require.NoError(t, cache.Bump(ctx))
}
