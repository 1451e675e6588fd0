package authz

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) *PermissionCache {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = client.Close()
		mr.Close()
	})
	return NewPermissionCache(client, time.Minute)
}

func TestFetchNamesCachesLoads(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()

	calls := 0
	loader := func(context.Context) ([]string, error) {
		calls++
		return []string{"view_post"}, nil
	}

	names, err := cache.FetchNames(ctx, 1, "web", loader)
	require.NoError(t, err)
	require.Equal(t, []string{"view_post"}, names)
	require.Equal(t, 1, calls)

	names, err = cache.FetchNames(ctx, 1, "web", loader)
	require.NoError(t, err)
	require.Equal(t, []string{"view_post"}, names)
	require.Equal(t, 1, calls)
}

func TestFetchNamesKeySpace(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()

	load := func(out []string) func(context.Context) ([]string, error) {
		return func(context.Context) ([]string, error) { return out, nil }
	}

	webNames, err := cache.FetchNames(ctx, 1, "web", load([]string{"view_post"}))
	require.NoError(t, err)
	require.Equal(t, []string{"view_post"}, webNames)

	// Different guard and different principal fill separate entries.
	apiNames, err := cache.FetchNames(ctx, 1, "api", load([]string{"create_token"}))
	require.NoError(t, err)
	require.Equal(t, []string{"create_token"}, apiNames)

	otherNames, err := cache.FetchNames(ctx, 2, "web", load([]string{"delete_post"}))
	require.NoError(t, err)
	require.Equal(t, []string{"delete_post"}, otherNames)
}

func TestInvalidateCacheBumpsVersion(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()

	calls := 0
	loader := func(context.Context) ([]string, error) {
		calls++
		if calls == 1 {
			return []string{"view_post"}, nil
		}
		return []string{"view_post", "delete_post"}, nil
	}

	names, err := cache.FetchNames(ctx, 1, "web", loader)
	require.NoError(t, err)
	require.Equal(t, []string{"view_post"}, names)

	before, err := cache.Version(ctx)
	require.NoError(t, err)
	require.NoError(t, cache.InvalidateCache(ctx))
	after, err := cache.Version(ctx)
	require.NoError(t, err)
	require.Equal(t, before+1, after)

	// The stale entry is bypassed and the loader runs again.
	names, err = cache.FetchNames(ctx, 1, "web", loader)
	require.NoError(t, err)
	require.Equal(t, []string{"view_post", "delete_post"}, names)
	require.Equal(t, 2, calls)
}

func TestNilClientPassesThrough(t *testing.T) {
	cache := NewPermissionCache(nil, time.Minute)
	ctx := context.Background()

	calls := 0
	loader := func(context.Context) ([]string, error) {
		calls++
		return []string{"view_post"}, nil
	}

	for i := 0; i < 3; i++ {
		names, err := cache.FetchNames(ctx, 1, "web", loader)
		require.NoError(t, err)
		require.Equal(t, []string{"view_post"}, names)
	}
	require.Equal(t, 3, calls)

	require.NoError(t, cache.InvalidateCache(ctx))
}
