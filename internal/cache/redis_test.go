package cache

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
)

// newTestRedis connects to REDIS_ADDR and scopes every key under a fresh
// namespace. Tests skip when no server is reachable.
func newTestRedis(t *testing.T) (*RedisCache, string) {
	t.Helper()
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	rc, err := NewRedisCache(ctx, RedisOptions{Addr: addr}, discardLogger())
	if err != nil {
		t.Skipf("redis unreachable: %v", err)
	}

	ns := "test:" + uuid.NewString() + ":"
	t.Cleanup(func() {
		rc.DeletePrefix(context.Background(), ns)
		rc.Close()
	})
	return rc, ns
}

func TestRedisCache_GetSetDelete(t *testing.T) {
	rc, ns := newTestRedis(t)
	ctx := context.Background()

	if got, err := rc.Get(ctx, ns+"missing"); err != nil || got != nil {
		t.Fatalf("Get(missing) = %q, %v; want nil, nil", got, err)
	}

	if err := rc.Set(ctx, ns+"k", []byte("v"), time.Minute); err != nil {
		t.Fatal(err)
	}
	if got, err := rc.Get(ctx, ns+"k"); err != nil || string(got) != "v" {
		t.Fatalf("Get(k) = %q, %v", got, err)
	}

	raw, err := rc.rdb.Get(ctx, redisPrefix+ns+"k").Result()
	if err != nil || raw != "v" {
		t.Errorf("key not stored under %s namespace: %q, %v", redisPrefix, raw, err)
	}

	if err := rc.Delete(ctx, ns+"k"); err != nil {
		t.Fatal(err)
	}
	if got, _ := rc.Get(ctx, ns+"k"); got != nil {
		t.Errorf("Get after Delete = %q", got)
	}
}

func TestRedisCache_DeletePrefix(t *testing.T) {
	rc, ns := newTestRedis(t)
	ctx := context.Background()

	// more keys than one SCAN batch
	const n = redisScanBatch*2 + 17
	for i := 0; i < n; i++ {
		if err := rc.Set(ctx, fmt.Sprintf("%scatalog:%d", ns, i), []byte("x"), time.Minute); err != nil {
			t.Fatal(err)
		}
	}
	if err := rc.Set(ctx, ns+"other", []byte("keep"), time.Minute); err != nil {
		t.Fatal(err)
	}

	removed, err := rc.DeletePrefix(ctx, ns+KeyCatalogPrefix)
	if err != nil {
		t.Fatal(err)
	}
	if removed != n {
		t.Errorf("removed %d keys, want %d", removed, n)
	}
	if got, _ := rc.Get(ctx, ns+"other"); string(got) != "keep" {
		t.Errorf("unrelated key = %q, want keep", got)
	}
}

func TestRedisCache_Compressed(t *testing.T) {
	rc, ns := newTestRedis(t)
	ctx := context.Background()

	if err := SetCompressed(ctx, rc, ns+"payload", []byte(`{"ok":true}`), time.Minute); err != nil {
		t.Fatal(err)
	}
	got, err := GetCompressed(ctx, rc, ns+"payload")
	if err != nil || string(got) != `{"ok":true}` {
		t.Errorf("GetCompressed = %q, %v", got, err)
	}
}
