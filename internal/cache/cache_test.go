package cache

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kailas-cloud/coderag/internal/db"
	"github.com/kailas-cloud/coderag/internal/db/file"
)

type clock struct{ ms atomic.Int64 }

func newClock() *clock {
	c := &clock{}
	c.ms.Store(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC).UnixMilli())
	return c
}

func (c *clock) Now() time.Time          { return time.UnixMilli(c.ms.Load()) }
func (c *clock) Advance(d time.Duration) { c.ms.Add(d.Milliseconds()) }

type mockStore struct {
	getFn  func(ctx context.Context, key string) ([]byte, error)
	setFn  func(ctx context.Context, key string, value []byte) error
	delFn  func(ctx context.Context, key string) error
	keysFn func(ctx context.Context) ([]string, error)
}

func (m *mockStore) Ping(context.Context) error { return nil }
func (m *mockStore) Get(ctx context.Context, key string) ([]byte, error) {
	return m.getFn(ctx, key)
}
func (m *mockStore) Set(ctx context.Context, key string, value []byte) error {
	return m.setFn(ctx, key, value)
}
func (m *mockStore) Del(ctx context.Context, key string) error { return m.delFn(ctx, key) }
func (m *mockStore) Keys(ctx context.Context) ([]string, error) {
	return m.keysFn(ctx)
}

func failingStore() *mockStore {
	boom := errors.New("disk full")
	return &mockStore{
		getFn:  func(context.Context, string) ([]byte, error) { return nil, boom },
		setFn:  func(context.Context, string, []byte) error { return boom },
		delFn:  func(context.Context, string) error { return boom },
		keysFn: func(context.Context) ([]string, error) { return nil, boom },
	}
}

func fileStore(t *testing.T) *file.Store {
	t.Helper()
	s, err := file.NewStore(filepath.Join(t.TempDir(), "cache"))
	if err != nil {
		t.Fatalf("file.NewStore: %v", err)
	}
	return s
}

func TestGetSet(t *testing.T) {
	c := New[string](nil, nil, Options{})
	ctx := context.Background()

	if _, ok := c.Get(ctx, "k", false); ok {
		t.Fatal("expected miss on empty cache")
	}
	c.Set(ctx, "k", "v", time.Minute, false)
	if v, ok := c.Get(ctx, "k", false); !ok || v != "v" {
		t.Fatalf("Get() = %q, %v", v, ok)
	}
}

func TestTTL(t *testing.T) {
	c := New[string](nil, nil, Options{})
	ctx := context.Background()

	c.Set(ctx, "k", "v", 100*time.Millisecond, false)
	if _, ok := c.Get(ctx, "k", false); !ok {
		t.Fatal("expected value immediately after Set")
	}

	time.Sleep(150 * time.Millisecond)
	if _, ok := c.Get(ctx, "k", false); ok {
		t.Fatal("expected value to expire after 150ms")
	}
	if c.Len() != 0 {
		t.Errorf("Len() = %d, expired entry not removed", c.Len())
	}
}

func TestZeroTTLNeverExpires(t *testing.T) {
	clk := newClock()
	c := New[int](nil, nil, Options{Now: clk.Now})
	c.Set(context.Background(), "k", 1, 0, false)
	clk.Advance(24 * 365 * time.Hour)
	if _, ok := c.Get(context.Background(), "k", false); !ok {
		t.Fatal("zero TTL entry expired")
	}
}

func TestMemoryBoundEvictsOldest(t *testing.T) {
	c := New[int](nil, nil, Options{MaxEntries: 100})
	ctx := context.Background()

	for i := 0; i <= 100; i++ {
		c.Set(ctx, fmt.Sprintf("key%d", i), i, time.Hour, false)
	}
	if c.Len() != 100 {
		t.Fatalf("Len() = %d, want 100", c.Len())
	}
	if _, ok := c.Get(ctx, "key0", false); ok {
		t.Error("oldest entry key0 should have been evicted")
	}
	for _, k := range []string{"key1", "key50", "key100"} {
		if _, ok := c.Get(ctx, k, false); !ok {
			t.Errorf("%s missing", k)
		}
	}
}

func TestEvictionPrefersOlderTimestamp(t *testing.T) {
	clk := newClock()
	store := fileStore(t)
	ctx := context.Background()

	// Written to disk early, promoted into memory later with its original timestamp.
	writer := New[int](store, nil, Options{Name: "emb", Now: clk.Now})
	writer.Set(ctx, "old", 0, time.Hour, true)
	clk.Advance(time.Minute)

	c := New[int](store, nil, Options{Name: "emb", MaxEntries: 2, Now: clk.Now})
	c.Set(ctx, "a", 1, time.Hour, false)
	clk.Advance(time.Millisecond)
	if _, ok := c.Get(ctx, "old", true); !ok {
		t.Fatal("expected persistent hit")
	}
	clk.Advance(time.Millisecond)
	c.Set(ctx, "b", 2, time.Hour, false)

	if _, ok := c.Get(ctx, "old", false); ok {
		t.Error("promoted entry with the oldest timestamp should be evicted first")
	}
	if _, ok := c.Get(ctx, "a", false); !ok {
		t.Error("newer entry a evicted")
	}
}

func TestPersistentPromotion(t *testing.T) {
	store := fileStore(t)
	ctx := context.Background()

	first := New[[]float32](store, nil, Options{Name: "emb"})
	first.Set(ctx, "model:abc", []float32{1, 2, 3}, time.Hour, true)

	second := New[[]float32](store, nil, Options{Name: "emb"})
	if _, ok := second.Get(ctx, "model:abc", false); ok {
		t.Fatal("memory-only lookup must not consult the persistent tier")
	}
	v, ok := second.Get(ctx, "model:abc", true)
	if !ok || len(v) != 3 || v[2] != 3 {
		t.Fatalf("Get() = %v, %v", v, ok)
	}
	if second.Len() != 1 {
		t.Errorf("Len() = %d, want promoted entry in memory", second.Len())
	}
}

func TestPersistentExpiredIsDropped(t *testing.T) {
	clk := newClock()
	store := fileStore(t)
	ctx := context.Background()

	New[string](store, nil, Options{Name: "r", Now: clk.Now}).Set(ctx, "k", "v", time.Second, true)
	clk.Advance(2 * time.Second)

	c := New[string](store, nil, Options{Name: "r", Now: clk.Now})
	if _, ok := c.Get(ctx, "k", true); ok {
		t.Fatal("expired persistent entry returned")
	}
	if _, err := store.Get(ctx, "r:k"); !errors.Is(err, db.ErrKeyNotFound) {
		t.Errorf("expired record still on disk: %v", err)
	}
}

func TestSweep(t *testing.T) {
	clk := newClock()
	store := fileStore(t)
	ctx := context.Background()

	c := New[string](store, nil, Options{Name: "emb", Now: clk.Now})
	c.Set(ctx, "short", "v", time.Second, true)
	c.Set(ctx, "long", "v", time.Hour, true)
	if err := store.Set(ctx, "emb:bad", []byte("{not json")); err != nil {
		t.Fatalf("seed corrupt record: %v", err)
	}
	if err := store.Set(ctx, "other:bad", []byte("{not json")); err != nil {
		t.Fatalf("seed foreign record: %v", err)
	}

	clk.Advance(2 * time.Second)
	removed := c.Sweep(ctx)

	// short in memory, short on disk, corrupt record.
	if removed != 3 {
		t.Errorf("Sweep() removed %d, want 3", removed)
	}
	if c.Len() != 1 {
		t.Errorf("Len() = %d, want 1", c.Len())
	}
	if _, err := store.Get(ctx, "emb:bad"); !errors.Is(err, db.ErrKeyNotFound) {
		t.Error("corrupt record not removed")
	}
	if _, err := store.Get(ctx, "other:bad"); err != nil {
		t.Error("records of other caches must not be touched")
	}
	if _, err := store.Get(ctx, "emb:long"); err != nil {
		t.Error("live record removed")
	}
}

func TestStorageErrorsAreNotFatal(t *testing.T) {
	c := New[string](failingStore(), nil, Options{Name: "emb"})
	ctx := context.Background()

	c.Set(ctx, "k", "v", time.Hour, true)
	if v, ok := c.Get(ctx, "k", true); !ok || v != "v" {
		t.Fatalf("memory tier should still serve: %q, %v", v, ok)
	}
	if _, ok := c.Get(ctx, "missing", true); ok {
		t.Fatal("expected miss")
	}

	c.Remove(ctx, "k")
	if c.Len() != 0 {
		t.Errorf("Remove did not clear memory: %d", c.Len())
	}

	c.Set(ctx, "a", "1", time.Hour, false)
	c.Clear(ctx)
	if c.Len() != 0 {
		t.Errorf("Clear did not clear memory: %d", c.Len())
	}
	_ = c.Sweep(ctx)
}

func TestClearOnlyOwnKeys(t *testing.T) {
	store := fileStore(t)
	ctx := context.Background()

	emb := New[string](store, nil, Options{Name: "emb"})
	resp := New[string](store, nil, Options{Name: "resp"})
	emb.Set(ctx, "k", "v", time.Hour, true)
	resp.Set(ctx, "k", "v", time.Hour, true)

	emb.Clear(ctx)

	if _, err := store.Get(ctx, "emb:k"); !errors.Is(err, db.ErrKeyNotFound) {
		t.Error("emb record not cleared")
	}
	if _, err := store.Get(ctx, "resp:k"); err != nil {
		t.Error("resp record cleared by another cache")
	}
}

func TestStartClose(t *testing.T) {
	clk := newClock()
	c := New[string](nil, nil, Options{SweepInterval: 5 * time.Millisecond, Now: clk.Now})
	ctx := context.Background()

	c.Set(ctx, "k", "v", time.Second, false)
	clk.Advance(2 * time.Second)
	c.Start(ctx)

	deadline := time.Now().Add(time.Second)
	for c.Len() != 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	c.Close()
	if c.Len() != 0 {
		t.Fatal("background sweeper did not remove expired entry")
	}
	c.Close()
}

func TestCloseWithoutStart(t *testing.T) {
	c := New[string](nil, nil, Options{})
	c.Close()
	c.Start(context.Background())
}
