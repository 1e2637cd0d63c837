package scoring

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/yungbote/roomscore-backend/internal/logger"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	return log
}

func TestKeySchemeCacheMemoizes(t *testing.T) {
	cache := NewKeySchemeCache(testLogger(t))
	var calls int32
	probe := func(ctx context.Context) (KeyScheme, error) {
		atomic.AddInt32(&calls, 1)
		return SchemeLegacy, nil
	}

	for i := 0; i < 3; i++ {
		scheme, err := cache.Get(context.Background(), "room-1", probe)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if scheme != SchemeLegacy {
			t.Fatalf("scheme = %v, want legacy", scheme)
		}
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("probe calls = %d, want 1", got)
	}
}

func TestKeySchemeCacheConvergesUnderConcurrency(t *testing.T) {
	cache := NewKeySchemeCache(testLogger(t))
	var calls int32
	probe := func(ctx context.Context) (KeyScheme, error) {
		atomic.AddInt32(&calls, 1)
		return SchemeLegacy, nil
	}

	const workers = 16
	results := make([]KeyScheme, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			scheme, err := cache.Get(context.Background(), "room-1", probe)
			if err != nil {
				t.Errorf("Get: %v", err)
				return
			}
			results[i] = scheme
		}()
	}
	wg.Wait()

	for i, scheme := range results {
		if scheme != SchemeLegacy {
			t.Fatalf("worker %d saw scheme %v, want legacy", i, scheme)
		}
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("probe calls = %d, want 1 (single-flight)", got)
	}
}

func TestKeySchemeCacheErrorNotCached(t *testing.T) {
	cache := NewKeySchemeCache(testLogger(t))
	var calls int32
	failing := func(ctx context.Context) (KeyScheme, error) {
		atomic.AddInt32(&calls, 1)
		return SchemeCurrent, context.DeadlineExceeded
	}
	if _, err := cache.Get(context.Background(), "room-1", failing); err == nil {
		t.Fatal("expected probe error to surface")
	}
	ok := func(ctx context.Context) (KeyScheme, error) {
		atomic.AddInt32(&calls, 1)
		return SchemeCurrent, nil
	}
	scheme, err := cache.Get(context.Background(), "room-1", ok)
	if err != nil {
		t.Fatalf("Get after failed probe: %v", err)
	}
	if scheme != SchemeCurrent {
		t.Fatalf("scheme = %v, want current", scheme)
	}
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Fatalf("probe calls = %d, want 2", got)
	}
}

func TestKeySchemeCacheIsPerRoom(t *testing.T) {
	cache := NewKeySchemeCache(testLogger(t))
	legacyProbe := func(ctx context.Context) (KeyScheme, error) { return SchemeLegacy, nil }
	currentProbe := func(ctx context.Context) (KeyScheme, error) { return SchemeCurrent, nil }

	a, _ := cache.Get(context.Background(), "room-a", legacyProbe)
	b, _ := cache.Get(context.Background(), "room-b", currentProbe)
	if a != SchemeLegacy || b != SchemeCurrent {
		t.Fatalf("schemes = %v/%v, want legacy/current", a, b)
	}
}
