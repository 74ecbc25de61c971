package database

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"chainportal-mint-go/internal/store"
)

func TestTryLock_ConcurrentCallersExactlyOneWins(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	ctx := context.Background()
	const callers = 16

	var wg sync.WaitGroup
	results := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- service.TryLock(ctx, "shared-sig")
		}()
	}
	wg.Wait()
	close(results)

	wins := 0
	for err := range results {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, store.ErrLockHeld):
		default:
			t.Errorf("Unexpected error: %v", err)
		}
	}
	if wins != 1 {
		t.Errorf("Expected exactly 1 lock holder, got %d", wins)
	}
}

func TestTryLock_ExpiredLockIsPurged(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	ctx := context.Background()
	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	service.now = func() time.Time { return base }

	if err := service.TryLock(ctx, "sig1"); err != nil {
		t.Fatalf("TryLock failed: %v", err)
	}

	service.now = func() time.Time { return base.Add(23 * time.Hour) }
	if err := service.TryLock(ctx, "sig1"); !errors.Is(err, store.ErrLockHeld) {
		t.Fatalf("Expected ErrLockHeld inside the TTL, got %v", err)
	}

	service.now = func() time.Time { return base.Add(25 * time.Hour) }
	if err := service.TryLock(ctx, "sig1"); err != nil {
		t.Errorf("Expected expired lock to be purged, got %v", err)
	}
}

func TestReleaseLock(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	ctx := context.Background()
	if err := service.TryLock(ctx, "sig1"); err != nil {
		t.Fatalf("TryLock failed: %v", err)
	}
	if err := service.ReleaseLock(ctx, "sig1"); err != nil {
		t.Fatalf("ReleaseLock failed: %v", err)
	}
	if err := service.TryLock(ctx, "sig1"); err != nil {
		t.Errorf("Expected lock to be free after release, got %v", err)
	}
}

func TestPurgeExpiredLocks(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	ctx := context.Background()
	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	service.now = func() time.Time { return base }
	for _, sig := range []string{"a", "b"} {
		if err := service.TryLock(ctx, sig); err != nil {
			t.Fatalf("TryLock(%s) failed: %v", sig, err)
		}
	}
	service.now = func() time.Time { return base.Add(12 * time.Hour) }
	if err := service.TryLock(ctx, "c"); err != nil {
		t.Fatalf("TryLock(c) failed: %v", err)
	}

	service.now = func() time.Time { return base.Add(25 * time.Hour) }
	purged, err := service.PurgeExpiredLocks(ctx)
	if err != nil {
		t.Fatalf("PurgeExpiredLocks failed: %v", err)
	}
	if purged != 2 {
		t.Errorf("Expected 2 purged locks, got %d", purged)
	}
}

func TestTryLock_EmptySignature(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	if err := service.TryLock(context.Background(), ""); err == nil {
		t.Error("Expected error for empty signature")
	}
}
