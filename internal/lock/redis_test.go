package lock_test

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/septivank/electricity-billing/internal/lock"
	"go.uber.org/fx/fxtest"
	"go.uber.org/zap"
)

func newRedisLock(t *testing.T, wait time.Duration) *lock.Redis {
	t.Helper()

	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}

	lc := fxtest.NewLifecycle(t)
	client, err := lock.NewRedisClient(lc, zap.NewNop(), addr, os.Getenv("TEST_REDIS_PASSWORD"))
	if err != nil {
		t.Fatalf("NewRedisClient failed: %v", err)
	}
	lc.RequireStart()
	t.Cleanup(lc.RequireStop)

	return lock.NewRedis(client, 5*time.Second, wait, zap.NewNop())
}

func TestRedis_ExclusiveUntilReleased(t *testing.T) {
	locker := newRedisLock(t, 50*time.Millisecond)
	key := "test-" + t.Name()

	unlock, err := locker.Lock(context.Background(), key)
	if err != nil {
		t.Fatalf("Lock failed: %v", err)
	}

	if _, err := locker.Lock(context.Background(), key); !errors.Is(err, lock.ErrLockTimeout) {
		t.Errorf("Expected lock timeout while held, got %v", err)
	}

	unlock()

	unlock, err = locker.Lock(context.Background(), key)
	if err != nil {
		t.Fatalf("Expected lock after release: %v", err)
	}
	unlock()
}

func TestNewRedisClient_EmptyAddr(t *testing.T) {
	lc := fxtest.NewLifecycle(t)
	if _, err := lock.NewRedisClient(lc, zap.NewNop(), "  ", ""); err == nil {
		t.Error("Expected error for empty addr")
	}
}
