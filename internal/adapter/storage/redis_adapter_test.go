package storage

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

func getRedisClient(t *testing.T) *redis.Client {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Skipf("Redis not available: %v", err)
	}
	return client
}

func TestDecrementAvailable_Success(t *testing.T) {
	client := getRedisClient(t)
	defer client.Close()

	ctx := context.Background()
	adapter := NewRedisAdapter(client)
	lotID := uuid.New()
	defer client.Del(ctx, stockKeyPrefix+lotID.String())

	if err := adapter.SetAvailable(ctx, lotID, 10); err != nil {
		t.Fatalf("set available: %v", err)
	}

	ok, err := adapter.DecrementAvailable(ctx, lotID, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Error("expected success")
	}

	gauge, _ := client.Get(ctx, stockKeyPrefix+lotID.String()).Int()
	if gauge != 7 {
		t.Errorf("expected gauge 7, got %d", gauge)
	}
}

func TestDecrementAvailable_Insufficient(t *testing.T) {
	client := getRedisClient(t)
	defer client.Close()

	ctx := context.Background()
	adapter := NewRedisAdapter(client)
	lotID := uuid.New()
	defer client.Del(ctx, stockKeyPrefix+lotID.String())

	if err := adapter.SetAvailable(ctx, lotID, 5); err != nil {
		t.Fatalf("set available: %v", err)
	}

	ok, err := adapter.DecrementAvailable(ctx, lotID, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Error("expected failure for insufficient gauge")
	}

	// Gauge untouched on rejection
	gauge, _ := client.Get(ctx, stockKeyPrefix+lotID.String()).Int()
	if gauge != 5 {
		t.Errorf("expected gauge 5, got %d", gauge)
	}
}

func TestDecrementAvailable_UnknownLot(t *testing.T) {
	client := getRedisClient(t)
	defer client.Close()

	adapter := NewRedisAdapter(client)

	ok, err := adapter.DecrementAvailable(context.Background(), uuid.New(), 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Error("expected failure for unseeded gauge")
	}
}

func TestDecrementAvailable_Concurrent(t *testing.T) {
	client := getRedisClient(t)
	defer client.Close()

	ctx := context.Background()
	adapter := NewRedisAdapter(client)
	lotID := uuid.New()
	defer client.Del(ctx, stockKeyPrefix+lotID.String())

	initial := 20
	totalRequests := 50

	if err := adapter.SetAvailable(ctx, lotID, initial); err != nil {
		t.Fatalf("set available: %v", err)
	}

	var successCount atomic.Int32
	var wg sync.WaitGroup

	for i := 0; i < totalRequests; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := adapter.DecrementAvailable(ctx, lotID, 1)
			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}
			if ok {
				successCount.Add(1)
			}
		}()
	}
	wg.Wait()

	if successCount.Load() != int32(initial) {
		t.Errorf("expected %d successes, got %d", initial, successCount.Load())
	}

	gauge, _ := client.Get(ctx, stockKeyPrefix+lotID.String()).Int()
	if gauge != 0 {
		t.Errorf("expected gauge 0, got %d", gauge)
	}
}

func TestIncrementAvailable(t *testing.T) {
	client := getRedisClient(t)
	defer client.Close()

	ctx := context.Background()
	adapter := NewRedisAdapter(client)
	lotID := uuid.New()
	defer client.Del(ctx, stockKeyPrefix+lotID.String())

	if err := adapter.SetAvailable(ctx, lotID, 5); err != nil {
		t.Fatalf("set available: %v", err)
	}

	if err := adapter.IncrementAvailable(ctx, lotID, 3); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	gauge, _ := client.Get(ctx, stockKeyPrefix+lotID.String()).Int()
	if gauge != 8 {
		t.Errorf("expected gauge 8, got %d", gauge)
	}
}

func TestSetIdempotency_Success(t *testing.T) {
	client := getRedisClient(t)
	defer client.Close()

	ctx := context.Background()
	adapter := NewRedisAdapter(client)
	key := "reserve:" + uuid.NewString()
	defer client.Del(ctx, key)

	ok, err := adapter.SetIdempotency(ctx, key)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Error("expected first call to succeed")
	}

	ok, err = adapter.SetIdempotency(ctx, key)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Error("expected second call to fail")
	}
}

func TestSetIdempotency_Concurrent(t *testing.T) {
	client := getRedisClient(t)
	defer client.Close()

	ctx := context.Background()
	adapter := NewRedisAdapter(client)
	key := "reserve:" + uuid.NewString()
	defer client.Del(ctx, key)

	var successCount atomic.Int32
	var wg sync.WaitGroup
	concurrency := 100

	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := adapter.SetIdempotency(ctx, key)
			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}
			if ok {
				successCount.Add(1)
			}
		}()
	}
	wg.Wait()

	if successCount.Load() != 1 {
		t.Errorf("expected exactly 1 success, got %d", successCount.Load())
	}
}
