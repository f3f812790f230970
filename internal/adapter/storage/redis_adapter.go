package storage

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	stockKeyPrefix    = "stock:"
	idempotencyKeyTTL = 24 * time.Hour
)

var decrementAvailableScript = redis.NewScript(`
local key = KEYS[1]
local qty = tonumber(ARGV[1])

local current = redis.call('GET', key)
if not current then
	return 0
end

current = tonumber(current)
if current >= qty then
	redis.call('DECRBY', key, qty)
	return 1
end

return 0
`)

// RedisAdapter carries the advisory available-stock gauge and request
// idempotency keys. The gauge rejects doomed reservation attempts cheaply;
// the coordinator remains the authoritative check.
type RedisAdapter struct {
	client *redis.Client
}

func NewRedisAdapter(client *redis.Client) *RedisAdapter {
	return &RedisAdapter{client: client}
}

func (r *RedisAdapter) SetAvailable(ctx context.Context, lotID uuid.UUID, available int) error {
	return r.client.Set(ctx, stockKeyPrefix+lotID.String(), available, 0).Err()
}

func (r *RedisAdapter) DecrementAvailable(ctx context.Context, lotID uuid.UUID, qty int) (bool, error) {
	key := stockKeyPrefix + lotID.String()

	result, err := decrementAvailableScript.Run(ctx, r.client, []string{key}, qty).Int()
	if err != nil {
		return false, err
	}
	return result == 1, nil
}

func (r *RedisAdapter) IncrementAvailable(ctx context.Context, lotID uuid.UUID, qty int) error {
	return r.client.IncrBy(ctx, stockKeyPrefix+lotID.String(), int64(qty)).Err()
}

func (r *RedisAdapter) SetIdempotency(ctx context.Context, key string) (bool, error) {
	ok, err := r.client.SetNX(ctx, key, 1, idempotencyKeyTTL).Result()
	if err != nil {
		return false, err
	}
	return ok, nil
}
