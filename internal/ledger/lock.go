package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	lockTTL       = 10 * time.Second
	lockRetryWait = 50 * time.Millisecond
)

// RedisLocker sérialise les mutations de paiement d'une même course via
// SETNX : un release ne peut pas croiser un capture, et la réconciliation
// ne peut pas croiser une résolution de litige sur la même course
type RedisLocker struct {
	client *redis.Client
}

func NewRedisLocker(client *redis.Client) *RedisLocker {
	return &RedisLocker{client: client}
}

func (l *RedisLocker) WithTripLock(ctx context.Context, tripID string, fn func() error) error {
	key := "trip_lock:" + tripID
	token := uuid.NewString()

	deadline := time.Now().Add(lockTTL)
	for {
		ok, err := l.client.SetNX(ctx, key, token, lockTTL).Result()
		if err != nil {
			return fmt.Errorf("erreur acquisition verrou course %s: %v", tripID, err)
		}
		if ok {
			break
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("verrou course %s indisponible", tripID)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(lockRetryWait):
		}
	}

	defer func() {
		// Ne libérer que si le verrou nous appartient encore
		if val, err := l.client.Get(context.Background(), key).Result(); err == nil && val == token {
			l.client.Del(context.Background(), key)
		}
	}()

	return fn()
}
