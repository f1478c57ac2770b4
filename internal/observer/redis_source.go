package observer

import (
	"context"
	"encoding/json"
	"log"

	"github.com/redis/go-redis/v9"
)

// RedisSource branche l'observer sur le flux Redis pub/sub alimenté par le
// backend dispatch et les clients chauffeurs
type RedisSource struct {
	client *redis.Client
}

func NewRedisSource(client *redis.Client) *RedisSource {
	return &RedisSource{client: client}
}

func (s *RedisSource) Subscribe(ctx context.Context, tripID string) (<-chan StatusUpdate, func(), error) {
	pubsub := s.client.Subscribe(ctx, StatusChannel(tripID))

	// Forcer l'établissement de l'abonnement avant de retourner
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, nil, err
	}

	updates := make(chan StatusUpdate, 8)
	go func() {
		defer close(updates)
		for msg := range pubsub.Channel() {
			var u StatusUpdate
			if err := json.Unmarshal([]byte(msg.Payload), &u); err != nil {
				log.Printf("⚠️ Payload de statut illisible pour la course %s: %v", tripID, err)
				continue
			}
			updates <- u
		}
	}()

	teardown := func() {
		pubsub.Close()
	}
	return updates, teardown, nil
}
