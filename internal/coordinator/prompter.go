package coordinator

import (
	"context"
	"encoding/json"
	"log"

	"github.com/redis/go-redis/v9"
)

// RedisPrompter pousse la demande de décision (continuer ou annuler) sur le
// canal écouté par l'app du passager
type RedisPrompter struct {
	client *redis.Client
}

func NewRedisPrompter(client *redis.Client) *RedisPrompter {
	return &RedisPrompter{client: client}
}

func DecisionChannel(tripID string) string {
	return "trip:decision:" + tripID
}

func (p *RedisPrompter) AskRider(ctx context.Context, tripID string, attempt int) {
	payload, _ := json.Marshal(map[string]interface{}{
		"type":               "decision_required",
		"trip_id":            tripID,
		"attempt":            attempt,
		"attempts_remaining": TotalMaxRetries - attempt,
	})
	if err := p.client.Publish(ctx, DecisionChannel(tripID), payload).Err(); err != nil {
		log.Printf("⚠️ Demande de décision non diffusée pour %s: %v", tripID, err)
	}
}
