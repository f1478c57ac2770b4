package disputes

import (
	"context"
	"encoding/json"
	"log"

	"github.com/redis/go-redis/v9"

	"koursa_back_end/internal/models"
	services "koursa_back_end/internal/service"
)

// File Redis consommée par la console des opérations
const opsDisputeQueue = "ops:disputes"

// RedisOpsQueue pousse chaque nouveau litige vers la file ops et
// l'indexe dans Elasticsearch pour la recherche
type RedisOpsQueue struct {
	client *redis.Client
}

func NewRedisOpsQueue(client *redis.Client) *RedisOpsQueue {
	return &RedisOpsQueue{client: client}
}

func (q *RedisOpsQueue) EnqueueDispute(ctx context.Context, d *models.Dispute) {
	payload, err := json.Marshal(d)
	if err != nil {
		log.Printf("❌ Sérialisation du litige %s impossible: %v", d.ID, err)
		return
	}
	if err := q.client.RPush(ctx, opsDisputeQueue, payload).Err(); err != nil {
		// La file est un confort ops, le litige est déjà persisté en base
		log.Printf("⚠️ Litige %s non poussé vers la file ops: %v", d.ID, err)
	}

	services.IndexDispute(d)
}
