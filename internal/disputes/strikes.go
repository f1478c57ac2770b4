package disputes

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/gocql/gocql"
	"github.com/redis/go-redis/v9"
)

// Canal Redis écouté par le sous-système de standing des chauffeurs
const strikeChannel = "driver:strikes"

// RedisStrikes publie les sanctions de réputation émises lors d'une
// résolution de litige défavorable au chauffeur
type RedisStrikes struct {
	client *redis.Client
}

func NewRedisStrikes(client *redis.Client) *RedisStrikes {
	return &RedisStrikes{client: client}
}

func (s *RedisStrikes) IssueStrike(ctx context.Context, driverID string, tripID gocql.UUID, reason, severity string) error {
	payload, err := json.Marshal(map[string]interface{}{
		"driver_id": driverID,
		"trip_id":   tripID.String(),
		"reason":    reason,
		"severity":  severity,
		"issued_at": time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return err
	}

	if err := s.client.Publish(ctx, strikeChannel, payload).Err(); err != nil {
		return err
	}
	log.Printf("🚫 Strike %s émis contre le chauffeur %s (course %s)", severity, driverID, tripID)
	return nil
}
