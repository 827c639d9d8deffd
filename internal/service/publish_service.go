// Package service contains the service layer for the Marketcore API
package service

import (
	"context"
	"time"

	"github.com/lib/pq"
	"github.com/marketbots/marketcore/internal/repository"
	"github.com/marketbots/marketcore/pkg/utils/zaplogger"
	"github.com/redis/go-redis/v9"
)

// PostgresTickChannel is notified by the archive flush.
var PostgresTickChannel = repository.TickChannel

// RedisTickChannel receives the republished payloads.
var RedisTickChannel = repository.TickChannel

// PublishService bridges archive flush notifications from Postgres to a
// Redis channel so out-of-process consumers can follow the tick flow
// without a database connection.
type PublishService struct {
	redisClient *redis.Client
	pgConnStr   string
}

// NewPublishService creates the Postgres-to-Redis bridge.
func NewPublishService(redisClient *redis.Client, pgConnStr string) *PublishService {
	return &PublishService{
		redisClient: redisClient,
		pgConnStr:   pgConnStr,
	}
}

// Run listens on the Postgres tick channel and republishes every payload to
// Redis until ctx is cancelled.
func (s *PublishService) Run(ctx context.Context) {
	listener := pq.NewListener(s.pgConnStr, 10*time.Second, time.Minute, nil)
	defer listener.Close()
	if err := listener.Listen(PostgresTickChannel); err != nil {
		zaplogger.Error("Failed to listen on Postgres channel", zaplogger.Fields{
			"channel": PostgresTickChannel,
			"error":   err.Error(),
		})
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case n := <-listener.Notify:
			if n == nil {
				continue
			}
			if err := s.redisClient.Publish(ctx, RedisTickChannel, n.Extra).Err(); err != nil {
				zaplogger.Error("Failed to publish to Redis", zaplogger.Fields{"error": err})
			}
		case <-time.After(90 * time.Second):
			go func() {
				if err := listener.Ping(); err != nil {
					zaplogger.Error("Error pinging PostgreSQL", zaplogger.Fields{"error": err})
				}
			}()
		}
	}
}
