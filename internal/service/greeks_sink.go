// Package service contains the service layer for the Marketcore API
package service

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/marketbots/marketcore/pkg/utils/zaplogger"
	"github.com/redis/go-redis/v9"
)

// RedisGreeksChannel carries completed computations to external consumers.
var RedisGreeksChannel = "CH:CORE:GREEKS"

// GreeksCache is the default AnalyticsSink: it retains the latest result
// per token for the query API and optionally republishes each result on a
// Redis channel.
type GreeksCache struct {
	redisClient *redis.Client

	mu     sync.RWMutex
	latest map[uint32]GreeksResult
}

// NewGreeksCache creates the sink. redisClient may be nil.
func NewGreeksCache(redisClient *redis.Client) *GreeksCache {
	return &GreeksCache{
		redisClient: redisClient,
		latest:      make(map[uint32]GreeksResult),
	}
}

// OnGreeks implements AnalyticsSink.
func (c *GreeksCache) OnGreeks(result GreeksResult) {
	c.mu.Lock()
	c.latest[result.Token] = result
	c.mu.Unlock()

	if c.redisClient == nil {
		return
	}
	payload, err := json.Marshal(result)
	if err != nil {
		return
	}
	if err := c.redisClient.Publish(context.Background(), RedisGreeksChannel, payload).Err(); err != nil {
		zaplogger.Debug("failed to publish greeks", zaplogger.Fields{
			"token": result.Token,
			"error": err.Error(),
		})
	}
}

// Latest returns the most recent result for a token.
func (c *GreeksCache) Latest(token uint32) (GreeksResult, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	result, ok := c.latest[token]
	return result, ok
}
