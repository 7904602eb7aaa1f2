package store

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis backs the detection queue and the health endpoint.
type Redis struct {
	Client *redis.Client
}

// NewRedis connects with the given per-operation timeout. Queue consumers
// block on BRPOP with their own deadline, so the timeout here only guards
// publishes and pings.
func NewRedis(addr string, timeout time.Duration) *Redis {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  timeout,
		ReadTimeout:  timeout,
		WriteTimeout: timeout,
	})
	return &Redis{Client: client}
}

// Healthy reports whether the backend answers a ping. Both the /healthz
// endpoint and the worker's startup check call it.
func (r *Redis) Healthy(ctx context.Context) bool {
	if r == nil || r.Client == nil {
		return false
	}
	return r.Client.Ping(ctx).Err() == nil
}
