// Package cache: кэш «код → абонемент» в Redis.
// Связка кода и абонемента не меняется, поэтому запись живёт до TTL без инвалидации.
// Redis необязателен: при ошибках и открытом breaker кэш просто промахивается.
package cache

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker/v2"
)

const keyPrefix = "subgate:code:"

type Codes struct {
	client  *redis.Client
	ttl     time.Duration
	breaker *gobreaker.CircuitBreaker[string]
	log     *slog.Logger
}

// Connect разбирает URL вида redis://host:6379/0.
func Connect(url string, ttl time.Duration, log *slog.Logger) (*Codes, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return New(redis.NewClient(opt), ttl, log), nil
}

func New(client *redis.Client, ttl time.Duration, log *slog.Logger) *Codes {
	c := &Codes{client: client, ttl: ttl, log: log}
	c.breaker = gobreaker.NewCircuitBreaker[string](gobreaker.Settings{
		Name:        "redis-codes",
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		// промах: не ошибка Redis
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, redis.Nil)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state changed", "name", name, "from", from.String(), "to", to.String())
		},
	})
	return c
}

func (c *Codes) Ping(ctx context.Context) error { return c.client.Ping(ctx).Err() }

func (c *Codes) Close() error { return c.client.Close() }

func (c *Codes) Get(ctx context.Context, code string) (int64, bool) {
	v, err := c.breaker.Execute(func() (string, error) {
		return c.client.Get(ctx, keyPrefix+code).Result()
	})
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.Debug("code cache get", "err", err)
		}
		return 0, false
	}
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

func (c *Codes) Set(ctx context.Context, code string, subscriptionID int64) {
	_, err := c.breaker.Execute(func() (string, error) {
		return c.client.Set(ctx, keyPrefix+code, subscriptionID, c.ttl).Result()
	})
	if err != nil {
		c.log.Debug("code cache set", "err", err)
	}
}

// State: состояние breaker для /health.
func (c *Codes) State() string { return c.breaker.State().String() }
