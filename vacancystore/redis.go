package vacancystore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"hhscan/model"
)

const (
	DefaultRedisKey = "hhscan:vacancies:latest"
	DefaultRedisTTL = 48 * time.Hour
)

type RedisConfig struct {
	URL      string
	Password string
	Key      string
	TTL      time.Duration
}

// Redis keeps the latest result as one JSON document with an expiry, next to
// a timestamp key recording when it was written.
type Redis struct {
	rdb *redis.Client
	key string
	ttl time.Duration
}

func NewRedis(ctx context.Context, cfg RedisConfig) (*Redis, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("vacancystore: parse redis url: %w", err)
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}
	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("vacancystore: connect redis: %w", err)
	}
	return newRedis(rdb, cfg), nil
}

func newRedis(rdb *redis.Client, cfg RedisConfig) *Redis {
	key := cfg.Key
	if key == "" {
		key = DefaultRedisKey
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultRedisTTL
	}
	return &Redis{rdb: rdb, key: key, ttl: ttl}
}

func (r *Redis) Name() string { return "redis" }

func (r *Redis) Close() error {
	return r.rdb.Close()
}

func (r *Redis) Save(ctx context.Context, vacancies []model.Vacancy) error {
	if vacancies == nil {
		vacancies = []model.Vacancy{}
	}
	payload, err := json.Marshal(vacancies)
	if err != nil {
		return fmt.Errorf("vacancystore: encode: %w", err)
	}
	_, err = r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, r.key, payload, r.ttl)
		pipe.Set(ctx, r.key+":updated_at", time.Now().UTC().Format(time.RFC3339), r.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("vacancystore: redis set %s: %w", r.key, err)
	}
	return nil
}
