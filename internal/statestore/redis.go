package statestore

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig configures the shared Redis-backed Store: just the
// connection-tuning fields a state store actually needs (no TTL/DB
// selection — keys here live for the life of a run and are never
// namespaced by DB).
type RedisConfig struct {
	URL      string
	Password string
	PoolSize int
}

// RedisStore is the shared-network backend: every engine process in a
// cluster reads/writes the same keys, so two replicas
// racing to dispatch the same run observe the same state.
//
// Every method here swallows connection/timeout errors rather than
// propagating them, per the Store contract: a state store outage degrades
// run observability, not run execution.
type RedisStore struct {
	client *redis.Client
	log    *slog.Logger
}

// NewRedisStore dials Redis and verifies connectivity once at startup (a
// dead backend at boot is a configuration mistake worth failing fast on;
// a backend that dies mid-run is not, hence the swallow-on-use behavior
// below).
func NewRedisStore(cfg RedisConfig, log *slog.Logger) (*RedisStore, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("statestore: parse redis url: %w", err)
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}
	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("statestore: connect to redis: %w", err)
	}
	if log == nil {
		log = slog.Default()
	}
	return &RedisStore{client: client, log: log}, nil
}

// Close releases the underlying connection pool.
func (s *RedisStore) Close() error { return s.client.Close() }

func (s *RedisStore) WriteState(ctx context.Context, runtime, path string, value any, mode WriteMode) error {
	key := stateKey(runtime, path)
	var err error
	switch mode {
	case ModeSet:
		err = s.client.Set(ctx, key, encodeScalar(value), 0).Err()
	case ModeIncrement:
		delta, convErr := toInt(value)
		if convErr != nil {
			return fmt.Errorf("statestore: increment value: %w", convErr)
		}
		err = s.client.IncrBy(ctx, key, int64(delta)).Err()
	case ModeAppend:
		err = s.client.RPush(ctx, key, encodeScalar(value)).Err()
	default:
		return fmt.Errorf("statestore: unknown write mode %q", mode)
	}
	if err != nil {
		s.degrade("write state", key, err)
	}
	return nil
}

func (s *RedisStore) GetState(ctx context.Context, runtime string) (map[string]any, error) {
	prefix := runtime + "/state/*"
	keys, err := s.client.Keys(ctx, prefix).Result()
	if err != nil {
		s.degrade("list keys", prefix, err)
		return map[string]any{}, nil
	}
	if len(keys) == 0 {
		return map[string]any{}, nil
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		s.degrade("mget", prefix, err)
		return map[string]any{}, nil
	}
	flat := make(map[string]string, len(keys))
	for i, key := range keys {
		if str, ok := values[i].(string); ok {
			flat[key] = str
		}
	}
	return assembleTree(runtime, flat), nil
}

func (s *RedisStore) LogQueue(ctx context.Context, runtime, serviceID string, op LogOp, line string, startLine int) ([]string, error) {
	key := logKey(runtime, serviceID)
	switch op {
	case LogAdd:
		if err := s.client.RPush(ctx, key, line).Err(); err != nil {
			s.degrade("log add", key, err)
		}
		return nil, nil
	case LogGet:
		all, err := s.client.LRange(ctx, key, 0, -1).Result()
		if err != nil {
			s.degrade("log get", key, err)
			return []string{}, nil
		}
		if startLine < 0 || startLine >= len(all) {
			return []string{}, nil
		}
		return all[startLine:], nil
	default:
		return nil, fmt.Errorf("statestore: unknown log op %q", op)
	}
}

// degrade logs a backend failure without surfacing it to the caller,
// mirroring the source's redis() wrapper in environment.py which catches
// ConnectionError/TimeoutError and logs rather than raises.
func (s *RedisStore) degrade(op, key string, err error) {
	s.log.Warn("state store unreachable, degrading to no-op", "op", op, "key", key, "error", err)
}
