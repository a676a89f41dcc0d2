package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Novapool/bonfire/internal/domain"
	"github.com/Novapool/bonfire/internal/logging"
	"github.com/Novapool/bonfire/internal/metrics"
	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

const (
	stateKeyPrefix = "bonfire:roomState:"
	metaKeyPrefix  = "bonfire:roomMetadata:"
)

// Redis is the remote reference Storage adapter, grounded on the teacher's
// bus.Service: a single *redis.Client wrapped in a circuit breaker so a
// backend outage degrades to fast, labeled errors instead of blocking
// callers indefinitely.
type Redis struct {
	client      *redis.Client
	cb          *gobreaker.CircuitBreaker
	initialized bool
}

// NewRedis constructs a Redis adapter from an already-configured client
// (tests can point this at miniredis; production points it at a real
// cluster via addr/password).
func NewRedis(client *redis.Client) *Redis {
	st := gobreaker.Settings{
		Name:        "storage-redis",
		MaxRequests: 5,
		Interval:    time.Minute,
		Timeout:     15 * time.Second,
		OnStateChange: func(name string, from, to gobreaker.State) {
			var stateVal float64
			switch to {
			case gobreaker.StateClosed:
				stateVal = 0
			case gobreaker.StateOpen:
				stateVal = 1
			case gobreaker.StateHalfOpen:
				stateVal = 2
			}
			metrics.CircuitBreakerState.WithLabelValues("storage-redis").Set(stateVal)
		},
	}
	return &Redis{
		client: client,
		cb:     gobreaker.NewCircuitBreaker(st),
	}
}

// NewRedisClient builds a *redis.Client from addr/password with the same
// pooling/timeouts the teacher's bus.Service uses.
func NewRedisClient(addr, password string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           0,
		DialTimeout:  10 * time.Second,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})
}

func (r *Redis) Initialize(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := r.client.Ping(pingCtx).Err(); err != nil {
		return &Error{Op: "Initialize", Cause: err}
	}
	r.initialized = true
	return nil
}

func (r *Redis) Close(ctx context.Context) error {
	r.initialized = false
	if err := r.client.Close(); err != nil {
		return &Error{Op: "Close", Cause: err}
	}
	return nil
}

// execute runs fn through the circuit breaker, observing metrics and
// translating breaker-open and backend errors into *Error uniformly.
func (r *Redis) execute(ctx context.Context, op string, fn func(context.Context) (any, error)) (result any, err error) {
	start := time.Now()
	defer func() {
		metrics.StorageOperationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
		status := "ok"
		if err != nil {
			status = "error"
		}
		metrics.StorageOperationsTotal.WithLabelValues(op, status).Inc()
	}()

	if !r.initialized {
		err = &Error{Op: op, Cause: ErrNotInitialized}
		return nil, err
	}

	result, cbErr := r.cb.Execute(func() (any, error) { return fn(ctx) })
	if cbErr != nil {
		if cbErr == gobreaker.ErrOpenState || cbErr == gobreaker.ErrTooManyRequests {
			metrics.CircuitBreakerFailures.WithLabelValues("storage-redis").Inc()
			logging.Warn(ctx, "storage circuit breaker open, failing fast", zap.String("op", op))
		}
		err = &Error{Op: op, Cause: cbErr}
		return nil, err
	}
	return result, nil
}

func (r *Redis) SaveGameState(ctx context.Context, id domain.RoomId, state domain.GameState) error {
	if state.Players == nil {
		state.Players = []domain.Player{}
	}
	data, jsonErr := json.Marshal(state)
	if jsonErr != nil {
		return &Error{Op: "SaveGameState", Cause: jsonErr}
	}
	_, err := r.execute(ctx, "SaveGameState", func(ctx context.Context) (any, error) {
		return nil, r.client.Set(ctx, stateKeyPrefix+string(id), data, 0).Err()
	})
	return err
}

func (r *Redis) LoadGameState(ctx context.Context, id domain.RoomId) (domain.GameState, bool, error) {
	res, err := r.execute(ctx, "LoadGameState", func(ctx context.Context) (any, error) {
		return r.client.Get(ctx, stateKeyPrefix+string(id)).Result()
	})
	if err != nil {
		if isRedisNil(err) {
			return domain.GameState{}, false, nil
		}
		return domain.GameState{}, false, err
	}
	var state domain.GameState
	if jsonErr := json.Unmarshal([]byte(res.(string)), &state); jsonErr != nil {
		return domain.GameState{}, false, &Error{Op: "LoadGameState", Cause: jsonErr}
	}
	// Redis/JSON round-trips an empty slice as `[]`, but a defensive
	// reconstruction keeps this adapter correct even if a future encoding
	// elides empty collections, per spec.md §4.1(b).
	if state.Players == nil {
		state.Players = []domain.Player{}
	}
	return state, true, nil
}

func (r *Redis) UpsertRoomMetadata(ctx context.Context, id domain.RoomId, meta domain.RoomMetadata) error {
	data, jsonErr := json.Marshal(meta)
	if jsonErr != nil {
		return &Error{Op: "UpsertRoomMetadata", Cause: jsonErr}
	}
	_, err := r.execute(ctx, "UpsertRoomMetadata", func(ctx context.Context) (any, error) {
		return nil, r.client.Set(ctx, metaKeyPrefix+string(id), data, 0).Err()
	})
	return err
}

func (r *Redis) GetRoomMetadata(ctx context.Context, id domain.RoomId) (domain.RoomMetadata, bool, error) {
	res, err := r.execute(ctx, "GetRoomMetadata", func(ctx context.Context) (any, error) {
		return r.client.Get(ctx, metaKeyPrefix+string(id)).Result()
	})
	if err != nil {
		if isRedisNil(err) {
			return domain.RoomMetadata{}, false, nil
		}
		return domain.RoomMetadata{}, false, err
	}
	var meta domain.RoomMetadata
	if jsonErr := json.Unmarshal([]byte(res.(string)), &meta); jsonErr != nil {
		return domain.RoomMetadata{}, false, &Error{Op: "GetRoomMetadata", Cause: jsonErr}
	}
	return meta, true, nil
}

func (r *Redis) ListAllRoomMetadata(ctx context.Context) ([]domain.RoomMetadata, error) {
	keys, err := r.scanKeys(ctx, metaKeyPrefix+"*")
	if err != nil {
		return nil, err
	}
	out := make([]domain.RoomMetadata, 0, len(keys))
	for _, key := range keys {
		res, err := r.execute(ctx, "ListAllRoomMetadata", func(ctx context.Context) (any, error) {
			return r.client.Get(ctx, key).Result()
		})
		if err != nil {
			if isRedisNil(err) {
				continue
			}
			return nil, err
		}
		var meta domain.RoomMetadata
		if jsonErr := json.Unmarshal([]byte(res.(string)), &meta); jsonErr != nil {
			return nil, &Error{Op: "ListAllRoomMetadata", Cause: jsonErr}
		}
		out = append(out, meta)
	}
	return out, nil
}

func (r *Redis) ListInactiveRoomIds(ctx context.Context, threshold time.Time) ([]domain.RoomId, error) {
	all, err := r.ListAllRoomMetadata(ctx)
	if err != nil {
		return nil, err
	}
	var out []domain.RoomId
	for _, meta := range all {
		if meta.LastActivity.Before(threshold) {
			out = append(out, meta.RoomId)
		}
	}
	return out, nil
}

func (r *Redis) DeleteRoom(ctx context.Context, id domain.RoomId) error {
	_, err := r.execute(ctx, "DeleteRoom", func(ctx context.Context) (any, error) {
		return nil, r.client.Del(ctx, stateKeyPrefix+string(id), metaKeyPrefix+string(id)).Err()
	})
	return err
}

func (r *Redis) RoomExists(ctx context.Context, id domain.RoomId) (bool, error) {
	res, err := r.execute(ctx, "RoomExists", func(ctx context.Context) (any, error) {
		return r.client.Exists(ctx, stateKeyPrefix+string(id)).Result()
	})
	if err != nil {
		return false, err
	}
	return res.(int64) > 0, nil
}

func (r *Redis) scanKeys(ctx context.Context, pattern string) ([]string, error) {
	res, err := r.execute(ctx, "scanKeys", func(ctx context.Context) (any, error) {
		var keys []string
		iter := r.client.Scan(ctx, 0, pattern, 0).Iterator()
		for iter.Next(ctx) {
			keys = append(keys, iter.Val())
		}
		return keys, iter.Err()
	})
	if err != nil {
		return nil, err
	}
	if res == nil {
		return nil, nil
	}
	return res.([]string), nil
}

// isRedisNil reports whether err (an *Error wrapping a redis call failure)
// ultimately wraps redis.Nil, meaning "key absent" rather than a real
// failure.
func isRedisNil(err error) bool {
	for err != nil {
		if err == redis.Nil {
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

var _ Storage = (*Redis)(nil)
