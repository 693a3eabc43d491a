package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hupe1980/adkservice/core"
)

var _ core.SessionStore = (*RedisStore)(nil)

// DefaultKeyPrefix namespaces all keys written by RedisStore.
const DefaultKeyPrefix = "adk:session"

// RedisOptions configures a RedisStore.
type RedisOptions struct {
	// KeyPrefix namespaces keys. Defaults to DefaultKeyPrefix.
	KeyPrefix string
	// TTL expires idle sessions. Zero keeps them forever.
	TTL time.Duration
	// MaxEvents caps the stored history (oldest dropped). Zero is unbounded.
	MaxEvents int
}

// RedisStore persists sessions in Redis.
//
// Layout per session id:
//
//	<prefix>:<id>:meta    hash  created, updated (unix nanos)
//	<prefix>:<id>:state   hash  state key -> JSON value
//	<prefix>:<id>:events  list  JSON encoded core.Event
type RedisStore struct {
	client redis.UniversalClient
	opts   RedisOptions
}

// NewRedisStore wraps an existing client.
func NewRedisStore(client redis.UniversalClient, optFns ...func(o *RedisOptions)) *RedisStore {
	opts := RedisOptions{KeyPrefix: DefaultKeyPrefix}
	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.KeyPrefix == "" {
		opts.KeyPrefix = DefaultKeyPrefix
	}

	return &RedisStore{client: client, opts: opts}
}

// NewRedisStoreFromURL parses a redis:// URL, connects and pings the server.
func NewRedisStoreFromURL(ctx context.Context, url string, optFns ...func(o *RedisOptions)) (*RedisStore, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	client := redis.NewClient(opt)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return NewRedisStore(client, optFns...), nil
}

// Close closes the underlying client.
func (s *RedisStore) Close() error { return s.client.Close() }

// Create resets the session with the given id.
func (s *RedisStore) Create(ctx context.Context, id string) (*core.Session, error) {
	now := time.Now()

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.stateKey(id), s.eventsKey(id))
		pipe.HSet(ctx, s.metaKey(id), "created", now.UnixNano(), "updated", now.UnixNano())
		s.expire(ctx, pipe, id)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("create session %s: %w", id, err)
	}

	sess := core.NewSession(id)
	sess.Created, sess.Updated = now, now

	return sess, nil
}

// Get loads the session, creating it when absent.
func (s *RedisStore) Get(ctx context.Context, id string) (*core.Session, error) {
	if err := s.touch(ctx, id); err != nil {
		return nil, fmt.Errorf("get session %s: %w", id, err)
	}

	var (
		metaCmd   *redis.MapStringStringCmd
		stateCmd  *redis.MapStringStringCmd
		eventsCmd *redis.StringSliceCmd
	)

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		metaCmd = pipe.HGetAll(ctx, s.metaKey(id))
		stateCmd = pipe.HGetAll(ctx, s.stateKey(id))
		eventsCmd = pipe.LRange(ctx, s.eventsKey(id), 0, -1)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("get session %s: %w", id, err)
	}

	state, err := decodeState(stateCmd.Val())
	if err != nil {
		return nil, fmt.Errorf("get session %s: %w", id, err)
	}

	events, err := decodeEvents(eventsCmd.Val())
	if err != nil {
		return nil, fmt.Errorf("get session %s: %w", id, err)
	}

	sess := core.NewSession(id)
	sess.State = state
	sess.Events = events

	meta := metaCmd.Val()
	sess.Created = parseNanos(meta["created"], sess.Created)
	sess.Updated = parseNanos(meta["updated"], sess.Updated)

	return sess, nil
}

// AppendEvent pushes an event onto the session history.
func (s *RedisStore) AppendEvent(ctx context.Context, id string, ev core.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, s.eventsKey(id), data)
		if s.opts.MaxEvents > 0 {
			pipe.LTrim(ctx, s.eventsKey(id), -int64(s.opts.MaxEvents), -1)
		}
		s.bump(ctx, pipe, id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("append event to %s: %w", id, err)
	}

	return nil
}

// ApplyDelta merges delta into the session state.
func (s *RedisStore) ApplyDelta(ctx context.Context, id string, delta map[string]any) error {
	if len(delta) == 0 {
		return nil
	}

	fields, err := encodeState(delta)
	if err != nil {
		return err
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, s.stateKey(id), fields)
		s.bump(ctx, pipe, id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("apply delta to %s: %w", id, err)
	}

	return nil
}

// Delete removes every key of the session.
func (s *RedisStore) Delete(ctx context.Context, id string) error {
	return s.client.Del(ctx, s.metaKey(id), s.stateKey(id), s.eventsKey(id)).Err()
}

// touch initialises the meta hash of a session that does not exist yet.
func (s *RedisStore) touch(ctx context.Context, id string) error {
	now := time.Now().UnixNano()

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSetNX(ctx, s.metaKey(id), "created", now)
		pipe.HSetNX(ctx, s.metaKey(id), "updated", now)
		s.expire(ctx, pipe, id)
		return nil
	})

	return err
}

func (s *RedisStore) bump(ctx context.Context, pipe redis.Pipeliner, id string) {
	now := time.Now().UnixNano()
	pipe.HSetNX(ctx, s.metaKey(id), "created", now)
	pipe.HSet(ctx, s.metaKey(id), "updated", now)
	s.expire(ctx, pipe, id)
}

func (s *RedisStore) expire(ctx context.Context, pipe redis.Pipeliner, id string) {
	if s.opts.TTL <= 0 {
		return
	}

	for _, key := range []string{s.metaKey(id), s.stateKey(id), s.eventsKey(id)} {
		pipe.Expire(ctx, key, s.opts.TTL)
	}
}

func (s *RedisStore) metaKey(id string) string   { return s.opts.KeyPrefix + ":" + id + ":meta" }
func (s *RedisStore) stateKey(id string) string  { return s.opts.KeyPrefix + ":" + id + ":state" }
func (s *RedisStore) eventsKey(id string) string { return s.opts.KeyPrefix + ":" + id + ":events" }

func encodeState(delta map[string]any) (map[string]any, error) {
	fields := make(map[string]any, len(delta))

	for k, v := range delta {
		data, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encode state %q: %w", k, err)
		}
		fields[k] = string(data)
	}

	return fields, nil
}

func decodeState(fields map[string]string) (map[string]any, error) {
	state := make(map[string]any, len(fields))

	for k, raw := range fields {
		var v any
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			return nil, fmt.Errorf("decode state %q: %w", k, err)
		}
		state[k] = v
	}

	return state, nil
}

func decodeEvents(items []string) ([]core.Event, error) {
	events := make([]core.Event, 0, len(items))

	for i, raw := range items {
		var ev core.Event
		if err := json.Unmarshal([]byte(raw), &ev); err != nil {
			return nil, errors.Join(fmt.Errorf("decode event %d", i), err)
		}
		events = append(events, ev)
	}

	return events, nil
}

func parseNanos(s string, fallback time.Time) time.Time {
	var n int64
	if _, err := fmt.Sscanf(s, "%d", &n); err != nil || n == 0 {
		return fallback
	}

	return time.Unix(0, n)
}
