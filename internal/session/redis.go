package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
)

// maxUpdateAttempts bounds the optimistic retries of RedisStore.Update.
const maxUpdateAttempts = 5

// ErrConflict is returned when an Update keeps losing to concurrent writers.
var ErrConflict = errors.New("session changed concurrently")

// redisCmds is the subset of commands the store issues. It is satisfied by
// *redis.Client, *redis.Tx and redis.Pipeliner.
type redisCmds interface {
	Exists(ctx context.Context, keys ...string) *redis.IntCmd
	LRange(ctx context.Context, key string, start, stop int64) *redis.StringSliceCmd
	HGetAll(ctx context.Context, key string) *redis.MapStringStringCmd
	SMembers(ctx context.Context, key string) *redis.StringSliceCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	TxPipelined(ctx context.Context, fn func(redis.Pipeliner) error) ([]redis.Cmder, error)
}

// redisClient adds optimistic locking to redisCmds.
type redisClient interface {
	redisCmds
	watch(ctx context.Context, fn func(redisCmds) error, keys ...string) error
}

// goRedis adapts *redis.Client to redisClient.
type goRedis struct {
	*redis.Client
}

func (c goRedis) watch(ctx context.Context, fn func(redisCmds) error, keys ...string) error {
	return c.Client.Watch(ctx, func(tx *redis.Tx) error { return fn(tx) }, keys...)
}

// RedisConfig holds the connection settings for NewRedisStore.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string        // key prefix, default "formforge:session"
	TTL      time.Duration // session expiry, 0 for none
}

// RedisStore shares editing sessions between server instances.
//
// Each session is kept under seven keys:
//
//	{prefix}:{id}:rev              marker written on every Write
//	{prefix}:{id}:fields           list of field keys in order
//	{prefix}:{id}:fields:props     hash of field key to JSON properties
//	{prefix}:{id}:fields:deleted   set of deleted field keys
//	{prefix}:{id}:actions          list of action keys in order
//	{prefix}:{id}:actions:props    hash of action key to JSON properties
//	{prefix}:{id}:actions:deleted  set of deleted action keys
//
// Reads and writes each run in one MULTI/EXEC. Update watches the rev key,
// so a concurrent Write makes it retry instead of losing either change.
type RedisStore struct {
	client redisClient
	prefix string
	ttl    time.Duration
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(cfg RedisConfig) (*RedisStore, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return newRedisStore(goRedis{rdb}, cfg.Prefix, cfg.TTL), nil
}

func newRedisStore(c redisClient, prefix string, ttl time.Duration) *RedisStore {
	if prefix == "" {
		prefix = "formforge:session"
	}
	return &RedisStore{client: c, prefix: prefix, ttl: ttl}
}

// Close closes the underlying client when it supports closing.
func (r *RedisStore) Close() error {
	if c, ok := r.client.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}

var sections = [...]string{"fields", "actions"}

func (r *RedisStore) key(id string, parts ...string) string {
	k := r.prefix + ":" + id
	for _, p := range parts {
		k += ":" + p
	}
	return k
}

func (r *RedisStore) keys(id string) []string {
	keys := []string{r.key(id, "rev")}
	for _, section := range sections {
		keys = append(keys,
			r.key(id, section),
			r.key(id, section, "props"),
			r.key(id, section, "deleted"),
		)
	}
	return keys
}

// sessionReads holds the commands reading one session. Their results are
// available once the commands have run.
type sessionReads struct {
	id      string
	exists  *redis.IntCmd
	order   [len(sections)]*redis.StringSliceCmd
	props   [len(sections)]*redis.MapStringStringCmd
	deleted [len(sections)]*redis.StringSliceCmd
}

func (r *RedisStore) queueReads(ctx context.Context, c redisCmds, id string) *sessionReads {
	q := &sessionReads{id: id, exists: c.Exists(ctx, r.key(id, "rev"))}
	for i, section := range sections {
		q.order[i] = c.LRange(ctx, r.key(id, section), 0, -1)
		q.props[i] = c.HGetAll(ctx, r.key(id, section, "props"))
		q.deleted[i] = c.SMembers(ctx, r.key(id, section, "deleted"))
	}
	return q
}

func (q *sessionReads) snapshot() (*Snapshot, error) {
	n, err := q.exists.Result()
	if err != nil {
		return nil, fmt.Errorf("read session %s: %w", q.id, err)
	}
	if n == 0 {
		return nil, ErrNotFound
	}

	var entries [len(sections)][]Entry
	var deleted [len(sections)][]string
	for i, section := range sections {
		if entries[i], err = q.entries(i, section); err != nil {
			return nil, err
		}
		if deleted[i], err = q.deleted[i].Result(); err != nil {
			return nil, fmt.Errorf("read session %s deleted %s: %w", q.id, section, err)
		}
		sort.Strings(deleted[i])
	}
	return &Snapshot{
		Fields:         entries[0],
		Actions:        entries[1],
		DeletedFields:  deleted[0],
		DeletedActions: deleted[1],
	}, nil
}

func (q *sessionReads) entries(i int, section string) ([]Entry, error) {
	order, err := q.order[i].Result()
	if err != nil {
		return nil, fmt.Errorf("read session %s %s: %w", q.id, section, err)
	}
	props, err := q.props[i].Result()
	if err != nil {
		return nil, fmt.Errorf("read session %s %s props: %w", q.id, section, err)
	}

	entries := make([]Entry, 0, len(order))
	for _, key := range order {
		p := map[string]any{}
		if raw, ok := props[key]; ok && raw != "" {
			if err := json.Unmarshal([]byte(raw), &p); err != nil {
				return nil, fmt.Errorf("decode session %s %s.%s: %w", q.id, section, key, err)
			}
		}
		entries = append(entries, Entry{Key: key, Props: p})
	}
	return entries, nil
}

func (r *RedisStore) Read(ctx context.Context, id string) (*Snapshot, error) {
	var q *sessionReads
	_, err := r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		q = r.queueReads(ctx, p, id)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read session %s: %w", id, err)
	}
	return q.snapshot()
}

// Write replaces the session atomically (MULTI/EXEC).
func (r *RedisStore) Write(ctx context.Context, id string, s *Snapshot) error {
	return r.write(ctx, r.client, id, s)
}

func (r *RedisStore) write(ctx context.Context, c redisCmds, id string, s *Snapshot) error {
	if err := s.Validate(); err != nil {
		return err
	}

	entries := [len(sections)][]Entry{s.Fields, s.Actions}
	deleted := [len(sections)][]string{s.DeletedFields, s.DeletedActions}

	var encoded [len(sections)][]any
	for i, section := range sections {
		pairs := make([]any, 0, 2*len(entries[i]))
		for _, e := range entries[i] {
			raw, err := json.Marshal(e.Props)
			if err != nil {
				return fmt.Errorf("encode session %s %s.%s: %w", id, section, e.Key, err)
			}
			pairs = append(pairs, e.Key, string(raw))
		}
		encoded[i] = pairs
	}

	_, err := c.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, r.keys(id)...)
		p.Set(ctx, r.key(id, "rev"), time.Now().UTC().Format(time.RFC3339Nano), r.ttl)

		for i, section := range sections {
			if len(entries[i]) > 0 {
				order := make([]any, len(entries[i]))
				for j, e := range entries[i] {
					order[j] = e.Key
				}
				p.RPush(ctx, r.key(id, section), order...)
				p.HSet(ctx, r.key(id, section, "props"), encoded[i]...)
			}
			if len(deleted[i]) > 0 {
				members := make([]any, len(deleted[i]))
				for j, k := range deleted[i] {
					members[j] = k
				}
				p.SAdd(ctx, r.key(id, section, "deleted"), members...)
			}
		}

		if r.ttl > 0 {
			for _, k := range r.keys(id)[1:] {
				p.Expire(ctx, k, r.ttl)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("write session %s: %w", id, err)
	}
	return nil
}

// Update applies fn to the session under optimistic locking. If another
// writer changes the session between the read and the write, fn runs again
// on the fresh state.
func (r *RedisStore) Update(ctx context.Context, id string, fn func(*Snapshot) error) error {
	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		err := r.client.watch(ctx, func(c redisCmds) error {
			s, err := r.queueReads(ctx, c, id).snapshot()
			if errors.Is(err, ErrNotFound) {
				s, err = &Snapshot{}, nil
			}
			if err != nil {
				return err
			}
			if err := fn(s); err != nil {
				return err
			}
			return r.write(ctx, c, id, s)
		}, r.key(id, "rev"))
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
	}
	return fmt.Errorf("update session %s: %w", id, ErrConflict)
}

func (r *RedisStore) Clear(ctx context.Context, id string) error {
	if err := r.client.Del(ctx, r.keys(id)...).Err(); err != nil {
		return fmt.Errorf("clear session %s: %w", id, err)
	}
	return nil
}
