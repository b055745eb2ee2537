package match

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	keySeq       = "match:seq"
	defaultTTL   = 24 * time.Hour
	maxTxRetries = 3
)

func matchKey(id int) string { return "match:" + strconv.Itoa(id) }

// getter is satisfied by both *redis.Client and *redis.Tx.
type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

// RedisStore keeps one JSON document per match and guards writes with WATCH.
type RedisStore struct {
	rdb *redis.Client
	ttl time.Duration
	now func() time.Time
}

// NewRedisStore wraps an existing client. ttl <= 0 selects 24h.
func NewRedisStore(rdb *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &RedisStore{rdb: rdb, ttl: ttl, now: time.Now}
}

// DialRedis connects from a redis:// URL and pings once.
func DialRedis(ctx context.Context, redisURL string) (*redis.Client, error) {
	if strings.TrimSpace(redisURL) == "" {
		return nil, fmt.Errorf("REDIS_URL required for match store")
	}
	opts, err := ParseRedisURL(redisURL)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}

// ParseRedisURL accepts redis:// and rediss:// with an optional /db path.
func ParseRedisURL(raw string) (*redis.Options, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, err
	}
	if u.Scheme != "redis" && u.Scheme != "rediss" {
		return nil, fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	db := 0
	if p := strings.TrimPrefix(u.Path, "/"); p != "" {
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("redis db %q: %w", p, err)
		}
		db = n
	}
	pass, _ := u.User.Password()
	return &redis.Options{Addr: u.Host, Username: u.User.Username(), Password: pass, DB: db}, nil
}

func (s *RedisStore) CreateMatch(ctx context.Context, name string) (*Record, error) {
	id, err := s.rdb.Incr(ctx, keySeq).Result()
	if err != nil {
		return nil, fmt.Errorf("allocate match id: %w", err)
	}
	rec := newRecord(int(id), name, s.now())
	raw, err := json.Marshal(rec)
	if err != nil {
		return nil, err
	}
	if err := s.rdb.Set(ctx, matchKey(rec.ID), raw, s.ttl).Err(); err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *RedisStore) GetMatch(ctx context.Context, id int) (*Record, error) {
	return s.get(ctx, s.rdb, id)
}

func (s *RedisStore) get(ctx context.Context, c getter, id int) (*Record, error) {
	raw, err := c.Get(ctx, matchKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("match %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("decode match %d: %w", id, err)
	}
	return &rec, nil
}

func (s *RedisStore) UpdateMatch(ctx context.Context, rec *Record) error {
	if rec == nil {
		return fmt.Errorf("nil record")
	}
	key := matchKey(rec.ID)
	next := rec.Clone()
	next.Version = rec.Version + 1
	next.UpdatedAt = s.now()

	txf := func(tx *redis.Tx) error {
		cur, err := s.get(ctx, tx, rec.ID)
		if err != nil {
			return err
		}
		if cur.Version != rec.Version {
			return fmt.Errorf("match %d at version %d, have %d: %w", rec.ID, cur.Version, rec.Version, ErrConflict)
		}
		raw, err := json.Marshal(next)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, raw, s.ttl)
			return nil
		})
		return err
	}

	var err error
	for i := 0; i < maxTxRetries; i++ {
		err = s.rdb.Watch(ctx, txf, key)
		if !errors.Is(err, redis.TxFailedErr) {
			break
		}
	}
	if errors.Is(err, redis.TxFailedErr) {
		return fmt.Errorf("match %d: %w", rec.ID, ErrConflict)
	}
	if err != nil {
		return err
	}
	rec.Version = next.Version
	rec.UpdatedAt = next.UpdatedAt
	return nil
}
