package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

func tokenKey(credential string) string { return "auth:" + strings.TrimSpace(credential) }

// RedisResolver looks credentials up in a shared token table written by the
// account service (key auth:<token>, value = username).
type RedisResolver struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisResolver uses ttl for tokens created through Issue; ttl <= 0 means no expiry.
func NewRedisResolver(rdb *redis.Client, ttl time.Duration) *RedisResolver {
	return &RedisResolver{rdb: rdb, ttl: ttl}
}

func (r *RedisResolver) Resolve(ctx context.Context, credential string) (string, error) {
	if strings.TrimSpace(credential) == "" {
		return "", ErrUnknownCredential
	}
	id, err := r.rdb.Get(ctx, tokenKey(credential)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrUnknownCredential
	}
	if err != nil {
		return "", fmt.Errorf("resolve credential: %w", err)
	}
	if id = strings.TrimSpace(id); id == "" {
		return "", ErrUnknownCredential
	}
	return id, nil
}

// Issue creates a fresh credential for identity.
func (r *RedisResolver) Issue(ctx context.Context, identity string) (string, error) {
	identity = strings.TrimSpace(identity)
	if identity == "" {
		return "", fmt.Errorf("empty identity")
	}
	token := uuid.NewString()
	if err := r.rdb.Set(ctx, tokenKey(token), identity, r.ttl).Err(); err != nil {
		return "", fmt.Errorf("issue credential: %w", err)
	}
	return token, nil
}

// Revoke deletes credential.
func (r *RedisResolver) Revoke(ctx context.Context, credential string) error {
	return r.rdb.Del(ctx, tokenKey(credential)).Err()
}
