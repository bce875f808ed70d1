package session

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore implements Store using Redis as the backing store.
// Session keys are stored as "sess:<sid>:token", "sess:<sid>:refreshToken"
// and "sess:<sid>:user"; session-scoped values under "scoped:<sid>:<key>".
// All keys carry the configured TTL so abandoned sessions age out.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore creates a Redis-backed session store. A non-positive ttl
// defaults to 7 days.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &RedisStore{client: client, ttl: ttl}
}

func sessKey(sid, field string) string   { return "sess:" + sid + ":" + field }
func scopedKey(sid, field string) string { return "scoped:" + sid + ":" + field }

func (r *RedisStore) readString(ctx context.Context, key string) (string, error) {
	v, err := r.client.Get(ctx, key).Result()
	if err != nil {
		if err == redis.Nil {
			return "", nil
		}
		return "", err
	}
	return v, nil
}

func (r *RedisStore) ReadToken(ctx context.Context, sid string) (string, error) {
	return r.readString(ctx, sessKey(sid, "token"))
}

func (r *RedisStore) ReadRefreshToken(ctx context.Context, sid string) (string, error) {
	return r.readString(ctx, sessKey(sid, "refreshToken"))
}

func (r *RedisStore) ReadRawUser(ctx context.Context, sid string) ([]byte, error) {
	b, err := r.client.Get(ctx, sessKey(sid, "user")).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}
	return b, nil
}

func (r *RedisStore) WriteTokens(ctx context.Context, sid, access, refresh string) error {
	if err := r.client.Set(ctx, sessKey(sid, "token"), access, r.ttl).Err(); err != nil {
		return err
	}
	return r.client.Set(ctx, sessKey(sid, "refreshToken"), refresh, r.ttl).Err()
}

func (r *RedisStore) WriteRawUser(ctx context.Context, sid string, raw []byte) error {
	return r.client.Set(ctx, sessKey(sid, "user"), raw, r.ttl).Err()
}

func (r *RedisStore) WriteScoped(ctx context.Context, sid, key, value string) error {
	return r.client.Set(ctx, scopedKey(sid, key), value, r.ttl).Err()
}

func (r *RedisStore) ReadScoped(ctx context.Context, sid, key string) (string, error) {
	return r.readString(ctx, scopedKey(sid, key))
}

func (r *RedisStore) Clear(ctx context.Context, sid string) error {
	return r.client.Del(ctx,
		sessKey(sid, "token"),
		sessKey(sid, "refreshToken"),
		sessKey(sid, "user"),
	).Err()
}

func (r *RedisStore) ClearScoped(ctx context.Context, sid string) error {
	iter := r.client.Scan(ctx, 0, "scoped:"+sid+":*", 0).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return r.client.Del(ctx, keys...).Err()
}
