package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hitoshi/loggate/internal/model"
)

// DefaultRedisKeyPrefix はRedisSessionRepoのデフォルトのキープレフィックス。
const DefaultRedisKeyPrefix = "loggate:session"

// redisSessionRecord はRedisに保存するセッションのJSON表現。
type redisSessionRecord struct {
	ID        string    `json:"id"`
	Subject   string    `json:"sub"`
	Issuer    string    `json:"iss"`
	Email     string    `json:"email,omitempty"`
	IssuedAt  time.Time `json:"iat,omitempty"`
	ExpiresAt time.Time `json:"exp,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func newRedisSessionRecord(s *model.Session) redisSessionRecord {
	return redisSessionRecord{
		ID:        s.ID,
		Subject:   s.Claims.Subject,
		Issuer:    s.Claims.Issuer,
		Email:     s.Claims.Email,
		IssuedAt:  s.Claims.IssuedAt,
		ExpiresAt: s.Claims.ExpiresAt,
		CreatedAt: s.CreatedAt,
	}
}

func (r redisSessionRecord) toSession() *model.Session {
	return &model.Session{
		ID: r.ID,
		Claims: model.VerifiedClaims{
			Subject:   r.Subject,
			Issuer:    r.Issuer,
			Email:     r.Email,
			IssuedAt:  r.IssuedAt,
			ExpiresAt: r.ExpiresAt,
		},
		CreatedAt: r.CreatedAt,
	}
}

// RedisSessionRepo はRedisを使用したセッションリポジトリ。
// 各セッションは "<prefix>:<id>" キーにJSONとして保存する。
type RedisSessionRepo struct {
	rdb       *redis.Client
	prefix    string
	expireKey bool
	now       func() time.Time
}

// NewRedisSessionRepo はRedisSessionRepoを生成する。
// expireKeyがtrueの場合、クレームの有効期限でキーにTTLを設定する。
func NewRedisSessionRepo(rdb *redis.Client, prefix string, expireKey bool) *RedisSessionRepo {
	if prefix == "" {
		prefix = DefaultRedisKeyPrefix
	}
	return &RedisSessionRepo{rdb: rdb, prefix: prefix, expireKey: expireKey, now: time.Now}
}

func (r *RedisSessionRepo) key(id string) string {
	return r.prefix + ":" + id
}

// Create はセッションを保存する。
func (r *RedisSessionRepo) Create(ctx context.Context, session *model.Session) error {
	data, err := json.Marshal(newRedisSessionRecord(session))
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}

	var ttl time.Duration
	if r.expireKey && !session.Claims.ExpiresAt.IsZero() {
		ttl = session.Claims.ExpiresAt.Sub(r.now())
		if ttl <= 0 {
			return fmt.Errorf("session claims already expired: %w", model.ErrExpiredToken)
		}
	}

	if err := r.rdb.Set(ctx, r.key(session.ID), data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// FindByID は指定IDのセッションを取得する。見つからない場合はnilを返す。
func (r *RedisSessionRepo) FindByID(ctx context.Context, id string) (*model.Session, error) {
	data, err := r.rdb.Get(ctx, r.key(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find session: %w", err)
	}

	var rec redisSessionRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to decode session: %w", err)
	}
	return rec.toSession(), nil
}

// DeleteByID は指定IDのセッションを削除する。
func (r *RedisSessionRepo) DeleteByID(ctx context.Context, id string) error {
	if err := r.rdb.Del(ctx, r.key(id)).Err(); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// DeleteExpired はプレフィックス配下のキーを走査し、期限切れのセッションを削除する。
// 読み取れないレコードも削除対象とする。
func (r *RedisSessionRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	var deleted int64
	iter := r.rdb.Scan(ctx, 0, r.prefix+":*", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		data, err := r.rdb.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			return deleted, fmt.Errorf("failed to read session: %w", err)
		}

		var rec redisSessionRecord
		if err := json.Unmarshal(data, &rec); err == nil && !rec.toSession().Claims.Expired(now) {
			continue
		}

		n, err := r.rdb.Del(ctx, key).Result()
		if err != nil {
			return deleted, fmt.Errorf("failed to delete expired session: %w", err)
		}
		deleted += n
	}
	if err := iter.Err(); err != nil {
		return deleted, fmt.Errorf("failed to scan sessions: %w", err)
	}
	return deleted, nil
}

// Ping はRedisへの疎通を確認する。
func (r *RedisSessionRepo) Ping(ctx context.Context) error {
	return r.rdb.Ping(ctx).Err()
}

var (
	_ SessionRepository = (*RedisSessionRepo)(nil)
	_ Pinger            = (*RedisSessionRepo)(nil)
)
