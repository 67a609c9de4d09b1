// Package repo holds persistence adapters for conversation state.
package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/riskpilot-core/server/internal/agent/model"
	errx "github.com/riskpilot-core/server/internal/core/errorx"
)

// RedisConversationRepository stores transcripts as a redis list and session
// snapshots as a JSON string, both under a per-session key with a sliding
// TTL. Writes are last-write-wins per session.
type RedisConversationRepository struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisConversationRepository(client *redis.Client, ttl time.Duration) *RedisConversationRepository {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisConversationRepository{client: client, ttl: ttl}
}

func turnsKey(sessionID string) string {
	return fmt.Sprintf("conversation:%s:turns", sessionID)
}

func snapshotKey(sessionID string) string {
	return fmt.Sprintf("conversation:%s:snapshot", sessionID)
}

func (r *RedisConversationRepository) AddExchange(ctx context.Context, sessionID string, ex model.Exchange) error {
	payload, err := json.Marshal(ex)
	if err != nil {
		return errx.New(err, 500, errx.SystemErrorMessage)
	}
	key := turnsKey(sessionID)
	pipe := r.client.TxPipeline()
	pipe.RPush(ctx, key, payload)
	pipe.Expire(ctx, key, r.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return errx.WrapRedis(err)
	}
	return nil
}

func (r *RedisConversationRepository) LoadHistory(ctx context.Context, sessionID string) ([]model.Exchange, error) {
	key := turnsKey(sessionID)
	raws, err := r.client.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		return nil, errx.WrapRedis(err)
	}
	if len(raws) == 0 {
		return nil, nil
	}
	history := make([]model.Exchange, 0, len(raws))
	for _, raw := range raws {
		var ex model.Exchange
		if err := json.Unmarshal([]byte(raw), &ex); err != nil {
			return nil, errx.New(err, 500, errx.SystemErrorMessage)
		}
		history = append(history, ex)
	}
	// Reading a session keeps it alive.
	r.client.Expire(ctx, key, r.ttl)
	return history, nil
}

func (r *RedisConversationRepository) LoadSnapshot(ctx context.Context, sessionID string) (model.SessionSnapshot, error) {
	raw, err := r.client.Get(ctx, snapshotKey(sessionID)).Result()
	if errors.Is(err, redis.Nil) {
		return model.SessionSnapshot{Context: map[string]any{}}, nil
	}
	if err != nil {
		return model.SessionSnapshot{}, errx.WrapRedis(err)
	}
	var snap model.SessionSnapshot
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		return model.SessionSnapshot{}, errx.New(err, 500, errx.SystemErrorMessage)
	}
	if snap.Context == nil {
		snap.Context = map[string]any{}
	}
	return snap, nil
}

func (r *RedisConversationRepository) SaveSnapshot(ctx context.Context, sessionID string, snap model.SessionSnapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return errx.New(err, 500, errx.SystemErrorMessage)
	}
	if err := r.client.Set(ctx, snapshotKey(sessionID), payload, r.ttl).Err(); err != nil {
		return errx.WrapRedis(err)
	}
	return nil
}

func (r *RedisConversationRepository) ClearSession(ctx context.Context, sessionID string) error {
	if err := r.client.Del(ctx, turnsKey(sessionID), snapshotKey(sessionID)).Err(); err != nil {
		return errx.WrapRedis(err)
	}
	return nil
}
