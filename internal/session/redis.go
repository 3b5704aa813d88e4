package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const (
	sessionKeyPrefix = "session:"
)

// RedisRegistry はセッションを Redis に保存します。
// 複数プロセスで同じセッションを共有できます。キーに TTL は設定しません。
type RedisRegistry struct {
	rdb *redis.Client
}

// NewRedisRegistry は RedisRegistry を作成します。
func NewRedisRegistry(rdb *redis.Client) *RedisRegistry {
	return &RedisRegistry{rdb: rdb}
}

// Save はセッション情報を保存します。
func (r *RedisRegistry) Save(ctx context.Context, record *Record) error {
	if record == nil {
		return fmt.Errorf("record is nil")
	}
	if record.Token == "" {
		return fmt.Errorf("record.Token is required")
	}
	payload, err := json.Marshal(record)
	if err != nil {
		return err
	}
	return r.rdb.Set(ctx, sessionKey(record.Token), payload, 0).Err()
}

// Get はセッション情報を取得します。
func (r *RedisRegistry) Get(ctx context.Context, token string) (*Record, error) {
	if token == "" {
		return nil, nil
	}
	data, err := r.rdb.Get(ctx, sessionKey(token)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	var record Record
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, err
	}
	return &record, nil
}

// Delete はセッション情報を削除します。存在しなくてもエラーにはしません。
func (r *RedisRegistry) Delete(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	return r.rdb.Del(ctx, sessionKey(token)).Err()
}

func sessionKey(token string) string {
	return sessionKeyPrefix + token
}
