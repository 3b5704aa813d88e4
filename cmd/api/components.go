package main

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/yourusername/authgate/internal/audit"
	"github.com/yourusername/authgate/internal/config"
	"github.com/yourusername/authgate/internal/password"
	"github.com/yourusername/authgate/internal/session"
)

// setupHasher は Hasher を作成し、未登録ユーザー照合用のダミーハッシュを先に用意します。
func setupHasher(ctx context.Context, cfg *config.Config) (*password.Hasher, error) {
	hasher := password.NewHasher(cfg.HashWorkers)
	if err := hasher.Warm(ctx); err != nil {
		return nil, fmt.Errorf("prepare dummy hash: %w", err)
	}
	return hasher, nil
}

// setupSessionRegistry は SESSION_BACKEND に応じたセッション保存先を返します。
func setupSessionRegistry(cfg *config.Config) (session.Registry, func(), error) {
	switch cfg.SessionBackend {
	case config.SessionBackendRedis:
		opt, err := redis.ParseURL(cfg.SessionRedisURL)
		if err != nil {
			return nil, nil, fmt.Errorf("parse SESSION_REDIS_URL: %w", err)
		}
		rdb := redis.NewClient(opt)
		return session.NewRedisRegistry(rdb), func() { _ = rdb.Close() }, nil
	default:
		return session.NewMemoryRegistry(), func() {}, nil
	}
}

// setupAudit は監査イベントの出力先を返します。
// AUDIT_QUEUE_REDIS_URL が設定されていればキュー経由、なければ直接ログへ出力します。
func setupAudit(cfg *config.Config, logger zerolog.Logger) (audit.Sink, func(), error) {
	logSink := audit.NewLogSink(logger)
	if cfg.AuditQueueRedisURL == "" {
		return logSink, func() {}, nil
	}

	queue, err := audit.NewQueueSink(cfg.AuditQueueRedisURL, logSink, logger)
	if err != nil {
		return nil, nil, err
	}
	queue.StartWorkers()
	return queue, func() { _ = queue.Shutdown() }, nil
}
