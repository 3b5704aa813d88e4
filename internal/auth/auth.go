// Package auth はユーザー認証（Authenticator）と新規登録（Registrar）を提供します。
//
// どちらも HTTP には依存しません。セッションの確立は呼び出し側の責務です。
package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/yourusername/authgate/internal/audit"
)

// ErrInvalidInput はユーザー名またはパスワードが空の場合に返されます。
var ErrInvalidInput = errors.New("username and password are required")

// NormalizeUsername は登録とログインで共通のユーザー名の正規化です。
// 前後の空白を取り除き、それ以外はそのまま扱います。
func NormalizeUsername(username string) string {
	return strings.TrimSpace(username)
}

// Hasher は認証・登録で使うパスワードハッシュ操作です。
type Hasher interface {
	Hash(ctx context.Context, plaintext string) (string, error)
	Verify(ctx context.Context, plaintext, hashed string) (bool, error)
	DummyHash(ctx context.Context) (string, error)
}

// recorder は監査イベントの送信をまとめたものです。
// 送信に失敗してもリクエスト自体は失敗させません。
type recorder struct {
	sink   audit.Sink
	logger zerolog.Logger
	now    func() time.Time
}

func newRecorder(sink audit.Sink, logger zerolog.Logger) recorder {
	if sink == nil {
		sink = audit.Discard{}
	}
	return recorder{sink: sink, logger: logger, now: time.Now}
}

func (r recorder) record(ctx context.Context, kind audit.Kind, username string, userID int64) {
	event := audit.Event{
		Kind:       kind,
		Username:   username,
		UserID:     userID,
		RemoteAddr: audit.RemoteAddr(ctx),
		At:         r.now().UTC(),
	}
	if err := r.sink.Record(ctx, event); err != nil {
		r.logger.Warn().Err(err).Str("kind", string(kind)).Msg("failed to record audit event")
	}
}
