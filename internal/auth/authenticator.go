package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/yourusername/authgate/internal/audit"
	"github.com/yourusername/authgate/internal/password"
	"github.com/yourusername/authgate/internal/users"
)

// Result は認証結果です。失敗時はゼロ値（Success=false）になります。
type Result struct {
	Success  bool
	UserID   int64
	Username string
}

// Authenticator はユーザー名とパスワードを照合します。
type Authenticator struct {
	store  users.Store
	hasher Hasher
	logger zerolog.Logger
	rec    recorder
}

// NewAuthenticator は Authenticator を作成します。sink が nil の場合は監査イベントを捨てます。
func NewAuthenticator(store users.Store, hasher Hasher, sink audit.Sink, logger zerolog.Logger) (*Authenticator, error) {
	if store == nil {
		return nil, errors.New("store is nil")
	}
	if hasher == nil {
		return nil, errors.New("hasher is nil")
	}
	return &Authenticator{
		store:  store,
		hasher: hasher,
		logger: logger,
		rec:    newRecorder(sink, logger),
	}, nil
}

// Authenticate は資格情報を検証します。
//
// 未登録ユーザーとパスワード不一致は同じ Result を返し、
// 未登録の場合もダミーハッシュで照合を行うため処理時間もほぼ同じになります。
// error が返るのはストレージ障害やコンテキストのキャンセル時のみです。
func (a *Authenticator) Authenticate(ctx context.Context, username, plaintext string) (Result, error) {
	username = NormalizeUsername(username)
	user, err := a.store.FindByUsername(ctx, username)
	if err != nil {
		if !errors.Is(err, users.ErrNotFound) {
			return Result{}, err
		}
		dummy, err := a.hasher.DummyHash(ctx)
		if err != nil {
			return Result{}, fmt.Errorf("dummy hash: %w", err)
		}
		if _, err := a.hasher.Verify(ctx, plaintext, dummy); err != nil {
			return Result{}, err
		}
		a.rec.record(ctx, audit.KindLoginFailed, username, 0)
		return Result{}, nil
	}

	ok, err := a.hasher.Verify(ctx, plaintext, user.PasswordHash)
	if err != nil {
		if !errors.Is(err, password.ErrMalformedHash) {
			return Result{}, err
		}
		a.logger.Error().Err(err).Int64("user_id", user.ID).Msg("stored password hash is unreadable")
		ok = false
	}
	if !ok {
		a.rec.record(ctx, audit.KindLoginFailed, username, user.ID)
		return Result{}, nil
	}

	a.rec.record(ctx, audit.KindLoginSucceeded, username, user.ID)
	return Result{Success: true, UserID: user.ID, Username: user.Username}, nil
}
