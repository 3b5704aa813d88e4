package auth

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/yourusername/authgate/internal/audit"
	"github.com/yourusername/authgate/internal/users"
)

// Registrar は新規ユーザーを登録します。
type Registrar struct {
	store  users.Store
	hasher Hasher
	rec    recorder
}

// NewRegistrar は Registrar を作成します。
func NewRegistrar(store users.Store, hasher Hasher, sink audit.Sink, logger zerolog.Logger) (*Registrar, error) {
	if store == nil {
		return nil, errors.New("store is nil")
	}
	if hasher == nil {
		return nil, errors.New("hasher is nil")
	}
	return &Registrar{
		store:  store,
		hasher: hasher,
		rec:    newRecorder(sink, logger),
	}, nil
}

// Register はユーザーを作成します。
//
// ユーザー名は NormalizeUsername で正規化してから保存します。
// 既存ユーザー名なら users.ErrConflict を返します。事前確認と挿入の間に
// 同名ユーザーが作られた場合もストアの一意制約により同じエラーになります。
// パスワードが長すぎる場合は password.ErrPasswordTooLong です。
func (r *Registrar) Register(ctx context.Context, username, plaintext string) (*users.User, error) {
	username = NormalizeUsername(username)
	if username == "" || plaintext == "" {
		return nil, ErrInvalidInput
	}

	_, err := r.store.FindByUsername(ctx, username)
	switch {
	case err == nil:
		r.rec.record(ctx, audit.KindRegistrationConflict, username, 0)
		return nil, users.ErrConflict
	case !errors.Is(err, users.ErrNotFound):
		return nil, err
	}

	hashed, err := r.hasher.Hash(ctx, plaintext)
	if err != nil {
		return nil, err
	}

	user, err := r.store.Insert(ctx, username, hashed)
	if err != nil {
		if errors.Is(err, users.ErrConflict) {
			r.rec.record(ctx, audit.KindRegistrationConflict, username, 0)
		}
		return nil, err
	}

	r.rec.record(ctx, audit.KindUserRegistered, username, user.ID)
	return user, nil
}
