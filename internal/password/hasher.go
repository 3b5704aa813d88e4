// Package password は bcrypt によるパスワードハッシュの生成と検証を提供します。
//
// bcrypt の計算は意図的に遅いため、同時実行数をセマフォで制限します。
package password

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/semaphore"
)

// DefaultCost は保存するハッシュの作業係数です。
const DefaultCost = 10

// MaxLength は bcrypt が扱えるパスワードの最大バイト数です。
const MaxLength = 72

var (
	// ErrMalformedHash は保存済みハッシュが bcrypt として解釈できない場合に返されます。
	ErrMalformedHash = errors.New("malformed password hash")
	// ErrPasswordTooLong はパスワードが MaxLength バイトを超える場合に返されます。
	ErrPasswordTooLong = errors.New("password is longer than 72 bytes")
)

// Hasher はハッシュ計算を限られたワーカー数で実行します。
type Hasher struct {
	cost int
	sem  *semaphore.Weighted

	dummyMu sync.Mutex
	dummy   string
}

// Option は Hasher の生成オプションです。
type Option func(*Hasher)

// WithCost は作業係数を変更します。テストで計算時間を短くするために使います。
func WithCost(cost int) Option {
	return func(h *Hasher) {
		h.cost = cost
	}
}

// NewHasher は同時実行数 workers の Hasher を作成します。
func NewHasher(workers int, opts ...Option) *Hasher {
	if workers <= 0 {
		workers = 1
	}
	h := &Hasher{
		cost: DefaultCost,
		sem:  semaphore.NewWeighted(int64(workers)),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Hash はランダムなソルトを埋め込んだハッシュ文字列を返します。
// 同じ平文でも呼び出しごとに結果は異なります。
// MaxLength バイトを超える平文は ErrPasswordTooLong になります。
func (h *Hasher) Hash(ctx context.Context, plaintext string) (string, error) {
	if len(plaintext) > MaxLength {
		return "", ErrPasswordTooLong
	}
	if err := h.sem.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer h.sem.Release(1)

	hashed, err := bcrypt.GenerateFromPassword([]byte(plaintext), h.cost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return "", ErrPasswordTooLong
		}
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hashed), nil
}

// Verify は平文がハッシュと一致するかを返します。
// 不一致は (false, nil)、ハッシュが壊れている場合のみ ErrMalformedHash を返します。
func (h *Hasher) Verify(ctx context.Context, plaintext, hashed string) (bool, error) {
	if err := h.sem.Acquire(ctx, 1); err != nil {
		return false, err
	}
	defer h.sem.Release(1)

	err := bcrypt.CompareHashAndPassword([]byte(hashed), []byte(plaintext))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword), errors.Is(err, bcrypt.ErrPasswordTooLong):
		// 長すぎるパスワードで登録されたユーザーは存在しないので不一致と同じ
		return false, nil
	default:
		return false, fmt.Errorf("%w: %v", ErrMalformedHash, err)
	}
}

// DummyHash は存在しないユーザーの照合に使うハッシュを返します。
// 未登録ユーザーでもパスワード不一致と同じ計算量になるようにするためのものです。
// 初回呼び出しだけハッシュ計算が入るので、起動時に Warm で作っておきます。
func (h *Hasher) DummyHash(ctx context.Context) (string, error) {
	h.dummyMu.Lock()
	defer h.dummyMu.Unlock()
	if h.dummy != "" {
		return h.dummy, nil
	}

	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	hashed, err := h.Hash(ctx, hex.EncodeToString(buf))
	if err != nil {
		return "", err
	}
	h.dummy = hashed
	return h.dummy, nil
}

// Warm はダミーハッシュを事前に生成します。
func (h *Hasher) Warm(ctx context.Context) error {
	_, err := h.DummyHash(ctx)
	return err
}
