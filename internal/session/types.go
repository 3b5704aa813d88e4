// Package session はログイン済みセッション（トークン → ユーザーID）の管理を提供します。
package session

import (
	"context"
	"time"
)

// Record はトークンに紐づくセッション情報です。
// 有効期限は持ちません。IssuedAt は将来の期限チェック用に保存しています。
type Record struct {
	Token    string    `json:"token"`
	UserID   int64     `json:"userId"`
	IssuedAt time.Time `json:"issuedAt"`
}

// Registry はセッションの保存先です。
// Get は存在しない場合 (nil, nil) を返します。
type Registry interface {
	Save(ctx context.Context, record *Record) error
	Get(ctx context.Context, token string) (*Record, error)
	Delete(ctx context.Context, token string) error
}
