// Package users はユーザー資格情報の永続化（Credential Store）を提供します。
package users

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// User は登録済みユーザーです。PasswordHash にはハッシュ値のみを保持します。
type User struct {
	ID           int64     `gorm:"primaryKey;autoIncrement"`
	Username     string    `gorm:"uniqueIndex;size:191;not null"`
	PasswordHash string    `gorm:"size:255;not null"`
	CreatedAt    time.Time `gorm:"autoCreateTime"`
}

var (
	// ErrNotFound は該当ユーザーが存在しない場合に返されます。
	ErrNotFound = errors.New("user not found")
	// ErrConflict はユーザー名が既に登録されている場合に返されます。
	ErrConflict = errors.New("username already exists")
	// ErrStorage はストレージ層の障害を表します。errors.Is で判定してください。
	ErrStorage = errors.New("storage error")
)

// StorageError はドライバーから返されたエラーを操作名と共に保持します。
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("users: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// Is により errors.Is(err, ErrStorage) が成り立ちます。
func (e *StorageError) Is(target error) bool {
	return target == ErrStorage
}

// Store は Authenticator / Registrar / セッション解決が利用する永続化インターフェースです。
type Store interface {
	FindByUsername(ctx context.Context, username string) (*User, error)
	GetByID(ctx context.Context, id int64) (*User, error)
	Insert(ctx context.Context, username, passwordHash string) (*User, error)
}
