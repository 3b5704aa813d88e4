package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Manager はセッションの確立・解決・破棄を行います。
type Manager struct {
	registry Registry
	now      func() time.Time
}

// NewManager は Manager を作成します。
func NewManager(registry Registry) (*Manager, error) {
	if registry == nil {
		return nil, errors.New("registry is nil")
	}
	return &Manager{registry: registry, now: time.Now}, nil
}

// Establish はユーザーに紐づく新しいセッショントークンを発行します。
func (m *Manager) Establish(ctx context.Context, userID int64) (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("generate session token: %w", err)
	}
	record := &Record{
		Token:    id.String(),
		UserID:   userID,
		IssuedAt: m.now().UTC(),
	}
	if err := m.registry.Save(ctx, record); err != nil {
		return "", fmt.Errorf("save session: %w", err)
	}
	return record.Token, nil
}

// Resolve はトークンに紐づくユーザーIDを返します。
// 未知のトークンや空文字は ok=false です。
func (m *Manager) Resolve(ctx context.Context, token string) (int64, bool, error) {
	if token == "" {
		return 0, false, nil
	}
	record, err := m.registry.Get(ctx, token)
	if err != nil {
		return 0, false, fmt.Errorf("load session: %w", err)
	}
	if record == nil {
		return 0, false, nil
	}
	return record.UserID, true, nil
}

// Terminate はセッションを破棄します。何度呼んでも構いません。
func (m *Manager) Terminate(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	if err := m.registry.Delete(ctx, token); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}
