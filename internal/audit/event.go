// Package audit は認証・登録の結果を記録する監査イベントを提供します。
//
// イベントにパスワード（平文・ハッシュとも）を含めてはいけません。
package audit

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Kind は監査イベントの種類です。
type Kind string

const (
	KindLoginSucceeded       Kind = "login_succeeded"
	KindLoginFailed          Kind = "login_failed"
	KindUserRegistered       Kind = "user_registered"
	KindRegistrationConflict Kind = "registration_conflict"
)

// Event は監査ログ1件分の情報です。
type Event struct {
	Kind       Kind      `json:"kind"`
	Username   string    `json:"username"`
	UserID     int64     `json:"userId,omitempty"`
	RemoteAddr string    `json:"remoteAddr,omitempty"`
	At         time.Time `json:"at"`
}

// Sink は監査イベントの出力先です。
type Sink interface {
	Record(ctx context.Context, event Event) error
}

// LogSink はイベントを zerolog に書き出します。
type LogSink struct {
	logger zerolog.Logger
}

// NewLogSink は LogSink を作成します。
func NewLogSink(logger zerolog.Logger) *LogSink {
	return &LogSink{logger: logger.With().Str("component", "audit").Logger()}
}

func (s *LogSink) Record(ctx context.Context, event Event) error {
	var e *zerolog.Event
	switch event.Kind {
	case KindLoginFailed, KindRegistrationConflict:
		e = s.logger.Warn()
	default:
		e = s.logger.Info()
	}
	e = e.Str("kind", string(event.Kind)).Str("username", event.Username)
	if event.UserID != 0 {
		e = e.Int64("user_id", event.UserID)
	}
	if event.RemoteAddr != "" {
		e = e.Str("remote_addr", event.RemoteAddr)
	}
	e.Time("at", event.At).Msg("audit")
	return nil
}

// Discard はイベントを捨てる Sink です。
type Discard struct{}

func (Discard) Record(context.Context, Event) error { return nil }

type remoteAddrKey struct{}

// WithRemoteAddr はリクエスト元アドレスをコンテキストに載せます。
func WithRemoteAddr(ctx context.Context, addr string) context.Context {
	return context.WithValue(ctx, remoteAddrKey{}, addr)
}

// RemoteAddr はコンテキストからリクエスト元アドレスを取り出します。
func RemoteAddr(ctx context.Context) string {
	addr, _ := ctx.Value(remoteAddrKey{}).(string)
	return addr
}
