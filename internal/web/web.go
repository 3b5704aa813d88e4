// Package web は認証ゲートウェイの HTML 画面とルーティングを提供します。
package web

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/yourusername/authgate/internal/auth"
	"github.com/yourusername/authgate/internal/users"
)

const (
	// SessionCookieName はセッションクッキーの名前です。
	SessionCookieName = "ag_session"

	sessionKeyToken = "session_token"
	sessionKeyCSRF  = "csrf_token"
)

// Authenticator はログインフォームから呼ばれる認証処理です。
type Authenticator interface {
	Authenticate(ctx context.Context, username, plaintext string) (auth.Result, error)
}

// Registrar は登録フォームから呼ばれる登録処理です。
type Registrar interface {
	Register(ctx context.Context, username, plaintext string) (*users.User, error)
}

// Sessions はセッショントークンの管理です。
type Sessions interface {
	Establish(ctx context.Context, userID int64) (string, error)
	Resolve(ctx context.Context, token string) (int64, bool, error)
	Terminate(ctx context.Context, token string) error
}

// UserLookup はセッションのユーザーIDからユーザーを引きます。
type UserLookup interface {
	GetByID(ctx context.Context, id int64) (*users.User, error)
}

// Options は Handler の依存関係です。
type Options struct {
	Authenticator Authenticator
	Registrar     Registrar
	Sessions      Sessions
	Users         UserLookup
	Logger        zerolog.Logger

	SessionSecret string // クッキー署名鍵
	SecureCookie  bool   // HTTPS のみでクッキーを送る
}

// Handler は画面ハンドラーとミドルウェアをまとめた構造体です。
type Handler struct {
	authn    Authenticator
	reg      Registrar
	sessions Sessions
	users    UserLookup
	logger   zerolog.Logger
	cookie   sessions.Options
	secret   string
}

// NewHandler は Handler を作成します。
func NewHandler(opts Options) (*Handler, error) {
	switch {
	case opts.Authenticator == nil:
		return nil, errors.New("authenticator is nil")
	case opts.Registrar == nil:
		return nil, errors.New("registrar is nil")
	case opts.Sessions == nil:
		return nil, errors.New("sessions is nil")
	case opts.Users == nil:
		return nil, errors.New("users is nil")
	case opts.SessionSecret == "":
		return nil, errors.New("session secret is empty")
	}
	return &Handler{
		authn:    opts.Authenticator,
		reg:      opts.Registrar,
		sessions: opts.Sessions,
		users:    opts.Users,
		logger:   opts.Logger,
		cookie:   cookieOptions(opts.SecureCookie),
		secret:   opts.SessionSecret,
	}, nil
}

// cookieOptions はセッションクッキーの属性です。
// 有効期限は設定せず、ブラウザを閉じるかログアウトするまで有効です。
func cookieOptions(secure bool) sessions.Options {
	return sessions.Options{
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
}

// expiredCookieOptions は通常の属性を保ったままクッキーを失効させる設定です。
func (h *Handler) expiredCookieOptions() sessions.Options {
	opts := h.cookie
	opts.MaxAge = -1
	return opts
}

// Mount はテンプレートとルートを router に登録します。
func (h *Handler) Mount(router *gin.Engine) error {
	tmpl, err := parseTemplates()
	if err != nil {
		return err
	}
	router.SetHTMLTemplate(tmpl)

	// ヘルスチェックはセッションを使わない
	router.GET("/health", handleHealth)
	router.NoRoute(h.notFound)

	store := cookie.NewStore([]byte(h.secret))
	store.Options(h.cookie)

	pages := router.Group("/")
	pages.Use(
		sessions.Sessions(SessionCookieName, store),
		h.LoadIdentity(),
		h.VerifyCSRF(),
	)
	{
		pages.GET("/", h.index)
		pages.GET("/login", h.loginPage)
		pages.POST("/login", h.login)
		pages.GET("/logout", h.RequireLogin(), h.logout)
		pages.GET("/register", h.registerPage)
		pages.POST("/register", h.register)
	}
	return nil
}

// handleHealth はヘルスチェックエンドポイントのハンドラーです。
func handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "authgate",
	})
}
