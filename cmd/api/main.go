// Package main は認証ゲートウェイの HTTP サーバーのエントリーポイントです。
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/yourusername/authgate/internal/auth"
	"github.com/yourusername/authgate/internal/config"
	"github.com/yourusername/authgate/internal/logging"
	"github.com/yourusername/authgate/internal/session"
	"github.com/yourusername/authgate/internal/users"
	"github.com/yourusername/authgate/internal/web"
)

func main() {
	// 設定の読み込み
	cfg, err := config.Load()
	if err != nil {
		fallback := logging.New(os.Stderr, "info", "console")
		fallback.Fatal().Err(err).Msg("failed to load config")
	}
	logger := logging.New(os.Stdout, cfg.LogLevel, cfg.LogFormat)

	if err := run(cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("server stopped")
	}
}

func run(cfg *config.Config, logger zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.SecretGenerated() {
		logger.Warn().Msg("SESSION_SECRET is not set; using a random secret, sessions will not survive a restart")
	}

	store, err := users.Open(ctx, users.Options{
		Driver: cfg.DBDriver,
		DSN:    cfg.DBDSN,
		Logger: logger,
	})
	if err != nil {
		return err
	}
	defer store.Close()

	registry, closeRegistry, err := setupSessionRegistry(cfg)
	if err != nil {
		return err
	}
	defer closeRegistry()

	sink, closeSink, err := setupAudit(cfg, logger)
	if err != nil {
		return err
	}
	defer closeSink()

	hasher, err := setupHasher(ctx, cfg)
	if err != nil {
		return err
	}
	authn, err := auth.NewAuthenticator(store, hasher, sink, logger)
	if err != nil {
		return err
	}
	registrar, err := auth.NewRegistrar(store, hasher, sink, logger)
	if err != nil {
		return err
	}
	sessions, err := session.NewManager(registry)
	if err != nil {
		return err
	}

	handler, err := web.NewHandler(web.Options{
		Authenticator: authn,
		Registrar:     registrar,
		Sessions:      sessions,
		Users:         store,
		Logger:        logger,
		SessionSecret: cfg.SessionSecret,
		SecureCookie:  cfg.GinMode == gin.ReleaseMode,
	})
	if err != nil {
		return err
	}

	router, err := newRouter(cfg, logger, handler)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.Addr()).Str("mode", cfg.GinMode).Msg("starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// newRouter はミドルウェアとルートを登録した Gin エンジンを返します。
func newRouter(cfg *config.Config, logger zerolog.Logger, handler *web.Handler) (*gin.Engine, error) {
	gin.SetMode(cfg.GinMode)

	router := gin.New()
	router.Use(gin.Recovery(), logging.Middleware(logger))

	// CORS はオリジンが設定されている場合のみ有効にする
	if origins := splitOrigins(cfg.CORSAllowedOrigins); len(origins) > 0 {
		corsConfig := cors.DefaultConfig()
		corsConfig.AllowOrigins = origins
		corsConfig.AllowCredentials = true
		corsConfig.AllowHeaders = []string{
			"Origin",
			"Content-Type",
			"Accept",
			"X-CSRF-Token",
		}
		router.Use(cors.New(corsConfig))
	}

	if err := handler.Mount(router); err != nil {
		return nil, err
	}
	return router, nil
}

func splitOrigins(raw string) []string {
	var origins []string
	for _, o := range strings.Split(raw, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}
