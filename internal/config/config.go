// Package config は環境変数から設定を読み込み、アプリケーション全体で使用する設定を提供します。
package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"

	"github.com/joho/godotenv"
)

// データベースドライバー名
const (
	DriverSQLite = "sqlite"
	DriverMySQL  = "mysql"
)

// セッションレジストリの種類
const (
	SessionBackendMemory = "memory"
	SessionBackendRedis  = "redis"
)

// Config はアプリケーションの設定を保持する構造体です。
type Config struct {
	// セッション設定
	SessionSecret   string // セッションクッキー署名用の秘密鍵
	SessionBackend  string // memory または redis
	SessionRedisURL string // SessionBackend=redis の接続先
	secretGenerated bool

	// サーバー設定
	Host    string // 待ち受けホスト
	Port    string // 待ち受けポート
	GinMode string // Ginの実行モード (debug, release, test)

	// CORS設定
	CORSAllowedOrigins string // CORS許可オリジン（カンマ区切り、空なら無効）

	// データベース設定
	DBDriver string // sqlite または mysql
	DBDSN    string // 接続文字列（sqlite ならファイルパス）

	// パスワードハッシュ設定
	HashWorkers int // 同時に実行できる bcrypt 計算の数

	// 監査ログ設定
	AuditQueueRedisURL string // Asynq 経由で監査イベントを送る場合の Redis URL（空ならログのみ）

	// ログ設定
	LogLevel  string // debug, info, warn, error
	LogFormat string // console または json
}

// Load は環境変数から設定を読み込みます。
// .env.local ファイルが存在する場合はそこから読み込みます。
func Load() (*Config, error) {
	// .env.local ファイルを読み込む（存在しない場合はスキップ）
	loadEnvFile()

	config := &Config{
		SessionSecret:   getEnv("SESSION_SECRET", ""),
		SessionBackend:  getEnv("SESSION_BACKEND", SessionBackendMemory),
		SessionRedisURL: getEnv("SESSION_REDIS_URL", "redis://127.0.0.1:6379/0"),

		Host:    getEnv("HOST", "0.0.0.0"),
		Port:    getEnv("PORT", "5050"),
		GinMode: getEnv("GIN_MODE", "debug"),

		CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", ""),

		DBDriver: getEnv("DB_DRIVER", DriverSQLite),
		DBDSN:    getEnv("DB_DSN", "database.db"),

		HashWorkers: getEnvAsInt("HASH_WORKERS", runtime.NumCPU()),

		AuditQueueRedisURL: getEnv("AUDIT_QUEUE_REDIS_URL", ""),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "console"),
	}

	// 必須設定のバリデーション
	if err := config.Validate(); err != nil {
		return nil, err
	}

	// 開発モードで秘密鍵が無い場合はプロセスごとにランダム生成する
	if config.SessionSecret == "" {
		secret, err := randomSecret()
		if err != nil {
			return nil, fmt.Errorf("failed to generate session secret: %w", err)
		}
		config.SessionSecret = secret
		config.secretGenerated = true
	}

	return config, nil
}

func loadEnvFile() {
	if err := godotenv.Load(".env.local"); err == nil {
		return
	}

	cwd, err := os.Getwd()
	if err != nil {
		return
	}

	parent := filepath.Dir(cwd)
	if parent == "" || parent == cwd {
		return
	}

	_ = godotenv.Load(filepath.Join(parent, ".env.local"))
}

// Validate は設定の妥当性を検証します。
func (c *Config) Validate() error {
	switch c.DBDriver {
	case DriverSQLite, DriverMySQL:
	default:
		return fmt.Errorf("DB_DRIVER must be %q or %q, got %q", DriverSQLite, DriverMySQL, c.DBDriver)
	}
	if c.DBDSN == "" {
		return fmt.Errorf("DB_DSN is required")
	}

	switch c.SessionBackend {
	case SessionBackendMemory:
	case SessionBackendRedis:
		if c.SessionRedisURL == "" {
			return fmt.Errorf("SESSION_REDIS_URL is required when SESSION_BACKEND=redis")
		}
	default:
		return fmt.Errorf("SESSION_BACKEND must be %q or %q, got %q", SessionBackendMemory, SessionBackendRedis, c.SessionBackend)
	}

	if c.HashWorkers <= 0 {
		return fmt.Errorf("HASH_WORKERS must be positive, got %d", c.HashWorkers)
	}

	// 本番環境では署名鍵を必ず明示させる
	if c.GinMode == "release" {
		if c.SessionSecret == "" {
			return fmt.Errorf("SESSION_SECRET is required in release mode")
		}
	}

	return nil
}

// Addr は待ち受けアドレスを返します。
func (c *Config) Addr() string {
	return c.Host + ":" + c.Port
}

// SecretGenerated は SessionSecret がランダム生成されたかどうかを返します。
// その場合、プロセス再起動で既存のセッションは無効になります。
func (c *Config) SecretGenerated() bool {
	return c.secretGenerated
}

func randomSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// getEnv は環境変数を取得し、存在しない場合はデフォルト値を返します。
func getEnv(key string, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvAsInt は環境変数を整数として取得します。
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
