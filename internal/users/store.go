package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/yourusername/authgate/internal/users/migrations"
)

// Options は GormStore の接続設定です。
type Options struct {
	Driver string // "sqlite" または "mysql"
	DSN    string
	Logger zerolog.Logger
}

// GormStore は gorm を使った Store の実装です。
// username の一意性はスキーマの UNIQUE 制約で保証されます。
type GormStore struct {
	db *gorm.DB
}

// NewGormStore は既に開かれた gorm.DB から GormStore を作成します。
// スキーマは呼び出し側で用意されている前提です。
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// Open はデータベースに接続し、マイグレーションを適用した GormStore を返します。
func Open(ctx context.Context, opts Options) (*GormStore, error) {
	var (
		dialector gorm.Dialector
		dialect   goose.Dialect
		dir       string
	)
	switch opts.Driver {
	case "sqlite", "":
		dialector = sqlite.Open(opts.DSN)
		dialect = goose.DialectSQLite3
		dir = "sqlite"
	case "mysql":
		dialector = mysql.Open(opts.DSN)
		dialect = goose.DialectMySQL
		dir = "mysql"
	default:
		return nil, fmt.Errorf("unsupported driver %q", opts.Driver)
	}

	gdb, err := gorm.Open(dialector, &gorm.Config{
		TranslateError: true,
		Logger:         newGormLogger(opts.Logger),
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql.DB: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := migrate(ctx, sqlDB, dialect, dir); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	if dir == "sqlite" {
		// sqlite は書き込みを直列化するため、ロック競合を避けて接続を1本にする。
		// 接続ごとに別DBになる ":memory:" は使えないのでファイルを指定すること。
		sqlDB.SetMaxOpenConns(1)
	}

	return NewGormStore(gdb), nil
}

func migrate(ctx context.Context, db *sql.DB, dialect goose.Dialect, dir string) error {
	sub, err := fs.Sub(migrations.FS, dir)
	if err != nil {
		return err
	}
	provider, err := goose.NewProvider(dialect, db, sub)
	if err != nil {
		return err
	}
	_, err = provider.Up(ctx)
	return err
}

// gormWriter は gorm のログを warn レベルで zerolog に流します。
type gormWriter struct {
	logger zerolog.Logger
}

func (w gormWriter) Printf(format string, args ...interface{}) {
	w.logger.Warn().Str("component", "gorm").Msgf(format, args...)
}

func newGormLogger(logger zerolog.Logger) gormlogger.Interface {
	return gormlogger.New(gormWriter{logger: logger}, gormlogger.Config{
		SlowThreshold:             200 * time.Millisecond,
		LogLevel:                  gormlogger.Warn,
		IgnoreRecordNotFoundError: true,
		Colorful:                  false,
	})
}

// Close は下位のコネクションプールを閉じます。
func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// FindByUsername はユーザー名でユーザーを検索します。
func (s *GormStore) FindByUsername(ctx context.Context, username string) (*User, error) {
	var u User
	if err := s.db.WithContext(ctx).Where("username = ?", username).First(&u).Error; err != nil {
		return nil, mapError("find by username", err)
	}
	return &u, nil
}

// GetByID は ID でユーザーを取得します。
func (s *GormStore) GetByID(ctx context.Context, id int64) (*User, error) {
	var u User
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&u).Error; err != nil {
		return nil, mapError("get by id", err)
	}
	return &u, nil
}

// Insert は新しいユーザーを作成します。
// 事前の存在確認とは原子的ではないため、同時登録は UNIQUE 制約違反として ErrConflict になります。
func (s *GormStore) Insert(ctx context.Context, username, passwordHash string) (*User, error) {
	u := &User{Username: username, PasswordHash: passwordHash}
	if err := s.db.WithContext(ctx).Create(u).Error; err != nil {
		return nil, mapError("insert", err)
	}
	return u, nil
}

// CountByUsername は同名ユーザーの件数を返します。
func (s *GormStore) CountByUsername(ctx context.Context, username string) (int64, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&User{}).Where("username = ?", username).Count(&count).Error; err != nil {
		return 0, mapError("count by username", err)
	}
	return count, nil
}

func mapError(op string, err error) error {
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return ErrConflict
	default:
		return &StorageError{Op: op, Err: err}
	}
}
