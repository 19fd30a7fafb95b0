package store

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/nao1215/notifyhub/pkg/migration"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrNotFound は対象の行が存在しないことを表す。
var ErrNotFound = errors.New("対象が見つかりません")

// Store はSQLiteに対する読み書きを提供する。
type Store struct {
	db *sqlx.DB
	// now は現在時刻を返す。テストで差し替える。
	now func() time.Time
}

// Option はStoreの生成オプション。
type Option func(*Store)

// WithClock は現在時刻の取得関数を差し替える。
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// Open はSQLiteデータベースを開き、未適用のマイグレーションを適用する。
// dsnには "file:/data/notifyhub.db" や ":memory:" を指定する。
func Open(ctx context.Context, dsn string, opts ...Option) (*Store, error) {
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("データベース接続に失敗: %w", err)
	}
	// 書き込みは単一接続に直列化する
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("%s の実行に失敗: %w", pragma, err)
		}
	}

	if _, err := migration.Run(ctx, db.DB, migrationsFS, "migrations"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("マイグレーションに失敗: %w", err)
	}

	s := &Store{db: db, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close はデータベース接続を閉じる。
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping はデータベースへの疎通を確認する。
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// WithTx はfnをトランザクション内で実行する。
// fnがエラーを返した場合はロールバックし、そのエラーを返す。
func (s *Store) WithTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("トランザクション開始に失敗: %w", err)
	}
	rollbackWith := func(cause error) error {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("%w: ロールバックに失敗: %v", cause, rbErr)
		}
		return cause
	}

	if err := fn(tx); err != nil {
		return rollbackWith(err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("コミットに失敗: %w", err)
	}
	return nil
}

func (s *Store) nowMillis() int64 {
	return s.now().UnixMilli()
}
