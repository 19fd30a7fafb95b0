// Package migration はSQLiteデータベースのマイグレーションを管理する。
// embed.FSからSQLファイルを読み込み、バージョン管理テーブルで適用状態を追跡する。
package migration

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"log"
	"path"
	"sort"
	"strconv"
	"strings"
)

// Run はembedされたマイグレーションファイルを順序通りに適用し、新たに適用した件数を返す。
// 未適用のマイグレーションのみ実行し、適用済みのものはスキップする。
// ファイル名形式: 000001_description.up.sql
func Run(ctx context.Context, db *sql.DB, fsys fs.FS, dir string) (int, error) {
	if err := ensureMigrationsTable(ctx, db); err != nil {
		return 0, fmt.Errorf("マイグレーション管理テーブルの作成に失敗: %w", err)
	}

	applied, err := appliedVersions(ctx, db)
	if err != nil {
		return 0, fmt.Errorf("適用済みバージョンの取得に失敗: %w", err)
	}

	migrations, err := collect(fsys, dir)
	if err != nil {
		return 0, fmt.Errorf("マイグレーションファイルの収集に失敗: %w", err)
	}

	count := 0
	for _, m := range migrations {
		if applied[m.version] {
			continue
		}
		if err := apply(ctx, db, fsys, m); err != nil {
			return count, fmt.Errorf("マイグレーション %06d の適用に失敗: %w", m.version, err)
		}
		log.Printf("[Migration] マイグレーション %06d_%s を適用しました", m.version, m.name)
		count++
	}
	return count, nil
}

type file struct {
	version int
	name    string
	path    string
}

func ensureMigrationsTable(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME NOT NULL DEFAULT (datetime('now'))
		)
	`)
	return err
}

func appliedVersions(ctx context.Context, db *sql.DB) (map[int]bool, error) {
	rows, err := db.QueryContext(ctx, "SELECT version FROM schema_migrations")
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	applied := make(map[int]bool)
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		applied[v] = true
	}
	return applied, rows.Err()
}

// collect はディレクトリからup.sqlファイルを収集してバージョン順にソートする。
// 同じバージョン番号のファイルが複数ある場合はエラーを返す。
func collect(fsys fs.FS, dir string) ([]file, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, err
	}

	seen := make(map[int]string)
	var files []file
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".up.sql") {
			continue
		}
		prefix, rest, ok := strings.Cut(entry.Name(), "_")
		if !ok {
			continue
		}
		version, err := strconv.Atoi(prefix)
		if err != nil {
			continue
		}
		if prev, dup := seen[version]; dup {
			return nil, fmt.Errorf("バージョン %06d が重複しています: %s, %s", version, prev, entry.Name())
		}
		seen[version] = entry.Name()
		files = append(files, file{
			version: version,
			name:    strings.TrimSuffix(rest, ".up.sql"),
			path:    path.Join(dir, entry.Name()),
		})
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].version < files[j].version
	})
	return files, nil
}

// apply は1つのマイグレーションをトランザクション内で適用する。
func apply(ctx context.Context, db *sql.DB, fsys fs.FS, m file) error {
	content, err := fs.ReadFile(fsys, m.path)
	if err != nil {
		return fmt.Errorf("ファイル読み込みに失敗: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("トランザクション開始に失敗: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, string(content)); err != nil {
		return fmt.Errorf("SQL実行に失敗: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO schema_migrations (version) VALUES (?)", m.version); err != nil {
		return fmt.Errorf("バージョン記録に失敗: %w", err)
	}
	return tx.Commit()
}
