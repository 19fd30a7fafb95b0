package migration

import (
	"context"
	"database/sql"
	"testing"
	"testing/fstest"

	_ "modernc.org/sqlite"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("DB接続に失敗: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// TestRun はRun関数を検証する。
func TestRun(t *testing.T) {
	t.Parallel()

	fsys := fstest.MapFS{
		"migrations/000002_add_body.up.sql": {Data: []byte(`ALTER TABLE items ADD COLUMN body TEXT NOT NULL DEFAULT '';`)},
		"migrations/000001_init.up.sql":     {Data: []byte(`CREATE TABLE items (id INTEGER PRIMARY KEY);`)},
		"migrations/000001_init.down.sql":   {Data: []byte(`DROP TABLE items;`)},
		"migrations/README.md":              {Data: []byte(`ignored`)},
		"migrations/nodigits_broken.up.sql": {Data: []byte(`THIS IS NOT SQL`)},
	}

	t.Run("バージョン順に適用され、再実行ではスキップされること", func(t *testing.T) {
		t.Parallel()

		db := openTestDB(t)
		ctx := context.Background()

		n, err := Run(ctx, db, fsys, "migrations")
		if err != nil {
			t.Fatalf("Run()でエラーが発生: %v", err)
		}
		if n != 2 {
			t.Errorf("適用件数 = %d, want 2", n)
		}
		if _, err := db.Exec(`INSERT INTO items (id, body) VALUES (1, 'x')`); err != nil {
			t.Fatalf("マイグレーション後のテーブルへの書き込みに失敗: %v", err)
		}

		n, err = Run(ctx, db, fsys, "migrations")
		if err != nil {
			t.Fatalf("2回目のRun()でエラーが発生: %v", err)
		}
		if n != 0 {
			t.Errorf("2回目の適用件数 = %d, want 0", n)
		}
	})

	t.Run("バージョンが重複している場合はエラーになること", func(t *testing.T) {
		t.Parallel()

		dup := fstest.MapFS{
			"m/000001_a.up.sql": {Data: []byte(`CREATE TABLE a (id INTEGER);`)},
			"m/000001_b.up.sql": {Data: []byte(`CREATE TABLE b (id INTEGER);`)},
		}
		if _, err := Run(context.Background(), openTestDB(t), dup, "m"); err == nil {
			t.Fatal("Run()がエラーを返すべきだが、nilが返った")
		}
	})

	t.Run("SQLエラーの場合はバージョンが記録されないこと", func(t *testing.T) {
		t.Parallel()

		broken := fstest.MapFS{
			"m/000001_broken.up.sql": {Data: []byte(`CREATE TABLE (;`)},
		}
		db := openTestDB(t)
		if _, err := Run(context.Background(), db, broken, "m"); err == nil {
			t.Fatal("Run()がエラーを返すべきだが、nilが返った")
		}
		var count int
		if err := db.QueryRow(`SELECT COUNT(*) FROM schema_migrations`).Scan(&count); err != nil {
			t.Fatalf("schema_migrationsの参照に失敗: %v", err)
		}
		if count != 0 {
			t.Errorf("記録されたバージョン数 = %d, want 0", count)
		}
	})
}
