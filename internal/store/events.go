package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// カウンタのキー。
const (
	// KeyDataVersion は受信したイベントごとに増加する。
	KeyDataVersion = "data_version"
	// KeyNotificationVersion は生成した通知ごとに増加する。
	KeyNotificationVersion = "notification_version"
)

// Event はeventsテーブルの1行。
type Event struct {
	ID               int64  `db:"id"`
	DeviceID         string `db:"device_id"`
	SessionID        string `db:"session_id"`
	HookEventName    string `db:"hook_event_name"`
	Timestamp        string `db:"timestamp"`
	ReceivedAt       int64  `db:"received_at"`
	ToolName         string `db:"tool_name"`
	NotificationType string `db:"notification_type"`
	EventJSON        string `db:"event_json"`
}

// InsertEvent はトランザクション内でイベントを保存し、採番されたIDを返す。
// ReceivedAtが0の場合は現在時刻を設定する。
func (s *Store) InsertEvent(ctx context.Context, tx *sqlx.Tx, e *Event) (int64, error) {
	if e.ReceivedAt == 0 {
		e.ReceivedAt = s.nowMillis()
	}
	res, err := tx.NamedExecContext(ctx, `
		INSERT INTO events (
			device_id, session_id, hook_event_name, timestamp,
			received_at, tool_name, notification_type, event_json
		) VALUES (
			:device_id, :session_id, :hook_event_name, :timestamp,
			:received_at, :tool_name, :notification_type, :event_json
		)`, e)
	if err != nil {
		return 0, fmt.Errorf("イベントの保存に失敗: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("イベントIDの取得に失敗: %w", err)
	}
	e.ID = id
	return id, nil
}

// GetEvent はIDでイベントを取得する。
func (s *Store) GetEvent(ctx context.Context, id int64) (*Event, error) {
	var e Event
	err := s.db.GetContext(ctx, &e, `SELECT * FROM events WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("イベント %d の取得に失敗: %w", id, err)
	}
	return &e, nil
}

// BumpCounter はトランザクション内でカウンタを1増やし、増加後の値を返す。
func (s *Store) BumpCounter(ctx context.Context, tx *sqlx.Tx, key string) (uint64, error) {
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO metadata (key, value) VALUES (?, 1)
		ON CONFLICT(key) DO UPDATE SET value = value + 1`, key); err != nil {
		return 0, fmt.Errorf("カウンタ %s の更新に失敗: %w", key, err)
	}
	var v uint64
	if err := tx.GetContext(ctx, &v, `SELECT value FROM metadata WHERE key = ?`, key); err != nil {
		return 0, fmt.Errorf("カウンタ %s の取得に失敗: %w", key, err)
	}
	return v, nil
}

// LoadCounter は永続化されたカウンタの値を返す。未登録のキーは0とする。
func (s *Store) LoadCounter(ctx context.Context, key string) (uint64, error) {
	var v uint64
	err := s.db.GetContext(ctx, &v, `SELECT value FROM metadata WHERE key = ?`, key)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("カウンタ %s の取得に失敗: %w", key, err)
	}
	return v, nil
}

// SessionTitle はセッションで最後に送信されたプロンプトを返す。
// 該当するイベントがない場合は空文字列を返す。
func (s *Store) SessionTitle(ctx context.Context, tx *sqlx.Tx, sessionID string) (string, error) {
	var title sql.NullString
	err := tx.GetContext(ctx, &title, `
		SELECT json_extract(event_json, '$.prompt') FROM events
		WHERE session_id = ? AND hook_event_name = 'UserPromptSubmit'
		ORDER BY id DESC
		LIMIT 1`, sessionID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("セッションタイトルの取得に失敗: %w", err)
	}
	return title.String, nil
}
