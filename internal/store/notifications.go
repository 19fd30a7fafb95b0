package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// 一覧取得の件数。
const (
	DefaultListLimit = 50
	MaxListLimit     = 200
)

// DefaultRetention は通知の保持期間。
const DefaultRetention = 24 * time.Hour

// Notification はnotificationsテーブルの1行。
type Notification struct {
	// Seq は挿入順の連番。カーソルの比較に使う。
	Seq       int64  `db:"seq"`
	ID        string `db:"id"`
	EventID   int64  `db:"event_id"`
	SessionID string `db:"session_id"`
	DeviceID  string `db:"device_id"`
	Title     string `db:"title"`
	Body      string `db:"body"`
	// Category は stop / permission_prompt / idle_prompt のいずれか。
	Category    string `db:"notification_type"`
	PayloadJSON string `db:"payload_json"`
	// CreatedAt はUNIXミリ秒。
	CreatedAt    int64 `db:"created_at"`
	Acknowledged bool  `db:"acknowledged"`
}

// Created は作成日時をtime.Timeで返す。
func (n *Notification) Created() time.Time {
	return time.UnixMilli(n.CreatedAt).UTC()
}

// InsertNotification はトランザクション内で通知を保存する。
// created_atは直前の通知より小さくならないよう補正され、nに反映される。
func (s *Store) InsertNotification(ctx context.Context, tx *sqlx.Tx, n *Notification) error {
	var last int64
	if err := tx.GetContext(ctx, &last, `SELECT COALESCE(MAX(created_at), 0) FROM notifications`); err != nil {
		return fmt.Errorf("直前の作成日時の取得に失敗: %w", err)
	}
	n.CreatedAt = max(s.nowMillis(), last)
	if n.PayloadJSON == "" {
		n.PayloadJSON = "{}"
	}

	res, err := tx.NamedExecContext(ctx, `
		INSERT INTO notifications (
			id, event_id, session_id, device_id, title, body,
			notification_type, payload_json, created_at, acknowledged
		) VALUES (
			:id, :event_id, :session_id, :device_id, :title, :body,
			:notification_type, :payload_json, :created_at, 0
		)`, n)
	if err != nil {
		return fmt.Errorf("通知の保存に失敗: %w", err)
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("通知の連番の取得に失敗: %w", err)
	}
	n.Seq = seq
	n.Acknowledged = false
	return nil
}

// GetNotification はIDで通知を取得する。
func (s *Store) GetNotification(ctx context.Context, id string) (*Notification, error) {
	var n Notification
	err := s.db.GetContext(ctx, &n, `SELECT * FROM notifications WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("通知 %s の取得に失敗: %w", id, err)
	}
	return &n, nil
}

// ListNotifications は通知を取得する。
//
// afterが空の場合は新しい順に最大limit件を返す。afterを指定した場合は
// そのIDより後に作成された通知を古い順に返す。afterが保持期間切れなどで
// 存在しない場合は保持中の通知を古い順に返す。
// limitは0以下なら50、200を超える場合は200に丸める。
func (s *Store) ListNotifications(ctx context.Context, after string, limit int) ([]Notification, error) {
	limit = clampLimit(limit)

	var (
		rows []Notification
		err  error
	)
	if after == "" {
		err = s.db.SelectContext(ctx, &rows,
			`SELECT * FROM notifications ORDER BY seq DESC LIMIT ?`, limit)
	} else {
		err = s.db.SelectContext(ctx, &rows, `
			SELECT * FROM notifications
			WHERE seq > COALESCE((SELECT seq FROM notifications WHERE id = ?), 0)
			ORDER BY seq ASC
			LIMIT ?`, after, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("通知一覧の取得に失敗: %w", err)
	}
	if rows == nil {
		rows = []Notification{}
	}
	return rows, nil
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	return min(limit, MaxListLimit)
}

// AcknowledgeNotifications は指定IDの通知を確認済みにし、新たに確認済みになった件数を返す。
// 確認済みの通知や存在しないIDは無視される。
func (s *Store) AcknowledgeNotifications(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	query, args, err := sqlx.In(
		`UPDATE notifications SET acknowledged = 1 WHERE acknowledged = 0 AND id IN (?)`, ids)
	if err != nil {
		return 0, fmt.Errorf("確認済み更新クエリの組み立てに失敗: %w", err)
	}
	res, err := s.db.ExecContext(ctx, s.db.Rebind(query), args...)
	if err != nil {
		return 0, fmt.Errorf("通知の確認済み更新に失敗: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("更新件数の取得に失敗: %w", err)
	}
	return n, nil
}

// SweepExpiredNotifications は作成からttl以上経過した通知を削除し、削除件数を返す。
func (s *Store) SweepExpiredNotifications(ctx context.Context, ttl time.Duration) (int64, error) {
	cutoff := s.now().Add(-ttl).UnixMilli()
	res, err := s.db.ExecContext(ctx, `DELETE FROM notifications WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("期限切れ通知の削除に失敗: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("削除件数の取得に失敗: %w", err)
	}
	return n, nil
}
