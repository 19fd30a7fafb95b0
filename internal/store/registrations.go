package store

import (
	"context"
	"fmt"
)

// Registration はpush_registrationsテーブルの1行。
type Registration struct {
	ID       int64  `db:"id"`
	Token    string `db:"token"`
	Platform string `db:"platform"`
	// Environment は sandbox か production。送信先ゲートウェイを決める。
	Environment     string `db:"environment"`
	RegisteredAt    int64  `db:"registered_at"`
	LastConfirmedAt int64  `db:"last_confirmed_at"`
}

// UpsertRegistration は送信先を登録する。同じトークンが登録済みの場合は
// platform、environment、last_confirmed_at を更新する。
func (s *Store) UpsertRegistration(ctx context.Context, r *Registration) error {
	now := s.nowMillis()
	r.RegisteredAt = now
	r.LastConfirmedAt = now
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO push_registrations (token, platform, environment, registered_at, last_confirmed_at)
		VALUES (:token, :platform, :environment, :registered_at, :last_confirmed_at)
		ON CONFLICT(token) DO UPDATE SET
			platform = excluded.platform,
			environment = excluded.environment,
			last_confirmed_at = excluded.last_confirmed_at`, r)
	if err != nil {
		return fmt.Errorf("プッシュ送信先の登録に失敗: %w", err)
	}
	return nil
}

// ListRegistrations は全ての送信先を登録順に返す。
func (s *Store) ListRegistrations(ctx context.Context) ([]Registration, error) {
	var regs []Registration
	if err := s.db.SelectContext(ctx, &regs, `SELECT * FROM push_registrations ORDER BY id`); err != nil {
		return nil, fmt.Errorf("プッシュ送信先一覧の取得に失敗: %w", err)
	}
	return regs, nil
}

// DeleteRegistration はトークンに対応する送信先を削除する。
// 該当する送信先がない場合はErrNotFoundを返す。
func (s *Store) DeleteRegistration(ctx context.Context, token string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM push_registrations WHERE token = ?`, token)
	if err != nil {
		return fmt.Errorf("プッシュ送信先の削除に失敗: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
