package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/nao1215/notifyhub/internal/store"
	"github.com/nao1215/notifyhub/pkg/event"
)

// Generator はイベントから通知を生成して保存する。
type Generator struct {
	store    *store.Store
	cooldown *Cooldown
	newID    func() string
}

// NewGenerator はGeneratorを生成する。cooldownがnilの場合は抑制しない。
func NewGenerator(s *store.Store, cooldown *Cooldown) *Generator {
	return &Generator{
		store:    s,
		cooldown: cooldown,
		newID:    uuid.NewString,
	}
}

// deepLink はコンシューマーに転送するペイロード。
type deepLink struct {
	SessionID string `json:"session_id"`
	DeviceID  string `json:"device_id"`
}

// Generate はイベントが通知対象であれば通知を保存し、notification_version を進める。
// 通知対象でない場合や抑制された場合は nil を返す。
// txはイベントの保存と同じトランザクションであり、エラー時は全体がロールバックされる。
// 通知を返した場合、トランザクションがコミットされなければ呼び出し元はreleaseを呼び、
// クールダウンの記録を取り消すこと。
func (g *Generator) Generate(ctx context.Context, tx *sqlx.Tx, eventID int64, p *event.Payload) (n *store.Notification, release func(), err error) {
	cls, ok := Classify(p.Event.HookEventName, p.Event.NotificationType)
	if !ok {
		return nil, nil, nil
	}
	release = func() {}
	if g.cooldown != nil {
		release, ok = g.cooldown.Reserve(p.Event.SessionID, cls.Category)
		if !ok {
			log.Printf("[Notification] クールダウン中のため通知を抑制しました: session=%s type=%s", p.Event.SessionID, cls.Category)
			return nil, nil, nil
		}
	}

	n, err = g.generate(ctx, tx, eventID, p, cls)
	if err != nil {
		release()
		return nil, nil, err
	}
	return n, release, nil
}

func (g *Generator) generate(ctx context.Context, tx *sqlx.Tx, eventID int64, p *event.Payload, cls Classification) (*store.Notification, error) {
	sessionTitle, err := g.store.SessionTitle(ctx, tx, p.Event.SessionID)
	if err != nil {
		return nil, err
	}
	title, body := Render(cls.Template, Fields{
		Origin:       p.Origin(),
		ToolName:     p.Event.ToolName,
		Message:      p.Event.Message,
		SessionTitle: sessionTitle,
	})

	payload, err := json.Marshal(deepLink{SessionID: p.Event.SessionID, DeviceID: p.Device.DeviceID})
	if err != nil {
		return nil, fmt.Errorf("通知ペイロードのシリアライズに失敗: %w", err)
	}

	n := &store.Notification{
		ID:          g.newID(),
		EventID:     eventID,
		SessionID:   p.Event.SessionID,
		DeviceID:    p.Device.DeviceID,
		Title:       title,
		Body:        body,
		Category:    cls.Category,
		PayloadJSON: string(payload),
	}
	if err := g.store.InsertNotification(ctx, tx, n); err != nil {
		return nil, err
	}
	if _, err := g.store.BumpCounter(ctx, tx, store.KeyNotificationVersion); err != nil {
		return nil, err
	}
	return n, nil
}
