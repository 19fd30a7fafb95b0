package notification

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/nao1215/notifyhub/internal/store"
	"github.com/nao1215/notifyhub/pkg/event"
)

// Dispatcher はコミット済みの通知をプッシュ配信する。
// Dispatchは呼び出し元をブロックしてはならない。
type Dispatcher interface {
	Dispatch(n store.Notification)
}

// nopDispatcher はプッシュ配信が無効な場合に使う。
type nopDispatcher struct{}

func (nopDispatcher) Dispatch(store.Notification) {}

// Service はイベントの取り込みと通知の生成をまとめて行う。
type Service struct {
	store      *store.Store
	generator  *Generator
	counters   *Counters
	dispatcher Dispatcher
	retention  time.Duration
}

// NewService はServiceを生成する。dispatcherがnilの場合はプッシュ配信を行わない。
func NewService(s *store.Store, g *Generator, c *Counters, d Dispatcher, retention time.Duration) *Service {
	if d == nil {
		d = nopDispatcher{}
	}
	if retention <= 0 {
		retention = store.DefaultRetention
	}
	return &Service{
		store:      s,
		generator:  g,
		counters:   c,
		dispatcher: d,
		retention:  retention,
	}
}

// Counters は変更検知用カウンタを返す。
func (s *Service) Counters() *Counters {
	return s.counters
}

// IngestResult は取り込み結果。
type IngestResult struct {
	EventID int64
	// Notification は生成された通知。通知対象でない場合はnil。
	Notification *store.Notification
}

// Ingest はイベントを保存し、通知対象であれば通知を生成する。
// イベント、data_version、通知、notification_version は1つのトランザクションで保存する。
// コミット後にメモリ上のカウンタを進め、プッシュ配信を起動し、期限切れの通知を削除する。
func (s *Service) Ingest(ctx context.Context, p *event.Payload) (*IngestResult, error) {
	eventJSON, err := p.EncodeData()
	if err != nil {
		return nil, err
	}

	var (
		res     IngestResult
		release func()
	)
	err = s.store.WithTx(ctx, func(tx *sqlx.Tx) error {
		eventID, err := s.store.InsertEvent(ctx, tx, &store.Event{
			DeviceID:         p.Device.DeviceID,
			SessionID:        p.Event.SessionID,
			HookEventName:    string(p.Event.HookEventName),
			Timestamp:        p.Timestamp,
			ToolName:         p.Event.ToolName,
			NotificationType: p.Event.NotificationType,
			EventJSON:        eventJSON,
		})
		if err != nil {
			return err
		}
		res.EventID = eventID

		if _, err := s.store.BumpCounter(ctx, tx, store.KeyDataVersion); err != nil {
			return err
		}

		n, rel, err := s.generator.Generate(ctx, tx, eventID, p)
		if err != nil {
			return fmt.Errorf("通知の生成に失敗: %w", err)
		}
		res.Notification, release = n, rel
		return nil
	})
	if err != nil {
		// コミットされなかった通知はクールダウンに数えない
		if release != nil {
			release()
		}
		return nil, err
	}

	s.counters.CommittedEvent()
	if res.Notification == nil {
		return &res, nil
	}
	s.counters.CommittedNotification()
	s.dispatcher.Dispatch(*res.Notification)

	if swept, err := s.store.SweepExpiredNotifications(ctx, s.retention); err != nil {
		log.Printf("[Store] 期限切れ通知の削除に失敗: %v", err)
	} else if swept > 0 {
		log.Printf("[Store] 期限切れ通知を%d件削除しました", swept)
	}
	return &res, nil
}
