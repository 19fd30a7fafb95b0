package notification

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/nao1215/notifyhub/internal/store"
)

// Counters は変更検知用のカウンタをメモリ上に保持する。
// 起動時に永続化された値を読み込み、以降はコミット後にのみ1ずつ増やす。
// 値が見えた時点で対応する行は必ず読み出せる。
type Counters struct {
	data          atomic.Uint64
	notifications atomic.Uint64
}

// LoadCounters は永続化されたカウンタを読み込んでCountersを生成する。
func LoadCounters(ctx context.Context, s *store.Store) (*Counters, error) {
	data, err := s.LoadCounter(ctx, store.KeyDataVersion)
	if err != nil {
		return nil, fmt.Errorf("data_version の読み込みに失敗: %w", err)
	}
	notif, err := s.LoadCounter(ctx, store.KeyNotificationVersion)
	if err != nil {
		return nil, fmt.Errorf("notification_version の読み込みに失敗: %w", err)
	}
	c := &Counters{}
	c.data.Store(data)
	c.notifications.Store(notif)
	return c, nil
}

// CommittedEvent はイベントのコミット後に呼び出し、data_version を進める。
func (c *Counters) CommittedEvent() uint64 {
	return c.data.Add(1)
}

// CommittedNotification は通知のコミット後に呼び出し、notification_version を進める。
func (c *Counters) CommittedNotification() uint64 {
	return c.notifications.Add(1)
}

// DataVersion は現在の data_version を返す。
func (c *Counters) DataVersion() uint64 {
	return c.data.Load()
}

// NotificationVersion は現在の notification_version を返す。
func (c *Counters) NotificationVersion() uint64 {
	return c.notifications.Load()
}
