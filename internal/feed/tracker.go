package feed

import (
	"context"
	"log"
	"slices"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/simplelru"
	"github.com/nao1215/notifyhub/pkg/api"
)

// 保持数と保持期間。
const (
	// ReceiptWindow はプッシュ受信を記録しておく期間。ポーリング間隔より十分長くする。
	ReceiptWindow = 5 * time.Minute
	MaxReceipts   = 500
	MaxRead       = 1000
	MaxFeed       = 200
	// AckTimeout はサーバーへの確認済み通知1回あたりの上限。
	AckTimeout = 5 * time.Second
)

// Presenter はローカルのアラートを表示する。
// 同じidで複数回呼ばれても表示は1回にまとめること。
type Presenter interface {
	Present(n api.Notification)
}

// Acker はサーバーに通知を確認済みとして送る。
type Acker interface {
	AckNotifications(ctx context.Context, ids []string) (int64, error)
}

// Item はローカルの通知一覧の1件。
type Item struct {
	api.Notification
	// Read はローカルで既読にしたか。サーバーで確認済みの通知も既読になる。
	Read bool `json:"read"`
	// Alerted はこの端末でローカルのアラートを表示したか。
	Alerted bool `json:"alerted"`
}

// Tracker はプッシュとポーリングで届いた通知を重複なく一覧にまとめ、既読状態を管理する。
// すべての状態はmuで保護する。
type Tracker struct {
	presenter Presenter
	acker     Acker
	now       func() time.Time

	// Refresh はプッシュ受信時に呼ばれ、次のポーリングを前倒しする。
	Refresh func()

	mu       sync.Mutex
	cursor   string
	receipts *receiptWindow
	read     *simplelru.LRU[string, struct{}]
	items    *simplelru.LRU[string, *Item]

	wg sync.WaitGroup
}

// Option はTrackerの生成オプション。
type Option func(*Tracker)

// WithClock は現在時刻の取得方法を差し替える。テスト用。
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) {
		t.now = now
	}
}

// NewTracker はTrackerを生成する。
func NewTracker(p Presenter, a Acker, opts ...Option) *Tracker {
	t := &Tracker{
		presenter: p,
		acker:     a,
		now:       time.Now,
		receipts:  newReceiptWindow(MaxReceipts, ReceiptWindow),
		read:      newOrdered[struct{}](MaxRead),
		items:     newOrdered[*Item](MaxFeed),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// ReceiveViaPush はプッシュ通知の受信を記録する。
// アラートはOSがすでに表示しているため、ここでは表示しない。
func (t *Tracker) ReceiveViaPush(id string) {
	if id == "" {
		return
	}
	t.mu.Lock()
	now := t.now()
	t.receipts.prune(now)
	t.receipts.add(id, now)
	t.mu.Unlock()

	if t.Refresh != nil {
		t.Refresh()
	}
}

// ReceiveViaPoll はポーリングで取得した通知を古い順に取り込み、表示したアラートの数を返す。
// 一覧にある通知は無視する。プッシュで受信済みの通知とサーバーで確認済みの通知はアラートを出さない。
func (t *Tracker) ReceiveViaPoll(items []api.Notification) int {
	var alerts []api.Notification

	t.mu.Lock()
	t.receipts.prune(t.now())
	for _, n := range items {
		if n.ID == "" || t.items.Contains(n.ID) {
			continue
		}
		item := &Item{Notification: n}
		switch {
		case n.Acknowledged:
			t.markReadLocked(n.ID)
			item.Read = true
		case t.read.Contains(n.ID):
			item.Read = true
		case t.receipts.contains(n.ID):
			// プッシュ側で表示済み
		default:
			item.Alerted = true
			alerts = append(alerts, n)
		}
		t.items.Add(n.ID, item)
	}
	t.mu.Unlock()

	for _, n := range alerts {
		t.presenter.Present(n)
	}
	return len(alerts)
}

// MarkRead は通知を既読にする。新たに既読になった場合はtrueを返す。
func (t *Tracker) MarkRead(id string) bool {
	if id == "" {
		return false
	}
	t.mu.Lock()
	changed := t.markReadLocked(id)
	t.mu.Unlock()

	if changed {
		t.ack([]string{id})
	}
	return changed
}

// MarkSessionRead はセッションの未読通知をすべて既読にし、既読にした件数を返す。
func (t *Tracker) MarkSessionRead(sessionID string) int {
	return t.markWhere(func(it *Item) bool { return it.SessionID == sessionID })
}

// MarkAllRead は未読通知をすべて既読にし、既読にした件数を返す。
func (t *Tracker) MarkAllRead() int {
	return t.markWhere(func(*Item) bool { return true })
}

// markWhere は条件に合う未読通知を既読にし、まとめて1回だけ確認済みを送る。
func (t *Tracker) markWhere(match func(*Item) bool) int {
	var ids []string
	t.mu.Lock()
	for _, id := range t.items.Keys() {
		it, _ := t.items.Peek(id)
		if it.Read || !match(it) {
			continue
		}
		if t.markReadLocked(id) {
			ids = append(ids, id)
		}
	}
	t.mu.Unlock()

	if len(ids) > 0 {
		t.ack(ids)
	}
	return len(ids)
}

// markReadLocked は既読集合と一覧を更新する。t.muを保持して呼ぶこと。
func (t *Tracker) markReadLocked(id string) bool {
	changed := false
	if !t.read.Contains(id) {
		t.read.Add(id, struct{}{})
		changed = true
	}
	if it, ok := t.items.Peek(id); ok && !it.Read {
		it.Read = true
		changed = true
	}
	return changed
}

// ack はサーバーへの確認済み通知を非同期で送る。失敗してもローカルの既読は戻さない。
func (t *Tracker) ack(ids []string) {
	if t.acker == nil {
		return
	}
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), AckTimeout)
		defer cancel()

		n, err := t.acker.AckNotifications(ctx, ids)
		if err != nil {
			log.Printf("[Feed] 確認済みの送信に失敗しました: ids=%d, error=%v", len(ids), err)
			return
		}
		log.Printf("[Feed] 確認済みを送信しました: ids=%d, acknowledged=%d", len(ids), n)
	}()
}

// Wait は送信中の確認済み通知が終わるまで待つ。
func (t *Tracker) Wait() {
	t.wg.Wait()
}

// Feed は一覧を新しい順に返す。
func (t *Tracker) Feed() []Item {
	t.mu.Lock()
	defer t.mu.Unlock()

	keys := t.items.Keys()
	out := make([]Item, 0, len(keys))
	for _, id := range slices.Backward(keys) {
		it, _ := t.items.Peek(id)
		out = append(out, *it)
	}
	return out
}

// UnreadCount は一覧の未読件数を返す。
func (t *Tracker) UnreadCount() int {
	return t.countUnread(func(*Item) bool { return true })
}

// UnreadCountForSession はセッションの未読件数を返す。
func (t *Tracker) UnreadCountForSession(sessionID string) int {
	return t.countUnread(func(it *Item) bool { return it.SessionID == sessionID })
}

func (t *Tracker) countUnread(match func(*Item) bool) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := 0
	for _, id := range t.items.Keys() {
		if it, _ := t.items.Peek(id); !it.Read && match(it) {
			n++
		}
	}
	return n
}

// Cursor はポーリングのカーソルを返す。
func (t *Tracker) Cursor() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cursor
}

// AdvanceCursor はカーソルを進める。
func (t *Tracker) AdvanceCursor(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cursor = id
}

// Snapshot は永続化用に現在の状態を複製する。
func (t *Tracker) Snapshot() State {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.receipts.prune(t.now())
	st := State{
		Cursor:   t.cursor,
		Receipts: t.receipts.receipts(),
		Read:     t.read.Keys(),
		Items:    make([]Item, 0, t.items.Len()),
	}
	for _, id := range t.items.Keys() {
		it, _ := t.items.Peek(id)
		st.Items = append(st.Items, *it)
	}
	return st
}

// Restore は保存済みの状態で置き換える。各要素は古い順に並んでいること。
func (t *Tracker) Restore(st State) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.cursor = st.Cursor
	t.receipts.lru.Purge()
	for _, r := range st.Receipts {
		t.receipts.add(r.ID, r.ReceivedAt)
	}
	t.receipts.prune(t.now())

	t.read.Purge()
	for _, id := range st.Read {
		t.read.Add(id, struct{}{})
	}

	t.items.Purge()
	for _, it := range st.Items {
		item := it
		t.items.Add(item.ID, &item)
	}
}
