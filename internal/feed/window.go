package feed

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/simplelru"
)

// newOrdered は容量を超えると最も古い要素から捨てる順序付きマップを生成する。
// Peek/Containsのみで参照するため、順序は追加順になる。
func newOrdered[V any](size int) *simplelru.LRU[string, V] {
	l, err := simplelru.NewLRU[string, V](size, nil)
	if err != nil {
		// sizeが0以下の場合のみ
		panic(err)
	}
	return l
}

// Receipt はプッシュで受信した通知の記録。
type Receipt struct {
	ID         string    `json:"id"`
	ReceivedAt time.Time `json:"received_at"`
}

// receiptWindow はプッシュ受信の記録を一定時間だけ保持する。
type receiptWindow struct {
	ttl time.Duration
	lru *simplelru.LRU[string, time.Time]
}

func newReceiptWindow(size int, ttl time.Duration) *receiptWindow {
	return &receiptWindow{ttl: ttl, lru: newOrdered[time.Time](size)}
}

// add はidを記録する。記録済みの場合は受信時刻を更新して最新扱いにする。
func (w *receiptWindow) add(id string, at time.Time) {
	w.lru.Add(id, at)
}

// prune はttlを過ぎた記録を古い順に捨てる。
func (w *receiptWindow) prune(now time.Time) {
	for {
		_, at, ok := w.lru.GetOldest()
		if !ok || now.Sub(at) < w.ttl {
			return
		}
		w.lru.RemoveOldest()
	}
}

func (w *receiptWindow) contains(id string) bool {
	return w.lru.Contains(id)
}

func (w *receiptWindow) len() int {
	return w.lru.Len()
}

// receipts は記録を古い順に返す。
func (w *receiptWindow) receipts() []Receipt {
	out := make([]Receipt, 0, w.lru.Len())
	for _, id := range w.lru.Keys() {
		at, _ := w.lru.Peek(id)
		out = append(out, Receipt{ID: id, ReceivedAt: at})
	}
	return out
}
