package feed

import (
	"log"
	"sync"

	"github.com/hashicorp/golang-lru/v2/simplelru"
	"github.com/nao1215/notifyhub/pkg/api"
)

// LogPresenter はアラートをログに出力するPresenter。
// 表示済みのidを覚えておき、同じidは1回だけ出力する。
type LogPresenter struct {
	mu    sync.Mutex
	shown *simplelru.LRU[string, struct{}]
	out   func(format string, v ...any)
}

// NewLogPresenter はLogPresenterを生成する。
func NewLogPresenter() *LogPresenter {
	return &LogPresenter{
		shown: newOrdered[struct{}](MaxFeed),
		out:   log.Printf,
	}
}

// Present はアラートを出力する。表示済みのidは無視する。
func (p *LogPresenter) Present(n api.Notification) {
	p.mu.Lock()
	if p.shown.Contains(n.ID) {
		p.mu.Unlock()
		return
	}
	p.shown.Add(n.ID, struct{}{})
	p.mu.Unlock()

	p.out("[Feed] 通知: %s - %s (id=%s, session=%s)", n.Title, n.Body, n.ID, n.SessionID)
}
