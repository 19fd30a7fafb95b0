package syncer

import (
	"context"
	"log"
	"slices"
	"sync"
	"time"

	"github.com/nao1215/notifyhub/pkg/api"
)

// 既定値。
const (
	DefaultInterval = 10 * time.Second
	DefaultPageSize = 50
	// DefaultMaxPages は1回の同期で続けて取得するページ数の上限。
	DefaultMaxPages = 5
)

// API はEngineが使うサーバーAPI。
type API interface {
	Version(ctx context.Context) (*api.VersionResponse, error)
	ListNotifications(ctx context.Context, after string, limit int) ([]api.Notification, error)
}

// Sink は取得した通知の取り込み先。カーソルの保持も担う。
type Sink interface {
	Cursor() string
	AdvanceCursor(id string)
	// ReceiveViaPoll は通知を取り込み、新たに表示したアラートの数を返す。
	ReceiveViaPoll(items []api.Notification) int
}

// Result は1回の同期の結果。
type Result struct {
	// Changed はnotification_versionの変化を検知したか。
	Changed bool
	// Fetched は取得した通知の件数。
	Fetched int
	// Alerts は新たに表示したアラートの件数。
	Alerts int
	// NotificationVersion は同期後に記録しているバージョン。
	NotificationVersion uint64
}

// Engine はサーバーのバージョンを定期的に確認し、変化があれば通知を取り込む。
type Engine struct {
	api      API
	sink     Sink
	interval time.Duration
	pageSize int
	maxPages int

	// OnDataChanged はdata_versionの変化を検知したときに呼ばれる。
	OnDataChanged func(version uint64)
	// AfterSync は通知を取り込んだ同期の後に呼ばれる。
	AfterSync func(Result)

	trigger chan struct{}

	// syncMu は同期処理を直列化し、以下のバージョンを保護する。
	syncMu      sync.Mutex
	haveVersion bool
	lastNotif   uint64
	lastData    uint64

	// mu は実行状態を保護する。
	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// Option はEngineの生成オプション。
type Option func(*Engine)

// WithInterval はポーリング間隔を変更する。
func WithInterval(d time.Duration) Option {
	return func(e *Engine) {
		e.interval = d
	}
}

// WithPageSize は1ページの取得件数を変更する。
func WithPageSize(n int) Option {
	return func(e *Engine) {
		e.pageSize = n
	}
}

// NewEngine はEngineを生成する。
func NewEngine(a API, sink Sink, opts ...Option) *Engine {
	e := &Engine{
		api:      a,
		sink:     sink,
		interval: DefaultInterval,
		pageSize: DefaultPageSize,
		maxPages: DefaultMaxPages,
		trigger:  make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Start はバックグラウンドでポーリングを開始する。起動直後に1回同期する。
// すでに実行中の場合は何もせず false を返す。
func (e *Engine) Start(ctx context.Context) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cancel != nil {
		return false
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	e.cancel = cancel
	e.done = done

	go func() {
		defer close(done)
		log.Printf("[Sync] ポーリングを開始します: interval=%s", e.interval)
		ticker := time.NewTicker(e.interval)
		defer ticker.Stop()

		for {
			if _, err := e.SyncOnce(ctx); err != nil && ctx.Err() == nil {
				log.Printf("[Sync] 同期に失敗しました: %v", err)
			}
			select {
			case <-ctx.Done():
				log.Printf("[Sync] ポーリングを停止しました")
				return
			case <-ticker.C:
			case <-e.trigger:
			}
		}
	}()
	return true
}

// Stop はポーリングを停止し、実行中の同期が終わるまで待つ。
func (e *Engine) Stop() {
	e.mu.Lock()
	cancel, done := e.cancel, e.done
	e.cancel, e.done = nil, nil
	e.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Running は実行中かを返す。
func (e *Engine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cancel != nil
}

// Trigger は次のティックを待たずに同期を要求する。
// すでに要求済みの場合は何もしない。
func (e *Engine) Trigger() {
	select {
	case e.trigger <- struct{}{}:
	default:
	}
}

// SyncOnce は1回分の同期を行う。通信に失敗した場合はカーソルもバージョンも進めない。
func (e *Engine) SyncOnce(ctx context.Context) (Result, error) {
	e.syncMu.Lock()
	defer e.syncMu.Unlock()

	v, err := e.api.Version(ctx)
	if err != nil {
		return Result{NotificationVersion: e.lastNotif}, err
	}

	if e.haveVersion && v.DataVersion != e.lastData && e.OnDataChanged != nil {
		e.OnDataChanged(v.DataVersion)
	}
	e.lastData = v.DataVersion

	if e.haveVersion && v.NotificationVersion == e.lastNotif {
		return Result{NotificationVersion: e.lastNotif}, nil
	}

	res := Result{Changed: true}
	cursor := e.sink.Cursor()
	more := false
	for page := 0; page < e.maxPages; page++ {
		items, err := e.api.ListNotifications(ctx, cursor, e.pageSize)
		if err != nil {
			res.NotificationVersion = e.lastNotif
			return res, err
		}
		if len(items) == 0 {
			more = false
			break
		}
		if cursor == "" {
			// 初回は新しい順で返るため古い順に並べ替える
			slices.Reverse(items)
		}

		res.Fetched += len(items)
		res.Alerts += e.sink.ReceiveViaPoll(items)
		newest := items[len(items)-1].ID
		e.sink.AdvanceCursor(newest)

		more = cursor != "" && len(items) >= e.pageSize
		if !more {
			break
		}
		cursor = newest
	}

	if res.Fetched == 0 && e.sink.Cursor() != "" {
		// バージョンが変わったのに差分が見えない場合は次のティックで再試行する
		res.NotificationVersion = e.lastNotif
		return res, nil
	}

	if more {
		// ページ数の上限に達したため残りは次の同期で取得する
		e.Trigger()
	} else {
		e.haveVersion = true
		e.lastNotif = v.NotificationVersion
	}
	res.NotificationVersion = e.lastNotif
	if e.AfterSync != nil {
		e.AfterSync(res)
	}
	return res, nil
}
