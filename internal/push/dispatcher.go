package push

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nao1215/notifyhub/internal/store"
)

// 配信の既定値。
const (
	DefaultDispatchTimeout = 10 * time.Second
	DefaultFanOutLimit     = 8
)

// Registrations は送信先の一覧取得と削除を行う。
type Registrations interface {
	ListRegistrations(ctx context.Context) ([]store.Registration, error)
	DeleteRegistration(ctx context.Context, token string) error
}

// Dispatcher は通知を全送信先へ非同期に配信する。
type Dispatcher struct {
	regs    Registrations
	sender  Sender
	timeout time.Duration
	limit   int
	wg      sync.WaitGroup
}

// DispatcherOption はDispatcherの生成オプション。
type DispatcherOption func(*Dispatcher)

// WithTimeout は1回の配信全体の期限を変更する。
func WithTimeout(d time.Duration) DispatcherOption {
	return func(disp *Dispatcher) {
		disp.timeout = d
	}
}

// WithFanOutLimit は同時に配信する送信先の数を変更する。
func WithFanOutLimit(n int) DispatcherOption {
	return func(disp *Dispatcher) {
		disp.limit = n
	}
}

// NewDispatcher はDispatcherを生成する。
func NewDispatcher(regs Registrations, sender Sender, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		regs:    regs,
		sender:  sender,
		timeout: DefaultDispatchTimeout,
		limit:   DefaultFanOutLimit,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch は通知の配信をバックグラウンドで開始し、すぐに戻る。
// 配信の失敗は呼び出し元に伝わらない。
func (d *Dispatcher) Dispatch(n store.Notification) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()
		d.deliver(ctx, MessageFrom(n))
	}()
}

// Wait は実行中の配信が全て終わるまで待つ。
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// deliver は全送信先へ並行して配信する。
func (d *Dispatcher) deliver(ctx context.Context, msg Message) {
	regs, err := d.regs.ListRegistrations(ctx)
	if err != nil {
		log.Printf("[Push] 送信先一覧の取得に失敗: %v", err)
		return
	}
	if len(regs) == 0 {
		return
	}

	var g errgroup.Group
	g.SetLimit(d.limit)
	for _, reg := range regs {
		g.Go(func() error {
			d.deliverOne(ctx, reg, msg)
			return nil
		})
	}
	_ = g.Wait()
}

// deliverOne は送信先1件に配信し、結果に応じて後処理を行う。
// 認証エラーの場合はトークンを破棄して1回だけ再送する。
func (d *Dispatcher) deliverOne(ctx context.Context, reg store.Registration, msg Message) {
	res := d.sender.Send(ctx, reg, msg)
	if res.Outcome == OutcomeAuth {
		log.Printf("[Push] 認証エラーのためトークンを再署名して再送します: notification=%s", msg.ID)
		d.sender.InvalidateCredential()
		res = d.sender.Send(ctx, reg, msg)
	}

	switch res.Outcome {
	case OutcomeDelivered:
		return
	case OutcomePermanent:
		err := d.regs.DeleteRegistration(ctx, reg.Token)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			log.Printf("[Push] 無効な送信先の削除に失敗: id=%d err=%v", reg.ID, err)
			return
		}
		log.Printf("[Push] 無効な送信先を削除しました: id=%d status=%d reason=%s", reg.ID, res.StatusCode, res.Reason)
	default:
		log.Printf("[Push] 配信に失敗しました: notification=%s id=%d outcome=%s status=%d reason=%s err=%v",
			msg.ID, reg.ID, res.Outcome, res.StatusCode, res.Reason, res.Err)
	}
}
