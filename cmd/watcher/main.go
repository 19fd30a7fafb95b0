// notifyhubウォッチャーのエントリポイント。
// サーバーの通知をポーリングで同期し、プッシュで届いた通知と突き合わせて
// 同じ通知のアラートを1回だけ表示する。ローカルブリッジで既読操作を受け付ける。
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nao1215/notifyhub/internal/config"
	"github.com/nao1215/notifyhub/internal/feed"
	"github.com/nao1215/notifyhub/internal/syncer"
	"github.com/nao1215/notifyhub/internal/watcher"
	"github.com/nao1215/notifyhub/pkg/api"
)

const shutdownTimeout = 5 * time.Second

func main() {
	path := flag.String("config", config.DefaultWatcherPath(), "設定ファイルのパス")
	flag.Parse()

	cfg, err := config.LoadWatcher(*path)
	if err != nil {
		log.Fatalf("設定の読み込みに失敗: %v", err)
	}
	if cfg.Token == "" {
		ring, err := config.OpenKeyring(cfg.KeyringPassword)
		if err != nil {
			log.Printf("キーリングを開けません: %v", err)
		}
		if err := cfg.ResolveToken(ring); err != nil {
			log.Fatalf("%v", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Fatalf("ウォッチャーの実行に失敗: %v", err)
	}
}

func run(ctx context.Context, cfg *config.Watcher) error {
	client := syncer.NewClient(cfg.ServerURL, cfg.Token, cfg.Timeout)
	tracker := feed.NewTracker(feed.NewLogPresenter(), client)

	st, err := feed.LoadState(cfg.StateFile)
	if err != nil {
		log.Printf("[Feed] 保存済みの状態を読み込めないため、初期状態から開始します: %v", err)
	} else {
		tracker.Restore(st)
	}

	persist := func() {
		if err := feed.SaveState(cfg.StateFile, tracker.Snapshot()); err != nil {
			log.Printf("[Feed] 状態の保存に失敗しました: %v", err)
		}
	}

	engine := syncer.NewEngine(client, tracker, syncer.WithInterval(cfg.Interval))
	engine.AfterSync = func(res syncer.Result) {
		if res.Alerts > 0 {
			log.Printf("[Sync] 新しい通知: %d件 (未読 %d件)", res.Alerts, tracker.UnreadCount())
		}
		persist()
	}
	tracker.Refresh = engine.Trigger

	if cfg.Push.Token != "" {
		registerPush(ctx, client, cfg.Push)
	}

	bridge := &http.Server{
		Addr:              cfg.Listen,
		Handler:           watcher.NewServer(tracker, engine).Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Printf("ローカルブリッジを起動します: %s", cfg.Listen)
		if err := bridge.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	engine.Start(ctx)

	var runErr error
	select {
	case runErr = <-errCh:
	case <-ctx.Done():
	}

	log.Printf("ウォッチャーを停止します")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if serr := bridge.Shutdown(shutdownCtx); serr != nil {
		log.Printf("ローカルブリッジの停止に失敗: %v", serr)
	}
	engine.Stop()
	tracker.Wait()
	persist()
	return runErr
}

// registerPush はこの端末のプッシュ送信先を登録する。失敗してもポーリングで同期できるため続行する。
func registerPush(ctx context.Context, client *syncer.Client, p config.PushConfig) {
	req := api.PushRegisterRequest{
		Platform:    p.Platform,
		Token:       p.Token,
		Environment: p.Environment,
	}
	if err := client.RegisterPush(ctx, req); err != nil {
		log.Printf("[Push] プッシュ送信先の登録に失敗しました: %v", err)
		return
	}
	log.Printf("[Push] プッシュ送信先を登録しました: platform=%s environment=%s", p.Platform, p.Environment)
}
