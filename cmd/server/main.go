// notifyhubサーバーのエントリポイント。
// プロデューサーからイベントを受け取り、通知を生成・保存してプッシュ配信する。
// コンシューマーはバージョン確認と差分取得で通知を同期する。
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nao1215/notifyhub/internal/config"
	"github.com/nao1215/notifyhub/internal/notification"
	"github.com/nao1215/notifyhub/internal/push"
	"github.com/nao1215/notifyhub/internal/store"
)

// shutdownTimeout はHTTPサーバーの停止を待つ上限。
const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.LoadServer()
	if err != nil {
		log.Fatalf("設定の読み込みに失敗: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Fatalf("notifyhubサーバーの実行に失敗: %v", err)
	}
}

func run(ctx context.Context, cfg *config.Server) error {
	s, err := store.Open(ctx, cfg.DBPath)
	if err != nil {
		return err
	}
	defer s.Close()

	counters, err := notification.LoadCounters(ctx, s)
	if err != nil {
		return err
	}

	var dispatcher *push.Dispatcher
	var svcDispatcher notification.Dispatcher
	if cfg.PushEnabled() {
		tokens, err := push.LoadTokenSource(cfg.APNsKeyPath, cfg.APNsKeyID, cfg.APNsTeamID)
		if err != nil {
			return err
		}
		gw := push.NewGateway(tokens, push.GatewayConfig{Topic: cfg.APNsTopic})
		dispatcher = push.NewDispatcher(s, gw,
			push.WithTimeout(cfg.DispatchTimeout),
			push.WithFanOutLimit(cfg.FanOutLimit),
		)
		svcDispatcher = dispatcher
		log.Printf("[Push] プッシュ配信を有効にしました: topic=%s", cfg.APNsTopic)
	} else {
		log.Printf("[Push] APNsの鍵が設定されていないため、プッシュ配信は行いません")
	}

	var cooldown *notification.Cooldown
	if cfg.Cooldown > 0 {
		cooldown = notification.NewCooldown(cfg.Cooldown)
	}
	svc := notification.NewService(s, notification.NewGenerator(s, cooldown), counters, svcDispatcher, cfg.Retention)
	srv := notification.NewServer(svc, s, cfg.JWTSecret, cfg.DefaultEnvironment)

	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("notifyhubサーバーを起動します: %s", cfg.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
	}

	log.Printf("notifyhubサーバーを停止します")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTPサーバーの停止に失敗: %v", err)
	}
	if dispatcher != nil {
		// 配信中のプッシュは期限付きなので完了を待つ
		dispatcher.Wait()
	}
	return nil
}
