package push

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/net/http2"

	"github.com/nao1215/notifyhub/internal/store"
	"github.com/nao1215/notifyhub/pkg/api"
)

// ゲートウェイのホスト。送信先の環境ごとに使い分ける。
const (
	ProductionURL = "https://api.push.apple.com"
	SandboxURL    = "https://api.sandbox.push.apple.com"
)

// Outcome は1件の配信結果の分類。
type Outcome int

const (
	// OutcomeDelivered はゲートウェイが受理したことを表す。
	OutcomeDelivered Outcome = iota
	// OutcomePermanent は送信先が無効になったことを表す。送信先は削除する。
	OutcomePermanent
	// OutcomeAuth はプロバイダートークンが拒否されたことを表す。
	OutcomeAuth
	// OutcomeTransient は一時的な失敗を表す。再送はせずポーリングに任せる。
	OutcomeTransient
	// OutcomeFailed はその他の失敗を表す。
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeDelivered:
		return "delivered"
	case OutcomePermanent:
		return "permanent"
	case OutcomeAuth:
		return "auth"
	case OutcomeTransient:
		return "transient"
	default:
		return "failed"
	}
}

// Result は1件の配信結果。
type Result struct {
	Outcome    Outcome
	StatusCode int
	// Reason はゲートウェイが返したエラー理由。
	Reason string
	Err    error
}

// Message はゲートウェイへ送る通知の内容。
type Message struct {
	ID        string
	SessionID string
	DeviceID  string
	Title     string
	Body      string
}

// MessageFrom は保存された通知から送信内容を組み立てる。
func MessageFrom(n store.Notification) Message {
	return Message{
		ID:        n.ID,
		SessionID: n.SessionID,
		DeviceID:  n.DeviceID,
		Title:     n.Title,
		Body:      n.Body,
	}
}

// Sender は送信先1件への配信を行う。
type Sender interface {
	Send(ctx context.Context, reg store.Registration, msg Message) Result
	// InvalidateCredential はキャッシュされた認証情報を破棄する。
	InvalidateCredential()
}

// GatewayConfig はGatewayの設定。
type GatewayConfig struct {
	// Topic はapns-topicヘッダーに設定するバンドルID。
	Topic string
	// ProductionURL と SandboxURL は接続先。空の場合は既定のホストを使う。
	ProductionURL string
	SandboxURL    string
	// HTTPClient は空の場合HTTP/2専用のクライアントを使う。
	HTTPClient *http.Client
}

// Gateway はHTTP/2でプッシュゲートウェイに配信する。
type Gateway struct {
	tokens  *TokenSource
	topic   string
	urls    map[string]string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
}

// errTransient はサーキットブレーカーに失敗として数えさせるためのエラー。
var errTransient = errors.New("ゲートウェイの一時的な失敗")

// NewGateway はGatewayを生成する。
func NewGateway(tokens *TokenSource, cfg GatewayConfig) *Gateway {
	if cfg.ProductionURL == "" {
		cfg.ProductionURL = ProductionURL
	}
	if cfg.SandboxURL == "" {
		cfg.SandboxURL = SandboxURL
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{
			Transport: &http2.Transport{},
			Timeout:   10 * time.Second,
		}
	}

	return &Gateway{
		tokens: tokens,
		topic:  cfg.Topic,
		urls: map[string]string{
			api.EnvironmentProduction: cfg.ProductionURL,
			api.EnvironmentSandbox:    cfg.SandboxURL,
		},
		client: client,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "apns",
			MaxRequests: 1,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				log.Printf("[Push] サーキットブレーカー %s: %s -> %s", name, from, to)
			},
		}),
	}
}

// InvalidateCredential はプロバイダートークンを破棄する。
func (g *Gateway) InvalidateCredential() {
	g.tokens.Invalidate()
}

type apsAlert struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

type aps struct {
	Alert apsAlert `json:"alert"`
	Sound string   `json:"sound"`
}

type gatewayPayload struct {
	APS            aps    `json:"aps"`
	NotificationID string `json:"notification_id"`
	SessionID      string `json:"session_id"`
	DeviceID       string `json:"device_id"`
}

// Send は送信先1件に配信する。ブレーカーが開いている場合は一時的な失敗として扱う。
func (g *Gateway) Send(ctx context.Context, reg store.Registration, msg Message) Result {
	var res Result
	_, err := g.breaker.Execute(func() (interface{}, error) {
		res = g.send(ctx, reg, msg)
		if res.Outcome == OutcomeTransient {
			return nil, errTransient
		}
		return nil, nil
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return Result{Outcome: OutcomeTransient, Err: err}
	}
	return res
}

func (g *Gateway) send(ctx context.Context, reg store.Registration, msg Message) Result {
	base, ok := g.urls[reg.Environment]
	if !ok {
		return Result{Outcome: OutcomeFailed, Err: fmt.Errorf("未知の環境です: %q", reg.Environment)}
	}

	token, err := g.tokens.Token()
	if err != nil {
		return Result{Outcome: OutcomeFailed, Err: err}
	}

	body, err := json.Marshal(gatewayPayload{
		APS:            aps{Alert: apsAlert{Title: msg.Title, Body: msg.Body}, Sound: "default"},
		NotificationID: msg.ID,
		SessionID:      msg.SessionID,
		DeviceID:       msg.DeviceID,
	})
	if err != nil {
		return Result{Outcome: OutcomeFailed, Err: fmt.Errorf("ペイロードのシリアライズに失敗: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/3/device/"+reg.Token, bytes.NewReader(body))
	if err != nil {
		return Result{Outcome: OutcomeFailed, Err: fmt.Errorf("リクエストの作成に失敗: %w", err)}
	}
	req.Header.Set("authorization", "bearer "+token)
	req.Header.Set("apns-topic", g.topic)
	req.Header.Set("apns-push-type", "alert")
	req.Header.Set("apns-priority", "10")
	req.Header.Set("apns-id", msg.ID)
	req.Header.Set("apns-collapse-id", msg.ID)
	req.Header.Set("content-type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return Result{Outcome: OutcomeTransient, Err: fmt.Errorf("ゲートウェイへの送信に失敗: %w", err)}
	}
	defer func() { _ = resp.Body.Close() }()

	var reason struct {
		Reason string `json:"reason"`
	}
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		_ = json.Unmarshal(b, &reason)
	}
	return classify(resp.StatusCode, reason.Reason)
}

// classify はゲートウェイのステータスコードと理由から配信結果を分類する。
func classify(status int, reason string) Result {
	res := Result{StatusCode: status, Reason: reason}
	switch {
	case status == http.StatusOK:
		res.Outcome = OutcomeDelivered
	case status == http.StatusGone:
		res.Outcome = OutcomePermanent
	case status == http.StatusBadRequest && (reason == "BadDeviceToken" || reason == "DeviceTokenNotForTopic"):
		res.Outcome = OutcomePermanent
	case status == http.StatusForbidden:
		res.Outcome = OutcomeAuth
	case status == http.StatusTooManyRequests,
		status == http.StatusInternalServerError,
		status == http.StatusServiceUnavailable:
		res.Outcome = OutcomeTransient
	default:
		res.Outcome = OutcomeFailed
	}
	return res
}
