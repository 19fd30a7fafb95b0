// Package api はnotifyhubサーバーとwatcherの間でやり取りするJSONの型を定義する。
package api

import "time"

// TimeLayout は通知のcreated_atに使う時刻フォーマット（ミリ秒精度のRFC3339）。
const TimeLayout = "2006-01-02T15:04:05.000Z07:00"

// 通知の種類。
const (
	CategoryStop             = "stop"
	CategoryPermissionPrompt = "permission_prompt"
	CategoryIdlePrompt       = "idle_prompt"
)

// VersionResponse はGET /api/v1/version のレスポンス。
type VersionResponse struct {
	Status              string `json:"status"`
	DataVersion         uint64 `json:"data_version"`
	NotificationVersion uint64 `json:"notification_version"`
}

// Notification は通知1件のワイヤー表現。
type Notification struct {
	// ID は通知の一意識別子。全配信経路で共通の重複排除キー。
	ID string `json:"id"`
	// EventID は通知の元になったイベントの行ID。
	EventID int64 `json:"event_id"`
	// SessionID は通知が属するセッション。
	SessionID string `json:"session_id"`
	// DeviceID は通知の送信元端末。
	DeviceID string `json:"device_id"`
	Title    string `json:"title"`
	Body     string `json:"body"`
	// NotificationType は stop / permission_prompt / idle_prompt のいずれか。
	NotificationType string `json:"notification_type"`
	// Payload はディープリンク用の不透明なJSON。
	Payload map[string]any `json:"payload,omitempty"`
	// CreatedAt はTimeLayout形式の作成日時。
	CreatedAt    string `json:"created_at"`
	Acknowledged bool   `json:"acknowledged"`
}

// CreatedTime はCreatedAtをパースする。パースできない場合はゼロ値を返す。
func (n Notification) CreatedTime() time.Time {
	t, err := time.Parse(TimeLayout, n.CreatedAt)
	if err != nil {
		return time.Time{}
	}
	return t
}

// ListResponse はGET /api/v1/notifications のレスポンス。
type ListResponse struct {
	Notifications []Notification `json:"notifications"`
}

// AckRequest はPOST /api/v1/notifications/ack のリクエスト。
type AckRequest struct {
	IDs []string `json:"ids" binding:"required"`
}

// AckResponse はPOST /api/v1/notifications/ack のレスポンス。
type AckResponse struct {
	Status       string `json:"status"`
	Acknowledged int64  `json:"acknowledged"`
}

// PushRegisterRequest はPOST /api/v1/push/register のリクエスト。
type PushRegisterRequest struct {
	Platform    string `json:"platform" binding:"required"`
	Token       string `json:"token" binding:"required"`
	Environment string `json:"environment"`
}

// プッシュ送信先の環境。
const (
	EnvironmentSandbox    = "sandbox"
	EnvironmentProduction = "production"
)

// StatusResponse は処理結果のみを返すレスポンス。
type StatusResponse struct {
	Status string `json:"status"`
}
