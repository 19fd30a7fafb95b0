package event

// Type はプロデューサーから送信されるイベントの種類を表す。
type Type string

const (
	// TypeSessionStart はセッションが開始されたことを表す。
	TypeSessionStart Type = "SessionStart"
	// TypeSessionEnd はセッションが終了したことを表す。
	TypeSessionEnd Type = "SessionEnd"
	// TypeUserPromptSubmit はユーザーがプロンプトを送信したことを表す。
	TypeUserPromptSubmit Type = "UserPromptSubmit"
	// TypeStop はセッションが停止し入力待ちになったことを表す。
	TypeStop Type = "Stop"
	// TypeNotification はセッションからの通知要求を表す。サブタイプで内容が決まる。
	TypeNotification Type = "Notification"
	// TypePermissionRequest はツール実行の許可要求を表す。
	TypePermissionRequest Type = "PermissionRequest"
	// TypeSubagentStart はサブエージェントが開始されたことを表す。
	TypeSubagentStart Type = "SubagentStart"
	// TypeSubagentStop はサブエージェントが停止したことを表す。
	TypeSubagentStop Type = "SubagentStop"
)

const (
	// SubtypePermissionPrompt は許可待ちの通知サブタイプ。
	SubtypePermissionPrompt = "permission_prompt"
	// SubtypeIdlePrompt はアイドル状態の通知サブタイプ。
	SubtypeIdlePrompt = "idle_prompt"
)

// Payload はPOST /api/v1/events で受け付けるイベントの全体構造。
type Payload struct {
	// Device はイベントを送信した端末の情報。
	Device Device `json:"device"`
	// Event はイベント本体。
	Event Data `json:"event"`
	// Timestamp はプロデューサー側でイベントが発生した日時（RFC3339形式）。
	Timestamp string `json:"timestamp"`
}

// Device はイベント送信元の端末情報。
type Device struct {
	// DeviceID は端末の一意識別子。
	DeviceID string `json:"device_id"`
	// DeviceName は端末の表示名（ホスト名など）。
	DeviceName string `json:"device_name"`
	// Platform は端末のプラットフォーム（macos, linux など）。
	Platform string `json:"platform"`
}

// Data はイベント固有のフィールド。
// サーバーが参照するフィールドのみを保持し、未知のフィールドは破棄される。
type Data struct {
	// SessionID はイベントが属するセッションの識別子。
	SessionID string `json:"session_id"`
	// HookEventName はイベントの種類。
	HookEventName Type `json:"hook_event_name"`
	// Cwd はセッションの作業ディレクトリ。
	Cwd string `json:"cwd,omitempty"`
	// Prompt はユーザーが送信したプロンプト。
	Prompt string `json:"prompt,omitempty"`
	// NotificationType は通知イベントのサブタイプ。
	NotificationType string `json:"notification_type,omitempty"`
	// ToolName は許可要求の対象ツール名。
	ToolName string `json:"tool_name,omitempty"`
	// Message は任意の自由記述メッセージ。
	Message string `json:"message,omitempty"`
}

// Origin は通知に表示する送信元の識別子を返す。
// 端末名が空の場合は端末IDを使う。
func (p *Payload) Origin() string {
	if p.Device.DeviceName != "" {
		return p.Device.DeviceName
	}
	return p.Device.DeviceID
}
