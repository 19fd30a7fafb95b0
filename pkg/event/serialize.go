package event

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrInvalidPayload はイベントペイロードの検証に失敗したことを表す。
var ErrInvalidPayload = errors.New("イベントペイロードが不正です")

// Decode はJSONバイト列をPayloadにデシリアライズし、必須項目を検証する。
func Decode(data []byte) (*Payload, error) {
	var p Payload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("イベントデータのデシリアライズに失敗: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Validate は必須項目とタイムスタンプ形式を検証する。
func (p *Payload) Validate() error {
	if p.Device.DeviceID == "" {
		return fmt.Errorf("%w: device_id は必須です", ErrInvalidPayload)
	}
	if p.Event.SessionID == "" {
		return fmt.Errorf("%w: session_id は必須です", ErrInvalidPayload)
	}
	if p.Event.HookEventName == "" {
		return fmt.Errorf("%w: hook_event_name は必須です", ErrInvalidPayload)
	}
	if _, err := time.Parse(time.RFC3339, p.Timestamp); err != nil {
		return fmt.Errorf("%w: timestamp はRFC3339形式である必要があります", ErrInvalidPayload)
	}
	return nil
}

// EncodeData はイベント本体を保存用のJSON文字列に変換する。
func (p *Payload) EncodeData() (string, error) {
	b, err := json.Marshal(p.Event)
	if err != nil {
		return "", fmt.Errorf("イベントデータのシリアライズに失敗: %w", err)
	}
	return string(b), nil
}
