package notification

import (
	"github.com/nao1215/notifyhub/pkg/api"
	"github.com/nao1215/notifyhub/pkg/event"
)

// Template は通知本文の描画テンプレートの種類。
type Template int

const (
	// TemplateStop はセッション停止の通知。
	TemplateStop Template = iota + 1
	// TemplatePermission は許可要求の通知。
	TemplatePermission
	// TemplateIdle は入力待ちの通知。
	TemplateIdle
)

// Classification は通知対象と判定されたイベントの分類結果。
type Classification struct {
	// Category はワイヤー上のnotification_type。
	Category string
	// Template は本文の描画に使うテンプレート。
	Template Template
}

// Classify はイベントの種類とサブタイプから通知対象かを判定する。
// 通知対象でない場合や未知の組み合わせの場合は false を返す。
func Classify(eventType event.Type, subtype string) (Classification, bool) {
	switch eventType {
	case event.TypeStop:
		return Classification{Category: api.CategoryStop, Template: TemplateStop}, true
	case event.TypeNotification:
		switch subtype {
		case event.SubtypePermissionPrompt:
			return Classification{Category: api.CategoryPermissionPrompt, Template: TemplatePermission}, true
		case event.SubtypeIdlePrompt:
			return Classification{Category: api.CategoryIdlePrompt, Template: TemplateIdle}, true
		}
	case event.TypePermissionRequest:
		return Classification{Category: api.CategoryPermissionPrompt, Template: TemplatePermission}, true
	}
	return Classification{}, false
}
