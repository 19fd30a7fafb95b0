package notification

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	// maxBodyRunes は本文の最大文字数。超えた分は省略記号に置き換える。
	maxBodyRunes = 256
	// maxTitleRunes はセッションタイトルの最大文字数。
	maxTitleRunes = 200
	ellipsis      = "…"
)

// Fields は通知本文の描画に使うイベント由来の値。空文字列は未指定として扱う。
type Fields struct {
	// Origin は送信元端末の表示名。
	Origin string
	// ToolName は許可要求の対象ツール。
	ToolName string
	// Message はイベントに含まれる自由記述。
	Message string
	// SessionTitle はセッションの直近のプロンプト。あればタイトルに使う。
	SessionTitle string
}

// Render はテンプレートと値からタイトルと本文を描画する。
// 同じ入力に対して常に同じ結果を返す。
func Render(tmpl Template, f Fields) (title, body string) {
	switch tmpl {
	case TemplateStop:
		title = titleOr(f.SessionTitle, "セッション停止")
		body = "セッションが停止しました: " + or(f.Message, "理由は不明です")
	case TemplatePermission:
		title = titleOr(f.SessionTitle, "許可が必要です")
		body = permissionBody(strings.TrimSpace(f.ToolName), strings.TrimSpace(f.Message))
	case TemplateIdle:
		title = titleOr(f.SessionTitle, "セッション待機中")
		body = "入力待ちです: " + or(f.Message, "入力を待っています")
	default:
		title = titleOr(f.SessionTitle, "通知")
		body = or(f.Message, "新しい通知があります")
	}
	if origin := strings.TrimSpace(f.Origin); origin != "" {
		body = fmt.Sprintf("[%s] %s", origin, body)
	}
	return title, truncate(body, maxBodyRunes)
}

func permissionBody(tool, msg string) string {
	switch {
	case tool != "" && msg != "":
		return fmt.Sprintf("許可が必要です: %s - %s", tool, msg)
	case tool != "":
		return "許可が必要です: " + tool
	case msg != "":
		return "許可が必要です: " + msg
	default:
		return "セッションの続行に許可が必要です"
	}
}

func titleOr(sessionTitle, fallback string) string {
	if t := strings.TrimSpace(sessionTitle); t != "" {
		return truncate(t, maxTitleRunes)
	}
	return fallback
}

func or(v, fallback string) string {
	if v = strings.TrimSpace(v); v != "" {
		return v
	}
	return fallback
}

// truncate は文字単位でn文字を超える部分を切り詰め、末尾に省略記号を付ける。
// 省略記号を含めてn文字に収める。
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n-1]) + ellipsis
}
