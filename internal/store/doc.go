// Package store はnotifyhubサーバーの永続化層を提供する。
//
// SQLite（modernc.org/sqlite）をsqlx経由で利用し、イベント、通知、
// プッシュ送信先、変更検知用カウンタを保存する。書き込みは単一接続に
// 直列化され、イベントの保存と通知の生成は1つのトランザクションで行う。
package store
