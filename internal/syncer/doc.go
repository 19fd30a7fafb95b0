// Package syncer はwatcher側でサーバーの通知を定期的に取り込む。
//
// 軽量なバージョン確認で変更を検知し、変更があった場合のみ
// 前回のカーソル以降の通知を取得して取り込み先に渡す。
// 通信に失敗したティックは何も進めず、次のティックで再試行する。
package syncer
