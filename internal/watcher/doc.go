// Package watcher はクライアント端末上で動くローカルのHTTPブリッジを提供する。
//
// OSのプッシュ受信コールバックからの通知idの受け取りと、
// 通知一覧の参照や既読操作をローカルのTrackerに中継する。
package watcher
