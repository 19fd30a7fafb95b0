// Package httpclient はnotifyhub APIを呼び出すJSONクライアントを提供する。
//
// watcherプロセスがサーバーのバージョン確認、通知一覧の取得、既読通知の送信、
// プッシュトークンの登録を行う際に使用する。Bearerトークンの付与と
// 短いタイムアウトの設定をここで統一する。
package httpclient
