// Package push は通知をプッシュゲートウェイ（APNs）へ配信する。
//
// プロバイダートークン（ES256のJWT）を50分ごとに再署名してキャッシュし、
// HTTP/2で送信先ごとに配信する。配信は取り込みリクエストとは独立して
// バックグラウンドで行われ、失敗はログに記録するだけで呼び出し元には返さない。
// 取りこぼしはコンシューマーのポーリングで補完される。
package push
