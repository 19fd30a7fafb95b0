// Package notification はイベントから通知を生成し、APIとして公開する。
//
// 受信したイベントを分類して通知対象かを判定し、タイトルと本文を描画して
// 保存する。保存はイベントの保存と同じトランザクションで行い、コミット後に
// 変更検知用カウンタを進めてプッシュ配信を非同期に起動する。
// コンシューマーはバージョン確認と差分取得のAPIで取りこぼしを補完する。
package notification
