// Package feed はプッシュとポーリングの2経路で届く通知を突き合わせ、
// 同じ通知のアラートを二重に表示しないためのローカル状態を管理する。
//
// プッシュ受信の記録、ローカルの通知一覧、既読集合はいずれも上限付きで、
// 上限を超えると古いものから捨てる。状態はTrackerが1つのミューテックスで保護する。
package feed
