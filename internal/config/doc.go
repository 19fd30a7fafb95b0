// Package config はサーバーとウォッチャーの設定を読み込む。
//
// サーバーは環境変数（.envファイルがあれば先に読み込む）から、
// ウォッチャーはYAMLファイルと環境変数から設定を組み立てる。
// ウォッチャーのAPIトークンは設定になければOSのキーリングから取得する。
package config
