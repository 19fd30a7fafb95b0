// Package middleware はGinベースのHTTP APIで使用する共通ミドルウェアを提供する。
//
// コンシューマー向けJWTトークンの発行と検証、スコープによる認可、
// パニックリカバリを含む。
package middleware
