package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// トークンに付与できるスコープ。
const (
	// ScopeRead はバージョン確認と通知一覧の取得を許可する。
	ScopeRead = "read"
	// ScopeWrite はイベント送信、既読通知、プッシュ登録を許可する。
	ScopeWrite = "write"
)

// Issuer はnotifyhubが発行するトークンのiss。
const Issuer = "notifyhub"

// contextKeyClaims はGinコンテキストに検証済みクレームを格納するキー。
const contextKeyClaims = "jwt_claims"

// ErrEmptySecret は署名用シークレットが未設定であることを表す。
var ErrEmptySecret = errors.New("JWTシークレットが設定されていません")

// JWTClaims はコンシューマートークンのクレーム。
// subjectにはインストールIDを格納する。
type JWTClaims struct {
	jwt.RegisteredClaims
	// Scopes はトークンに許可された操作の一覧。
	Scopes []string `json:"scopes"`
}

// HasScope はクレームが指定スコープを含むかを返す。
func (c *JWTClaims) HasScope(scope string) bool {
	return slices.Contains(c.Scopes, scope)
}

// GenerateJWT はインストールIDとスコープからHS256トークンを生成する。
// ttlが0以下の場合は有効期限を設定しない。
func GenerateJWT(secret, installationID string, scopes []string, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", ErrEmptySecret
	}
	now := time.Now()
	claims := JWTClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  installationID,
			IssuedAt: jwt.NewNumericDate(now),
			Issuer:   Issuer,
		},
		Scopes: scopes,
	}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("JWTトークンの署名に失敗: %w", err)
	}
	return signed, nil
}

// JWTAuth はBearerトークンを検証するGinミドルウェアを返す。
// 検証に成功した場合、コンテキストにクレームを設定する。
func JWTAuth(secret string) gin.HandlerFunc {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(Issuer),
	)
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Authorizationヘッダーが必要です",
			})
			return
		}

		tokenString, found := strings.CutPrefix(authHeader, "Bearer ")
		if !found {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Bearer トークン形式が不正です",
			})
			return
		}

		claims := &JWTClaims{}
		token, err := parser.ParseWithClaims(tokenString, claims, func(_ *jwt.Token) (any, error) {
			return []byte(secret), nil
		})
		if err != nil || !token.Valid {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "トークンが無効です",
			})
			return
		}

		c.Set(contextKeyClaims, claims)
		c.Next()
	}
}

// RequireScope はトークンが指定スコープを持たない場合に403を返すミドルウェア。
// JWTAuthの後に適用する。
func RequireScope(scope string) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := GetClaims(c)
		if claims == nil || !claims.HasScope(scope) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": fmt.Sprintf("スコープ %q が必要です", scope),
			})
			return
		}
		c.Next()
	}
}

// GetClaims はGinコンテキストから検証済みクレームを取得する。
func GetClaims(c *gin.Context) *JWTClaims {
	v, ok := c.Get(contextKeyClaims)
	if !ok {
		return nil
	}
	claims, _ := v.(*JWTClaims)
	return claims
}

// GetInstallationID はGinコンテキストからインストールIDを取得する。
// JWTAuthミドルウェアが事前に適用されている必要がある。
func GetInstallationID(c *gin.Context) string {
	if claims := GetClaims(c); claims != nil {
		return claims.Subject
	}
	return ""
}
