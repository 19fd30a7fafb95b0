package push

import (
	"crypto/ecdsa"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenRefreshInterval はプロバイダートークンを再署名する間隔。
// ゲートウェイは1時間より古いトークンを拒否する。
const TokenRefreshInterval = 50 * time.Minute

// TokenSource はゲートウェイ認証用のプロバイダートークンを発行する。
type TokenSource struct {
	mu       sync.Mutex
	key      *ecdsa.PrivateKey
	keyID    string
	teamID   string
	refresh  time.Duration
	now      func() time.Time
	cached   string
	issuedAt time.Time
}

// NewTokenSource はPEM形式（PKCS#8またはSEC1）のEC秘密鍵からTokenSourceを生成する。
func NewTokenSource(pemBytes []byte, keyID, teamID string) (*TokenSource, error) {
	key, err := jwt.ParseECPrivateKeyFromPEM(pemBytes)
	if err != nil {
		return nil, fmt.Errorf("署名鍵の読み込みに失敗: %w", err)
	}
	if keyID == "" || teamID == "" {
		return nil, fmt.Errorf("key id と team id は必須です")
	}
	return &TokenSource{
		key:     key,
		keyID:   keyID,
		teamID:  teamID,
		refresh: TokenRefreshInterval,
		now:     time.Now,
	}, nil
}

// LoadTokenSource はファイルから署名鍵を読み込んでTokenSourceを生成する。
func LoadTokenSource(path, keyID, teamID string) (*TokenSource, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("署名鍵ファイル %s の読み込みに失敗: %w", path, err)
	}
	return NewTokenSource(b, keyID, teamID)
}

// Token はキャッシュ済みのトークンを返す。署名から50分以上経過している場合は再署名する。
func (ts *TokenSource) Token() (string, error) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	now := ts.now()
	if ts.cached != "" && now.Sub(ts.issuedAt) < ts.refresh {
		return ts.cached, nil
	}

	token := jwt.NewWithClaims(jwt.SigningMethodES256, jwt.MapClaims{
		"iss": ts.teamID,
		"iat": now.Unix(),
	})
	token.Header["kid"] = ts.keyID

	signed, err := token.SignedString(ts.key)
	if err != nil {
		return "", fmt.Errorf("プロバイダートークンの署名に失敗: %w", err)
	}
	ts.cached = signed
	ts.issuedAt = now
	return signed, nil
}

// Invalidate はキャッシュを破棄し、次のToken呼び出しで再署名させる。
func (ts *TokenSource) Invalidate() {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.cached = ""
}
