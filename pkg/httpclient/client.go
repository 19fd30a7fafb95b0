package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultTimeout はリクエストごとのデフォルトタイムアウト。
// ポーリングは次のティックで再試行されるため短めにしている。
const DefaultTimeout = 5 * time.Second

// maxErrorBody はエラー時に読み込むレスポンスボディの上限バイト数。
const maxErrorBody = 4 << 10

// HTTPError は2xx以外のレスポンスを表す。
type HTTPError struct {
	// StatusCode はHTTPステータスコード。
	StatusCode int
	// Body はレスポンスボディ（先頭のみ）。
	Body string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTPエラー: status=%d, body=%s", e.StatusCode, e.Body)
}

// Client はnotifyhub API用のHTTPクライアント。
type Client struct {
	// httpClient は内部で使用するHTTPクライアント。
	httpClient *http.Client
	// baseURL は接続先サーバーのベースURL。
	baseURL string
	// token はAuthorizationヘッダーに付与するBearerトークン。
	token string
}

// Option はClientの生成オプション。
type Option func(*Client)

// WithTimeout はリクエストタイムアウトを変更する。
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// WithBearerToken は全リクエストに付与するBearerトークンを設定する。
func WithBearerToken(token string) Option {
	return func(c *Client) {
		c.token = token
	}
}

// WithHTTPClient は内部のHTTPクライアントを差し替える。
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// New は新しいHTTPクライアントを生成する。
// baseURLには接続先サーバーのベースURL（例: "http://localhost:8080"）を指定する。
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		baseURL: baseURL,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// PostJSON は指定パスにJSONボディでPOSTリクエストを送信する。
// レスポンスボディをresultにデシリアライズする。
func (c *Client) PostJSON(ctx context.Context, path string, body any, result any) error {
	return c.doJSON(ctx, http.MethodPost, path, body, result)
}

// GetJSON は指定パスにGETリクエストを送信する。
// レスポンスボディをresultにデシリアライズする。
func (c *Client) GetJSON(ctx context.Context, path string, result any) error {
	return c.doJSON(ctx, http.MethodGet, path, nil, result)
}

func (c *Client) doJSON(ctx context.Context, method, path string, body any, result any) error {
	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("リクエストボディのシリアライズに失敗: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("HTTPリクエストの作成に失敗: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("HTTPリクエストの送信に失敗: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &HTTPError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("レスポンスボディのデシリアライズに失敗: %w", err)
		}
	}
	return nil
}
