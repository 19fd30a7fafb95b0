package syncer

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/nao1215/notifyhub/pkg/api"
	"github.com/nao1215/notifyhub/pkg/httpclient"
)

// Client はnotifyhubサーバーのAPIクライアント。
type Client struct {
	http *httpclient.Client
}

// NewClient はClientを生成する。timeoutは1リクエストあたりの上限。
func NewClient(baseURL, token string, timeout time.Duration) *Client {
	opts := []httpclient.Option{httpclient.WithBearerToken(token)}
	if timeout > 0 {
		opts = append(opts, httpclient.WithTimeout(timeout))
	}
	return &Client{http: httpclient.New(baseURL, opts...)}
}

// Version はサーバーの変更検知用カウンタを取得する。
func (c *Client) Version(ctx context.Context) (*api.VersionResponse, error) {
	var resp api.VersionResponse
	if err := c.http.GetJSON(ctx, "/api/v1/version", &resp); err != nil {
		return nil, fmt.Errorf("バージョンの取得に失敗: %w", err)
	}
	return &resp, nil
}

// ListNotifications はafter以降の通知を取得する。afterが空の場合は新しい順に返る。
func (c *Client) ListNotifications(ctx context.Context, after string, limit int) ([]api.Notification, error) {
	q := url.Values{}
	if after != "" {
		q.Set("after", after)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	path := "/api/v1/notifications"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var resp api.ListResponse
	if err := c.http.GetJSON(ctx, path, &resp); err != nil {
		return nil, fmt.Errorf("通知一覧の取得に失敗: %w", err)
	}
	return resp.Notifications, nil
}

// AckNotifications は通知を確認済みにし、新たに確認済みになった件数を返す。
func (c *Client) AckNotifications(ctx context.Context, ids []string) (int64, error) {
	var resp api.AckResponse
	if err := c.http.PostJSON(ctx, "/api/v1/notifications/ack", api.AckRequest{IDs: ids}, &resp); err != nil {
		return 0, fmt.Errorf("通知の確認済み更新に失敗: %w", err)
	}
	return resp.Acknowledged, nil
}

// RegisterPush はプッシュ送信先を登録する。
func (c *Client) RegisterPush(ctx context.Context, req api.PushRegisterRequest) error {
	if err := c.http.PostJSON(ctx, "/api/v1/push/register", req, nil); err != nil {
		return fmt.Errorf("プッシュ送信先の登録に失敗: %w", err)
	}
	return nil
}
