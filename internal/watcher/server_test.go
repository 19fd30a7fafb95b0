package watcher

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/nao1215/notifyhub/internal/feed"
	"github.com/nao1215/notifyhub/pkg/api"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type nopPresenter struct{}

func (nopPresenter) Present(api.Notification) {}

// countingAcker は確認済みの送信回数を数える。
type countingAcker struct {
	mu    sync.Mutex
	calls [][]string
}

func (a *countingAcker) AckNotifications(_ context.Context, ids []string) (int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = append(a.calls, ids)
	return int64(len(ids)), nil
}

func (a *countingAcker) Calls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.calls)
}

type fakeStatus bool

func (s fakeStatus) Running() bool { return bool(s) }

func setupTestBridge(t *testing.T) (http.Handler, *feed.Tracker, *countingAcker) {
	t.Helper()
	a := &countingAcker{}
	tr := feed.NewTracker(nopPresenter{}, a)
	t.Cleanup(tr.Wait)
	tr.ReceiveViaPoll([]api.Notification{
		{ID: "a", SessionID: "s1"},
		{ID: "b", SessionID: "s2"},
		{ID: "c", SessionID: "s1"},
	})
	return NewServer(tr, fakeStatus(true)).Handler(), tr, a
}

func doRequest(handler http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w
}

func parseJSON[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("レスポンスの解析に失敗: %v, body=%s", err, w.Body.String())
	}
	return v
}

func TestHealth(t *testing.T) {
	t.Parallel()

	h, _, _ := setupTestBridge(t)
	w := doRequest(h, http.MethodGet, "/health", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("ステータス = %d, want 200", w.Code)
	}
	resp := parseJSON[map[string]any](t, w)
	if resp["syncing"] != true {
		t.Errorf("syncing = %v, want true", resp["syncing"])
	}
}

func TestReceipt(t *testing.T) {
	t.Parallel()

	t.Run("受信したidを記録し、その後のポーリングでアラートを出さないこと", func(t *testing.T) {
		t.Parallel()
		h, tr, _ := setupTestBridge(t)

		w := doRequest(h, http.MethodPost, "/push/receipt", ReceiptRequest{ID: "d"})
		if w.Code != http.StatusAccepted {
			t.Fatalf("ステータス = %d, want 202", w.Code)
		}
		if got := tr.ReceiveViaPoll([]api.Notification{{ID: "d", SessionID: "s3"}}); got != 0 {
			t.Errorf("アラート数 = %d, want 0", got)
		}
	})

	t.Run("idがない場合は400を返すこと", func(t *testing.T) {
		t.Parallel()
		h, _, _ := setupTestBridge(t)

		w := doRequest(h, http.MethodPost, "/push/receipt", map[string]string{})
		if w.Code != http.StatusBadRequest {
			t.Errorf("ステータス = %d, want 400", w.Code)
		}
	})
}

func TestFeed(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		path       string
		wantItems  int
		wantUnread int
	}{
		{name: "全件を返すこと", path: "/feed", wantItems: 3, wantUnread: 3},
		{name: "セッションで絞り込むこと", path: "/feed?session_id=s1", wantItems: 2, wantUnread: 2},
		{name: "該当なしは空配列を返すこと", path: "/feed?session_id=none", wantItems: 0, wantUnread: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			h, _, _ := setupTestBridge(t)

			w := doRequest(h, http.MethodGet, tt.path, nil)
			if w.Code != http.StatusOK {
				t.Fatalf("ステータス = %d, want 200", w.Code)
			}
			resp := parseJSON[FeedResponse](t, w)
			if len(resp.Items) != tt.wantItems || resp.Unread != tt.wantUnread {
				t.Errorf("items = %d, unread = %d, want %d, %d", len(resp.Items), resp.Unread, tt.wantItems, tt.wantUnread)
			}
		})
	}
}

func TestRead(t *testing.T) {
	t.Parallel()

	t.Run("1件を既読にすること", func(t *testing.T) {
		t.Parallel()
		h, tr, a := setupTestBridge(t)

		resp := parseJSON[MarkResponse](t, doRequest(h, http.MethodPost, "/read", ReadRequest{ID: "a"}))
		if resp.Marked != 1 {
			t.Errorf("marked = %d, want 1", resp.Marked)
		}
		resp = parseJSON[MarkResponse](t, doRequest(h, http.MethodPost, "/read", ReadRequest{ID: "a"}))
		if resp.Marked != 0 {
			t.Errorf("2回目のmarked = %d, want 0", resp.Marked)
		}
		tr.Wait()
		if a.Calls() != 1 {
			t.Errorf("送信回数 = %d, want 1", a.Calls())
		}
	})

	t.Run("セッション単位で既読にすること", func(t *testing.T) {
		t.Parallel()
		h, tr, a := setupTestBridge(t)

		w := doRequest(h, http.MethodPost, "/read/session", SessionReadRequest{SessionID: "s1"})
		if w.Code != http.StatusOK {
			t.Fatalf("ステータス = %d, want 200", w.Code)
		}
		if resp := parseJSON[MarkResponse](t, w); resp.Marked != 2 {
			t.Errorf("marked = %d, want 2", resp.Marked)
		}
		tr.Wait()
		if a.Calls() != 1 {
			t.Errorf("送信回数 = %d, want 1", a.Calls())
		}
		if tr.UnreadCount() != 1 {
			t.Errorf("未読数 = %d, want 1", tr.UnreadCount())
		}
	})

	t.Run("すべて既読にすること", func(t *testing.T) {
		t.Parallel()
		h, tr, _ := setupTestBridge(t)

		resp := parseJSON[MarkResponse](t, doRequest(h, http.MethodPost, "/read/all", nil))
		if resp.Marked != 3 {
			t.Errorf("marked = %d, want 3", resp.Marked)
		}
		if tr.UnreadCount() != 0 {
			t.Errorf("未読数 = %d, want 0", tr.UnreadCount())
		}
	})

	t.Run("必須項目がない場合は400を返すこと", func(t *testing.T) {
		t.Parallel()
		h, _, _ := setupTestBridge(t)

		for _, path := range []string{"/read", "/read/session"} {
			w := doRequest(h, http.MethodPost, path, map[string]string{})
			if w.Code != http.StatusBadRequest {
				t.Errorf("%s のステータス = %d, want 400", path, w.Code)
			}
		}
	})
}
