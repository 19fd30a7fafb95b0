package syncer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/nao1215/notifyhub/pkg/api"
)

// fakeAPI はメモリ上の通知列を返すテスト用API。
// notificationsは古い順に並ぶ。
type fakeAPI struct {
	mu            sync.Mutex
	dataVersion   uint64
	notifications []api.Notification
	versionErr    error
	listErr       error
	hideNewest    int
	versionCalls  int
	listCalls     int
}

func (f *fakeAPI) add(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := 0; i < n; i++ {
		f.notifications = append(f.notifications, api.Notification{ID: fmt.Sprintf("n-%03d", len(f.notifications)+1)})
		f.dataVersion++
	}
}

func (f *fakeAPI) Version(_ context.Context) (*api.VersionResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.versionCalls++
	if f.versionErr != nil {
		return nil, f.versionErr
	}
	return &api.VersionResponse{Status: "ok", DataVersion: f.dataVersion, NotificationVersion: uint64(len(f.notifications))}, nil
}

func (f *fakeAPI) ListNotifications(_ context.Context, after string, limit int) ([]api.Notification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	if f.listErr != nil {
		return nil, f.listErr
	}
	visible := f.notifications[:len(f.notifications)-f.hideNewest]
	if after == "" {
		var out []api.Notification
		for i := len(visible) - 1; i >= 0 && len(out) < limit; i-- {
			out = append(out, visible[i])
		}
		return out, nil
	}
	start := 0
	for i, n := range visible {
		if n.ID == after {
			start = i + 1
		}
	}
	end := min(start+limit, len(visible))
	return append([]api.Notification(nil), visible[start:end]...), nil
}

// fakeSink は受け取った通知を記録するテスト用Sink。
type fakeSink struct {
	mu       sync.Mutex
	cursor   string
	received []string
}

func (s *fakeSink) Cursor() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor
}

func (s *fakeSink) AdvanceCursor(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cursor = id
}

func (s *fakeSink) ReceiveViaPoll(items []api.Notification) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, n := range items {
		s.received = append(s.received, n.ID)
	}
	return len(items)
}

func (s *fakeSink) Received() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.received...)
}

// TestEngine_SyncOnce は1回分の同期を検証する。
func TestEngine_SyncOnce(t *testing.T) {
	t.Parallel()

	t.Run("初回は新しい順のページを古い順にして取り込むこと", func(t *testing.T) {
		t.Parallel()

		a := &fakeAPI{}
		a.add(3)
		sink := &fakeSink{}
		e := NewEngine(a, sink)

		res, err := e.SyncOnce(context.Background())
		if err != nil {
			t.Fatalf("SyncOnce()でエラーが発生: %v", err)
		}
		if fmt.Sprint(sink.Received()) != "[n-001 n-002 n-003]" {
			t.Errorf("取り込み順 = %v", sink.Received())
		}
		if sink.Cursor() != "n-003" {
			t.Errorf("カーソル = %q, want n-003", sink.Cursor())
		}
		if res.NotificationVersion != 3 || res.Fetched != 3 {
			t.Errorf("Result = %+v", res)
		}
	})

	t.Run("バージョンが変わらなければ一覧を取得しないこと", func(t *testing.T) {
		t.Parallel()

		a := &fakeAPI{}
		a.add(1)
		e := NewEngine(a, &fakeSink{})
		_, _ = e.SyncOnce(context.Background())
		_, _ = e.SyncOnce(context.Background())

		if a.listCalls != 1 {
			t.Errorf("一覧取得回数 = %d, want 1", a.listCalls)
		}
	})

	t.Run("満杯のページは続けて取得すること", func(t *testing.T) {
		t.Parallel()

		a := &fakeAPI{}
		a.add(1)
		sink := &fakeSink{}
		e := NewEngine(a, sink, WithPageSize(2))
		_, _ = e.SyncOnce(context.Background())

		a.add(5)
		res, err := e.SyncOnce(context.Background())
		if err != nil {
			t.Fatalf("SyncOnce()でエラーが発生: %v", err)
		}
		if res.Fetched != 5 {
			t.Errorf("取得件数 = %d, want 5", res.Fetched)
		}
		if sink.Cursor() != "n-006" {
			t.Errorf("カーソル = %q, want n-006", sink.Cursor())
		}
		want := "[n-001 n-002 n-003 n-004 n-005 n-006]"
		if got := fmt.Sprint(sink.Received()); got != want {
			t.Errorf("取り込み = %s, want %s", got, want)
		}
	})

	t.Run("バージョンが変わっても差分が空ならバージョンを進めないこと", func(t *testing.T) {
		t.Parallel()

		a := &fakeAPI{}
		a.add(1)
		sink := &fakeSink{}
		e := NewEngine(a, sink)
		_, _ = e.SyncOnce(context.Background())

		a.add(1)
		a.hideNewest = 1
		res, err := e.SyncOnce(context.Background())
		if err != nil {
			t.Fatalf("SyncOnce()でエラーが発生: %v", err)
		}
		if res.NotificationVersion != 1 || sink.Cursor() != "n-001" {
			t.Errorf("Result = %+v, cursor = %q", res, sink.Cursor())
		}

		a.mu.Lock()
		a.hideNewest = 0
		a.mu.Unlock()
		res, _ = e.SyncOnce(context.Background())
		if res.NotificationVersion != 2 || sink.Cursor() != "n-002" {
			t.Errorf("再試行後のResult = %+v, cursor = %q", res, sink.Cursor())
		}
	})

	t.Run("通信エラーでは何も進めないこと", func(t *testing.T) {
		t.Parallel()

		a := &fakeAPI{}
		a.add(2)
		a.listErr = errors.New("接続エラー")
		sink := &fakeSink{}
		e := NewEngine(a, sink)

		if _, err := e.SyncOnce(context.Background()); err == nil {
			t.Fatal("SyncOnce()がエラーを返すべきだが、nilが返った")
		}
		if sink.Cursor() != "" || len(sink.Received()) != 0 {
			t.Errorf("エラー時に状態が進んだ: cursor=%q received=%v", sink.Cursor(), sink.Received())
		}

		a.mu.Lock()
		a.listErr = nil
		a.versionErr = errors.New("タイムアウト")
		a.mu.Unlock()
		if _, err := e.SyncOnce(context.Background()); err == nil {
			t.Fatal("SyncOnce()がエラーを返すべきだが、nilが返った")
		}

		a.mu.Lock()
		a.versionErr = nil
		a.mu.Unlock()
		res, err := e.SyncOnce(context.Background())
		if err != nil || res.Fetched != 2 {
			t.Errorf("復旧後のResult = %+v, err = %v", res, err)
		}
	})

	t.Run("data_versionの変化がコールバックで通知されること", func(t *testing.T) {
		t.Parallel()

		a := &fakeAPI{}
		a.add(1)
		e := NewEngine(a, &fakeSink{})
		var got []uint64
		e.OnDataChanged = func(v uint64) { got = append(got, v) }

		_, _ = e.SyncOnce(context.Background())
		a.mu.Lock()
		a.dataVersion = 10
		a.mu.Unlock()
		_, _ = e.SyncOnce(context.Background())

		if fmt.Sprint(got) != "[10]" {
			t.Errorf("コールバック = %v, want [10]", got)
		}
	})
}

// TestEngine_StartStop はポーリングの開始と停止を検証する。
func TestEngine_StartStop(t *testing.T) {
	t.Parallel()

	t.Run("二重に開始できず、Triggerで即座に同期されること", func(t *testing.T) {
		t.Parallel()

		a := &fakeAPI{}
		a.add(1)
		sink := &fakeSink{}
		synced := make(chan Result, 10)
		e := NewEngine(a, sink, WithInterval(time.Hour))
		e.AfterSync = func(r Result) { synced <- r }

		if !e.Start(context.Background()) {
			t.Fatal("1回目のStart()がfalseを返した")
		}
		defer e.Stop()
		if e.Start(context.Background()) {
			t.Error("実行中のStart()がtrueを返した")
		}

		select {
		case <-synced:
		case <-time.After(2 * time.Second):
			t.Fatal("起動直後の同期が行われない")
		}

		a.add(1)
		e.Trigger()
		select {
		case r := <-synced:
			if r.NotificationVersion != 2 {
				t.Errorf("NotificationVersion = %d, want 2", r.NotificationVersion)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("Triggerで同期されない")
		}
	})

	t.Run("Stop後は再度開始できること", func(t *testing.T) {
		t.Parallel()

		e := NewEngine(&fakeAPI{}, &fakeSink{}, WithInterval(time.Hour))
		if !e.Start(context.Background()) {
			t.Fatal("Start()がfalseを返した")
		}
		e.Stop()
		if e.Running() {
			t.Error("Stop後もRunning()がtrue")
		}
		e.Stop()
		if !e.Start(context.Background()) {
			t.Error("Stop後のStart()がfalseを返した")
		}
		e.Stop()
	})
}
