package feed

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nao1215/notifyhub/pkg/api"
)

// TestState は状態ファイルの読み書きを検証する。
func TestState(t *testing.T) {
	t.Parallel()

	t.Run("ファイルがない場合は空の状態を返すこと", func(t *testing.T) {
		t.Parallel()

		st, err := LoadState(filepath.Join(t.TempDir(), "missing.json"))
		if err != nil {
			t.Fatalf("LoadState()でエラーが発生: %v", err)
		}
		if st.Cursor != "" || len(st.Items) != 0 {
			t.Errorf("空の状態ではない: %+v", st)
		}
	})

	t.Run("保存した状態を読み込めること", func(t *testing.T) {
		t.Parallel()

		path := filepath.Join(t.TempDir(), "nested", "state.json")
		at := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
		want := State{
			Cursor:   "n-2",
			Receipts: []Receipt{{ID: "n-2", ReceivedAt: at}},
			Read:     []string{"n-1"},
			Items: []Item{
				{Notification: api.Notification{ID: "n-1", SessionID: "s1"}, Read: true},
				{Notification: api.Notification{ID: "n-2", SessionID: "s1"}},
			},
		}
		if err := SaveState(path, want); err != nil {
			t.Fatalf("SaveState()でエラーが発生: %v", err)
		}

		got, err := LoadState(path)
		if err != nil {
			t.Fatalf("LoadState()でエラーが発生: %v", err)
		}
		if got.Cursor != want.Cursor || len(got.Items) != 2 || !got.Items[0].Read {
			t.Errorf("LoadState() = %+v", got)
		}
		if len(got.Receipts) != 1 || !got.Receipts[0].ReceivedAt.Equal(at) {
			t.Errorf("受信記録 = %+v", got.Receipts)
		}

		entries, err := os.ReadDir(filepath.Dir(path))
		if err != nil {
			t.Fatalf("ReadDir()でエラーが発生: %v", err)
		}
		if len(entries) != 1 {
			t.Errorf("一時ファイルが残っている: %d件", len(entries))
		}
	})

	t.Run("壊れたファイルはエラーを返すこと", func(t *testing.T) {
		t.Parallel()

		path := filepath.Join(t.TempDir(), "state.json")
		if err := os.WriteFile(path, []byte("{broken"), 0o600); err != nil {
			t.Fatal(err)
		}
		if _, err := LoadState(path); err == nil {
			t.Error("LoadState()がエラーを返すべきだが、nilが返った")
		}
	})
}
