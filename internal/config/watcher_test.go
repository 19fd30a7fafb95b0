package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/99designs/keyring"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "watcher.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadWatcher(t *testing.T) {
	t.Parallel()

	t.Run("ファイルがない場合は既定値を返すこと", func(t *testing.T) {
		t.Parallel()

		cfg, err := LoadWatcher(filepath.Join(t.TempDir(), "missing.yaml"))
		if err != nil {
			t.Fatalf("LoadWatcher()でエラーが発生: %v", err)
		}
		if cfg.Interval != 10*time.Second || cfg.Timeout != 5*time.Second {
			t.Errorf("Interval = %s, Timeout = %s", cfg.Interval, cfg.Timeout)
		}
		if cfg.Listen != "127.0.0.1:7465" || cfg.Push.Environment != "production" {
			t.Errorf("Listen = %q, Push = %+v", cfg.Listen, cfg.Push)
		}
		if filepath.Base(cfg.StateFile) != "state.json" {
			t.Errorf("StateFile = %q", cfg.StateFile)
		}
	})

	t.Run("YAMLの値を読み込むこと", func(t *testing.T) {
		t.Parallel()

		path := writeFile(t, `
server_url: https://notify.example.com
token: file-token
interval: 30s
listen: 127.0.0.1:9000
push:
  platform: ios
  token: device-token
  environment: sandbox
`)
		cfg, err := LoadWatcher(path)
		if err != nil {
			t.Fatalf("LoadWatcher()でエラーが発生: %v", err)
		}
		if cfg.ServerURL != "https://notify.example.com" || cfg.Token != "file-token" {
			t.Errorf("ServerURL = %q, Token = %q", cfg.ServerURL, cfg.Token)
		}
		if cfg.Interval != 30*time.Second || cfg.Timeout != 5*time.Second {
			t.Errorf("Interval = %s, Timeout = %s", cfg.Interval, cfg.Timeout)
		}
		if cfg.Push.Token != "device-token" || cfg.Push.Environment != "sandbox" {
			t.Errorf("Push = %+v", cfg.Push)
		}
	})

	t.Run("不正な値はエラーになること", func(t *testing.T) {
		t.Parallel()

		for _, content := range []string{
			"interval: 0s\n",
			"push:\n  environment: staging\n",
			"server_url: [broken\n",
		} {
			if _, err := LoadWatcher(writeFile(t, content)); err == nil {
				t.Errorf("LoadWatcher(%q)がエラーを返すべきだが、nilが返った", content)
			}
		}
	})
}

// TestLoadWatcher_Env は環境変数による上書きを検証する。t.Setenvを使うため並列実行しない。
func TestLoadWatcher_Env(t *testing.T) {
	t.Setenv("NOTIFYHUB_SERVER_URL", "https://env.example.com")
	t.Setenv("NOTIFYHUB_PUSH_TOKEN", "env-device-token")
	t.Setenv(KeyringPasswordEnv, "env-keyring-password")

	cfg, err := LoadWatcher(writeFile(t, "server_url: https://file.example.com\n"))
	if err != nil {
		t.Fatalf("LoadWatcher()でエラーが発生: %v", err)
	}
	if cfg.ServerURL != "https://env.example.com" {
		t.Errorf("ServerURL = %q", cfg.ServerURL)
	}
	if cfg.Push.Token != "env-device-token" {
		t.Errorf("Push.Token = %q", cfg.Push.Token)
	}
	if cfg.KeyringPassword != "env-keyring-password" {
		t.Errorf("KeyringPassword = %q", cfg.KeyringPassword)
	}
}

func TestResolveToken(t *testing.T) {
	t.Parallel()

	t.Run("設定のトークンを優先すること", func(t *testing.T) {
		t.Parallel()
		ring := keyring.NewArrayKeyring(nil)
		if err := SaveToken(ring, "ring-token"); err != nil {
			t.Fatalf("SaveToken()でエラーが発生: %v", err)
		}

		cfg := &Watcher{Token: "file-token"}
		if err := cfg.ResolveToken(ring); err != nil {
			t.Fatalf("ResolveToken()でエラーが発生: %v", err)
		}
		if cfg.Token != "file-token" {
			t.Errorf("Token = %q, want file-token", cfg.Token)
		}
	})

	t.Run("設定にない場合はキーリングから補うこと", func(t *testing.T) {
		t.Parallel()
		ring := keyring.NewArrayKeyring(nil)
		if err := SaveToken(ring, "ring-token"); err != nil {
			t.Fatalf("SaveToken()でエラーが発生: %v", err)
		}

		cfg := &Watcher{}
		if err := cfg.ResolveToken(ring); err != nil {
			t.Fatalf("ResolveToken()でエラーが発生: %v", err)
		}
		if cfg.Token != "ring-token" {
			t.Errorf("Token = %q, want ring-token", cfg.Token)
		}
	})

	t.Run("どこにもない場合はエラーになること", func(t *testing.T) {
		t.Parallel()

		cfg := &Watcher{}
		if err := cfg.ResolveToken(keyring.NewArrayKeyring(nil)); err == nil {
			t.Error("ResolveToken()がエラーを返すべきだが、nilが返った")
		}
		if err := cfg.ResolveToken(nil); err == nil {
			t.Error("キーリングなしでResolveToken()がエラーを返すべきだが、nilが返った")
		}
	})
}

func TestKeyringConfig(t *testing.T) {
	t.Parallel()

	prompted := func(string) (string, error) { return "prompted", nil }

	t.Run("パスワードを指定した場合は端末で尋ねないこと", func(t *testing.T) {
		t.Parallel()

		cfg := keyringConfig(t.TempDir(), "secret", prompted)
		got, err := cfg.FilePasswordFunc("パスワード")
		if err != nil {
			t.Fatalf("FilePasswordFunc()でエラーが発生: %v", err)
		}
		if got != "secret" {
			t.Errorf("password = %q, want secret", got)
		}
	})

	t.Run("パスワードが空の場合は端末で尋ねること", func(t *testing.T) {
		t.Parallel()

		cfg := keyringConfig(t.TempDir(), "", prompted)
		got, err := cfg.FilePasswordFunc("パスワード")
		if err != nil {
			t.Fatalf("FilePasswordFunc()でエラーが発生: %v", err)
		}
		if got != "prompted" {
			t.Errorf("password = %q, want prompted", got)
		}
	})

	t.Run("ファイルに保存したトークンを同じパスワードで読めること", func(t *testing.T) {
		t.Parallel()

		dir := t.TempDir()
		open := func(password string) keyring.Keyring {
			cfg := keyringConfig(dir, password, prompted)
			cfg.AllowedBackends = []keyring.BackendType{keyring.FileBackend}
			ring, err := keyring.Open(cfg)
			if err != nil {
				t.Fatalf("keyring.Open()でエラーが発生: %v", err)
			}
			return ring
		}

		if err := SaveToken(open("secret"), "file-token"); err != nil {
			t.Fatalf("SaveToken()でエラーが発生: %v", err)
		}
		cfg := &Watcher{}
		if err := cfg.ResolveToken(open("secret")); err != nil {
			t.Fatalf("ResolveToken()でエラーが発生: %v", err)
		}
		if cfg.Token != "file-token" {
			t.Errorf("Token = %q, want file-token", cfg.Token)
		}

		if err := (&Watcher{}).ResolveToken(open("wrong")); err == nil {
			t.Error("異なるパスワードでResolveToken()がエラーを返すべきだが、nilが返った")
		}
	})
}
