package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/nao1215/notifyhub/pkg/api"
)

// EnvPrefix はウォッチャー設定を上書きする環境変数の接頭辞。
// 例: server_url は NOTIFYHUB_SERVER_URL、push.token は NOTIFYHUB_PUSH_TOKEN、
// keyring_password は NOTIFYHUB_KEYRING_PASSWORD。
const EnvPrefix = "NOTIFYHUB"

// Watcher はクライアント端末で動くウォッチャーの設定。
type Watcher struct {
	ServerURL string        `mapstructure:"server_url"`
	Token     string        `mapstructure:"token"`
	Interval  time.Duration `mapstructure:"interval"`
	Timeout   time.Duration `mapstructure:"timeout"`
	// Listen はローカルブリッジの待ち受けアドレス。
	Listen    string     `mapstructure:"listen"`
	StateFile string     `mapstructure:"state_file"`
	Push      PushConfig `mapstructure:"push"`
	// KeyringPassword はファイルキーリングの暗号化パスワード。空なら端末で尋ねる。
	KeyringPassword string `mapstructure:"keyring_password"`
}

// PushConfig はこの端末のプッシュ送信先。Tokenが空なら登録しない。
type PushConfig struct {
	Platform    string `mapstructure:"platform"`
	Token       string `mapstructure:"token"`
	Environment string `mapstructure:"environment"`
}

// configDir は ~/.config/notifyhub を返す。
func configDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "notifyhub")
}

// DefaultWatcherPath はウォッチャー設定ファイルの既定のパス。
func DefaultWatcherPath() string {
	return filepath.Join(configDir(), "watcher.yaml")
}

func setWatcherDefaults(v *viper.Viper) {
	v.SetDefault("server_url", "http://localhost:8080")
	v.SetDefault("token", "")
	v.SetDefault("interval", "10s")
	v.SetDefault("timeout", "5s")
	v.SetDefault("listen", "127.0.0.1:7465")
	v.SetDefault("state_file", filepath.Join(configDir(), "state.json"))
	v.SetDefault("push.platform", "ios")
	v.SetDefault("push.token", "")
	v.SetDefault("push.environment", api.EnvironmentProduction)
	v.SetDefault("keyring_password", "")
}

// LoadWatcher はYAMLファイルと環境変数からウォッチャー設定を読み込む。
// ファイルがない場合は既定値と環境変数だけで組み立てる。
func LoadWatcher(path string) (*Watcher, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	setWatcherDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.Is(err, fs.ErrNotExist) && !errors.As(err, &notFound) {
			return nil, fmt.Errorf("%s の読み込みに失敗: %w", path, err)
		}
	}

	var cfg Watcher
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("%s の解析に失敗: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate は設定値の整合性を検証する。
func (c *Watcher) Validate() error {
	if c.ServerURL == "" {
		return errors.New("server_url は必須です")
	}
	if c.Interval <= 0 {
		return fmt.Errorf("interval は正の値である必要があります: %s", c.Interval)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout は正の値である必要があります: %s", c.Timeout)
	}
	switch c.Push.Environment {
	case api.EnvironmentProduction, api.EnvironmentSandbox:
	default:
		return fmt.Errorf("push.environment は %s か %s である必要があります: %q",
			api.EnvironmentProduction, api.EnvironmentSandbox, c.Push.Environment)
	}
	return nil
}
