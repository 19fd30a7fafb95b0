package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/nao1215/notifyhub/pkg/api"
)

// Server はnotifyhubサーバーの設定。
type Server struct {
	// Addr はHTTPサーバーの待ち受けアドレス。
	Addr string `env:"NOTIFYHUB_ADDR" envDefault:":8080"`
	// DBPath はSQLiteのデータベースファイル。
	DBPath string `env:"NOTIFYHUB_DB_PATH" envDefault:"notifyhub.db"`
	// JWTSecret はコンシューマートークンの署名鍵。
	JWTSecret string `env:"NOTIFYHUB_JWT_SECRET,required,notEmpty"`

	// APNsKeyPath はプロバイダートークン用のES256秘密鍵(PEM)のパス。
	// 空の場合はプッシュ配信を行わない。
	APNsKeyPath string `env:"NOTIFYHUB_APNS_KEY_PATH"`
	APNsKeyID   string `env:"NOTIFYHUB_APNS_KEY_ID"`
	APNsTeamID  string `env:"NOTIFYHUB_APNS_TEAM_ID"`
	APNsTopic   string `env:"NOTIFYHUB_APNS_TOPIC"`

	// DefaultEnvironment はプッシュ登録でenvironmentを省略したときの値。
	DefaultEnvironment string `env:"NOTIFYHUB_PUSH_ENVIRONMENT" envDefault:"production"`
	// Retention は通知の保持期間。
	Retention time.Duration `env:"NOTIFYHUB_RETENTION" envDefault:"24h"`
	// Cooldown は同じセッションの低優先度通知を抑制する期間。0で無効。
	Cooldown        time.Duration `env:"NOTIFYHUB_COOLDOWN" envDefault:"30s"`
	FanOutLimit     int           `env:"NOTIFYHUB_PUSH_FANOUT" envDefault:"8"`
	DispatchTimeout time.Duration `env:"NOTIFYHUB_PUSH_TIMEOUT" envDefault:"10s"`
}

// DefaultEnvFile は既定で読み込む.envファイル。
const DefaultEnvFile = ".env"

// LoadServer は.envファイルを読み込んだ後、環境変数からサーバー設定を組み立てる。
// 存在しない.envファイルは無視する。すでに設定済みの環境変数は上書きしない。
func LoadServer(envFiles ...string) (*Server, error) {
	if len(envFiles) == 0 {
		envFiles = []string{DefaultEnvFile}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%s の読み込みに失敗: %w", f, err)
		}
	}
	return parseServer(env.Options{})
}

func parseServer(opts env.Options) (*Server, error) {
	var cfg Server
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return nil, fmt.Errorf("環境変数の解析に失敗: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate は設定値の整合性を検証する。
func (c *Server) Validate() error {
	switch c.DefaultEnvironment {
	case api.EnvironmentProduction, api.EnvironmentSandbox:
	default:
		return fmt.Errorf("NOTIFYHUB_PUSH_ENVIRONMENT は %s か %s である必要があります: %q",
			api.EnvironmentProduction, api.EnvironmentSandbox, c.DefaultEnvironment)
	}
	if c.FanOutLimit < 1 {
		return fmt.Errorf("NOTIFYHUB_PUSH_FANOUT は1以上である必要があります: %d", c.FanOutLimit)
	}
	if c.DispatchTimeout <= 0 {
		return fmt.Errorf("NOTIFYHUB_PUSH_TIMEOUT は正の値である必要があります: %s", c.DispatchTimeout)
	}
	if c.APNsKeyPath != "" && (c.APNsKeyID == "" || c.APNsTeamID == "" || c.APNsTopic == "") {
		return errors.New("プッシュ配信には NOTIFYHUB_APNS_KEY_ID、NOTIFYHUB_APNS_TEAM_ID、NOTIFYHUB_APNS_TOPIC が必要です")
	}
	return nil
}

// PushEnabled はプッシュ配信が設定されているかを返す。
func (c *Server) PushEnabled() bool {
	return c.APNsKeyPath != ""
}
