// コンシューマー用のAPIトークンを発行するコマンド。
// トークンはHS256で署名し、read/writeのスコープを持たせる。
package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/nao1215/notifyhub/internal/config"
	"github.com/nao1215/notifyhub/pkg/middleware"
)

func main() {
	var (
		installation = flag.String("installation", "", "トークンを発行するインストールID（必須）")
		scopes       = flag.String("scopes", "read,write", "カンマ区切りのスコープ")
		ttl          = flag.Duration("ttl", 0, "有効期限。0の場合は無期限")
		save         = flag.Bool("save", false, "発行したトークンをこの端末のキーリングに保存する")
	)
	flag.Parse()

	// サーバーと同じ.envからシークレットを読む
	_ = godotenv.Load(config.DefaultEnvFile)
	secret := os.Getenv("NOTIFYHUB_JWT_SECRET")
	token, err := issue(secret, *installation, *scopes, *ttl)
	if err != nil {
		log.Fatalf("トークンの発行に失敗: %v", err)
	}

	if *save {
		ring, err := config.OpenKeyring(os.Getenv(config.KeyringPasswordEnv))
		if err != nil {
			log.Fatalf("キーリングを開けません: %v", err)
		}
		if err := config.SaveToken(ring, token); err != nil {
			log.Fatalf("%v", err)
		}
		log.Printf("トークンをキーリングに保存しました")
	}
	fmt.Println(token)
}

func issue(secret, installation, rawScopes string, ttl time.Duration) (string, error) {
	if installation == "" {
		return "", errors.New("-installation は必須です")
	}

	var scopes []string
	for _, s := range strings.Split(rawScopes, ",") {
		switch s = strings.TrimSpace(s); s {
		case "":
		case middleware.ScopeRead, middleware.ScopeWrite:
			scopes = append(scopes, s)
		default:
			return "", fmt.Errorf("不明なスコープです: %q", s)
		}
	}
	if len(scopes) == 0 {
		return "", errors.New("スコープを1つ以上指定してください")
	}
	return middleware.GenerateJWT(secret, installation, scopes, ttl)
}
