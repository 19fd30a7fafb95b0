package config

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/99designs/keyring"
)

// キーリング上の保存先。
const (
	KeyringService  = "notifyhub"
	KeyringTokenKey = "api-token"
)

// KeyringPasswordEnv はファイルキーリングの暗号化パスワードを渡す環境変数。
const KeyringPasswordEnv = EnvPrefix + "_KEYRING_PASSWORD"

// OpenKeyring はOSのキーリングを開く。使えるバックエンドがない場合はファイルに保存する。
// filePasswordが空の場合、ファイルへの保存時にパスワードを端末で尋ねる。
func OpenKeyring(filePassword string) (keyring.Keyring, error) {
	ring, err := keyring.Open(keyringConfig(filepath.Join(configDir(), "credentials"), filePassword, keyring.TerminalPrompt))
	if err != nil {
		return nil, fmt.Errorf("キーリングを開けません: %w", err)
	}
	return ring, nil
}

func keyringConfig(fileDir, filePassword string, prompt keyring.PromptFunc) keyring.Config {
	if filePassword != "" {
		prompt = keyring.FixedStringPrompt(filePassword)
	}
	return keyring.Config{
		ServiceName: KeyringService,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		FileDir:                  fileDir,
		FilePasswordFunc:         prompt,
		KeychainTrustApplication: true,
	}
}

// ResolveToken は設定にAPIトークンがなければキーリングから補う。
// キーリングにもない場合はエラーを返す。
func (c *Watcher) ResolveToken(ring keyring.Keyring) error {
	if c.Token != "" {
		return nil
	}
	if ring == nil {
		return errors.New("APIトークンが設定されていません")
	}
	item, err := ring.Get(KeyringTokenKey)
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return errors.New("APIトークンが設定にもキーリングにもありません")
	}
	if err != nil {
		return fmt.Errorf("キーリングからのトークン取得に失敗: %w", err)
	}
	c.Token = string(item.Data)
	return nil
}

// SaveToken はAPIトークンをキーリングに保存する。
func SaveToken(ring keyring.Keyring, token string) error {
	err := ring.Set(keyring.Item{
		Key:   KeyringTokenKey,
		Data:  []byte(token),
		Label: "notifyhub API token",
	})
	if err != nil {
		return fmt.Errorf("キーリングへのトークン保存に失敗: %w", err)
	}
	return nil
}
