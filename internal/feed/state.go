package feed

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// State はTrackerの永続化用の状態。各要素は古い順に並ぶ。
type State struct {
	Cursor   string    `json:"cursor"`
	Receipts []Receipt `json:"receipts"`
	Read     []string  `json:"read"`
	Items    []Item    `json:"items"`
}

// LoadState はファイルから状態を読み込む。ファイルがない場合は空の状態を返す。
func LoadState(path string) (State, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return State{}, nil
	}
	if err != nil {
		return State{}, fmt.Errorf("状態ファイルの読み込みに失敗: %w", err)
	}

	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		return State{}, fmt.Errorf("状態ファイルの解析に失敗: %w", err)
	}
	return st, nil
}

// SaveState は状態をファイルに書き込む。一時ファイルに書いてから置き換えるため、
// 途中で失敗しても既存のファイルは壊れない。
func SaveState(path string, st State) error {
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("状態のエンコードに失敗: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("状態ディレクトリの作成に失敗: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("一時ファイルの作成に失敗: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("一時ファイルへの書き込みに失敗: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("一時ファイルのクローズに失敗: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("状態ファイルの置き換えに失敗: %w", err)
	}
	return nil
}
