package snapshot

import (
	"context"
	"io"
	"os"
	"path/filepath"
)

// LocalStore はローカルファイルシステム上のスナップショット保存先。
// HDFSが構成されていない環境（開発・テスト）で使う。
type LocalStore struct{}

// NewLocalStore はLocalStoreの新しいインスタンスを生成する。
func NewLocalStore() *LocalStore {
	return &LocalStore{}
}

func (s *LocalStore) Exists(_ context.Context, path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

func (s *LocalStore) Open(_ context.Context, path string) (io.ReadCloser, error) {
	return os.Open(path)
}

func (s *LocalStore) Create(_ context.Context, path string) (io.WriteCloser, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return os.Create(path)
}

func (s *LocalStore) Remove(_ context.Context, path string) error {
	err := os.Remove(path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// Replace はos.Renameによる置き換え。同一ファイルシステム内では
// アトミックであり、読み手は旧版か新版のどちらかだけを観測する。
func (s *LocalStore) Replace(_ context.Context, tmpPath, finalPath string) error {
	return os.Rename(tmpPath, finalPath)
}
