package snapshot

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"

	"github.com/colinmarc/hdfs/v2"
)

// HDFSStore はHDFS上のスナップショット保存先。
type HDFSStore struct {
	client *hdfs.Client
}

// NewHDFSStore は指定されたネームノードアドレスに接続するHDFSStoreを生成する。
func NewHDFSStore(addr, user string) (*HDFSStore, error) {
	options := hdfs.ClientOptions{
		Addresses: []string{addr},
		User:      user,
	}
	client, err := hdfs.NewClient(options)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to hdfs: %w", err)
	}
	return &HDFSStore{client: client}, nil
}

func (s *HDFSStore) Exists(ctx context.Context, p string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	_, err := s.client.Stat(p)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

func (s *HDFSStore) Open(ctx context.Context, p string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.client.Open(p)
}

func (s *HDFSStore) Create(ctx context.Context, p string) (io.WriteCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.client.MkdirAll(path.Dir(p), 0o755); err != nil {
		return nil, err
	}
	return s.client.Create(p)
}

func (s *HDFSStore) Remove(ctx context.Context, p string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.client.Remove(p)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// Replace は旧ファイルの削除とリネームによる置き換え。
// HDFSのRenameは移動先が存在するとエラーになるため、先に削除する。
// 削除とリネームの間に読み手が不在期間を観測しうるが、中途半端な
// 内容を観測することはない。
func (s *HDFSStore) Replace(ctx context.Context, tmpPath, finalPath string) error {
	if err := s.Remove(ctx, finalPath); err != nil {
		return fmt.Errorf("failed to remove previous snapshot: %w", err)
	}
	if err := s.client.Rename(tmpPath, finalPath); err != nil {
		return fmt.Errorf("failed to publish snapshot: %w", err)
	}
	return nil
}

// Close はHDFS接続を閉じる。
func (s *HDFSStore) Close() error {
	return s.client.Close()
}
