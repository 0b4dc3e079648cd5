// Package snapshot はカタログデータの行JSONスナップショットの
// 保存と日次コンパクションを提供する。
package snapshot

import (
	"context"
	"io"
)

// Store はスナップショットファイルの保存先を抽象化する。
// ローカルファイルシステム実装とHDFS実装がある。
type Store interface {
	// Exists はパスにファイルが存在するかを返す。
	Exists(ctx context.Context, path string) (bool, error)
	// Open は既存ファイルを読み取り用に開く。
	Open(ctx context.Context, path string) (io.ReadCloser, error)
	// Create はファイルを書き込み用に新規作成する。親ディレクトリは作成される。
	Create(ctx context.Context, path string) (io.WriteCloser, error)
	// Remove はファイルを削除する。存在しない場合もエラーにしない。
	Remove(ctx context.Context, path string) error
	// Replace はtmpPathのファイルをfinalPathとして公開する。
	// 公開後に読み手が中途半端な状態を観測してはならない。
	Replace(ctx context.Context, tmpPath, finalPath string) error
}
