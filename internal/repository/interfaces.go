// Package repository はドキュメントストアへの永続化インターフェースを定義する。
package repository

import (
	"context"

	"github.com/hitoshi/toonman/internal/model"
)

// WriteFailure はバッチ書き込み内の個別ドキュメントの失敗を表す。
// バッチ全体を中断せず、失敗したドキュメントだけを報告するために使用する。
type WriteFailure struct {
	// Index はバッチ内での位置。
	Index int
	// Key は失敗したドキュメントの自然キー（URL）。
	Key string
	// Message はストアが報告したエラーメッセージ。
	Message string
}

// WebtoonRepository はカタログエントリの永続化インターフェース。
type WebtoonRepository interface {
	// FindByURL は指定URLのエントリを取得する。見つからない場合はnilを返す。
	FindByURL(ctx context.Context, url string) (*model.Webtoon, error)

	// BulkUpsert はエントリをURLキーの全置換で一括アップサートする。
	// 各ドキュメントのlast_updateは書き込み時点の日付で刻印される。
	// 個別ドキュメントの失敗はWriteFailureとして返し、残りは書き込まれる。
	// 戻り値は成功数、個別失敗、致命的エラー。
	BulkUpsert(ctx context.Context, webtoons []*model.Webtoon) (int, []WriteFailure, error)

	// CountUpdatedOn はlast_updateが指定日付で始まるエントリ数を返す。
	CountUpdatedOn(ctx context.Context, datePrefix string) (int64, error)

	// ListUpdatedOn はlast_updateが指定日付で始まるエントリをページ単位で返す。
	ListUpdatedOn(ctx context.Context, datePrefix string, skip, limit int64) ([]*model.Webtoon, error)
}

// CommentRepository はコメントスレッドの永続化インターフェース。
// キーはエピソードURL。
type CommentRepository interface {
	// BulkUpsert はスレッドをエピソードURLキーの全置換で一括アップサートする。
	// 各ドキュメントのlast_updateは書き込み時点の日時（秒粒度）で刻印される。
	BulkUpsert(ctx context.Context, threads []*model.CommentThread) (int, []WriteFailure, error)

	// CountUpdatedOn はlast_updateが指定日付で始まるスレッド数を返す。
	CountUpdatedOn(ctx context.Context, datePrefix string) (int64, error)

	// ListUpdatedOn はlast_updateが指定日付で始まるスレッドをページ単位で返す。
	ListUpdatedOn(ctx context.Context, datePrefix string, skip, limit int64) ([]*model.CommentThread, error)
}
