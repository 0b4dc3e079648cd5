package repository

import (
	"errors"

	"go.mongodb.org/mongo-driver/mongo"
)

// splitBulkError は一括書き込みのエラーを個別失敗と致命的エラーに分離する。
// 順序なし一括書き込みでは一部のドキュメントだけが失敗しうる。その場合
// mongo.BulkWriteExceptionが返るので、書き込みエラーをWriteFailureに変換して
// 呼び出し元がバッチを継続できるようにする。それ以外のエラー
// （接続断など）は致命的として返す。
//
// keysはバッチ内の位置から自然キーを引くためのスライス。
func splitBulkError(err error, keys []string) ([]WriteFailure, error) {
	if err == nil {
		return nil, nil
	}

	var bwe mongo.BulkWriteException
	if !errors.As(err, &bwe) {
		return nil, err
	}

	// トップレベルのエラー（書き込み懸念の失敗など）は致命的扱い
	if bwe.WriteConcernError != nil {
		return nil, err
	}

	failures := make([]WriteFailure, 0, len(bwe.WriteErrors))
	for _, we := range bwe.WriteErrors {
		f := WriteFailure{
			Index:   we.Index,
			Message: we.Message,
		}
		if we.Index >= 0 && we.Index < len(keys) {
			f.Key = keys[we.Index]
		}
		failures = append(failures, f)
	}
	return failures, nil
}
