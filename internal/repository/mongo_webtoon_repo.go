package repository

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/hitoshi/toonman/internal/model"
)

// MongoWebtoonRepo はWebtoonRepositoryのMongoDB実装。
type MongoWebtoonRepo struct {
	coll *mongo.Collection
	now  func() time.Time
}

// NewMongoWebtoonRepo はMongoWebtoonRepoの新しいインスタンスを生成する。
func NewMongoWebtoonRepo(coll *mongo.Collection) *MongoWebtoonRepo {
	return &MongoWebtoonRepo{
		coll: coll,
		now:  time.Now,
	}
}

// FindByURL は指定URLのエントリを取得する。見つからない場合はnilを返す。
func (r *MongoWebtoonRepo) FindByURL(ctx context.Context, url string) (*model.Webtoon, error) {
	var w model.Webtoon
	err := r.coll.FindOne(ctx, bson.M{"url": url}).Decode(&w)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("エントリの取得に失敗しました: %w", err)
	}
	return &w, nil
}

// BulkUpsert はエントリをURLキーの全置換で一括アップサートする。
// 順序なし書き込みのため、個別ドキュメントの失敗は残りを妨げない。
// last_updateは書き込み時点の日付（日粒度）で刻印される。
func (r *MongoWebtoonRepo) BulkUpsert(ctx context.Context, webtoons []*model.Webtoon) (int, []WriteFailure, error) {
	if len(webtoons) == 0 {
		return 0, nil, nil
	}

	stamp := r.now().Format(model.DateLayout)
	models := make([]mongo.WriteModel, 0, len(webtoons))
	keys := make([]string, 0, len(webtoons))
	for _, w := range webtoons {
		w.LastUpdate = stamp
		models = append(models, mongo.NewReplaceOneModel().
			SetFilter(bson.M{"url": w.URL}).
			SetReplacement(w).
			SetUpsert(true))
		keys = append(keys, w.URL)
	}

	_, err := r.coll.BulkWrite(ctx, models, options.BulkWrite().SetOrdered(false))
	failures, fatal := splitBulkError(err, keys)
	if fatal != nil {
		return 0, nil, fmt.Errorf("エントリの一括アップサートに失敗しました: %w", fatal)
	}

	return len(webtoons) - len(failures), failures, nil
}

// CountUpdatedOn はlast_updateが指定日付で始まるエントリ数を返す。
func (r *MongoWebtoonRepo) CountUpdatedOn(ctx context.Context, datePrefix string) (int64, error) {
	return r.coll.CountDocuments(ctx, updatedOnFilter(datePrefix))
}

// ListUpdatedOn はlast_updateが指定日付で始まるエントリをページ単位で返す。
func (r *MongoWebtoonRepo) ListUpdatedOn(ctx context.Context, datePrefix string, skip, limit int64) ([]*model.Webtoon, error) {
	opts := options.Find().SetSkip(skip).SetLimit(limit)
	cur, err := r.coll.Find(ctx, updatedOnFilter(datePrefix), opts)
	if err != nil {
		return nil, fmt.Errorf("エントリ一覧の取得に失敗しました: %w", err)
	}
	defer cur.Close(ctx)

	var webtoons []*model.Webtoon
	for cur.Next(ctx) {
		var w model.Webtoon
		if err := cur.Decode(&w); err != nil {
			return nil, fmt.Errorf("エントリのデコードに失敗しました: %w", err)
		}
		webtoons = append(webtoons, &w)
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("エントリ一覧のスキャンに失敗しました: %w", err)
	}
	return webtoons, nil
}

// updatedOnFilter はlast_updateの前方一致フィルタを構築する。
// last_updateは文字列として保存されているため、日付プレフィックスの
// 正規表現マッチで「今日更新されたドキュメント」を選択する。
func updatedOnFilter(datePrefix string) bson.M {
	return bson.M{"last_update": primitive.Regex{Pattern: "^" + regexp.QuoteMeta(datePrefix)}}
}
