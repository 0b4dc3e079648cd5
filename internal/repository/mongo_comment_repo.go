package repository

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/hitoshi/toonman/internal/model"
)

// MongoCommentRepo はCommentRepositoryのMongoDB実装。
type MongoCommentRepo struct {
	coll *mongo.Collection
	now  func() time.Time
}

// NewMongoCommentRepo はMongoCommentRepoの新しいインスタンスを生成する。
func NewMongoCommentRepo(coll *mongo.Collection) *MongoCommentRepo {
	return &MongoCommentRepo{
		coll: coll,
		now:  time.Now,
	}
}

// BulkUpsert はスレッドをエピソードURLキーの全置換で一括アップサートする。
// コメント収集は1日に複数回走るため、last_updateは秒粒度で刻印される。
func (r *MongoCommentRepo) BulkUpsert(ctx context.Context, threads []*model.CommentThread) (int, []WriteFailure, error) {
	if len(threads) == 0 {
		return 0, nil, nil
	}

	stamp := r.now().Format(model.DateTimeLayout)
	models := make([]mongo.WriteModel, 0, len(threads))
	keys := make([]string, 0, len(threads))
	for _, th := range threads {
		th.LastUpdate = stamp
		models = append(models, mongo.NewReplaceOneModel().
			SetFilter(bson.M{"episode_url": th.EpisodeURL}).
			SetReplacement(th).
			SetUpsert(true))
		keys = append(keys, th.EpisodeURL)
	}

	_, err := r.coll.BulkWrite(ctx, models, options.BulkWrite().SetOrdered(false))
	failures, fatal := splitBulkError(err, keys)
	if fatal != nil {
		return 0, nil, fmt.Errorf("スレッドの一括アップサートに失敗しました: %w", fatal)
	}

	return len(threads) - len(failures), failures, nil
}

// CountUpdatedOn はlast_updateが指定日付で始まるスレッド数を返す。
func (r *MongoCommentRepo) CountUpdatedOn(ctx context.Context, datePrefix string) (int64, error) {
	return r.coll.CountDocuments(ctx, updatedOnFilter(datePrefix))
}

// ListUpdatedOn はlast_updateが指定日付で始まるスレッドをページ単位で返す。
func (r *MongoCommentRepo) ListUpdatedOn(ctx context.Context, datePrefix string, skip, limit int64) ([]*model.CommentThread, error) {
	opts := options.Find().SetSkip(skip).SetLimit(limit)
	cur, err := r.coll.Find(ctx, updatedOnFilter(datePrefix), opts)
	if err != nil {
		return nil, fmt.Errorf("スレッド一覧の取得に失敗しました: %w", err)
	}
	defer cur.Close(ctx)

	var threads []*model.CommentThread
	for cur.Next(ctx) {
		var th model.CommentThread
		if err := cur.Decode(&th); err != nil {
			return nil, fmt.Errorf("スレッドのデコードに失敗しました: %w", err)
		}
		threads = append(threads, &th)
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("スレッド一覧のスキャンに失敗しました: %w", err)
	}
	return threads, nil
}
