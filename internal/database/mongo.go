// Package database はドキュメントストアへの接続を提供する。
package database

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// Open はMongoDBクライアントを生成する。
// mongoURIはMongoDBの接続URIを指定する（例: "mongodb://mongodb:27017"）。
// 接続確認にはPing()を使用すること。
func Open(ctx context.Context, mongoURI string) (*mongo.Client, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(mongoURI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}
	return client, nil
}

// Ping はプライマリへの到達性を確認する。
func Ping(ctx context.Context, client *mongo.Client) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return client.Ping(ctx, readpref.Primary())
}

// HealthChecker はヘルスチェック用にクライアントを包む。
type HealthChecker struct {
	client *mongo.Client
}

// NewHealthChecker はHealthCheckerの新しいインスタンスを生成する。
func NewHealthChecker(client *mongo.Client) *HealthChecker {
	return &HealthChecker{client: client}
}

// Ping はプライマリへの到達性を確認する。
func (h *HealthChecker) Ping(ctx context.Context) error {
	return h.client.Ping(ctx, readpref.Primary())
}
