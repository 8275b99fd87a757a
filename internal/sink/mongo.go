package sink

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/RecoveryAshes/HackSync/internal/models"
	"github.com/RecoveryAshes/HackSync/internal/utils"
)

// MongoSink 记录存放在一个集合中,每条记录一个文档
type MongoSink struct {
	client     *mongo.Client
	collection *mongo.Collection
}

// OpenMongo 连接MongoDB并确认可用
func OpenMongo(ctx context.Context, uri, database, collection string) (*MongoSink, error) {
	client, err := mongo.Connect(ctx, options.Client().
		ApplyURI(uri).
		SetServerSelectionTimeout(10*time.Second))
	if err != nil {
		return nil, fmt.Errorf("连接MongoDB失败: %w", err)
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("MongoDB不可用: %w", err)
	}

	utils.Debugf("已连接MongoDB: %s/%s", database, collection)
	return &MongoSink{
		client:     client,
		collection: client.Database(database).Collection(collection),
	}, nil
}

// NewMongoSink 使用已有的集合
func NewMongoSink(collection *mongo.Collection) *MongoSink {
	return &MongoSink{collection: collection}
}

// DeleteAll 删除集合中全部文档
func (s *MongoSink) DeleteAll(ctx context.Context) (int64, error) {
	res, err := s.collection.DeleteMany(ctx, bson.D{})
	if err != nil {
		return 0, fmt.Errorf("删除记录失败: %w", err)
	}
	return res.DeletedCount, nil
}

// InsertMany 有序批量插入
func (s *MongoSink) InsertMany(ctx context.Context, records []models.Record) (int64, error) {
	if len(records) == 0 {
		return 0, nil
	}

	docs := make([]interface{}, len(records))
	for i, r := range records {
		docs[i] = r
	}

	res, err := s.collection.InsertMany(ctx, docs, options.InsertMany().SetOrdered(true))
	if err != nil {
		return 0, fmt.Errorf("插入记录失败: %w", err)
	}
	return int64(len(res.InsertedIDs)), nil
}

// Close 断开连接
func (s *MongoSink) Close(ctx context.Context) error {
	if s.client == nil {
		return nil
	}
	if err := s.client.Disconnect(ctx); err != nil {
		return fmt.Errorf("断开MongoDB失败: %w", err)
	}
	return nil
}
