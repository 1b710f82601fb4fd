package audit

import (
	"context"
	"time"

	"ledger-sync/internal/database"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type AuditRepository interface {
	Create(ctx context.Context, entry Entry) error
	List(ctx context.Context, query bson.M, limit, offset int64) ([]Entry, error)
	Count(ctx context.Context, query bson.M) (int64, error)
	EnsureIndexes(ctx context.Context) error
}

type AuditRepositoryImpl struct {
	Collection *mongo.Collection
}

func NewAuditRepository(mongodb *database.MongodbDB) AuditRepository {
	return &AuditRepositoryImpl{
		Collection: mongodb.DB.Collection("ledger_audit_logs"),
	}
}

func (r *AuditRepositoryImpl) Create(ctx context.Context, entry Entry) error {
	_, err := r.Collection.InsertOne(ctx, entry)
	return err
}

func (r *AuditRepositoryImpl) List(ctx context.Context, query bson.M, limit, offset int64) ([]Entry, error) {
	opts := options.Find().SetLimit(limit).SetSkip(offset).SetSort(bson.M{"timestamp": -1})

	cursor, err := r.Collection.Find(ctx, query, opts)
	if err != nil {
		return nil, err
	}
	entries := []Entry{}
	if err = cursor.All(ctx, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *AuditRepositoryImpl) Count(ctx context.Context, query bson.M) (int64, error) {
	return r.Collection.CountDocuments(ctx, query)
}

func (r *AuditRepositoryImpl) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	_, err := r.Collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "kind", Value: 1}, {Key: "record_id", Value: 1}, {Key: "timestamp", Value: -1}}},
		{Keys: bson.D{{Key: "operation_status", Value: 1}, {Key: "timestamp", Value: -1}}},
	})
	return err
}
