package cron_feature

import (
	"context"
	"time"

	"ledger-sync/internal/database"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type RunRepository interface {
	CreateLog(ctx context.Context, log *RunLog) error
	UpdateLog(ctx context.Context, log *RunLog) error
	GetLogs(ctx context.Context, kind string, limit int) ([]RunLog, error)
}

type RunRepositoryImpl struct {
	logCollection *mongo.Collection
}

func NewRunRepository(db *database.MongodbDB) RunRepository {
	return &RunRepositoryImpl{
		logCollection: db.DB.Collection("sync_schedule_runs"),
	}
}

func (r *RunRepositoryImpl) CreateLog(ctx context.Context, log *RunLog) error {
	log.ID = primitive.NewObjectID()
	log.CreatedAt = time.Now()

	_, err := r.logCollection.InsertOne(ctx, log)
	return err
}

func (r *RunRepositoryImpl) UpdateLog(ctx context.Context, log *RunLog) error {
	filter := bson.M{"_id": log.ID}
	update := bson.M{"$set": log}

	_, err := r.logCollection.UpdateOne(ctx, filter, update)
	return err
}

func (r *RunRepositoryImpl) GetLogs(ctx context.Context, kind string, limit int) ([]RunLog, error) {
	var logs []RunLog

	opts := options.Find().
		SetSort(bson.D{{Key: "start_time", Value: -1}}).
		SetLimit(int64(limit))

	cursor, err := r.logCollection.Find(ctx, bson.M{"kind": kind}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	if err = cursor.All(ctx, &logs); err != nil {
		return nil, err
	}

	if logs == nil {
		logs = []RunLog{}
	}

	return logs, nil
}
