package batch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ledger-sync/internal/database"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var ErrJobNotFound = errors.New("job not found")

// JobStore persists batch jobs. Chunk workers may live in other processes,
// so counters only move through atomic increments.
type JobStore interface {
	Create(ctx context.Context, job *BatchJob) error
	Increment(ctx context.Context, jobID string, c Counts) error
	Finish(ctx context.Context, jobID string, status JobStatus, newOffset *int, errMsg string, end time.Time) error
	Get(ctx context.Context, jobID string) (*BatchJob, error)
	EnsureIndexes(ctx context.Context) error
}

type JobStoreImpl struct {
	Collection *mongo.Collection
}

func NewJobStore(mongodb *database.MongodbDB) JobStore {
	return &JobStoreImpl{
		Collection: mongodb.DB.Collection("sync_jobs"),
	}
}

func jobKey(jobID string) string {
	return "job:" + jobID
}

func (r *JobStoreImpl) Create(ctx context.Context, job *BatchJob) error {
	job.ID = jobKey(job.JobID)
	_, err := r.Collection.InsertOne(ctx, job)
	return err
}

func (r *JobStoreImpl) Increment(ctx context.Context, jobID string, c Counts) error {
	res, err := r.Collection.UpdateByID(ctx, jobKey(jobID), bson.M{"$inc": bson.M{
		"counts.synced":  c.Synced,
		"counts.failed":  c.Failed,
		"counts.skipped": c.Skipped,
	}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}
	return nil
}

func (r *JobStoreImpl) Finish(ctx context.Context, jobID string, status JobStatus, newOffset *int, errMsg string, end time.Time) error {
	set := bson.M{"status": status, "end_time": end}
	if newOffset != nil {
		set["new_offset"] = *newOffset
	}
	if errMsg != "" {
		set["error"] = errMsg
	}
	_, err := r.Collection.UpdateByID(ctx, jobKey(jobID), bson.M{"$set": set})
	return err
}

func (r *JobStoreImpl) Get(ctx context.Context, jobID string) (*BatchJob, error) {
	var job BatchJob
	err := r.Collection.FindOne(ctx, bson.M{"_id": jobKey(jobID)}).Decode(&job)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// EnsureIndexes lets Mongo expire jobs once their retention window passes.
func (r *JobStoreImpl) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	_, err := r.Collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "expires_at", Value: 1}}, Options: options.Index().SetExpireAfterSeconds(0)},
		{Keys: bson.D{{Key: "kind", Value: 1}, {Key: "start_time", Value: -1}}},
	})
	return err
}

// CursorStore keeps the resume offset of each kind's unsynced stream.
type CursorStore interface {
	Get(ctx context.Context, kind string) (int, error)
	Advance(ctx context.Context, kind string, delta int) (int, error)
	Reset(ctx context.Context, kind string) error
}

type CursorStoreImpl struct {
	Collection *mongo.Collection
}

func NewCursorStore(mongodb *database.MongodbDB) CursorStore {
	return &CursorStoreImpl{
		Collection: mongodb.DB.Collection("sync_cursors"),
	}
}

type cursorDoc struct {
	ID        string    `bson:"_id"`
	Offset    int       `bson:"offset"`
	UpdatedAt time.Time `bson:"updated_at"`
}

func cursorKey(kind string) string {
	return kind + "_sync:offset"
}

func (r *CursorStoreImpl) Get(ctx context.Context, kind string) (int, error) {
	var doc cursorDoc
	err := r.Collection.FindOne(ctx, bson.M{"_id": cursorKey(kind)}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return doc.Offset, nil
}

func (r *CursorStoreImpl) Advance(ctx context.Context, kind string, delta int) (int, error) {
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)
	var doc cursorDoc
	err := r.Collection.FindOneAndUpdate(ctx,
		bson.M{"_id": cursorKey(kind)},
		bson.M{"$inc": bson.M{"offset": delta}, "$set": bson.M{"updated_at": time.Now().UTC()}},
		opts,
	).Decode(&doc)
	if err != nil {
		return 0, err
	}
	return doc.Offset, nil
}

func (r *CursorStoreImpl) Reset(ctx context.Context, kind string) error {
	_, err := r.Collection.UpdateByID(ctx, cursorKey(kind),
		bson.M{"$set": bson.M{"offset": 0, "updated_at": time.Now().UTC()}},
		options.Update().SetUpsert(true))
	return err
}
