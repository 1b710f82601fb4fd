package ledger

import (
	"context"
	"errors"
	"time"

	"ledger-sync/internal/database"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type ConnectionRepository interface {
	Get(ctx context.Context) (*Connection, error)
	Upsert(ctx context.Context, conn *Connection) error
	Delete(ctx context.Context) error
}

type ConnectionRepositoryImpl struct {
	collection *mongo.Collection
}

func NewConnectionRepository(db *database.MongodbDB) ConnectionRepository {
	return &ConnectionRepositoryImpl{
		collection: db.DB.Collection("ledger_connections"),
	}
}

// Get returns nil, nil when no connection has been stored.
func (r *ConnectionRepositoryImpl) Get(ctx context.Context) (*Connection, error) {
	var conn Connection
	err := r.collection.FindOne(ctx, bson.M{"_id": connectionID}).Decode(&conn)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &conn, nil
}

func (r *ConnectionRepositoryImpl) Upsert(ctx context.Context, conn *Connection) error {
	conn.ID = connectionID
	conn.UpdatedAt = time.Now()
	_, err := r.collection.ReplaceOne(ctx, bson.M{"_id": connectionID}, conn, options.Replace().SetUpsert(true))
	return err
}

func (r *ConnectionRepositoryImpl) Delete(ctx context.Context) error {
	_, err := r.collection.DeleteOne(ctx, bson.M{"_id": connectionID})
	return err
}
