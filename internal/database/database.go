package database

import (
	"context"
	"fmt"
	"log"
	"time"

	"ledger-sync/internal/config"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/fx"
)

// MongodbDB holds the service's own state: ledger connection, audit trail,
// batch jobs, cursors, schedule runs and warn-level logs.
type MongodbDB struct {
	DB *mongo.Database
}

// NewDatabase connects to Mongo and disconnects when the fx app stops.
func NewDatabase(lc fx.Lifecycle, cfg *config.Config) (*MongodbDB, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	opts := options.Client().
		ApplyURI(cfg.MongoURI).
		SetAppName(cfg.AppId).
		SetServerSelectionTimeout(5 * time.Second).
		SetMaxPoolSize(uint64(max(cfg.DispatchWorkers*4, 20)))

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	log.Printf("Connected to MongoDB (%s)!", cfg.DBName)

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			log.Println("Disconnecting from MongoDB...")
			return client.Disconnect(ctx)
		},
	})

	return &MongodbDB{DB: client.Database(cfg.DBName)}, nil
}
