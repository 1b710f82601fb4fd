package logger

import (
	"context"
	"fmt"
	"time"

	"ledger-sync/internal/config"
	"ledger-sync/internal/database"

	"go.uber.org/zap/zapcore"
)

// LogEntry holds the data passed from Zap to the worker
type LogEntry struct {
	Level   zapcore.Level
	Logger  string
	Message string
	Caller  string
	Fields  map[string]interface{}
}

// LogRecord is the persisted shape in the "logs" collection.
type LogRecord struct {
	AppId        string                 `bson:"app_id" json:"app_id"`
	Logger       string                 `bson:"logger" json:"logger"`
	Message      string                 `bson:"message" json:"message"`
	Caller       string                 `bson:"caller" json:"caller"`
	LogLevelId   int                    `bson:"log_level_id" json:"log_level_id"`
	Fields       map[string]interface{} `bson:"fields,omitempty" json:"fields,omitempty"`
	CreatedOnUtc time.Time              `bson:"created_on_utc" json:"created_on_utc"`
}

// LogSink is the single call the writer needs from a collection.
type LogSink interface {
	InsertOne(ctx context.Context, document interface{}) error
}

type mongoSink struct {
	db *database.MongodbDB
}

func (s mongoSink) InsertOne(ctx context.Context, document interface{}) error {
	_, err := s.db.DB.Collection("logs").InsertOne(ctx, document)
	return err
}

// DBLogWriter handles the async writing
type DBLogWriter struct {
	sink    LogSink
	logChan chan LogEntry
	appId   string
}

func NewDBLogWriter(mongodb *database.MongodbDB, cfg *config.Config) *DBLogWriter {
	return newDBLogWriter(mongoSink{db: mongodb}, cfg.AppId, 1000)
}

func newDBLogWriter(sink LogSink, appId string, buffer int) *DBLogWriter {
	writer := &DBLogWriter{
		sink:    sink,
		logChan: make(chan LogEntry, buffer),
		appId:   appId,
	}

	go writer.processLogs()

	return writer
}

// AddLog never blocks the caller; a full buffer drops the entry.
func (w *DBLogWriter) AddLog(entry LogEntry) {
	select {
	case w.logChan <- entry:
	default:
		fmt.Println("DB Log Channel Full! Dropping log:", entry.Message)
	}
}

func (w *DBLogWriter) processLogs() {
	for entry := range w.logChan {
		record := LogRecord{
			AppId:        w.appId,
			Logger:       entry.Logger,
			Message:      entry.Message,
			Caller:       entry.Caller,
			LogLevelId:   mapLevelToInt(entry.Level),
			Fields:       entry.Fields,
			CreatedOnUtc: time.Now().UTC(),
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = w.sink.InsertOne(ctx, record)
		cancel()
	}
}

func mapLevelToInt(l zapcore.Level) int {
	switch l {
	case zapcore.DebugLevel:
		return 10
	case zapcore.InfoLevel:
		return 20
	case zapcore.WarnLevel:
		return 30
	case zapcore.ErrorLevel:
		return 40
	case zapcore.FatalLevel:
		return 50
	default:
		return 20
	}
}
