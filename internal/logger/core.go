package logger

import (
	"go.uber.org/zap/zapcore"
)

// DBCore tees entries at or above minLevel into the async Mongo writer.
type DBCore struct {
	zapcore.Core
	writer   *DBLogWriter
	minLevel zapcore.Level
	fields   []zapcore.Field
}

func NewDBCore(baseCore zapcore.Core, writer *DBLogWriter) zapcore.Core {
	return &DBCore{
		Core:     baseCore,
		writer:   writer,
		minLevel: zapcore.WarnLevel,
	}
}

// With keeps the accumulated fields so Write can still see kind/record ids.
func (c *DBCore) With(fields []zapcore.Field) zapcore.Core {
	merged := make([]zapcore.Field, 0, len(c.fields)+len(fields))
	merged = append(merged, c.fields...)
	merged = append(merged, fields...)
	return &DBCore{
		Core:     c.Core.With(fields),
		writer:   c.writer,
		minLevel: c.minLevel,
		fields:   merged,
	}
}

func (c *DBCore) Write(entry zapcore.Entry, fields []zapcore.Field) error {
	if entry.Level >= c.minLevel {
		enc := zapcore.NewMapObjectEncoder()
		for _, f := range c.fields {
			f.AddTo(enc)
		}
		for _, f := range fields {
			f.AddTo(enc)
		}

		c.writer.AddLog(LogEntry{
			Level:   entry.Level,
			Logger:  entry.LoggerName,
			Message: entry.Message,
			Caller:  entry.Caller.Function,
			Fields:  enc.Fields,
		})
	}

	return c.Core.Write(entry, fields)
}

func (c *DBCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}
	return ce
}
