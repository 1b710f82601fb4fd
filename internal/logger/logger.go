package logger

import (
	"ledger-sync/internal/config"
	"ledger-sync/internal/database"

	"go.uber.org/zap"
)

// NewLogger builds the console logger and tees warn-and-above entries into Mongo.
func NewLogger(cfg *config.Config, mongodb *database.MongodbDB) (*zap.Logger, error) {
	var zapConfig zap.Config
	if cfg.Environment == "production" {
		zapConfig = zap.NewProductionConfig()
	} else {
		zapConfig = zap.NewDevelopmentConfig()
	}

	// Enable Caller to get Function Name
	zapConfig.EncoderConfig.FunctionKey = "func"

	baseLogger, err := zapConfig.Build()
	if err != nil {
		return nil, err
	}

	dbWriter := NewDBLogWriter(mongodb, cfg)

	finalCore := NewDBCore(baseLogger.Core(), dbWriter)

	return zap.New(finalCore, zap.AddCaller()).With(zap.String("app", cfg.AppId)), nil
}

// MaskToken keeps enough of a secret to correlate log lines without exposing it.
func MaskToken(token string) string {
	if token == "" {
		return "<empty>"
	}
	if len(token) <= 8 {
		return "****"
	}
	return token[:4] + "****" + token[len(token)-2:]
}
