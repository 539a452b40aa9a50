package logger

import (
	"fmt"

	"github.com/dunamismax/photoflow/internal/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds the process logger. JSON output is used in production or when
// the format is "json"; otherwise a colored console encoder.
func New(cfg config.LoggingConfig, app config.AppConfig, component string) (*zap.Logger, error) {
	var zapCfg zap.Config
	if cfg.Format == "json" || app.Environment == "production" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)
	zapCfg.InitialFields = map[string]any{
		"app":         app.Name,
		"environment": app.Environment,
		"component":   component,
	}

	logger, err := zapCfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return logger, nil
}

func WithRequest(logger *zap.Logger, method, path, requestID string) *zap.Logger {
	return logger.With(
		zap.String("method", method),
		zap.String("path", path),
		zap.String("request_id", requestID),
	)
}

func WithJob(logger *zap.Logger, jobID, photoID string) *zap.Logger {
	return logger.With(
		zap.String("job_id", jobID),
		zap.String("photo_id", photoID),
	)
}
