package logging

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	logger *zap.Logger
	once   sync.Once
)

type contextKey string

const (
	CorrelationIDKey contextKey = "correlation_id"
	PlayerIDKey      contextKey = "player_id"
	RoomCodeKey      contextKey = "room_code"
)

// Initialize sets up the global logger based on the environment
func Initialize(development bool) error {
	var err error
	once.Do(func() {
		var config zap.Config
		if development {
			config = zap.NewDevelopmentConfig()
			config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		} else {
			config = zap.NewProductionConfig()
			config.EncoderConfig.TimeKey = "timestamp"
			config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		}

		config.OutputPaths = []string{"stdout"}
		config.ErrorOutputPaths = []string{"stderr"}

		logger, err = config.Build(zap.AddCallerSkip(1))
	})
	return err
}

// GetLogger returns the global logger instance
func GetLogger() *zap.Logger {
	if logger == nil {
		// Fallback specific for tests or before init
		l, _ := zap.NewDevelopment()
		return l
	}
	return logger
}

// Info logs a message at InfoLevel
func Info(ctx context.Context, msg string, fields ...zap.Field) {
	GetLogger().Info(msg, appendContextFields(ctx, fields)...)
}

// Warn logs a message at WarnLevel
func Warn(ctx context.Context, msg string, fields ...zap.Field) {
	GetLogger().Warn(msg, appendContextFields(ctx, fields)...)
}

// Error logs a message at ErrorLevel
func Error(ctx context.Context, msg string, fields ...zap.Field) {
	GetLogger().Error(msg, appendContextFields(ctx, fields)...)
}

// Fatal logs a message at FatalLevel
func Fatal(ctx context.Context, msg string, fields ...zap.Field) {
	GetLogger().Fatal(msg, appendContextFields(ctx, fields)...)
}

func appendContextFields(ctx context.Context, fields []zap.Field) []zap.Field {
	if ctx == nil {
		return fields
	}

	if cid, ok := ctx.Value(CorrelationIDKey).(string); ok {
		fields = append(fields, zap.String("correlation_id", cid))
	}
	if pid, ok := ctx.Value(PlayerIDKey).(string); ok {
		fields = append(fields, zap.String("player_id", pid))
	}
	if rc, ok := ctx.Value(RoomCodeKey).(string); ok {
		fields = append(fields, zap.String("room_code", rc))
	}

	fields = append(fields, zap.String("service", "ox-arena"))

	return fields
}

// RedactToken masks all but the first 4 characters of a secret token.
func RedactToken(token string) string {
	if len(token) <= 4 {
		return "***"
	}
	return token[:4] + "***"
}
