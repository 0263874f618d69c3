package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	envLocal = "local"
	envDev   = "dev"
)

// New builds the application logger for the given environment.
// local and dev get a human readable console logger at debug level,
// everything else gets production JSON at info level.
func New(env string) *zap.Logger {
	var cfg zap.Config

	switch env {
	case envLocal, envDev:
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	default:
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.TimeKey = "timestamp"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	log, err := cfg.Build()
	if err != nil {
		// Config above is static, fall back rather than crash.
		return zap.NewExample()
	}

	return log.With(zap.String("env", env))
}

// IsVerbose reports whether env uses the debug logger.
func IsVerbose(env string) bool {
	return env == envLocal || env == envDev
}
