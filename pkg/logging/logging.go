package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
)

// New builds the application logger. Log entries flow through a zap core so
// output is structured JSON, or human-readable console output when pretty is
// set for local development. Output goes to stderr, which keeps stdout clean
// for protocol streams.
func New(level string, pretty bool) (ectologger.Logger, func(), error) {
	zapCfg := zap.NewProductionConfig()
	if pretty {
		zapCfg = zap.NewDevelopmentConfig()
	}
	zapCfg.DisableCaller = true
	zapCfg.DisableStacktrace = true

	if parsed, err := zapcore.ParseLevel(level); err == nil {
		zapCfg.Level = zap.NewAtomicLevelAt(parsed)
	}

	zapLogger, err := zapCfg.Build()
	if err != nil {
		return nil, nil, err
	}

	logger := zapadapter.NewZapEctoLogger(zapLogger, nil)

	flush := func() {
		_ = zapLogger.Sync()
	}

	return logger, flush, nil
}
