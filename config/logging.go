package config

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// SetupLogging builds a production zap logger, sugared for the call-site
// convenience the rest of the prober uses. Grounded on
// go/config/logging.go's single setup-function shape, rebuilt on
// go.uber.org/zap per SPEC_FULL.md's ambient-stack section instead of the
// teacher's stdlib log.
func SetupLogging(debug bool) (*zap.SugaredLogger, error) {
	var cfg zap.Config
	if debug {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.TimeKey = "ts"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	logger, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return logger.Sugar(), nil
}
