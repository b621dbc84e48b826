package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New creates a logger for the given environment and binary. Production gets
// JSON output at info level; everything else gets colored console output at
// debug level.
func New(environment, component string) (*zap.Logger, error) {
	var config zap.Config

	if environment == "production" {
		config = zap.NewProductionConfig()
	} else {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	config.EncoderConfig.CallerKey = "caller"
	config.EncoderConfig.EncodeCaller = zapcore.ShortCallerEncoder

	log, err := config.Build(zap.AddCaller())
	if err != nil {
		return nil, err
	}

	return log.With(zap.String("component", component)), nil
}
