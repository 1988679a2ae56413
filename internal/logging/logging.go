// Package logging builds the supervisor's shared zap logger.
package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New returns a production zap.Logger unless dev is true, in which case it
// returns a human-readable console logger (used by `supervisord serve --dev`).
func New(dev bool) (*zap.Logger, error) {
	if dev {
		cfg := zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		return cfg.Build()
	}
	return zap.NewProduction()
}

// Job returns a logger scoped to one job's lifecycle.
func Job(base *zap.Logger, jobID, hpc string) *zap.Logger {
	return base.With(zap.String("job_id", jobID), zap.String("hpc", hpc))
}

// Cluster returns a logger scoped to one cluster's admission loop.
func Cluster(base *zap.Logger, hpc string) *zap.Logger {
	return base.With(zap.String("hpc", hpc))
}
