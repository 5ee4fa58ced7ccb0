// Copyright (c) 2024 op-move contributors. All rights reserved.
// See the file LICENSE for licensing terms.

// Package logging builds the root zap logger and hands out component-scoped
// children, the way luxfi-evm's plugin/evm/log.go wraps the chain context
// logger rather than reaching for a process-global logger.
package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds the root logger. development=true gets a human-readable
// console encoder at debug level; otherwise a JSON encoder at info level,
// suited to log aggregation in a production deployment.
func New(development bool) *zap.Logger {
	var cfg zap.Config
	if development {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.TimeKey = "ts"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}
	logger, err := cfg.Build()
	if err != nil {
		// The zap config above is built entirely from constants we control;
		// a build failure here means the process environment is broken
		// (e.g. stdout unwritable), not a recoverable condition.
		panic(err)
	}
	return logger
}

// Component returns a child logger named for the given subsystem, matching
// the "Named(component)" convention used throughout the teacher repo.
func Component(root *zap.Logger, component string) *zap.Logger {
	return root.Named(component)
}
