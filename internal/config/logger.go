package config

import (
	"fmt"

	"go.uber.org/zap"
)

// NewLogger создаёт production-логгер с уровнем из конфигурации.
func NewLogger(level string) (*zap.Logger, error) {
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, fmt.Errorf("parse log level: %w", err)
	}

	zapcfg := zap.NewProductionConfig()
	zapcfg.Level = lvl

	logger, err := zapcfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}

	return logger, nil
}
