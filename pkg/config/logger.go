package config

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const serviceName = "storefront"

// LoggerConfig names the store every log line belongs to, so several
// storefront deployments can share one log sink.
type LoggerConfig struct {
	Level string
	Env   string
	Store string
}

func (c *Config) LoggerConfig() LoggerConfig {
	return LoggerConfig{
		Level: c.Log.Level,
		Env:   c.Env,
		Store: c.Handoff.StoreName,
	}
}

func (c LoggerConfig) production() bool {
	return c.Env == "prod"
}

func zapConfig(cfg LoggerConfig) (zap.Config, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return zap.Config{}, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}

	var zapCfg zap.Config
	if cfg.production() {
		zapCfg = zap.NewProductionConfig()
		zapCfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	} else {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	zapCfg.Level = zap.NewAtomicLevelAt(level)
	zapCfg.InitialFields = map[string]any{
		"service": serviceName,
		"env":     cfg.Env,
	}
	if cfg.Store != "" {
		zapCfg.InitialFields["store"] = cfg.Store
	}

	return zapCfg, nil
}

func NewLogger(cfg LoggerConfig) (*zap.Logger, error) {
	zapCfg, err := zapConfig(cfg)
	if err != nil {
		return nil, err
	}

	return zapCfg.Build()
}
