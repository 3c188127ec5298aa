package bootstrap

import (
	"fmt"
	"os"

	"apguard/config"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// InitLogger builds the zap logger. "console" gives colored, human readable
// output; "json" gives one structured object per line for log collectors.
func InitLogger(level, format string) (*zap.Logger, *zap.SugaredLogger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	var encoder zapcore.Encoder
	switch format {
	case "", "console":
		encoderConfig := zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		encoderConfig.EncodeCaller = zapcore.ShortCallerEncoder
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	case "json":
		encoderConfig := zap.NewProductionEncoderConfig()
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	default:
		return nil, nil, fmt.Errorf("invalid log format %q", format)
	}

	core := zapcore.NewCore(encoder, zapcore.AddSync(os.Stdout), lvl)
	logger := zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))
	return logger, logger.Sugar(), nil
}

// InitConfig loads the application configuration. Invalid configuration is
// reported on stderr since the logger depends on it.
func InitConfig(configFile string) (*config.Config, error) {
	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: Failed to load config: %v\n", err)
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// logConfig prints the effective settings at startup.
func logConfig(cfg *config.Config, sugar *zap.SugaredLogger) {
	sugar.Infow("Detection configured",
		"attempt_limit", cfg.Detection.AttemptLimit,
		"block_duration", cfg.Detection.BlockDuration,
		"sweep_interval", cfg.Detection.SweepInterval,
		"episode_window", cfg.Detection.EpisodeWindow,
		"failure_patterns", len(cfg.Detection.FailurePatterns))
	sugar.Infow("Event source configured",
		"type", cfg.Source.Type,
		"path", cfg.Source.Path,
		"command", cfg.Source.Command,
		"on_exhausted", cfg.Source.OnExhausted)
	sugar.Infow("Access control list configured",
		"format", cfg.ACL.Format,
		"path", cfg.ACL.Path,
		"apply_command", cfg.ACL.ApplyCommand,
		"unblock_on_expiry", cfg.ACL.UnblockOnExpiry)
}
