package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"time"

	"apguard/config"
	"apguard/detect"
	"apguard/ingest"
	"apguard/metrics"

	"go.uber.org/zap"
)

// OpenSource opens the configured event source. fromStart only applies to
// file sources.
func OpenSource(ctx context.Context, cfg *config.Config, fromStart bool, sugar *zap.SugaredLogger) (ingest.Source, error) {
	switch cfg.Source.Type {
	case config.SourceFile:
		return ingest.NewFileTailer(cfg.Source.Path, fromStart, sugar)
	case config.SourceCommand:
		return ingest.NewCommandSource(ctx, cfg.Source.Command, sugar)
	}
	return nil, fmt.Errorf("%w: unknown source type %q", config.ErrConfigInvalid, cfg.Source.Type)
}

// superviseSource feeds the engine from the configured source until ctx is
// cancelled. When the source ends it is reopened after ReconnectDelay, or
// the end is returned under the shutdown policy.
func superviseSource(ctx context.Context, cfg *config.Config, engine *detect.Engine, sugar *zap.SugaredLogger) error {
	fromStart := cfg.Source.FromStart
	shutdownOnEnd := cfg.Source.OnExhausted == config.OnExhaustedShutdown

	for {
		err := consumeOnce(ctx, cfg, engine, fromStart, sugar)
		if ctx.Err() != nil {
			return nil
		}
		if shutdownOnEnd {
			return err
		}

		sugar.Warnw("Event source ended, reopening",
			"error", err,
			"delay", cfg.Source.ReconnectDelay)
		metrics.SourceRestarts.Inc()

		// a rotated log is a new file; nothing in it has been seen yet
		if errors.Is(err, ingest.ErrSourceExhausted) {
			fromStart = true
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(cfg.Source.ReconnectDelay):
		}
	}
}

func consumeOnce(ctx context.Context, cfg *config.Config, engine *detect.Engine, fromStart bool, sugar *zap.SugaredLogger) error {
	src, err := OpenSource(ctx, cfg, fromStart, sugar)
	if err != nil {
		return fmt.Errorf("failed to open event source: %w", err)
	}
	defer func() {
		if err := src.Close(); err != nil {
			sugar.Debugw("Error closing event source", "error", err)
		}
	}()
	return engine.Consume(ctx, src)
}
