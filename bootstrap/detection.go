package bootstrap

import (
	"fmt"

	"apguard/acl"
	"apguard/config"
	"apguard/detect"
	"apguard/ingest"
	"apguard/storage"

	"go.uber.org/zap"
)

// InitSink builds the ACL sink for the configured list format. An empty
// apply command skips the reload step.
func InitSink(cfg *config.Config, sugar *zap.SugaredLogger) (*acl.Sink, error) {
	var list acl.ListStore
	switch cfg.ACL.Format {
	case config.ACLFormatUCI:
		list = acl.NewUCIList(cfg.ACL.Path)
	case config.ACLFormatDenyFile:
		list = acl.NewDenyFile(cfg.ACL.Path)
	default:
		return nil, fmt.Errorf("%w: unknown acl format %q", config.ErrConfigInvalid, cfg.ACL.Format)
	}

	var applier acl.Applier
	if cfg.ACL.ApplyCommand != "" {
		cmdApplier, err := acl.NewCommandApplier(cfg.ACL.ApplyCommand, cfg.ACL.ApplyTimeout, sugar)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", config.ErrConfigInvalid, err)
		}
		breaker, err := acl.NewBreakerApplier(cmdApplier, uint32(cfg.ACL.ApplyMaxFailures), cfg.ACL.ApplyCooldown, sugar)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", config.ErrConfigInvalid, err)
		}
		applier = breaker
	} else {
		sugar.Warn("No acl.apply_command configured; list changes take effect on the next network reload")
	}

	return acl.NewSink(list, applier, sugar), nil
}

// InitAuditStore opens the block history database, or returns nil when
// history is disabled.
func InitAuditStore(cfg *config.Config, sugar *zap.SugaredLogger) (*storage.AuditStore, error) {
	if cfg.Audit.SQLitePath == "" {
		sugar.Info("Block history disabled (audit.sqlite_path not set)")
		return nil, nil
	}
	store, err := storage.NewAuditStore(cfg.Audit.SQLitePath, sugar)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", ClassifySQLiteError(err, cfg.Audit.SQLitePath), err)
	}
	return store, nil
}

// InitEngine compiles the failure signatures and builds the detection engine.
// audit may be nil.
func InitEngine(cfg *config.Config, sink detect.Sink, audit *storage.AuditStore, sugar *zap.SugaredLogger) (*detect.Engine, error) {
	signatures, err := ingest.CompileSignatures(cfg.Detection.FailurePatterns, cfg.Detection.RegexTimeout)
	if err != nil {
		return nil, err
	}

	store, err := detect.NewStore(cfg.Detection.MaxDevices, sugar)
	if err != nil {
		return nil, err
	}

	// a nil *AuditStore must not become a non-nil interface
	var auditor detect.Auditor
	if audit != nil {
		auditor = audit
	}

	engineCfg := detect.EngineConfig{
		AttemptLimit:    uint32(cfg.Detection.AttemptLimit),
		BlockDuration:   cfg.Detection.BlockDuration,
		SweepInterval:   cfg.Detection.SweepInterval,
		EpisodeWindow:   cfg.Detection.EpisodeWindow,
		IdleTTL:         cfg.Detection.IdleTTL,
		UnblockOnExpiry: cfg.ACL.UnblockOnExpiry,
	}
	return detect.NewEngine(engineCfg, ingest.NewParser(signatures), store, sink, auditor, sugar)
}
