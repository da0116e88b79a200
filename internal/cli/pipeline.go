package cli

import (
	"fmt"

	"github.com/ppiankov/conclave/internal/audit"
	"github.com/ppiankov/conclave/internal/config"
	"github.com/ppiankov/conclave/internal/driver"
	"github.com/ppiankov/conclave/internal/history"
	"github.com/ppiankov/conclave/internal/tension"
	"github.com/ppiankov/conclave/internal/tier"
	"github.com/ppiankov/conclave/internal/waiver"
)

// pipeline bundles a fully assembled deliberation driver with the resources
// it holds open. Callers must call close when done.
type pipeline struct {
	engine *config.Config
	driver *driver.Driver
	close  func()
}

// newPipeline loads the engine config and wires the full deliberation stack:
// tier map, tension protocols, waiver register directory, audit log, and
// history store. A non-empty auditPath overrides the configured location.
func newPipeline(configPath, auditPath string) (*pipeline, error) {
	engine, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	tiers, err := tier.Load(engine.TierMap)
	if err != nil {
		return nil, fmt.Errorf("load tier map: %w", err)
	}

	protocols, err := tension.LoadProtocols(engine.Protocols)
	if err != nil {
		return nil, fmt.Errorf("load protocols: %w", err)
	}

	if auditPath == "" {
		auditPath = engine.AuditLog
	}
	if auditPath == "" {
		auditPath = config.DefaultAuditPath()
	}
	auditLog, err := audit.Open(auditPath)
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}

	historyPath := engine.HistoryDB
	if historyPath == "" {
		historyPath = history.DefaultPath()
	}
	store, err := history.Open(historyPath)
	if err != nil {
		auditLog.Close()
		return nil, fmt.Errorf("open history: %w", err)
	}

	waiverDir := engine.WaiverDir
	if waiverDir == "" {
		waiverDir = waiver.DefaultDir()
	}

	pool, err := engine.BuildPool()
	if err != nil {
		auditLog.Close()
		store.Close()
		return nil, err
	}

	cfg := driver.Config{
		MaxRounds: engine.MaxRounds,
		Gate:      engine.Gate,
		Context:   engine.Context,
		WaiverDir: waiverDir,
		TierMap:   tiers,
		Protocols: protocols,
		AuditLog:  auditLog,
		History:   store,
	}
	if r := engine.BuildReviewer(); r != nil {
		cfg.Reviewer = r
	}

	d, err := driver.New(pool, cfg)
	if err != nil {
		auditLog.Close()
		store.Close()
		return nil, err
	}

	return &pipeline{
		engine: engine,
		driver: d,
		close: func() {
			_ = store.Close()
			_ = auditLog.Close()
		},
	}, nil
}
