// Package mcp exposes the deliberation engine over the Model Context
// Protocol: gate dry-runs, full deliberations, and waiver inspection as
// tools on stdio transport.
package mcp

import (
	"context"
	"fmt"
	"sync"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ppiankov/conclave/internal/audit"
	"github.com/ppiankov/conclave/internal/config"
	"github.com/ppiankov/conclave/internal/driver"
	"github.com/ppiankov/conclave/internal/history"
	"github.com/ppiankov/conclave/internal/model"
	"github.com/ppiankov/conclave/internal/tension"
	"github.com/ppiankov/conclave/internal/tier"
	"github.com/ppiankov/conclave/internal/waiver"
)

// Config holds MCP server configuration.
type Config struct {
	ConfigPath   string
	AuditLogPath string
}

// Server wraps the MCP SDK server around the deliberation engine.
type Server struct {
	mcpServer *mcpsdk.Server
	engine    *config.Config
	tiers     *tier.Map
	protocols []tension.Protocol
	auditLog  *audit.Log
	store     *history.Store
	waiverDir string
	mu        sync.Mutex
}

// New creates an MCP server with the engine configuration loaded.
func New(cfg Config) (*Server, error) {
	engine, err := config.Load(cfg.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("load engine config: %w", err)
	}

	tiers, err := tier.Load(engine.TierMap)
	if err != nil {
		return nil, fmt.Errorf("load tier map: %w", err)
	}

	protocols, err := tension.LoadProtocols(engine.Protocols)
	if err != nil {
		return nil, fmt.Errorf("load protocols: %w", err)
	}

	var auditLog *audit.Log
	if cfg.AuditLogPath != "" {
		auditLog, err = audit.Open(cfg.AuditLogPath)
		if err != nil {
			return nil, fmt.Errorf("open audit log: %w", err)
		}
	}

	var store *history.Store
	if engine.HistoryDB != "" {
		store, err = history.Open(engine.HistoryDB)
		if err != nil {
			return nil, fmt.Errorf("open history: %w", err)
		}
	}

	waiverDir := engine.WaiverDir
	if waiverDir == "" {
		waiverDir = waiver.DefaultDir()
	}

	s := &Server{
		engine:    engine,
		tiers:     tiers,
		protocols: protocols,
		auditLog:  auditLog,
		store:     store,
		waiverDir: waiverDir,
	}

	s.mcpServer = mcpsdk.NewServer(
		&mcpsdk.Implementation{
			Name:    "conclave",
			Version: "0.1.0",
		},
		nil,
	)

	s.registerTools()
	return s, nil
}

// Run starts the MCP server on stdio transport. Blocks until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	return s.mcpServer.Run(ctx, &mcpsdk.StdioTransport{})
}

// Close releases the audit log and history store if configured.
func (s *Server) Close() error {
	if s.store != nil {
		_ = s.store.Close()
	}
	if s.auditLog != nil {
		return s.auditLog.Close()
	}
	return nil
}

// newDriver assembles a fresh deliberation pipeline for one request. A
// non-nil context override replaces the configured context.
func (s *Server) newDriver(override *model.Context) (*driver.Driver, error) {
	pool, err := s.engine.BuildPool()
	if err != nil {
		return nil, err
	}
	dctx := s.engine.Context
	if override != nil {
		dctx = *override
	}
	cfg := driver.Config{
		MaxRounds: s.engine.MaxRounds,
		Gate:      s.engine.Gate,
		Context:   dctx,
		WaiverDir: s.waiverDir,
		TierMap:   s.tiers,
		Protocols: s.protocols,
		AuditLog:  s.auditLog,
		History:   s.store,
	}
	if r := s.engine.BuildReviewer(); r != nil {
		cfg.Reviewer = r
	}
	return driver.New(pool, cfg)
}

// registerTools adds all conclave tools to the MCP server.
func (s *Server) registerTools() {
	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "conclave_gate_check",
		Description: "Run the tiered convergence gate over a set of evaluations without deliberating. Returns the gate decision and which waivers applied.",
	}, s.handleGateCheck)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "conclave_deliberate",
		Description: "Deliberate a proposal through the full bounded multi-round pipeline. Returns the final decision, convergence status, and any conditionality verdict.",
	}, s.handleDeliberate)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "conclave_waiver_list",
		Description: "List waiver records, optionally filtered by status (active/expired/superseded/revoked).",
	}, s.handleWaiverList)
}
