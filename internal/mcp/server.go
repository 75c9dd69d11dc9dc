// Package mcp exposes the scheduler to coding agents over the Model
// Context Protocol.
//
// The tools call the same engine operations as the CLI; an agent
// driving kittyd over MCP and an operator driving it from a shell see
// identical semantics. The server speaks stdio, which is how agent
// frontends spawn it.
package mcp

import (
	"context"
	"errors"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/bruj0/spec-kitty-sub000/internal/engine"
	"github.com/bruj0/spec-kitty-sub000/pkg/merge"
	"github.com/bruj0/spec-kitty-sub000/pkg/workspace"
	"github.com/bruj0/spec-kitty-sub000/pkg/workunit"
)

// Engine is the scheduler surface the tools call.
type Engine interface {
	Start(ctx context.Context, featureSlug, unitID, base, actor string) (*engine.StartResult, error)
	Advance(ctx context.Context, featureSlug, unitID string, to workunit.Lane, actor, note string) (*workunit.WorkUnit, error)
	Status(ctx context.Context, featureSlug string) (*engine.FeatureStatus, error)
	MergeDryRun(ctx context.Context, featureSlug string) (*merge.DryRunReport, error)
	Merge(ctx context.Context, featureSlug string, force bool) (*merge.Session, error)
	Workspaces(ctx context.Context, featureSlug string) ([]workspace.Workspace, error)
	SweepLocks(ctx context.Context) ([]string, error)
}

// Config configures the MCP server.
type Config struct {
	// Name is the server implementation name (default "kittyd").
	Name string

	// Version is the server version (default "dev").
	Version string

	// DefaultActor names transitions when a tool call carries no
	// actor (default "mcp-agent").
	DefaultActor string

	Logger *zap.Logger
}

// Server serves the scheduler tools over MCP.
type Server struct {
	mcp          *mcp.Server
	engine       Engine
	metrics      *Metrics
	defaultActor string
	logger       *zap.Logger
}

// NewServer creates an MCP server over the given engine.
func NewServer(cfg *Config, eng Engine) (*Server, error) {
	if eng == nil {
		return nil, errors.New("engine is required")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.Name == "" {
		cfg.Name = "kittyd"
	}
	if cfg.Version == "" {
		cfg.Version = "dev"
	}
	if cfg.DefaultActor == "" {
		cfg.DefaultActor = "mcp-agent"
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	mcpServer := mcp.NewServer(
		&mcp.Implementation{
			Name:    cfg.Name,
			Version: cfg.Version,
		},
		nil,
	)

	s := &Server{
		mcp:          mcpServer,
		engine:       eng,
		metrics:      NewMetrics(cfg.Logger),
		defaultActor: cfg.DefaultActor,
		logger:       cfg.Logger,
	}
	s.registerTools()
	return s, nil
}

// Run serves on the stdio transport until the context ends.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("starting MCP server on stdio transport")
	if err := s.mcp.Run(ctx, &mcp.StdioTransport{}); err != nil {
		return fmt.Errorf("server run failed: %w", err)
	}
	return nil
}
