package mcp

import (
	"context"
	"fmt"
	"io"

	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/dshills/gigsearch/internal/indexer"
	zlog "github.com/dshills/gigsearch/internal/logger"
	"github.com/dshills/gigsearch/internal/searcher"
	"github.com/dshills/gigsearch/pkg/types"
)

const (
	// ServerName is the MCP server name
	ServerName = "gigsearch"
	// ServerVersion is the current server version
	ServerVersion = "1.0.0"
)

// SearchEngine is the part of the engine the tools call
type SearchEngine interface {
	SearchDetailed(ctx context.Context, req searcher.SearchRequest) (*searcher.SearchResponse, error)
	OnProfileChanged(ctx context.Context, id int64) indexer.Result
	Bootstrap(ctx context.Context, force bool) (*types.BootstrapReport, error)
	Health(ctx context.Context) types.Health
}

// Server wraps the MCP server with application dependencies
type Server struct {
	mcp    *server.MCPServer
	engine SearchEngine
	logger *zap.Logger
}

// NewServer creates a new MCP server instance
func NewServer(eng SearchEngine, logger *zap.Logger) (*Server, error) {
	if eng == nil {
		return nil, fmt.Errorf("search engine is required")
	}

	mcpServer := server.NewMCPServer(
		ServerName,
		ServerVersion,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	)

	s := &Server{
		mcp:    mcpServer,
		engine: eng,
		logger: zlog.OrNop(logger).Named("mcp"),
	}

	if err := s.registerTools(); err != nil {
		return nil, fmt.Errorf("failed to register tools: %w", err)
	}

	return s, nil
}

// Serve speaks MCP over in/out until ctx is cancelled or in is closed
func (s *Server) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	s.logger.Info("mcp server listening on stdio")
	return server.NewStdioServer(s.mcp).Listen(ctx, in, out)
}

// registerTools registers all MCP tools
func (s *Server) registerTools() error {
	s.mcp.AddTool(searchFreelancersTool(), s.handleSearchFreelancers)
	s.mcp.AddTool(reindexFreelancerTool(), s.handleReindexFreelancer)
	s.mcp.AddTool(bootstrapIndexTool(), s.handleBootstrapIndex)
	s.mcp.AddTool(getHealthTool(), s.handleGetHealth)
	return nil
}
