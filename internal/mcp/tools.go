package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/mark3labs/mcp-go/mcp"
	"go.uber.org/zap"

	"github.com/dshills/gigsearch/internal/indexer"
	"github.com/dshills/gigsearch/internal/searcher"
	"github.com/dshills/gigsearch/pkg/types"
)

// MCP error codes
const (
	ErrorCodeInvalidParams       = -32602 // Invalid method parameters
	ErrorCodeInternalError       = -32603 // Internal JSON-RPC error
	ErrorCodeBootstrapInProgress = -32002 // Another bootstrap is already running
	ErrorCodeIndexUnavailable    = -32003 // No retrieval signal could answer
)

// handleSearchFreelancers handles the search_freelancers tool invocation
func (s *Server) handleSearchFreelancers(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := arguments(request)
	if err != nil {
		return nil, err
	}

	var raw [4]string
	for i, key := range []string{"category", "min_budget", "max_budget", "location"} {
		if raw[i], err = argString(args, key); err != nil {
			return nil, s.toMCPError(err)
		}
	}
	filters, err := types.ParseFilters(raw[0], raw[1], raw[2], raw[3])
	if err != nil {
		return nil, s.toMCPError(err)
	}

	query, _ := args["query"].(string)
	resp, err := s.engine.SearchDetailed(ctx, searcher.SearchRequest{
		Query:   query,
		Filters: filters,
		Limit:   getIntDefault(args, "limit", 0),
	})
	if err != nil {
		return nil, s.toMCPError(err)
	}

	results := make([]map[string]interface{}, len(resp.Results))
	for i, r := range resp.Results {
		results[i] = map[string]interface{}{
			"freelancer_id": r.FreelancerID,
			"rank":          r.Rank,
			"score":         r.Score,
			"lexical_rank":  r.LexicalRank,
			"semantic_rank": r.SemanticRank,
		}
	}

	response := map[string]interface{}{
		"freelancer_ids": resp.IDs(),
		"results":        results,
		"count":          len(resp.Results),
		"mode":           string(resp.Mode),
		"degraded":       resp.Degraded,
		"duration_ms":    resp.Duration.Milliseconds(),
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleReindexFreelancer handles the reindex_freelancer tool invocation
func (s *Server) handleReindexFreelancer(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := arguments(request)
	if err != nil {
		return nil, err
	}

	id, ok := getInt64(args, "freelancer_id")
	if !ok || id <= 0 {
		return nil, newMCPError(ErrorCodeInvalidParams, "freelancer_id must be a positive integer", map[string]interface{}{
			"param":  "freelancer_id",
			"reason": "missing or not positive",
		})
	}

	res := s.engine.OnProfileChanged(ctx, id)
	response := map[string]interface{}{
		"freelancer_id": id,
		"deleted":       res.Deleted,
		"lexical":       outcome(res.LexicalErr),
		"semantic":      outcome(res.SemanticErr),
	}
	if !res.OK() {
		s.logger.Warn("reindex incomplete", zap.Int64("freelancer_id", id), zap.Error(res.Err()))
		return mcp.NewToolResultError(formatJSON(response)), nil
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleBootstrapIndex handles the bootstrap_index tool invocation
func (s *Server) handleBootstrapIndex(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := arguments(request)
	if err != nil {
		return nil, err
	}

	report, err := s.engine.Bootstrap(ctx, getBoolDefault(args, "force", false))
	if err != nil {
		return nil, s.toMCPError(err)
	}
	return mcp.NewToolResultText(formatJSON(report)), nil
}

// handleGetHealth handles the get_health tool invocation
func (s *Server) handleGetHealth(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(formatJSON(s.engine.Health(ctx))), nil
}

// Helper functions

// toMCPError maps domain errors onto protocol error codes
func (s *Server) toMCPError(err error) error {
	var verr *types.ValidationError
	switch {
	case errors.As(err, &verr):
		return newMCPError(ErrorCodeInvalidParams, verr.Error(), map[string]interface{}{
			"param":  verr.Field,
			"reason": verr.Reason,
		})
	case errors.Is(err, indexer.ErrBootstrapInProgress):
		return newMCPError(ErrorCodeBootstrapInProgress, err.Error(), nil)
	case errors.Is(err, types.ErrIndexUnavailable):
		s.logger.Error("search unavailable", zap.Error(err))
		return newMCPError(ErrorCodeIndexUnavailable, "search indexes unavailable", map[string]interface{}{
			"error": err.Error(),
		})
	default:
		s.logger.Error("tool call failed", zap.Error(err))
		return newMCPError(ErrorCodeInternalError, "internal error", map[string]interface{}{
			"error": err.Error(),
		})
	}
}

// newMCPError creates a properly formatted MCP error
func newMCPError(code int, message string, data interface{}) error {
	// MCP errors are returned as regular errors, the framework handles encoding
	return &MCPError{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

// MCPError represents an MCP protocol error
type MCPError struct {
	Code    int
	Message string
	Data    interface{}
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

func arguments(request mcp.CallToolRequest) (map[string]interface{}, error) {
	if request.Params.Arguments == nil {
		return map[string]interface{}{}, nil
	}
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}
	return args, nil
}

func outcome(err error) string {
	if err != nil {
		return err.Error()
	}
	return "ok"
}

// formatJSON formats a value as indented JSON
func formatJSON(data interface{}) string {
	bytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(bytes)
}

// argString reads an optional scalar argument as text. JSON numbers are
// formatted back so budgets share one parser with the HTTP transport.
func argString(args map[string]interface{}, key string) (string, error) {
	switch v := args[key].(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	case int:
		return strconv.Itoa(v), nil
	default:
		return "", &types.ValidationError{Field: key, Value: fmt.Sprint(v), Reason: "must be a string or number"}
	}
}

// getBoolDefault extracts a boolean parameter with a default value
func getBoolDefault(args map[string]interface{}, key string, defaultValue bool) bool {
	if val, ok := args[key].(bool); ok {
		return val
	}
	return defaultValue
}

// getIntDefault extracts an integer parameter with a default value
func getIntDefault(args map[string]interface{}, key string, defaultValue int) int {
	if val, ok := args[key].(float64); ok {
		return int(val)
	}
	if val, ok := args[key].(int); ok {
		return val
	}
	return defaultValue
}

// getInt64 extracts a whole-number parameter
func getInt64(args map[string]interface{}, key string) (int64, bool) {
	switch v := args[key].(type) {
	case float64:
		if v != float64(int64(v)) {
			return 0, false
		}
		return int64(v), true
	case int:
		return int64(v), true
	case int64:
		return v, true
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		return n, err == nil
	}
	return 0, false
}
