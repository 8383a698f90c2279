package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/dshills/gigsearch/pkg/types"
)

// searchFreelancersTool returns the tool definition for search_freelancers
func searchFreelancersTool() mcp.Tool {
	return mcp.Tool{
		Name:        "search_freelancers",
		Description: "Rank freelancers by keyword and meaning for a free-text query, narrowed by optional profile filters. An empty query browses by rating.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"query": map[string]interface{}{
					"type":        "string",
					"description": "What the client is looking for, e.g. 'logo design for a cafe'",
				},
				"category": map[string]interface{}{
					"type":        "string",
					"description": "Exact category, case-insensitive",
					"enum":        types.Categories,
				},
				"min_budget": map[string]interface{}{
					"type":        "number",
					"description": "Keep freelancers whose max_budget is at least this",
					"minimum":     0,
				},
				"max_budget": map[string]interface{}{
					"type":        "number",
					"description": "Keep freelancers whose min_budget is at most this",
					"minimum":     0,
				},
				"location": map[string]interface{}{
					"type":        "string",
					"description": "Case-insensitive substring of the freelancer location",
				},
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of results; larger values are clamped",
					"minimum":     1,
				},
			},
		},
	}
}

// reindexFreelancerTool returns the tool definition for reindex_freelancer
func reindexFreelancerTool() mcp.Tool {
	return mcp.Tool{
		Name:        "reindex_freelancer",
		Description: "Rebuild both index entries of one freelancer from the profile store. A missing profile is removed from the indexes.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"freelancer_id": map[string]interface{}{
					"type":        "integer",
					"description": "Freelancer id",
					"minimum":     1,
				},
			},
			Required: []string{"freelancer_id"},
		},
	}
}

// bootstrapIndexTool returns the tool definition for bootstrap_index
func bootstrapIndexTool() mcp.Tool {
	return mcp.Tool{
		Name:        "bootstrap_index",
		Description: "Populate the lexical and semantic indexes from every stored profile. Skipped when both are already populated unless force is set.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"force": map[string]interface{}{
					"type":        "boolean",
					"description": "Reindex every profile even when the indexes are populated",
					"default":     false,
				},
			},
		},
	}
}

// getHealthTool returns the tool definition for get_health
func getHealthTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_health",
		Description: "Report whether search runs at full hybrid quality, degraded to one signal, or is unavailable",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}
}
