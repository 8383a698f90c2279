// Package mcp exposes freelancer search to AI assistants over the Model
// Context Protocol (JSON-RPC 2.0 on stdio).
//
// # Tools
//
//   - search_freelancers: hybrid keyword and semantic ranking with filters
//   - reindex_freelancer: rebuild one freelancer's index entries
//   - bootstrap_index: populate both indexes from the profile store
//   - get_health: ok, degraded or unavailable, with per-component checks
//
// # Tool: search_freelancers
//
//	Request:
//	{
//	  "name": "search_freelancers",
//	  "arguments": {
//	    "query": "logo design",
//	    "category": "Graphic Designer",
//	    "min_budget": 100,
//	    "location": "mumbai",
//	    "limit": 10
//	  }
//	}
//
//	Response:
//	{
//	  "freelancer_ids": [3, 1],
//	  "results": [{"freelancer_id": 3, "rank": 1, "score": 0.0328, ...}],
//	  "count": 2,
//	  "mode": "hybrid",
//	  "degraded": false,
//	  "duration_ms": 4
//	}
//
// An empty query returns filtered profiles ordered by rating. "mode" is
// "lexical" or "semantic" when the other signal failed and "degraded" is set.
//
// # Errors
//
// Malformed parameters (unknown category, negative or non-numeric budget,
// min_budget above max_budget, negative limit) fail with -32602 before any
// index is touched. -32002 means a bootstrap is already running and -32003
// means neither index could answer.
//
// reindex_freelancer reports per-index outcomes; when one side fails the tool
// result is marked as an error but still names which side succeeded.
package mcp
