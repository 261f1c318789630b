package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/verascope-ai/verascope/pkg/engine"
	"github.com/verascope-ai/verascope/pkg/models"
)

// toolHandler is a function that handles a tool call.
type toolHandler func(ctx context.Context, s *Server, args json.RawMessage) ToolCallResult

// toolHandlers maps tool names to their handlers.
var toolHandlers = map[string]toolHandler{
	"verascope_calls":       handleCalls,
	"verascope_call_detail": handleCallDetail,
	"verascope_verify":      handleVerify,
	"verascope_stats":       handleStats,
}

// allTools is the list of tool definitions exposed via tools/list.
var allTools = []ToolDefinition{
	{
		Name:        "verascope_calls",
		Description: "Search archived model calls with optional filters on run, stage label, model, and date.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"run_id": map[string]any{
					"type":        "string",
					"description": "Filter by run ID (optional)",
				},
				"label": map[string]any{
					"type":        "string",
					"description": "Filter by pipeline stage label, e.g. M1_IDEATION (optional)",
				},
				"model": map[string]any{
					"type":        "string",
					"description": "Filter by model (optional)",
				},
				"since": map[string]any{
					"type":        "string",
					"description": "Start date in YYYY-MM-DD format (optional)",
				},
			},
		},
	},
	{
		Name:        "verascope_call_detail",
		Description: "Show one archived call in full: fingerprints, seed, model, and the normalized output preview.",
		InputSchema: map[string]any{
			"type":     "object",
			"required": []string{"call_id"},
			"properties": map[string]any{
				"call_id": map[string]any{
					"type":        "string",
					"description": "The call ID to inspect, e.g. M1_IDEATION_001",
				},
				"run_id": map[string]any{
					"type":        "string",
					"description": "Run ID to disambiguate when the call ID appears in several runs (optional)",
				},
			},
		},
	},
	{
		Name:        "verascope_verify",
		Description: "Re-execute an archived call with its recorded model and seed and report whether the output fingerprint still matches.",
		InputSchema: map[string]any{
			"type":     "object",
			"required": []string{"call_id"},
			"properties": map[string]any{
				"call_id": map[string]any{
					"type":        "string",
					"description": "The call ID to verify",
				},
				"run_id": map[string]any{
					"type":        "string",
					"description": "Run ID to disambiguate when the call ID appears in several runs (optional)",
				},
			},
		},
	},
	{
		Name:        "verascope_stats",
		Description: "Show archived call counts and token totals grouped by model and day.",
		InputSchema: map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		},
	},
}

func textResult(text string) ToolCallResult {
	return ToolCallResult{
		Content: []ContentBlock{{Type: "text", Text: text}},
	}
}

func errorResult(text string) ToolCallResult {
	return ToolCallResult{
		Content: []ContentBlock{{Type: "text", Text: text}},
		IsError: true,
	}
}

type callsArgs struct {
	RunID string `json:"run_id"`
	Label string `json:"label"`
	Model string `json:"model"`
	Since string `json:"since"`
}

func handleCalls(ctx context.Context, s *Server, rawArgs json.RawMessage) ToolCallResult {
	if s.archive == nil {
		return textResult("Archive is not configured.")
	}
	var args callsArgs
	if len(rawArgs) > 0 {
		_ = json.Unmarshal(rawArgs, &args)
	}

	opts := models.ArchiveQueryOpts{
		RunID: args.RunID,
		Label: args.Label,
		Model: args.Model,
		Limit: 50,
	}
	if args.Since != "" {
		t, err := time.Parse("2006-01-02", args.Since)
		if err != nil {
			return errorResult("Invalid since date (use YYYY-MM-DD): " + err.Error())
		}
		opts.Since = t
	}

	records, err := s.archive.Query(ctx, opts)
	if err != nil {
		return errorResult("Error searching archive: " + err.Error())
	}
	return textResult(formatRecords(records))
}

type callDetailArgs struct {
	CallID string `json:"call_id"`
	RunID  string `json:"run_id"`
}

func (s *Server) lookupRecord(ctx context.Context, args callDetailArgs) (*models.CallRecord, error) {
	records, err := s.archive.Query(ctx, models.ArchiveQueryOpts{
		RunID:  args.RunID,
		CallID: args.CallID,
		Limit:  1,
	})
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("no archived call with id %s", args.CallID)
	}
	return &records[0], nil
}

func handleCallDetail(ctx context.Context, s *Server, rawArgs json.RawMessage) ToolCallResult {
	if s.archive == nil {
		return textResult("Archive is not configured.")
	}
	var args callDetailArgs
	if len(rawArgs) > 0 {
		_ = json.Unmarshal(rawArgs, &args)
	}
	if args.CallID == "" {
		return errorResult("call_id is required")
	}
	rec, err := s.lookupRecord(ctx, args)
	if err != nil {
		return errorResult("Error fetching call: " + err.Error())
	}
	return textResult(formatRecordDetail(*rec))
}

func handleVerify(ctx context.Context, s *Server, rawArgs json.RawMessage) ToolCallResult {
	if s.archive == nil {
		return textResult("Archive is not configured.")
	}
	if s.client == nil {
		return textResult("Verification requires a configured provider.")
	}
	var args callDetailArgs
	if len(rawArgs) > 0 {
		_ = json.Unmarshal(rawArgs, &args)
	}
	if args.CallID == "" {
		return errorResult("call_id is required")
	}
	rec, err := s.lookupRecord(ctx, args)
	if err != nil {
		return errorResult("Error fetching call: " + err.Error())
	}

	result, err := engine.Replay(ctx, s.client, *rec, s.params.Temperature, s.params.MaxTokens)
	if err != nil {
		return errorResult("Error replaying call: " + err.Error())
	}
	return textResult(formatVerification(*result))
}

func handleStats(ctx context.Context, s *Server, _ json.RawMessage) ToolCallResult {
	if s.archive == nil {
		return textResult("Archive is not configured.")
	}
	stats, err := s.archive.Stats(ctx)
	if err != nil {
		return errorResult("Error fetching stats: " + err.Error())
	}
	return textResult(formatStats(stats))
}
