package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/keepsake-sh/keepsake/pkg/memory"
)

var (
	recallToolName    = "memory_recall"
	recallDescription = "Recall facts from the keepsake memory layer. Given a scope identifier (e.g. a user or conversation id), returns the committed facts known for that scope in stable order. Use this to retrieve persistent knowledge from past conversations."

	ingestToolName    = "memory_ingest"
	ingestDescription = "Store a fact in the keepsake memory layer. Given a scope identifier and fact content, admits the fact under the scope's ingestion policy. Facts under the controlled policy are staged for review rather than committed immediately."
)

// RecallInput represents the input arguments for the MCP memory_recall tool.
type RecallInput struct {
	Scope string `json:"scope" jsonschema:"the scope identifier to recall committed facts for"`
}

// RecallOutput represents the structured output of a memory recall.
type RecallOutput struct {
	Facts []*memory.FactRecord `json:"facts"`
}

// IngestInput represents the input arguments for the MCP memory_ingest tool.
type IngestInput struct {
	Scope   string `json:"scope" jsonschema:"the scope identifier to store the fact under"`
	Content string `json:"content" jsonschema:"the fact content to store"`
	Policy  string `json:"policy,omitempty" jsonschema:"optional ingestion policy: opaque, controlled, or hybrid"`
}

// IngestOutput represents the structured output of a memory ingest.
type IngestOutput struct {
	Fact *memory.FactRecord `json:"fact"`
}

// handleRecall processes a memory recall request via MCP.
func (s *Server) handleRecall(ctx context.Context, _ *mcp.CallToolRequest, input RecallInput) (*mcp.CallToolResult, RecallOutput, error) {
	if input.Scope == "" {
		return toolError("scope is required"), RecallOutput{}, nil
	}

	facts, err := s.config.Engine.Recallable(ctx, input.Scope)
	if err != nil {
		return toolError(fmt.Sprintf("Memory recall failed: %v", err)), RecallOutput{}, nil
	}

	if facts == nil {
		facts = []*memory.FactRecord{}
	}

	output := RecallOutput{Facts: facts}

	jsonBytes, err := json.Marshal(output)
	if err != nil {
		return toolError(fmt.Sprintf("Failed to serialize results: %v", err)), RecallOutput{}, nil
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: string(jsonBytes)},
		},
	}, output, nil
}

// handleIngest processes a memory ingest request via MCP.
func (s *Server) handleIngest(ctx context.Context, _ *mcp.CallToolRequest, input IngestInput) (*mcp.CallToolResult, IngestOutput, error) {
	if input.Scope == "" {
		return toolError("scope is required"), IngestOutput{}, nil
	}
	if input.Content == "" {
		return toolError("content is required"), IngestOutput{}, nil
	}

	policy := s.config.DefaultPolicy
	if input.Policy != "" {
		policy = memory.Policy(input.Policy)
		if !policy.Valid() {
			return toolError(fmt.Sprintf("unknown policy: %q", input.Policy)), IngestOutput{}, nil
		}
	}

	if _, err := s.config.Scopes.ResolveOrCreate(ctx, input.Scope); err != nil {
		return toolError(fmt.Sprintf("Scope resolution failed: %v", err)), IngestOutput{}, nil
	}

	record, err := s.config.Engine.Ingest(ctx, input.Scope, input.Content, policy)
	if err != nil {
		return toolError(fmt.Sprintf("Memory ingest failed: %v", err)), IngestOutput{}, nil
	}

	output := IngestOutput{Fact: record}

	jsonBytes, err := json.Marshal(output)
	if err != nil {
		return toolError(fmt.Sprintf("Failed to serialize results: %v", err)), IngestOutput{}, nil
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: string(jsonBytes)},
		},
	}, output, nil
}

// toolError wraps a message in an error CallToolResult.
func toolError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{
			&mcp.TextContent{Text: msg},
		},
	}
}
