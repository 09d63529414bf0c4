package mcp

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/custodia-labs/docqa/internal/core/domain"
)

// AskInput is the input schema for the ask tool.
type AskInput struct {
	SessionID string `json:"session_id" jsonschema:"the session whose documents are searched"`
	Question  string `json:"question" jsonschema:"the question to answer from the documents"`
}

// AskOutput is the output schema for the ask tool.
type AskOutput struct {
	Answer  string         `json:"answer"`
	Sources []SourceOutput `json:"sources"`
}

// SourceOutput identifies a passage used to answer.
type SourceOutput struct {
	Source     string `json:"source"`
	Page       int    `json:"page"`
	ChunkIndex int    `json:"chunk_index"`
}

// IngestInput is the input schema for the ingest tool.
type IngestInput struct {
	SessionID string `json:"session_id" jsonschema:"the session to add the document to"`
	Path      string `json:"path,omitempty" jsonschema:"a local PDF file path"`
	URL       string `json:"url,omitempty" jsonschema:"an http(s) URL of a PDF, used when path is empty"`
}

// IngestOutput is the output schema for the ingest tool.
type IngestOutput struct {
	Chunks    int  `json:"chunks"`
	Recovered bool `json:"recovered,omitempty"`
}

// ResetInput is the input schema for the reset tool.
type ResetInput struct {
	SessionID string `json:"session_id" jsonschema:"the session to delete"`
}

// ResetOutput is the output schema for the reset tool.
type ResetOutput struct {
	Message string `json:"message"`
}

var errPathOrURL = errors.New("exactly one of path or url is required")

// registerTools registers all tool handlers with the MCP server.
func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "ask",
		Description: "Answer a question from the PDFs uploaded to a session",
	}, s.handleAsk)

	if s.ports.Ingest != nil {
		mcp.AddTool(s.server, &mcp.Tool{
			Name:        "ingest",
			Description: "Add a PDF from a local path or URL to a session",
		}, s.handleIngest)
	}

	if s.ports.Session != nil {
		mcp.AddTool(s.server, &mcp.Tool{
			Name:        "reset",
			Description: "Delete a session's index and uploaded files",
		}, s.handleReset)
	}
}

// handleAsk handles the ask tool invocation.
func (s *Server) handleAsk(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input AskInput,
) (*mcp.CallToolResult, AskOutput, error) {
	answer, err := s.ports.Query.Answer(ctx, input.Question, input.SessionID)
	if err != nil {
		return nil, AskOutput{}, err
	}

	output := AskOutput{
		Answer:  answer.Text,
		Sources: make([]SourceOutput, len(answer.Sources)),
	}
	for i, src := range answer.Sources {
		output.Sources[i] = SourceOutput{Source: src.Source, Page: src.Page, ChunkIndex: src.ChunkIndex}
	}
	return nil, output, nil
}

// handleIngest handles the ingest tool invocation.
func (s *Server) handleIngest(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input IngestInput,
) (*mcp.CallToolResult, IngestOutput, error) {
	if input.SessionID == "" {
		return nil, IngestOutput{}, domain.ErrMissingSessionID
	}

	var source domain.IngestSource
	switch {
	case input.Path != "" && input.URL == "":
		content, err := os.ReadFile(input.Path)
		if err != nil {
			return nil, IngestOutput{}, fmt.Errorf("reading %s: %w", input.Path, err)
		}
		source = domain.IngestSource{Filename: filepath.Base(input.Path), Content: content}
	case input.URL != "" && input.Path == "":
		source = domain.IngestSource{URL: input.URL}
	default:
		return nil, IngestOutput{}, errPathOrURL
	}

	result, err := s.ports.Ingest.Ingest(ctx, source, input.SessionID)
	if err != nil {
		return nil, IngestOutput{}, err
	}
	return nil, IngestOutput{Chunks: result.ChunkCount, Recovered: result.Recovered}, nil
}

// handleReset handles the reset tool invocation.
func (s *Server) handleReset(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input ResetInput,
) (*mcp.CallToolResult, ResetOutput, error) {
	if err := s.ports.Session.Reset(ctx, input.SessionID); err != nil {
		return nil, ResetOutput{}, err
	}
	return nil, ResetOutput{Message: fmt.Sprintf("Session %s has been reset.", input.SessionID)}, nil
}
