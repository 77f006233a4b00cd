// Package mcp exposes the memory service over the Model Context Protocol,
// so MCP-compatible agents can recall and store memories with the same
// retrieval pipeline the HTTP facade uses.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/pgvector/pgvector-go"

	"github.com/kaigo-labs/omoide/internal/graph"
	"github.com/kaigo-labs/omoide/internal/model"
	"github.com/kaigo-labs/omoide/internal/session"
	"github.com/kaigo-labs/omoide/internal/storage"
)

// Server wraps the MCP server around one session's memory pipeline.
type Server struct {
	mcpServer *mcpserver.MCPServer
	sess      *session.Context
	cfg       graph.Config
	db        *storage.DB
	logger    *slog.Logger
}

// New creates and configures the MCP server with all resources and tools.
func New(sess *session.Context, cfg graph.Config, db *storage.DB, version string, logger *slog.Logger) *Server {
	s := &Server{
		sess:   sess,
		cfg:    cfg,
		db:     db,
		logger: logger,
	}

	s.mcpServer = mcpserver.NewMCPServer(
		"omoide",
		version,
		mcpserver.WithResourceCapabilities(true, true),
		mcpserver.WithToolCapabilities(true),
	)

	s.registerResources()
	s.registerTools()

	return s
}

// MCPServer returns the underlying mcp-go server for transport setup.
func (s *Server) MCPServer() *mcpserver.MCPServer {
	return s.mcpServer
}

func (s *Server) registerResources() {
	// omoide://profile/{id} — an elderly user's profile.
	s.mcpServer.AddResourceTemplate(
		mcplib.NewResourceTemplate(
			"omoide://profile/{id}",
			"Elderly Profile",
			mcplib.WithTemplateDescription("Profile of an elderly user: name, dialect, and caregiver-maintained details"),
			mcplib.WithTemplateMIMEType("application/json"),
		),
		s.handleProfile,
	)
}

func (s *Server) registerTools() {
	// omoide_recall — retrieve and rerank memories from one bucket.
	s.mcpServer.AddTool(
		mcplib.NewTool("omoide_recall",
			mcplib.WithDescription(`Recall memories relevant to a query from one memory bucket.

Runs the full retrieval pipeline: hybrid dense+keyword search, then
relevance/diversity/recency reranking. Use "short-term" for recent daily
events, "long-term" for stable personal facts (family, career, finances),
and "healthcare" for medical conditions, medications, and appointments.`),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithOpenWorldHintAnnotation(false),
			mcplib.WithString("query",
				mcplib.Description("Natural language description of what to recall"),
				mcplib.Required(),
			),
			mcplib.WithString("bucket",
				mcplib.Description(`Memory bucket to search: "short-term", "long-term", or "healthcare"`),
				mcplib.Required(),
			),
			mcplib.WithNumber("limit",
				mcplib.Description("Maximum memories to return"),
				mcplib.Min(1),
				mcplib.Max(50),
				mcplib.DefaultNumber(8),
			),
		),
		s.handleRecall,
	)

	// omoide_remember — store a new short-term memory.
	s.mcpServer.AddTool(
		mcplib.NewTool("omoide_remember",
			mcplib.WithDescription(`Store something the elderly user said as a short-term memory.

Use for statements about their day, plans, feelings, or anything worth
recalling in later conversations. Long-term facts and healthcare records
are maintained by caregivers and are not written through this tool.`),
			mcplib.WithDestructiveHintAnnotation(false),
			mcplib.WithIdempotentHintAnnotation(false),
			mcplib.WithOpenWorldHintAnnotation(false),
			mcplib.WithString("content",
				mcplib.Description("The statement to remember, in the user's own words"),
				mcplib.Required(),
			),
		),
		s.handleRemember,
	)
}

func (s *Server) handleProfile(ctx context.Context, request mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
	uri := request.Params.URI

	var raw string
	if _, err := fmt.Sscanf(uri, "omoide://profile/%s", &raw); err != nil || raw == "" {
		return nil, fmt.Errorf("mcp: invalid profile URI: %s", uri)
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("mcp: invalid profile id %q", raw)
	}

	profile, err := s.db.GetProfile(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("mcp: profile: %w", err)
	}

	data, err := json.MarshalIndent(profile, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("mcp: marshal profile: %w", err)
	}

	return []mcplib.ResourceContents{
		mcplib.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

func (s *Server) handleRecall(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	query := request.GetString("query", "")
	if query == "" {
		return errorResult("query is required"), nil
	}
	bucket := model.Bucket(request.GetString("bucket", ""))
	if !bucket.Valid() {
		return errorResult(`bucket must be "short-term", "long-term", or "healthcare"`), nil
	}
	limit := request.GetInt("limit", 8)

	emb, err := s.sess.Embedder.Embed(ctx, query)
	if err != nil {
		return errorResult(fmt.Sprintf("failed to embed query: %v", err)), nil
	}

	candidates, err := s.sess.Index.Search(ctx, bucket, s.sess.ElderlyID, query, emb, s.cfg.Retrieval)
	if err != nil {
		return errorResult(fmt.Sprintf("search failed: %v", err)), nil
	}

	opts := s.cfg.Rerank
	opts.TopK = limit
	chunks := []model.FinalChunk{}
	if len(candidates) > 0 {
		chunks, err = s.sess.Reranker.Rerank(ctx, query, candidates, time.Now(), opts)
		if err != nil {
			return errorResult(fmt.Sprintf("rerank failed: %v", err)), nil
		}
	}

	resultData, _ := json.MarshalIndent(map[string]any{
		"memories": chunks,
		"total":    len(chunks),
	}, "", "  ")

	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: string(resultData)},
		},
	}, nil
}

func (s *Server) handleRemember(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	content := request.GetString("content", "")
	if content == "" {
		return errorResult("content is required"), nil
	}

	var emb *pgvector.Vector
	if v, err := s.sess.Embedder.Embed(ctx, content); err != nil {
		s.logger.Warn("mcp: embedding failed, storing without vector", "error", err)
	} else {
		emb = &v
	}

	id, createdAt, err := s.sess.Writer.InsertShortTerm(ctx, s.sess.ElderlyID, content, emb)
	if err != nil {
		return errorResult(fmt.Sprintf("failed to store memory: %v", err)), nil
	}

	resultData, _ := json.Marshal(map[string]any{
		"id":         id,
		"created_at": createdAt,
		"status":     "stored",
	})

	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: string(resultData)},
		},
	}, nil
}

func errorResult(msg string) *mcplib.CallToolResult {
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
