// Package mcpserver exposes the report question answering pipeline as MCP tools
// over stdio.
package mcpserver

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kirillkom/autoreport-rag/internal/adapters/cli"
	"github.com/kirillkom/autoreport-rag/internal/core/domain"
	"github.com/kirillkom/autoreport-rag/internal/core/ports"
	"github.com/kirillkom/autoreport-rag/internal/core/usecase"
)

const (
	serverName    = "autoreport-rag"
	serverVersion = "1.0.0"
)

type Server struct {
	queries  ports.QueryService
	stats    ports.StatsReader
	sessions *usecase.SessionStore
	logger   *slog.Logger
	srv      *server.MCPServer
}

func NewServer(queries ports.QueryService, stats ports.StatsReader, sessions *usecase.SessionStore, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		queries:  queries,
		stats:    stats,
		sessions: sessions,
		logger:   logger,
		srv:      server.NewMCPServer(serverName, serverVersion, server.WithToolCapabilities(false)),
	}

	s.srv.AddTool(mcp.NewTool("ask_reports",
		mcp.WithDescription("Answer a question about the indexed automotive annual reports, with cited sources. "+
			"Pass the same session_id to ask follow-up questions."),
		mcp.WithString("question", mcp.Required(), mcp.Description("Natural language question")),
		mcp.WithString("session_id", mcp.Description("Conversation id for follow-up questions")),
	), s.askReports)

	s.srv.AddTool(mcp.NewTool("report_stats",
		mcp.WithDescription("Show how many reports and passages are indexed, by company and year."),
	), s.reportStats)

	return s
}

// ServeStdio blocks until stdin closes.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.srv)
}

type askResult struct {
	SessionID    string `json:"session_id"`
	Answer       string `json:"answer"`
	Insufficient bool   `json:"insufficient"`
	Sources      string `json:"sources"`
}

func (s *Server) askReports(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	question, err := request.RequireString("question")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	session := s.sessions.GetOrCreate(request.GetString("session_id", ""))

	answer, err := s.queries.Ask(ctx, session, question)
	if err != nil {
		s.logger.Warn("mcp_ask_failed", "session_id", session.ID(), "error", err)
		if domain.IsKind(err, domain.ErrUnauthorized) {
			s.sessions.Delete(session.ID())
		}
		return mcp.NewToolResultError(cli.UserMessage(err)), nil
	}

	payload, err := json.Marshal(askResult{
		SessionID:    session.ID(),
		Answer:       answer.Text,
		Insufficient: answer.Insufficient,
		Sources:      cli.FormatSources(answer.Citations),
	})
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(payload)), nil
}

func (s *Server) reportStats(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	stats, err := s.stats.Stats(ctx)
	if err != nil {
		return mcp.NewToolResultError(cli.UserMessage(err)), nil
	}
	return mcp.NewToolResultText(cli.FormatStats(stats)), nil
}
