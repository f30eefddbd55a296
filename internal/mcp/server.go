// Package mcp exposes the classifier as MCP tools over stdio.
package mcp

import (
	"context"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ppiankov/sessionwatch/internal/classify"
	"github.com/ppiankov/sessionwatch/internal/report"
)

// Server wraps the MCP SDK server around a classification service.
type Server struct {
	mcpServer *mcpsdk.Server
	svc       *classify.Service
	agg       *report.Aggregator
}

// New creates an MCP server. Decisions made through it are logged like
// HTTP requests; summaries read the same log.
func New(svc *classify.Service, agg *report.Aggregator, version string) *Server {
	s := &Server{svc: svc, agg: agg}
	s.mcpServer = mcpsdk.NewServer(
		&mcpsdk.Implementation{
			Name:    "sessionwatch",
			Version: version,
		},
		nil,
	)
	s.registerTools()
	return s
}

// Run starts the MCP server on stdio transport. Blocks until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	return s.mcpServer.Run(ctx, &mcpsdk.StdioTransport{})
}

func (s *Server) registerTools() {
	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "sessionwatch_classify",
		Description: "Classify one session telemetry record as anomalous or normal. The decision is appended to the prediction log.",
	}, s.handleClassify)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "sessionwatch_summary",
		Description: "Summarize the prediction log: totals, anomaly rate and the most recent decisions.",
	}, s.handleSummary)
}
