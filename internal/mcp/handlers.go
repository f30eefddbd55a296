package mcp

import (
	"context"
	"errors"
	"sort"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ppiankov/sessionwatch/internal/classify"
	"github.com/ppiankov/sessionwatch/internal/feature"
	"github.com/ppiankov/sessionwatch/internal/report"
)

// ClassifyInput defines parameters for the sessionwatch_classify tool.
type ClassifyInput struct {
	Session map[string]any `json:"session" jsonschema:"session record: field name to scalar value, e.g. failed_logins, ip_reputation_score"`
}

// ClassifyOutput contains the decision.
type ClassifyOutput struct {
	Anomaly   int     `json:"anomaly"`
	Message   string  `json:"message"`
	RequestID string  `json:"request_id,omitempty"`
	RiskScore float64 `json:"risk_score"`
	Logged    bool    `json:"logged"`
	Error     string  `json:"error,omitempty"`
}

// SummaryInput defines parameters for the sessionwatch_summary tool.
type SummaryInput struct {
	Recent int `json:"recent,omitempty" jsonschema:"number of recent decisions to include (default 50)"`
}

// SummaryOutput mirrors the dashboard summary.
type SummaryOutput struct {
	Total       int                 `json:"total"`
	Anomalies   int                 `json:"anomalies"`
	Normal      int                 `json:"normal"`
	AnomalyRate float64             `json:"anomaly_rate"`
	Columns     []string            `json:"columns"`
	Recent      []map[string]string `json:"recent"`
}

func (s *Server) handleClassify(ctx context.Context, req *mcpsdk.CallToolRequest, input ClassifyInput) (*mcpsdk.CallToolResult, ClassifyOutput, error) {
	res, err := s.svc.Classify(ctx, recordFromMap(input.Session))
	if err != nil {
		if errors.Is(err, classify.ErrInvalidInput) {
			return &mcpsdk.CallToolResult{IsError: true}, ClassifyOutput{Error: err.Error()}, nil
		}
		return nil, ClassifyOutput{}, err
	}
	return nil, ClassifyOutput{
		Anomaly:   res.Anomaly,
		Message:   res.Message,
		RequestID: res.RequestID,
		RiskScore: res.RiskScore,
		Logged:    res.Logged,
	}, nil
}

func (s *Server) handleSummary(ctx context.Context, req *mcpsdk.CallToolRequest, input SummaryInput) (*mcpsdk.CallToolResult, SummaryOutput, error) {
	sum := s.agg.Summarize()
	recent := sum.Recent
	if input.Recent > 0 && len(recent) > input.Recent {
		recent = recent[len(recent)-input.Recent:]
	}
	out := SummaryOutput{
		Total:       sum.Total,
		Anomalies:   sum.Anomalies,
		Normal:      sum.Normal,
		AnomalyRate: sum.AnomalyRate,
		Columns:     sum.Columns,
		Recent:      make([]map[string]string, 0, len(recent)),
	}
	for _, row := range recent {
		out.Recent = append(out.Recent, rowMap(row))
	}
	return nil, out, nil
}

// rowMap flattens a log row for structured tool output. Cells past the end
// of a short row are empty.
func rowMap(r report.Row) map[string]string {
	m := make(map[string]string, len(r.Columns))
	for _, col := range r.Columns {
		m[col] = r.Get(col)
	}
	return m
}

// recordFromMap orders known feature columns first, in schema order, then
// the remaining fields alphabetically, so log headers are stable across
// calls even though tool arguments arrive unordered.
func recordFromMap(m map[string]any) *feature.Record {
	rec := feature.NewRecord()
	for _, col := range feature.Columns {
		if v, ok := m[col]; ok {
			rec.Set(col, v)
		}
	}
	var rest []string
	for k := range m {
		if feature.Index(k) < 0 {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	for _, k := range rest {
		rec.Set(k, m[k])
	}
	return rec
}
