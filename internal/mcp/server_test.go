package mcp

import (
	"context"
	"math"
	"path/filepath"
	"strings"
	"testing"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ppiankov/sessionwatch/internal/classify"
	"github.com/ppiankov/sessionwatch/internal/decisionlog"
	"github.com/ppiankov/sessionwatch/internal/detector"
	"github.com/ppiankov/sessionwatch/internal/feature"
	"github.com/ppiankov/sessionwatch/internal/report"
)

func newTestServer(t *testing.T, risk feature.RiskInputPolicy) (*Server, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "prediction_log.csv")
	svc, err := classify.New(classify.Config{
		Normalizer: detector.Identity,
		Scorer: detector.ScorerFunc(func(x []float64) (detector.Label, error) {
			if x[feature.Index("failed_logins")] > 3 {
				return detector.Anomalous, nil
			}
			return detector.Normal, nil
		}),
		LogPath:    path,
		RiskInputs: risk,
	})
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}
	return New(svc, report.NewAggregator(path, 0, nil), "test"), path
}

func TestClassifyTool(t *testing.T) {
	s, path := newTestServer(t, feature.RiskInputsZero)
	ctx := context.Background()

	result, out, err := s.handleClassify(ctx, &mcpsdk.CallToolRequest{}, ClassifyInput{
		Session: map[string]any{"session_id": "s-9", "failed_logins": 7.0, "browser_type_Edge": 1.0},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != nil && result.IsError {
		t.Fatal("expected success, got error result")
	}
	if out.Anomaly != 1 || out.Message != classify.MessageAnomaly || !out.Logged {
		t.Fatalf("unexpected output %+v", out)
	}
	if math.Abs(out.RiskScore-1.4) > 1e-9 {
		t.Fatalf("expected risk 1.4, got %f", out.RiskScore)
	}

	table, err := decisionlog.ReadTable(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if got := strings.Join(table.Header, ","); got != "timestamp,anomaly,failed_logins,browser_type_Edge,session_id" {
		t.Fatalf("unexpected header %q", got)
	}
}

func TestClassifyToolStrictMissingInputs(t *testing.T) {
	s, _ := newTestServer(t, feature.RiskInputsStrict)

	result, out, err := s.handleClassify(context.Background(), &mcpsdk.CallToolRequest{}, ClassifyInput{
		Session: map[string]any{"failed_logins": 1.0},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result == nil || !result.IsError {
		t.Fatal("expected IsError result for missing inputs")
	}
	if !strings.Contains(out.Error, "unusual_time_access") {
		t.Fatalf("expected missing field in error, got %q", out.Error)
	}
}

func TestSummaryTool(t *testing.T) {
	s, _ := newTestServer(t, feature.RiskInputsZero)
	ctx := context.Background()

	_, empty, err := s.handleSummary(ctx, &mcpsdk.CallToolRequest{}, SummaryInput{})
	if err != nil {
		t.Fatal(err)
	}
	if empty.Total != 0 || len(empty.Recent) != 0 {
		t.Fatalf("expected empty summary, got %+v", empty)
	}

	for _, logins := range []float64{9, 0, 9} {
		if _, _, err := s.handleClassify(ctx, &mcpsdk.CallToolRequest{}, ClassifyInput{
			Session: map[string]any{"failed_logins": logins},
		}); err != nil {
			t.Fatal(err)
		}
	}

	_, out, err := s.handleSummary(ctx, &mcpsdk.CallToolRequest{}, SummaryInput{Recent: 2})
	if err != nil {
		t.Fatal(err)
	}
	if out.Total != 3 || out.Anomalies != 2 || out.Normal != 1 {
		t.Fatalf("unexpected counts %+v", out)
	}
	if len(out.Recent) != 2 {
		t.Fatalf("expected 2 recent rows, got %d", len(out.Recent))
	}
	if out.Recent[0]["anomaly"] != "0" || out.Recent[1]["failed_logins"] != "9" {
		t.Fatalf("expected the last two decisions, got %v", out.Recent)
	}
}

func TestRecordFromMapOrdering(t *testing.T) {
	rec := recordFromMap(map[string]any{
		"zeta":                1,
		"session_duration":    2,
		"alpha":               3,
		"network_packet_size": 4,
	})
	got := strings.Join(rec.Keys(), ",")
	if got != "network_packet_size,session_duration,alpha,zeta" {
		t.Fatalf("unexpected order %q", got)
	}
}
