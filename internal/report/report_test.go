package report

import (
	"bytes"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/ppiankov/sessionwatch/internal/decisionlog"
	"github.com/ppiankov/sessionwatch/internal/feature"
	"github.com/ppiankov/sessionwatch/internal/metrics"
)

// writeLog appends one decision per flag and returns the log path.
func writeLog(t *testing.T, flags ...int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "predictions.csv")
	l, err := decisionlog.Open(path, decisionlog.Options{})
	if err != nil {
		t.Fatalf("open log: %v", err)
	}
	for i, f := range flags {
		rec := decisionlog.Record{
			Anomaly: f,
			Fields:  feature.NewRecord("session_id", "s-"+strconv.Itoa(i), "login_attempts", i),
		}
		if err := l.Append(rec); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}
	return path
}

func assertZero(t *testing.T, s Summary) {
	t.Helper()
	if s.Total != 0 || s.Anomalies != 0 || s.Normal != 0 || s.AnomalyRate != 0 {
		t.Fatalf("expected zero summary, got %+v", s)
	}
	if s.Recent == nil || len(s.Recent) != 0 {
		t.Fatalf("expected empty non-nil recent, got %v", s.Recent)
	}
}

func TestSummarizeMissingLog(t *testing.T) {
	a := NewAggregator(filepath.Join(t.TempDir(), "nope.csv"), 0, nil)
	assertZero(t, a.Summarize())
}

func TestSummarizeEmptyLog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "predictions.csv")
	if err := os.WriteFile(path, nil, 0o600); err != nil {
		t.Fatal(err)
	}
	assertZero(t, NewAggregator(path, 0, nil).Summarize())
}

func TestSummarizeCountsAnomalies(t *testing.T) {
	path := writeLog(t, 1, 0, 1)
	s := NewAggregator(path, 0, nil).Summarize()

	if s.Total != 3 || s.Anomalies != 2 || s.Normal != 1 {
		t.Fatalf("unexpected counts %+v", s)
	}
	if math.Abs(s.AnomalyRate-66.67) > 0.01 {
		t.Fatalf("expected rate 66.67, got %f", s.AnomalyRate)
	}
	if len(s.Recent) != 3 {
		t.Fatalf("expected 3 recent rows, got %d", len(s.Recent))
	}
}

func TestSummarizeRecentWindow(t *testing.T) {
	flags := make([]int, 60)
	path := writeLog(t, flags...)
	s := NewAggregator(path, 0, nil).Summarize()

	if s.Total != 60 {
		t.Fatalf("expected 60 rows, got %d", s.Total)
	}
	if len(s.Recent) != DefaultRecentLimit {
		t.Fatalf("expected %d recent rows, got %d", DefaultRecentLimit, len(s.Recent))
	}
	if got := s.Recent[0].Get("session_id"); got != "s-10" {
		t.Fatalf("expected oldest recent row s-10, got %s", got)
	}
	if got := s.Recent[49].Get("session_id"); got != "s-59" {
		t.Fatalf("expected newest recent row s-59, got %s", got)
	}
}

func TestSummarizeIsIdempotent(t *testing.T) {
	path := writeLog(t, 1, 0, 0, 1, 1)
	a := NewAggregator(path, 0, nil)

	first, err := json.Marshal(a.Summarize())
	if err != nil {
		t.Fatal(err)
	}
	second, err := json.Marshal(a.Summarize())
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(first, second) {
		t.Fatalf("summaries differ:\n%s\n%s", first, second)
	}
}

func TestSummarizeSeesNewAppends(t *testing.T) {
	path := writeLog(t, 0)
	a := NewAggregator(path, 0, nil)
	if s := a.Summarize(); s.Total != 1 {
		t.Fatalf("expected 1, got %d", s.Total)
	}

	l, err := decisionlog.Open(path, decisionlog.Options{})
	if err != nil {
		t.Fatal(err)
	}
	if err := l.Append(decisionlog.Record{Anomaly: 1, Fields: feature.NewRecord("session_id", "late")}); err != nil {
		t.Fatal(err)
	}
	if s := a.Summarize(); s.Total != 2 || s.Anomalies != 1 {
		t.Fatalf("expected fresh read, got %+v", s)
	}
}

func TestSummarizeMalformedLogDegrades(t *testing.T) {
	path := filepath.Join(t.TempDir(), "predictions.csv")
	data := "timestamp,anomaly\n2026-03-01T12:00:00.000000Z,1\n2026-03-01T12:00:01.000000Z,1,extra\n"
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}

	before := testutil.ToFloat64(metrics.SummaryFailuresTotal)
	assertZero(t, NewAggregator(path, 0, nil).Summarize())
	if after := testutil.ToFloat64(metrics.SummaryFailuresTotal); after != before+1 {
		t.Fatalf("expected failure counter to increase, %f -> %f", before, after)
	}

	if _, err := Load(path, 0); err == nil {
		t.Fatal("expected Load to report malformed log")
	}
}

func TestSummarizeMissingAnomalyColumnDegrades(t *testing.T) {
	path := filepath.Join(t.TempDir(), "predictions.csv")
	if err := os.WriteFile(path, []byte("timestamp,session_id\nx,y\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	assertZero(t, NewAggregator(path, 0, nil).Summarize())
}

func TestComputeTreatsNonNumericAsZero(t *testing.T) {
	table := &decisionlog.Table{
		Header: []string{"timestamp", "anomaly"},
		Rows: [][]string{
			{"t1", "1"},
			{"t2", "yes"},
			{"t3", ""},
			{"t4"},
		},
	}
	s := Compute(table, 0)
	if s.Total != 4 || s.Anomalies != 1 || s.Normal != 3 {
		t.Fatalf("unexpected counts %+v", s)
	}
	if s.AnomalyRate != 25 {
		t.Fatalf("expected rate 25, got %f", s.AnomalyRate)
	}
}

func TestComputeCustomLimit(t *testing.T) {
	table := &decisionlog.Table{Header: []string{"timestamp", "anomaly"}}
	for i := 0; i < 10; i++ {
		table.Rows = append(table.Rows, []string{strconv.Itoa(i), "0"})
	}
	s := Compute(table, 3)
	if len(s.Recent) != 3 || s.Recent[0].Get("timestamp") != "7" {
		t.Fatalf("unexpected recent window %v", s.Recent)
	}
}

func TestRowMarshalsInHeaderOrder(t *testing.T) {
	r := Row{Columns: []string{"timestamp", "anomaly", "b", "a"}, Values: []string{"t", "1", "x"}}
	data, err := json.Marshal(r)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"timestamp":"t","anomaly":"1","b":"x","a":null}`
	if string(data) != want {
		t.Fatalf("expected %s, got %s", want, data)
	}
}

func TestWriteSummaryCSV(t *testing.T) {
	var buf bytes.Buffer
	s := Summary{Total: 3, Anomalies: 2, Normal: 1, AnomalyRate: 200.0 / 3}
	if err := WriteSummaryCSV(&buf, s); err != nil {
		t.Fatalf("write: %v", err)
	}
	want := "metric,value\ntotal,3\nanomalies,2\nnormal,1\nanomaly_rate,66.67\n"
	if buf.String() != want {
		t.Fatalf("unexpected csv:\n%s", buf.String())
	}
}

func TestFormatText(t *testing.T) {
	out := FormatText(Empty())
	if !strings.Contains(out, "No decisions logged.") {
		t.Fatalf("expected empty notice, got:\n%s", out)
	}

	s, err := Load(writeLog(t, 1, 0), 0)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	out = FormatText(s)
	for _, want := range []string{"Decisions: 2", "Anomalies: 1", "Rate: 50.00%", "ANOMALY", "s-1", "Showing last 2 of 2"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestFormatTextTruncatesMultibyteSessionID(t *testing.T) {
	id := strings.Repeat("é", 50)
	s := Compute(&decisionlog.Table{
		Header: []string{"timestamp", "anomaly", "session_id"},
		Rows:   [][]string{{"t1", "1", id}},
	}, 0)

	out := FormatText(s)
	if !utf8.ValidString(out) {
		t.Fatalf("output is not valid UTF-8:\n%s", out)
	}
	if want := strings.Repeat("é", 39) + "…"; !strings.Contains(out, want) {
		t.Fatalf("expected session id cut to 40 runes:\n%s", out)
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"short", 10, "short"},
		{"exactly", 7, "exactly"},
		{"abcdefgh", 5, "abcd…"},
		{"日本語テキスト", 4, "日本語…"},
	}
	for _, tt := range tests {
		if got := truncate(tt.in, tt.n); got != tt.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
		}
	}
}
