package classify

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ppiankov/sessionwatch/internal/decisionlog"
	"github.com/ppiankov/sessionwatch/internal/detector"
	"github.com/ppiankov/sessionwatch/internal/feature"
	"github.com/ppiankov/sessionwatch/internal/metrics"
)

// riskyScorer flags any vector whose risk_score slot exceeds 1.5.
var riskyScorer = detector.ScorerFunc(func(x []float64) (detector.Label, error) {
	if x[feature.Index(feature.RiskScoreColumn)] > 1.5 {
		return detector.Anomalous, nil
	}
	return detector.Normal, nil
})

func newTestService(t *testing.T, cfg Config) *Service {
	t.Helper()
	if cfg.Normalizer == nil {
		cfg.Normalizer = detector.Identity
	}
	if cfg.Scorer == nil {
		cfg.Scorer = riskyScorer
	}
	s, err := New(cfg)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return s
}

func parse(t *testing.T, body string) *feature.Record {
	t.Helper()
	rec, err := feature.ParseRecord([]byte(body))
	if err != nil {
		t.Fatalf("parse %s: %v", body, err)
	}
	return rec
}

func TestClassifyAnomalyEndToEnd(t *testing.T) {
	path := filepath.Join(t.TempDir(), "predictions.csv")
	s := newTestService(t, Config{LogPath: path})

	rec := parse(t, `{"ip_reputation_score":0.9,"failed_logins":5,"unusual_time_access":1,"protocol_type_TCP":1}`)
	res, err := s.Classify(context.Background(), rec)
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if res.Anomaly != 1 || res.Message != MessageAnomaly {
		t.Fatalf("expected anomaly, got %+v", res)
	}
	if !res.Logged || res.RequestID == "" {
		t.Fatalf("expected logged decision with request id, got %+v", res)
	}

	table, err := decisionlog.ReadTable(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	want := "timestamp,anomaly,ip_reputation_score,failed_logins,unusual_time_access,protocol_type_TCP"
	if got := strings.Join(table.Header, ","); got != want {
		t.Fatalf("header = %q, want %q", got, want)
	}
	if table.Len() != 1 {
		t.Fatalf("expected exactly one row, got %d", table.Len())
	}
	if got := strings.Join(table.Rows[0][1:], ","); got != "1,0.9,5,1,1" {
		t.Fatalf("row = %q", got)
	}
}

func TestClassifyNormal(t *testing.T) {
	s := newTestService(t, Config{LogPath: filepath.Join(t.TempDir(), "predictions.csv")})

	res, err := s.Classify(context.Background(), parse(t, `{"ip_reputation_score":0.1}`))
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if res.Anomaly != 0 || res.Message != MessageNormal {
		t.Fatalf("expected normal, got %+v", res)
	}
	if res.RiskScore != 0.05 {
		t.Fatalf("expected risk 0.05, got %f", res.RiskScore)
	}
}

func TestClassifyEmptyRecordZeroFills(t *testing.T) {
	var seen []float64
	spy := detector.ScorerFunc(func(x []float64) (detector.Label, error) {
		seen = x
		return detector.Normal, nil
	})
	s := newTestService(t, Config{Scorer: spy})

	if _, err := s.Classify(context.Background(), parse(t, `{}`)); err != nil {
		t.Fatalf("classify: %v", err)
	}
	if len(seen) != feature.NumFeatures {
		t.Fatalf("expected %d features, got %d", feature.NumFeatures, len(seen))
	}
	for i, v := range seen {
		if v != 0 {
			t.Fatalf("slot %d: expected 0, got %f", i, v)
		}
	}
}

func TestClassifyStrictRejectsMissingRiskInputs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "predictions.csv")
	s := newTestService(t, Config{LogPath: path, RiskInputs: feature.RiskInputsStrict})

	_, err := s.Classify(context.Background(), parse(t, `{"ip_reputation_score":1}`))
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	var missing *feature.MissingInputsError
	if !errors.As(err, &missing) || len(missing.Fields) != 2 {
		t.Fatalf("expected two missing fields, got %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatal("rejected record must not be logged")
	}
}

func TestClassifyScorerErrorReturned(t *testing.T) {
	broken := detector.ScorerFunc(func([]float64) (detector.Label, error) {
		return 0, errors.New("model unavailable")
	})
	s := newTestService(t, Config{Scorer: broken})
	if _, err := s.Classify(context.Background(), parse(t, `{}`)); err == nil {
		t.Fatal("expected scorer error")
	}
}

func TestClassifyLogFailureIsNotReturned(t *testing.T) {
	// A directory where the log file should be makes every append fail.
	path := filepath.Join(t.TempDir(), "predictions.csv")
	if err := os.MkdirAll(path, 0o750); err != nil {
		t.Fatal(err)
	}

	core, logs := observer.New(zapcore.ErrorLevel)
	s := newTestService(t, Config{LogPath: path, Logger: zap.New(core)})

	before := testutil.ToFloat64(metrics.LogWriteFailuresTotal)
	res, err := s.Classify(context.Background(), parse(t, `{"failed_logins":50}`))
	if err != nil {
		t.Fatalf("log failure must not fail classification: %v", err)
	}
	if res.Anomaly != 1 || res.Logged {
		t.Fatalf("unexpected result %+v", res)
	}
	if after := testutil.ToFloat64(metrics.LogWriteFailuresTotal); after != before+1 {
		t.Fatalf("expected failure counter to increase, %f -> %f", before, after)
	}
	if logs.FilterMessage("append decision").Len() != 1 {
		t.Fatalf("expected one error log entry, got %v", logs.All())
	}
}

func TestClassifyDriftRejectIsSwallowed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "predictions.csv")
	s := newTestService(t, Config{LogPath: path, DriftPolicy: decisionlog.DriftReject})

	before := testutil.ToFloat64(metrics.SchemaDriftTotal.WithLabelValues(string(decisionlog.DriftReject)))
	if _, err := s.Classify(context.Background(), parse(t, `{"a":1}`)); err != nil {
		t.Fatal(err)
	}
	res, err := s.Classify(context.Background(), parse(t, `{"b":1}`))
	if err != nil {
		t.Fatalf("drift must not fail classification: %v", err)
	}
	if res.Logged {
		t.Fatal("rejected drift must not be logged")
	}
	after := testutil.ToFloat64(metrics.SchemaDriftTotal.WithLabelValues(string(decisionlog.DriftReject)))
	if after != before+1 {
		t.Fatalf("expected drift counter to increase, %f -> %f", before, after)
	}

	// Reload to tolerate: the same record is now written aligned by name.
	s.Reload(nil, decisionlog.DriftTolerate)
	res, err = s.Classify(context.Background(), parse(t, `{"b":1}`))
	if err != nil || !res.Logged {
		t.Fatalf("expected tolerated append, got %+v %v", res, err)
	}
}

func TestClassifyWithoutLog(t *testing.T) {
	s := newTestService(t, Config{})
	if s.LogPath() != "" {
		t.Fatalf("expected no log, got %s", s.LogPath())
	}
	res, err := s.Classify(context.Background(), parse(t, `{"failed_logins":1}`))
	if err != nil {
		t.Fatal(err)
	}
	if res.Logged {
		t.Fatal("expected unlogged result")
	}
}

func TestClassifyCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := newTestService(t, Config{}).Classify(ctx, parse(t, `{}`)); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestNewRequiresModel(t *testing.T) {
	if _, err := New(Config{Scorer: riskyScorer}); err == nil {
		t.Fatal("expected error without normalizer")
	}
}
