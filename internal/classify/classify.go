// Package classify runs the inference pipeline: align, normalize, score,
// then record the decision.
package classify

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ppiankov/sessionwatch/internal/alert"
	"github.com/ppiankov/sessionwatch/internal/decisionlog"
	"github.com/ppiankov/sessionwatch/internal/detector"
	"github.com/ppiankov/sessionwatch/internal/feature"
	"github.com/ppiankov/sessionwatch/internal/metrics"
)

// Response messages.
const (
	MessageAnomaly = "Anomaly detected!"
	MessageNormal  = "Session is normal."
)

// ErrInvalidInput marks a record rejected before scoring.
var ErrInvalidInput = errors.New("invalid session record")

// Config wires a Service.
type Config struct {
	Normalizer detector.Normalizer
	Scorer     detector.Scorer
	// LogPath is the decision log. Empty disables logging.
	LogPath     string
	DriftPolicy decisionlog.DriftPolicy
	RiskInputs  feature.RiskInputPolicy
	Alerts      []alert.AlertConfig
	Logger      *zap.Logger
}

// Result is the outcome of one classification.
type Result struct {
	Anomaly   int     `json:"anomaly"`
	Message   string  `json:"message"`
	RequestID string  `json:"-"`
	RiskScore float64 `json:"-"`
	Logged    bool    `json:"-"`
}

// Service classifies session records. Safe for concurrent use.
type Service struct {
	normalizer detector.Normalizer
	scorer     detector.Scorer
	riskInputs feature.RiskInputPolicy
	log        *decisionlog.Log
	logger     *zap.Logger

	mu         sync.RWMutex
	dispatcher *alert.Dispatcher
}

// New opens the decision log (when configured) and returns a Service.
func New(cfg Config) (*Service, error) {
	if cfg.Normalizer == nil || cfg.Scorer == nil {
		return nil, fmt.Errorf("classify: normalizer and scorer are required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	riskInputs := cfg.RiskInputs
	if riskInputs == "" {
		riskInputs = feature.RiskInputsZero
	}

	s := &Service{
		normalizer: cfg.Normalizer,
		scorer:     cfg.Scorer,
		riskInputs: riskInputs,
		logger:     logger,
		dispatcher: alert.NewDispatcher(cfg.Alerts, logger),
	}

	if cfg.LogPath != "" {
		l, err := decisionlog.Open(cfg.LogPath, decisionlog.Options{
			DriftPolicy: cfg.DriftPolicy,
			OnDrift:     s.observeDrift,
			Logger:      logger,
		})
		if err != nil {
			return nil, fmt.Errorf("classify: %w", err)
		}
		s.log = l
	}
	return s, nil
}

// LogPath returns the decision log path, or "" when logging is disabled.
func (s *Service) LogPath() string {
	if s.log == nil {
		return ""
	}
	return s.log.Path()
}

// Reload swaps the alert destinations and the drift policy.
func (s *Service) Reload(alerts []alert.AlertConfig, drift decisionlog.DriftPolicy) {
	s.mu.Lock()
	s.dispatcher = alert.NewDispatcher(alerts, s.logger)
	s.mu.Unlock()
	if s.log != nil {
		s.log.SetDriftPolicy(drift)
	}
}

// Classify scores one session record and appends the decision to the log.
// A failed append is logged, counted and alerted but does not fail the
// classification.
func (s *Service) Classify(ctx context.Context, rec *feature.Record) (*Result, error) {
	start := time.Now()
	defer func() {
		metrics.PredictionDuration.Observe(time.Since(start).Seconds())
	}()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if rec == nil {
		rec = feature.NewRecord()
	}

	if s.riskInputs == feature.RiskInputsStrict {
		if err := feature.CheckRiskInputs(rec); err != nil {
			metrics.PredictionsTotal.WithLabelValues(metrics.ResultInvalid).Inc()
			return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
		}
	}

	requestID := uuid.NewString()
	vec := feature.Align(rec)

	x, err := s.normalizer.Normalize(vec)
	if err != nil {
		metrics.PredictionsTotal.WithLabelValues(metrics.ResultError).Inc()
		return nil, fmt.Errorf("classify: normalize: %w", err)
	}
	label, err := s.scorer.Score(x)
	if err != nil {
		metrics.PredictionsTotal.WithLabelValues(metrics.ResultError).Inc()
		return nil, fmt.Errorf("classify: score: %w", err)
	}

	risk, _ := vec.Get(feature.RiskScoreColumn)
	res := &Result{
		Anomaly:   label.Anomaly(),
		Message:   MessageNormal,
		RequestID: requestID,
		RiskScore: risk,
	}
	if res.Anomaly == 1 {
		res.Message = MessageAnomaly
		metrics.PredictionsTotal.WithLabelValues(metrics.ResultAnomaly).Inc()
	} else {
		metrics.PredictionsTotal.WithLabelValues(metrics.ResultNormal).Inc()
	}

	logger := s.logger.With(zap.String("request_id", requestID))
	if s.log != nil {
		err := s.log.Append(decisionlog.Record{
			Timestamp: start,
			Anomaly:   res.Anomaly,
			Fields:    rec,
		})
		if err != nil {
			metrics.LogWriteFailuresTotal.Inc()
			logger.Error("append decision", zap.String("path", s.log.Path()), zap.Error(err))
			s.dispatch(alert.AlertEvent{
				Event:     alert.EventLogWriteFailure,
				RequestID: requestID,
				SessionID: sessionID(rec),
				Message:   "decision could not be logged",
				Detail:    err.Error(),
				LogPath:   s.log.Path(),
			})
		} else {
			res.Logged = true
		}
	}

	logger.Debug("session classified",
		zap.Int("anomaly", res.Anomaly),
		zap.Float64("risk_score", risk),
		zap.Bool("logged", res.Logged))

	if res.Anomaly == 1 {
		s.dispatch(alert.AlertEvent{
			Event:     alert.EventAnomaly,
			RequestID: requestID,
			SessionID: sessionID(rec),
			RiskScore: strconv.FormatFloat(risk, 'f', -1, 64),
			Message:   MessageAnomaly,
		})
	}
	return res, nil
}

func (s *Service) observeDrift(d decisionlog.Drift, policy decisionlog.DriftPolicy) {
	metrics.SchemaDriftTotal.WithLabelValues(string(policy)).Inc()
	s.dispatch(alert.AlertEvent{
		Event:   alert.EventSchemaDrift,
		Message: fmt.Sprintf("record fields differ from log header (policy %s)", policy),
		Detail:  d.String(),
		LogPath: s.LogPath(),
	})
}

func (s *Service) dispatch(event alert.AlertEvent) {
	s.mu.RLock()
	d := s.dispatcher
	s.mu.RUnlock()
	if d != nil {
		event.Timestamp = time.Now().UTC().Format(decisionlog.TimestampFormat)
		d.Dispatch(event)
	}
}

func sessionID(rec *feature.Record) string {
	v, ok := rec.Get("session_id")
	if !ok || v == nil {
		return ""
	}
	return fmt.Sprint(v)
}
