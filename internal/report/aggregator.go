package report

import (
	"errors"
	"io/fs"

	"go.uber.org/zap"

	"github.com/ppiankov/sessionwatch/internal/metrics"
)

// Aggregator produces summaries of one decision log for the dashboard.
type Aggregator struct {
	path   string
	limit  int
	logger *zap.Logger
}

// NewAggregator returns an aggregator over the log at path.
func NewAggregator(path string, limit int, logger *zap.Logger) *Aggregator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Aggregator{path: path, limit: limit, logger: logger}
}

// Summarize never fails: any read or parse failure is logged and the zero
// summary returned. An absent log is normal before the first decision.
func (a *Aggregator) Summarize() Summary {
	s, err := Load(a.path, a.limit)
	if err == nil {
		return s
	}
	if errors.Is(err, fs.ErrNotExist) {
		return Empty()
	}
	metrics.SummaryFailuresTotal.Inc()
	a.logger.Warn("summarize decision log",
		zap.String("path", a.path),
		zap.Error(err))
	return Empty()
}
