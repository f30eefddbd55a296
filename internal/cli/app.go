package cli

import (
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/ppiankov/sessionwatch/internal/classify"
	"github.com/ppiankov/sessionwatch/internal/config"
	"github.com/ppiankov/sessionwatch/internal/detector"
	"github.com/ppiankov/sessionwatch/internal/logging"
)

// app is the state shared by commands that classify or summarize.
type app struct {
	cfg    *config.Config
	hash   string
	logger *zap.Logger
	closer io.Closer
}

// loadApp reads the configuration and builds the logger.
func loadApp() (*app, error) {
	cfg, hash, err := config.LoadConfigWithHash(configPath)
	if err != nil {
		return nil, err
	}
	logger, closer, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, err
	}
	return &app{cfg: cfg, hash: hash, logger: logger, closer: closer}, nil
}

func (a *app) Close() {
	_ = a.logger.Sync()
	_ = a.closer.Close()
}

// service loads the model artifacts and opens the decision log at logPath.
// An empty logPath disables logging.
func (a *app) service(logPath string) (*classify.Service, error) {
	bundle, err := detector.LoadBundle(a.cfg.Model.ScalerPath, a.cfg.Model.ScorerPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load model: %w", err)
	}
	a.logger.Info("model loaded",
		zap.String("scaler", a.cfg.Model.ScalerPath),
		zap.String("scaler_hash", bundle.ScalerHash),
		zap.String("scorer", a.cfg.Model.ScorerPath),
		zap.String("scorer_hash", bundle.ForestHash))

	return classify.New(classify.Config{
		Normalizer:  bundle.Normalizer,
		Scorer:      bundle.Scorer,
		LogPath:     logPath,
		DriftPolicy: a.cfg.DriftPolicy(),
		RiskInputs:  a.cfg.RiskInputPolicy(),
		Alerts:      a.cfg.Alerts,
		Logger:      a.logger,
	})
}

// resolvedConfigPath returns the --config value or the default location.
func resolvedConfigPath() string {
	if configPath != "" {
		return configPath
	}
	p, err := config.DefaultPath()
	if err != nil {
		return ""
	}
	return p
}
