// Package server exposes the classifier over HTTP and reports liveness
// over the standard gRPC health service.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/ppiankov/sessionwatch/internal/classify"
	"github.com/ppiankov/sessionwatch/internal/config"
	"github.com/ppiankov/sessionwatch/internal/report"
)

// HealthService is the service name reported alongside the overall status.
const HealthService = "sessionwatch.v1.Classifier"

const (
	maxBodyBytes    = 1 << 20
	shutdownTimeout = 5 * time.Second
)

// Config holds server configuration.
type Config struct {
	Addr        string
	GRPCAddr    string // empty disables the health listener
	StaticDir   string
	SummaryPath string
	RecentLimit int
	// ConfigPath is re-read by ReloadConfig.
	ConfigPath string
}

// Server serves classification, reports and health.
type Server struct {
	cfg    Config
	svc    *classify.Service
	agg    *report.Aggregator
	logger *zap.Logger

	router *mux.Router
	srv    *http.Server
	grpc   *grpc.Server
	health *health.Server

	mu         sync.RWMutex
	httpAddr   string
	grpcAddr   string
	configHash string
}

// New builds a server around a ready classification service.
func New(cfg Config, svc *classify.Service, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		cfg:    cfg,
		svc:    svc,
		agg:    report.NewAggregator(svc.LogPath(), cfg.RecentLimit, logger),
		logger: logger,
		grpc:   grpc.NewServer(),
		health: health.NewServer(),
	}

	healthpb.RegisterHealthServer(s.grpc, s.health)
	s.router = s.routes()
	s.srv = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the HTTP handler. For testing.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.logRequests)

	r.HandleFunc("/predict", s.handlePredict).Methods(http.MethodPost)
	r.HandleFunc("/report", s.handleReport).Methods(http.MethodGet)
	r.HandleFunc("/download/log", s.handleDownloadLog).Methods(http.MethodGet)
	r.HandleFunc("/download/summary", s.handleDownloadSummary).Methods(http.MethodGet)
	r.HandleFunc("/dashboard", s.handleDashboard).Methods(http.MethodGet)
	r.HandleFunc("/api/summary", s.handleSummary).Methods(http.MethodGet)
	r.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	if s.cfg.StaticDir != "" {
		r.PathPrefix("/static/").Handler(
			http.StripPrefix("/static/", http.FileServer(http.Dir(s.cfg.StaticDir))))
	}
	return r
}

// Start listens on the HTTP and gRPC addresses and serves until ctx is
// cancelled. Health flips to NOT_SERVING before the listeners drain.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.Addr, err)
	}

	var grpcLn net.Listener
	if s.cfg.GRPCAddr != "" {
		grpcLn, err = net.Listen("tcp", s.cfg.GRPCAddr)
		if err != nil {
			ln.Close()
			return fmt.Errorf("failed to listen on %s: %w", s.cfg.GRPCAddr, err)
		}
	}

	return s.serve(ctx, ln, grpcLn)
}

// serve runs both servers on bound listeners. A failure in either one
// shuts the other down before the error is returned.
func (s *Server) serve(ctx context.Context, ln, grpcLn net.Listener) error {
	s.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	s.health.SetServingStatus(HealthService, healthpb.HealthCheckResponse_SERVING)

	s.mu.Lock()
	s.httpAddr = ln.Addr().String()
	if grpcLn != nil {
		s.grpcAddr = grpcLn.Addr().String()
	}
	s.mu.Unlock()

	errCh := make(chan error, 2)
	if grpcLn != nil {
		go func() {
			if err := s.grpc.Serve(grpcLn); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				errCh <- fmt.Errorf("grpc health: %w", err)
			}
		}()
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		select {
		case <-ctx.Done():
		case <-stop:
		}
		s.health.Shutdown()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("http shutdown", zap.Error(err))
		}
		s.grpc.GracefulStop()
	}()

	s.logger.Info("serving",
		zap.String("http", s.Addr()),
		zap.String("grpc", s.GRPCAddr()),
		zap.String("log_path", s.svc.LogPath()))

	httpDone := make(chan struct{})
	go func() {
		defer close(httpDone)
		err := s.srv.Serve(ln)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	if err := <-errCh; err != nil {
		s.logger.Error("server failed, shutting down", zap.Error(err))
		close(stop)
		<-done
		<-httpDone
		return err
	}
	<-done
	return nil
}

// Addr returns the bound HTTP address. Only valid after Start is called.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.httpAddr
}

// GRPCAddr returns the bound health address, or "" when disabled.
func (s *Server) GRPCAddr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.grpcAddr
}

// ConfigHash returns the hash of the last applied configuration file.
func (s *Server) ConfigHash() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.configHash
}

// SetConfigHash records the hash of the configuration loaded at startup.
func (s *Server) SetConfigHash(hash string) {
	s.mu.Lock()
	s.configHash = hash
	s.mu.Unlock()
}

// ReloadConfig re-reads the config file and applies the sections that can
// change at runtime: alerts and log.schema_drift. Listener addresses, model
// artifacts and the log path keep their startup values.
func (s *Server) ReloadConfig() error {
	cfg, hash, err := config.LoadConfigWithHash(s.cfg.ConfigPath)
	if err != nil {
		return err
	}
	s.svc.Reload(cfg.Alerts, cfg.DriftPolicy())
	s.SetConfigHash(hash)
	s.logger.Info("configuration reloaded",
		zap.String("config_hash", hash),
		zap.Int("alerts", len(cfg.Alerts)),
		zap.String("schema_drift", string(cfg.DriftPolicy())))
	return nil
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("duration", time.Since(start)))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}
