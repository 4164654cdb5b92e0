// Package server exposes the policy over HTTP: the policy server envelope endpoints and a
// Kubernetes mutating webhook.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
	admissionv1 "k8s.io/api/admission/v1"

	"github.com/DrSkyle/fsgroup-psp/pkg/admission"
	"github.com/DrSkyle/fsgroup-psp/pkg/config"
	"github.com/DrSkyle/fsgroup-psp/pkg/settings"
)

const (
	maxBodyBytes    = 3 << 20
	shutdownTimeout = 10 * time.Second
)

type Server struct {
	cfg       config.ServerConfig
	validator *admission.Validator
	settings  settings.Settings
	gatherer  prometheus.Gatherer
	logger    *slog.Logger
}

// Option configures a Server.
type Option func(*Server)

func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithGatherer sets the registry served on /metrics.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) {
		s.gatherer = g
	}
}

// New builds a server. st is the validated load-time configuration used by /mutate;
// /validate reads settings from each request envelope instead.
func New(cfg config.ServerConfig, v *admission.Validator, st settings.Settings, opts ...Option) *Server {
	s := &Server{
		cfg:       cfg,
		validator: v,
		settings:  st,
		gatherer:  prometheus.DefaultGatherer,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the chi router with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if s.cfg.ReadTimeout > 0 {
		r.Use(middleware.Timeout(s.cfg.ReadTimeout))
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		s.writeJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Post("/validate", s.handleValidate)
	r.Post("/validate_settings", s.handleValidateSettings)
	r.Get("/protocol_version", s.handleProtocolVersion)
	r.Post("/mutate", s.handleMutate)

	if s.cfg.Metrics {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	return r
}

// Run listens on the configured address and serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       s.cfg.ReadTimeout,
		WriteTimeout:      s.cfg.ReadTimeout + 5*time.Second,
		IdleTimeout:       120 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.Info("Policy server listening", "addr", ln.Addr().String(), "tls", s.cfg.TLS(), "rule", s.settings.String())
		var err error
		if s.cfg.TLS() {
			err = srv.ServeTLS(ln, s.cfg.TLSCert, s.cfg.TLSKey)
		} else {
			err = srv.Serve(ln)
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		s.logger.Info("Shutting down policy server")
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	body, ok := s.readBody(w, r)
	if !ok {
		return
	}
	resp, err := s.validator.Validate(r.Context(), body)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, resp)
}

func (s *Server) handleValidateSettings(w http.ResponseWriter, r *http.Request) {
	body, ok := s.readBody(w, r)
	if !ok {
		return
	}
	s.writeJSON(w, r, http.StatusOK, s.validator.ValidateSettings(body))
}

func (s *Server) handleProtocolVersion(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, r, http.StatusOK, s.validator.ProtocolVersion())
}

func (s *Server) handleMutate(w http.ResponseWriter, r *http.Request) {
	body, ok := s.readBody(w, r)
	if !ok {
		return
	}
	var review admissionv1.AdmissionReview
	if err := json.Unmarshal(body, &review); err != nil {
		s.writeError(w, r, fmt.Errorf("%w: invalid admission review: %v", admission.ErrBadRequest, err))
		return
	}
	resp, err := s.validator.Review(r.Context(), &review, s.settings)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, resp)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	if errors.Is(err, admission.ErrBadRequest) {
		status = http.StatusBadRequest
	}
	s.logger.Error("Request failed",
		"path", r.URL.Path,
		"request_id", middleware.GetReqID(r.Context()),
		"status", status,
		"error", err,
	)
	s.writeJSON(w, r, status, map[string]string{"error": err.Error()})
}

func (s *Server) readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		s.writeJSON(w, r, http.StatusBadRequest, map[string]string{"error": fmt.Sprintf("failed to read body: %v", err)})
		return nil, false
	}
	return body, true
}

func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Debug("Failed to write response",
			"path", r.URL.Path,
			"request_id", middleware.GetReqID(r.Context()),
			"status", status,
			"error", err,
		)
	}
}
