// Package admin serves the container's inspection endpoints over HTTP.
package admin

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/polisai/polis-intercept/pkg/container"
)

// HandlerConfig holds dependencies for the admin handler.
type HandlerConfig struct {
	Container *container.Container
	Logger    *slog.Logger
}

type handler struct {
	container *container.Container
	logger    *slog.Logger
}

// NewHandler returns the admin routes: /healthz, /metrics, /registrations and
// /strategies. Everything but /healthz is traced with otelhttp.
func NewHandler(cfg HandlerConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	h := &handler{container: cfg.Container, logger: logger}

	mux := http.NewServeMux()
	mux.Handle("GET /metrics", cfg.Container.Metrics().Handler())
	mux.HandleFunc("GET /registrations", h.registrations)
	mux.HandleFunc("GET /strategies", h.strategies)
	traced := otelhttp.NewHandler(mux, "intercept.admin")

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/healthz" {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ok"))
			return
		}
		traced.ServeHTTP(w, r)
	})
}

func (h *handler) registrations(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, h.container.Describe())
}

type strategyInfo struct {
	Name  string `json:"name"`
	Stage string `json:"stage"`
}

func (h *handler) strategies(w http.ResponseWriter, _ *http.Request) {
	chain := h.container.Strategies()
	out := make([]strategyInfo, len(chain))
	for i, s := range chain {
		out[i] = strategyInfo{Name: s.Name, Stage: s.Stage.String()}
	}
	h.writeJSON(w, out)
}

func (h *handler) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to encode admin response", "error", err)
	}
}

// Server runs the admin handler on a listener.
type Server struct {
	server   *http.Server
	listener net.Listener
	logger   *slog.Logger
}

// Start binds addr and serves the admin handler in the background.
func Start(addr string, cfg HandlerConfig) (*Server, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	s := &Server{
		server: &http.Server{
			Handler:           NewHandler(cfg),
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
		listener: listener,
		logger:   logger,
	}

	// Log the actual resolved address (useful when addr is :0)
	logger.Info("admin server listening", "addr", listener.Addr().String())

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("admin server failed", "error", err)
		}
	}()
	return s, nil
}

// Addr returns the bound address.
func (s *Server) Addr() string { return s.listener.Addr().String() }

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
