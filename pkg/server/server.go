// Package server is the host-side sink: it exposes the registered readers as
// a JSON API and as Prometheus metrics.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/NYTimes/gziphandler"
	"github.com/levenlabs/go-lflag"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/raterudder/hanbridge/pkg/log"
	"github.com/raterudder/hanbridge/pkg/sensor"
	"github.com/raterudder/hanbridge/pkg/store"
)

// Refresher runs a poll cycle on demand. *poller.Poller implements it.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// Server serves readings for a single device.
type Server struct {
	poller   Refresher
	store    *store.Store
	host     string
	registry *prometheus.Registry

	mu      sync.RWMutex
	readers []sensor.Reader

	listenAddr string
	serverName string
	httpServer *http.Server
}

var _ sensor.Registrar = (*Server)(nil)

// New returns a server for the device at host. Extra collectors (e.g. the
// poller's) are registered next to the sensor collector.
func New(p Refresher, st *store.Store, host string, collectors ...prometheus.Collector) *Server {
	s := &Server{
		poller:     p,
		store:      st,
		host:       host,
		registry:   prometheus.NewRegistry(),
		listenAddr: ":8080",
		serverName: "hanbridge",
	}
	s.registry.MustRegister(newSensorCollector(s))
	s.registry.MustRegister(collectors...)
	return s
}

// Device is the device the server reports on. *device.Client implements it.
type Device interface {
	Host() string
}

// Configured initializes the Server and registers its flags. The device host
// is read once flags are parsed.
func Configured(p Refresher, st *store.Store, dev Device, collectors ...prometheus.Collector) *Server {
	srv := New(p, st, "", collectors...)

	// get the port from PORT when running in a container
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	listenAddr := lflag.String("http-listen", ":"+port, "HTTP server listen address")

	lflag.Do(func() {
		srv.listenAddr = *listenAddr
		srv.host = dev.Host()
	})

	return srv
}

// Register implements sensor.Registrar.
func (s *Server) Register(readers []sensor.Reader) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.readers = append([]sensor.Reader(nil), readers...)
}

func (s *Server) registered() []sensor.Reader {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.readers
}

func (s *Server) setupHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/readings", s.handleListReadings)
	mux.HandleFunc("GET /api/readings/{id}", s.handleGetReading)
	mux.HandleFunc("GET /api/device", s.handleDevice)
	mux.HandleFunc("POST /api/refresh", s.handleRefresh)
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", s.handleHealthz)
	return s.revisionMiddleware(gziphandler.GzipHandler(s.securityHeadersMiddleware(mux)))
}

// Run starts the HTTP server and blocks until the context is canceled or an error occurs.
// It also handles graceful shutdown when the context is done.
func (s *Server) Run(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:         s.listenAddr,
		Handler:      s.setupHandler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  15 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		defer close(errChan)
		log.Ctx(ctx).InfoContext(ctx, "starting server", slog.String("addr", s.listenAddr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Ctx(ctx).InfoContext(ctx, "shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return nil
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to write response", slog.Any("error", err))
		panic(http.ErrAbortHandler)
	}
}

func writeJSONError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(struct {
		Error string `json:"error"`
	}{Error: msg}); err != nil {
		slog.Warn("failed to write error response", slog.Any("error", err))
		panic(http.ErrAbortHandler)
	}
}

// handleHealthz reports 503 while the last poll cycle failed.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if !s.store.Availability().Available {
		w.WriteHeader(http.StatusServiceUnavailable)
		if _, err := w.Write([]byte("unavailable")); err != nil {
			panic(http.ErrAbortHandler)
		}
		return
	}
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("ok")); err != nil {
		panic(http.ErrAbortHandler)
	}
}

func (s *Server) revisionMiddleware(next http.Handler) http.Handler {
	if s.serverName == "" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Server", s.serverName)
		next.ServeHTTP(w, r)
	})
}
