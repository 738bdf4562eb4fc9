package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/flashbots/go-utils/httplogger"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/atomic"

	"github.com/ruteri/tee-rng-worker/interfaces"
	"github.com/ruteri/tee-rng-worker/metrics"
)

type HTTPServerConfig struct {
	ListenAddr  string
	MetricsAddr string
	EnablePprof bool
	Log         *slog.Logger

	DrainDuration            time.Duration
	GracefulShutdownDuration time.Duration
	ReadTimeout              time.Duration
	WriteTimeout             time.Duration
}

// StatusReporter provides the pipeline status served on /status.
type StatusReporter interface {
	Status() interfaces.WorkerStatus
}

type Server struct {
	cfg     *HTTPServerConfig
	isReady atomic.Bool
	log     *slog.Logger

	srv        *http.Server
	metricsSrv *metrics.MetricsServer

	signer interfaces.Signer
	status StatusReporter
}

// New builds the health server. It starts not ready; call SetReady once the
// worker is registered.
func New(cfg *HTTPServerConfig, signer interfaces.Signer, status StatusReporter, gatherer prometheus.Gatherer) (srv *Server, err error) {
	metricsSrv, err := metrics.New(cfg.MetricsAddr, gatherer)
	if err != nil {
		return nil, err
	}

	srv = &Server{
		cfg:        cfg,
		log:        cfg.Log,
		srv:        nil,
		metricsSrv: metricsSrv,
		signer:     signer,
		status:     status,
	}

	srv.srv = &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      srv.getRouter(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return srv, nil
}

func (srv *Server) getRouter() http.Handler {
	mux := chi.NewRouter()

	mux.Group(func(r chi.Router) {
		r.Use(srv.httpLogger)

		r.Get("/", srv.handleRoot)
		r.Get("/address", srv.handleAddress)
		r.Get("/status", srv.handleStatus)

		r.Get("/livez", srv.handleLivenessCheck)
		r.Get("/readyz", srv.handleReadinessCheck)
		r.Get("/drain", srv.handleDrain)
		r.Get("/undrain", srv.handleUndrain)
	})

	if srv.cfg.EnablePprof {
		srv.log.Info("pprof API enabled")
		mux.Mount("/debug", middleware.Profiler())
	}
	return mux
}

func (srv *Server) httpLogger(next http.Handler) http.Handler {
	return httplogger.LoggingMiddlewareSlog(srv.log, next)
}

func (srv *Server) Handler() http.Handler { return srv.srv.Handler }

func (srv *Server) SetReady(ready bool) {
	srv.isReady.Store(ready)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (srv *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"ready": srv.isReady.Load()})
}

func (srv *Server) handleAddress(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"address": srv.signer.SignerID()})
}

func (srv *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if srv.status == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "pipeline not started"})
		return
	}
	writeJSON(w, http.StatusOK, srv.status.Status())
}

func (srv *Server) handleLivenessCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

func (srv *Server) handleReadinessCheck(w http.ResponseWriter, r *http.Request) {
	if !srv.isReady.Load() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// handleDrain takes the worker out of rotation. The response is held for
// DrainDuration so that a preStop hook calling it blocks until load
// balancers have noticed.
func (srv *Server) handleDrain(w http.ResponseWriter, r *http.Request) {
	if !srv.isReady.Swap(false) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "already draining"})
		return
	}
	srv.log.Info("Draining", "duration", srv.cfg.DrainDuration)

	select {
	case <-time.After(srv.cfg.DrainDuration):
	case <-r.Context().Done():
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "drained"})
}

func (srv *Server) handleUndrain(w http.ResponseWriter, r *http.Request) {
	if srv.isReady.Swap(true) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "already ready"})
		return
	}
	srv.log.Info("Undrained, accepting traffic again")
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type listener interface {
	ListenAndServe() error
	Shutdown(ctx context.Context) error
}

func (srv *Server) listeners() map[string]listener {
	l := map[string]listener{"health": srv.srv}
	if srv.cfg.MetricsAddr != "" {
		l["metrics"] = srv.metricsSrv
	}
	return l
}

// RunInBackground starts the health server and, when MetricsAddr is set, the
// metrics server.
func (srv *Server) RunInBackground() {
	srv.log.Info("Starting HTTP servers", "listenAddress", srv.cfg.ListenAddr, "metricsAddress", srv.cfg.MetricsAddr)
	for name, l := range srv.listeners() {
		name, l := name, l
		go func() {
			if err := l.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				srv.log.Error("HTTP server failed", "server", name, "err", err)
			}
		}()
	}
}

func (srv *Server) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), srv.cfg.GracefulShutdownDuration)
	defer cancel()

	for name, l := range srv.listeners() {
		if err := l.Shutdown(ctx); err != nil {
			srv.log.Error("Graceful shutdown failed", "server", name, "err", err)
			continue
		}
		srv.log.Info("HTTP server stopped", "server", name)
	}
}
