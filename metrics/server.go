package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type MetricsServer struct {
	srv *http.Server
}

func New(addr string, gatherer prometheus.Gatherer) (*MetricsServer, error) {
	if gatherer == nil {
		return nil, errors.New("metrics server needs a gatherer")
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	return &MetricsServer{
		srv: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}, nil
}

func (s *MetricsServer) Handler() http.Handler { return s.srv.Handler }

func (s *MetricsServer) ListenAndServe() error { return s.srv.ListenAndServe() }

func (s *MetricsServer) Shutdown(ctx context.Context) error { return s.srv.Shutdown(ctx) }
