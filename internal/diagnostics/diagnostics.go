// Package diagnostics serves the process's Prometheus metrics and Go
// pprof profiles over one HTTP server. Adapted from munonun-Web4's pprof
// server: the same loopback-bind caution (an operator who points
// diagnostics_addr at a public interface gets a logged warning rather
// than a silent open port) but driven by config.Config.DiagnosticsAddr,
// and serving /metrics from the engine's prometheus.Registry alongside
// /debug/pprof/.
package diagnostics

import (
	"context"
	"errors"
	"net"
	"net/http"
	_ "net/http/pprof"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Server serves /metrics and /debug/pprof/ for one process.
type Server struct {
	httpServer *http.Server
	listener   net.Listener
}

// Start binds addr and begins serving in the background. An empty addr
// disables diagnostics entirely (nil, nil is returned).
func Start(addr string, reg *prometheus.Registry, log *zap.Logger) (*Server, error) {
	if strings.TrimSpace(addr) == "" {
		return nil, nil
	}
	if !isLoopbackBind(addr) {
		log.Warn("diagnostics address is not loopback; metrics and pprof will be reachable off-host", zap.String("addr", addr))
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.Handle("/debug/pprof/", http.DefaultServeMux)

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	s := &Server{httpServer: srv, listener: ln}
	log.Info("diagnostics endpoint listening", zap.String("addr", ln.Addr().String()))
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Warn("diagnostics server exited", zap.Error(err))
		}
	}()
	return s, nil
}

// Close shuts the diagnostics server down. Safe to call on a nil Server.
func (s *Server) Close(ctx context.Context) error {
	if s == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func isLoopbackBind(addr string) bool {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	host = strings.TrimSpace(host)
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
