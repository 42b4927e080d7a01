// Package httpapi exposes the daemon's Prometheus metrics and health/ready
// probes, adapted from the teacher's internal/http server: same mux shape
// (/healthz, /readyz, /metrics), retargeted from Kafka-consumer-join-state
// and Postgres-ping checks to reactor/session health and an optional audit
// sink ping.
package httpapi

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// ReactorStatus reports enough of the reactor's state for a readiness
// probe without exposing any of its internals.
type ReactorStatus interface {
	EstablishedCount() int
	ConfiguredCount() int
}

// DBChecker abstracts the optional audit database's health check.
type DBChecker interface {
	Ping(ctx context.Context) error
}

type Server struct {
	srv     *http.Server
	reactor ReactorStatus
	db      DBChecker
	logger  *zap.Logger
}

// NewServer builds the server; auditPool may be nil when the audit sink is
// disabled, in which case /readyz skips the database check entirely.
func NewServer(addr string, reactor ReactorStatus, auditPool *pgxpool.Pool, logger *zap.Logger) *Server {
	s := &Server{reactor: reactor, logger: logger}
	if auditPool != nil {
		s.db = auditPool
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/readyz", s.handleReadyz)
	mux.Handle("/metrics", promhttp.Handler())

	s.srv = &http.Server{Addr: addr, Handler: mux}
	return s
}

func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return err
	}
	s.logger.Info("HTTP server listening", zap.String("addr", s.srv.Addr))
	go func() {
		if err := s.srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error("HTTP server error", zap.Error(err))
		}
	}()
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	checks := map[string]string{}
	allOK := true

	if s.reactor != nil {
		established := s.reactor.EstablishedCount()
		configured := s.reactor.ConfiguredCount()
		if configured == 0 || established > 0 {
			checks["peers"] = "ok"
		} else {
			checks["peers"] = "no_sessions_established"
			allOK = false
		}
	}

	if s.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.db.Ping(ctx); err != nil {
			checks["audit_db"] = "error"
			allOK = false
		} else {
			checks["audit_db"] = "ok"
		}
	}

	w.Header().Set("Content-Type", "application/json")
	status := "ready"
	httpStatus := http.StatusOK
	if !allOK {
		status = "not_ready"
		httpStatus = http.StatusServiceUnavailable
	}
	w.WriteHeader(httpStatus)
	json.NewEncoder(w).Encode(map[string]any{"status": status, "checks": checks})
}
