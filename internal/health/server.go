// Package health exposes a lightweight HTTP health endpoint for container probes.
package health

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"pix_telegram_bot/internal/logging"
)

const (
	checkTimeout       = 2 * time.Second
	readHeaderTimeout  = 2 * time.Second
	healthListenPrefix = ":"
)

// Checker is the view of the Telegram client the endpoint reports on.
type Checker interface {
	// Ping fails when long polling is not active.
	Ping(ctx context.Context) error
	// InFlight is the number of command handlers still running.
	InFlight() int
	// LastUpdateAt is zero until the first update arrives.
	LastUpdateAt() time.Time
}

// Server hosts the health endpoint and owns the underlying HTTP server.
type Server struct {
	server   *http.Server
	logger   *logrus.Entry
	telegram Checker
	now      func() time.Time
}

type response struct {
	Status       string `json:"status"`
	Telegram     string `json:"telegram"`
	InFlight     int    `json:"in_flight_handlers"`
	LastUpdateAt string `json:"last_update_at,omitempty"`
	IdleSeconds  *int64 `json:"idle_seconds,omitempty"`
}

// NewServer constructs a health server that exposes GET /healthz on the provided port.
func NewServer(port int, telegram Checker, logger *logrus.Entry) *Server {
	if logger == nil {
		logger = logging.Logger()
	}

	srv := &Server{
		logger:   logger,
		telegram: telegram,
		now:      time.Now,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", srv.handleHealth)

	srv.server = &http.Server{
		Addr:              fmt.Sprintf("%s%d", healthListenPrefix, port),
		Handler:           mux,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	return srv
}

// ListenAndServe starts the health server and blocks until shutdown.
func (s *Server) ListenAndServe() error {
	s.logger.WithFields(logging.Fields{
		"event": "health_listen",
		"addr":  s.server.Addr,
	}).Info("starting health server")

	if err := s.server.ListenAndServe(); err != nil {
		if errors.Is(err, http.ErrServerClosed) {
			s.logger.WithField("event", "health_stopped").Info("health server stopped")
			return nil
		}

		return fmt.Errorf("health server listen: %w", err)
	}

	s.logger.WithField("event", "health_stopped").Info("health server stopped")
	return nil
}

// Shutdown gracefully stops the health server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s == nil || s.server == nil {
		return nil
	}

	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}

	resp := s.telegramState(r.Context())

	w.Header().Set("Content-Type", "application/json")
	if resp.Status != "ok" {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.WithField("event", "health_write_error").WithError(err).Error("failed to encode health response")
	}
}

func (s *Server) telegramState(ctx context.Context) response {
	if s.telegram == nil {
		s.logger.WithField("event", "health_telegram_missing").Warn("telegram checker is not configured for health endpoint")
		return response{Status: "degraded", Telegram: "unconfigured"}
	}

	resp := response{
		Status:   "ok",
		Telegram: "polling",
		InFlight: s.telegram.InFlight(),
	}

	if last := s.telegram.LastUpdateAt(); !last.IsZero() {
		idle := int64(s.now().Sub(last) / time.Second)
		if idle < 0 {
			idle = 0
		}
		resp.LastUpdateAt = last.UTC().Format(time.RFC3339)
		resp.IdleSeconds = &idle
	}

	pingCtx, cancel := context.WithTimeout(ctx, checkTimeout)
	err := s.telegram.Ping(pingCtx)
	cancel()

	if err != nil {
		resp.Status = "degraded"
		resp.Telegram = "stopped"
		if resp.InFlight > 0 {
			resp.Telegram = "draining"
		}
		s.logger.WithFields(logging.Fields{
			"event":     "health_telegram_error",
			"in_flight": resp.InFlight,
		}).WithError(err).Warn("telegram check failed during health check")
	}

	return resp
}
