// server.go - HTTP interface for transaction submission and ledger queries
package main

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"resourcemachine/internal/arm"
	"resourcemachine/internal/ledger"
)

const maxTransactionBytes = 16 << 20

type Server struct {
	app     *App
	limiter *RateLimiter
	health  *HealthChecker
}

func NewServer(app *App) *Server {
	s := &Server{
		app:     app,
		limiter: NewRateLimiter(app.cfg.RequestsPerSec, app.cfg.BurstRequests),
		health:  NewHealthChecker(version),
	}
	s.health.Register("ledger", func(context.Context) error {
		if !app.ledger.IsKnownRoot(app.ledger.Root()) {
			return errors.New("current root missing from history")
		}
		return nil
	})
	s.health.Register("engine", func(context.Context) error {
		if app.params.Engine == nil {
			return errors.New("no proving engine")
		}
		return nil
	})
	return s
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /transactions", s.instrument("/transactions", s.handleSubmit))
	mux.HandleFunc("GET /root", s.instrument("/root", s.handleRoot))
	mux.HandleFunc("GET /stats", s.instrument("/stats", s.handleStats))
	mux.HandleFunc("GET /healthz", s.instrument("/healthz", s.handleHealth))
	mux.Handle("GET /metrics", promhttp.Handler())
	return mux
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.app.cfg.ListenAddr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		t := time.NewTicker(time.Minute)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				s.limiter.Prune()
			}
		}
	}()

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	s.app.log.Info().Str("addr", srv.Addr).Msg("listening")

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdown)
	}
}

type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.code = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) instrument(path string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
		h(rec, r)
		requests.WithLabelValues(path, strconv.Itoa(rec.code)).Inc()
	}
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// submitStatus maps a submission error to an HTTP status.
func submitStatus(err error) int {
	switch {
	case errors.Is(err, ledger.ErrDoubleSpend),
		errors.Is(err, ledger.ErrUnknownRoot),
		errors.Is(err, ledger.ErrDuplicateCommitment):
		return http.StatusConflict
	case arm.IsMalformed(err):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusUnprocessableEntity
	}
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	if !s.limiter.Allow(clientKey(r)) {
		rateLimited.Inc()
		writeError(w, http.StatusTooManyRequests, errors.New("rate limit exceeded"))
		return
	}

	var tx arm.Transaction
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxTransactionBytes)).Decode(&tx); err != nil {
		RecordError("decode")
		writeError(w, http.StatusBadRequest, errors.Wrap(err, "decode transaction"))
		return
	}

	ctx, cancel := s.app.Context(r.Context())
	defer cancel()
	if err := s.app.Submit(ctx, &tx); err != nil {
		s.app.log.Warn().Err(err).Str("client", clientKey(r)).Msg("transaction rejected")
		writeError(w, submitStatus(err), err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]interface{}{"root": s.app.ledger.Root()})
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"root": s.app.ledger.Root()})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.app.ledger.Stats())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	h := s.health.Check(r.Context())
	code := http.StatusOK
	if h.Status != Healthy {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, h)
}
