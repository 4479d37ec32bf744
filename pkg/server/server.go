// Package server exposes the read-only HTTP surface: poll status, last
// stored values, health, and the Prometheus scrape endpoint.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/NYTimes/gziphandler"
	"github.com/levenlabs/go-lflag"

	"github.com/solarmeter/solarmeter/pkg/log"
	"github.com/solarmeter/solarmeter/pkg/metrics"
	"github.com/solarmeter/solarmeter/pkg/poller"
	"github.com/solarmeter/solarmeter/pkg/store"
	"github.com/solarmeter/solarmeter/pkg/types"
)

// Server handles the HTTP status API for the meter.
type Server struct {
	st store.Store
	p  *poller.Poller
	mx *metrics.Metrics

	listenAddr string
	device     string
	httpServer *http.Server
}

// Configured initializes the Server with dependencies.
// It uses lflag to register command-line flags for configuration.
func Configured(st store.Store, p *poller.Poller, mx *metrics.Metrics) *Server {
	srv := &Server{
		st: st,
		p:  p,
		mx: mx,
	}

	// get the port from PORT when running in cloud run
	port := os.Getenv("PORT")
	if port == "" {
		// otherwise default to 8080
		port = "8080"
	}

	listenAddr := lflag.String("http-listen", ":"+port, "HTTP server listen address")

	lflag.Do(func() {
		srv.listenAddr = *listenAddr
		srv.device = p.Device()
	})
	return srv
}

// statusResponse is the /api/status payload: poll bookkeeping plus the last
// stored canonical values.
type statusResponse struct {
	types.PollingState
	Watts    float64 `json:"watts"`
	DayKWH   float64 `json:"dayKWH"`
	WeekKWH  float64 `json:"weekKWH"`
	MonthKWH float64 `json:"monthKWH"`
	YearKWH  float64 `json:"yearKWH"`
	LifeKWH  float64 `json:"lifeKWH"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	res := statusResponse{PollingState: s.p.State()}

	values := []struct {
		key  string
		dest *float64
	}{
		{types.KeyWatts, &res.Watts},
		{types.KeyDayKWH, &res.DayKWH},
		{types.KeyWeekKWH, &res.WeekKWH},
		{types.KeyMonthKWH, &res.MonthKWH},
		{types.KeyYearKWH, &res.YearKWH},
		{types.KeyLifeKWH, &res.LifeKWH},
	}
	for _, v := range values {
		n, err := s.st.GetNumber(ctx, s.device, v.key)
		if err != nil {
			log.Ctx(ctx).ErrorContext(ctx, "failed to read stored value",
				slog.String("key", v.key), "error", err)
			writeJSONError(w, "storage unavailable", http.StatusInternalServerError)
			return
		}
		*v.dest = n
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(res); err != nil {
		slog.Warn("failed to write status response", slog.Any("error", err))
		panic(http.ErrAbortHandler)
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) setupHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.Handle("GET /metrics", s.mx.Handler())
	return gziphandler.GzipHandler(mux)
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
