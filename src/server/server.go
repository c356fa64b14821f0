// Package server exposes the candle provider core over HTTP: a thin
// /candles surface in front of the Provider Facade, plus a /health check.
// Grounded on the teacher's server.go for its chi-router/graceful-shutdown
// idiom — same middleware chain shape, same SIGINT/SIGTERM drain — with the
// trading-platform's auth/trades/webhook routes replaced by the candle
// provider's own surface.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"strategyexecutor/src/model"
	"strategyexecutor/src/timegrid"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	logger "github.com/sirupsen/logrus"
)

// Facade is the subset of the Provider Facade the HTTP surface depends on.
type Facade interface {
	GetCandles(ctx context.Context, req model.Request) model.CandleResponse
}

// StartServer mounts the candle provider's HTTP surface and blocks until a
// SIGINT/SIGTERM triggers a graceful shutdown, mirroring the teacher's
// StartServer lifecycle.
func StartServer(port string, facade Facade) {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		if _, err := w.Write([]byte("OK")); err != nil {
			logger.WithError(err).Error("/health write error")
		}
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/candles", getCandlesHandler(facade))
	})

	addr := ":" + port
	srv := &http.Server{Addr: addr, Handler: r}

	go func() {
		logger.Infof("Listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("Server crashed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("Shutting down gracefully...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("Shutdown error")
	}
}

// getCandlesHandler translates query parameters into a model.Request and
// delegates to the Provider Facade. Supported shapes mirror §3's Request:
// ?symbol=&timeframe=&count= | ?symbol=&timeframe=&start_time=&count= |
// ?symbol=&timeframe=&start_time=&end_time=[&inclusive_start=false]
func getCandlesHandler(facade Facade) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		req := model.Request{
			Symbol:         q.Get("symbol"),
			Timeframe:      timegrid.Timeframe(q.Get("timeframe")),
			InclusiveStart: true,
		}

		if v := q.Get("inclusive_start"); v != "" {
			if parsed, err := strconv.ParseBool(v); err == nil {
				req.InclusiveStart = parsed
			}
		}
		if v := q.Get("count"); v != "" {
			if parsed, err := strconv.Atoi(v); err == nil {
				req.Count = parsed
			}
		}
		if v := q.Get("start_time"); v != "" {
			if parsed, err := time.Parse(time.RFC3339, v); err == nil {
				req.StartTime = &parsed
			}
		}
		if v := q.Get("end_time"); v != "" {
			if parsed, err := time.Parse(time.RFC3339, v); err == nil {
				req.EndTime = &parsed
			}
		}
		if v := q.Get("to"); v != "" {
			if parsed, err := time.Parse(time.RFC3339, v); err == nil {
				req.To = &parsed
			}
		}

		response := facade.GetCandles(r.Context(), req)

		w.Header().Set("Content-Type", "application/json")
		status := http.StatusOK
		if !response.Success {
			status = http.StatusBadRequest
			if response.Error != nil && response.Error.Kind == "StorageUnavailable" {
				status = http.StatusInternalServerError
			}
		}
		w.WriteHeader(status)
		if err := json.NewEncoder(w).Encode(response); err != nil {
			logger.WithError(err).Error("/api/v1/candles encode error")
		}
	}
}
