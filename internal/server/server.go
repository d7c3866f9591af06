package server

import (
	"context"
	"fmt"
	"net/http"
	"net/http/pprof"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/arwahdevops/schemasync/internal/config"
	"github.com/arwahdevops/schemasync/internal/metrics"
)

// Pinger is the slice of a connection the readiness check needs.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Probe is one database the readiness endpoint pings. Alias doubles as the
// db_alias label on the reachability gauge.
type Probe struct {
	Alias  string
	Pinger Pinger
}

// RunHTTPServer serves metrics, health checks and optional pprof until ctx
// is cancelled.
func RunHTTPServer(
	ctx context.Context,
	cfg *config.Config,
	metricsStore *metrics.Store,
	probes []Probe,
	logger *zap.Logger,
) {
	log := logger.Named("http-server")
	mux := http.NewServeMux()

	// Metrics endpoint using the custom registry
	mux.Handle("/metrics", promhttp.HandlerFor(metricsStore.Registry, promhttp.HandlerOpts{}))

	// Liveness endpoint
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "OK")
	})

	// Readiness endpoint: ping every connection concurrently and refresh
	// the reachability gauge as a side effect.
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		pingCtx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		errs := make([]error, len(probes))
		var wg sync.WaitGroup
		for i, p := range probes {
			if p.Pinger == nil {
				errs[i] = fmt.Errorf("connection not established")
				metricsStore.DBReachable.WithLabelValues(p.Alias).Set(0)
				continue
			}
			wg.Add(1)
			go func(i int, p Probe) {
				defer wg.Done()
				err := p.Pinger.Ping(pingCtx)
				errs[i] = err
				if err != nil {
					metricsStore.DBReachable.WithLabelValues(p.Alias).Set(0)
				} else {
					metricsStore.DBReachable.WithLabelValues(p.Alias).Set(1)
				}
			}(i, p)
		}
		wg.Wait()

		ready := true
		status := make([]string, 0, len(probes))
		for i, p := range probes {
			if errs[i] != nil {
				ready = false
			}
			status = append(status, fmt.Sprintf("%s=%s", p.Alias, formatPingError(errs[i])))
		}

		if ready {
			w.WriteHeader(http.StatusOK)
			fmt.Fprintln(w, "Ready")
			return
		}
		log.Warn("Readiness check failed", zap.Strings("db_status", status))
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprintln(w, "Not Ready: "+strings.Join(status, ", "))
	})

	// Pprof endpoints (conditionally enabled)
	if cfg.EnablePprof {
		log.Info("Enabling pprof endpoints on /debug/pprof/")
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	} else {
		log.Info("Pprof endpoints are disabled.")
	}

	addr := fmt.Sprintf(":%d", cfg.MetricsPort)
	server := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Run server in a goroutine so it doesn't block the main sync process
	go func() {
		log.Info("Starting HTTP server", zap.String("address", addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("HTTP server ListenAndServe error", zap.Error(err))
		}
		log.Info("HTTP server stopped listening")
	}()

	// Wait for context cancellation (sent from main) to initiate shutdown
	<-ctx.Done()
	log.Info("Shutting down HTTP server due to context cancellation...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server graceful shutdown failed", zap.Error(err))
	} else {
		log.Info("HTTP server gracefully stopped")
	}
}

// formatPingError provides a short status string for the readiness body.
func formatPingError(err error) string {
	if err == nil {
		return "OK"
	}
	return fmt.Sprintf("Error (%v)", err)
}
