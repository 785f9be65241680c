// Command unionsquare wires the core components into a runnable proxy
// process. It is thin by design: every decision of consequence lives in
// internal/*, this file only constructs and starts them in the right order
// and stops them in the right order on shutdown.
package main

import (
	"context"
	"flag"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/unionsquare/core/internal/auditsink"
	"github.com/unionsquare/core/internal/authstore"
	"github.com/unionsquare/core/internal/config"
	"github.com/unionsquare/core/internal/dispatch"
	"github.com/unionsquare/core/internal/forward"
	"github.com/unionsquare/core/internal/middleware"
	"github.com/unionsquare/core/internal/ratelimit"
	"github.com/unionsquare/core/internal/ringbuf"
)

func main() {
	var (
		upstreamBaseURL = flag.String("upstream", "", "upstream base URL (required)")
		listenAddr      = flag.String("listen", ":8080", "listen address")
		auditLogPath    = flag.String("audit-log", "union-square-audit.log.gz", "audit sink segment path")
	)
	flag.Parse()

	log, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer log.Sync() //nolint:errcheck

	cfg := config.Default()
	cfg.ListenAddr = *listenAddr
	cfg.UpstreamBaseURL = *upstreamBaseURL
	if err := cfg.Validate(); err != nil {
		log.Fatal("invalid configuration", zap.Error(err))
	}

	upstream, err := url.Parse(cfg.UpstreamBaseURL)
	if err != nil {
		log.Fatal("invalid upstream_base_url", zap.Error(err))
	}

	ring := ringbuf.New(cfg.RingCapacitySlots, cfg.RingSlotPayloadBytes)

	// authstore starts empty; a real deployment reloads it from wherever
	// credentials live (spec.md §1 scopes that out as an external
	// collaborator). An operator can wire a SIGHUP-triggered Reload here the
	// same way agilira-lethe's hot-reload example wires its own config
	// refresh.
	store := authstore.New(nil)
	limiter := ratelimit.New(cfg.RateLimitRPSPerPrincipal, cfg.RateLimitBurst)
	forwarder := forward.New(cfg.RequestTimeout())

	chain := middleware.Build(
		forwarder.Handler(),
		middleware.ErrorShaping,
		middleware.RequestIDLayer(cfg.RequestIDHeaderName),
		middleware.AuthLayer(cfg.AuthHeaderName, store),
		middleware.RateLimitLayer(limiter),
		middleware.LoggingLayer(cfg.LoggingSampleRate),
	)

	d := dispatch.New(chain, ring, dispatch.Config{
		UpstreamBaseURL: upstream,
		RequestIDHeader: cfg.RequestIDHeaderName,
		RequestTimeout:  cfg.RequestTimeout(),
	}, log)

	sink, err := auditsink.NewFileSink(*auditLogPath)
	if err != nil {
		log.Fatal("failed to open audit sink", zap.Error(err))
	}
	drainer := auditsink.New(ring, sink, log)

	drainCtx, cancelDrain := context.WithCancel(context.Background())
	drainDone := make(chan struct{})
	go func() {
		drainer.Run(drainCtx, cfg.DrainShutdown())
		close(drainDone)
	}()

	srv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: d.Router(),
	}

	go func() {
		log.Info("union square listening", zap.String("addr", cfg.ListenAddr), zap.String("upstream", cfg.UpstreamBaseURL))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("server failed", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", zap.Error(err))
	}

	cancelDrain()
	<-drainDone
	if err := sink.Close(); err != nil {
		log.Error("failed to close audit sink", zap.Error(err))
	}
}
