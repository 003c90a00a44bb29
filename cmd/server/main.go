package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"live-playback-engine/internal/platform/config"
	"live-playback-engine/internal/platform/logger"
	"live-playback-engine/internal/platform/metrics"
	"live-playback-engine/internal/playback"

	"github.com/go-chi/chi/v5"
)

const shutdownTimeout = 10 * time.Second

func main() {
	_ = config.Load()

	port := config.GetEnv("PORT", "8080")
	statusURL := config.GetEnv("TRANSCODER_STATUS_URL", "http://localhost:9090/status")
	logLevel := config.GetEnv("LOG_LEVEL", "info")
	logFormat := config.GetEnv("LOG_FORMAT", "json")

	cfg := playback.Config{
		PollInterval:     config.GetEnvDuration("STATUS_POLL_INTERVAL", 5*time.Second),
		ProbeInterval:    config.GetEnvDuration("PROBE_INTERVAL", 1*time.Second),
		SettleDelay:      config.GetEnvDuration("PROBE_SETTLE_DELAY", 500*time.Millisecond),
		ProbeSuccesses:   config.GetEnvInt("PROBE_SUCCESSES_REQUIRED", 2),
		WatchdogInterval: config.GetEnvDuration("STALL_WATCHDOG_INTERVAL", 1*time.Second),
		SamplerInterval:  config.GetEnvDuration("METRICS_SAMPLE_INTERVAL", 200*time.Millisecond),
		StallThreshold:   config.GetEnvFloat("STALL_THRESHOLD_SECONDS", 0.05),
		StallSamples:     config.GetEnvInt("STALL_SAMPLES", 5),
		LiveEdgeOffset:   config.GetEnvFloat("LIVE_EDGE_OFFSET_SECONDS", 0.5),
	}

	log := logger.New(logLevel, logFormat)

	met := metrics.New()
	source := playback.NewBackendStatusClient(statusURL, nil)

	// The stub player stands in for a real decode pipeline; embedders
	// supply their own PlayerFactory and MediaSink.
	eng := playback.New(cfg, source, playback.NewStubFactory(), playback.NewStubSink(), log, met)
	h := playback.NewHandler(eng, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go eng.Run(ctx)

	r := chi.NewRouter()
	r.Use(logger.RequestLogger(log))
	r.Use(metrics.RequestMiddleware(met))
	r.Get("/metrics", met.Handler(eng.PublishMetrics).ServeHTTP)
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Route("/playback", func(r chi.Router) {
		r.Get("/status", h.Status)
		r.Post("/start", h.Start)
		r.Post("/stop", h.Stop)
	})

	addr := ":" + port
	srv := &http.Server{Addr: addr, Handler: r}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	log.Info("server starting",
		"port", port,
		"transcoder_status_url", statusURL,
		"log_level", logLevel,
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Info("shutdown signal received, draining connections")

	cancel()

	sctx, scancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer scancel()

	if err := srv.Shutdown(sctx); err != nil {
		log.Error("shutdown error", "error", err)
		os.Exit(1)
	}

	log.Info("server stopped")
}
