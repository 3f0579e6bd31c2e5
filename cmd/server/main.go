package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/Wyydra/yasignal/internal/adapter/driven/anomaly"
	"github.com/Wyydra/yasignal/internal/adapter/driven/gateway/ws"
	"github.com/Wyydra/yasignal/internal/adapter/driven/media/pion"
	"github.com/Wyydra/yasignal/internal/adapter/driven/metrics"
	"github.com/Wyydra/yasignal/internal/adapter/driven/telemetry"
	handler "github.com/Wyydra/yasignal/internal/adapter/driving/http"
	"github.com/Wyydra/yasignal/internal/config"
	"github.com/Wyydra/yasignal/internal/core/port"
	"github.com/Wyydra/yasignal/internal/core/service"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}
	setupLogger(cfg)

	prom := metrics.NewPrometheus()

	var sink port.TelemetrySink = telemetry.LogSink{}
	var httpSink *telemetry.HTTPSink
	if cfg.TelemetryEndpoint != "" {
		httpSink = telemetry.NewHTTPSink(cfg.TelemetryEndpoint, cfg.TelemetryTimeout, cfg.TelemetryQueueSize, prom)
		sink = httpSink
	}

	ctx := context.Background()
	detector := anomaly.NewSelector(ctx, func(ctx context.Context) (anomaly.Detector, error) {
		return anomaly.LoadFile(ctx, cfg.AnomalyWASMPath)
	}, sink)

	registry := service.NewRegistry()
	tracker := service.NewTracker(prom)
	router := service.NewRouter(registry, tracker, sink, prom)
	if cfg.StrictPayload {
		router.SetInspector(pion.NewInspector(true))
	}
	ingest := service.NewIngestService(detector, sink, prom)
	hub := ws.NewHub()

	var auth *handler.Authenticator
	if cfg.AuthMode == config.AuthModeJWT {
		auth = handler.NewAuthenticator(cfg.JWTSecret)
	}

	h := handler.NewHandler(handler.Deps{
		Router:     router,
		Ingest:     ingest,
		Hub:        hub,
		Detector:   detector,
		Benchmark:  detector,
		Telemetry:  sink,
		Metrics:    prom.Handler(),
		ICEServers: pion.ICEServers(cfg.ICEServers, cfg.ICEUsername, cfg.ICECredential),
		Auth:       auth,
	}, cfg)

	srv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: h.NewRouter(),
	}

	go func() {
		log.Info().
			Str("addr", cfg.ListenAddr).
			Str("auth", string(cfg.AuthMode)).
			Str("anomaly_detector", detector.Mode()).
			Msg("Starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	<-quit
	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	// Hijacked WebSocket connections are not tracked by Shutdown.
	hub.Stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	if err := detector.Close(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Failed to close anomaly detector")
	}
	if httpSink != nil {
		if err := httpSink.Close(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("Telemetry queue not drained")
		}
	}
	log.Info().Msg("Server exited")
}

func setupLogger(cfg config.Config) {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.LogFormat == config.LogFormatJSON {
		log.Logger = zerolog.New(os.Stdout).With().Timestamp().Caller().Logger()
		return
	}
	w := zerolog.ConsoleWriter{Out: os.Stdout}
	log.Logger = zerolog.New(w).With().Timestamp().Caller().Logger()
}
