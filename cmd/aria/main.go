package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gmarchetti/aria/internal/config"
	"github.com/gmarchetti/aria/internal/httpapi"
	"github.com/gmarchetti/aria/internal/observability"
	"github.com/gmarchetti/aria/internal/preview"
	"github.com/gmarchetti/aria/internal/session"
	"github.com/gmarchetti/aria/internal/settings"
	"github.com/gmarchetti/aria/internal/telemetry"
	"github.com/gmarchetti/aria/internal/token"
	"github.com/gmarchetti/aria/internal/transcript"
	"github.com/gmarchetti/aria/internal/voice"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	ctx := context.Background()
	persistence, err := settings.NewPersistence(ctx, cfg.DatabaseURL, cfg.SettingsDir)
	if err != nil {
		log.Fatalf("settings persistence init failed: %v", err)
	}
	defer persistence.Close()

	store := settings.NewStore(settings.SessionSettings{
		VoiceID:         cfg.DefaultVoiceID,
		SystemPrompt:    cfg.DefaultSystemPrompt,
		IntroLine:       cfg.DefaultIntroLine,
		AssistantStarts: true,
	})
	if err := store.LoadDefaults(ctx, persistence, cfg.AccountKey); err != nil {
		// Saved settings are a convenience; the built-in defaults still work.
		log.Printf("saved settings unavailable: %v", err)
	}

	tokens := token.NewProvider(cfg.TokenServiceURL, cfg.TokenAPIKey)
	transport := voice.NewRealtimeTransport(voice.RealtimeConfig{WSBaseURL: cfg.VoiceWSBaseURL})
	controller := session.NewController(tokens, store, transport, metrics)

	sink, err := telemetry.NewSink(ctx, cfg.TelemetryMode, cfg.TelemetryURL, cfg.TelemetryJournalPath)
	if err != nil {
		log.Fatalf("telemetry sink init failed: %v", err)
	}
	defer sink.Close()
	ingest := telemetry.NewIngest(sink, store, metrics)
	defer ingest.Close()

	agg := transcript.New()
	controller.RegisterSink(func(evt any, _ string) { agg.OnEvent(evt) })
	controller.RegisterSink(ingest.OnEvent)

	// Each new connection starts a fresh transcript.
	snaps, unsubscribe := controller.Subscribe()
	defer unsubscribe()
	go func() {
		for snap := range snaps {
			if snap.State == session.StateConnecting {
				agg.Reset()
			}
		}
	}()

	previewer := preview.NewSynthesizer(cfg.PreviewURL, cfg.TokenAPIKey, cfg.PreviewFormat)

	api := httpapi.New(cfg, controller, store, persistence, agg, previewer, metrics)
	httpServer := &http.Server{
		Addr:    cfg.BindAddr,
		Handler: api.Router(),
	}

	go func() {
		log.Printf("server listening on %s", cfg.BindAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Printf("shutdown signal received")

	controller.Disconnect()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
		_ = httpServer.Close()
	}

	log.Printf("shutdown complete")
}
