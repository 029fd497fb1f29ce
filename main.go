package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
)

func main() {
	cfg, err := LoadConfig(os.Getenv)
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}

	flag.StringVar(&cfg.Port, "port", cfg.Port, "HTTP listen port")
	flag.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level (debug, info, warn, error)")
	flag.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "Log format (json, console)")
	flag.StringVar(&cfg.Detector, "detector", cfg.Detector, "Detection backend (huggingface, gemini, none)")
	flag.Parse()

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}
	if err := setupLogger(cfg.LogLevel, cfg.LogFormat, os.Stderr); err != nil {
		log.Fatal().Err(err).Msg("setup logger")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	detector, closeDetector, err := newDetector(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Str("detector", cfg.Detector).Msg("create detector")
	}
	defer closeDetector()

	store := NewStore()
	defer store.Close()
	metrics := NewMetrics(store.Len)

	api := NewServer(cfg, store, detector, metrics)
	defer api.Close()

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           api,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("shutdown")
		}
	}()

	log.Info().Str("addr", "http://localhost:"+cfg.Port).Str("detector", cfg.Detector).Msg("server started")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("listen")
	}
	log.Info().Msg("server stopped")
}

// newDetector builds the configured detection backend. A nil Detector
// means detection is disabled.
func newDetector(ctx context.Context, cfg Config) (Detector, func(), error) {
	noop := func() {}

	switch cfg.Detector {
	case DetectorGemini:
		if cfg.GCPProjectID == "" {
			log.Warn().Msg("GCP_PROJECT_ID not set, detection disabled")
			return nil, noop, nil
		}
		g, err := NewGeminiDetector(ctx, cfg.GCPProjectID, cfg.GCPRegion, cfg.GeminiModel)
		if err != nil {
			return nil, noop, err
		}
		log.Info().Str("project", cfg.GCPProjectID).Str("model", cfg.GeminiModel).Msg("gemini detector initialized")
		return g, func() { g.Close() }, nil

	case DetectorHuggingFace:
		if cfg.HFToken == "" {
			log.Warn().Msg("HF_API_TOKEN not set, detection requests will fail with an auth error")
		}
		client := &http.Client{Timeout: cfg.DetectTimeout}
		d, err := NewHuggingFaceDetector(cfg.HFModelURL, cfg.HFToken, cfg.HFThreshold, client)
		if err != nil {
			return nil, noop, err
		}
		return d, noop, nil

	default:
		log.Warn().Msg("detection disabled")
		return nil, noop, nil
	}
}
