package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/BerylCAtieno/taste-profiler/internal/a2a"
	"github.com/BerylCAtieno/taste-profiler/internal/api"
	"github.com/BerylCAtieno/taste-profiler/internal/app"
	"github.com/BerylCAtieno/taste-profiler/internal/config"
	"github.com/BerylCAtieno/taste-profiler/internal/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	logging.Init(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
	if logging.ParseLevel(cfg.Log.Level) > zerolog.DebugLevel {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	services, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialise services")
	}
	defer services.Close()

	server := api.NewServer(cfg, services.Dependencies())

	baseURL := "http://localhost" + cfg.Addr()
	if cfg.Server.Host != "" {
		baseURL = "http://" + cfg.Addr()
	}
	a2a.NewA2AHandler(services.Pipeline, baseURL).Register(server.Router())

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("addr", cfg.Addr()).Msg("restaurant recommender starting")
		log.Info().Msgf("Agent card available at: %s/.well-known/agent.json", baseURL)
		log.Info().Msgf("A2A endpoint available at: %s/a2a/recommender", baseURL)

		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed to start")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
}
