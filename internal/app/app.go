// Package app wires the configured components together for the binaries.
package app

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/BerylCAtieno/taste-profiler/internal/api"
	"github.com/BerylCAtieno/taste-profiler/internal/config"
	"github.com/BerylCAtieno/taste-profiler/internal/imagefetch"
	"github.com/BerylCAtieno/taste-profiler/internal/llm"
	"github.com/BerylCAtieno/taste-profiler/internal/llm/claude"
	"github.com/BerylCAtieno/taste-profiler/internal/llm/gemini"
	"github.com/BerylCAtieno/taste-profiler/internal/pipeline"
	"github.com/BerylCAtieno/taste-profiler/internal/profiler"
	"github.com/BerylCAtieno/taste-profiler/internal/recommend"
	"github.com/BerylCAtieno/taste-profiler/internal/refine"
	"github.com/BerylCAtieno/taste-profiler/internal/scraper"
)

type App struct {
	Scraper     *scraper.Client
	Profiler    *profiler.Profiler
	Recommender *recommend.Recommender
	Refiner     *refine.Refiner
	Pipeline    *pipeline.Orchestrator

	closers []func() error
}

func New(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{}

	generator, err := a.newGenerator(ctx, cfg)
	if err != nil {
		return nil, err
	}

	a.Scraper = scraper.NewClient(scraper.Options{
		BaseURL:      cfg.Scraper.BaseURL,
		Token:        cfg.Scraper.Token,
		ActorID:      cfg.Scraper.ActorID,
		ResultsLimit: cfg.Scraper.ResultsLimit,
	})
	a.Profiler = profiler.New(generator, imagefetch.NewFetcher(cfg.Images.Timeout), cfg.Profiler.Prompt, cfg.Images.MaxPosts)
	a.Recommender = recommend.New(generator)
	a.Refiner = refine.New(generator)
	a.Pipeline = pipeline.New(a.Scraper, a.Profiler, a.Recommender, cfg.Output.Dir)

	if cfg.Scraper.Token == "" {
		log.Warn().Msg("APIFY_TOKEN is not set; instagram fetches will fail")
	}
	return a, nil
}

// Dependencies returns the collaborators the HTTP routes need.
func (a *App) Dependencies() api.Dependencies {
	return api.Dependencies{
		Scraper:     a.Scraper,
		Profiler:    a.Profiler,
		Recommender: a.Recommender,
		Refiner:     a.Refiner,
		Pipeline:    a.Pipeline,
	}
}

func (a *App) Close() {
	for _, c := range a.closers {
		if err := c(); err != nil {
			log.Warn().Err(err).Msg("failed to close client")
		}
	}
}

func (a *App) newGenerator(ctx context.Context, cfg *config.Config) (llm.Generator, error) {
	switch cfg.LLM.Backend {
	case "claude":
		log.Info().Str("model", cfg.LLM.ClaudeModel).Msg("using Claude backend")
		return claude.NewClient(cfg.LLM.ClaudeAPIKey, cfg.LLM.ClaudeModel, cfg.LLM.MaxOutputTokens), nil
	default:
		log.Info().Str("model", cfg.LLM.GeminiModel).Msg("using Gemini backend")
		client, err := gemini.NewClient(ctx, cfg.LLM.GeminiAPIKey, gemini.Options{
			Model:           cfg.LLM.GeminiModel,
			Temperature:     cfg.LLM.Temperature,
			TopP:            cfg.LLM.TopP,
			MaxOutputTokens: int32(cfg.LLM.MaxOutputTokens),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create Gemini client: %w", err)
		}
		a.closers = append(a.closers, client.Close)
		return client, nil
	}
}
