// Package pipeline runs fetch, analyze and recommend for one username and
// persists each stage's output.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/BerylCAtieno/taste-profiler/internal/artifact"
	"github.com/BerylCAtieno/taste-profiler/internal/metrics"
	"github.com/BerylCAtieno/taste-profiler/internal/models"
	"github.com/BerylCAtieno/taste-profiler/internal/profiler"
)

type ProfileFetcher interface {
	FetchProfile(ctx context.Context, username string) (*models.ProfileData, error)
}

type Analyzer interface {
	Analyze(ctx context.Context, posts []models.Post, opts ...profiler.Option) models.Analysis
}

type Recommender interface {
	Recommend(ctx context.Context, analysis string) []models.Recommendation
}

type Options struct {
	Save      bool
	OutputDir string // defaults to the orchestrator's directory
	Prompt    string // overrides the profiler instruction for this run
}

type Orchestrator struct {
	fetcher     ProfileFetcher
	analyzer    Analyzer
	recommender Recommender
	outputDir   string
	now         func() time.Time
}

func New(fetcher ProfileFetcher, analyzer Analyzer, recommender Recommender, outputDir string) *Orchestrator {
	return &Orchestrator{
		fetcher:     fetcher,
		analyzer:    analyzer,
		recommender: recommender,
		outputDir:   outputDir,
		now:         time.Now,
	}
}

type analysisArtifact struct {
	Timestamp string `json:"timestamp"`
	RunID     string `json:"run_id"`
	Username  string `json:"username"`
	Analysis  string `json:"analysis"`
	PostCount int    `json:"post_count"`
}

type recommendationsArtifact struct {
	Timestamp       string                  `json:"timestamp"`
	RunID           string                  `json:"run_id"`
	Username        string                  `json:"username"`
	Recommendations []models.Recommendation `json:"recommendations"`
}

type errorArtifact struct {
	Timestamp string `json:"timestamp"`
	RunID     string `json:"run_id"`
	Username  string `json:"username"`
	Stage     string `json:"stage"`
	Error     string `json:"error"`
}

// run carries the per-run state shared by the stages.
type run struct {
	result *models.RunResult
	store  *artifact.Store
	save   bool
	logger zerolog.Logger
}

// Run executes every stage once. Stage failures are reported on the result;
// the returned error is only set when the output directory cannot be created.
func (o *Orchestrator) Run(ctx context.Context, username string, opts Options) (*models.RunResult, error) {
	started := o.now()
	result := &models.RunResult{
		RunID:           uuid.New().String(),
		Username:        username,
		StartedAt:       started,
		Timestamp:       artifact.Timestamp(started),
		Recommendations: []models.Recommendation{},
		Artifacts:       models.RunArtifacts{},
	}

	dir := opts.OutputDir
	if dir == "" {
		dir = o.outputDir
	}
	r := &run{
		result: result,
		store:  artifact.NewStore(dir),
		save:   opts.Save,
		logger: log.With().Str("run_id", result.RunID).Str("username", username).Logger(),
	}

	if r.save {
		if err := r.store.EnsureDir(); err != nil {
			return nil, err
		}
	}

	r.logger.Info().Msg("fetching instagram data")
	stageStart := o.now()
	profile, err := o.fetcher.FetchProfile(ctx, username)
	metrics.ObserveStage(models.StageInstagramData, stageStart)
	if err != nil {
		return o.fail(r, models.StageInstagramData, fmt.Errorf("failed to fetch instagram data: %w", err)), nil
	}
	o.persist(r, models.StageInstagramData, profile)

	r.logger.Info().Int("posts", len(profile.Posts)).Msg("analyzing instagram posts")
	var analyzeOpts []profiler.Option
	if opts.Prompt != "" {
		analyzeOpts = append(analyzeOpts, profiler.WithPrompt(opts.Prompt))
	}
	stageStart = o.now()
	analysis := o.analyzer.Analyze(ctx, profile.Posts, analyzeOpts...)
	metrics.ObserveStage(models.StageAnalysis, stageStart)
	if !analysis.OK() {
		return o.fail(r, models.StageAnalysis, analysisError(analysis)), nil
	}
	o.persist(r, models.StageAnalysis, analysisArtifact{
		Timestamp: o.isoNow(),
		RunID:     result.RunID,
		Username:  username,
		Analysis:  analysis.Text,
		PostCount: analysis.PostCount,
	})

	r.logger.Info().Msg("generating restaurant recommendations")
	stageStart = o.now()
	result.Recommendations = o.recommender.Recommend(ctx, analysis.Text)
	metrics.ObserveStage(models.StageRecommendations, stageStart)
	if result.Recommendations == nil {
		result.Recommendations = []models.Recommendation{}
	}
	o.persist(r, models.StageRecommendations, recommendationsArtifact{
		Timestamp:       o.isoNow(),
		RunID:           result.RunID,
		Username:        username,
		Recommendations: result.Recommendations,
	})

	metrics.PipelineRuns.WithLabelValues("success").Inc()
	r.logger.Info().Int("recommendations", len(result.Recommendations)).Msg("pipeline run complete")
	return result, nil
}

func analysisError(a models.Analysis) error {
	switch {
	case a.Outcome == models.OutcomeFailed && a.Err != nil:
		return fmt.Errorf("failed to analyze posts: %w", a.Err)
	case a.Err != nil:
		return a.Err
	default:
		return errors.New(a.Text)
	}
}

func (o *Orchestrator) fail(r *run, stage string, err error) *models.RunResult {
	r.result.FailedStage = stage
	r.result.Err = err
	r.result.Recommendations = []models.Recommendation{}
	metrics.PipelineRuns.WithLabelValues("failed").Inc()
	r.logger.Error().Err(err).Str("stage", stage).Msg("pipeline run failed")

	o.persist(r, models.StageError, errorArtifact{
		Timestamp: o.isoNow(),
		RunID:     r.result.RunID,
		Username:  r.result.Username,
		Stage:     stage,
		Error:     err.Error(),
	})
	return r.result
}

// persist writes a stage artifact when saving is on. Write failures are
// logged and leave the stage out of the artifact map.
func (o *Orchestrator) persist(r *run, stage string, v any) {
	if !r.save {
		return
	}
	path, err := r.store.Save(r.result.Username, stage, r.result.Timestamp, v)
	if err != nil {
		r.logger.Error().Err(err).Str("stage", stage).Msg("failed to save artifact")
		return
	}
	r.result.Artifacts[stage] = path
	r.logger.Info().Str("stage", stage).Str("path", path).Msg("artifact saved")
}

func (o *Orchestrator) isoNow() string {
	return o.now().Format(time.RFC3339)
}
