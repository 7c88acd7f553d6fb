package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/BerylCAtieno/taste-profiler/internal/app"
	"github.com/BerylCAtieno/taste-profiler/internal/config"
	"github.com/BerylCAtieno/taste-profiler/internal/logging"
	"github.com/BerylCAtieno/taste-profiler/internal/models"
	"github.com/BerylCAtieno/taste-profiler/internal/pipeline"
)

type flags struct {
	noSave    bool
	outputDir string
	jsonOnly  bool
	prompt    string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	f := &flags{}

	cmd := &cobra.Command{
		Use:          "recommend <username>",
		Short:        "Get restaurant recommendations based on Instagram profile analysis",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, args[0], f)
		},
	}

	cmd.Flags().BoolVar(&f.noSave, "no-save", false, "Do not save output files")
	cmd.Flags().StringVar(&f.outputDir, "output-dir", "", "Directory to save output files (default from config, \"outputs\")")
	cmd.Flags().BoolVar(&f.jsonOnly, "json-only", false, "Output only the JSON result without pretty printing")
	cmd.Flags().StringVar(&f.prompt, "prompt", "", "Override the profiling prompt")

	return cmd
}

type jsonResult struct {
	Username        string                  `json:"username"`
	RunID           string                  `json:"run_id"`
	Recommendations []models.Recommendation `json:"recommendations"`
	OutputFiles     models.RunArtifacts     `json:"output_files"`
	Error           string                  `json:"error,omitempty"`
}

func run(cmd *cobra.Command, username string, f *flags) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	// Logs go to stderr so --json-only output stays parseable.
	logging.Init(logging.Config{Level: cfg.Log.Level, Format: "console", Output: cmd.ErrOrStderr()})

	services, err := app.New(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer services.Close()

	result, err := services.Pipeline.Run(cmd.Context(), username, pipeline.Options{
		Save:      !f.noSave,
		OutputDir: f.outputDir,
		Prompt:    f.prompt,
	})
	if err != nil {
		return err
	}
	if result.Failed() {
		log.Warn().Err(result.Err).Str("stage", result.FailedStage).Msg("pipeline stopped early")
	}

	out := cmd.OutOrStdout()
	if f.jsonOnly {
		doc := jsonResult{
			Username:        username,
			RunID:           result.RunID,
			Recommendations: result.Recommendations,
			OutputFiles:     result.Artifacts,
		}
		if result.Failed() {
			doc.Error = result.Err.Error()
		}
		data, err := json.MarshalIndent(doc, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(out, string(data))
		return nil
	}

	printResult(cmd, username, result, !f.noSave)
	return nil
}

func printResult(cmd *cobra.Command, username string, result *models.RunResult, saved bool) {
	out := cmd.OutOrStdout()

	fmt.Fprintf(out, "\nRestaurant Recommendations for Instagram user: @%s\n", username)
	fmt.Fprintln(out, "======================================================================")

	if len(result.Recommendations) == 0 {
		fmt.Fprintln(out, "\nNo recommendations were generated.")
	}
	for i, rec := range result.Recommendations {
		fmt.Fprintf(out, "\n%d. %s (%s)\n", i+1, rec.RestaurantName, rec.RestaurantLocation)
		fmt.Fprintf(out, "   %s\n", rec.RestaurantDescription)
	}

	if saved && len(result.Artifacts) > 0 {
		fmt.Fprintln(out, "\nOutput files:")
		for _, stage := range []string{models.StageInstagramData, models.StageAnalysis, models.StageRecommendations, models.StageError} {
			if path, ok := result.Artifacts[stage]; ok {
				fmt.Fprintf(out, "%s: %s\n", stage, path)
			}
		}
	}
}
