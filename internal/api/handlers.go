package api

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/BerylCAtieno/taste-profiler/internal/artifact"
	"github.com/BerylCAtieno/taste-profiler/internal/models"
	"github.com/BerylCAtieno/taste-profiler/internal/pipeline"
	"github.com/BerylCAtieno/taste-profiler/internal/profiler"
	"github.com/BerylCAtieno/taste-profiler/internal/refine"
	"github.com/BerylCAtieno/taste-profiler/internal/scraper"
)

const defaultAnalysisFile = "analysis_output.json"

func errorResponse(c *gin.Context, status int, format string, args ...any) {
	c.JSON(status, gin.H{"message": fmt.Sprintf(format, args...)})
}

func (s *Server) getInstagramData(c *gin.Context) {
	username := c.Param("username")

	pd, err := s.deps.Scraper.FetchProfile(c.Request.Context(), username)
	if err != nil {
		errorResponse(c, http.StatusInternalServerError, "Error fetching Instagram data: %v", err)
		return
	}

	c.JSON(http.StatusOK, pd)
}

func (s *Server) analyzeUser(c *gin.Context) {
	username := c.Param("username")

	pd, err := s.deps.Scraper.FetchProfile(c.Request.Context(), username)
	if err != nil {
		errorResponse(c, http.StatusInternalServerError, "Error analyzing Instagram data: %v", err)
		return
	}

	analysis := s.deps.Profiler.Analyze(c.Request.Context(), pd.Posts)
	c.JSON(http.StatusOK, gin.H{
		"username": username,
		"analysis": analysis.Text,
		"outcome":  analysis.Outcome,
	})
}

func (s *Server) analyzeTestData(c *gin.Context) {
	name := c.DefaultQuery("output_file", defaultAnalysisFile)
	outputFile, err := s.store.Join(name)
	if err != nil {
		errorResponse(c, http.StatusBadRequest, "Invalid output_file: %v", err)
		return
	}

	data, err := os.ReadFile(s.cfg.Profiler.TestDataPath)
	if err != nil {
		errorResponse(c, http.StatusInternalServerError, "Error analyzing test data: %v", err)
		return
	}
	pd, err := scraper.LoadProfileData(data)
	if err != nil {
		errorResponse(c, http.StatusInternalServerError, "Error analyzing test data: %v", err)
		return
	}
	if err := os.MkdirAll(filepath.Dir(outputFile), 0o755); err != nil {
		errorResponse(c, http.StatusInternalServerError, "Error analyzing test data: %v", err)
		return
	}

	analysis := s.deps.Profiler.Analyze(c.Request.Context(), pd.Posts, profiler.WithSavePath(outputFile))
	c.JSON(http.StatusOK, gin.H{
		"analysis":    analysis.Text,
		"output_file": outputFile,
	})
}

func (s *Server) recommendForUser(c *gin.Context) {
	username := c.Param("username")

	pd, err := s.deps.Scraper.FetchProfile(c.Request.Context(), username)
	if err != nil {
		errorResponse(c, http.StatusInternalServerError, "Error generating restaurant recommendations: %v", err)
		return
	}

	recs := []models.Recommendation{}
	analysis := s.deps.Profiler.Analyze(c.Request.Context(), pd.Posts)
	if analysis.OK() {
		recs = s.deps.Recommender.Recommend(c.Request.Context(), analysis.Text)
	} else {
		log.Warn().Str("username", username).Str("outcome", string(analysis.Outcome)).Msg("skipping recommendations")
	}

	c.JSON(http.StatusOK, gin.H{
		"username":        username,
		"recommendations": recs,
	})
}

type analysisRequest struct {
	Analysis string `json:"analysis"`
}

func (s *Server) recommendFromAnalysis(c *gin.Context) {
	analysis := c.Query("analysis")
	if analysis == "" && c.Request.ContentLength != 0 {
		var req analysisRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			errorResponse(c, http.StatusBadRequest, "Invalid request body: %v", err)
			return
		}
		analysis = req.Analysis
	}
	if analysis == "" {
		errorResponse(c, http.StatusBadRequest, "analysis is required")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"recommendations": s.deps.Recommender.Recommend(c.Request.Context(), analysis),
	})
}

type analysisFile struct {
	Analysis string `json:"analysis"`
}

func (s *Server) recommendFromFile(c *gin.Context) {
	path := c.DefaultQuery("analysis_file", defaultAnalysisFile)

	var doc analysisFile
	if err := s.readArtifact(path, &doc); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, artifact.ErrPathOutsideRoot) {
			status = http.StatusBadRequest
		}
		errorResponse(c, status, "Error generating restaurant recommendations from file: %v", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"recommendations": s.deps.Recommender.Recommend(c.Request.Context(), doc.Analysis),
		"analysis_file":   path,
	})
}

func (s *Server) fullService(c *gin.Context) {
	username := c.Param("username")

	save := s.cfg.Output.Save
	if v := c.Query("save_outputs"); v != "" {
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			errorResponse(c, http.StatusBadRequest, "Invalid save_outputs: %q", v)
			return
		}
		save = parsed
	}

	store, err := s.store.Sub(c.Query("output_dir"))
	if err != nil {
		errorResponse(c, http.StatusBadRequest, "Invalid output_dir: %v", err)
		return
	}

	result, err := s.deps.Pipeline.Run(c.Request.Context(), username, pipeline.Options{
		Save:      save,
		OutputDir: store.Root(),
		Prompt:    c.Query("prompt"),
	})
	if err != nil {
		errorResponse(c, http.StatusInternalServerError, "Error in full service recommendations: %v", err)
		return
	}

	resp := gin.H{
		"username":        username,
		"run_id":          result.RunID,
		"recommendations": result.Recommendations,
		"output_files":    result.Artifacts,
	}
	if result.Failed() {
		resp["error"] = result.Err.Error()
		resp["failed_stage"] = result.FailedStage
	}
	c.JSON(http.StatusOK, resp)
}

type rewriteRequest struct {
	Username        string            `json:"username"`
	Recommendations []models.Feedback `json:"recommendations" binding:"dive"`
	OutputFiles     map[string]string `json:"output_files"`
	SampleFeedback  *bool             `json:"sample_feedback"`
}

func (s *Server) rewritePrompt(c *gin.Context) {
	var req rewriteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, http.StatusBadRequest, "Invalid request body: %v", err)
		return
	}

	currentPrompt := s.cfg.Profiler.Prompt

	// A missing or unreadable analysis file only weakens the rewrite.
	var analysis analysisFile
	if path := req.OutputFiles[models.StageAnalysis]; path != "" {
		if err := s.readArtifact(path, &analysis); err != nil {
			log.Warn().Err(err).Str("path", path).Msg("failed to load analysis file")
		}
	}

	sample := s.cfg.Refine.SampleFeedback
	if req.SampleFeedback != nil {
		sample = *req.SampleFeedback
	}

	newPrompt, err := s.deps.Refiner.Refine(c.Request.Context(), refine.Request{
		OriginalPrompt: currentPrompt,
		Username:       req.Username,
		Analysis:       analysis.Analysis,
		Feedback:       req.Recommendations,
		SampleFeedback: sample,
	})
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, refine.ErrNoFeedback) {
			status = http.StatusBadRequest
		}
		errorResponse(c, status, "Error rewriting prompt: %v", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"current_prompt": currentPrompt,
		"response":       newPrompt,
	})
}

// readArtifact loads a JSON file from the output root. A bare file name is
// looked up inside the root.
func (s *Server) readArtifact(path string, v any) error {
	if filepath.Dir(path) == "." {
		joined, err := s.store.Join(path)
		if err != nil {
			return err
		}
		path = joined
	}
	return s.store.Read(path, v)
}
