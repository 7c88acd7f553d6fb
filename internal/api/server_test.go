package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BerylCAtieno/taste-profiler/internal/config"
	"github.com/BerylCAtieno/taste-profiler/internal/models"
	"github.com/BerylCAtieno/taste-profiler/internal/pipeline"
	"github.com/BerylCAtieno/taste-profiler/internal/profiler"
	"github.com/BerylCAtieno/taste-profiler/internal/refine"
)

type stubScraper struct {
	data *models.ProfileData
	err  error
}

func (s *stubScraper) FetchProfile(_ context.Context, username string) (*models.ProfileData, error) {
	if s.err != nil {
		return nil, s.err
	}
	pd := *s.data
	pd.Username = username
	return &pd, nil
}

type stubProfiler struct {
	analysis models.Analysis
	calls    int
	posts    []models.Post
}

func (p *stubProfiler) Analyze(_ context.Context, posts []models.Post, opts ...profiler.Option) models.Analysis {
	p.calls++
	p.posts = posts
	return p.analysis
}

type stubRecommender struct {
	recs     []models.Recommendation
	analysis string
	calls    int
}

func (r *stubRecommender) Recommend(_ context.Context, analysis string) []models.Recommendation {
	r.calls++
	r.analysis = analysis
	return r.recs
}

type stubRefiner struct {
	req refine.Request
	out string
	err error
}

func (r *stubRefiner) Refine(_ context.Context, req refine.Request) (string, error) {
	r.req = req
	return r.out, r.err
}

type stubRunner struct {
	opts   pipeline.Options
	result *models.RunResult
	err    error
}

func (r *stubRunner) Run(_ context.Context, username string, opts pipeline.Options) (*models.RunResult, error) {
	r.opts = opts
	if r.err != nil {
		return nil, r.err
	}
	res := *r.result
	res.Username = username
	return &res, nil
}

type fixture struct {
	cfg         *config.Config
	scraper     *stubScraper
	profiler    *stubProfiler
	recommender *stubRecommender
	refiner     *stubRefiner
	runner      *stubRunner
}

var sampleRecs = []models.Recommendation{{
	RestaurantName:        "Green Bowl",
	RestaurantLocation:    "Lavington",
	RestaurantDescription: "Salads",
}}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := config.Default()
	cfg.Output.Dir = filepath.Join(t.TempDir(), "outputs")
	require.NoError(t, os.MkdirAll(cfg.Output.Dir, 0o755))

	return &fixture{
		cfg: cfg,
		scraper: &stubScraper{data: &models.ProfileData{
			Posts: []models.Post{{DisplayURL: "https://cdn/1.jpg", Caption: "Salad"}},
		}},
		profiler: &stubProfiler{analysis: models.Analysis{
			Outcome: models.OutcomeSuccess, Text: "Health conscious", PostCount: 1,
		}},
		recommender: &stubRecommender{recs: sampleRecs},
		refiner:     &stubRefiner{out: "Better prompt"},
		runner: &stubRunner{result: &models.RunResult{
			RunID:           "run-1",
			Recommendations: sampleRecs,
			Artifacts:       models.RunArtifacts{},
		}},
	}
}

func (f *fixture) server() *Server {
	return NewServer(f.cfg, Dependencies{
		Scraper:     f.scraper,
		Profiler:    f.profiler,
		Recommender: f.recommender,
		Refiner:     f.refiner,
		Pipeline:    f.runner,
	})
}

func do(t *testing.T, h http.Handler, method, target string, body any) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, target, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	var out map[string]interface{}
	_ = json.Unmarshal(w.Body.Bytes(), &out)
	return w, out
}

func TestHealth(t *testing.T) {
	f := newFixture(t)

	w, _ := do(t, f.server().Handler(), http.MethodGet, "/health", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "OK", w.Body.String())
}

func TestMetrics(t *testing.T) {
	f := newFixture(t)

	w, _ := do(t, f.server().Handler(), http.MethodGet, "/metrics", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "go_goroutines")
}

func TestGetInstagramData(t *testing.T) {
	f := newFixture(t)
	f.scraper.data.Data = append(f.scraper.data.Data, []byte(`{"displayUrl":"https://cdn/1.jpg"}`))

	w, body := do(t, f.server().Handler(), http.MethodGet, "/instagram/foodie", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "foodie", body["username"])
	assert.Len(t, body["data"], 1)
}

func TestGetInstagramDataError(t *testing.T) {
	f := newFixture(t)
	f.scraper.err = errors.New("actor down")

	w, body := do(t, f.server().Handler(), http.MethodGet, "/instagram/foodie", nil)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, body["message"], "actor down")
}

func TestAnalyzeUser(t *testing.T) {
	f := newFixture(t)

	w, body := do(t, f.server().Handler(), http.MethodGet, "/instagram/foodie/analysis", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "foodie", body["username"])
	assert.Equal(t, "Health conscious", body["analysis"])
	assert.Equal(t, "success", body["outcome"])
	assert.Len(t, f.profiler.posts, 1)
}

func TestRecommendForUserSkipsFailedAnalysis(t *testing.T) {
	f := newFixture(t)
	f.profiler.analysis = models.Analysis{Outcome: models.OutcomeNoPosts, Text: profiler.NoPostsText}

	w, body := do(t, f.server().Handler(), http.MethodGet, "/instagram/foodie/restaurant-recommendations", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, body["recommendations"])
	assert.Zero(t, f.recommender.calls)
}

func TestRecommendForUser(t *testing.T) {
	f := newFixture(t)

	w, body := do(t, f.server().Handler(), http.MethodGet, "/instagram/foodie/restaurant-recommendations", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, body["recommendations"], 1)
	assert.Equal(t, "Health conscious", f.recommender.analysis)
}

func TestRecommendFromAnalysis(t *testing.T) {
	f := newFixture(t)
	h := f.server().Handler()

	w, body := do(t, h, http.MethodPost, "/restaurant-recommendations?analysis=Vegan", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, body["recommendations"], 1)
	assert.Equal(t, "Vegan", f.recommender.analysis)

	w, _ = do(t, h, http.MethodPost, "/restaurant-recommendations", map[string]string{"analysis": "Carnivore"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Carnivore", f.recommender.analysis)

	w, body = do(t, h, http.MethodPost, "/restaurant-recommendations", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, body["message"], "analysis")
}

func TestRecommendFromFile(t *testing.T) {
	f := newFixture(t)
	path := filepath.Join(f.cfg.Output.Dir, "analysis_output.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"analysis":"Pastry fan"}`), 0o644))
	h := f.server().Handler()

	w, body := do(t, h, http.MethodPost, "/restaurant-recommendations/from-file", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "analysis_output.json", body["analysis_file"])
	assert.Equal(t, "Pastry fan", f.recommender.analysis)

	w, _ = do(t, h, http.MethodPost, "/restaurant-recommendations/from-file?analysis_file="+path, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = do(t, h, http.MethodPost, "/restaurant-recommendations/from-file?analysis_file=/etc/passwd", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = do(t, h, http.MethodPost, "/restaurant-recommendations/from-file?analysis_file=missing.json", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestAnalyzeTestData(t *testing.T) {
	f := newFixture(t)
	f.cfg.Profiler.TestDataPath = filepath.Join(t.TempDir(), "ig_test_data.json")
	require.NoError(t, os.WriteFile(f.cfg.Profiler.TestDataPath,
		[]byte(`{"username":"sample","data":[{"displayUrl":"u","caption":"c"},{"displayUrl":"v"}]}`), 0o644))

	w, body := do(t, f.server().Handler(), http.MethodPost, "/instagram/analyze-test-data?output_file=run.json", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Health conscious", body["analysis"])
	assert.Equal(t, filepath.Join(f.cfg.Output.Dir, "run.json"), body["output_file"])
	assert.Len(t, f.profiler.posts, 2)
}

func TestAnalyzeTestDataMissingFile(t *testing.T) {
	f := newFixture(t)
	f.cfg.Profiler.TestDataPath = filepath.Join(t.TempDir(), "absent.json")

	w, _ := do(t, f.server().Handler(), http.MethodPost, "/instagram/analyze-test-data", nil)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestFullService(t *testing.T) {
	f := newFixture(t)
	h := f.server().Handler()

	w, body := do(t, h, http.MethodGet, "/instagram/foodie/full-service?save_outputs=false&prompt=Be+brief", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "foodie", body["username"])
	assert.Equal(t, "run-1", body["run_id"])
	assert.Len(t, body["recommendations"], 1)
	assert.NotContains(t, body, "error")
	assert.False(t, f.runner.opts.Save)
	assert.Equal(t, "Be brief", f.runner.opts.Prompt)
	assert.Equal(t, f.cfg.Output.Dir, f.runner.opts.OutputDir)
}

func TestFullServiceOutputDir(t *testing.T) {
	f := newFixture(t)
	h := f.server().Handler()

	inside := filepath.Join(f.cfg.Output.Dir, "alice")
	w, _ := do(t, h, http.MethodGet, "/instagram/foodie/full-service?output_dir="+inside, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, inside, f.runner.opts.OutputDir)
	assert.True(t, f.runner.opts.Save)

	w, _ = do(t, h, http.MethodGet, "/instagram/foodie/full-service?output_dir=bob", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, filepath.Join(f.cfg.Output.Dir, "bob"), f.runner.opts.OutputDir)

	w, _ = do(t, h, http.MethodGet, "/instagram/foodie/full-service?output_dir=/tmp", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = do(t, h, http.MethodGet, "/instagram/foodie/full-service?save_outputs=maybe", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestFullServiceStageFailure(t *testing.T) {
	f := newFixture(t)
	f.runner.result = &models.RunResult{
		RunID:           "run-2",
		Recommendations: []models.Recommendation{},
		Artifacts:       models.RunArtifacts{models.StageError: "outputs/foodie_error.json"},
		FailedStage:     models.StageAnalysis,
		Err:             errors.New("No posts found in the provided data."),
	}

	w, body := do(t, f.server().Handler(), http.MethodGet, "/instagram/foodie/full-service", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "No posts found in the provided data.", body["error"])
	assert.Equal(t, models.StageAnalysis, body["failed_stage"])
	assert.Empty(t, body["recommendations"])
}

func TestFullServiceRunError(t *testing.T) {
	f := newFixture(t)
	f.runner.err = errors.New("mkdir denied")

	w, body := do(t, f.server().Handler(), http.MethodGet, "/instagram/foodie/full-service", nil)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, body["message"], "mkdir denied")
}

func TestRewrite(t *testing.T) {
	f := newFixture(t)
	analysisPath := filepath.Join(f.cfg.Output.Dir, "foodie_analysis_x.json")
	require.NoError(t, os.WriteFile(analysisPath, []byte(`{"analysis":"Likes sushi"}`), 0o644))

	w, body := do(t, f.server().Handler(), http.MethodPost, "/rewrite", map[string]any{
		"username": "foodie",
		"recommendations": []map[string]string{
			{"restaurant_name": "Sushi Bar", "restaurant_location": "CBD", "restaurant_description": "Fish", "preference": "like"},
			{"restaurant_name": "Burger Joint", "restaurant_location": "CBD", "restaurant_description": "Beef"},
		},
		"output_files": map[string]string{"analysis": analysisPath},
	})

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, config.DefaultProfilerPrompt, body["current_prompt"])
	assert.Equal(t, "Better prompt", body["response"])
	assert.Equal(t, "foodie", f.refiner.req.Username)
	assert.Equal(t, "Likes sushi", f.refiner.req.Analysis)
	assert.Len(t, f.refiner.req.Feedback, 2)
	assert.False(t, f.refiner.req.SampleFeedback)
}

func TestRewriteSampleFeedbackOverride(t *testing.T) {
	f := newFixture(t)

	w, _ := do(t, f.server().Handler(), http.MethodPost, "/rewrite", map[string]any{
		"username":        "foodie",
		"sample_feedback": true,
	})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, f.refiner.req.SampleFeedback)
}

func TestRewriteErrors(t *testing.T) {
	f := newFixture(t)
	h := f.server().Handler()

	w, _ := do(t, h, http.MethodPost, "/rewrite", map[string]any{
		"recommendations": []map[string]string{{"restaurant_name": "x", "preference": "meh"}},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	f.refiner.err = refine.ErrNoFeedback
	w, _ = do(t, h, http.MethodPost, "/rewrite", map[string]any{"username": "foodie"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	f.refiner.err = errors.New("model offline")
	w, body := do(t, h, http.MethodPost, "/rewrite", map[string]any{"username": "foodie"})
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, body["message"], "model offline")
}

func TestIPAllowlist(t *testing.T) {
	f := newFixture(t)
	f.cfg.Server.IPAllowlistEnabled = true
	f.cfg.Server.AllowedIPs = []string{"10.0.0.7"}
	h := f.server().Handler()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.RemoteAddr = "10.0.0.7:5555"
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.RemoteAddr = "10.0.0.8:5555"
	req.Header.Set("X-Forwarded-For", "10.0.0.7")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestCORS(t *testing.T) {
	f := newFixture(t)
	f.cfg.Server.CORSAllowedOrigins = []string{"https://app.example"}
	h := f.server().Handler()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://app.example")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, "https://app.example", w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://evil.example")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestRateLimit(t *testing.T) {
	f := newFixture(t)
	f.cfg.Server.RateLimitRequests = 1
	h := f.server().Handler()

	w, _ := do(t, h, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = do(t, h, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}
