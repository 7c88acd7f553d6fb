// Package api exposes the pipeline and its stages over HTTP.
package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/BerylCAtieno/taste-profiler/internal/artifact"
	"github.com/BerylCAtieno/taste-profiler/internal/config"
	"github.com/BerylCAtieno/taste-profiler/internal/models"
	"github.com/BerylCAtieno/taste-profiler/internal/pipeline"
	"github.com/BerylCAtieno/taste-profiler/internal/refine"
)

type Runner interface {
	Run(ctx context.Context, username string, opts pipeline.Options) (*models.RunResult, error)
}

type Refiner interface {
	Refine(ctx context.Context, req refine.Request) (string, error)
}

// Dependencies are the collaborators behind the routes.
type Dependencies struct {
	Scraper     pipeline.ProfileFetcher
	Profiler    pipeline.Analyzer
	Recommender pipeline.Recommender
	Refiner     Refiner
	Pipeline    Runner
}

type Server struct {
	cfg    *config.Config
	deps   Dependencies
	store  *artifact.Store
	engine *gin.Engine
}

func NewServer(cfg *config.Config, deps Dependencies) *Server {
	s := &Server{
		cfg:   cfg,
		deps:  deps,
		store: artifact.NewStore(cfg.Output.Dir),
	}
	s.engine = s.routes()
	return s
}

// Router returns the gin engine so other surfaces can register routes on it.
func (s *Server) Router() *gin.Engine {
	return s.engine
}

// Handler wraps the router with CORS and the optional per-IP rate limit.
func (s *Server) Handler() http.Handler {
	var h http.Handler = s.engine

	if s.cfg.Server.RateLimitRequests > 0 {
		h = httprate.LimitByIP(s.cfg.Server.RateLimitRequests, s.cfg.Server.RateLimitWindow)(h)
	}

	return cors.Handler(cors.Options{
		AllowedOrigins:   s.cfg.Server.CORSAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
		MaxAge:           300,
	})(h)
}

func (s *Server) routes() *gin.Engine {
	router := gin.New()
	// ClientIP must come from the connection for the allow-list to mean anything.
	_ = router.SetTrustedProxies(nil)

	router.Use(gin.Recovery(), RequestLogger())
	if s.cfg.Server.IPAllowlistEnabled {
		router.Use(IPAllowlist(s.cfg.Server.AllowedIPs))
	}

	router.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	ig := router.Group("/instagram")
	ig.GET("/:username", s.getInstagramData)
	ig.GET("/:username/analysis", s.analyzeUser)
	ig.GET("/:username/restaurant-recommendations", s.recommendForUser)
	ig.GET("/:username/full-service", s.fullService)
	ig.POST("/analyze-test-data", s.analyzeTestData)

	router.POST("/restaurant-recommendations", s.recommendFromAnalysis)
	router.POST("/restaurant-recommendations/from-file", s.recommendFromFile)
	router.POST("/rewrite", s.rewritePrompt)

	return router
}
