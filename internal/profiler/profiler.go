// Package profiler turns a handful of post images and captions into a
// free-text customer profile using a multimodal model.
package profiler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"github.com/BerylCAtieno/taste-profiler/internal/artifact"
	"github.com/BerylCAtieno/taste-profiler/internal/imagefetch"
	"github.com/BerylCAtieno/taste-profiler/internal/llm"
	"github.com/BerylCAtieno/taste-profiler/internal/models"
)

// DefaultMaxPosts caps how many posts are sent to the model.
const DefaultMaxPosts = 5

const (
	NoPostsText  = "No posts found in the provided data."
	NoImagesText = "Could not process any images from the provided posts."
)

var (
	ErrNoPosts  = errors.New(NoPostsText)
	ErrNoImages = errors.New(NoImagesText)
)

// ImageFetcher downloads a post image.
type ImageFetcher interface {
	Fetch(ctx context.Context, url string) (imagefetch.Image, error)
}

type Profiler struct {
	generator llm.Generator
	fetcher   ImageFetcher
	prompt    string
	maxPosts  int
	now       func() time.Time
}

func New(generator llm.Generator, fetcher ImageFetcher, prompt string, maxPosts int) *Profiler {
	if maxPosts <= 0 {
		maxPosts = DefaultMaxPosts
	}
	return &Profiler{
		generator: generator,
		fetcher:   fetcher,
		prompt:    prompt,
		maxPosts:  maxPosts,
		now:       time.Now,
	}
}

type options struct {
	savePath string
	prompt   string
}

type Option func(*options)

// WithSavePath writes the analysis (or the failure) to path as JSON.
func WithSavePath(path string) Option {
	return func(o *options) {
		o.savePath = path
	}
}

// WithPrompt overrides the instruction for a single call.
func WithPrompt(prompt string) Option {
	return func(o *options) {
		o.prompt = prompt
	}
}

type savedAnalysis struct {
	Timestamp string `json:"timestamp"`
	Analysis  string `json:"analysis"`
	PostCount int    `json:"post_count"`
}

type savedError struct {
	Timestamp string `json:"timestamp"`
	Error     string `json:"error"`
}

// Analyze never returns an error: the outcome and text on the Analysis say
// what happened.
func (p *Profiler) Analyze(ctx context.Context, posts []models.Post, opts ...Option) models.Analysis {
	o := options{prompt: p.prompt}
	for _, opt := range opts {
		opt(&o)
	}

	if len(posts) == 0 {
		return models.Analysis{Outcome: models.OutcomeNoPosts, Text: NoPostsText, Err: ErrNoPosts}
	}

	considered := posts
	if len(considered) > p.maxPosts {
		considered = considered[:p.maxPosts]
	}

	parts := p.buildParts(ctx, o.prompt, considered)
	if len(parts) <= 1 {
		log.Warn().Int("posts", len(posts)).Msg("no post images could be fetched")
		return models.Analysis{Outcome: models.OutcomeNoImages, Text: NoImagesText, Err: ErrNoImages}
	}

	text, err := p.generator.Generate(ctx, parts...)
	if err != nil {
		analysis := models.Analysis{
			Outcome: models.OutcomeFailed,
			Text:    fmt.Sprintf("Error analyzing posts: %v", err),
			Err:     err,
		}
		log.Error().Err(err).Msg("failed to analyze posts")
		if o.savePath != "" {
			p.save(o.savePath, savedError{Timestamp: p.now().Format(time.RFC3339), Error: analysis.Text})
		}
		return analysis
	}

	analysis := models.Analysis{
		Outcome:   models.OutcomeSuccess,
		Text:      text,
		PostCount: len(considered),
	}
	if o.savePath != "" {
		p.save(o.savePath, savedAnalysis{
			Timestamp: p.now().Format(time.RFC3339),
			Analysis:  analysis.Text,
			PostCount: analysis.PostCount,
		})
	}
	return analysis
}

// buildParts returns the instruction followed by an image and caption label
// for every post whose image could be fetched.
func (p *Profiler) buildParts(ctx context.Context, prompt string, posts []models.Post) []llm.Part {
	parts := []llm.Part{llm.Text(prompt)}
	for i, post := range posts {
		if post.DisplayURL == "" {
			continue
		}
		img, err := p.fetcher.Fetch(ctx, post.DisplayURL)
		if err != nil {
			continue
		}
		parts = append(parts,
			llm.Image(img.MIMEType, img.Data),
			llm.Text(captionLabel(i+1, post.Caption)),
		)
	}
	return parts
}

// captionLabel quotes the caption so its text cannot pass as instructions.
func captionLabel(n int, caption string) string {
	quoted, err := json.Marshal(caption)
	if err != nil {
		quoted = []byte(`""`)
	}
	return fmt.Sprintf("Post %d Caption: %s", n, quoted)
}

func (p *Profiler) save(path string, v any) {
	if err := artifact.WriteJSON(path, v); err != nil {
		log.Error().Err(err).Str("path", path).Msg("failed to save analysis")
		return
	}
	log.Info().Str("path", path).Msg("analysis saved")
}
