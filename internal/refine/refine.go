// Package refine rewrites the profiling prompt from user feedback on a set
// of recommendations.
package refine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/goccy/go-json"

	"github.com/BerylCAtieno/taste-profiler/internal/llm"
	"github.com/BerylCAtieno/taste-profiler/internal/models"
)

var ErrNoFeedback = errors.New("no recommendations with a preference were provided")

// SampleFeedback stands in for real feedback when a caller asks for it.
var SampleFeedback = []models.Feedback{
	{
		Recommendation: models.Recommendation{
			RestaurantName:        "Sample Restaurant 1",
			RestaurantLocation:    "Sample Location 1",
			RestaurantDescription: "Sample description 1",
		},
		Preference: models.PreferenceLike,
	},
	{
		Recommendation: models.Recommendation{
			RestaurantName:        "Sample Restaurant 2",
			RestaurantLocation:    "Sample Location 2",
			RestaurantDescription: "Sample description 2",
		},
		Preference: models.PreferenceDislike,
	},
}

type Request struct {
	OriginalPrompt string
	Username       string
	Analysis       string
	// Feedback entries without a preference are ignored.
	Feedback       []models.Feedback
	SampleFeedback bool
}

type validatedRecommendation struct {
	RestaurantName        string `json:"restaurant_name"`
	RestaurantLocation    string `json:"restaurant_location"`
	RestaurantDescription string `json:"restaurant_description"`
	Correct               bool   `json:"correct"`
}

type Refiner struct {
	generator llm.Generator
}

func New(generator llm.Generator) *Refiner {
	return &Refiner{generator: generator}
}

// Refine returns the model's revised prompt, trimmed.
func (r *Refiner) Refine(ctx context.Context, req Request) (string, error) {
	feedback := reviewed(req.Feedback)
	if len(feedback) == 0 {
		if !req.SampleFeedback {
			return "", ErrNoFeedback
		}
		feedback = reviewed(SampleFeedback)
	}

	prompt, err := buildPrompt(req, feedback)
	if err != nil {
		return "", err
	}

	text, err := r.generator.Generate(ctx, llm.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("failed to rewrite prompt: %w", err)
	}
	return strings.TrimSpace(text), nil
}

func reviewed(feedback []models.Feedback) []validatedRecommendation {
	out := make([]validatedRecommendation, 0, len(feedback))
	for _, f := range feedback {
		if f.Preference == "" {
			continue
		}
		out = append(out, validatedRecommendation{
			RestaurantName:        f.RestaurantName,
			RestaurantLocation:    f.RestaurantLocation,
			RestaurantDescription: f.RestaurantDescription,
			Correct:               f.Correct(),
		})
	}
	return out
}

func buildPrompt(req Request, feedback []validatedRecommendation) (string, error) {
	data, err := json.MarshalIndent(struct {
		Username        string                    `json:"username"`
		Recommendations []validatedRecommendation `json:"recommendations"`
	}{req.Username, feedback}, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode feedback: %w", err)
	}
	prompt, err := json.Marshal(req.OriginalPrompt)
	if err != nil {
		return "", fmt.Errorf("failed to encode prompt: %w", err)
	}
	analysis, err := json.Marshal(map[string]string{"analysis": req.Analysis})
	if err != nil {
		return "", fmt.Errorf("failed to encode analysis: %w", err)
	}

	var b strings.Builder
	b.WriteString("Assume I have this recommended customer data and a list of recommendations that have been validated ")
	b.WriteString("to be either a correct or incorrect recommendation (see correct property for each)-\n")
	b.Write(data)
	b.WriteString("\n\nIn order to generate these recommendations, I used the prompt- ")
	b.Write(prompt)
	b.WriteString(".\n\nWhich generated this customer profile-\n")
	b.Write(analysis)
	b.WriteString(".\n\nPlease generate a new prompt that takes into account the recommendation validations that I was ")
	b.WriteString("provided in the recommendations data, the current prompt, and the customer profile. ")
	b.WriteString("Generate this prompt string and this prompt string only.")
	return b.String(), nil
}
