// Package recommend asks a text model for restaurant recommendations that
// suit a customer profile.
package recommend

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"github.com/BerylCAtieno/taste-profiler/internal/llm"
	"github.com/BerylCAtieno/taste-profiler/internal/models"
)

// ErrNotArray is returned when the reply does not hold a JSON array.
var ErrNotArray = errors.New("recommendations are not a JSON array")

const schema = "{restaurant_name : string, restaurant_location  : string, restaurant_description : string }[]"

// element mirrors one array entry. Pointer fields let validation tell a
// missing key from an empty string.
type element struct {
	RestaurantName        *string `json:"restaurant_name" validate:"required"`
	RestaurantLocation    *string `json:"restaurant_location" validate:"required"`
	RestaurantDescription *string `json:"restaurant_description" validate:"required"`
}

type Recommender struct {
	generator llm.Generator
	validate  *validator.Validate
}

func New(generator llm.Generator) *Recommender {
	return &Recommender{
		generator: generator,
		validate:  validator.New(),
	}
}

// Recommend returns the parsed list, or an empty non-nil list on any failure.
func (r *Recommender) Recommend(ctx context.Context, analysis string) []models.Recommendation {
	recs, err := r.Generate(ctx, analysis)
	if err != nil {
		log.Error().Err(err).Msg("failed to generate restaurant recommendations")
		return []models.Recommendation{}
	}
	return recs
}

func (r *Recommender) Generate(ctx context.Context, analysis string) ([]models.Recommendation, error) {
	text, err := r.generator.Generate(ctx, llm.Text(buildPrompt(analysis)))
	if err != nil {
		return nil, fmt.Errorf("failed to generate recommendations: %w", err)
	}
	return r.Parse(text)
}

// Parse extracts the JSON array from a model reply. Every element must carry
// all three keys as strings or the reply is rejected. Empty strings are kept.
func (r *Recommender) Parse(text string) ([]models.Recommendation, error) {
	raw := ExtractJSON(text)
	if !strings.HasPrefix(raw, "[") {
		return nil, ErrNotArray
	}
	var elems []element
	if err := json.Unmarshal([]byte(raw), &elems); err != nil {
		return nil, fmt.Errorf("failed to parse recommendations: %w", err)
	}
	recs := make([]models.Recommendation, 0, len(elems))
	for i, e := range elems {
		if err := r.validate.Struct(e); err != nil {
			return nil, fmt.Errorf("recommendation %d is incomplete: %w", i, err)
		}
		recs = append(recs, models.Recommendation{
			RestaurantName:        *e.RestaurantName,
			RestaurantLocation:    *e.RestaurantLocation,
			RestaurantDescription: *e.RestaurantDescription,
		})
	}
	return recs, nil
}

func buildPrompt(analysis string) string {
	quoted, err := json.Marshal(analysis)
	if err != nil {
		quoted = []byte(`""`)
	}
	return fmt.Sprintf("Given I have a customer with this profile-   \"analysis\": %s,\n"+
		"Generate a list of best restaurant recommendations. Please output this as JSON with this schema- %s. "+
		"Generate this JSON array and this JSON only.", quoted, schema)
}

// ExtractJSON strips a markdown code fence from text. A "```json" fence wins
// over a bare one. Without a closing fence the final byte is dropped.
func ExtractJSON(text string) string {
	for _, fence := range []string{"```json", "```"} {
		idx := strings.Index(text, fence)
		if idx < 0 {
			continue
		}
		start := idx + len(fence)
		end := strings.Index(text[start:], "```")
		if end < 0 {
			end = len(text) - 1
			if end < start {
				return ""
			}
			return strings.TrimSpace(text[start:end])
		}
		return strings.TrimSpace(text[start : start+end])
	}
	return strings.TrimSpace(text)
}
