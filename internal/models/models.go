package models

import (
	"time"

	"github.com/goccy/go-json"
)

// Post is the slice of a scraped post the profiler looks at.
type Post struct {
	DisplayURL string `json:"displayUrl"`
	Caption    string `json:"caption"`
}

// ProfileData is what the scraper returns for one handle. Data keeps the raw
// items so the instagram_data artifact stores everything the scraper sent.
type ProfileData struct {
	Username string            `json:"username"`
	Data     []json.RawMessage `json:"data"`
	Posts    []Post            `json:"-"`
}

type Recommendation struct {
	RestaurantName        string `json:"restaurant_name"`
	RestaurantLocation    string `json:"restaurant_location"`
	RestaurantDescription string `json:"restaurant_description"`
}

// Preference labels a recommendation the user has reviewed.
type Preference string

const (
	PreferenceLike    Preference = "like"
	PreferenceDislike Preference = "dislike"
)

type Feedback struct {
	Recommendation
	Preference Preference `json:"preference" binding:"omitempty,oneof=like dislike"`
}

// Correct reports whether the user liked the recommendation.
func (f Feedback) Correct() bool {
	return f.Preference == PreferenceLike
}

// Outcome tags how an analysis ended.
type Outcome string

const (
	OutcomeSuccess  Outcome = "success"
	OutcomeNoPosts  Outcome = "no_posts"
	OutcomeNoImages Outcome = "no_images"
	OutcomeFailed   Outcome = "failed"
)

// Analysis is the Vision Profiler's result. Text is always displayable: the
// model output, a fixed notice for the empty outcomes, or an error message.
type Analysis struct {
	Outcome   Outcome `json:"outcome"`
	Text      string  `json:"analysis"`
	PostCount int     `json:"post_count"`
	Err       error   `json:"-"`
}

func (a Analysis) OK() bool {
	return a.Outcome == OutcomeSuccess
}

// Stage names double as RunArtifacts keys.
const (
	StageInstagramData   = "instagram_data"
	StageAnalysis        = "analysis"
	StageRecommendations = "recommendations"
	StageError           = "error"
)

// RunArtifacts maps a stage name to the artifact file written for it.
type RunArtifacts map[string]string

type RunResult struct {
	RunID           string           `json:"run_id"`
	Username        string           `json:"username"`
	StartedAt       time.Time        `json:"started_at"`
	Timestamp       string           `json:"timestamp"`
	Recommendations []Recommendation `json:"recommendations"`
	Artifacts       RunArtifacts     `json:"output_files"`
	FailedStage     string           `json:"failed_stage,omitempty"`
	Err             error            `json:"-"`
}

func (r *RunResult) Failed() bool {
	return r.Err != nil
}
