package pipeline

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/BerylCAtieno/taste-profiler/internal/imagefetch"
	"github.com/BerylCAtieno/taste-profiler/internal/llm"
	"github.com/BerylCAtieno/taste-profiler/internal/models"
	"github.com/BerylCAtieno/taste-profiler/internal/profiler"
	"github.com/BerylCAtieno/taste-profiler/internal/recommend"
)

// fakeModel answers multimodal requests with a profile and text-only
// requests with a fenced recommendation list.
func fakeModel(t *testing.T) llm.Generator {
	return llm.GeneratorFunc(func(_ context.Context, parts ...llm.Part) (string, error) {
		for _, p := range parts {
			if p.IsImage() {
				assert.Equal(t, `Post 1 Caption: "Lunch today!"`, parts[len(parts)-1].Text)
				return "Enjoys casual lunches with friends.", nil
			}
		}
		return "```json\n" + `[{"restaurant_name":"Cafe Deli","restaurant_location":"Nairobi CBD","restaurant_description":"Sandwiches and salads"}]` + "\n```", nil
	})
}

func TestRunEndToEnd(t *testing.T) {
	images := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte("\x89PNG\r\n\x1a\nfake"))
	}))
	defer images.Close()

	posts := []models.Post{{DisplayURL: images.URL + "/lunch.png", Caption: "Lunch today!"}}
	fetcher := new(MockFetcher)
	fetcher.On("FetchProfile", mock.Anything, "foodie").Return(&models.ProfileData{Username: "foodie", Posts: posts}, nil)

	model := fakeModel(t)
	o := New(
		fetcher,
		profiler.New(model, imagefetch.NewFetcher(5*time.Second), "Describe this customer.", 5),
		recommend.New(model),
		t.TempDir(),
	)

	result, err := o.Run(context.Background(), "foodie", Options{Save: true})
	require.NoError(t, err)
	require.False(t, result.Failed())

	require.NotEmpty(t, result.Recommendations)
	for _, rec := range result.Recommendations {
		assert.NotEmpty(t, rec.RestaurantName)
		assert.NotEmpty(t, rec.RestaurantLocation)
		assert.NotEmpty(t, rec.RestaurantDescription)
	}
	assert.Len(t, result.Artifacts, 3)
}
