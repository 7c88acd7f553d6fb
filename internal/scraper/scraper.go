package scraper

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"github.com/BerylCAtieno/taste-profiler/internal/models"
)

var ErrMissingToken = errors.New("scraper token is not configured")

// runInput is the Instagram scraper actor's input document.
type runInput struct {
	DirectURLs    []string `json:"directUrls"`
	ResultsType   string   `json:"resultsType"`
	ResultsLimit  int      `json:"resultsLimit"`
	SearchType    string   `json:"searchType"`
	SearchLimit   int      `json:"searchLimit"`
	AddParentData bool     `json:"addParentData"`
}

type Options struct {
	BaseURL      string
	Token        string
	ActorID      string
	ResultsLimit int
}

// Client runs the Apify Instagram actor synchronously and returns its dataset.
type Client struct {
	opts   Options
	client *http.Client
}

func NewClient(opts Options) *Client {
	return &Client{
		opts:   opts,
		client: &http.Client{},
	}
}

func (c *Client) FetchProfile(ctx context.Context, username string) (*models.ProfileData, error) {
	if c.opts.Token == "" {
		return nil, ErrMissingToken
	}

	payload, err := json.Marshal(runInput{
		DirectURLs:    []string{"https://www.instagram.com/" + url.PathEscape(username)},
		ResultsType:   "posts",
		ResultsLimit:  c.opts.ResultsLimit,
		SearchType:    "hashtag",
		SearchLimit:   1,
		AddParentData: false,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal run input: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(), bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.opts.Token)

	log.Info().Str("username", username).Str("actor", c.opts.ActorID).Msg("running scraper actor")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call scraper: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("scraper returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var items []json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&items); err != nil {
		return nil, fmt.Errorf("failed to decode scraper response: %w", err)
	}

	posts, err := ParsePosts(items)
	if err != nil {
		return nil, err
	}

	log.Info().Str("username", username).Int("posts", len(posts)).Msg("scraper returned posts")
	return &models.ProfileData{
		Username: username,
		Data:     items,
		Posts:    posts,
	}, nil
}

// endpoint carries no credentials, so transport errors that quote the URL
// are safe to surface.
func (c *Client) endpoint() string {
	return fmt.Sprintf("%s/v2/acts/%s/run-sync-get-dataset-items",
		strings.TrimRight(c.opts.BaseURL, "/"), url.PathEscape(c.opts.ActorID))
}

// ParsePosts extracts display URL and caption from raw dataset items.
func ParsePosts(items []json.RawMessage) ([]models.Post, error) {
	posts := make([]models.Post, 0, len(items))
	for i, raw := range items {
		var p models.Post
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("failed to decode post %d: %w", i, err)
		}
		posts = append(posts, p)
	}
	return posts, nil
}

// LoadProfileData decodes a saved {username, data} document, such as an
// instagram_data artifact or the bundled test data.
func LoadProfileData(data []byte) (*models.ProfileData, error) {
	var pd models.ProfileData
	if err := json.Unmarshal(data, &pd); err != nil {
		// A bare array of items is accepted too.
		var items []json.RawMessage
		if arrErr := json.Unmarshal(data, &items); arrErr != nil {
			return nil, fmt.Errorf("failed to decode profile data: %w", err)
		}
		pd.Data = items
	}

	posts, err := ParsePosts(pd.Data)
	if err != nil {
		return nil, err
	}
	pd.Posts = posts
	return &pd, nil
}
