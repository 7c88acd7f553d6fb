package gemini

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/rs/zerolog/log"
	"google.golang.org/api/option"

	"github.com/BerylCAtieno/taste-profiler/internal/llm"
	"github.com/BerylCAtieno/taste-profiler/internal/metrics"
)

const backendName = "gemini"

type Options struct {
	Model           string
	Temperature     float32
	TopP            float32
	MaxOutputTokens int32
}

type Client struct {
	client *genai.Client
	model  *genai.GenerativeModel
}

func NewClient(ctx context.Context, apiKey string, opts Options, clientOpts ...option.ClientOption) (*Client, error) {
	clientOpts = append([]option.ClientOption{option.WithAPIKey(apiKey)}, clientOpts...)
	client, err := genai.NewClient(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	model := client.GenerativeModel(opts.Model)
	model.SetTemperature(opts.Temperature)
	model.SetTopP(opts.TopP)
	model.SetMaxOutputTokens(opts.MaxOutputTokens)

	return &Client{
		client: client,
		model:  model,
	}, nil
}

func (g *Client) Close() error {
	return g.client.Close()
}

func (g *Client) Generate(ctx context.Context, parts ...llm.Part) (string, error) {
	resp, err := g.model.GenerateContent(ctx, toGenaiParts(parts)...)
	if err != nil {
		metrics.LLMRequests.WithLabelValues(backendName, "error").Inc()
		return "", fmt.Errorf("failed to generate content: %w", err)
	}

	text := responseText(resp)
	if text == "" {
		metrics.LLMRequests.WithLabelValues(backendName, "empty").Inc()
		return "", llm.ErrEmptyResponse
	}

	metrics.LLMRequests.WithLabelValues(backendName, "ok").Inc()
	log.Debug().Str("backend", backendName).Int("chars", len(text)).Msg("generation complete")
	return text, nil
}

func toGenaiParts(parts []llm.Part) []genai.Part {
	out := make([]genai.Part, 0, len(parts))
	for _, p := range parts {
		if p.IsImage() {
			out = append(out, genai.Blob{MIMEType: p.MIMEType, Data: p.Data})
			continue
		}
		out = append(out, genai.Text(p.Text))
	}
	return out
}

// responseText joins the text parts of the first candidate.
func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}

	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			b.WriteString(string(t))
		}
	}
	return b.String()
}
