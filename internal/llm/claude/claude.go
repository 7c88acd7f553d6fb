package claude

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/liushuangls/go-anthropic/v2"

	"github.com/BerylCAtieno/taste-profiler/internal/llm"
	"github.com/BerylCAtieno/taste-profiler/internal/metrics"
)

const backendName = "claude"

type Client struct {
	client    *anthropic.Client
	model     string
	maxTokens int
}

func NewClient(apiKey, model string, maxTokens int, opts ...anthropic.ClientOption) *Client {
	return &Client{
		client:    anthropic.NewClient(apiKey, opts...),
		model:     model,
		maxTokens: maxTokens,
	}
}

func (c *Client) Generate(ctx context.Context, parts ...llm.Part) (string, error) {
	resp, err := c.client.CreateMessages(ctx, anthropic.MessagesRequest{
		Model:     anthropic.Model(c.model),
		MaxTokens: c.maxTokens,
		Messages: []anthropic.Message{{
			Role:    anthropic.RoleUser,
			Content: buildContent(parts),
		}},
	})
	if err != nil {
		metrics.LLMRequests.WithLabelValues(backendName, "error").Inc()
		return "", fmt.Errorf("failed to call claude: %w", err)
	}

	var b strings.Builder
	for _, blk := range resp.Content {
		if blk.Type == anthropic.MessagesContentTypeText {
			b.WriteString(blk.GetText())
		}
	}
	if b.Len() == 0 {
		metrics.LLMRequests.WithLabelValues(backendName, "empty").Inc()
		return "", llm.ErrEmptyResponse
	}

	metrics.LLMRequests.WithLabelValues(backendName, "ok").Inc()
	return b.String(), nil
}

func buildContent(parts []llm.Part) []anthropic.MessageContent {
	content := make([]anthropic.MessageContent, 0, len(parts))
	for _, p := range parts {
		if p.IsImage() {
			content = append(content, anthropic.NewImageMessageContent(
				anthropic.NewMessageContentSource(
					anthropic.MessagesContentSourceTypeBase64,
					normaliseMIME(p.MIMEType),
					base64.StdEncoding.EncodeToString(p.Data),
				),
			))
			continue
		}
		content = append(content, anthropic.NewTextMessageContent(p.Text))
	}
	return content
}

// normaliseMIME maps image types to the set the Messages API accepts,
// falling back to jpeg.
func normaliseMIME(mimeType string) string {
	switch mimeType {
	case "image/png", "image/gif", "image/webp":
		return mimeType
	default:
		return "image/jpeg"
	}
}
