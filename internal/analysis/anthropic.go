package analysis

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// Analyzer is the external coaching model. It returns the model's raw text.
type Analyzer interface {
	Analyze(ctx context.Context, req Request) (string, error)
}

const defaultAnalysisTokens = 4096

// AnthropicClient calls the Anthropic Messages API.
type AnthropicClient struct {
	client    anthropic.Client
	model     string
	maxTokens int64
}

// NewAnthropicClient creates a Messages API client. An empty baseURL uses the
// public endpoint. The SDK does not retry; the Runner owns retries, and callers
// bound each call with a context deadline.
func NewAnthropicClient(baseURL, apiKey, model string, maxTokens int) *AnthropicClient {
	if maxTokens <= 0 {
		maxTokens = defaultAnalysisTokens
	}
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
		option.WithHTTPClient(&http.Client{Timeout: 2 * time.Minute}),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimRight(baseURL, "/")+"/"))
	}
	return &AnthropicClient{
		client:    anthropic.NewClient(opts...),
		model:     model,
		maxTokens: int64(maxTokens),
	}
}

// Analyze sends the request and returns the concatenated text blocks.
func (c *AnthropicClient) Analyze(ctx context.Context, req Request) (string, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: c.maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}

	msg, err := c.client.Messages.New(ctx, params)
	if err != nil {
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			return "", fmt.Errorf("anthropic: status %d: %w", apiErr.StatusCode, err)
		}
		return "", fmt.Errorf("anthropic: send request: %w", err)
	}

	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	if sb.Len() == 0 {
		return "", fmt.Errorf("anthropic: empty response (stop reason %q)", msg.StopReason)
	}
	return sb.String(), nil
}
