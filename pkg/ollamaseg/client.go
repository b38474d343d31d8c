package ollamaseg

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/ollama/ollama/api"
	"go.uber.org/zap"

	"github.com/vler0ux/modetrend/pkg/types"
)

// DefaultModel is the local vision model used when none is configured
const DefaultModel = "llava"

// DefaultPrompt asks the vision model for the same shape of answer the
// hosted segmentation endpoint returns
const DefaultPrompt = `You are a clothing segmentation assistant.

List every garment and visible body region in this image.

Return JSON only: an array of objects, each with
  "label": lowercase garment or region name (e.g. "shirt", "pants", "hair"),
  "score": your confidence in [0,1].

Order entries from most to least prominent.
JSON only. No markdown, no code fences, no comments, no trailing commas.`

// Client asks a local Ollama vision model to enumerate garments, exposing
// the same interface as the hosted segmentation endpoint. Scores come from
// the model itself and no pixel masks are produced.
type Client struct {
	client *api.Client
	model  string
	prompt string
	logger *zap.Logger
}

// NewClient creates a client for the Ollama server at the given URL
func NewClient(ollamaURL, model string, logger *zap.Logger) (*Client, error) {
	parsedURL, err := url.Parse(ollamaURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %v", err)
	}

	// Base URL only; the SDK appends its own paths
	baseURL := &url.URL{
		Scheme: parsedURL.Scheme,
		Host:   parsedURL.Host,
	}

	if model == "" {
		model = DefaultModel
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		client: api.NewClient(baseURL, http.DefaultClient),
		model:  model,
		prompt: DefaultPrompt,
		logger: logger.Named("ollamaseg"),
	}, nil
}

// Segment sends the encoded image to the local vision model and parses its
// answer into a segment list
func (c *Client) Segment(ctx context.Context, imageBytes []byte) (*types.Result, error) {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 300*time.Second)
		defer cancel()
	}

	streamFalse := false
	req := &api.ChatRequest{
		Model: c.model,
		Messages: []api.Message{
			{
				Role:    "user",
				Content: c.prompt,
				Images:  []api.ImageData{api.ImageData(imageBytes)},
			},
		},
		Stream: &streamFalse,
	}

	var responseContent string
	err := c.client.Chat(ctx, req, func(resp api.ChatResponse) error {
		responseContent = resp.Message.Content
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ollama chat error: %v", err)
	}

	if responseContent == "" {
		return nil, fmt.Errorf("empty response from ollama")
	}

	c.logger.Debug("model answered", zap.Int("response_bytes", len(responseContent)))
	return parseSegments(responseContent)
}

// parseSegments parses the JSON array answer from the vision model
func parseSegments(raw string) (*types.Result, error) {
	raw = sanitizeModelJSON(raw)

	var segments []types.Segment
	if err := json.Unmarshal([]byte(raw), &segments); err != nil {
		// Conservative bracket-slice fallback
		start := strings.Index(raw, "[")
		end := strings.LastIndex(raw, "]")
		if start < 0 || end <= start {
			return nil, fmt.Errorf("no JSON array found in model response")
		}
		if err2 := json.Unmarshal([]byte(raw[start:end+1]), &segments); err2 != nil {
			return nil, fmt.Errorf("failed to parse model response: %v", err2)
		}
	}

	for i := range segments {
		segments[i].Label = strings.ToLower(strings.TrimSpace(segments[i].Label))
		if segments[i].Score < 0 {
			segments[i].Score = 0
		}
		if segments[i].Score > 1 {
			segments[i].Score = 1
		}
	}

	body, err := json.Marshal(segments)
	if err != nil {
		return nil, err
	}
	return &types.Result{
		Segments: segments,
		Raw:      json.RawMessage(body),
	}, nil
}

// sanitizeModelJSON removes code fences, comments, and trailing commas from
// the model's answer
func sanitizeModelJSON(raw string) string {
	raw = strings.TrimSpace(raw)

	// Strip triple-backtick fences if present
	if strings.HasPrefix(raw, "```") {
		if i := strings.Index(raw, "\n"); i >= 0 {
			raw = raw[i+1:]
		}
		if j := strings.LastIndex(raw, "```"); j >= 0 {
			raw = raw[:j]
		}
	}
	raw = strings.TrimSpace(raw)
	raw = strings.Trim(raw, "`")

	// Remove /* ... */ block comments
	reBlock := regexp.MustCompile(`(?s)/\*.*?\*/`)
	raw = reBlock.ReplaceAllString(raw, "")

	// Remove // line/inline comments
	reLine := regexp.MustCompile(`(?m)^\s*//.*$`)
	raw = reLine.ReplaceAllString(raw, "")
	reInline := regexp.MustCompile(`(?m)//.*$`)
	raw = reInline.ReplaceAllString(raw, "")

	// Remove trailing commas before } or ]
	reTrailing := regexp.MustCompile(`,(\s*[}\]])`)
	raw = reTrailing.ReplaceAllString(raw, "$1")

	// Keep only the outermost [...]
	if start := strings.Index(raw, "["); start >= 0 {
		if end := strings.LastIndex(raw, "]"); end > start {
			raw = raw[start : end+1]
		}
	}
	return strings.TrimSpace(raw)
}
