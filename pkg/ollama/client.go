package ollama

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"

	"github.com/menta2k/vision-nav/pkg/client"
	"github.com/menta2k/vision-nav/pkg/modeljson"
	"github.com/menta2k/vision-nav/pkg/types"
)

// Client wraps the Ollama API client
type Client struct {
	client *api.Client
}

var _ client.DetectionClient = (*Client)(nil)

// NewClient creates a new Ollama client
func NewClient(ollamaURL string) (*Client, error) {
	if ollamaURL == "" {
		ollamaURL = "http://localhost:11434"
	}

	// Parse the provided URL
	parsedURL, err := url.Parse(ollamaURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if parsedURL.Scheme == "" || parsedURL.Host == "" {
		return nil, fmt.Errorf("invalid URL: %s", ollamaURL)
	}

	// Create base URL from the provided URL (removing path like /api/chat)
	baseURL := &url.URL{
		Scheme: parsedURL.Scheme,
		Host:   parsedURL.Host,
	}

	// Create client with the specified URL, ignoring environment
	return &Client{client: api.NewClient(baseURL, http.DefaultClient)}, nil
}

// Name identifies the backend
func (c *Client) Name() string {
	return "ollama"
}

// Ping checks that the Ollama server is up
func (c *Client) Ping(ctx context.Context) error {
	if err := c.client.Heartbeat(ctx); err != nil {
		return fmt.Errorf("ollama heartbeat failed: %w", err)
	}
	return nil
}

// Detect asks the vision model to list the objects in the frame
func (c *Client) Detect(ctx context.Context, frame client.Frame) ([]types.RawDetection, error) {
	// Add timeout if context doesn't have one (vision models on CPU are slow)
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 120*time.Second)
		defer cancel()
	}

	streamFalse := false
	options := map[string]any{
		"temperature": 0.1,
	}

	// Larger context for MiniCPM-V which emits long image token sequences
	modelLower := strings.ToLower(frame.Model)
	if strings.Contains(modelLower, "minicpm-v") {
		options["num_ctx"] = 4096
	}

	req := &api.ChatRequest{
		Model: frame.Model,
		Messages: []api.Message{
			{
				Role:    "user",
				Content: modeljson.Prompt,
				Images:  []api.ImageData{api.ImageData(frame.Data)},
			},
		},
		Stream:  &streamFalse,
		Format:  json.RawMessage(`"json"`),
		Options: options,
	}

	var responseContent strings.Builder
	err := c.client.Chat(ctx, req, func(resp api.ChatResponse) error {
		responseContent.WriteString(resp.Message.Content)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ollama chat error: %w", err)
	}

	content := responseContent.String()
	if strings.TrimSpace(content) == "" {
		return nil, fmt.Errorf("empty response from ollama")
	}

	return modeljson.ParseDetections(content, frame.Width, frame.Height), nil
}
