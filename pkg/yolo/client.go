package yolo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/menta2k/vision-nav/pkg/client"
	"github.com/menta2k/vision-nav/pkg/types"
)

// Client talks to a YOLO inference sidecar over HTTP. The sidecar accepts a
// multipart "file" upload on /predict and answers with pixel boxes:
//
//	{"detections": [{"label": "person", "confidence": 0.91, "box": [x1, y1, x2, y2]}]}
type Client struct {
	baseURL    string
	httpClient *http.Client
}

var _ client.DetectionClient = (*Client)(nil)

type prediction struct {
	Label      string    `json:"label"`
	Confidence float64   `json:"confidence"`
	Box        []float64 `json:"box"`
}

type predictResponse struct {
	Detections []prediction `json:"detections"`
}

// NewClient creates a client for the sidecar at serverURL
func NewClient(serverURL string) (*Client, error) {
	if serverURL == "" {
		serverURL = "http://localhost:5001"
	}
	if !strings.HasPrefix(serverURL, "http://") && !strings.HasPrefix(serverURL, "https://") {
		return nil, fmt.Errorf("invalid URL: %s", serverURL)
	}

	return &Client{
		baseURL: strings.TrimSuffix(serverURL, "/"),
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}, nil
}

// Name identifies the backend
func (c *Client) Name() string {
	return "yolo"
}

// Ping checks the sidecar health endpoint
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("yolo sidecar unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("yolo sidecar unhealthy: %d", resp.StatusCode)
	}
	return nil
}

// Detect uploads the frame and returns the sidecar detections
func (c *Client) Detect(ctx context.Context, frame client.Frame) ([]types.RawDetection, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("file", "frame."+frame.Format)
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(frame.Data); err != nil {
		return nil, fmt.Errorf("copy image data: %w", err)
	}
	if frame.Confidence > 0 {
		if err := writer.WriteField("conf", strconv.FormatFloat(frame.Confidence, 'f', -1, 64)); err != nil {
			return nil, fmt.Errorf("write conf field: %w", err)
		}
	}
	if frame.Model != "" {
		if err := writer.WriteField("model", frame.Model); err != nil {
			return nil, fmt.Errorf("write model field: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/predict", body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("inference failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var result predictResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	out := make([]types.RawDetection, 0, len(result.Detections))
	for _, p := range result.Detections {
		if len(p.Box) != 4 {
			continue
		}
		out = append(out, types.RawDetection{
			Label:      p.Label,
			Confidence: p.Confidence,
			Box:        types.Box{X1: p.Box[0], Y1: p.Box[1], X2: p.Box[2], Y2: p.Box[3]},
		})
	}
	return out, nil
}
