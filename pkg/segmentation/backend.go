// Package segmentation wraps an external semantic-segmentation capability
// served over HTTP. The contract is fixed: image in, per-pixel class map out,
// over a 19-class Cityscapes-style label set. Device selection happens once
// per session; inference calls are serialized because the inference device is
// a mutually exclusive resource.
package segmentation

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/greenview-analytics/greenview/pkg/types"
)

// DeviceInfo describes the compute device the inference server runs on.
type DeviceInfo struct {
	Device      string `json:"device"`      // "cuda" or "cpu"
	Available   bool   `json:"available"`   // accelerator usable
	Description string `json:"description"` // free-form hardware description
}

// Backend is the transport-level contract to a segmentation server.
type Backend interface {
	// Segment runs the model on the encoded image and returns the class map.
	Segment(ctx context.Context, model string, img image.Image) (*types.ClassMap, error)
	// Labels returns the model's ordered label manifest.
	Labels(ctx context.Context, model string) ([]string, error)
	// Device probes the server's compute device.
	Device(ctx context.Context) (DeviceInfo, error)
}

// HTTPBackend talks to a segmentation inference server over its JSON API.
type HTTPBackend struct {
	baseURL    string
	httpClient *http.Client
}

// NewHTTPBackend creates a backend client for the given server URL.
func NewHTTPBackend(serverURL string, timeout time.Duration) *HTTPBackend {
	if serverURL == "" {
		serverURL = "http://localhost:8093"
	}
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}

	return &HTTPBackend{
		baseURL: strings.TrimSuffix(serverURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type segmentRequest struct {
	Model string `json:"model"`
	// Image is base64-encoded JPEG.
	Image string `json:"image"`
}

type segmentResponse struct {
	Width  int    `json:"width"`
	Height int    `json:"height"`
	// Classes is base64-encoded raw class bytes, row-major, one per pixel.
	Classes string `json:"classes"`
}

// Segment posts the image to /v1/segment and decodes the class map.
func (b *HTTPBackend) Segment(ctx context.Context, model string, img image.Image) (*types.ClassMap, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
		return nil, fmt.Errorf("failed to encode image for transport: %w", err)
	}

	req := segmentRequest{
		Model: model,
		Image: base64.StdEncoding.EncodeToString(buf.Bytes()),
	}

	respBody, err := b.sendRequest(ctx, http.MethodPost, "/v1/segment", req)
	if err != nil {
		return nil, fmt.Errorf("segment request failed: %w", err)
	}

	var resp segmentResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse segment response: %w", err)
	}

	classes, err := base64.StdEncoding.DecodeString(resp.Classes)
	if err != nil {
		return nil, fmt.Errorf("failed to decode class data: %w", err)
	}
	if resp.Width <= 0 || resp.Height <= 0 {
		return nil, fmt.Errorf("server returned degenerate dimensions %dx%d", resp.Width, resp.Height)
	}
	if len(classes) != resp.Width*resp.Height {
		return nil, fmt.Errorf("class data length %d does not match %dx%d",
			len(classes), resp.Width, resp.Height)
	}

	return &types.ClassMap{
		Width:   resp.Width,
		Height:  resp.Height,
		Classes: classes,
	}, nil
}

type labelsResponse struct {
	Labels []string `json:"labels"`
}

// Labels fetches the model's ordered label manifest from /v1/labels.
func (b *HTTPBackend) Labels(ctx context.Context, model string) ([]string, error) {
	respBody, err := b.sendRequest(ctx, http.MethodGet, "/v1/labels?model="+model, nil)
	if err != nil {
		return nil, fmt.Errorf("labels request failed: %w", err)
	}

	var resp labelsResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse labels response: %w", err)
	}
	return resp.Labels, nil
}

// Device probes /v1/device for the server's compute device.
func (b *HTTPBackend) Device(ctx context.Context) (DeviceInfo, error) {
	respBody, err := b.sendRequest(ctx, http.MethodGet, "/v1/device", nil)
	if err != nil {
		return DeviceInfo{}, fmt.Errorf("device probe failed: %w", err)
	}

	var info DeviceInfo
	if err := json.Unmarshal(respBody, &info); err != nil {
		return DeviceInfo{}, fmt.Errorf("failed to parse device response: %w", err)
	}
	return info, nil
}

func (b *HTTPBackend) sendRequest(ctx context.Context, method, endpoint string, payload interface{}) ([]byte, error) {
	var body io.Reader
	if payload != nil {
		jsonData, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, b.baseURL+endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("server returned status %d: %s", resp.StatusCode, string(respBody))
	}

	return respBody, nil
}
