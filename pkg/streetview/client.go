// Package streetview fetches street-level panorama images from the Baidu
// panorama static API (https://lbsyun.baidu.com/index.php?title=viewstatic).
// Only the access key (ak) is required; the API returns raw image bytes on
// success and a JSON error payload otherwise.
package streetview

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/chai2010/webp"
	"go.uber.org/zap"
	_ "golang.org/x/image/webp"

	"github.com/greenview-analytics/greenview/internal/metrics"
	"github.com/greenview-analytics/greenview/internal/utils"
	"github.com/greenview-analytics/greenview/pkg/types"
)

// ErrQuotaExceeded means the provider refused the request because the daily
// quota for the access key is exhausted. Fatal for further downloads in the
// session unless the caller supplies a new key; never retried.
var ErrQuotaExceeded = errors.New("imagery quota exceeded")

// ErrAuthFailed means the access key was rejected. Never retried.
var ErrAuthFailed = errors.New("imagery authentication failed")

// apiError is the JSON payload the provider returns instead of image bytes.
type apiError struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
}

// Client downloads panorama images with bounded retry and quota awareness.
type Client struct {
	endpoint   string
	accessKey  string
	httpClient *http.Client
	maxRetries int
	backoff    time.Duration
	logger     *zap.Logger
}

// Options configures a Client. Zero values fall back to defaults.
type Options struct {
	Endpoint   string
	AccessKey  string
	Timeout    time.Duration
	MaxRetries int
	Backoff    time.Duration
	Logger     *zap.Logger
}

const defaultEndpoint = "https://api.map.baidu.com/panorama/v2"

// NewClient creates a panorama client. The access key is required.
func NewClient(opts Options) (*Client, error) {
	if opts.AccessKey == "" {
		return nil, fmt.Errorf("access key is required")
	}
	if opts.Endpoint == "" {
		opts.Endpoint = defaultEndpoint
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.Backoff <= 0 {
		opts.Backoff = 500 * time.Millisecond
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	return &Client{
		endpoint:  opts.Endpoint,
		accessKey: opts.AccessKey,
		httpClient: &http.Client{
			Timeout: opts.Timeout,
		},
		maxRetries: opts.MaxRetries,
		backoff:    opts.Backoff,
		logger:     opts.Logger,
	}, nil
}

// buildURL assembles the request URL for one acquisition.
func (c *Client) buildURL(req types.AcquisitionRequest) string {
	params := url.Values{}
	params.Set("ak", c.accessKey)
	params.Set("location", fmt.Sprintf("%s,%s",
		utils.FormatCoord(req.Coordinate.Longitude),
		utils.FormatCoord(req.Coordinate.Latitude)))
	params.Set("width", strconv.Itoa(req.Width))
	params.Set("height", strconv.Itoa(req.Height))
	params.Set("fov", strconv.Itoa(req.FOV))
	params.Set("pitch", strconv.Itoa(req.Pitch))
	params.Set("coordtype", "wgs84ll")
	return c.endpoint + "?" + params.Encode()
}

// Fetch retrieves the raw panorama bytes for one acquisition request.
// Transient failures (network errors, timeouts, 5xx) are retried with
// exponential backoff up to the retry budget. Quota and auth failures are
// returned immediately.
func (c *Client) Fetch(ctx context.Context, req types.AcquisitionRequest) ([]byte, error) {
	reqURL := c.buildURL(req)

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			metrics.IncDownloadRetry()
			delay := c.backoff << (attempt - 1)
			c.logger.Debug("retrying panorama download",
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay),
				zap.Float64("lng", req.Coordinate.Longitude),
				zap.Float64("lat", req.Coordinate.Latitude),
			)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		data, err := c.fetchOnce(ctx, reqURL)
		if err == nil {
			return data, nil
		}
		if !isTransient(err) {
			return nil, err
		}
		lastErr = err
	}

	return nil, fmt.Errorf("download failed after %d attempts: %w", c.maxRetries+1, lastErr)
}

func (c *Client) fetchOnce(ctx context.Context, reqURL string) ([]byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &transientError{err: fmt.Errorf("request failed: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return nil, &transientError{err: fmt.Errorf("server returned status %d", resp.StatusCode)}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("server returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &transientError{err: fmt.Errorf("failed to read response: %w", err)}
	}

	contentType := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "image/") {
		return nil, classifyErrorPayload(body, contentType)
	}

	return body, nil
}

// classifyErrorPayload maps the provider's JSON error body onto the error
// taxonomy. Status codes follow the Baidu LBS convention: 302/401/402 are
// quota or daily-limit failures, 101/102 and the 2xx block are key errors.
func classifyErrorPayload(body []byte, contentType string) error {
	var payload apiError
	if err := json.Unmarshal(body, &payload); err != nil {
		return fmt.Errorf("response is not an image (Content-Type: %s)", contentType)
	}

	switch {
	case payload.Status == 302 || payload.Status == 401 || payload.Status == 402 || payload.Status == 4:
		return fmt.Errorf("%w: status %d: %s", ErrQuotaExceeded, payload.Status, payload.Message)
	case payload.Status == 101 || payload.Status == 102 ||
		(payload.Status >= 200 && payload.Status < 300):
		return fmt.Errorf("%w: status %d: %s", ErrAuthFailed, payload.Status, payload.Message)
	default:
		return fmt.Errorf("provider error: status %d: %s", payload.Status, payload.Message)
	}
}

// transientError marks failures eligible for retry.
type transientError struct {
	err error
}

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

func isTransient(err error) bool {
	var te *transientError
	return errors.As(err, &te)
}

// Download fetches the panorama for one request and writes it to the
// deterministic path for the given sequence index under dir. If the file
// already exists the download is skipped and the existing path returned, so
// re-running a session resumes instead of re-fetching. The image is written
// atomically: bytes land in a temp file, are verified to decode, and only
// then renamed into place.
func (c *Client) Download(ctx context.Context, index int, req types.AcquisitionRequest, dir string) (path string, skipped bool, err error) {
	if err := utils.EnsureDir(dir); err != nil {
		return "", false, fmt.Errorf("failed to create image directory: %w", err)
	}

	path = utils.OriginalImagePath(dir, index, req.Coordinate.Longitude, req.Coordinate.Latitude)
	if utils.FileExists(path) {
		metrics.IncDownload("skipped")
		c.logger.Debug("panorama already on disk, skipping download", zap.String("path", path))
		return path, true, nil
	}

	data, err := c.Fetch(ctx, req)
	if err != nil {
		switch {
		case errors.Is(err, ErrQuotaExceeded):
			metrics.IncDownload("quota")
		default:
			metrics.IncDownload("error")
		}
		return "", false, err
	}

	if err := verifyImageBytes(data); err != nil {
		metrics.IncDownload("error")
		return "", false, err
	}

	tmp := path + ".part"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		metrics.IncDownload("error")
		return "", false, fmt.Errorf("failed to write image file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		metrics.IncDownload("error")
		return "", false, fmt.Errorf("failed to finalize image file: %w", err)
	}

	metrics.IncDownload("ok")
	c.logger.Info("panorama downloaded",
		zap.String("path", filepath.Base(path)),
		zap.String("size", utils.FormatFileSize(int64(len(data)))),
	)
	return path, false, nil
}

// verifyImageBytes confirms the payload decodes as an image with sane
// dimensions before it can be marked downloaded.
func verifyImageBytes(data []byte) error {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		// WebP panoramas are not registered with image.DecodeConfig on all
		// platforms; try the explicit decoder before giving up.
		if _, werr := webp.DecodeConfig(bytes.NewReader(data)); werr == nil {
			return nil
		}
		return fmt.Errorf("downloaded payload is not a decodable image: %w", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return fmt.Errorf("downloaded image has degenerate dimensions %dx%d", cfg.Width, cfg.Height)
	}
	return nil
}
