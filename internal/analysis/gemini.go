package analysis

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/trafficai/violation-reporter/internal/geo"
	"github.com/trafficai/violation-reporter/internal/media"
)

// Static errors for the Gemini client.
var (
	// ErrAPIKeyNotSet is returned when no API key was configured.
	ErrAPIKeyNotSet = errors.New("analysis: GEMINI_API_KEY is not set")
	// ErrNoFrames is returned when ClassifyFrames is called with an empty list.
	ErrNoFrames = errors.New("analysis: no frames provided")
	// ErrEmptyResponse is returned when the model returned no candidate text.
	ErrEmptyResponse = errors.New("analysis: empty model response")
	// ErrBlocked is returned when the prompt was blocked by safety filters.
	ErrBlocked = errors.New("analysis: prompt blocked")
	// ErrServerError is returned when the server returns a 5xx status code.
	ErrServerError = errors.New("analysis: server error")
	// ErrRateLimited is returned when the server returns a 429 status code.
	ErrRateLimited = errors.New("analysis: rate limited")
	// ErrRequestFailed is returned when the request fails with a non-2xx status code.
	ErrRequestFailed = errors.New("analysis: request failed")
)

const (
	DefaultModel   = "gemini-2.5-flash"
	DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

	maxStations = 5
)

// Compile-time checks.
var (
	_ Classifier    = (*GeminiClient)(nil)
	_ StationFinder = (*GeminiClient)(nil)
)

// GeminiClient calls the generateContent REST endpoint with a JSON response
// schema.
type GeminiClient struct {
	apiKey      string
	model       string
	baseURL     string
	httpClient  *http.Client
	maxRetries  int
	baseBackoff time.Duration
	logger      *slog.Logger
}

// ClientOption is a function that configures a GeminiClient.
type ClientOption func(*GeminiClient)

// WithAPIKey sets the API key.
func WithAPIKey(key string) ClientOption {
	return func(c *GeminiClient) {
		c.apiKey = key
	}
}

// WithModel sets the model name.
func WithModel(model string) ClientOption {
	return func(c *GeminiClient) {
		c.model = model
	}
}

// WithBaseURL sets a custom base URL.
func WithBaseURL(u string) ClientOption {
	return func(c *GeminiClient) {
		c.baseURL = strings.TrimRight(u, "/")
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *GeminiClient) {
		c.httpClient = hc
	}
}

// WithMaxRetries sets the maximum number of retries for transient failures.
func WithMaxRetries(n int) ClientOption {
	return func(c *GeminiClient) {
		c.maxRetries = n
	}
}

// WithBaseBackoff sets the initial backoff duration for retries.
func WithBaseBackoff(d time.Duration) ClientOption {
	return func(c *GeminiClient) {
		c.baseBackoff = d
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) ClientOption {
	return func(c *GeminiClient) {
		c.logger = l
	}
}

// NewGeminiClient creates a client. Without WithAPIKey the key is read from
// GEMINI_API_KEY.
func NewGeminiClient(opts ...ClientOption) (*GeminiClient, error) {
	c := &GeminiClient{
		model:       DefaultModel,
		baseURL:     DefaultBaseURL,
		httpClient:  &http.Client{Timeout: 90 * time.Second},
		maxRetries:  3,
		baseBackoff: 1 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.apiKey == "" {
		c.apiKey = os.Getenv("GEMINI_API_KEY")
	}
	if c.apiKey == "" {
		return nil, ErrAPIKeyNotSet
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c, nil
}

// ClassifyImage sends the image inline together with the single-image prompt.
func (c *GeminiClient) ClassifyImage(ctx context.Context, data []byte, mimeType string) (*Verdict, error) {
	parts := []part{
		inlinePart(mimeType, data),
		{Text: imagePrompt},
	}
	return c.classify(ctx, parts)
}

// ClassifyFrames sends every frame in order, followed by the multi-frame prompt.
func (c *GeminiClient) ClassifyFrames(ctx context.Context, frames []media.Frame) (*Verdict, error) {
	if len(frames) == 0 {
		return nil, ErrNoFrames
	}
	parts := make([]part, 0, len(frames)+1)
	for _, f := range frames {
		mime := f.MIMEType
		if mime == "" {
			mime = "image/jpeg"
		}
		parts = append(parts, inlinePart(mime, f.Data))
	}
	parts = append(parts, part{Text: framesPrompt(len(frames))})
	return c.classify(ctx, parts)
}

func (c *GeminiClient) classify(ctx context.Context, parts []part) (*Verdict, error) {
	var v Verdict
	if err := c.generate(ctx, parts, verdictSchema, &v); err != nil {
		return nil, err
	}
	if v.Violations == nil {
		v.Violations = []Violation{}
	}
	if err := v.Validate(); err != nil {
		return nil, err
	}
	c.logger.Debug("classified media",
		slog.Bool("violation", v.IsViolation),
		slog.Int("violations", len(v.Violations)),
	)
	return &v, nil
}

// NearbyStations asks the model for stations near at, drops entries with
// missing names or impossible coordinates, and returns up to five sorted by
// great-circle distance.
func (c *GeminiClient) NearbyStations(ctx context.Context, at geo.Coordinate) ([]PoliceStation, error) {
	var out struct {
		Stations []PoliceStation `json:"stations"`
	}
	if err := c.generate(ctx, []part{{Text: stationsPrompt(at)}}, stationsSchema, &out); err != nil {
		return nil, err
	}

	stations := make([]PoliceStation, 0, len(out.Stations))
	for _, s := range out.Stations {
		s.Name = strings.TrimSpace(s.Name)
		if validate.Struct(s) != nil {
			continue
		}
		s.DistanceKM = round(geo.Distance(at, geo.Coordinate{Latitude: s.Latitude, Longitude: s.Longitude}), 2)
		stations = append(stations, s)
	}
	sort.SliceStable(stations, func(i, j int) bool {
		return stations[i].DistanceKM < stations[j].DistanceKM
	})
	if len(stations) > maxStations {
		stations = stations[:maxStations]
	}
	return stations, nil
}

// generate performs one generateContent call and decodes the JSON text of the
// first candidate into result.
func (c *GeminiClient) generate(ctx context.Context, parts []part, schema map[string]any, result any) error {
	reqBody := generateRequest{
		Contents: []content{{Parts: parts}},
		GenerationConfig: generationConfig{
			ResponseMIMEType: "application/json",
			ResponseSchema:   schema,
		},
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("analysis: marshal request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent", c.baseURL, url.PathEscape(c.model))

	var resp generateResponse
	if err := c.doRequestWithRetry(ctx, endpoint, body, &resp); err != nil {
		return err
	}

	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		return fmt.Errorf("%w: %s", ErrBlocked, resp.PromptFeedback.BlockReason)
	}
	text := resp.text()
	if text == "" {
		return ErrEmptyResponse
	}
	if err := json.Unmarshal([]byte(stripFence(text)), result); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidVerdict, err)
	}
	return nil
}

// doRequestWithRetry performs a POST with exponential backoff retry.
func (c *GeminiClient) doRequestWithRetry(ctx context.Context, endpoint string, body []byte, result any) error {
	var lastErr error
	backoff := c.baseBackoff

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			c.logger.Warn("retrying model request",
				slog.Int("attempt", attempt),
				slog.String("error", lastErr.Error()),
			)
			select {
			case <-ctx.Done():
				return fmt.Errorf("analysis: context cancelled: %w", ctx.Err())
			case <-time.After(backoff):
				backoff *= 2
			}
		}

		err := c.doRequest(ctx, endpoint, body, result)
		if err == nil {
			return nil
		}
		if !isRetryable(err) {
			return err
		}
		lastErr = err
	}

	return fmt.Errorf("analysis: max retries exceeded: %w", lastErr)
}

// doRequest performs a single HTTP request.
func (c *GeminiClient) doRequest(ctx context.Context, endpoint string, body []byte, result any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("analysis: create request: %w", err)
	}
	req.Header.Set("x-goog-api-key", c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("analysis: request cancelled: %w", ctx.Err())
		}
		return &retryableError{err: fmt.Errorf("analysis: request failed: %w", err)}
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &retryableError{err: fmt.Errorf("analysis: read response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(respBody)}
		switch {
		case resp.StatusCode >= 500:
			apiErr.Err = ErrServerError
			return &retryableError{err: apiErr}
		case resp.StatusCode == http.StatusTooManyRequests:
			apiErr.Err = ErrRateLimited
			return &retryableError{err: apiErr}
		default:
			apiErr.Err = ErrRequestFailed
			return apiErr
		}
	}

	if err := json.Unmarshal(respBody, result); err != nil {
		return fmt.Errorf("analysis: unmarshal response: %w", err)
	}
	return nil
}

// APIError is a non-2xx answer from the model endpoint.
type APIError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%v with status %d: %s", e.Err, e.StatusCode, e.Body)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// retryableError wraps errors that should be retried.
type retryableError struct {
	err error
}

func (e *retryableError) Error() string {
	return e.err.Error()
}

func (e *retryableError) Unwrap() error {
	return e.err
}

// isRetryable returns true if the error should be retried.
func isRetryable(err error) bool {
	var re *retryableError
	return errors.As(err, &re)
}

func inlinePart(mimeType string, data []byte) part {
	return part{InlineData: &blob{MIMEType: mimeType, Data: base64.StdEncoding.EncodeToString(data)}}
}

// stripFence removes a ```json fence some models wrap around JSON output.
func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimPrefix(s, "json")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
