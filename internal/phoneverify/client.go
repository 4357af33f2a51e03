package phoneverify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/quickoffer/leadgen/pkg/logging"
)

const defaultBaseURL = "https://apilayer.net/api"

var tracer = otel.Tracer("leadgen.internal.phoneverify")

// Sentinel errors for the caller-facing taxonomy. Provider-specific
// failure codes are folded into these before they leave the package.
var (
	ErrMissingAPIKey       = errors.New("phoneverify: provider API key not configured")
	ErrInvalidNumber       = errors.New("phoneverify: invalid phone number")
	ErrInvalidCountryCode  = errors.New("phoneverify: invalid country code")
	ErrProviderUnavailable = errors.New("phoneverify: provider unavailable")
)

// Config controls how the lookup client behaves.
type Config struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *logging.Logger
}

// Client wraps the number-lookup provider's validate endpoint.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	logger     *logging.Logger
}

// NewClient creates a configured Client with sane defaults. A missing
// API key is not an error here: the server must boot without one, and
// Verify reports the configuration failure per call.
func NewClient(cfg Config) *Client {
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	baseURL = strings.TrimRight(baseURL, "/")
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	return &Client{
		apiKey:     cfg.APIKey,
		baseURL:    baseURL,
		httpClient: httpClient,
		logger:     logger,
	}
}

// lookupResponse mirrors the provider's validate payload.
type lookupResponse struct {
	Valid               bool   `json:"valid"`
	Number              string `json:"number"`
	LocalFormat         string `json:"local_format"`
	InternationalFormat string `json:"international_format"`
	CountryCode         string `json:"country_code"`
	CountryName         string `json:"country_name"`
	Location            string `json:"location"`
	Carrier             string `json:"carrier"`
	LineType            string `json:"line_type"`

	Success *bool `json:"success,omitempty"`
	Error   *struct {
		Code int    `json:"code"`
		Type string `json:"type"`
		Info string `json:"info"`
	} `json:"error,omitempty"`
}

// lookup calls the provider synchronously. Transport failures are never
// treated as a valid number; they surface as ErrProviderUnavailable.
func (c *Client) lookup(ctx context.Context, number string) (*lookupResponse, []byte, error) {
	q := url.Values{}
	q.Set("access_key", c.apiKey)
	q.Set("number", number)
	q.Set("format", "1")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/validate?"+q.Encode(), nil)
	if err != nil {
		return nil, nil, fmt.Errorf("phoneverify: build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, nil, ctx.Err()
		}
		c.logger.Error("phone lookup transport failure", "error", err)
		return nil, nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: read response: %v", ErrProviderUnavailable, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Error("phone lookup provider error",
			"status", resp.StatusCode,
			"body", string(data),
		)
		return nil, nil, fmt.Errorf("%w: status %d", ErrProviderUnavailable, resp.StatusCode)
	}

	var payload lookupResponse
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, nil, fmt.Errorf("%w: decode response: %v", ErrProviderUnavailable, err)
	}
	if payload.Success != nil && !*payload.Success {
		return nil, nil, c.translateProviderError(&payload)
	}
	return &payload, data, nil
}

// translateProviderError folds provider failure codes into the package
// taxonomy. 210/310 are malformed-number reports, 211 is an unknown
// country code; everything else counts as the provider being unusable.
func (c *Client) translateProviderError(payload *lookupResponse) error {
	if payload.Error == nil {
		return ErrProviderUnavailable
	}
	c.logger.Warn("phone lookup rejected",
		"code", payload.Error.Code,
		"type", payload.Error.Type,
		"info", payload.Error.Info,
	)
	switch payload.Error.Code {
	case 210, 310:
		return fmt.Errorf("%w: %s", ErrInvalidNumber, payload.Error.Info)
	case 211:
		return fmt.Errorf("%w: %s", ErrInvalidCountryCode, payload.Error.Info)
	default:
		return fmt.Errorf("%w: provider error %d (%s)", ErrProviderUnavailable, payload.Error.Code, payload.Error.Type)
	}
}
