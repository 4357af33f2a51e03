package crm

import (
	"bytes"
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
	"go.opentelemetry.io/otel/attribute"

	"github.com/quickoffer/leadgen/pkg/logging"
)

const defaultBaseURL = "https://rest.gohighlevel.com/v1"

var tracer = otel.Tracer("leadgen.internal.crm")

var (
	// ErrMissingAPIKey means the CRM credential is absent; callers treat
	// this as a fatal configuration failure, not a retryable condition.
	ErrMissingAPIKey = errors.New("crm: API key not configured")

	// ErrContactNotFound is returned by lookups that match nothing.
	ErrContactNotFound = errors.New("crm: contact not found")
)

// APIError carries a non-success CRM response back to the handler layer.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("crm: %s (status=%d)", e.Message, e.StatusCode)
	}
	return fmt.Sprintf("crm: request failed (status=%d)", e.StatusCode)
}

// Config controls how the CRM client behaves.
type Config struct {
	BaseURL    string
	APIKey     string
	LocationID string
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *logging.Logger
}

// Client wraps the CRM's contact endpoints.
type Client struct {
	apiKey     string
	locationID string
	baseURL    string
	httpClient *http.Client
	logger     *logging.Logger
}

// NewClient creates a configured Client with sane defaults. Like the
// verification client, a missing key surfaces per call so the server can
// boot without credentials.
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
			timeout = 15 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	return &Client{
		apiKey:     cfg.APIKey,
		locationID: cfg.LocationID,
		baseURL:    baseURL,
		httpClient: httpClient,
		logger:     logger,
	}
}

// CreateContact creates a new CRM contact.
func (c *Client) CreateContact(ctx context.Context, contact *Contact) (*Contact, error) {
	ctx, span := tracer.Start(ctx, "crm.create_contact")
	defer span.End()

	contact.LocationID = c.locationID
	body, err := json.Marshal(contact)
	if err != nil {
		return nil, fmt.Errorf("crm: marshal contact: %w", err)
	}
	data, err := c.invoke(ctx, http.MethodPost, "/contacts/", nil, body)
	if err != nil {
		return nil, err
	}
	return decodeContact(data)
}

// UpdateContact updates an existing CRM contact by id.
func (c *Client) UpdateContact(ctx context.Context, id string, contact *Contact) (*Contact, error) {
	ctx, span := tracer.Start(ctx, "crm.update_contact")
	defer span.End()
	span.SetAttributes(attribute.String("crm.contact_id", id))

	if strings.TrimSpace(id) == "" {
		return nil, errors.New("crm: contact id required")
	}
	body, err := json.Marshal(contact)
	if err != nil {
		return nil, fmt.Errorf("crm: marshal contact: %w", err)
	}
	data, err := c.invoke(ctx, http.MethodPut, "/contacts/"+id, nil, body)
	if err != nil {
		return nil, err
	}
	return decodeContact(data)
}

// GetContact fetches a contact by id, including its current notes.
func (c *Client) GetContact(ctx context.Context, id string) (*Contact, error) {
	ctx, span := tracer.Start(ctx, "crm.get_contact")
	defer span.End()

	if strings.TrimSpace(id) == "" {
		return nil, errors.New("crm: contact id required")
	}
	data, err := c.invoke(ctx, http.MethodGet, "/contacts/"+id, nil, nil)
	if err != nil {
		return nil, err
	}
	return decodeContact(data)
}

// LookupByPhone finds an existing contact by normalized phone digits.
// Returns ErrContactNotFound when the CRM has no match.
func (c *Client) LookupByPhone(ctx context.Context, phone string) (*Contact, error) {
	ctx, span := tracer.Start(ctx, "crm.lookup_by_phone")
	defer span.End()

	if strings.TrimSpace(phone) == "" {
		return nil, errors.New("crm: phone required")
	}
	q := url.Values{}
	q.Set("phone", phone)
	data, err := c.invoke(ctx, http.MethodGet, "/contacts/lookup", q, nil)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
			return nil, ErrContactNotFound
		}
		return nil, err
	}

	var wrapper struct {
		Contacts []*Contact `json:"contacts"`
	}
	if err := json.Unmarshal(data, &wrapper); err != nil {
		return nil, fmt.Errorf("crm: decode lookup response: %w", err)
	}
	if len(wrapper.Contacts) == 0 {
		return nil, ErrContactNotFound
	}
	return wrapper.Contacts[0], nil
}

func (c *Client) invoke(ctx context.Context, method, path string, query url.Values, body []byte) ([]byte, error) {
	if strings.TrimSpace(c.apiKey) == "" {
		return nil, ErrMissingAPIKey
	}

	fullURL := c.baseURL + path
	if len(query) > 0 {
		fullURL += "?" + query.Encode()
	}

	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, fullURL, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("crm: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("crm: http error: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("crm: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := decodeAPIError(resp.StatusCode, data)
		c.logger.Error("crm request failed",
			"method", method,
			"path", path,
			"status", resp.StatusCode,
			"message", apiErr.Message,
		)
		return nil, apiErr
	}
	return data, nil
}

func decodeContact(data []byte) (*Contact, error) {
	// Contact endpoints wrap the record; tolerate a bare record too.
	var wrapper struct {
		Contact *Contact `json:"contact"`
	}
	if err := json.Unmarshal(data, &wrapper); err == nil && wrapper.Contact != nil {
		return wrapper.Contact, nil
	}
	var contact Contact
	if err := json.Unmarshal(data, &contact); err != nil {
		return nil, fmt.Errorf("crm: decode contact: %w", err)
	}
	return &contact, nil
}

func decodeAPIError(status int, data []byte) *APIError {
	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	_ = json.Unmarshal(data, &payload)
	msg := payload.Message
	if msg == "" {
		msg = payload.Error
	}
	if msg == "" {
		msg = strings.TrimSpace(string(data))
	}
	return &APIError{StatusCode: status, Message: msg}
}
