package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/novapush/novadash/pkg/domain"
)

// DefaultTimeout bounds every request made by the client.
const DefaultTimeout = 12 * time.Second

// SendRequest is the payload for dispatching a notification.
type SendRequest struct {
	Channel    domain.Channel    `json:"channel" validate:"required,oneof=email sms push"`
	TemplateID string            `json:"templateId" validate:"required"`
	Recipients []string          `json:"recipients" validate:"required,min=1,dive,required"`
	Variables  map[string]string `json:"variables"`
}

// SendResult is the API's acknowledgement of a send.
type SendResult struct {
	CorrelationID string `json:"correlationId"`
}

// Client is the notification platform API client.
type Client struct {
	baseURL    string
	creds      Credentials
	httpClient *http.Client
	logger     zerolog.Logger
	validate   *validator.Validate
	now        func() time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout overrides DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithLogger sets the logger used for quarantined records and auth failures.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New creates a new API client. All paths are resolved under baseURL + "/api".
func New(baseURL string, creds Credentials, opts ...Option) *Client {
	if creds == nil {
		creds = NewMemoryToken("")
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		creds:   creds,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		logger:   zerolog.Nop(),
		validate: newValidator(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetLogs fetches the latest notification log. Records that fail validation
// are returned in LogBatch.Rejected and never in LogBatch.Events.
func (c *Client) GetLogs(ctx context.Context) (*LogBatch, error) {
	var resp logsResponse
	if err := c.get(ctx, "/logs?latest=true", &resp); err != nil {
		return nil, fmt.Errorf("client.GetLogs: %w", err)
	}
	batch := decodeLogs(c.validate, resp.Logs)
	for _, r := range batch.Rejected {
		c.logger.Warn().Int("index", r.Index).Str("id", r.ID).Str("reason", r.Reason).Msg("quarantined log record")
	}
	return &batch, nil
}

// SendNotification dispatches a notification. Each call carries a fresh
// Idempotency-Key so the server can de-duplicate retried sends.
func (c *Client) SendNotification(ctx context.Context, req SendRequest) (*SendResult, error) {
	if err := c.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("client.SendNotification: %s", describeValidation(err))
	}
	if req.Variables == nil {
		req.Variables = map[string]string{}
	}
	headers := map[string]string{"Idempotency-Key": c.idempotencyKey()}

	var res SendResult
	if err := c.doRequest(ctx, http.MethodPost, "/notifications/send", headers, req, &res); err != nil {
		return nil, fmt.Errorf("client.SendNotification: %w", err)
	}
	return &res, nil
}

func (c *Client) idempotencyKey() string {
	return "idem_" + strconv.FormatInt(c.now().UnixMilli(), 10)
}

func (c *Client) doRequest(ctx context.Context, method, path string, headers map[string]string, body any, out any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+"/api"+path, reqBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if tok := c.creds.Token(); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck // best-effort close

	if resp.StatusCode == http.StatusUnauthorized {
		// Redirecting to login is the caller's job.
		if clearErr := c.creds.Clear(); clearErr != nil {
			c.logger.Error().Err(clearErr).Msg("clear credentials after 401")
		}
	}

	if resp.StatusCode >= 400 {
		respBody, readErr := io.ReadAll(io.LimitReader(resp.Body, 1<<20)) // 1 MB max error body
		if readErr != nil {
			return &HTTPError{StatusCode: resp.StatusCode, Message: fmt.Sprintf("failed to read body: %v", readErr)}
		}
		var apiErr struct {
			Error   string `json:"error"`
			Message string `json:"message"`
		}
		if json.Unmarshal(respBody, &apiErr) == nil {
			if apiErr.Error != "" {
				return &HTTPError{StatusCode: resp.StatusCode, Message: apiErr.Error}
			}
			if apiErr.Message != "" {
				return &HTTPError{StatusCode: resp.StatusCode, Message: apiErr.Message}
			}
		}
		return &HTTPError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(respBody))}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	return c.doRequest(ctx, http.MethodGet, path, nil, nil, out)
}
