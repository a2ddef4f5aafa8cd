package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"github.com/phuslu/log"
)

var (
	// ErrRateLimitExceeded is returned before any network I/O when the
	// per-endpoint budget is exhausted.
	ErrRateLimitExceeded = errors.New("rate limit exceeded")

	// ErrInvalidURL is returned for malformed or disallowed target URLs.
	ErrInvalidURL = errors.New("invalid url")

	// ErrInvalidFile is returned when an upload fails the size or MIME
	// type checks before any request is built.
	ErrInvalidFile = errors.New("invalid file")
)

// APIError carries a non-2xx response back to the caller with the server
// message preserved for diagnostics.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("remote api error: status %d", e.StatusCode)
	}
	return fmt.Sprintf("remote api error: status %d: %s", e.StatusCode, e.Message)
}

// MaxUploadBytes is the hard ceiling for outbound file uploads.
const MaxUploadBytes int64 = 50 << 20

// DefaultTimeout bounds every outbound call.
const DefaultTimeout = 30 * time.Second

// AllowedUploadMIMETypes lists the content types UploadFile accepts.
var AllowedUploadMIMETypes = []string{
	"text/csv",
	"application/json",
	"application/vnd.ms-excel",
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	"text/plain",
}

// Config controls the guarded HTTP client.
type Config struct {
	// Timeout bounds each outbound call; defaults to DefaultTimeout.
	Timeout time.Duration

	// Production rejects any target URL that is not https.
	Production bool

	// MaxUploadBytes caps outbound uploads; defaults to MaxUploadBytes.
	MaxUploadBytes int64

	// AllowedMIMETypes overrides AllowedUploadMIMETypes when non-empty.
	AllowedMIMETypes []string

	// Headers are applied to every outbound request, e.g. authorization.
	Headers map[string]string
}

// Response is the decoded outcome of a successful call. A non-JSON
// success leaves Body empty.
type Response struct {
	StatusCode int
	Body       []byte
}

// Decode unmarshals the response body into v. A missing body is not an
// error; the target is simply left untouched.
func (r *Response) Decode(v any) error {
	if len(r.Body) == 0 {
		return nil
	}
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("failed to decode response body: %w", err)
	}
	return nil
}

// Client is a rate-limited HTTP client wrapper. Every outbound URL is
// sanitized, every payload is scrubbed, and every endpoint is held to the
// injected limiter's budget before any network I/O happens.
type Client struct {
	httpClient     *http.Client
	limiter        *EndpointLimiter
	production     bool
	maxUploadBytes int64
	allowedMIME    map[string]struct{}
	headers        map[string]string
	logger         log.Logger
}

// NewClient builds a client around the given limiter. The limiter is
// shared state: hand the same instance to every client that must respect
// a common budget.
func NewClient(cfg Config, limiter *EndpointLimiter, logger log.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	maxUpload := cfg.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = MaxUploadBytes
	}

	mimeTypes := cfg.AllowedMIMETypes
	if len(mimeTypes) == 0 {
		mimeTypes = AllowedUploadMIMETypes
	}
	allowed := make(map[string]struct{}, len(mimeTypes))
	for _, mt := range mimeTypes {
		allowed[strings.ToLower(mt)] = struct{}{}
	}

	if limiter == nil {
		limiter = NewEndpointLimiter(DefaultRateBudget, DefaultRateWindow)
	}

	return &Client{
		httpClient:     &http.Client{Timeout: timeout},
		limiter:        limiter,
		production:     cfg.Production,
		maxUploadBytes: maxUpload,
		allowedMIME:    allowed,
		headers:        cfg.Headers,
		logger:         logger,
	}
}

// Get issues a GET request against the target URL.
func (c *Client) Get(ctx context.Context, rawURL string) (*Response, error) {
	return c.do(ctx, http.MethodGet, rawURL, nil, "")
}

// Post issues a POST request with a sanitized JSON payload.
func (c *Client) Post(ctx context.Context, rawURL string, payload any) (*Response, error) {
	body, err := c.encodePayload(payload)
	if err != nil {
		return nil, err
	}
	return c.do(ctx, http.MethodPost, rawURL, body, "application/json")
}

// Put issues a PUT request with a sanitized JSON payload.
func (c *Client) Put(ctx context.Context, rawURL string, payload any) (*Response, error) {
	body, err := c.encodePayload(payload)
	if err != nil {
		return nil, err
	}
	return c.do(ctx, http.MethodPut, rawURL, body, "application/json")
}

// Delete issues a DELETE request against the target URL.
func (c *Client) Delete(ctx context.Context, rawURL string) (*Response, error) {
	return c.do(ctx, http.MethodDelete, rawURL, nil, "")
}

// UploadFile sends data as a multipart form upload. The file is checked
// against the size ceiling and MIME allow-list before any request is
// constructed; extra form fields ride along untouched.
func (c *Client) UploadFile(ctx context.Context, rawURL, fieldName, fileName, contentType string, data []byte, fields map[string]string) (*Response, error) {
	if int64(len(data)) > c.maxUploadBytes {
		return nil, fmt.Errorf("%w: file size %d exceeds limit of %d bytes", ErrInvalidFile, len(data), c.maxUploadBytes)
	}
	if _, ok := c.allowedMIME[strings.ToLower(contentType)]; !ok {
		return nil, fmt.Errorf("%w: content type %q is not allowed", ErrInvalidFile, contentType)
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition",
		fmt.Sprintf(`form-data; name=%q; filename=%q`, fieldName, fileName))
	header.Set("Content-Type", contentType)

	part, err := writer.CreatePart(header)
	if err != nil {
		return nil, fmt.Errorf("failed to build multipart body: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, fmt.Errorf("failed to write multipart body: %w", err)
	}

	for key, value := range fields {
		if err := writer.WriteField(key, value); err != nil {
			return nil, fmt.Errorf("failed to write form field %s: %w", key, err)
		}
	}

	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize multipart body: %w", err)
	}

	return c.do(ctx, http.MethodPost, rawURL, &buf, writer.FormDataContentType())
}

func (c *Client) encodePayload(payload any) (io.Reader, error) {
	if payload == nil {
		return nil, nil
	}

	sanitized, err := SanitizePayload(payload)
	if err != nil {
		return nil, err
	}

	encoded, err := json.Marshal(sanitized)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize payload: %w", err)
	}
	return bytes.NewReader(encoded), nil
}

func (c *Client) do(ctx context.Context, method, rawURL string, body io.Reader, contentType string) (*Response, error) {
	if err := c.checkURL(rawURL); err != nil {
		return nil, err
	}

	if !c.limiter.Allow(rawURL) {
		c.logger.Warn().Str("url", rawURL).Msg("rate limit exceeded, request dropped")
		return nil, fmt.Errorf("%w: %s", ErrRateLimitExceeded, rawURL)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	for key, value := range c.headers {
		req.Header.Set(key, value)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request to %s failed: %w", rawURL, err)
	}
	defer func() { _ = resp.Body.Close() }()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read response from %s: %w", rawURL, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		message := serverMessage(payload)
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			c.logger.Warn().
				Int("status", resp.StatusCode).
				Str("url", rawURL).
				Msg("remote call rejected by authentication")
		}
		return nil, &APIError{StatusCode: resp.StatusCode, Message: message}
	}

	if !strings.Contains(strings.ToLower(resp.Header.Get("Content-Type")), "json") {
		return &Response{StatusCode: resp.StatusCode}, nil
	}

	return &Response{StatusCode: resp.StatusCode, Body: payload}, nil
}

func (c *Client) checkURL(rawURL string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("%w: %s is not absolute", ErrInvalidURL, rawURL)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("%w: scheme %s is not supported", ErrInvalidURL, parsed.Scheme)
	}
	if c.production && parsed.Scheme != "https" {
		return fmt.Errorf("%w: %s must use https in production", ErrInvalidURL, rawURL)
	}
	return nil
}

// serverMessage pulls a human readable message out of an error body.
func serverMessage(payload []byte) string {
	if len(payload) == 0 {
		return ""
	}

	var envelope struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(payload, &envelope); err == nil {
		if envelope.Message != "" {
			return envelope.Message
		}
		if envelope.Error != "" {
			return envelope.Error
		}
	}

	text := strings.TrimSpace(string(payload))
	if len(text) > 512 {
		text = text[:512]
	}
	return text
}
