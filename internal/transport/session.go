// Package transport owns the HTTP session shared by every operation of one
// NocoDB client: base URL, static token header, timeout, pacing and the
// mapping of HTTP failures onto the domain error types.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"noco-bridge/internal/domain"
)

// TokenHeader carries the static API token on every request.
const TokenHeader = "xc-token"

// RequestIDHeader carries a per-request UUID for log correlation.
const RequestIDHeader = "X-Request-ID"

// DefaultTimeout is the per-request timeout when none is configured.
const DefaultTimeout = 30 * time.Second

// SessionConfig configures a Session.
type SessionConfig struct {
	BaseURL string // server root, e.g. https://app.nocodb.com
	Token   string
	Timeout time.Duration

	// RequestsPerSecond paces outgoing requests; zero disables pacing.
	RequestsPerSecond float64
	Burst             int

	// HTTPClient is used instead of a fresh client when set. Its Timeout is
	// left untouched.
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Session is a single HTTP session. It is safe for sequential use only.
type Session struct {
	baseURL string
	token   string
	client  *http.Client
	limiter *rate.Limiter
	logger  *slog.Logger
}

// NewSession creates a session for the given server.
func NewSession(cfg SessionConfig) (*Session, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	if _, err := url.ParseRequestURI(base); err != nil {
		return nil, fmt.Errorf("invalid base URL %q: %w", cfg.BaseURL, err)
	}

	client := cfg.HTTPClient
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		client = &http.Client{Timeout: timeout}
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Session{
		baseURL: base,
		token:   cfg.Token,
		client:  client,
		limiter: limiter,
		logger:  logger,
	}, nil
}

// BaseURL returns the server root the session talks to.
func (s *Session) BaseURL() string { return s.baseURL }

// Close releases pooled connections. The session must not be used afterwards.
func (s *Session) Close() {
	s.client.CloseIdleConnections()
}

// Do sends one request and returns the response body of a 2xx response.
// A 422 becomes a *domain.ValidationError carrying the decoded payload; any
// other failure becomes a *domain.TransportError. The operation label names
// the caller's operation in validation errors.
func (s *Session) Do(ctx context.Context, operation, method, path string, query url.Values, body interface{}) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal %s body: %w", operation, err)
		}
		reader = bytes.NewReader(data)
	}

	target := s.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, &domain.TransportError{Method: method, Path: path, Err: err}
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	requestID := uuid.NewString()
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set(TokenHeader, s.token)
	req.Header.Set(RequestIDHeader, requestID)

	start := time.Now()
	resp, err := s.client.Do(req)
	if err != nil {
		s.logger.Debug("request failed", "method", method, "path", path, "request_id", requestID, "error", err)
		return nil, &domain.TransportError{Method: method, Path: path, Err: err}
	}
	defer resp.Body.Close() //nolint:errcheck

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &domain.TransportError{Method: method, Path: path, StatusCode: resp.StatusCode, Err: fmt.Errorf("read body: %w", err)}
	}

	s.logger.Debug("request completed",
		"method", method,
		"path", path,
		"status", resp.StatusCode,
		"request_id", requestID,
		"duration", time.Since(start))

	if resp.StatusCode == http.StatusUnprocessableEntity {
		return nil, &domain.ValidationError{
			Operation:  operation,
			StatusCode: resp.StatusCode,
			Payload:    decodePayload(respBody),
		}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &domain.TransportError{
			Method:     method,
			Path:       path,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(respBody)),
		}
	}
	return respBody, nil
}

// GetJSON issues a GET and decodes the JSON response into out.
func (s *Session) GetJSON(ctx context.Context, path string, query url.Values, out interface{}) error {
	body, err := s.Do(ctx, "GET "+path, http.MethodGet, path, query, nil)
	if err != nil {
		return err
	}
	return Decode(body, out)
}

// Decode unmarshals a response body, keeping numbers as json.Number so that
// identifiers survive without float rounding.
func Decode(body []byte, out interface{}) error {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func decodePayload(body []byte) interface{} {
	var payload interface{}
	if err := Decode(body, &payload); err != nil {
		return strings.TrimSpace(string(body))
	}
	return payload
}
