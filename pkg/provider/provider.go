// Package provider talks to the deterministic inference endpoint. The engine
// only sees the Client interface, so tests substitute fakes.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/verascope-ai/verascope/pkg/models"
)

// Completion is the provider's answer to one inference call.
type Completion struct {
	// Text is the assistant message content, or a stringified form of the
	// whole response body when the expected field is absent.
	Text string
	// Raw is the unparsed response body.
	Raw []byte
	// Usage is nil when the provider reports no token counts.
	Usage *models.Usage
}

// Client is the inference provider abstraction consumed by the engine.
type Client interface {
	Complete(ctx context.Context, req models.ChatCompletionRequest) (*Completion, error)
}

// Error is a transient network/server-side provider failure. The call
// executor retries these; the verifier reports them.
type Error struct {
	Status int
	Body   string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("provider request failed: %v", e.Err)
	}
	return fmt.Sprintf("provider returned %d: %s", e.Status, e.Body)
}

func (e *Error) Unwrap() error { return e.Err }

const (
	defaultTimeout = 120 * time.Second
	errBodyLimit   = 512
)

// HTTPClient calls an OpenAI-compatible chat completions endpoint.
type HTTPClient struct {
	baseURL string
	apiKey  string
	httpc   *http.Client
}

// NewHTTPClient creates a client for the given endpoint. timeout bounds each
// call; zero selects the default.
func NewHTTPClient(baseURL, apiKey string, timeout time.Duration) (*HTTPClient, error) {
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("invalid provider URL: %w", err)
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &HTTPClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpc:   &http.Client{Timeout: timeout},
	}, nil
}

// Complete performs one chat completion call. A timeout, transport failure,
// or non-2xx status yields a *Error. A 2xx response always yields a usable
// Completion: when the content field is missing the whole body is used.
func (c *HTTPClient) Complete(ctx context.Context, req models.ChatCompletionRequest) (*Completion, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal completion request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpc.Do(httpReq)
	if err != nil {
		return nil, &Error{Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{Err: fmt.Errorf("read response: %w", err)}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		excerpt := respBody
		if len(excerpt) > errBodyLimit {
			excerpt = excerpt[:errBodyLimit]
		}
		return nil, &Error{Status: resp.StatusCode, Body: string(excerpt)}
	}

	return parseCompletion(respBody), nil
}

// parseCompletion extracts the first choice's message content. If the field
// is absent or the body does not decode, the stringified body stands in so
// a response is always producible.
func parseCompletion(body []byte) *Completion {
	var decoded models.ChatCompletionResponse
	if err := json.Unmarshal(body, &decoded); err == nil && len(decoded.Choices) > 0 {
		return &Completion{
			Text:  decoded.Choices[0].Message.Content,
			Raw:   body,
			Usage: decoded.Usage,
		}
	}
	return &Completion{Text: string(body), Raw: body}
}

// CheckGrant queries the remaining token balance on the provider grant.
func (c *HTTPClient) CheckGrant(ctx context.Context) (*models.GrantStatus, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/checkGrant", nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpc.Do(httpReq)
	if err != nil {
		return nil, &Error{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{Err: fmt.Errorf("read response: %w", err)}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &Error{Status: resp.StatusCode, Body: string(body)}
	}

	var status models.GrantStatus
	if err := json.Unmarshal(body, &status); err != nil {
		return nil, fmt.Errorf("decode grant status: %w", err)
	}
	return &status, nil
}
