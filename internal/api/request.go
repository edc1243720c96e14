package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Sentinel errors for the REST and negotiation paths.
var (
	// ErrAuthentication matches API errors where the venue rejected the
	// key, signature, timestamp or passphrase.
	ErrAuthentication = errors.New("authentication rejected")

	// ErrNoCredentials is returned when a signed endpoint is called on a
	// client without credentials.
	ErrNoCredentials = errors.New("no credentials configured")
)

// CodeSuccess is the envelope code of a successful response.
const CodeSuccess = "200000"

// codeRateLimited is the envelope code for too many requests.
const codeRateLimited = "429000"

// envelope wraps every KuCoin REST response.
type envelope struct {
	Code string          `json:"code"`
	Data json.RawMessage `json:"data"`
	Msg  string          `json:"msg"`
}

// APIError represents an error from the KuCoin API.
type APIError struct {
	StatusCode int    // HTTP status
	Code       string // envelope code, empty if the body had none
	Message    string
	Body       []byte
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("kucoin api error %d (code %s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("kucoin api error %d: %s", e.StatusCode, e.Message)
}

// IsRetryable returns true if the error should trigger a retry.
func (e *APIError) IsRetryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests || e.Code == codeRateLimited
}

// Is matches ErrAuthentication for HTTP 401 and the 400001-400007 codes.
func (e *APIError) Is(target error) bool {
	if target != ErrAuthentication {
		return false
	}
	if e.StatusCode == http.StatusUnauthorized {
		return true
	}
	n, err := strconv.Atoi(e.Code)
	return err == nil && n >= 400001 && n <= 400007
}

// request describes one logical REST call.
type request struct {
	method string
	path   string
	query  url.Values
	body   []byte
	signed bool
}

func (r request) endpoint() string {
	if len(r.query) == 0 {
		return r.path
	}
	return r.path + "?" + r.query.Encode()
}

// doRequest performs one attempt and returns the envelope's data member.
func (c *Client) doRequest(ctx context.Context, r request) (json.RawMessage, error) {
	if r.signed && c.creds == nil {
		return nil, ErrNoCredentials
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit: %w", err)
		}
	}

	var bodyReader io.Reader
	if len(r.body) > 0 {
		bodyReader = bytes.NewReader(r.body)
	}
	req, err := http.NewRequestWithContext(ctx, r.method, c.baseURL+r.endpoint(), bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if len(r.body) > 0 {
		req.Header.Set("Content-Type", "application/json")
	}
	if r.signed {
		// Signed per attempt: the timestamp must be fresh on every retry.
		if err := c.creds.SignHTTPRequest(req, r.body); err != nil {
			return nil, fmt.Errorf("sign request: %w", err)
		}
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.RESTRequest(r.path, 0, time.Since(start))
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	c.metrics.RESTRequest(r.path, resp.StatusCode, time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var env envelope
	parseErr := json.Unmarshal(body, &env)

	if resp.StatusCode >= 400 {
		apiErr := &APIError{
			StatusCode: resp.StatusCode,
			Message:    http.StatusText(resp.StatusCode),
			Body:       body,
		}
		if parseErr == nil && env.Code != "" {
			apiErr.Code = env.Code
			if env.Msg != "" {
				apiErr.Message = env.Msg
			}
		}
		return nil, apiErr
	}

	if parseErr != nil {
		return nil, fmt.Errorf("unmarshal envelope: %w", parseErr)
	}
	// Bodies without an envelope are passed through whole.
	if env.Code == "" {
		return body, nil
	}
	if env.Code != CodeSuccess {
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Code:       env.Code,
			Message:    env.Msg,
			Body:       body,
		}
	}
	return env.Data, nil
}

// doWithRetry performs a request with exponential backoff retry.
func (c *Client) doWithRetry(ctx context.Context, r request) (json.RawMessage, error) {
	var lastErr error
	backoff := c.retryBackoff

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			// Add jitter: backoff * (0.5 to 1.5)
			jitter := backoff/2 + time.Duration(rand.Int64N(int64(backoff)+1))
			c.logger.Debug("retrying request",
				"attempt", attempt,
				"backoff", jitter,
				"path", r.path,
				"error", lastErr,
			)

			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(jitter):
			}

			backoff *= 2
		}

		data, err := c.doRequest(ctx, r)
		if err == nil {
			return data, nil
		}

		lastErr = err

		var apiErr *APIError
		if !errors.As(err, &apiErr) || !apiErr.IsRetryable() {
			return nil, err
		}
	}

	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}

// call runs r with retries and unmarshals the data member into result.
// A nil result discards the data.
func (c *Client) call(ctx context.Context, r request, result any) error {
	data, err := c.doWithRetry(ctx, r)
	if err != nil {
		return err
	}
	if result == nil {
		return nil
	}
	if err := json.Unmarshal(data, result); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	return nil
}

// get performs a public GET request with retries.
func (c *Client) get(ctx context.Context, path string, query url.Values, result any) error {
	return c.call(ctx, request{method: http.MethodGet, path: path, query: query}, result)
}

// signedGet performs a signed GET request with retries.
func (c *Client) signedGet(ctx context.Context, path string, query url.Values, result any) error {
	return c.call(ctx, request{method: http.MethodGet, path: path, query: query, signed: true}, result)
}

// post performs a POST request with a JSON body (nil for none).
func (c *Client) post(ctx context.Context, path string, payload any, signed bool, result any) error {
	var body []byte
	if payload != nil {
		var err error
		if body, err = json.Marshal(payload); err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
	}
	return c.call(ctx, request{method: http.MethodPost, path: path, body: body, signed: signed}, result)
}
